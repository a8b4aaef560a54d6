package report

import (
	"math"
	"strconv"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/acoustic.report/internal/integrator"
)

// Validity flags.
const (
	Valid   = "V"
	Invalid = "I"
)

// Position origins for the start and end of a ping bin.
const (
	OriginStart = "start"
	OriginEnd   = "end"
)

// Meta carries the run details the grid does not know.
type Meta struct {
	// LocalID identifies the survey or dataset.
	LocalID string
	// Platform overrides the platform recorded in the echogram.
	Platform string
	// Software names the producing program and its version.
	Software string
}

// Attributes are the global attributes of a report. Downstream exports
// rely on their names.
type Attributes struct {
	PingAxisIntervalType   string
	PingAxisIntervalOrigin string
	PingAxisIntervalUnit   string
	PingAxisInterval       float64
	ChannelDepthType       string
	Frequency              float64
	ChannelID              string
	Platform               string
	LocalID                string
	Type                   string
	Unit                   string
	Threshold              float64
	SvThreshold            *float64
	Software               string
}

// Pairs returns the attributes as ordered name/value pairs.
func (a Attributes) Pairs() [][2]string {
	sv := ""
	if a.SvThreshold != nil {
		sv = formatFloat(*a.SvThreshold)
	}
	return [][2]string{
		{"PingAxisIntervalType", a.PingAxisIntervalType},
		{"PingAxisIntervalOrigin", a.PingAxisIntervalOrigin},
		{"PingAxisIntervalUnit", a.PingAxisIntervalUnit},
		{"PingAxisInterval", formatFloat(a.PingAxisInterval)},
		{"ChannelDepthType", a.ChannelDepthType},
		{"Frequency", formatFloat(a.Frequency)},
		{"ChannelID", a.ChannelID},
		{"Platform", a.Platform},
		{"LocalID", a.LocalID},
		{"Type", a.Type},
		{"Unit", a.Unit},
		{"Threshold", formatFloat(a.Threshold)},
		{"SvThreshold", sv},
		{"Software", a.Software},
	}
}

// ParseAttributes rebuilds attributes from Pairs output. Unknown names are
// ignored.
func ParseAttributes(pairs [][2]string) Attributes {
	var a Attributes
	for _, kv := range pairs {
		v := kv[1]
		switch kv[0] {
		case "PingAxisIntervalType":
			a.PingAxisIntervalType = v
		case "PingAxisIntervalOrigin":
			a.PingAxisIntervalOrigin = v
		case "PingAxisIntervalUnit":
			a.PingAxisIntervalUnit = v
		case "PingAxisInterval":
			a.PingAxisInterval = parseFloat(v)
		case "ChannelDepthType":
			a.ChannelDepthType = v
		case "Frequency":
			a.Frequency = parseFloat(v)
		case "ChannelID":
			a.ChannelID = v
		case "Platform":
			a.Platform = v
		case "LocalID":
			a.LocalID = v
		case "Type":
			a.Type = v
		case "Unit":
			a.Unit = v
		case "Threshold":
			a.Threshold = parseFloat(v)
		case "SvThreshold":
			if v != "" {
				f := parseFloat(v)
				a.SvThreshold = &f
			}
		case "Software":
			a.Software = v
		}
	}
	return a
}

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// Product is a finalized report: per ping bin coordinates, depth channel
// edges and one value matrix per category shaped [bins, channels].
type Product struct {
	Attributes Attributes
	Categories []int
	Values     []*mat.Dense

	Times       []time.Time
	Latitude    []float64
	Longitude   []float64
	Distance    []float64
	BottomDepth []float64

	DepthUpper []float64
	DepthLower []float64
}

// Row is one value of the report in long format.
type Row struct {
	Time              time.Time
	Latitude          float64
	Longitude         float64
	Origin            string
	Latitude2         float64
	Longitude2        float64
	Origin2           string
	Distance          float64
	BottomDepth       float64
	Validity          string
	ChannelDepthUpper float64
	ChannelDepthLower float64
	SaCategory        int
	Value             float64
}

// Finalize builds the report product from an aggregated grid.
func Finalize(g *integrator.ReportGrid, meta Meta) *Product {
	platform := g.Platform
	if meta.Platform != "" {
		platform = meta.Platform
	}
	ga := g.Attributes
	return &Product{
		Attributes: Attributes{
			PingAxisIntervalType:   ga.PingAxisIntervalType,
			PingAxisIntervalOrigin: ga.PingAxisIntervalOrigin,
			PingAxisIntervalUnit:   ga.PingAxisIntervalUnit,
			PingAxisInterval:       ga.PingAxisInterval,
			ChannelDepthType:       ga.ChannelDepthType,
			Frequency:              g.Frequency,
			ChannelID:              g.ChannelID,
			Platform:               platform,
			LocalID:                meta.LocalID,
			Type:                   ga.Type,
			Unit:                   ga.Unit,
			Threshold:              ga.Threshold,
			SvThreshold:            ga.SvThreshold,
			Software:               meta.Software,
		},
		Categories:  g.Categories,
		Values:      g.Values,
		Times:       g.Times,
		Latitude:    g.Latitude,
		Longitude:   g.Longitude,
		Distance:    g.Distance,
		BottomDepth: g.BottomDepth,
		DepthUpper:  g.DepthUpper,
		DepthLower:  g.DepthLower,
	}
}

// Dims returns the number of categories, ping bins and depth channels.
func (p *Product) Dims() (categories, bins, channels int) {
	return len(p.Categories), len(p.Times), len(p.DepthUpper)
}

// Value returns the value of category index c in bin i and channel j.
func (p *Product) Value(c, i, j int) float64 { return p.Values[c].At(i, j) }

// BinValid reports whether bin i holds any real value. Bins that only
// partially overlap the source are all NaN.
func (p *Product) BinValid(i int) bool {
	for c := range p.Values {
		_, nch := p.Values[c].Dims()
		for j := 0; j < nch; j++ {
			if !math.IsNaN(p.Values[c].At(i, j)) {
				return true
			}
		}
	}
	return false
}

// LastComplete returns the last valid bin as a Prior for the next run.
func (p *Product) LastComplete() (*Prior, bool) {
	for i := len(p.Times) - 1; i >= 0; i-- {
		if p.BinValid(i) {
			d := math.NaN()
			if i < len(p.Distance) {
				d = p.Distance[i]
			}
			return &Prior{LastTime: p.Times[i], LastDistance: d}, true
		}
	}
	return nil, false
}

// Rows flattens the product ordered by category, bin and channel. The end
// position of a bin is the start of the next one, so the last bin has none.
func (p *Product) Rows() []Row {
	nc, nb, nch := p.Dims()
	rows := make([]Row, 0, nc*nb*nch)
	for c, cat := range p.Categories {
		for i := 0; i < nb; i++ {
			lat2, lon2 := math.NaN(), math.NaN()
			if i+1 < nb {
				lat2, lon2 = p.Latitude[i+1], p.Longitude[i+1]
			}
			for j := 0; j < nch; j++ {
				v := p.Value(c, i, j)
				validity := Valid
				if math.IsNaN(v) {
					validity = Invalid
				}
				rows = append(rows, Row{
					Time:              p.Times[i],
					Latitude:          p.Latitude[i],
					Longitude:         p.Longitude[i],
					Origin:            OriginStart,
					Latitude2:         lat2,
					Longitude2:        lon2,
					Origin2:           OriginEnd,
					Distance:          p.Distance[i],
					BottomDepth:       p.BottomDepth[i],
					Validity:          validity,
					ChannelDepthUpper: p.DepthUpper[j],
					ChannelDepthLower: p.DepthLower[j],
					SaCategory:        cat,
					Value:             v,
				})
			}
		}
	}
	return rows
}
