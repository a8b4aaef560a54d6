package export

import (
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/acoustic.report/internal/fsutil"
	"github.com/banshee-data/acoustic.report/internal/report"
	"github.com/banshee-data/acoustic.report/internal/units"
)

// Echogram colour range in dB.
const (
	MinDB = -80.0
	MaxDB = -20.0

	// svFloor keeps empty cells finite on the log scale.
	svFloor = 1e-89
)

// SvDB converts a linear value to dB.
func SvDB(v float64) float64 { return units.LinearToDB(v + svFloor) }

// PNGPath returns the file written for category by WritePNG.
func PNGPath(path string, category int) string {
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(path, ext), category, ".png")
}

// WritePNG renders one echogram per category and returns the paths. The
// file for category c is PNGPath(path, c).
func WritePNG(fsys fsutil.FileSystem, path string, p *report.Product) ([]string, error) {
	var written []string
	for c, cat := range p.Categories {
		pl, err := echogramPlot(p, c)
		if err != nil {
			return written, fmt.Errorf("category %d: %w", cat, err)
		}
		wt, err := pl.WriterTo(12*vg.Inch, 6*vg.Inch, "png")
		if err != nil {
			return written, err
		}
		out := PNGPath(path, cat)
		err = fsutil.WriteAtomic(fsys, out, func(w io.Writer) error {
			_, err := wt.WriteTo(w)
			return err
		})
		if err != nil {
			return written, err
		}
		written = append(written, out)
	}
	return written, nil
}

// categoryGrid exposes one category of a product as plotter.GridXYZ with
// ping bins as columns and depth channels as rows.
type categoryGrid struct {
	p    *report.Product
	c    int
	x, y []float64
}

func newCategoryGrid(p *report.Product, c int) *categoryGrid {
	g := &categoryGrid{p: p, c: c, x: make([]float64, len(p.Times)), y: make([]float64, len(p.DepthUpper))}
	for i, t := range p.Times {
		g.x[i] = float64(t.UnixNano()) / 1e9
	}
	for j := range g.y {
		g.y[j] = (p.DepthUpper[j] + p.DepthLower[j]) / 2
	}
	return g
}

func (g *categoryGrid) Dims() (c, r int) { return len(g.x), len(g.y) }
func (g *categoryGrid) Z(c, r int) float64 {
	v := g.p.Value(g.c, c, r)
	if math.IsNaN(v) {
		return v
	}
	return SvDB(v)
}
func (g *categoryGrid) X(c int) float64 { return g.x[c] }
func (g *categoryGrid) Y(r int) float64 { return g.y[r] }
func (g *categoryGrid) Min() float64    { return MinDB }
func (g *categoryGrid) Max() float64    { return MaxDB }

func echogramPlot(p *report.Product, c int) (*plot.Plot, error) {
	_, bins, channels := p.Dims()
	if bins == 0 || channels == 0 {
		return nil, fmt.Errorf("empty product: %d bins, %d channels", bins, channels)
	}

	pal := palette.Heat(64, 1)
	colors := pal.Colors()
	hm := plotter.NewHeatMap(newCategoryGrid(p, c), pal)
	hm.Underflow = colors[0]
	hm.Overflow = colors[len(colors)-1]

	pl := plot.New()
	pl.Title.Text = fmt.Sprintf("%d @ %s (%.0f..%.0f dB)", p.Categories[c], p.Attributes.ChannelID, MinDB, MaxDB)
	pl.X.Label.Text = "Time (UTC)"
	pl.X.Tick.Marker = plot.TimeTicks{Format: "15:04:05"}
	pl.Y.Label.Text = fmt.Sprintf("Sv %s (m)", p.Attributes.ChannelDepthType)
	pl.Y.Scale = plot.InvertedScale{Normalizer: plot.LinearScale{}}
	pl.Add(hm)
	return pl, nil
}
