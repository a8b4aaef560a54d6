package integrator

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/acoustic.report/internal/axis"
	"github.com/banshee-data/acoustic.report/internal/echogram"
	"github.com/banshee-data/acoustic.report/internal/monitoring"
	"github.com/banshee-data/acoustic.report/internal/regrid"
	"github.com/banshee-data/acoustic.report/internal/timeutil"
	"github.com/banshee-data/acoustic.report/internal/units"
)

// plan holds everything the categories of one run share. It is read-only
// once prepare returns, so category workers use it without locking.
type plan struct {
	logf monitoring.Logf

	// sv is the selected channel limited to the first m samples, with
	// missing and sub-threshold values set to zero.
	sv     *mat.Dense
	claims *claimMap
	// bottom is the first seafloor sample per ping.
	bottom []int

	// shifts moves each ping's samples onto the common depth grid. Column
	// j of ping i lands in column j+shifts[i]-minShift.
	shifts   []int
	minShift int
	width    int

	gridder *regrid.Gridder
	layout  *Layout

	positives  []int
	background int
}

// categories lists the background id followed by the positive ids.
func (pl *plan) categories() []int {
	return append([]int{pl.background}, pl.positives...)
}

func prepare(in Inputs, p Params) (*plan, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	logf := monitoring.Prefixed(monitoring.OrDiscard(p.Logf), "integrator")
	e := in.Echogram

	ch, err := e.Channel(p.Frequency)
	if err != nil {
		return nil, err
	}

	n := e.Pings()
	m := echogram.RangeLimit(e.Range, p.MaxRange)
	if m < 2 {
		return nil, fmt.Errorf("%w: %d samples within %.1f m", ErrInsufficientDepth, m, p.MaxRange)
	}

	pl := &plan{logf: logf}
	pl.positives, pl.background = splitCategories(in.Predictions.Categories, p.background())
	for _, id := range in.Predictions.Categories {
		if id <= 0 && id != pl.background {
			logf("ignoring category %d, unclaimed cells belong to %d", id, pl.background)
		}
	}

	pl.sv = thresholded(ch.Sv, n, m, p.SvThreshold)
	pl.claims = claimCells(in.Predictions, pl.positives, pl.background, p.Threshold, n, m)

	pingBottom := make([]float64, n)
	pl.bottom = make([]int, n)
	if in.Bottom != nil {
		idx := in.Bottom.Indices()
		for i := 0; i < n; i++ {
			pl.bottom[i] = idx[i]
			if idx[i] < len(e.Range) {
				pingBottom[i] = e.Range[idx[i]] + e.Offset(i)
			} else {
				pingBottom[i] = math.NaN()
			}
		}
	} else {
		for i := range pl.bottom {
			pl.bottom[i] = m
			pingBottom[i] = math.NaN()
		}
	}

	vertical := verticalSource(pl, e, p.Vertical.Kind, m)

	hsrc := axis.Source{
		PingTimes: e.PingTimes,
		Distance:  e.Distance,
		Latitude:  e.Latitude,
		Longitude: e.Longitude,
	}
	ha, err := axis.Compute(p.Horizontal, hsrc)
	if err != nil {
		if errors.Is(err, axis.ErrTooFewBins) {
			return nil, fmt.Errorf("%w: %v", ErrInsufficientSpan, err)
		}
		return nil, fmt.Errorf("horizontal axis: %w", err)
	}

	vspec := p.Vertical
	if vspec.End <= 0 && p.MaxRange > 0 {
		vspec.End = p.MaxRange
	}
	va, err := axis.Compute(vspec, axis.Source{Range: vertical})
	if err != nil {
		if errors.Is(err, axis.ErrTooFewBins) {
			return nil, fmt.Errorf("%w: %v", ErrInsufficientDepth, err)
		}
		return nil, fmt.Errorf("vertical axis: %w", err)
	}

	pl.gridder, err = regrid.NewGridder(va.Target, va.Source, ha.Target, ha.Source)
	if err != nil {
		return nil, err
	}
	if k := len(pl.gridder.Horizontal.Interior()); k < 2 {
		return nil, fmt.Errorf("%w: %d of %d %s bins covered by %d pings",
			ErrInsufficientSpan, k, len(ha.Target), ha.Kind, n)
	}

	pl.layout = buildLayout(pl.gridder, ha, va, e, hsrc, pingBottom)
	pl.layout.Frequency = ch.Frequency
	pl.layout.ChannelID = ch.ID
	pl.layout.Platform = e.Platform
	pl.layout.Attributes = Attributes{
		PingAxisIntervalType:   ha.Kind.IntervalType(),
		PingAxisIntervalOrigin: string(ha.Origin),
		PingAxisIntervalUnit:   units.IntervalUnit(ha.Kind.IntervalType()),
		PingAxisInterval:       ha.Step,
		ChannelDepthType:       string(va.Kind),
		ChannelDepthInterval:   va.Step,
		Frequency:              ch.Frequency,
		Threshold:              p.Threshold,
		SvThreshold:            p.SvThreshold,
		Type:                   units.SaType,
		Unit:                   units.SaUnit,
	}

	logf("%d pings, %d samples to %d %s bins x %d %s channels, categories %v",
		n, m, len(ha.Target), ha.Kind, len(va.Target), va.Kind, pl.categories())
	return pl, nil
}

// thresholded copies the first m samples of sv, zeroing NaN values and
// values weaker than svThreshold dB.
func thresholded(sv *mat.Dense, n, m int, svThreshold *float64) *mat.Dense {
	floor := math.Inf(-1)
	if svThreshold != nil {
		floor = units.DBToLinear(*svThreshold)
	}
	out := mat.NewDense(n, m, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			v := sv.At(i, j)
			if math.IsNaN(v) || v < floor {
				continue
			}
			out.Set(i, j, v)
		}
	}
	return out
}

// verticalSource fills the depth shift of pl and returns the vertical
// source coordinates. Range axes use the sample ranges as they are. Depth
// axes move every ping down by its draft and heave, rounded to whole
// samples, on a grid with the mean sample spacing.
func verticalSource(pl *plan, e *echogram.Echogram, kind axis.Kind, m int) []float64 {
	n := e.Pings()
	pl.shifts = make([]int, n)
	pl.minShift, pl.width = 0, m
	if kind != axis.Depth {
		return append([]float64(nil), e.Range[:m]...)
	}

	dr := (e.Range[m-1] - e.Range[0]) / float64(m-1)
	maxShift := math.MinInt
	pl.minShift = math.MaxInt
	for i := 0; i < n; i++ {
		s := int(math.Round(e.Offset(i) / dr))
		pl.shifts[i] = s
		pl.minShift = min(pl.minShift, s)
		maxShift = max(maxShift, s)
	}
	pl.width = m + maxShift - pl.minShift

	out := make([]float64, pl.width)
	for k := range out {
		out[k] = e.Range[0] + float64(k+pl.minShift)*dr
	}
	return out
}

func buildLayout(g *regrid.Gridder, ha, va *axis.Axis, e *echogram.Echogram, hsrc axis.Source, pingBottom []float64) *Layout {
	nt, ns := g.Horizontal.Dims()
	l := &Layout{
		Horizontal:         ha,
		Vertical:           va,
		VerticalEdges:      g.Vertical.TargetEdges(),
		HorizontalSentinel: make([]bool, nt),
		Times:              ha.Times,
		BottomDepth:        make([]float64, nt),
	}
	for i := range l.HorizontalSentinel {
		l.HorizontalSentinel[i] = g.Horizontal.Sentinel(i)
	}
	nv, _ := g.Vertical.Dims()
	l.VerticalSentinel = make([]bool, nv)
	for i := range l.VerticalSentinel {
		l.VerticalSentinel[i] = g.Vertical.Sentinel(i)
	}

	elapsed := timeutil.ElapsedSeconds(e.PingTimes, ha.Epoch)
	at := timeutil.ElapsedSeconds(ha.Times, ha.Epoch)
	l.Latitude = interpolate(elapsed, e.Latitude, at)
	l.Longitude = interpolate(elapsed, e.Longitude, at)
	if d, err := axis.SailedDistance(hsrc); err == nil {
		l.Distance = interpolate(elapsed, d, at)
	} else {
		l.Distance = make([]float64, nt)
		fillNaN(l.Distance)
	}

	// Bottom depth per bin is the overlap-weighted mean over pings with a
	// detected bottom.
	xs := make([]float64, 0, ns)
	ws := make([]float64, 0, ns)
	for k := 0; k < nt; k++ {
		l.BottomDepth[k] = math.NaN()
		if l.HorizontalSentinel[k] {
			continue
		}
		xs, ws = xs[:0], ws[:0]
		for j := 0; j < ns; j++ {
			if w := g.Horizontal.At(k, j); w > 0 && !math.IsNaN(pingBottom[j]) {
				xs = append(xs, pingBottom[j])
				ws = append(ws, w)
			}
		}
		if len(xs) > 0 {
			l.BottomDepth[k] = stat.Mean(xs, ws)
		}
	}
	return l
}

// masked returns the samples category id owns, placed on the vertical
// source grid. Cells owned by other categories, and cells at or below the
// seafloor, are zero.
func (pl *plan) masked(id int) *mat.Dense {
	n, m := pl.sv.Dims()
	out := mat.NewDense(n, pl.width, nil)
	for i := 0; i < n; i++ {
		off := pl.shifts[i] - pl.minShift
		for j := 0; j < min(m, pl.bottom[i]); j++ {
			if pl.claims.at(i, j) != id {
				continue
			}
			out.Set(i, j+off, pl.sv.At(i, j))
		}
	}
	return out
}
