package integrator

import (
	"math"
	"time"

	"gonum.org/v1/gonum/interp"

	"github.com/banshee-data/acoustic.report/internal/axis"
)

// Attributes describe the report grid the way the output product records
// it.
type Attributes struct {
	PingAxisIntervalType   string
	PingAxisIntervalOrigin string
	PingAxisIntervalUnit   string
	PingAxisInterval       float64

	ChannelDepthType     string
	ChannelDepthInterval float64

	Frequency   float64
	Threshold   float64
	SvThreshold *float64

	Type string
	Unit string
}

// Layout is the grid geometry every category of one run shares. All
// per-bin slices have one entry per horizontal target bin.
type Layout struct {
	Frequency float64
	ChannelID string
	Platform  string

	Horizontal *axis.Axis
	Vertical   *axis.Axis
	// VerticalEdges has one entry more than Vertical.Target.
	VerticalEdges []float64

	// HorizontalSentinel and VerticalSentinel flag target bins that fall
	// outside the source coverage. Their values are NaN.
	HorizontalSentinel []bool
	VerticalSentinel   []bool

	Times       []time.Time
	Latitude    []float64
	Longitude   []float64
	Distance    []float64
	BottomDepth []float64

	Attributes Attributes
}

func (l *Layout) sameGrid(o *Layout) bool {
	if l == o {
		return true
	}
	if len(l.Times) != len(o.Times) || len(l.VerticalEdges) != len(o.VerticalEdges) {
		return false
	}
	for i := range l.Times {
		if !l.Times[i].Equal(o.Times[i]) {
			return false
		}
	}
	for i := range l.VerticalEdges {
		if l.VerticalEdges[i] != o.VerticalEdges[i] {
			return false
		}
	}
	return true
}

// interpolate resamples the per-ping series ys (sampled at xs) onto at.
// NaN samples and non-increasing xs are skipped. Outside the sampled span
// the nearest value is held.
func interpolate(xs, ys, at []float64) []float64 {
	out := make([]float64, len(at))
	if len(ys) != len(xs) {
		fillNaN(out)
		return out
	}

	px := make([]float64, 0, len(xs))
	py := make([]float64, 0, len(xs))
	for i, y := range ys {
		if math.IsNaN(y) || math.IsNaN(xs[i]) {
			continue
		}
		if len(px) > 0 && xs[i] <= px[len(px)-1] {
			continue
		}
		px = append(px, xs[i])
		py = append(py, y)
	}

	switch len(px) {
	case 0:
		fillNaN(out)
	case 1:
		for i := range out {
			out[i] = py[0]
		}
	default:
		var pl interp.PiecewiseLinear
		if err := pl.Fit(px, py); err != nil {
			fillNaN(out)
			return out
		}
		for i, x := range at {
			out[i] = pl.Predict(x)
		}
	}
	return out
}

func fillNaN(xs []float64) {
	for i := range xs {
		xs[i] = math.NaN()
	}
}
