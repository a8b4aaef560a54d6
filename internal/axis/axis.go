// Package axis turns integration settings into source and target
// coordinate vectors for the resampling engine.
//
// Horizontal kinds (ping, time, distance) also yield one wall-clock
// timestamp per target bin. Per-ping scalars such as position are resampled
// onto those timestamps by interpolation, separately from the conservative
// backscatter resampling.
package axis

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"gonum.org/v1/gonum/interp"

	"github.com/banshee-data/acoustic.report/internal/timeutil"
	"github.com/banshee-data/acoustic.report/internal/units"
)

var (
	// ErrUnknownKind is returned for an integration kind that is not supported.
	ErrUnknownKind = errors.New("axis: unknown integration kind")
	// ErrUnknownOrigin is returned for a bin origin that is not supported.
	ErrUnknownOrigin = errors.New("axis: unknown bin origin")
	// ErrInvalidStep is returned when the step is not a positive number.
	ErrInvalidStep = errors.New("axis: step must be positive")
	// ErrTooFewBins is returned when the source span yields fewer than two target bins.
	ErrTooFewBins = errors.New("axis: fewer than two target bins")
	// ErrMissingSeries is returned when the data lacks a series the kind needs.
	ErrMissingSeries = errors.New("axis: required series missing")
)

// Kind selects the quantity an axis is binned on.
type Kind string

const (
	Ping     Kind = "ping"
	Time     Kind = "time"
	Distance Kind = "distance"
	Range    Kind = "range"
	Depth    Kind = "depth"
)

// ParseKind validates an integration kind. "nmi" is accepted as an alias
// for distance.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case Ping, Time, Distance, Range, Depth:
		return k, nil
	case "nmi":
		return Distance, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Horizontal reports whether k bins along the ping axis.
func (k Kind) Horizontal() bool { return k == Ping || k == Time || k == Distance }

// Vertical reports whether k bins along the beam.
func (k Kind) Vertical() bool { return k == Range || k == Depth }

// IntervalType returns the ping axis interval type recorded in reports.
func (k Kind) IntervalType() string {
	switch k {
	case Time:
		return units.IntervalTime
	case Distance:
		return units.IntervalDistance
	default:
		return units.IntervalPing
	}
}

// Origin controls where target bins sit relative to round step values.
type Origin string

const (
	// Start centers the first target bin on the axis origin.
	Start Origin = "start"
	// Middle offsets all target centers by half a step so bins straddle
	// round values.
	Middle Origin = "middle"
)

// ParseOrigin validates a bin origin. The empty string means Start.
func ParseOrigin(s string) (Origin, error) {
	switch o := Origin(strings.ToLower(strings.TrimSpace(s))); o {
	case "", Start:
		return Start, nil
	case Middle:
		return Middle, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownOrigin, s)
	}
}

// Spec describes one axis of the report grid.
type Spec struct {
	Kind   Kind
	Step   float64
	Origin Origin

	// Start and End bound vertical axes. End <= 0 means the last sample.
	Start float64
	End   float64

	// Anchor is the time of a bin center of an earlier run, so appended
	// ping and time axes continue its grid. Zero means no anchor.
	Anchor time.Time
	// AnchorDistance does the same for distance axes.
	AnchorDistance *float64
}

// Validate checks the kind, origin and step.
func (s Spec) Validate() error {
	if _, err := ParseKind(string(s.Kind)); err != nil {
		return err
	}
	if _, err := ParseOrigin(string(s.Origin)); err != nil {
		return err
	}
	if !(s.Step > 0) || math.IsInf(s.Step, 1) {
		return fmt.Errorf("%w: got %v", ErrInvalidStep, s.Step)
	}
	return nil
}

// Source is the per-ping and per-sample data an axis is derived from.
type Source struct {
	PingTimes []time.Time
	// Distance is the sailed log distance in nautical miles. When empty it
	// is derived from Latitude and Longitude.
	Distance  []float64
	Latitude  []float64
	Longitude []float64
	// Range holds the vertical sample centers in meters.
	Range []float64
}

// Axis holds the coordinate vectors for one dimension.
type Axis struct {
	Kind   Kind
	Origin Origin
	Step   float64

	Source []float64
	Target []float64

	// Epoch and Times are set for horizontal axes only.
	Epoch time.Time
	Times []time.Time
}

// Compute derives the source and target coordinates for spec.
func Compute(spec Spec, src Source) (*Axis, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	kind, _ := ParseKind(string(spec.Kind))
	origin, _ := ParseOrigin(string(spec.Origin))

	a := &Axis{Kind: kind, Origin: origin, Step: spec.Step}
	var start, end float64
	anchored := false

	switch kind {
	case Ping:
		n := len(src.PingTimes)
		if n < 2 {
			return nil, fmt.Errorf("%w: %d pings", ErrTooFewBins, n)
		}
		a.Source = make([]float64, n)
		for i := range a.Source {
			a.Source[i] = float64(i)
		}
		a.Epoch = src.PingTimes[0]
		start, end = 0, float64(n)
		if !spec.Anchor.IsZero() {
			start, anchored = pingIndexAt(src.PingTimes, spec.Anchor), true
		}

	case Time:
		if len(src.PingTimes) < 2 {
			return nil, fmt.Errorf("%w: %d pings", ErrTooFewBins, len(src.PingTimes))
		}
		a.Epoch = src.PingTimes[0]
		if !spec.Anchor.IsZero() {
			a.Epoch, anchored = spec.Anchor, true
		}
		a.Source = strictlyIncreasing(timeutil.ElapsedSeconds(src.PingTimes, a.Epoch), 1e-6)
		end = a.Source[len(a.Source)-1]

	case Distance:
		if len(src.PingTimes) < 2 {
			return nil, fmt.Errorf("%w: %d pings", ErrTooFewBins, len(src.PingTimes))
		}
		d, err := SailedDistance(src)
		if err != nil {
			return nil, err
		}
		a.Source = strictlyIncreasing(d, 1e-9)
		a.Epoch = src.PingTimes[0]
		start = a.Source[0]
		if spec.AnchorDistance != nil {
			start, anchored = *spec.AnchorDistance, true
		}
		end = a.Source[len(a.Source)-1]

	case Range, Depth:
		if len(src.Range) < 2 {
			return nil, fmt.Errorf("%w: %d range samples", ErrTooFewBins, len(src.Range))
		}
		a.Source = append([]float64(nil), src.Range...)
		start = spec.Start
		end = a.Source[len(a.Source)-1]
		if spec.End > 0 && spec.End < end {
			end = spec.End
		}
	}

	offset := 0.0
	if origin == Middle {
		offset = -spec.Step / 2
		if anchored {
			// The anchor is a bin center, not the grid origin.
			start -= offset
		}
	}
	a.Target = arange(start, end, spec.Step, offset)
	if len(a.Target) < 2 {
		return nil, fmt.Errorf("%w: %s span %.6g..%.6g with step %.6g", ErrTooFewBins, kind, start, end, spec.Step)
	}

	if kind.Horizontal() {
		times, err := a.targetTimes(src.PingTimes)
		if err != nil {
			return nil, err
		}
		a.Times = times
	}
	return a, nil
}

// pingIndexAt returns the fractional ping index of t, interpolated between
// the pings around it and extrapolated from the outermost pair.
func pingIndexAt(times []time.Time, t time.Time) float64 {
	n := len(times)
	i := sort.Search(n, func(k int) bool { return times[k].After(t) }) - 1
	i = max(0, min(i, n-2))
	d := times[i+1].Sub(times[i]).Seconds()
	if d <= 0 {
		return float64(i)
	}
	return float64(i) + t.Sub(times[i]).Seconds()/d
}

// targetTimes maps every target coordinate back to a wall-clock time by
// linear interpolation over (source coordinate, elapsed seconds).
func (a *Axis) targetTimes(pings []time.Time) ([]time.Time, error) {
	times := make([]time.Time, len(a.Target))
	if a.Kind == Time {
		for i, c := range a.Target {
			times[i] = timeutil.AtSeconds(a.Epoch, c)
		}
		return times, nil
	}

	var pl interp.PiecewiseLinear
	if err := pl.Fit(a.Source, timeutil.ElapsedSeconds(pings, a.Epoch)); err != nil {
		return nil, fmt.Errorf("%s target times: %w", a.Kind, err)
	}
	for i, c := range a.Target {
		times[i] = timeutil.AtSeconds(a.Epoch, pl.Predict(c))
	}
	return times, nil
}

// arange returns start+offset, start+step+offset, ... for every multiple
// of step below end.
func arange(start, end, step, offset float64) []float64 {
	if !(end > start) {
		return nil
	}
	n := int(math.Ceil((end - start) / step))
	out := make([]float64, 0, n)
	for k := 0; k < n; k++ {
		v := start + float64(k)*step
		if v >= end {
			break
		}
		out = append(out, v+offset)
	}
	return out
}

// strictlyIncreasing nudges repeated or backwards values forward by eps so
// the result can be used as bin centers. Stationary pings end up with
// near-zero width and contribute almost nothing to distance or time bins.
func strictlyIncreasing(xs []float64, eps float64) []float64 {
	out := append([]float64(nil), xs...)
	for i := 1; i < len(out); i++ {
		if out[i] <= out[i-1] {
			out[i] = out[i-1] + eps
		}
	}
	return out
}

// SailedDistance returns the log distance in nautical miles, falling back
// to the cumulative great-circle distance between consecutive positions.
func SailedDistance(src Source) ([]float64, error) {
	n := len(src.PingTimes)
	if len(src.Distance) == n && !anyNaN(src.Distance) {
		return src.Distance, nil
	}
	if len(src.Latitude) != n || len(src.Longitude) != n {
		return nil, fmt.Errorf("%w: distance needs a log distance or positions for %d pings", ErrMissingSeries, n)
	}

	out := make([]float64, n)
	var prev orb.Point
	havePrev := false
	for i := 0; i < n; i++ {
		if i > 0 {
			out[i] = out[i-1]
		}
		p := orb.Point{src.Longitude[i], src.Latitude[i]}
		if math.IsNaN(p[0]) || math.IsNaN(p[1]) {
			continue
		}
		if havePrev {
			out[i] += units.MetersToNMI(geo.DistanceHaversine(prev, p))
		}
		prev, havePrev = p, true
	}
	return out, nil
}

func anyNaN(xs []float64) bool {
	for _, v := range xs {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
