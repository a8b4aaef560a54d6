// Package echogram holds the gridded acoustic inputs of a report run: the
// Sv echogram, the classification predictions and the optional bottom
// product, all indexed by (ping, range sample).
package echogram

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrFrequencyNotFound is returned when a frequency has no channel.
	ErrFrequencyNotFound = errors.New("echogram: frequency not found")
	// ErrMisaligned is returned when two products do not share a grid.
	ErrMisaligned = errors.New("echogram: products are not aligned")
	// ErrInvalid is returned by Validate for inconsistent dimensions.
	ErrInvalid = errors.New("echogram: invalid dimensions")
)

// Channel is one transducer frequency with its Sv samples. Sv is linear,
// shaped [pings, range samples], and may contain NaN for missing samples.
type Channel struct {
	Frequency float64
	ID        string
	Sv        *mat.Dense
}

// Echogram is the acoustic grid of one survey span.
type Echogram struct {
	PingTimes []time.Time
	// Range holds the sample centers in meters from the transducer.
	Range    []float64
	Channels []Channel

	Latitude  []float64
	Longitude []float64
	// Distance is the sailed log distance in nautical miles. Optional.
	Distance []float64
	// Draft and Heave are transducer offsets in meters. Optional.
	Draft []float64
	Heave []float64

	Platform string
}

// Pings returns the number of pings.
func (e *Echogram) Pings() int { return len(e.PingTimes) }

// Channel returns the channel recorded at freq.
func (e *Echogram) Channel(freq float64) (*Channel, error) {
	for i := range e.Channels {
		if e.Channels[i].Frequency == freq {
			return &e.Channels[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %g Hz", ErrFrequencyNotFound, freq)
}

// Frequencies lists the channel frequencies in ascending order.
func (e *Echogram) Frequencies() []float64 {
	out := make([]float64, len(e.Channels))
	for i, c := range e.Channels {
		out[i] = c.Frequency
	}
	sort.Float64s(out)
	return out
}

// Offset returns draft plus heave for ping i. Missing series count as zero.
func (e *Echogram) Offset(i int) float64 {
	var off float64
	if i < len(e.Draft) && e.Draft[i] == e.Draft[i] {
		off += e.Draft[i]
	}
	if i < len(e.Heave) && e.Heave[i] == e.Heave[i] {
		off += e.Heave[i]
	}
	return off
}

// LastTime returns the time of the final ping, or the zero time when empty.
func (e *Echogram) LastTime() time.Time {
	if len(e.PingTimes) == 0 {
		return time.Time{}
	}
	return e.PingTimes[len(e.PingTimes)-1]
}

// Validate checks that every series matches the ping and range counts.
func (e *Echogram) Validate() error {
	n, m := len(e.PingTimes), len(e.Range)
	if n == 0 || m == 0 {
		return fmt.Errorf("%w: %d pings, %d range samples", ErrInvalid, n, m)
	}
	for i := 1; i < n; i++ {
		if e.PingTimes[i].Before(e.PingTimes[i-1]) {
			return fmt.Errorf("%w: ping times go backwards at %d", ErrInvalid, i)
		}
	}
	for i := 1; i < m; i++ {
		if !(e.Range[i] > e.Range[i-1]) {
			return fmt.Errorf("%w: range not increasing at %d", ErrInvalid, i)
		}
	}
	for _, c := range e.Channels {
		if c.Sv == nil {
			return fmt.Errorf("%w: channel %g Hz has no samples", ErrInvalid, c.Frequency)
		}
		if r, cols := c.Sv.Dims(); r != n || cols != m {
			return fmt.Errorf("%w: channel %g Hz is %dx%d, want %dx%d", ErrInvalid, c.Frequency, r, cols, n, m)
		}
	}
	series := map[string][]float64{
		"latitude": e.Latitude, "longitude": e.Longitude, "distance": e.Distance,
		"draft": e.Draft, "heave": e.Heave,
	}
	for name, s := range series {
		if s != nil && len(s) != n {
			return fmt.Errorf("%w: %s has %d values for %d pings", ErrInvalid, name, len(s), n)
		}
	}
	return nil
}

// Slice returns pings [i0, i1) and range samples [0, m).
func (e *Echogram) Slice(i0, i1, m int) *Echogram {
	out := &Echogram{
		PingTimes: e.PingTimes[i0:i1],
		Range:     e.Range[:m],
		Latitude:  sliceSeries(e.Latitude, i0, i1),
		Longitude: sliceSeries(e.Longitude, i0, i1),
		Distance:  sliceSeries(e.Distance, i0, i1),
		Draft:     sliceSeries(e.Draft, i0, i1),
		Heave:     sliceSeries(e.Heave, i0, i1),
		Platform:  e.Platform,
	}
	out.Channels = make([]Channel, len(e.Channels))
	for k, c := range e.Channels {
		out.Channels[k] = Channel{Frequency: c.Frequency, ID: c.ID, Sv: sliceDense(c.Sv, i0, i1, m)}
	}
	return out
}

// Predictions holds per-category classification probabilities on the
// echogram grid. Negative category ids denote background.
type Predictions struct {
	PingTimes  []time.Time
	Range      []float64
	Categories []int
	// Masks maps a category id to a [pings, range samples] probability grid.
	Masks map[int]*mat.Dense
}

// Slice returns pings [i0, i1) and range samples [0, m).
func (p *Predictions) Slice(i0, i1, m int) *Predictions {
	out := &Predictions{
		PingTimes:  p.PingTimes[i0:i1],
		Range:      p.Range[:m],
		Categories: append([]int(nil), p.Categories...),
		Masks:      make(map[int]*mat.Dense, len(p.Masks)),
	}
	for id, g := range p.Masks {
		out.Masks[id] = sliceDense(g, i0, i1, m)
	}
	return out
}

// Bottom marks seafloor and sub-seafloor samples with 1.
type Bottom struct {
	PingTimes []time.Time
	Range     []float64
	Mask      *mat.Dense
}

// Indices returns, for every ping, the first range index flagged as
// bottom. Pings without bottom get len(Range).
func (b *Bottom) Indices() []int {
	r, c := b.Mask.Dims()
	out := make([]int, r)
	for i := 0; i < r; i++ {
		out[i] = c
		for j := 0; j < c; j++ {
			if b.Mask.At(i, j) == 1 {
				out[i] = j
				break
			}
		}
	}
	return out
}

// Slice returns pings [i0, i1) and range samples [0, m).
func (b *Bottom) Slice(i0, i1, m int) *Bottom {
	return &Bottom{
		PingTimes: b.PingTimes[i0:i1],
		Range:     b.Range[:m],
		Mask:      sliceDense(b.Mask, i0, i1, m),
	}
}

// CheckAligned verifies that other shares the ping times and range axis of e.
func (e *Echogram) CheckAligned(pingTimes []time.Time, rng []float64) error {
	if len(pingTimes) != len(e.PingTimes) {
		return fmt.Errorf("%w: %d pings, want %d", ErrMisaligned, len(pingTimes), len(e.PingTimes))
	}
	if len(rng) != len(e.Range) {
		return fmt.Errorf("%w: %d range samples, want %d", ErrMisaligned, len(rng), len(e.Range))
	}
	for i := range pingTimes {
		if !pingTimes[i].Equal(e.PingTimes[i]) {
			return fmt.Errorf("%w: ping %d at %s, want %s", ErrMisaligned, i,
				pingTimes[i].Format(time.RFC3339Nano), e.PingTimes[i].Format(time.RFC3339Nano))
		}
	}
	return nil
}

// SpanIndices returns the half-open ping interval [i0, i1) with times in
// [from, to]. A zero from or to leaves that side open.
func SpanIndices(times []time.Time, from, to time.Time) (int, int) {
	i0 := 0
	if !from.IsZero() {
		i0 = sort.Search(len(times), func(i int) bool { return !times[i].Before(from) })
	}
	i1 := len(times)
	if !to.IsZero() {
		i1 = sort.Search(len(times), func(i int) bool { return times[i].After(to) })
	}
	if i1 < i0 {
		i1 = i0
	}
	return i0, i1
}

// RangeLimit returns the number of leading samples at or below maxRange.
// A non-positive maxRange keeps everything.
func RangeLimit(rng []float64, maxRange float64) int {
	if maxRange <= 0 {
		return len(rng)
	}
	return sort.Search(len(rng), func(i int) bool { return rng[i] > maxRange })
}

func sliceSeries(s []float64, i0, i1 int) []float64 {
	if s == nil {
		return nil
	}
	return s[i0:i1]
}

// sliceDense copies rows [i0, i1) and columns [0, m). Gonum cannot hold an
// empty matrix, so an empty selection returns nil.
func sliceDense(g *mat.Dense, i0, i1, m int) *mat.Dense {
	if g == nil || i1 <= i0 || m <= 0 {
		return nil
	}
	return mat.DenseCopyOf(g.Slice(i0, i1, 0, m))
}
