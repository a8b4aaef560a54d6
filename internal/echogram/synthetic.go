package echogram

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/mat"
)

// SyntheticConfig describes a generated survey span.
type SyntheticConfig struct {
	Start         time.Time
	Pings         int
	PingInterval  time.Duration
	Samples       int
	SampleSpacing float64 // meters

	Frequencies []float64
	Categories  []int

	SpeedKnots float64
	Latitude   float64
	Longitude  float64

	BottomDepth    float64 // meters below the surface
	Draft          float64
	HeaveAmplitude float64

	Seed int64
}

// DefaultSyntheticConfig returns a short 38 kHz-centred survey with two
// classified schools over a sloping seafloor.
func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		Start:          time.Date(2019, 5, 11, 6, 0, 0, 0, time.UTC),
		Pings:          600,
		PingInterval:   time.Second,
		Samples:        500,
		SampleSpacing:  0.2,
		Frequencies:    []float64{18000, 38000, 200000},
		Categories:     []int{1, 27},
		SpeedKnots:     10,
		Latitude:       58.5,
		Longitude:      5.3,
		BottomDepth:    80,
		Draft:          6,
		HeaveAmplitude: 0.5,
		Seed:           1,
	}
}

const (
	svBackground = 1e-9
	svSchool     = 1e-5
	svSeafloor   = 1e-1
)

// Synthetic generates an echogram, matching predictions and a bottom
// product. Output is deterministic for a given Seed.
func Synthetic(cfg SyntheticConfig) (*Echogram, *Predictions, *Bottom) {
	rng := rand.New(rand.NewSource(cfg.Seed))
	n, m := cfg.Pings, cfg.Samples

	e := &Echogram{
		PingTimes: make([]time.Time, n),
		Range:     make([]float64, m),
		Latitude:  make([]float64, n),
		Longitude: make([]float64, n),
		Distance:  make([]float64, n),
		Draft:     make([]float64, n),
		Heave:     make([]float64, n),
		Platform:  "synthetic",
	}
	for j := range e.Range {
		e.Range[j] = (float64(j) + 0.5) * cfg.SampleSpacing
	}

	nmiPerPing := cfg.SpeedKnots * cfg.PingInterval.Hours()
	bottomIdx := make([]int, n)
	for i := 0; i < n; i++ {
		e.PingTimes[i] = cfg.Start.Add(time.Duration(i) * cfg.PingInterval)
		e.Distance[i] = float64(i) * nmiPerPing
		e.Latitude[i] = cfg.Latitude + e.Distance[i]/60
		e.Longitude[i] = cfg.Longitude
		e.Draft[i] = cfg.Draft
		e.Heave[i] = cfg.HeaveAmplitude * math.Sin(2*math.Pi*float64(i)/7)

		depth := cfg.BottomDepth + 8*math.Sin(2*math.Pi*float64(i)/float64(n))
		bottomRange := depth - e.Offset(i)
		bottomIdx[i] = int(math.Min(float64(m), math.Max(0, math.Floor(bottomRange/cfg.SampleSpacing))))
	}

	type school struct {
		ping, sample, halfPings, halfSamples float64
	}
	schools := make(map[int]school, len(cfg.Categories))
	for k, id := range cfg.Categories {
		frac := float64(k+1) / float64(len(cfg.Categories)+1)
		schools[id] = school{
			ping:        frac * float64(n),
			sample:      (0.3 + 0.3*frac) * float64(m),
			halfPings:   float64(n) / 10,
			halfSamples: float64(m) / 12,
		}
	}
	inside := func(s school, i, j int) bool {
		dp := (float64(i) - s.ping) / s.halfPings
		ds := (float64(j) - s.sample) / s.halfSamples
		return dp*dp+ds*ds <= 1
	}

	for _, f := range cfg.Frequencies {
		sv := mat.NewDense(n, m, nil)
		gain := 38000 / f
		for i := 0; i < n; i++ {
			for j := 0; j < m; j++ {
				v := svBackground * (0.5 + rng.Float64())
				for _, id := range cfg.Categories {
					if inside(schools[id], i, j) {
						v += svSchool * gain * (0.5 + rng.Float64())
					}
				}
				if j >= bottomIdx[i] {
					v = svSeafloor
				}
				sv.Set(i, j, v)
			}
		}
		e.Channels = append(e.Channels, Channel{
			Frequency: f,
			ID:        fmt.Sprintf("GPT %3.0f kHz 009072%04d", f/1000, int(f/1000)),
			Sv:        sv,
		})
	}

	p := &Predictions{
		PingTimes:  e.PingTimes,
		Range:      e.Range,
		Categories: append([]int(nil), cfg.Categories...),
		Masks:      make(map[int]*mat.Dense, len(cfg.Categories)),
	}
	for _, id := range cfg.Categories {
		g := mat.NewDense(n, m, nil)
		s := schools[id]
		for i := 0; i < n; i++ {
			for j := 0; j < m; j++ {
				if inside(s, i, j) {
					g.Set(i, j, 0.8+0.2*rng.Float64())
				} else {
					g.Set(i, j, 0.1*rng.Float64())
				}
			}
		}
		p.Masks[id] = g
	}

	b := &Bottom{PingTimes: e.PingTimes, Range: e.Range, Mask: mat.NewDense(n, m, nil)}
	for i := 0; i < n; i++ {
		for j := bottomIdx[i]; j < m; j++ {
			b.Mask.Set(i, j, 1)
		}
	}

	return e, p, b
}
