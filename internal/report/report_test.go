package report

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/acoustic.report/internal/axis"
	"github.com/banshee-data/acoustic.report/internal/echogram"
	"github.com/banshee-data/acoustic.report/internal/integrator"
)

var t0 = time.Date(2019, 5, 11, 6, 0, 0, 0, time.UTC)

func testInputs() integrator.Inputs {
	cfg := echogram.DefaultSyntheticConfig()
	cfg.Pings = 40
	cfg.Samples = 60
	cfg.SampleSpacing = 2
	cfg.BottomDepth = 90
	e, p, b := echogram.Synthetic(cfg)
	return integrator.Inputs{Echogram: e, Predictions: p, Bottom: b}
}

func testParams() integrator.Params {
	return integrator.Params{
		Frequency:  38000,
		Threshold:  0.5,
		Vertical:   axis.Spec{Kind: axis.Range, Step: 10},
		Horizontal: axis.Spec{Kind: axis.Time, Step: 5},
	}
}

func TestPlanRun(t *testing.T) {
	end := t0.Add(time.Hour)

	p := PlanRun(nil, t0, end)
	assert.False(t, p.Append)
	assert.Equal(t, "new", p.Mode())
	assert.True(t, p.From.Equal(t0))
	assert.True(t, p.To.Equal(end))
	assert.Nil(t, p.AnchorDistance)

	last := t0.Add(20 * time.Minute)
	p = PlanRun(&Prior{LastTime: last, LastDistance: 3.5}, t0, end)
	assert.True(t, p.Append)
	assert.Equal(t, "append", p.Mode())
	assert.True(t, p.From.Equal(last))
	assert.True(t, p.AnchorTime.Equal(last))
	require.NotNil(t, p.AnchorDistance)
	assert.Equal(t, 3.5, *p.AnchorDistance)

	p = PlanRun(&Prior{LastTime: end, LastDistance: math.NaN()}, t0, end)
	assert.True(t, p.Empty())
	assert.Equal(t, "empty", p.Mode())
	assert.Nil(t, p.AnchorDistance)
}

func TestPlan_Anchor(t *testing.T) {
	plan := PlanRun(&Prior{LastTime: t0, LastDistance: 2}, t0, t0.Add(time.Hour))

	for _, origin := range []axis.Origin{axis.Start, axis.Middle} {
		for _, kind := range []axis.Kind{axis.Ping, axis.Time} {
			params := testParams()
			params.Horizontal = axis.Spec{Kind: kind, Step: 5, Origin: origin}
			plan.Anchor(&params)
			assert.True(t, params.Horizontal.Anchor.Equal(t0), "%s/%s anchor %v", kind, origin, params.Horizontal.Anchor)
			assert.Nil(t, params.Horizontal.AnchorDistance)
		}
	}

	params := testParams()
	params.Horizontal = axis.Spec{Kind: axis.Distance, Step: 0.1, Origin: axis.Middle}
	plan.Anchor(&params)
	require.NotNil(t, params.Horizontal.AnchorDistance)
	assert.Equal(t, 2.0, *params.Horizontal.AnchorDistance)
	assert.True(t, params.Horizontal.Anchor.IsZero())

	params = testParams()
	PlanRun(nil, t0, t0.Add(time.Hour)).Anchor(&params)
	assert.True(t, params.Horizontal.Anchor.IsZero())
}

func TestPlan_Clip(t *testing.T) {
	in := testInputs()
	times := in.Echogram.PingTimes

	plan := PlanRun(&Prior{LastTime: times[30]}, times[0], times[39])
	clipped, ok := plan.Clip(in)
	require.True(t, ok)
	assert.Equal(t, 10, clipped.Echogram.Pings())
	assert.True(t, clipped.Echogram.PingTimes[0].Equal(times[30]))
	require.NoError(t, clipped.Validate())

	// A bin center between two pings keeps the ping before it.
	plan = PlanRun(&Prior{LastTime: times[30].Add(500 * time.Millisecond)}, times[0], times[39])
	clipped, ok = plan.Clip(in)
	require.True(t, ok)
	assert.Equal(t, 10, clipped.Echogram.Pings())
	assert.True(t, clipped.Echogram.PingTimes[0].Equal(times[30]))

	plan = PlanRun(&Prior{LastTime: times[39].Add(time.Minute)}, times[0], times[39])
	_, ok = plan.Clip(in)
	assert.False(t, ok)
}

func testProduct(t *testing.T) *Product {
	t.Helper()
	rg, err := integrator.Run(context.Background(), testInputs(), testParams())
	require.NoError(t, err)
	return Finalize(rg, Meta{LocalID: "S2019847", Software: "reportgen test"})
}

func TestFinalize(t *testing.T) {
	p := testProduct(t)
	nc, nb, nch := p.Dims()
	assert.Equal(t, 3, nc)

	a := p.Attributes
	assert.Equal(t, "time", a.PingAxisIntervalType)
	assert.Equal(t, "s", a.PingAxisIntervalUnit)
	assert.Equal(t, 5.0, a.PingAxisInterval)
	assert.Equal(t, "synthetic", a.Platform)
	assert.Equal(t, "S2019847", a.LocalID)
	assert.Equal(t, "C", a.Type)
	assert.Equal(t, "m2nmi-2", a.Unit)

	rows := p.Rows()
	require.Len(t, rows, nc*nb*nch)

	first := rows[0]
	assert.Equal(t, -1, first.SaCategory)
	assert.Equal(t, OriginStart, first.Origin)
	assert.Equal(t, OriginEnd, first.Origin2)
	assert.Equal(t, p.Latitude[1], first.Latitude2)
	assert.Equal(t, p.DepthUpper[0], first.ChannelDepthUpper)
	assert.Equal(t, p.DepthLower[0], first.ChannelDepthLower)

	// Last bin of the first category has no end position.
	lastBin := rows[nb*nch-1]
	assert.True(t, lastBin.Time.Equal(p.Times[nb-1]))
	assert.True(t, math.IsNaN(lastBin.Latitude2))
	assert.True(t, math.IsNaN(lastBin.Longitude2))

	for _, r := range rows {
		if math.IsNaN(r.Value) {
			assert.Equal(t, Invalid, r.Validity)
		} else {
			assert.Equal(t, Valid, r.Validity)
		}
	}
}

func TestProduct_LastComplete(t *testing.T) {
	p := testProduct(t)
	prior, ok := p.LastComplete()
	require.True(t, ok)
	assert.True(t, prior.LastTime.Equal(p.Times[len(p.Times)-1]))

	// Blank out the last bin; the one before becomes the last complete bin.
	nb := len(p.Times)
	for c := range p.Values {
		_, nch := p.Values[c].Dims()
		for j := 0; j < nch; j++ {
			p.Values[c].Set(nb-1, j, math.NaN())
		}
	}
	prior, ok = p.LastComplete()
	require.True(t, ok)
	assert.True(t, prior.LastTime.Equal(p.Times[nb-2]))
	assert.Equal(t, p.Distance[nb-2], prior.LastDistance)
}

func TestAttributes_Pairs(t *testing.T) {
	sv := -82.5
	a := Attributes{
		PingAxisIntervalType: "distance", PingAxisIntervalOrigin: "middle",
		PingAxisIntervalUnit: "nmi", PingAxisInterval: 0.1, ChannelDepthType: "depth",
		Frequency: 38000, ChannelID: "GPT 38", Platform: "G.O.Sars", LocalID: "S2019847",
		Type: "C", Unit: "m2nmi-2", Threshold: 0.8, SvThreshold: &sv, Software: "reportgen",
	}
	pairs := a.Pairs()
	assert.Equal(t, "PingAxisIntervalType", pairs[0][0])
	assert.Equal(t, [2]string{"PingAxisInterval", "0.1"}, pairs[3])

	if diff := cmp.Diff(a, ParseAttributes(pairs)); diff != "" {
		t.Errorf("attributes mismatch (-want +got):\n%s", diff)
	}
	assert.Nil(t, ParseAttributes([][2]string{{"SvThreshold", ""}}).SvThreshold)
}

func closeOrBothNaN(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return math.Abs(a-b) <= 1e-9*math.Max(math.Abs(a), math.Abs(b))+1e-20
}

func assertSameBins(t *testing.T, want, got *Product) int {
	t.Helper()
	index := make(map[int64]int, len(want.Times))
	for i, tm := range want.Times {
		index[tm.UnixMilli()] = i
	}
	shared := 0
	for i, tm := range got.Times {
		wi, ok := index[tm.UnixMilli()]
		if !ok || !got.BinValid(i) {
			continue
		}
		shared++
		for c := range got.Categories {
			require.Equal(t, want.Categories[c], got.Categories[c])
			_, nch := got.Values[c].Dims()
			for j := 0; j < nch; j++ {
				w, g := want.Values[c].At(wi, j), got.Values[c].At(i, j)
				assert.True(t, closeOrBothNaN(w, g), "%s category %d channel %d: %g != %g",
					tm.Format(time.RFC3339), got.Categories[c], j, w, g)
			}
		}
	}
	return shared
}

func TestAppend_ContinuesGrid(t *testing.T) {
	// Five pings per bin: the synthetic survey pings once a second at
	// 10 knots.
	fivePings := 5 * 10.0 / 3600
	tests := []struct {
		kind axis.Kind
		step float64
	}{
		{axis.Ping, 5},
		{axis.Time, 5},
		{axis.Distance, fivePings},
	}
	for _, tt := range tests {
		for _, origin := range []axis.Origin{axis.Start, axis.Middle} {
			t.Run(string(tt.kind)+"/"+string(origin), func(t *testing.T) {
				params := testParams()
				params.Horizontal = axis.Spec{Kind: tt.kind, Step: tt.step, Origin: origin}
				assertAppendMatchesWhole(t, params)
			})
		}
	}
}

func assertAppendMatchesWhole(t *testing.T, params integrator.Params) {
	t.Helper()
	in := testInputs()
	times := in.Echogram.PingTimes
	ctx := context.Background()

	full, err := integrator.Run(ctx, in, params)
	require.NoError(t, err)
	whole := Finalize(full, Meta{})

	// First run sees the first 25 pings only.
	firstIn, ok := PlanRun(nil, times[0], times[24]).Clip(in)
	require.True(t, ok)
	rg, err := integrator.Run(ctx, firstIn, params)
	require.NoError(t, err)
	first := Finalize(rg, Meta{})
	assert.Equal(t, len(first.Times), assertSameBins(t, whole, first))

	prior, ok := first.LastComplete()
	require.True(t, ok)

	plan := PlanRun(prior, times[0], times[39])
	require.True(t, plan.Append)
	secondIn, ok := plan.Clip(in)
	require.True(t, ok)
	secondParams := params
	plan.Anchor(&secondParams)
	rg, err = integrator.Run(ctx, secondIn, secondParams)
	require.NoError(t, err)
	second := Finalize(rg, Meta{})

	assert.Equal(t, 5*time.Second, second.Times[0].Sub(prior.LastTime))
	assert.Equal(t, len(second.Times), assertSameBins(t, whole, second))
}

func TestRows_Empty(t *testing.T) {
	p := &Product{Categories: []int{1}, Values: []*mat.Dense{mat.NewDense(1, 1, []float64{2})},
		Times: []time.Time{t0}, Latitude: []float64{1}, Longitude: []float64{2},
		Distance: []float64{0}, BottomDepth: []float64{math.NaN()},
		DepthUpper: []float64{0}, DepthLower: []float64{10}}
	rows := p.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, 2.0, rows[0].Value)
	assert.True(t, math.IsNaN(rows[0].Latitude2))
}
