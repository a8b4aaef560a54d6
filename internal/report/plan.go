// Package report decides which source span a run covers and turns the
// integrated grid into the row-oriented acoustic report product.
package report

import (
	"math"
	"sort"
	"time"

	"github.com/banshee-data/acoustic.report/internal/axis"
	"github.com/banshee-data/acoustic.report/internal/integrator"
)

// Prior summarizes a report persisted by an earlier run.
type Prior struct {
	// LastTime is the time of the last complete ping bin.
	LastTime time.Time
	// LastDistance is the sailed distance of that bin in nautical miles, or
	// NaN when unknown.
	LastDistance float64
}

// Plan is the span one run integrates.
type Plan struct {
	Append bool
	From   time.Time
	To     time.Time

	// AnchorTime and AnchorDistance pin the horizontal grid of an appended
	// run to the last complete bin of the prior report. Its first bin then
	// coincides with that bin and is trimmed, so the grid continues without
	// a seam.
	AnchorTime     time.Time
	AnchorDistance *float64
}

// PlanRun returns the span to integrate. Without a prior report the whole
// source is used. With one, the span starts at the prior's last complete
// bin and ends at the end of the source; re-processing that boundary is
// harmless because storage is keyed by bin time.
func PlanRun(prior *Prior, srcStart, srcEnd time.Time) Plan {
	if prior == nil || prior.LastTime.IsZero() {
		return Plan{From: srcStart, To: srcEnd}
	}
	p := Plan{
		Append:     true,
		From:       prior.LastTime,
		To:         srcEnd,
		AnchorTime: prior.LastTime,
	}
	if !math.IsNaN(prior.LastDistance) {
		d := prior.LastDistance
		p.AnchorDistance = &d
	}
	return p
}

// Empty reports whether the source holds nothing past the prior report.
func (p Plan) Empty() bool {
	return !p.To.After(p.From)
}

// Mode names the plan for logs and metrics.
func (p Plan) Mode() string {
	switch {
	case p.Append && p.Empty():
		return "empty"
	case p.Append:
		return "append"
	default:
		return "new"
	}
}

// Clip slices the inputs to the planned span. An appended span also keeps
// the last ping at or before its start, so the anchor bin center falls
// between two source pings. It reports false when no ping falls inside the
// span.
func (p Plan) Clip(in integrator.Inputs) (integrator.Inputs, bool) {
	from := p.From
	if p.Append && in.Echogram != nil {
		times := in.Echogram.PingTimes
		if i := sort.Search(len(times), func(k int) bool { return times[k].After(p.From) }); i > 0 && i < len(times) {
			from = times[i-1]
		}
	}
	return in.SliceTime(from, p.To)
}

// Anchor pins the horizontal axis of params to the last complete bin of the
// prior report. The axis then places a bin center on that bin whatever the
// origin, so the appended grid continues the stored one.
func (p Plan) Anchor(params *integrator.Params) {
	if !p.Append {
		return
	}
	h := &params.Horizontal
	switch h.Kind {
	case axis.Ping, axis.Time:
		h.Anchor = p.AnchorTime
	case axis.Distance:
		if p.AnchorDistance != nil {
			d := *p.AnchorDistance
			h.AnchorDistance = &d
		}
	}
}
