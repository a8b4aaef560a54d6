// Package integrator masks echosounder backscatter by classification
// category and integrates it onto the regular report grid.
//
// A run prepares everything the categories share (frequency slice, claim
// map, bottom exclusion, depth shift, axes and weights) once. Categories are
// then regridded independently on a bounded worker pool and joined by
// Aggregate, which trims the boundary bins and attaches the axis
// attributes.
package integrator

import (
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/acoustic.report/internal/axis"
	"github.com/banshee-data/acoustic.report/internal/echogram"
	"github.com/banshee-data/acoustic.report/internal/monitoring"
)

var (
	// ErrInsufficientSpan aborts a run whose ping span yields fewer than two
	// usable horizontal bins.
	ErrInsufficientSpan = errors.New("integrator: fewer than two usable horizontal bins")
	// ErrInsufficientDepth aborts a run whose vertical axis has no bins left
	// after trimming.
	ErrInsufficientDepth = errors.New("integrator: no usable vertical bins")
	// ErrInvalidParams is returned for out-of-range settings.
	ErrInvalidParams = errors.New("integrator: invalid parameters")
	// ErrMissingInput is returned when a required product is absent.
	ErrMissingInput = errors.New("integrator: missing input")
	// ErrNoCategories is returned by Aggregate when given nothing to join.
	ErrNoCategories = errors.New("integrator: no category grids")
	// ErrLayoutMismatch is returned by Aggregate for grids from different runs.
	ErrLayoutMismatch = errors.New("integrator: category grids do not share a layout")
)

// DefaultBackground is the category id that owns unclaimed cells when the
// predictions carry no negative category.
const DefaultBackground = -1

// Params configures one integration run.
type Params struct {
	// Frequency selects the echogram channel in Hz.
	Frequency float64
	// Threshold is the probability a positive category must exceed to
	// claim a cell.
	Threshold float64
	// SvThreshold, when set, zeroes samples weaker than this many dB.
	SvThreshold *float64

	Vertical   axis.Spec
	Horizontal axis.Spec

	// MaxRange drops samples beyond this range in meters. Zero keeps all.
	MaxRange float64

	// Background overrides DefaultBackground. It must be negative.
	Background int
	// Workers bounds concurrent category regrids. Zero means one per category.
	Workers int

	Logf    monitoring.Logf
	Metrics *monitoring.Metrics
}

// Validate checks the parameters before any data is touched.
func (p Params) Validate() error {
	if !(p.Frequency > 0) {
		return fmt.Errorf("%w: frequency must be positive, got %v", ErrInvalidParams, p.Frequency)
	}
	if !(p.Threshold >= 0 && p.Threshold <= 1) {
		return fmt.Errorf("%w: threshold must be between 0 and 1, got %v", ErrInvalidParams, p.Threshold)
	}
	if p.MaxRange < 0 {
		return fmt.Errorf("%w: max range must be non-negative, got %v", ErrInvalidParams, p.MaxRange)
	}
	if p.Background > 0 {
		return fmt.Errorf("%w: background category must be negative, got %d", ErrInvalidParams, p.Background)
	}
	if p.Workers < 0 {
		return fmt.Errorf("%w: workers must be non-negative, got %d", ErrInvalidParams, p.Workers)
	}
	if err := p.Vertical.Validate(); err != nil {
		return fmt.Errorf("vertical axis: %w", err)
	}
	if !p.Vertical.Kind.Vertical() {
		return fmt.Errorf("vertical axis: %w: %q is not a vertical kind", axis.ErrUnknownKind, p.Vertical.Kind)
	}
	if p.Vertical.Start < 0 {
		return fmt.Errorf("%w: vertical start must be non-negative, got %v", ErrInvalidParams, p.Vertical.Start)
	}
	if err := p.Horizontal.Validate(); err != nil {
		return fmt.Errorf("horizontal axis: %w", err)
	}
	if !p.Horizontal.Kind.Horizontal() {
		return fmt.Errorf("horizontal axis: %w: %q is not a horizontal kind", axis.ErrUnknownKind, p.Horizontal.Kind)
	}
	return nil
}

func (p Params) background() int {
	if p.Background < 0 {
		return p.Background
	}
	return DefaultBackground
}

// Inputs bundles the products of one run. Bottom is optional.
type Inputs struct {
	Echogram    *echogram.Echogram
	Predictions *echogram.Predictions
	Bottom      *echogram.Bottom
}

// Validate checks that all products exist and share the echogram grid.
func (in Inputs) Validate() error {
	if in.Echogram == nil {
		return fmt.Errorf("%w: echogram", ErrMissingInput)
	}
	if in.Predictions == nil {
		return fmt.Errorf("%w: predictions", ErrMissingInput)
	}
	if err := in.Echogram.Validate(); err != nil {
		return err
	}
	n, m := in.Echogram.Pings(), len(in.Echogram.Range)
	if err := in.Echogram.CheckAligned(in.Predictions.PingTimes, in.Predictions.Range); err != nil {
		return fmt.Errorf("predictions: %w", err)
	}
	for _, id := range in.Predictions.Categories {
		g, ok := in.Predictions.Masks[id]
		if !ok || g == nil {
			return fmt.Errorf("%w: mask for category %d", ErrMissingInput, id)
		}
		if r, c := g.Dims(); r != n || c != m {
			return fmt.Errorf("category %d: %w: mask is %dx%d, want %dx%d", id, echogram.ErrMisaligned, r, c, n, m)
		}
	}
	if in.Bottom != nil {
		if err := in.Echogram.CheckAligned(in.Bottom.PingTimes, in.Bottom.Range); err != nil {
			return fmt.Errorf("bottom: %w", err)
		}
		if in.Bottom.Mask == nil {
			return fmt.Errorf("%w: bottom mask", ErrMissingInput)
		}
	}
	return nil
}

// SliceTime keeps the pings with times in [from, to]. A zero bound leaves
// that side open. The result is empty when no ping falls in the span.
func (in Inputs) SliceTime(from, to time.Time) (Inputs, bool) {
	i0, i1 := echogram.SpanIndices(in.Echogram.PingTimes, from, to)
	if i1 <= i0 {
		return Inputs{}, false
	}
	m := len(in.Echogram.Range)
	out := Inputs{
		Echogram:    in.Echogram.Slice(i0, i1, m),
		Predictions: in.Predictions.Slice(i0, i1, m),
	}
	if in.Bottom != nil {
		out.Bottom = in.Bottom.Slice(i0, i1, m)
	}
	return out, true
}
