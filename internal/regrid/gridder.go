package regrid

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Gridder resamples (ping, range) grids onto a regular pair of axes.
// Vertical maps range samples, Horizontal maps pings.
type Gridder struct {
	Vertical   *Weights
	Horizontal *Weights
}

// NewGridder builds the vertical and horizontal weight matrices.
func NewGridder(targetV, sourceV, targetH, sourceH []float64) (*Gridder, error) {
	v, err := BuildWeights(targetV, sourceV)
	if err != nil {
		return nil, fmt.Errorf("vertical weights: %w", err)
	}
	h, err := BuildWeights(targetH, sourceH)
	if err != nil {
		return nil, fmt.Errorf("horizontal weights: %w", err)
	}
	return &Gridder{Vertical: v, Horizontal: h}, nil
}

// Regrid resamples data shaped [pings, ranges] into [targetPings,
// targetRanges]. Missing input values count as zero intensity. Vertical
// resampling runs first, then horizontal. Cells in a sentinel row or
// column of either axis are NaN.
func (g *Gridder) Regrid(data mat.Matrix) (*mat.Dense, error) {
	r, c := data.Dims()
	filled := mat.NewDense(r, c, nil)
	filled.Apply(func(i, j int, v float64) float64 {
		if math.IsNaN(v) {
			return 0
		}
		return v
	}, data)

	vert, err := g.Vertical.ApplyColumns(filled)
	if err != nil {
		return nil, fmt.Errorf("vertical pass: %w", err)
	}
	out, err := g.Horizontal.ApplyRows(vert)
	if err != nil {
		return nil, fmt.Errorf("horizontal pass: %w", err)
	}
	return out, nil
}
