package integrator

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// CategoryGrid is one category regridded onto the report axes. Values is
// shaped [horizontal bins, vertical bins] and still includes the boundary
// bins Aggregate trims.
type CategoryGrid struct {
	Category int
	Values   *mat.Dense
	Layout   *Layout
}

// RegridCategory masks the echogram by the cells category owns and
// resamples them onto the report axes. A category that owns no cells
// yields an all-zero grid.
func RegridCategory(in Inputs, category int, p Params) (*CategoryGrid, error) {
	pl, err := prepare(in, p)
	if err != nil {
		return nil, err
	}
	return pl.regrid(category)
}

func (pl *plan) regrid(category int) (*CategoryGrid, error) {
	vals, err := pl.gridder.Regrid(pl.masked(category))
	if err != nil {
		return nil, fmt.Errorf("category %d: %w", category, err)
	}
	return &CategoryGrid{Category: category, Values: vals, Layout: pl.layout}, nil
}
