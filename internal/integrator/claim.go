package integrator

import (
	"sort"

	"github.com/banshee-data/acoustic.report/internal/echogram"
)

// claimMap assigns every (ping, sample) cell to exactly one category.
type claimMap struct {
	owner []int
	cols  int
}

func (c *claimMap) at(i, j int) int { return c.owner[i*c.cols+j] }

// splitCategories returns the positive category ids in ascending order and
// the id that owns unclaimed cells.
func splitCategories(ids []int, fallback int) (positives []int, background int) {
	background = 0
	for _, id := range ids {
		switch {
		case id > 0:
			positives = append(positives, id)
		case id < 0 && (background == 0 || id > background):
			background = id
		}
	}
	if background == 0 {
		background = fallback
	}
	sort.Ints(positives)
	return positives, background
}

// claimCells gives each cell to the positive category with the highest
// probability above threshold. Ties go to the lowest id. Cells no positive
// category claims belong to background, so the claims partition the grid.
func claimCells(pred *echogram.Predictions, positives []int, background int, threshold float64, rows, cols int) *claimMap {
	c := &claimMap{owner: make([]int, rows*cols), cols: cols}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			best, bestP := background, threshold
			for _, id := range positives {
				if v := pred.Masks[id].At(i, j); v > bestP {
					best, bestP = id, v
				}
			}
			c.owner[i*cols+j] = best
		}
	}
	return c
}
