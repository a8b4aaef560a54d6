package integrator

import (
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"
)

// ReportGrid is the joined result of a run. Values[c] is shaped
// [len(Times), len(Depth)] and belongs to Categories[c].
type ReportGrid struct {
	Categories []int
	Values     []*mat.Dense

	Times       []time.Time
	Latitude    []float64
	Longitude   []float64
	Distance    []float64
	BottomDepth []float64

	// Depth holds the vertical bin centers, DepthUpper and DepthLower their
	// edges.
	Depth      []float64
	DepthUpper []float64
	DepthLower []float64

	Frequency  float64
	ChannelID  string
	Platform   string
	Attributes Attributes
}

// Dims returns the number of categories, ping bins and depth channels.
func (g *ReportGrid) Dims() (categories, pings, channels int) {
	return len(g.Categories), len(g.Times), len(g.Depth)
}

// Cells returns the total number of values in the grid.
func (g *ReportGrid) Cells() int {
	c, p, d := g.Dims()
	return c * p * d
}

// Category returns the values of category id.
func (g *ReportGrid) Category(id int) (*mat.Dense, bool) {
	for i, c := range g.Categories {
		if c == id {
			return g.Values[i], true
		}
	}
	return nil, false
}

// LastTime returns the time of the last ping bin.
func (g *ReportGrid) LastTime() time.Time {
	if len(g.Times) == 0 {
		return time.Time{}
	}
	return g.Times[len(g.Times)-1]
}

// Aggregate joins category grids of one run into a report grid, ordered by
// category id. At least the first and last bin of both axes are dropped,
// along with every further sentinel bin at either end, since they only
// partially overlap the source data.
func Aggregate(grids []*CategoryGrid) (*ReportGrid, error) {
	if len(grids) == 0 {
		return nil, ErrNoCategories
	}
	sorted := append([]*CategoryGrid(nil), grids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Category < sorted[j].Category })

	layout := sorted[0].Layout
	nh, nv := sorted[0].Values.Dims()
	for i, g := range sorted {
		if i > 0 && g.Category == sorted[i-1].Category {
			return nil, fmt.Errorf("%w: category %d appears twice", ErrLayoutMismatch, g.Category)
		}
		if r, c := g.Values.Dims(); r != nh || c != nv || !g.Layout.sameGrid(layout) {
			return nil, fmt.Errorf("%w: category %d", ErrLayoutMismatch, g.Category)
		}
	}
	h0, h1 := trimBounds(layout.HorizontalSentinel, nh)
	if h1-h0 < 1 {
		return nil, fmt.Errorf("%w: %d ping bins, none left after trimming", ErrInsufficientSpan, nh)
	}
	v0, v1 := trimBounds(layout.VerticalSentinel, nv)
	if v1-v0 < 1 {
		return nil, fmt.Errorf("%w: %d depth channels, none left after trimming", ErrInsufficientDepth, nv)
	}

	out := &ReportGrid{
		Categories:  make([]int, len(sorted)),
		Values:      make([]*mat.Dense, len(sorted)),
		Times:       layout.Times[h0:h1],
		Latitude:    layout.Latitude[h0:h1],
		Longitude:   layout.Longitude[h0:h1],
		Distance:    layout.Distance[h0:h1],
		BottomDepth: layout.BottomDepth[h0:h1],
		Depth:       layout.Vertical.Target[v0:v1],
		DepthUpper:  layout.VerticalEdges[v0:v1],
		DepthLower:  layout.VerticalEdges[v0+1 : v1+1],
		Frequency:   layout.Frequency,
		ChannelID:   layout.ChannelID,
		Platform:    layout.Platform,
		Attributes:  layout.Attributes,
	}
	for i, g := range sorted {
		out.Categories[i] = g.Category
		out.Values[i] = mat.DenseCopyOf(g.Values.Slice(h0, h1, v0, v1))
	}
	return out, nil
}

// trimBounds returns the half-open range of the n bins that survive
// trimming: never the outermost bin on either side, and no sentinel bin
// adjacent to the trimmed edge.
func trimBounds(sentinel []bool, n int) (lo, hi int) {
	lo, hi = 1, n-1
	for lo < hi && lo < len(sentinel) && sentinel[lo] {
		lo++
	}
	for hi > lo && hi-1 < len(sentinel) && sentinel[hi-1] {
		hi--
	}
	return lo, hi
}
