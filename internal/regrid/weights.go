package regrid

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrTooFewCoords is returned when an axis has fewer than two centers.
	ErrTooFewCoords = errors.New("regrid: at least two coordinates are required")
	// ErrNotIncreasing is returned when an axis is not strictly increasing.
	ErrNotIncreasing = errors.New("regrid: coordinates must be strictly increasing")
	// ErrShapeMismatch is returned when data does not line up with the weights.
	ErrShapeMismatch = errors.New("regrid: data shape does not match weights")
)

// BinEdges converts n bin centers into n+1 bin edges.
func BinEdges(centers []float64) ([]float64, error) {
	n := len(centers)
	if n < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrTooFewCoords, n)
	}
	for i := 1; i < n; i++ {
		if !(centers[i] > centers[i-1]) {
			return nil, fmt.Errorf("%w: index %d (%g after %g)", ErrNotIncreasing, i, centers[i], centers[i-1])
		}
	}

	edges := make([]float64, n+1)
	edges[0] = centers[0] - (centers[1]-centers[0])/2
	for i := 1; i < n; i++ {
		edges[i] = (centers[i-1] + centers[i]) / 2
	}
	edges[n] = centers[n-1] + (centers[n-1]-centers[n-2])/2
	return edges, nil
}

// Weights is a resampling matrix of shape [targets, sources+1]. The last
// column is the sentinel column; it is NaN for target bins that are not
// fully covered by the source and zero otherwise.
type Weights struct {
	w           *mat.Dense
	sentinel    []bool
	targetEdges []float64
	sourceEdges []float64
}

// BuildWeights computes the overlap weights that map source bins onto
// target bins.
func BuildWeights(target, source []float64) (*Weights, error) {
	te, err := BinEdges(target)
	if err != nil {
		return nil, fmt.Errorf("target axis: %w", err)
	}
	se, err := BinEdges(source)
	if err != nil {
		return nil, fmt.Errorf("source axis: %w", err)
	}

	nt, ns := len(target), len(source)
	w := mat.NewDense(nt, ns+1, nil)
	sentinel := make([]bool, nt)

	for i := 0; i < nt; i++ {
		t0, t1 := te[i], te[i+1]
		if !(t0 > se[0] && t1 < se[ns]) {
			w.Set(i, ns, math.NaN())
			sentinel[i] = true
			continue
		}

		d := t1 - t0
		j0 := searchRight(se, t0) - 1
		j1 := searchRight(se, t1)

		switch {
		case j1-j0 == 1:
			w.Set(i, j0, 1)
		case j1-j0 == 2:
			w.Set(i, j0, (se[j0+1]-t0)/d)
			w.Set(i, j1-1, (t1-se[j1-1])/d)
		default:
			for j := j0; j < j1; j++ {
				switch j {
				case j0:
					w.Set(i, j, (se[j+1]-t0)/d)
				case j1 - 1:
					w.Set(i, j, (t1-se[j])/d)
				default:
					w.Set(i, j, (se[j+1]-se[j])/d)
				}
			}
		}
	}

	return &Weights{w: w, sentinel: sentinel, targetEdges: te, sourceEdges: se}, nil
}

// searchRight returns the number of edges that are <= x.
func searchRight(edges []float64, x float64) int {
	return sort.Search(len(edges), func(i int) bool { return edges[i] > x })
}

// Dims returns the number of target bins and source bins.
func (w *Weights) Dims() (targets, sources int) {
	r, c := w.w.Dims()
	return r, c - 1
}

// At returns the weight of source bin j in target bin i. Passing j equal to
// the number of source bins reads the sentinel column.
func (w *Weights) At(i, j int) float64 { return w.w.At(i, j) }

// Matrix exposes the full weight matrix including the sentinel column.
func (w *Weights) Matrix() mat.Matrix { return w.w }

// Sentinel reports whether target bin i falls outside the source coverage.
func (w *Weights) Sentinel(i int) bool { return w.sentinel[i] }

// Interior returns the indices of all non-sentinel target bins in order.
func (w *Weights) Interior() []int {
	var out []int
	for i, s := range w.sentinel {
		if !s {
			out = append(out, i)
		}
	}
	return out
}

// TargetEdges returns a copy of the target bin edges.
func (w *Weights) TargetEdges() []float64 {
	return append([]float64(nil), w.targetEdges...)
}

// SourceEdges returns a copy of the source bin edges.
func (w *Weights) SourceEdges() []float64 {
	return append([]float64(nil), w.sourceEdges...)
}

// Apply resamples a single vector defined on the source bins.
func (w *Weights) Apply(data []float64) ([]float64, error) {
	nt, ns := w.Dims()
	if len(data) != ns {
		return nil, fmt.Errorf("%w: vector of %d, want %d", ErrShapeMismatch, len(data), ns)
	}
	padded := mat.NewVecDense(ns+1, nil)
	for j, v := range data {
		padded.SetVec(j, v)
	}
	var out mat.VecDense
	out.MulVec(w.w, padded)

	res := make([]float64, nt)
	for i := range res {
		if w.sentinel[i] {
			res[i] = math.NaN()
			continue
		}
		res[i] = out.AtVec(i)
	}
	return res, nil
}

// ApplyRows resamples along the row axis: data has one row per source bin
// and the result has one row per target bin.
func (w *Weights) ApplyRows(data mat.Matrix) (*mat.Dense, error) {
	nt, ns := w.Dims()
	r, c := data.Dims()
	if r != ns {
		return nil, fmt.Errorf("%w: %d rows, want %d", ErrShapeMismatch, r, ns)
	}

	padded := mat.NewDense(ns+1, c, nil)
	padded.Slice(0, ns, 0, c).(*mat.Dense).Copy(data)

	out := mat.NewDense(nt, c, nil)
	out.Mul(w.w, padded)
	for i := 0; i < nt; i++ {
		if w.sentinel[i] {
			fillRow(out, i, math.NaN())
		}
	}
	return out, nil
}

// ApplyColumns resamples along the column axis: data has one column per
// source bin and the result has one column per target bin.
func (w *Weights) ApplyColumns(data mat.Matrix) (*mat.Dense, error) {
	nt, ns := w.Dims()
	r, c := data.Dims()
	if c != ns {
		return nil, fmt.Errorf("%w: %d columns, want %d", ErrShapeMismatch, c, ns)
	}

	padded := mat.NewDense(r, ns+1, nil)
	padded.Slice(0, r, 0, ns).(*mat.Dense).Copy(data)

	out := mat.NewDense(r, nt, nil)
	out.Mul(padded, w.w.T())
	for j := 0; j < nt; j++ {
		if w.sentinel[j] {
			fillCol(out, j, math.NaN())
		}
	}
	return out, nil
}

func fillRow(m *mat.Dense, i int, v float64) {
	_, c := m.Dims()
	for j := 0; j < c; j++ {
		m.Set(i, j, v)
	}
}

func fillCol(m *mat.Dense, j int, v float64) {
	r, _ := m.Dims()
	for i := 0; i < r; i++ {
		m.Set(i, j, v)
	}
}
