package regrid

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const tol = 1e-9

func seq(start, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func TestBinEdges(t *testing.T) {
	tests := []struct {
		name    string
		centers []float64
		want    []float64
		wantErr error
	}{
		{name: "uniform", centers: []float64{0, 1, 2}, want: []float64{-0.5, 0.5, 1.5, 2.5}},
		{name: "irregular", centers: []float64{0, 1, 3}, want: []float64{-0.5, 0.5, 2, 4}},
		{name: "single", centers: []float64{1}, wantErr: ErrTooFewCoords},
		{name: "decreasing", centers: []float64{0, 2, 1}, wantErr: ErrNotIncreasing},
		{name: "duplicate", centers: []float64{0, 1, 1}, wantErr: ErrNotIncreasing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BinEdges(tt.centers)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("BinEdges() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("BinEdges() unexpected error: %v", err)
			}
			if !floats.EqualApprox(got, tt.want, tol) {
				t.Errorf("BinEdges() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuildWeights_InteriorRowsSumToOne(t *testing.T) {
	source := seq(0.09, 0.18, 500)
	target := seq(0, 5, 18)

	w, err := BuildWeights(target, source)
	if err != nil {
		t.Fatalf("BuildWeights: %v", err)
	}
	nt, ns := w.Dims()
	if nt != len(target) || ns != len(source) {
		t.Fatalf("Dims() = (%d, %d), want (%d, %d)", nt, ns, len(target), len(source))
	}

	for i := 0; i < nt; i++ {
		if w.Sentinel(i) {
			if !math.IsNaN(w.At(i, ns)) {
				t.Errorf("row %d: sentinel weight = %v, want NaN", i, w.At(i, ns))
			}
			continue
		}
		sum := 0.0
		for j := 0; j < ns; j++ {
			v := w.At(i, j)
			if v < 0 {
				t.Fatalf("row %d col %d: negative weight %v", i, j, v)
			}
			sum += v
		}
		if math.Abs(sum-1) > tol {
			t.Errorf("row %d sums to %v, want 1", i, sum)
		}
		if w.At(i, ns) != 0 {
			t.Errorf("row %d: interior row has sentinel weight %v", i, w.At(i, ns))
		}
	}
}

func TestBuildWeights_Cases(t *testing.T) {
	// Source edges 0, 4, 8. Target edges 0, 1, ..., 8.
	w, err := BuildWeights(seq(0.5, 1, 8), []float64{2, 6})
	if err != nil {
		t.Fatalf("BuildWeights: %v", err)
	}

	if !w.Sentinel(0) || !w.Sentinel(7) {
		t.Fatalf("outer target bins must be sentinel rows")
	}
	// Target [1,2) sits inside source bin 0.
	if got := w.At(1, 0); got != 1 {
		t.Errorf("W[1,0] = %v, want 1", got)
	}
	// Target [3,4) ends on the source edge at 4.
	if got := w.At(3, 0); got != 1 {
		t.Errorf("W[3,0] = %v, want 1", got)
	}
	if got := w.At(3, 1); got != 0 {
		t.Errorf("W[3,1] = %v, want 0", got)
	}

	// Straddling: source edges 0, 1, 2, 3; target edges 0.25, 1.75 etc.
	w, err = BuildWeights([]float64{-0.5, 1, 2.5}, []float64{0.5, 1.5, 2.5})
	if err != nil {
		t.Fatalf("BuildWeights: %v", err)
	}
	// Target bin 1 has edges 0.25 and 1.75: 0.75 of source 0, 0.75 of source 1.
	if got := w.At(1, 0); math.Abs(got-0.5) > tol {
		t.Errorf("W[1,0] = %v, want 0.5", got)
	}
	if got := w.At(1, 1); math.Abs(got-0.5) > tol {
		t.Errorf("W[1,1] = %v, want 0.5", got)
	}

	// Downsampling: three source bins in one target bin.
	w, err = BuildWeights([]float64{-1, 1.5, 4}, seq(0.5, 1, 4))
	if err != nil {
		t.Fatalf("BuildWeights: %v", err)
	}
	// Target bin 1 has edges 0.25 and 2.75 (width 2.5).
	want := []float64{0.75 / 2.5, 1 / 2.5, 0.75 / 2.5, 0}
	for j, v := range want {
		if got := w.At(1, j); math.Abs(got-v) > tol {
			t.Errorf("W[1,%d] = %v, want %v", j, got, v)
		}
	}
}

func TestApply_Conservation(t *testing.T) {
	// Ten unit bins of value 1, regridded to five bins of width 2.
	w, err := BuildWeights(seq(1, 2, 5), seq(0.5, 1, 10))
	if err != nil {
		t.Fatalf("BuildWeights: %v", err)
	}
	got, err := w.Apply([]float64{1, 1, 1, 1, 1, 1, 1, 1, 1, 1})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if !math.IsNaN(got[0]) || !math.IsNaN(got[4]) {
		t.Fatalf("edge bins = %v, %v, want NaN", got[0], got[4])
	}
	integrated := 0.0
	for _, i := range w.Interior() {
		if math.Abs(got[i]-1) > tol {
			t.Errorf("bin %d = %v, want 1", i, got[i])
		}
		integrated += got[i] * 2
	}
	// Interior target bins cover source bins 2..7.
	if math.Abs(integrated-6) > tol {
		t.Errorf("integrated interior = %v, want 6", integrated)
	}
}

func TestApply_ConservationIrregular(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	source := make([]float64, 300)
	x := 0.0
	for i := range source {
		x += 0.05 + rng.Float64()*0.3
		source[i] = x
	}
	values := make([]float64, len(source))
	for i := range values {
		values[i] = rng.Float64() * 1e-5
	}
	target := seq(2, 3.3, 20)

	w, err := BuildWeights(target, source)
	if err != nil {
		t.Fatalf("BuildWeights: %v", err)
	}
	got, err := w.Apply(values)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	te := w.TargetEdges()
	se := w.SourceEdges()
	interior := w.Interior()
	if len(interior) < 2 {
		t.Fatalf("expected interior bins, got %v", interior)
	}
	first, last := interior[0], interior[len(interior)-1]

	resampled := 0.0
	for _, i := range interior {
		resampled += got[i] * (te[i+1] - te[i])
	}
	lo, hi := te[first], te[last+1]
	expected := 0.0
	for j, v := range values {
		overlap := math.Min(se[j+1], hi) - math.Max(se[j], lo)
		if overlap > 0 {
			expected += v * overlap
		}
	}
	if math.Abs(resampled-expected) > 1e-12 {
		t.Errorf("integrated = %v, want %v", resampled, expected)
	}
}

func TestApply_UpsamplingExact(t *testing.T) {
	w, err := BuildWeights(seq(0.5, 1, 8), []float64{2, 6})
	if err != nil {
		t.Fatalf("BuildWeights: %v", err)
	}
	got, err := w.Apply([]float64{3, 3})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	for i, v := range got {
		if w.Sentinel(i) {
			if !math.IsNaN(v) {
				t.Errorf("bin %d = %v, want NaN", i, v)
			}
			continue
		}
		if math.Abs(v-3) > tol {
			t.Errorf("bin %d = %v, want 3", i, v)
		}
	}
}

func TestApply_ShapeMismatch(t *testing.T) {
	w, err := BuildWeights(seq(0, 1, 4), seq(0, 0.5, 8))
	if err != nil {
		t.Fatalf("BuildWeights: %v", err)
	}
	if _, err := w.Apply(make([]float64, 3)); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Apply() error = %v, want ErrShapeMismatch", err)
	}
	if _, err := w.ApplyRows(mat.NewDense(3, 2, nil)); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("ApplyRows() error = %v, want ErrShapeMismatch", err)
	}
	if _, err := w.ApplyColumns(mat.NewDense(2, 3, nil)); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("ApplyColumns() error = %v, want ErrShapeMismatch", err)
	}
}

func TestApply_SentinelDoesNotLeak(t *testing.T) {
	// Large values next to the boundary must not show up in interior bins.
	source := seq(0.5, 1, 10)
	values := []float64{1e9, 1, 1, 1, 1, 1, 1, 1, 1, 1e9}
	w, err := BuildWeights(seq(1, 2, 5), source)
	if err != nil {
		t.Fatalf("BuildWeights: %v", err)
	}
	got, err := w.Apply(values)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	for _, i := range w.Interior() {
		if got[i] != got[i] || got[i] > 1+tol {
			t.Errorf("bin %d = %v, boundary value leaked", i, got[i])
		}
	}
}
