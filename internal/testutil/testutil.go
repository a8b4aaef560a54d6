// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers to reduce code duplication
// across test files and improve test maintainability.
package testutil

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/banshee-data/acoustic.report/internal/echogram"
	"github.com/banshee-data/acoustic.report/internal/fsutil"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertErrorIs fails the test unless err wraps target.
func AssertErrorIs(t testing.TB, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("error = %v, want %v", err, target)
	}
}

// Close reports whether a and b differ by at most tol. Two NaNs are close.
func Close(a, b, tol float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return math.Abs(a-b) <= tol
}

// AssertClose checks a single value against want within tol.
func AssertClose(t testing.TB, name string, got, want, tol float64) {
	t.Helper()
	if !Close(got, want, tol) {
		t.Errorf("%s = %v, want %v (tol %g)", name, got, want, tol)
	}
}

// AssertSlicesClose checks got against want element-wise within tol.
func AssertSlicesClose(t testing.TB, name string, got, want []float64, tol float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: len = %d, want %d", name, len(got), len(want))
	}
	for i := range got {
		if !Close(got[i], want[i], tol) {
			t.Errorf("%s[%d] = %v, want %v (tol %g)", name, i, got[i], want[i], tol)
		}
	}
}

// Inputs are the file paths of a synthetic survey written to disk.
type Inputs struct {
	Data   string
	Pred   string
	Bottom string
}

// WriteSyntheticInputs generates a survey from cfg and saves the three
// input products under dir.
func WriteSyntheticInputs(t testing.TB, dir string, cfg echogram.SyntheticConfig) Inputs {
	t.Helper()
	e, p, b := echogram.Synthetic(cfg)
	in := Inputs{
		Data:   filepath.Join(dir, "sv.gob.zst"),
		Pred:   filepath.Join(dir, "pred.gob.zst"),
		Bottom: filepath.Join(dir, "bottom.gob.zst"),
	}
	fsys := fsutil.OSFileSystem{}
	AssertNoError(t, echogram.SaveEchogram(fsys, in.Data, e))
	AssertNoError(t, echogram.SavePredictions(fsys, in.Pred, p))
	AssertNoError(t, echogram.SaveBottom(fsys, in.Bottom, b))
	return in
}

// SmallSurvey is a synthetic survey small enough for end-to-end tests:
// 120 one-second pings of 200 samples at 0.5 m.
func SmallSurvey() echogram.SyntheticConfig {
	cfg := echogram.DefaultSyntheticConfig()
	cfg.Pings = 120
	cfg.Samples = 200
	cfg.SampleSpacing = 0.5
	cfg.BottomDepth = 70
	return cfg
}
