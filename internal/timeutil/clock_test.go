package timeutil

import (
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", now, before, after)
	}
}

func TestMockClock(t *testing.T) {
	start := time.Date(2019, 5, 11, 6, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)

	if got := clock.Now(); !got.Equal(start) {
		t.Fatalf("Now() = %v, want %v", got, start)
	}

	clock.Advance(90 * time.Second)
	if got := clock.Now().Sub(start); got != 90*time.Second {
		t.Errorf("Advance moved the clock by %v, want 90s", got)
	}

	clock.Sleep(10 * time.Millisecond)
	clock.Sleep(20 * time.Millisecond)
	sleeps := clock.Sleeps()
	if len(sleeps) != 2 || sleeps[0] != 10*time.Millisecond || sleeps[1] != 20*time.Millisecond {
		t.Errorf("Sleeps() = %v", sleeps)
	}
	if got := clock.Now().Sub(start); got != 90*time.Second+30*time.Millisecond {
		t.Errorf("Sleep should advance the clock, elapsed %v", got)
	}

	later := start.Add(time.Hour)
	clock.Set(later)
	if got := clock.Now(); !got.Equal(later) {
		t.Errorf("Set() then Now() = %v, want %v", got, later)
	}
}

func TestElapsedSeconds(t *testing.T) {
	epoch := time.Date(2019, 5, 11, 6, 0, 0, 0, time.UTC)
	times := []time.Time{
		epoch,
		epoch.Add(1500 * time.Millisecond),
		epoch.Add(-2 * time.Second),
	}
	got := ElapsedSeconds(times, epoch)
	want := []float64{0, 1.5, -2}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ElapsedSeconds()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestAtSeconds(t *testing.T) {
	epoch := time.Date(2019, 5, 11, 6, 0, 0, 0, time.UTC)
	tests := []struct {
		s    float64
		want time.Duration
	}{
		{0, 0},
		{1.2344, 1234 * time.Millisecond},
		{1.2346, 1235 * time.Millisecond},
		{-0.5, -500 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := AtSeconds(epoch, tt.s); !got.Equal(epoch.Add(tt.want)) {
			t.Errorf("AtSeconds(%v) = %v, want %v", tt.s, got, epoch.Add(tt.want))
		}
	}
}
