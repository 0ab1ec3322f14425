package core

import (
	"math"
	"testing"
)

func TestFrameMetricsAverage(t *testing.T) {
	m := NewFrameMetrics()
	for i := 0; i < int(AVG_COUNT); i++ {
		m.Update(0.016)
	}
	if got := m.FrameTime(); math.Abs(got-16) > 1e-9 {
		t.Errorf("FrameTime() = %v, want 16", got)
	}
	// a second window must not accumulate on top of the first
	for i := 0; i < int(AVG_COUNT); i++ {
		m.Update(0.016)
	}
	if got := m.FrameTime(); math.Abs(got-16) > 1e-9 {
		t.Errorf("FrameTime() after two windows = %v, want 16", got)
	}
}

func TestFrameMetricsFPS(t *testing.T) {
	m := NewFrameMetrics()
	for i := 0; i < 101; i++ {
		m.Update(0.01)
	}
	if got := m.FPS(); got != 100 {
		t.Errorf("FPS() = %v, want 100", got)
	}
}

func TestClamp(t *testing.T) {
	if got := Clamp(5, 2, 3); got != 3 {
		t.Errorf("Clamp(5, 2, 3) = %d, want 3", got)
	}
	if got := Clamp(1, 2, 3); got != 2 {
		t.Errorf("Clamp(1, 2, 3) = %d, want 2", got)
	}
	if got := Clamp(0.5, 0.25, 2.0); got != 0.5 {
		t.Errorf("Clamp(0.5, 0.25, 2.0) = %v, want 0.5", got)
	}
}
