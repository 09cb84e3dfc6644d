package metrics

import (
	"math"
	"testing"
)

func TestHistogramEmptyIsUnset(t *testing.T) {
	h := NewHistogram()
	if _, ok := h.Mean(); ok {
		t.Fatalf("expected Mean to report empty")
	}
	if _, ok := h.Quantile(0.5); ok {
		t.Fatalf("expected Quantile to report empty")
	}
}

func TestHistogramQuantileWithinRelativeError(t *testing.T) {
	h := NewHistogram()
	// 1000 identical samples of 100ms; p50 should land near 0.1s.
	for i := 0; i < 1000; i++ {
		h.Add(0.1)
	}
	p50, ok := h.Quantile(0.5)
	if !ok {
		t.Fatalf("expected a quantile")
	}
	relErr := math.Abs(p50-0.1) / 0.1
	if relErr > histRelError {
		t.Fatalf("relative error %.4f exceeds bound %.4f", relErr, histRelError)
	}
}

func TestHistogramMinMaxAndMean(t *testing.T) {
	h := NewHistogram()
	for _, v := range []float64{0.001, 0.01, 0.1, 1.0} {
		h.Add(v)
	}
	min, max, ok := h.MinMax()
	if !ok {
		t.Fatalf("expected non-empty MinMax")
	}
	if min > 0.0011 || max < 0.999 {
		t.Fatalf("unexpected min/max: %v %v", min, max)
	}
	mean, ok := h.Mean()
	if !ok {
		t.Fatalf("expected mean")
	}
	want := (0.001 + 0.01 + 0.1 + 1.0) / 4
	if math.Abs(mean-want) > 1e-9 {
		t.Fatalf("mean = %v, want %v", mean, want)
	}
}

func TestHistogramClampsOutOfRangeValues(t *testing.T) {
	h := NewHistogram()
	h.Add(-1) // below range clamps into bucket 0 rather than panicking
	h.Add(histMaxSeconds * 100)
	if h.Count() != 2 {
		t.Fatalf("expected both extreme samples to be counted")
	}
}
