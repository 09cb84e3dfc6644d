package metrics

import "testing"

func TestBlockWindowTPSExcludesFirstBlock(t *testing.T) {
	w := &BlockWindow{}
	// First block carries a huge implicit tx_count/dt if not excluded
	// (its "previous" timestamp is unknown to the window).
	w.Add(BlockSample{BlockNumber: 10, TxCount: 1000, Timestamp: 1000})
	w.Add(BlockSample{BlockNumber: 11, TxCount: 10, Timestamp: 1006})
	w.Add(BlockSample{BlockNumber: 12, TxCount: 20, Timestamp: 1012})

	mean, min, max, ok := w.TPS()
	if !ok {
		t.Fatalf("expected TPS stats")
	}
	// Only blocks 11 and 12 contribute: 10/6 and 20/6.
	wantMean := (10.0/6 + 20.0/6) / 2
	if diff := mean - wantMean; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("mean = %v, want %v", mean, wantMean)
	}
	if min > max {
		t.Fatalf("min/max inverted: %v %v", min, max)
	}
}

func TestBlockWindowTPSRequiresTwoBlocks(t *testing.T) {
	w := &BlockWindow{}
	w.Add(BlockSample{BlockNumber: 1, TxCount: 5, Timestamp: 1000})
	if _, _, _, ok := w.TPS(); ok {
		t.Fatalf("expected no TPS with a single block sample")
	}
}

func TestTrailingTPSUsesFewerBlocksWhenUnavailable(t *testing.T) {
	w := &BlockWindow{}
	w.Add(BlockSample{BlockNumber: 1, TxCount: 5, Timestamp: 1000})
	w.Add(BlockSample{BlockNumber: 2, TxCount: 5, Timestamp: 1006})
	w.Add(BlockSample{BlockNumber: 3, TxCount: 5, Timestamp: 1012})

	_, _, _, actual, ok := w.TrailingTPS(10)
	if !ok {
		t.Fatalf("expected trailing stats")
	}
	if actual != 2 {
		t.Fatalf("expected 2 usable tps points (3 blocks - 1 excluded), got %d", actual)
	}
}

func TestTrailingTPSCapsAtRequestedWindow(t *testing.T) {
	w := &BlockWindow{}
	for i := uint64(0); i < 10; i++ {
		w.Add(BlockSample{BlockNumber: i, TxCount: 5, Timestamp: 1000 + i*6})
	}
	_, _, _, actual, ok := w.TrailingTPS(4)
	if !ok || actual != 4 {
		t.Fatalf("expected exactly 4 trailing points, got %d (ok=%v)", actual, ok)
	}
}

func TestBlockWindowStepsPerSecondSkipsMissingSamples(t *testing.T) {
	w := &BlockWindow{}
	steps11 := uint64(6000)
	steps12 := uint64(12000)
	w.Add(BlockSample{BlockNumber: 10, Timestamp: 1000, Steps: nil})
	w.Add(BlockSample{BlockNumber: 11, Timestamp: 1006, Steps: &steps11})
	w.Add(BlockSample{BlockNumber: 12, Timestamp: 1012, Steps: &steps12})

	mean, min, max, ok := w.StepsPerSecond()
	if !ok {
		t.Fatalf("expected steps-per-second stats")
	}
	// Block 11 contributes 6000/6=1000, block 12 contributes 12000/6=2000.
	wantMean := (1000.0 + 2000.0) / 2
	if diff := mean - wantMean; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("mean = %v, want %v", mean, wantMean)
	}
	if min > max {
		t.Fatalf("min/max inverted: %v %v", min, max)
	}
}

func TestBlockWindowGasPerSecond(t *testing.T) {
	w := &BlockWindow{}
	w.Add(BlockSample{BlockNumber: 1, Timestamp: 1000, L1GasPrice: 100})
	w.Add(BlockSample{BlockNumber: 2, Timestamp: 1005, L1GasPrice: 200})

	mean, _, _, ok := w.GasPerSecond()
	if !ok {
		t.Fatalf("expected gas-per-second stats")
	}
	wantMean := 200.0 / 5
	if diff := mean - wantMean; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("mean = %v, want %v", mean, wantMean)
	}
}
