package metrics

// BlockSample is spec.md §3's per-block observation, recorded by the block
// watcher for every block that falls inside a shooter's active interval.
type BlockSample struct {
	BlockNumber uint64
	TxCount     uint32
	Timestamp   uint64
	L1GasPrice  uint64
	Steps       *uint64
}

// BlockWindow accumulates the block samples observed during one shooter's
// active interval, in strictly increasing block-number order, and derives
// block-TPS statistics from them.
type BlockWindow struct {
	samples []BlockSample
}

// Add appends a block sample. Callers (the block watcher) are responsible
// for the strict block-number ordering spec.md §3 requires.
func (w *BlockWindow) Add(s BlockSample) {
	w.samples = append(w.samples, s)
}

// Samples returns the recorded block samples in order.
func (w *BlockWindow) Samples() []BlockSample {
	return w.samples
}

// tpsSeries returns per-block TPS values, excluding the first block of the
// window from the numerator per spec.md §4.E's warm-up protection: the
// delta to its predecessor may straddle time before the shooter started.
func (w *BlockWindow) tpsSeries() []float64 {
	if len(w.samples) < 2 {
		return nil
	}
	out := make([]float64, 0, len(w.samples)-1)
	for i := 1; i < len(w.samples); i++ {
		dt := float64(w.samples[i].Timestamp) - float64(w.samples[i-1].Timestamp)
		if dt <= 0 {
			continue
		}
		out = append(out, float64(w.samples[i].TxCount)/dt)
	}
	return out
}

// TPS returns mean/min/max block-TPS across the whole interval.
func (w *BlockWindow) TPS() (mean, min, max float64, ok bool) {
	return statsOf(w.tpsSeries())
}

// perSecondSeries applies the same warm-up protection as tpsSeries to any
// per-block execution resource count, dividing each block's value by the
// elapsed time since its predecessor.
func (w *BlockWindow) perSecondSeries(value func(BlockSample) (float64, bool)) []float64 {
	if len(w.samples) < 2 {
		return nil
	}
	out := make([]float64, 0, len(w.samples)-1)
	for i := 1; i < len(w.samples); i++ {
		dt := float64(w.samples[i].Timestamp) - float64(w.samples[i-1].Timestamp)
		if dt <= 0 {
			continue
		}
		v, ok := value(w.samples[i])
		if !ok {
			continue
		}
		out = append(out, v/dt)
	}
	return out
}

// StepsPerSecond returns mean/min/max execution steps per second across the
// whole interval, mirroring the original Rust tool's "Average Steps Per
// Second" figure (src/metrics.rs). Blocks whose Steps is nil are skipped
// rather than treated as zero.
func (w *BlockWindow) StepsPerSecond() (mean, min, max float64, ok bool) {
	series := w.perSecondSeries(func(s BlockSample) (float64, bool) {
		if s.Steps == nil {
			return 0, false
		}
		return float64(*s.Steps), true
	})
	return statsOf(series)
}

// GasPerSecond returns mean/min/max L1 gas price per second across the
// whole interval, giving the report a view of fee-market pressure
// alongside throughput.
func (w *BlockWindow) GasPerSecond() (mean, min, max float64, ok bool) {
	series := w.perSecondSeries(func(s BlockSample) (float64, bool) {
		return float64(s.L1GasPrice), true
	})
	return statsOf(series)
}

// TrailingTPS computes TPS stats over the trailing numBlocks blocks of the
// interval (spec.md's last_x_blocks_metrics), reporting the actual number
// of blocks used when fewer than numBlocks fall in-window.
func (w *BlockWindow) TrailingTPS(numBlocks int) (mean, min, max float64, actualBlocks int, ok bool) {
	series := w.tpsSeries()
	if len(series) == 0 {
		return 0, 0, 0, 0, false
	}
	n := numBlocks
	if n > len(series) {
		n = len(series)
	}
	trailing := series[len(series)-n:]
	mean, min, max, ok = statsOf(trailing)
	return mean, min, max, len(trailing), ok
}

func statsOf(series []float64) (mean, min, max float64, ok bool) {
	if len(series) == 0 {
		return 0, 0, 0, false
	}
	min, max = series[0], series[0]
	sum := 0.0
	for _, v := range series {
		sum += v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return sum / float64(len(series)), min, max, true
}
