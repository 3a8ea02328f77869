package histogram

import "math"

// BinLimit is the maximum number of finite bins a histogram may have.
// Every histogram additionally has one overflow bin past the last
// finite bin.
const BinLimit = 1000

// MaxBinWidthMs is the widest allowed first bin.
const MaxBinWidthMs = 1000

// Kind selects how bin boundaries are scaled.
type Kind uint8

const (
	// KindLinear gives every finite bin the same width.
	KindLinear Kind = iota
	// KindLog doubles the bin width with every bin.
	KindLog
)

func (k Kind) String() string {
	switch k {
	case KindLinear:
		return "linear"
	case KindLog:
		return "log"
	default:
		return "unknown"
	}
}

// BinIndex returns the bin a query of the given duration (in
// milliseconds) falls into. Durations past the last finite bin land in
// the overflow bin at index binCount. Callers are expected to skip
// recording entirely when binCount is zero.
func BinIndex(kind Kind, binCount, binWidthMs int, durationMs float64) int {
	var bin int

	if kind == KindLog {
		bin = int(math.Floor(math.Log2(1 + durationMs/float64(binWidthMs))))
	} else {
		bin = int(math.Floor(durationMs / float64(binWidthMs)))
	}

	if bin < 0 {
		return 0
	}

	if bin >= binCount {
		return binCount
	}

	return bin
}

// MaxBins returns the highest usable bin count for a logarithmic
// histogram with the given bin width. Past this count the upper bound
// of a bin no longer fits in an int32, so wider histograms are
// pointless.
func MaxBins(binWidthMs int) int {
	return int(math.Ceil(math.Log2(float64(math.MaxInt32) / float64(binWidthMs))))
}
