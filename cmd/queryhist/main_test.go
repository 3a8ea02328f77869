package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queryhist/queryhist/internal/histogram"
)

func testSnapshot(db uint32) histogram.Snapshot {
	return histogram.Snapshot{
		Kind:        histogram.KindLinear,
		BinCount:    2,
		BinWidthMs:  100,
		DatabaseID:  db,
		LastReset:   time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
		TotalCount:  1,
		TotalTimeMs: 50,
		Counts:      []int64{1, 0, 0},
		TimesMs:     []float64{50, 0, 0},
	}
}

func TestPrintDump_GlobalIsFirstEntry(t *testing.T) {
	dump := &histogram.Dump{
		Config: histogram.Config{
			Kind:       histogram.KindLinear,
			BinCount:   2,
			BinWidthMs: 100,
			SamplePct:  100,
		},
		Version: 3,
		Histograms: []histogram.Snapshot{
			testSnapshot(0),
			testSnapshot(0),
			testSnapshot(16384),
		},
	}

	var buf bytes.Buffer
	printDump(&buf, dump)

	out := buf.String()
	require.Equal(t, 1, strings.Count(out, "global histogram"))
	assert.Contains(t, out, "database 0 ")
	assert.Contains(t, out, "database 16384 ")
	assert.Contains(t, out, "databases: 2")
}

func TestPrintHistogram_SkipsEmptyOverflowBin(t *testing.T) {
	h := testSnapshot(0)

	var buf bytes.Buffer
	printHistogram(&buf, &h)

	out := buf.String()
	assert.Contains(t, out, "0-99")
	assert.NotContains(t, out, "200+")
	assert.Contains(t, out, "total: 1 queries, 50.0 ms")
}
