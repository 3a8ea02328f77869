package histogram

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBucket_Observe(t *testing.T) {
	b := &bucket{}

	b.observe(0, 50)
	b.observe(0, 25)
	b.observe(3, 999)

	counts, times := b.copyBins(5)
	assert.Equal(t, []int64{2, 0, 0, 1, 0}, counts)
	assert.Equal(t, []float64{75, 0, 0, 999, 0}, times)
}

func TestBucket_Reset(t *testing.T) {
	b := &bucket{}
	b.observe(1, 10)

	now := time.Now()
	b.reset(now)

	counts, times := b.copyBins(3)
	assert.Equal(t, []int64{0, 0, 0}, counts)
	assert.Equal(t, []float64{0, 0, 0}, times)
	assert.Equal(t, now, b.resetTime())
}

func TestBucket_CopyBinsIsolated(t *testing.T) {
	b := &bucket{}
	b.observe(0, 1)

	counts, _ := b.copyBins(2)
	counts[0] = 42

	fresh, _ := b.copyBins(2)
	assert.Equal(t, int64(1), fresh[0])
}

func TestBucket_LoadBins(t *testing.T) {
	b := &bucket{}
	b.observe(5, 123) // overwritten below

	reset := time.Unix(1700000000, 0)
	b.loadBins([]int64{3, 1}, []float64{30, 200}, reset)

	counts, times := b.copyBins(6)
	assert.Equal(t, []int64{3, 1, 0, 0, 0, 0}, counts)
	assert.Equal(t, []float64{30, 200, 0, 0, 0, 0}, times)
	assert.Equal(t, reset, b.resetTime())
}

func TestBucket_CopyFrom(t *testing.T) {
	src := &bucket{}
	src.observe(2, 77)
	src.reset(time.Unix(100, 0))
	src.observe(2, 77)

	dst := &bucket{}
	dst.observe(0, 1)
	dst.copyFrom(src)

	counts, times := dst.copyBins(3)
	assert.Equal(t, []int64{0, 0, 1}, counts)
	assert.Equal(t, []float64{0, 0, 77}, times)
	assert.Equal(t, time.Unix(100, 0), dst.resetTime())
}
