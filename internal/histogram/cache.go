package histogram

// IndexCache memoizes one worker's database→bucket lookup so the
// registry is only rescanned when the segment version moves. The zero
// value is ready to use. A cache belongs to a single worker and must
// not be shared between goroutines.
type IndexCache struct {
	version uint64
	index   int
	valid   bool
}

// store is nil-safe so callers without a cache pay only the scan.
func (c *IndexCache) store(version uint64, index int) {
	if c == nil {
		return
	}

	c.version = version
	c.index = index
	c.valid = true
}
