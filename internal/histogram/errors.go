package histogram

import "errors"

var (
	// ErrNotInitialized is returned when an operation is invoked on a
	// nil segment handle. It fails the calling operation, never the
	// process.
	ErrNotInitialized = errors.New("histogram segment not initialized")

	// ErrStaticSegment is returned by setters on a segment created
	// with Dynamic=false. The operation is a no-op.
	ErrStaticSegment = errors.New("histogram segment is static, parameters are fixed at creation")

	// ErrCorruptSnapshot is returned when a snapshot file fails its
	// checksum or structural validation. Loading falls back to a
	// zeroed segment.
	ErrCorruptSnapshot = errors.New("histogram snapshot file is corrupt")

	// ErrDatabaseNotFound is returned by per-database reads for an
	// unregistered database.
	ErrDatabaseNotFound = errors.New("database is not tracked")
)
