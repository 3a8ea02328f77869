package histogram

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"time"

	"github.com/minio/highwayhash"
	"github.com/sirupsen/logrus"
)

// Snapshot file layout: a 16-byte HighwayHash-128 of the payload, a
// 4-byte little-endian payload length, then the payload itself. The
// payload encodes configuration, version, the registry, and the bin
// contents of the global bucket plus one bucket per tracked database.
// Nothing address-shaped is stored, so a segment loaded into a fresh
// allocation rebuilds all internal references itself.

// The hash key is fixed: the checksum detects corruption, it does not
// authenticate.
var snapshotHashKey = []byte("queryhist-snapshot-checksum-key!")

const snapshotHeaderLen = 20

// Dump is the decoded contents of a snapshot file. Histograms[0] is
// the global histogram, followed by tracked databases in registration
// order.
type Dump struct {
	Config     Config
	Version    uint64
	Histograms []Snapshot
}

// captureDump copies the full segment state. Locks are held only while
// copying, never across file I/O.
func (s *Segment) captureDump() *Dump {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d := &Dump{
		Config:     s.configLocked(),
		Version:    s.version,
		Histograms: make([]Snapshot, 0, len(s.entries)+1),
	}

	d.Histograms = append(d.Histograms, s.snapshotLocked(0, 0, false))
	for _, e := range s.entries {
		d.Histograms = append(d.Histograms, s.snapshotLocked(e.bucket, e.db, false))
	}

	return d
}

func encodeDump(d *Dump) []byte {
	buf := new(bytes.Buffer)

	buf.WriteByte(byte(d.Config.Kind))
	buf.WriteByte(encodeBool(d.Config.Dynamic))
	buf.WriteByte(encodeBool(d.Config.TrackUtility))

	writeU32(buf, uint32(d.Config.BinCount))
	writeU32(buf, uint32(d.Config.BinWidthMs))
	writeU32(buf, uint32(d.Config.SamplePct))
	writeU32(buf, uint32(d.Config.MaxDatabases))
	writeU32(buf, uint32(len(d.Histograms)-1))
	writeU64(buf, d.Version)

	for _, h := range d.Histograms[1:] {
		writeU32(buf, h.DatabaseID)
	}

	for _, h := range d.Histograms {
		writeU64(buf, uint64(h.LastReset.UnixNano()))

		for i := 0; i <= d.Config.BinCount; i++ {
			writeU64(buf, uint64(h.Counts[i]))
			writeU64(buf, floatBits(h.TimesMs[i]))
		}
	}

	return buf.Bytes()
}

func decodeDump(payload []byte) (*Dump, error) {
	r := &byteReader{data: payload}

	d := &Dump{}
	d.Config.Kind = Kind(r.u8())
	d.Config.Dynamic = r.u8() != 0
	d.Config.TrackUtility = r.u8() != 0
	d.Config.BinCount = int(r.u32())
	d.Config.BinWidthMs = int(r.u32())
	d.Config.SamplePct = int(r.u32())
	d.Config.MaxDatabases = int(r.u32())

	databases := int(r.u32())
	d.Version = r.u64()

	if r.failed {
		return nil, fmt.Errorf("%w: truncated header", ErrCorruptSnapshot)
	}

	if err := d.Config.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}

	if databases < 0 || databases > d.Config.MaxDatabases || databases*4 > r.rest() {
		return nil, fmt.Errorf("%w: implausible database count %d", ErrCorruptSnapshot, databases)
	}

	ids := make([]uint32, databases)
	for i := range ids {
		ids[i] = r.u32()
	}

	d.Histograms = make([]Snapshot, 0, databases+1)

	for i := 0; i <= databases; i++ {
		snap := Snapshot{
			Kind:       d.Config.Kind,
			BinCount:   d.Config.BinCount,
			BinWidthMs: d.Config.BinWidthMs,
			LastReset:  time.Unix(0, int64(r.u64())),
			Counts:     make([]int64, d.Config.BinCount+1),
			TimesMs:    make([]float64, d.Config.BinCount+1),
		}

		if i > 0 {
			snap.DatabaseID = ids[i-1]
		}

		for j := 0; j <= d.Config.BinCount; j++ {
			snap.Counts[j] = int64(r.u64())
			snap.TimesMs[j] = floatFromBits(r.u64())
			snap.TotalCount += snap.Counts[j]
			snap.TotalTimeMs += snap.TimesMs[j]
		}

		d.Histograms = append(d.Histograms, snap)
	}

	if r.failed {
		return nil, fmt.Errorf("%w: truncated histogram data", ErrCorruptSnapshot)
	}

	if r.rest() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorruptSnapshot, r.rest())
	}

	return d, nil
}

// applyDump overwrites the segment's registry and bucket contents
// with loaded state. Only a dynamic segment adopts the snapshot's
// configuration: a static segment's parameters are fixed at creation,
// and its lock-free parameter reads rely on them never being written.
// MaxDatabases and Dynamic stay as the segment was created.
func (s *Segment) applyDump(d *Dump) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dynamic {
		s.kind = d.Config.Kind
		s.binCount = d.Config.BinCount
		s.binWidthMs = d.Config.BinWidthMs
		s.samplePct = d.Config.SamplePct
		s.trackUtility = d.Config.TrackUtility
	}

	s.version = d.Version

	s.entries = s.entries[:0]

	for i, h := range d.Histograms {
		if i > 0 {
			s.entries = append(s.entries, entry{db: h.DatabaseID, bucket: i})
		}

		s.buckets[i].loadBins(h.Counts, h.TimesMs, h.LastReset)
	}
}

// Save serializes the segment to path, overwriting atomically via a
// temp file rename. The segment lock is held only while the state is
// copied, not during the write. Persistence failure must never block
// shutdown, so callers are expected to log and carry on.
func (s *Segment) Save(path string) error {
	if s == nil {
		return ErrNotInitialized
	}

	payload := encodeDump(s.captureDump())
	sum := highwayhash.Sum128(payload, snapshotHashKey)

	blob := make([]byte, 0, snapshotHeaderLen+len(payload))
	blob = append(blob, sum[:]...)
	blob = binary.LittleEndian.AppendUint32(blob, uint32(len(payload)))
	blob = append(blob, payload...)

	unlock := s.lockSnapshotFile(path)
	defer unlock()

	tmp := path + ".tmp"

	if err := os.WriteFile(tmp, blob, 0o644); err != nil {
		return fmt.Errorf("writing snapshot file %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming snapshot file into place: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"path":  path,
		"bytes": len(blob),
	}).Info("Histogram snapshot written")

	return nil
}

// Load restores segment state from path on first attach. A missing
// file is normal and leaves the segment zeroed. A corrupt file or, for
// static segments, a parameter mismatch discards the file with an
// error; callers log it and continue with a zeroed segment.
func (s *Segment) Load(path string) error {
	if s == nil {
		return ErrNotInitialized
	}

	unlock := s.lockSnapshotFile(path)

	data, err := os.ReadFile(path)

	unlock()

	if os.IsNotExist(err) {
		s.log.WithField("path", path).Info("No histogram snapshot file, starting empty")
		return nil
	}

	if err != nil {
		return fmt.Errorf("reading snapshot file %s: %w", path, err)
	}

	d, err := decodeSnapshotFile(data)
	if err != nil {
		return err
	}

	cfg := s.Config()

	if len(d.Histograms)-1 > cfg.MaxDatabases {
		return fmt.Errorf("snapshot tracks %d databases but only %d fit, discarding",
			len(d.Histograms)-1, cfg.MaxDatabases)
	}

	if !s.dynamic {
		if d.Config.Kind != cfg.Kind ||
			d.Config.BinCount != cfg.BinCount ||
			d.Config.BinWidthMs != cfg.BinWidthMs ||
			d.Config.SamplePct != cfg.SamplePct {
			return fmt.Errorf("snapshot parameters differ from the static configuration, discarding")
		}
	}

	s.applyDump(d)

	s.log.WithFields(logrus.Fields{
		"path":      path,
		"databases": len(d.Histograms) - 1,
		"version":   d.Version,
	}).Info("Histogram snapshot loaded")

	return nil
}

// ReadDump decodes a snapshot file without a segment, for offline
// inspection.
func ReadDump(path string) (*Dump, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot file %s: %w", path, err)
	}

	return decodeSnapshotFile(data)
}

func decodeSnapshotFile(data []byte) (*Dump, error) {
	if len(data) < snapshotHeaderLen {
		return nil, fmt.Errorf("%w: file shorter than header", ErrCorruptSnapshot)
	}

	length := binary.LittleEndian.Uint32(data[16:snapshotHeaderLen])
	payload := data[snapshotHeaderLen:]

	if int(length) != len(payload) {
		return nil, fmt.Errorf("%w: payload length %d does not match header %d",
			ErrCorruptSnapshot, len(payload), length)
	}

	sum := highwayhash.Sum128(payload, snapshotHashKey)
	if !bytes.Equal(sum[:], data[:16]) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorruptSnapshot)
	}

	return decodeDump(payload)
}

// lockSnapshotFile takes an advisory lock on a sidecar lock file so
// concurrent processes do not interleave dump writes and reads. Lock
// failure degrades to running unlocked; persistence stays best-effort.
func (s *Segment) lockSnapshotFile(path string) func() {
	f, err := os.OpenFile(path+".lock", os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		s.log.WithError(err).Warn("Snapshot lock file unavailable, proceeding unlocked")
		return func() {}
	}

	if err := flockExclusive(f); err != nil {
		s.log.WithError(err).Warn("Snapshot file lock failed, proceeding unlocked")
		f.Close()

		return func() {}
	}

	return func() {
		if err := flockUnlock(f); err != nil {
			s.log.WithError(err).Debug("Snapshot file unlock failed")
		}

		f.Close()
	}
}
