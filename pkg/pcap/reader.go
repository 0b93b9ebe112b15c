package pcap

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/packetvault/pcapstore/internal/observability"
)

// ReaderOption customizes an OpenReader call.
type ReaderOption func(*Reader)

// WithLogger attaches a logger a Reader uses to report (and then continue
// past) individual read failures during a ranged read. Without one, those
// failures are silently skipped.
func WithLogger(logger *observability.CoreLogger) ReaderOption {
	return func(r *Reader) {
		r.logger = logger
	}
}

// Reader is the Dataset Reader (Navigator): it owns an IndexStore and at
// most one open FileReader, and exposes sequential, seek, and range
// operations over a dataset's packets. Not safe for concurrent use.
type Reader struct {
	fs          afero.Fs
	dir         string
	sidecarPath string
	cfg         ReaderConfig
	logger      *observability.CoreLogger

	cache *FileInfoCache

	index            *IndexStore
	initialized      bool
	currentFileIndex int
	currentPosition  uint64
	fileReader       *FileReader
}

// OpenReader prepares a Reader over dir. No disk I/O happens until the
// first read or seek; that call loads (or rebuilds) the sidecar and opens
// the dataset's first container file.
func OpenReader(fs afero.Fs, dir, sidecarPath string, cfg ReaderConfig, opts ...ReaderOption) (*Reader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Reader{
		fs:          fs,
		dir:         dir,
		sidecarPath: sidecarPath,
		cfg:         cfg,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = observability.NewNoOpLogger()
	}

	if cfg.IndexCacheSize > 0 {
		cache, err := NewFileInfoCache(cfg.IndexCacheSize)
		if err != nil {
			return nil, err
		}
		r.cache = cache
	}

	return r, nil
}

func listContainerFiles(fs afero.Fs, dir string) ([]string, error) {
	const op = "reader.listContainerFiles"

	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, newError(KindDirectoryNotFound, op, "failed to list dataset directory: "+dir, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), containerFileExtension) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (r *Reader) ensureInitialized() error {
	if r.initialized {
		return nil
	}

	names, err := listContainerFiles(r.fs, r.dir)
	if err != nil {
		return err
	}

	idx, err := EnsureIndex(r.fs, r.dir, r.sidecarPath, "", names)
	if err != nil {
		return err
	}
	r.index = idx
	r.initialized = true

	if r.cache != nil {
		for _, f := range idx.Index().DataFiles.Files {
			r.cache.Insert(filepath.Join(r.dir, f.Name), fileInfoFromIndex(f))
		}
	}

	if len(idx.Index().DataFiles.Files) > 0 {
		return r.openFile(0)
	}
	return nil
}

func (r *Reader) openFile(fileIndex int) error {
	if r.fileReader != nil {
		if err := r.fileReader.Close(); err != nil {
			return err
		}
		r.fileReader = nil
	}

	name := r.index.Index().DataFiles.Files[fileIndex].Name
	path := filepath.Join(r.dir, name)

	fr, err := OpenFileReader(r.fs, path, r.cfg.BufferSize)
	if err != nil {
		return err
	}
	r.fileReader = fr
	r.currentFileIndex = fileIndex
	return nil
}

func (r *Reader) validate(pkt *ValidatedPacket) error {
	if r.cfg.StrictCRC && !pkt.Valid {
		return newError(KindChecksumMismatch, "reader.validate", "packet checksum did not match its payload", nil)
	}
	return nil
}

// ReadPacket reads and returns the next packet, or (nil, nil) once every
// file is exhausted.
func (r *Reader) ReadPacket() (*ValidatedPacket, error) {
	if err := r.ensureInitialized(); err != nil {
		return nil, err
	}

	for {
		if r.fileReader == nil {
			return nil, nil
		}

		pkt, err := r.fileReader.ReadNext()
		if err != nil {
			return nil, err
		}

		if pkt != nil {
			if err := r.validate(pkt); err != nil {
				return nil, err
			}
			r.currentPosition++
			return pkt, nil
		}

		files := r.index.Index().DataFiles.Files
		if r.currentFileIndex+1 < len(files) {
			if err := r.openFile(r.currentFileIndex + 1); err != nil {
				return nil, err
			}
			continue
		}

		return nil, nil
	}
}

// CurrentPacketIndex returns the global position of the next packet
// ReadPacket will return.
func (r *Reader) CurrentPacketIndex() (uint64, error) {
	if err := r.ensureInitialized(); err != nil {
		return 0, err
	}
	return r.currentPosition, nil
}

// TotalPackets returns the dataset's total packet count, from the index.
func (r *Reader) TotalPackets() (uint64, error) {
	if err := r.ensureInitialized(); err != nil {
		return 0, err
	}
	return r.index.Index().TotalPackets, nil
}

// IsEOF reports whether every packet has been read.
func (r *Reader) IsEOF() (bool, error) {
	if err := r.ensureInitialized(); err != nil {
		return false, err
	}
	return r.currentPosition >= r.index.Index().TotalPackets, nil
}

// Progress returns the fraction of packets read so far, in [0, 1]. A
// dataset with zero packets reports 1.0.
func (r *Reader) Progress() (float64, error) {
	if err := r.ensureInitialized(); err != nil {
		return 0, err
	}
	total := r.index.Index().TotalPackets
	if total == 0 {
		return 1.0, nil
	}
	p := float64(r.currentPosition) / float64(total)
	if p > 1.0 {
		p = 1.0
	}
	return p, nil
}

// Reset closes the current file and repositions to the very start of the
// dataset.
func (r *Reader) Reset() error {
	if err := r.ensureInitialized(); err != nil {
		return err
	}

	if r.fileReader != nil {
		if err := r.fileReader.Close(); err != nil {
			return err
		}
		r.fileReader = nil
	}
	r.currentPosition = 0

	if len(r.index.Index().DataFiles.Files) > 0 {
		return r.openFile(0)
	}
	return nil
}

// prefixSum returns the global packet index of the first packet in file
// fileIndex.
func (r *Reader) prefixSum(fileIndex int) uint64 {
	var sum uint64
	for _, f := range r.index.Index().DataFiles.Files[:fileIndex] {
		sum += f.PacketCount
	}
	return sum
}

func entryOffsetInFile(f FileIndex, ts uint64) (int, bool) {
	for i, p := range f.Packets {
		if p.TimestampNs == ts {
			return i, true
		}
	}
	return 0, false
}

// SeekToPacket positions the cursor so the next ReadPacket returns the kth
// packet (0-indexed, dataset-global).
func (r *Reader) SeekToPacket(k uint64) error {
	const op = "reader.seekToPacket"

	if err := r.ensureInitialized(); err != nil {
		return err
	}

	total := r.index.Index().TotalPackets
	if k >= total {
		return newError(KindInvalidArgument, op, "packet index out of range", nil)
	}

	var prefix uint64
	for fileIdx, f := range r.index.Index().DataFiles.Files {
		if k < prefix+f.PacketCount {
			offsetInFile := k - prefix
			entry := f.Packets[offsetInFile]

			if r.currentFileIndex != fileIdx || r.fileReader == nil {
				if err := r.openFile(fileIdx); err != nil {
					return err
				}
			}
			if err := r.fileReader.SeekTo(int64(entry.ByteOffset)); err != nil {
				return err
			}
			r.currentPosition = k
			return nil
		}
		prefix += f.PacketCount
	}

	return newError(KindInvalidArgument, op, "packet index out of range", nil)
}

// SeekToTimestamp positions the cursor at the packet with the given
// timestamp, or (absent an exact match) the next one after it, returning
// the timestamp actually landed on.
func (r *Reader) SeekToTimestamp(ts uint64) (uint64, error) {
	const op = "reader.seekToTimestamp"

	if err := r.ensureInitialized(); err != nil {
		return 0, err
	}

	fileIdx, entry, ok := r.index.FindExact(ts)
	if !ok {
		fileIdx, entry, ok = r.index.FindGE(ts)
	}
	if !ok {
		return 0, newError(KindInvalidArgument, op, "no packet at or after the given timestamp", nil)
	}

	offsetInFile, ok := entryOffsetInFile(r.index.Index().DataFiles.Files[fileIdx], entry.TimestampNs)
	if !ok {
		return 0, newError(KindInvalidState, op, "index entry missing from its own file", nil)
	}

	global := r.prefixSum(fileIdx) + uint64(offsetInFile)
	if err := r.SeekToPacket(global); err != nil {
		return 0, err
	}
	return entry.TimestampNs, nil
}

// ReadPacketsByTimeRange returns every packet with lo <= timestamp <= hi,
// sorted ascending. Individual read failures are logged (if a logger was
// configured) and skipped rather than aborting the whole range.
func (r *Reader) ReadPacketsByTimeRange(lo, hi uint64) ([]ValidatedPacket, error) {
	if err := r.ensureInitialized(); err != nil {
		return nil, err
	}

	pointers := r.index.Range(lo, hi)
	out := make([]ValidatedPacket, 0, len(pointers))

	for _, ptr := range pointers {
		if r.currentFileIndex != ptr.FileIndex || r.fileReader == nil {
			if err := r.openFile(ptr.FileIndex); err != nil {
				r.logSkip(ptr, err)
				continue
			}
		}

		pkt, err := r.fileReader.ReadAt(int64(ptr.Entry.ByteOffset))
		if err != nil {
			r.logSkip(ptr, err)
			continue
		}
		if pkt.TimestampNs < lo || pkt.TimestampNs > hi {
			continue
		}
		if err := r.validate(pkt); err != nil {
			return nil, err
		}
		out = append(out, *pkt)
	}

	return out, nil
}

func (r *Reader) logSkip(ptr RangePointer, err error) {
	if r.logger == nil {
		return
	}
	r.logger.Warn("skipping unreadable packet during ranged read",
		"file_index", ptr.FileIndex, "timestamp_ns", ptr.Entry.TimestampNs, "err", err)
}

// ReadPacketByTimestamp returns exactly the packet at timestamp ts, or
// KindInvalidArgument if none is indexed at that exact timestamp.
func (r *Reader) ReadPacketByTimestamp(ts uint64) (*ValidatedPacket, error) {
	const op = "reader.readPacketByTimestamp"

	if err := r.ensureInitialized(); err != nil {
		return nil, err
	}

	fileIdx, entry, ok := r.index.FindExact(ts)
	if !ok {
		return nil, newError(KindInvalidArgument, op, "no packet at the given timestamp", nil)
	}

	if r.currentFileIndex != fileIdx || r.fileReader == nil {
		if err := r.openFile(fileIdx); err != nil {
			return nil, err
		}
	}

	pkt, err := r.fileReader.ReadAt(int64(entry.ByteOffset))
	if err != nil {
		return nil, err
	}
	if pkt.TimestampNs != ts {
		return nil, newError(KindInvalidState, op, "decoded timestamp does not match the indexed one", nil)
	}
	if err := r.validate(pkt); err != nil {
		return nil, err
	}
	return pkt, nil
}

// SkipPackets advances the cursor by up to n packets, clamped to the last
// packet in the dataset, and returns how many packets were actually
// skipped.
func (r *Reader) SkipPackets(n uint64) (uint64, error) {
	if err := r.ensureInitialized(); err != nil {
		return 0, err
	}

	total := r.index.Index().TotalPackets
	if total == 0 {
		return 0, nil
	}

	target := r.currentPosition + n
	maxTarget := total - 1
	if target > maxTarget {
		target = maxTarget
	}
	if target <= r.currentPosition {
		return 0, nil
	}

	before := r.currentPosition
	if err := r.SeekToPacket(target); err != nil {
		return 0, err
	}
	return target - before, nil
}

// Close releases the currently open container file, if any.
func (r *Reader) Close() error {
	if r.fileReader != nil {
		return r.fileReader.Close()
	}
	return nil
}
