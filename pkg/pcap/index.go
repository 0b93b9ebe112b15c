package pcap

import (
	"encoding/xml"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/afero"

	"github.com/packetvault/pcapstore/internal/hashencode"
)

// PacketIndexEntry is one packet's position and size within a container
// file, as persisted in the sidecar.
type PacketIndexEntry struct {
	TimestampNs uint64 `xml:"timestamp_ns,attr"`
	ByteOffset  uint64 `xml:"byte_offset,attr"`
	PacketSize  uint32 `xml:"packet_size,attr"`
}

// FileIndex is one container file's entry in the sidecar: its identity,
// integrity digest, and every packet it holds.
type FileIndex struct {
	XMLName        xml.Name           `xml:"file"`
	Name           string             `xml:"name,attr"`
	Hash           string             `xml:"hash,attr"`
	Size           uint64             `xml:"size,attr"`
	PacketCount    uint64             `xml:"packet_count,attr"`
	StartTimestamp uint64             `xml:"start_timestamp,attr"`
	EndTimestamp   uint64             `xml:"end_timestamp,attr"`
	Packets        []PacketIndexEntry `xml:"packet"`
}

type dataFiles struct {
	Files []FileIndex `xml:"file"`
}

// Index is the full sidecar document: dataset-wide metadata plus one
// FileIndex per container file, sorted by file name.
type Index struct {
	XMLName        xml.Name  `xml:"index"`
	Description    string    `xml:"description"`
	CreatedTime    string    `xml:"created_time"`
	StartTimestamp uint64    `xml:"start_timestamp"`
	EndTimestamp   uint64    `xml:"end_timestamp"`
	TotalPackets   uint64    `xml:"total_packets"`
	TotalDuration  uint64    `xml:"total_duration"`
	DataFiles      dataFiles `xml:"data_files"`
}

func newIndex(description string) *Index {
	return &Index{
		Description: description,
		CreatedTime: time.Now().UTC().Format(time.RFC3339),
	}
}

func (idx *Index) updateTimeRange() {
	if len(idx.DataFiles.Files) == 0 {
		idx.StartTimestamp = 0
		idx.EndTimestamp = 0
		idx.TotalDuration = 0
		return
	}

	start := idx.DataFiles.Files[0].StartTimestamp
	end := idx.DataFiles.Files[0].EndTimestamp
	for _, f := range idx.DataFiles.Files[1:] {
		if f.StartTimestamp < start {
			start = f.StartTimestamp
		}
		if f.EndTimestamp > end {
			end = f.EndTimestamp
		}
	}
	idx.StartTimestamp = start
	idx.EndTimestamp = end
	if end >= start {
		idx.TotalDuration = end - start
	} else {
		idx.TotalDuration = 0
	}
}

func (idx *Index) updateTotalPackets() {
	var total uint64
	for _, f := range idx.DataFiles.Files {
		total += f.PacketCount
	}
	idx.TotalPackets = total
}

// timestampPointer locates one packet by the file it lives in (an index
// into Index.DataFiles.Files) and its sidecar entry.
type timestampPointer struct {
	fileIndex int
	entry     PacketIndexEntry
}

// IndexStore owns a dataset's sidecar: the persisted Index plus the
// derived in-memory lookup structures built from it. Not safe for
// concurrent use.
type IndexStore struct {
	fs   afero.Fs
	path string

	index *Index

	byTimestamp      map[uint64]timestampPointer
	sortedTimestamps []uint64
}

// NewIndexStore creates an empty, unpersisted IndexStore. Callers should
// follow with Regenerate and Persist, or use EnsureIndex instead.
func NewIndexStore(fs afero.Fs, sidecarPath, description string) *IndexStore {
	return &IndexStore{
		fs:    fs,
		path:  sidecarPath,
		index: newIndex(description),
	}
}

// Index returns the store's current in-memory index document.
func (s *IndexStore) Index() *Index {
	return s.index
}

func (s *IndexStore) rebuildLookup() {
	s.byTimestamp = make(map[uint64]timestampPointer, s.index.TotalPackets)
	for fileIdx, f := range s.index.DataFiles.Files {
		for _, p := range f.Packets {
			s.byTimestamp[p.TimestampNs] = timestampPointer{fileIndex: fileIdx, entry: p}
		}
	}

	s.sortedTimestamps = make([]uint64, 0, len(s.byTimestamp))
	for ts := range s.byTimestamp {
		s.sortedTimestamps = append(s.sortedTimestamps, ts)
	}
	sort.Slice(s.sortedTimestamps, func(i, j int) bool { return s.sortedTimestamps[i] < s.sortedTimestamps[j] })
}

// Persist marshals the index to XML and writes it to the sidecar path.
func (s *IndexStore) Persist() error {
	const op = "indexstore.persist"

	body, err := xml.MarshalIndent(s.index, "", "  ")
	if err != nil {
		return newError(KindInvalidFormat, op, "failed to marshal index", err)
	}

	out := append([]byte(xml.Header), body...)
	if err := afero.WriteFile(s.fs, s.path, out, 0o644); err != nil {
		return newError(KindIO, op, "failed to write sidecar", err)
	}
	return nil
}

// LoadIndexStore reads and parses the sidecar at path, rebuilding its
// derived lookup structures.
func LoadIndexStore(fs afero.Fs, path string) (*IndexStore, error) {
	const op = "indexstore.load"

	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, newError(KindFileNotFound, op, "sidecar does not exist: "+path, err)
		}
		return nil, newError(KindIO, op, "failed to read sidecar", err)
	}

	var idx Index
	if err := xml.Unmarshal(raw, &idx); err != nil {
		return nil, newError(KindInvalidFormat, op, "failed to parse sidecar", err)
	}

	s := &IndexStore{fs: fs, path: path, index: &idx}
	s.rebuildLookup()
	return s, nil
}

// sidecarExists reports whether a sidecar file is present at path.
func sidecarExists(fs afero.Fs, path string) bool {
	_, err := fs.Stat(path)
	return err == nil
}

// NeedsRebuild reports whether the store's index is stale relative to the
// actual container files in dir: the set of file names, or any file's size
// or hash, has drifted from what the sidecar recorded.
func (s *IndexStore) NeedsRebuild(dir string, fileNames []string) (bool, error) {
	const op = "indexstore.needsRebuild"

	recorded := make(map[string]FileIndex, len(s.index.DataFiles.Files))
	for _, f := range s.index.DataFiles.Files {
		recorded[f.Name] = f
	}

	if len(recorded) != len(fileNames) {
		return true, nil
	}

	for _, name := range fileNames {
		rec, ok := recorded[name]
		if !ok {
			return true, nil
		}

		info, err := s.fs.Stat(filepath.Join(dir, name))
		if err != nil {
			return true, nil
		}
		if uint64(info.Size()) != rec.Size {
			return true, nil
		}

		hash, err := hashencode.ComputeFileHexSHA256WithFs(s.fs, filepath.Join(dir, name))
		if err != nil {
			return false, newError(KindIO, op, "failed to hash container file", err)
		}
		if hash != rec.Hash {
			return true, nil
		}
	}

	return false, nil
}

// Regenerate rebuilds the index from scratch by reading every named
// container file in dir, in the given (already name-sorted) order.
func (s *IndexStore) Regenerate(dir string, fileNames []string) error {
	const op = "indexstore.regenerate"

	files := make([]FileIndex, 0, len(fileNames))

	for _, name := range fileNames {
		path := filepath.Join(dir, name)

		info, err := s.fs.Stat(path)
		if err != nil {
			return newError(KindIO, op, "failed to stat container file", err)
		}

		hash, err := hashencode.ComputeFileHexSHA256WithFs(s.fs, path)
		if err != nil {
			return newError(KindIO, op, "failed to hash container file", err)
		}

		fi := FileIndex{
			Name: name,
			Hash: hash,
			Size: uint64(info.Size()),
		}

		reader, err := OpenFileReader(s.fs, path, defaultBufferSize)
		if err != nil {
			return err
		}

		offset := int64(fileHeaderSize)
		for {
			packet, err := reader.ReadNext()
			if err != nil {
				_ = reader.Close()
				return err
			}
			if packet == nil {
				break
			}

			entry := PacketIndexEntry{
				TimestampNs: packet.TimestampNs,
				ByteOffset:  uint64(offset),
				PacketSize:  uint32(len(packet.Data)),
			}
			offset = reader.Position()

			if fi.PacketCount == 0 {
				fi.StartTimestamp = entry.TimestampNs
				fi.EndTimestamp = entry.TimestampNs
			} else {
				if entry.TimestampNs < fi.StartTimestamp {
					fi.StartTimestamp = entry.TimestampNs
				}
				if entry.TimestampNs > fi.EndTimestamp {
					fi.EndTimestamp = entry.TimestampNs
				}
			}
			fi.PacketCount++
			fi.Packets = append(fi.Packets, entry)
		}

		if err := reader.Close(); err != nil {
			return err
		}

		files = append(files, fi)
	}

	s.index.DataFiles.Files = files
	s.index.updateTotalPackets()
	s.index.updateTimeRange()
	s.rebuildLookup()
	return nil
}

// EnsureIndex loads the sidecar at path if present, rebuilding it (in
// place) if stale; otherwise it regenerates and persists a fresh one.
// Either way, the returned store's lookups are ready to use.
func EnsureIndex(fs afero.Fs, dir, path, description string, fileNames []string) (*IndexStore, error) {
	if !sidecarExists(fs, path) {
		s := NewIndexStore(fs, path, description)
		if err := s.Regenerate(dir, fileNames); err != nil {
			return nil, err
		}
		if err := s.Persist(); err != nil {
			return nil, err
		}
		return s, nil
	}

	s, err := LoadIndexStore(fs, path)
	if err != nil {
		return nil, err
	}

	stale, err := s.NeedsRebuild(dir, fileNames)
	if err != nil {
		return nil, err
	}
	if stale {
		if err := s.Regenerate(dir, fileNames); err != nil {
			return nil, err
		}
		if err := s.Persist(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// FindExact returns the pointer for an exact timestamp match.
func (s *IndexStore) FindExact(ts uint64) (fileIndex int, entry PacketIndexEntry, ok bool) {
	p, found := s.byTimestamp[ts]
	if !found {
		return 0, PacketIndexEntry{}, false
	}
	return p.fileIndex, p.entry, true
}

// FindGE returns the pointer for the smallest recorded timestamp ≥ ts.
func (s *IndexStore) FindGE(ts uint64) (fileIndex int, entry PacketIndexEntry, ok bool) {
	i := sort.Search(len(s.sortedTimestamps), func(i int) bool { return s.sortedTimestamps[i] >= ts })
	if i == len(s.sortedTimestamps) {
		return 0, PacketIndexEntry{}, false
	}
	p := s.byTimestamp[s.sortedTimestamps[i]]
	return p.fileIndex, p.entry, true
}

// RangePointer is one result of Range: a packet's location plus its entry.
type RangePointer struct {
	FileIndex int
	Entry     PacketIndexEntry
}

// Range returns every pointer whose timestamp lies in [lo, hi], sorted
// ascending by timestamp.
func (s *IndexStore) Range(lo, hi uint64) []RangePointer {
	lowIdx := sort.Search(len(s.sortedTimestamps), func(i int) bool { return s.sortedTimestamps[i] >= lo })

	var out []RangePointer
	for i := lowIdx; i < len(s.sortedTimestamps); i++ {
		ts := s.sortedTimestamps[i]
		if ts > hi {
			break
		}
		p := s.byTimestamp[ts]
		out = append(out, RangePointer{FileIndex: p.fileIndex, Entry: p.entry})
	}
	return out
}

// VerifyValidity performs a structural check: files are in strictly
// ascending name order, every file's packet_count matches its recorded
// packets, the per-file counts sum to total_packets, the timestamp lookup
// holds exactly total_packets entries, and every byte_offset fits within
// its file's recorded size.
func (s *IndexStore) VerifyValidity() error {
	const op = "indexstore.verifyValidity"

	files := s.index.DataFiles.Files
	var total uint64
	for i, f := range files {
		if i > 0 && files[i-1].Name >= f.Name {
			return newError(KindInvalidFormat, op, "files are not in ascending name order at "+f.Name, nil)
		}
		if uint64(len(f.Packets)) != f.PacketCount {
			return newError(KindInvalidFormat, op, "packet_count disagrees with recorded packets for "+f.Name, nil)
		}
		total += f.PacketCount
		for _, p := range f.Packets {
			if p.ByteOffset+frameHeaderSize+uint64(p.PacketSize) > f.Size {
				return newError(KindInvalidFormat, op, "packet entry extends past recorded file size in "+f.Name, nil)
			}
		}
	}
	if total != s.index.TotalPackets {
		return newError(KindInvalidFormat, op, "total_packets disagrees with the sum of per-file packet counts", nil)
	}
	if uint64(len(s.byTimestamp)) != total {
		return newError(KindInvalidFormat, op, "timestamp lookup size disagrees with total_packets", nil)
	}
	return nil
}
