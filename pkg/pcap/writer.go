package pcap

import (
	"path/filepath"
	"sort"
	"strconv"

	"github.com/spf13/afero"
)

// DefaultSidecarName is the conventional sidecar file name inside a dataset
// directory. CreateWriter and OpenReader take the sidecar path explicitly
// and do not fall back to this name.
const DefaultSidecarName = "index.pidx"

const containerFileExtension = ".pcap"

// Writer is the Dataset Writer: it owns the active FileWriter and the
// dataset's evolving file list, rolling over to a new container file as
// configured. Not safe for concurrent use.
type Writer struct {
	fs          afero.Fs
	dir         string
	sidecarPath string
	cfg         WriterConfig
	snapLen     uint32
	network     uint32

	active     *FileWriter
	fileNames  []string
	finalized  bool
}

// CreateWriter creates dir (if necessary) and returns a Writer ready to
// accept packets. The first container file is opened lazily, named from
// the first packet's timestamp.
func CreateWriter(fs afero.Fs, dir, sidecarPath string, snapLen, network uint32, cfg WriterConfig) (*Writer, error) {
	const op = "writer.create"

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, newError(KindIO, op, "failed to create dataset directory", err)
	}

	return &Writer{
		fs:          fs,
		dir:         dir,
		sidecarPath: sidecarPath,
		cfg:         cfg,
		snapLen:     snapLen,
		network:     network,
	}, nil
}

// WritePacket appends p, rolling over to a new container file first if the
// active file has reached its configured limits.
func (w *Writer) WritePacket(p Packet) error {
	const op = "writer.writePacket"

	if w.finalized {
		return newError(KindInvalidState, op, "writer is finalized", nil)
	}

	if w.active == nil {
		if err := w.openNewFile(p.TimestampNs); err != nil {
			return err
		}
	} else if w.needsRollover(p) {
		if err := w.active.Close(); err != nil {
			return err
		}
		w.active = nil
		if err := w.openNewFile(p.TimestampNs); err != nil {
			return err
		}
	}

	_, err := w.active.WritePacket(p)
	return err
}

func (w *Writer) needsRollover(p Packet) bool {
	if w.active.PacketCount() >= uint64(w.cfg.MaxPacketsPerFile) {
		return true
	}
	if w.cfg.MaxFileSizeBytes > 0 {
		frameSize := int64(frameHeaderSize + len(p.Data))
		if w.active.TotalSize()+frameSize > w.cfg.MaxFileSizeBytes {
			return true
		}
	}
	return false
}

func (w *Writer) openNewFile(firstPacketTs uint64) error {
	const op = "writer.openNewFile"

	base := formatFileName(w.cfg.FileNameFormat, timestampFromUnixNano(firstPacketTs))
	name := base + containerFileExtension

	for i := 1; fileNameTaken(w.fileNames, name); i++ {
		name = base + "_" + strconv.Itoa(i) + containerFileExtension
	}

	path := filepath.Join(w.dir, name)
	fw, err := CreateFileWriter(w.fs, path, w.snapLen, w.network, w.cfg.BufferSize, w.cfg.AutoFlush)
	if err != nil {
		return newError(KindIO, op, "failed to create new container file", err)
	}

	w.active = fw
	w.fileNames = append(w.fileNames, name)
	return nil
}

func fileNameTaken(names []string, candidate string) bool {
	for _, n := range names {
		if n == candidate {
			return true
		}
	}
	return false
}

// Finalize flushes and closes the active file, then regenerates and
// persists the sidecar. The Writer is terminal afterward.
func (w *Writer) Finalize() (*IndexStore, error) {
	const op = "writer.finalize"

	if w.finalized {
		return nil, newError(KindInvalidState, op, "writer is already finalized", nil)
	}

	if w.active != nil {
		if err := w.active.Close(); err != nil {
			return nil, err
		}
		w.active = nil
	}
	w.finalized = true

	names := append([]string(nil), w.fileNames...)
	sort.Strings(names)

	store := NewIndexStore(w.fs, w.sidecarPath, "")
	if err := store.Regenerate(w.dir, names); err != nil {
		return nil, err
	}
	if err := store.Persist(); err != nil {
		return nil, err
	}
	return store, nil
}
