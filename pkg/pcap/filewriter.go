package pcap

import (
	"bufio"

	"github.com/spf13/afero"
)

// FileWriter appends packet frames to one container file. Not safe for
// concurrent use.
type FileWriter struct {
	file afero.File
	bw   *bufio.Writer

	autoFlush   bool
	packetCount uint64
	totalSize   int64
}

// CreateFileWriter creates (truncating if necessary) the container file at
// path and writes its file header. The header is flushed immediately so a
// concurrent reader opening the file right away sees a well-formed, if
// empty, container.
func CreateFileWriter(fs afero.Fs, path string, snapLen, network uint32, bufferSize int, autoFlush bool) (*FileWriter, error) {
	const op = "filewriter.create"

	file, err := fs.Create(path)
	if err != nil {
		return nil, newError(KindIO, op, "failed to create container file", err)
	}

	header := newFileHeader(snapLen, network)
	if _, err := file.Write(header.encode()); err != nil {
		_ = file.Close()
		return nil, newError(KindIO, op, "failed to write file header", err)
	}

	w := &FileWriter{
		file:      file,
		bw:        bufio.NewWriterSize(file, bufferSize),
		autoFlush: autoFlush,
		totalSize: fileHeaderSize,
	}
	return w, nil
}

// PacketCount returns the number of packets written so far.
func (w *FileWriter) PacketCount() uint64 {
	return w.packetCount
}

// TotalSize returns the total number of bytes written, header included.
// Authoritative for roll-over decisions that key off max_file_size_bytes.
func (w *FileWriter) TotalSize() int64 {
	return w.totalSize
}

// WritePacket appends p as a new frame and returns the byte offset its
// frame header starts at, suitable for an index entry or FileReader.ReadAt.
func (w *FileWriter) WritePacket(p Packet) (int64, error) {
	const op = "filewriter.writePacket"

	offset := w.totalSize
	frame := encodeFrame(p)

	if _, err := w.bw.Write(frame); err != nil {
		return 0, newError(KindIO, op, "failed to write frame", err)
	}

	w.totalSize += int64(len(frame))
	w.packetCount++

	if w.autoFlush {
		if err := w.bw.Flush(); err != nil {
			return 0, newError(KindIO, op, "failed to flush frame", err)
		}
	}

	return offset, nil
}

// Flush pushes any buffered bytes to the underlying file.
func (w *FileWriter) Flush() error {
	if err := w.bw.Flush(); err != nil {
		return newError(KindIO, "filewriter.flush", "failed to flush", err)
	}
	return nil
}

// Close flushes and closes the container file.
func (w *FileWriter) Close() error {
	if err := w.Flush(); err != nil {
		return err
	}
	if err := w.file.Close(); err != nil {
		return newError(KindIO, "filewriter.close", "failed to close container file", err)
	}
	return nil
}
