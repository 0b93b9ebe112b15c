package pcap

import (
	"bufio"
	"errors"
	"io"
	"os"

	"github.com/spf13/afero"
)

// FileReader does sequential or positioned byte-level reads over one
// container file. Not safe for concurrent use.
type FileReader struct {
	fs         afero.Fs
	file       afero.File
	br         *bufio.Reader
	header     FileHeader
	path       string
	size       int64
	bufferSize int

	// position is the byte offset the reader's view is currently at,
	// i.e. what SeekTo/ReadNext leave it pointing to next.
	position int64
}

// OpenFileReader opens path for reading, validating the container header.
//
// The cursor is left positioned immediately after the file header, ready
// for ReadNext.
func OpenFileReader(fs afero.Fs, path string, bufferSize int) (*FileReader, error) {
	const op = "filereader.open"

	info, err := fs.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, newError(KindFileNotFound, op, "container file does not exist: "+path, err)
		}
		return nil, newError(KindIO, op, "failed to stat container file", err)
	}
	if info.Size() < fileHeaderSize {
		return nil, newError(KindCorruptedHeader, op, "file is smaller than a file header", nil)
	}

	file, err := fs.Open(path)
	if err != nil {
		return nil, newError(KindIO, op, "failed to open container file", err)
	}

	headerBuf := make([]byte, fileHeaderSize)
	if _, err := io.ReadFull(file, headerBuf); err != nil {
		_ = file.Close()
		return nil, newError(KindCorruptedHeader, op, "failed to read file header", err)
	}

	header, err := decodeFileHeader(headerBuf)
	if err != nil {
		_ = file.Close()
		return nil, err
	}

	return &FileReader{
		fs:         fs,
		file:       file,
		br:         bufio.NewReaderSize(file, bufferSize),
		header:     header,
		path:       path,
		size:       info.Size(),
		bufferSize: bufferSize,
		position:   fileHeaderSize,
	}, nil
}

// Header returns the container's decoded file header.
func (r *FileReader) Header() FileHeader {
	return r.header
}

// Size returns the total size, in bytes, of the container file as observed
// at open time.
func (r *FileReader) Size() int64 {
	return r.size
}

// Position returns the byte offset the next ReadNext will read from.
func (r *FileReader) Position() int64 {
	return r.position
}

// ReadNext reads one frame from the current position.
//
// Returns (nil, nil) at EOF, i.e. when fewer than 16 bytes remain. The
// packet is returned even if its checksum doesn't match; ValidatedPacket.Valid
// conveys integrity.
func (r *FileReader) ReadNext() (*ValidatedPacket, error) {
	const op = "filereader.readNext"

	headerBuf := make([]byte, frameHeaderSize)
	if _, err := io.ReadFull(r.br, headerBuf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, nil
		}
		return nil, newError(KindIO, op, "failed to read frame header", err)
	}

	fh, err := decodeFrameHeader(headerBuf)
	if err != nil {
		return nil, err
	}

	remaining := r.size - r.position - frameHeaderSize
	if remaining < 0 || uint64(fh.PacketLen) > uint64(remaining) {
		return nil, newError(KindPacketSizeExceedsRemainingBytes, op,
			"declared packet length exceeds bytes remaining in file", nil)
	}

	payload := make([]byte, fh.PacketLen)
	if _, err := io.ReadFull(r.br, payload); err != nil {
		return nil, newError(KindIO, op, "truncated payload: short read mid-frame", err)
	}

	r.position += frameHeaderSize + int64(fh.PacketLen)

	packet := assemblePacket(fh, payload)
	return &packet, nil
}

// SeekTo unconditionally repositions the byte cursor to byteOffset.
func (r *FileReader) SeekTo(byteOffset int64) error {
	const op = "filereader.seekTo"

	if _, err := r.file.Seek(byteOffset, io.SeekStart); err != nil {
		return newError(KindIO, op, "failed to seek", err)
	}
	r.br = bufio.NewReaderSize(r.file, r.bufferSize)
	r.position = byteOffset
	return nil
}

// ReadAt seeks to byteOffset and reads the frame there. Unlike ReadNext, it
// fails rather than returning a nil packet if the offset lands on EOF.
func (r *FileReader) ReadAt(byteOffset int64) (*ValidatedPacket, error) {
	const op = "filereader.readAt"

	if err := r.SeekTo(byteOffset); err != nil {
		return nil, err
	}

	packet, err := r.ReadNext()
	if err != nil {
		return nil, err
	}
	if packet == nil {
		return nil, newError(KindInvalidState, op, "no frame at the requested offset", nil)
	}
	return packet, nil
}

// Close releases the underlying file handle.
func (r *FileReader) Close() error {
	if err := r.file.Close(); err != nil {
		return newError(KindIO, "filereader.close", "failed to close container file", err)
	}
	return nil
}
