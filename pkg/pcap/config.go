package pcap

const (
	minBufferSize = 1024
	// maxBufferSize bounds buffer_size at 50MiB; anything larger is almost
	// certainly a misconfiguration rather than a deliberate tuning choice.
	maxBufferSize = 50 * 1024 * 1024

	// defaultMaxPacketsPerFile is the roll-over threshold used when a
	// WriterConfig doesn't override it.
	defaultMaxPacketsPerFile = 500

	// defaultFileNameFormat drives naming.go's token substitution.
	defaultFileNameFormat = "yyMMdd_HHmmss_fffffff"

	defaultBufferSize     = 8192
	defaultIndexCacheSize = 1000
)

// ReaderConfig configures a Dataset Reader.
type ReaderConfig struct {
	// BufferSize is the read buffer, in bytes, each open container file
	// uses.
	BufferSize int
	// IndexCacheSize bounds the FileInfo LRU cache's entry count.
	IndexCacheSize int
	// StrictCRC, when true, turns a checksum mismatch into a
	// KindChecksumMismatch error instead of a ValidatedPacket with
	// Valid=false.
	StrictCRC bool
}

// DefaultReaderConfig returns the engine's default reader configuration.
func DefaultReaderConfig() ReaderConfig {
	return ReaderConfig{
		BufferSize:     defaultBufferSize,
		IndexCacheSize: defaultIndexCacheSize,
	}
}

// Validate reports whether c is usable, returning a KindInvalidArgument
// *Error describing the first violation found.
func (c ReaderConfig) Validate() error {
	const op = "readerconfig.validate"

	if c.BufferSize < minBufferSize {
		return newError(KindInvalidArgument, op, "buffer size must be at least 1024 bytes", nil)
	}
	if c.BufferSize > maxBufferSize {
		return newError(KindInvalidArgument, op, "buffer size must not exceed 50MiB", nil)
	}
	if c.IndexCacheSize <= 0 {
		return newError(KindInvalidArgument, op, "index cache size must be greater than 0", nil)
	}
	return nil
}

// WriterConfig configures a Dataset Writer.
type WriterConfig struct {
	BufferSize     int
	IndexCacheSize int

	// MaxPacketsPerFile is the roll-over threshold by packet count.
	MaxPacketsPerFile int
	// MaxFileSizeBytes, when non-zero, additionally rolls over once a
	// container file would exceed this size.
	MaxFileSizeBytes int64
	// FileNameFormat drives naming.go's token substitution for new
	// container file names.
	FileNameFormat string
	// AutoFlush, when true, flushes to disk after every WritePacket.
	AutoFlush bool
}

// DefaultWriterConfig returns the engine's default writer configuration.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BufferSize:        defaultBufferSize,
		IndexCacheSize:    defaultIndexCacheSize,
		MaxPacketsPerFile: defaultMaxPacketsPerFile,
		FileNameFormat:    defaultFileNameFormat,
		AutoFlush:         true,
	}
}

// Validate reports whether c is usable, returning a KindInvalidArgument
// *Error describing the first violation found.
func (c WriterConfig) Validate() error {
	const op = "writerconfig.validate"

	if c.BufferSize < minBufferSize {
		return newError(KindInvalidArgument, op, "buffer size must be at least 1024 bytes", nil)
	}
	if c.BufferSize > maxBufferSize {
		return newError(KindInvalidArgument, op, "buffer size must not exceed 50MiB", nil)
	}
	if c.IndexCacheSize <= 0 {
		return newError(KindInvalidArgument, op, "index cache size must be greater than 0", nil)
	}
	if c.MaxPacketsPerFile <= 0 {
		return newError(KindInvalidArgument, op, "max packets per file must be greater than 0", nil)
	}
	if c.MaxFileSizeBytes != 0 && c.MaxFileSizeBytes < minBufferSize {
		return newError(KindInvalidArgument, op, "max file size must be at least 1024 bytes", nil)
	}
	if c.FileNameFormat == "" {
		return newError(KindInvalidArgument, op, "file name format must not be empty", nil)
	}
	return nil
}
