// Package pcap implements a packet-capture dataset engine: a binary
// container format for timestamped opaque packets, a multi-file dataset
// layout with roll-over, a sidecar index for random access, and a
// navigating reader over the result.
//
// This file holds the wire codec: pure functions that encode and decode
// file headers and packet frames over byte buffers. Nothing here touches a
// file handle; see FileReader and FileWriter for the streaming layer.
package pcap

import (
	"encoding/binary"
	"time"
)

const (
	// fileHeaderSize is the size, in bytes, of the container file header.
	fileHeaderSize = 24

	// frameHeaderSize is the size, in bytes, of a packet frame's header
	// (everything before the payload).
	frameHeaderSize = 16

	// fileMagic identifies a container file. Bit-exact; not configurable.
	fileMagic uint32 = 0xD4C3B2A1

	// fileMajorVersion and fileMinorVersion are the only (major, minor)
	// pair this package accepts on read and ever writes.
	fileMajorVersion uint16 = 2
	fileMinorVersion uint16 = 4

	nanosPerSecond = 1_000_000_000
)

// FileHeader is the 24-byte header at the start of every container file.
type FileHeader struct {
	Magic    uint32
	Major    uint16
	Minor    uint16
	ThisZone int32
	SigFigs  uint32
	SnapLen  uint32
	Network  uint32
}

// newFileHeader builds the header this package writes for new container
// files. ThisZone and SigFigs are always zero per the wire format.
func newFileHeader(snapLen, network uint32) FileHeader {
	return FileHeader{
		Magic:   fileMagic,
		Major:   fileMajorVersion,
		Minor:   fileMinorVersion,
		SnapLen: snapLen,
		Network: network,
	}
}

// encode writes the header into a fresh fileHeaderSize-byte buffer,
// little-endian throughout.
func (h FileHeader) encode() []byte {
	buf := make([]byte, fileHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint16(buf[4:6], h.Major)
	binary.LittleEndian.PutUint16(buf[6:8], h.Minor)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(h.ThisZone))
	binary.LittleEndian.PutUint32(buf[12:16], h.SigFigs)
	binary.LittleEndian.PutUint32(buf[16:20], h.SnapLen)
	binary.LittleEndian.PutUint32(buf[20:24], h.Network)
	return buf
}

// decodeFileHeader parses a fileHeaderSize-byte buffer and validates magic
// and version. Short buffers fail with KindCorruptedHeader; a wrong magic
// or version fails with KindInvalidFormat.
func decodeFileHeader(buf []byte) (FileHeader, error) {
	if len(buf) < fileHeaderSize {
		return FileHeader{}, newError(KindCorruptedHeader, "codec.decodeFileHeader",
			"short read: need 24 bytes for the file header", nil)
	}

	h := FileHeader{
		Magic:    binary.LittleEndian.Uint32(buf[0:4]),
		Major:    binary.LittleEndian.Uint16(buf[4:6]),
		Minor:    binary.LittleEndian.Uint16(buf[6:8]),
		ThisZone: int32(binary.LittleEndian.Uint32(buf[8:12])),
		SigFigs:  binary.LittleEndian.Uint32(buf[12:16]),
		SnapLen:  binary.LittleEndian.Uint32(buf[16:20]),
		Network:  binary.LittleEndian.Uint32(buf[20:24]),
	}

	if h.Magic != fileMagic || h.Major != fileMajorVersion || h.Minor != fileMinorVersion {
		return FileHeader{}, newError(KindInvalidFormat, "codec.decodeFileHeader",
			"magic or version mismatch: not a packet container this package can read", nil)
	}

	return h, nil
}

// Packet is an in-memory, timestamped opaque payload.
type Packet struct {
	TimestampNs uint64
	Data        []byte
}

// ValidatedPacket is a Packet read from disk, annotated with whether its
// stored checksum matched its payload. A mismatch is not itself an error:
// it's the caller's call whether to trust or discard the packet.
type ValidatedPacket struct {
	Packet
	Valid bool
}

// frameHeader is the 16-byte header preceding a packet's payload.
type frameHeader struct {
	Seconds     uint32
	Nanoseconds uint32
	PacketLen   uint32
	Checksum    uint32
}

// encodeFrame returns the full wire representation (header + payload) of a
// packet, computing its checksum over the payload bytes.
func encodeFrame(p Packet) []byte {
	seconds := p.TimestampNs / nanosPerSecond
	nanos := p.TimestampNs % nanosPerSecond

	buf := make([]byte, frameHeaderSize+len(p.Data))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(seconds))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(nanos))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(p.Data)))
	binary.LittleEndian.PutUint32(buf[12:16], computeChecksum(p.Data))
	copy(buf[frameHeaderSize:], p.Data)
	return buf
}

// decodeFrameHeader parses a frameHeaderSize-byte buffer into a frameHeader,
// without touching any payload bytes.
func decodeFrameHeader(buf []byte) (frameHeader, error) {
	if len(buf) < frameHeaderSize {
		return frameHeader{}, newError(KindCorruptedData, "codec.decodeFrameHeader",
			"short read: need 16 bytes for the frame header", nil)
	}

	fh := frameHeader{
		Seconds:     binary.LittleEndian.Uint32(buf[0:4]),
		Nanoseconds: binary.LittleEndian.Uint32(buf[4:8]),
		PacketLen:   binary.LittleEndian.Uint32(buf[8:12]),
		Checksum:    binary.LittleEndian.Uint32(buf[12:16]),
	}

	if fh.Nanoseconds >= nanosPerSecond {
		return frameHeader{}, newError(KindTimestampParseError, "codec.decodeFrameHeader",
			"nanoseconds field out of range [0, 1e9)", nil)
	}

	return fh, nil
}

// timestampNs recombines the split seconds/nanoseconds fields.
func (fh frameHeader) timestampNs() uint64 {
	return uint64(fh.Seconds)*nanosPerSecond + uint64(fh.Nanoseconds)
}

// assemblePacket pairs a decoded frame header with its payload bytes,
// computing the Valid flag from the stored checksum.
func assemblePacket(fh frameHeader, payload []byte) ValidatedPacket {
	return ValidatedPacket{
		Packet: Packet{
			TimestampNs: fh.timestampNs(),
			Data:        payload,
		},
		Valid: computeChecksum(payload) == fh.Checksum,
	}
}

// timestampFromUnixNano is a small convenience used by the dataset writer
// to name files after the wall-clock time of a packet's timestamp.
func timestampFromUnixNano(ts uint64) time.Time {
	return time.Unix(0, int64(ts)).UTC()
}
