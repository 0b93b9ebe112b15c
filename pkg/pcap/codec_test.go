package pcap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileHeaderRoundTrip(t *testing.T) {
	h := newFileHeader(65535, 1)
	decoded, err := decodeFileHeader(h.encode())
	require.NoError(t, err)
	assert.Equal(t, h, decoded)
}

func TestDecodeFileHeaderRejectsShortBuffer(t *testing.T) {
	_, err := decodeFileHeader(make([]byte, 10))
	assert.Equal(t, KindCorruptedHeader, KindOf(err))
}

func TestDecodeFileHeaderRejectsWrongMagic(t *testing.T) {
	buf := newFileHeader(0, 0).encode()
	buf[0] ^= 0xFF
	_, err := decodeFileHeader(buf)
	assert.Equal(t, KindInvalidFormat, KindOf(err))
}

func TestDecodeFileHeaderRejectsWrongVersion(t *testing.T) {
	buf := newFileHeader(0, 0).encode()
	buf[6] = 9 // minor version
	_, err := decodeFileHeader(buf)
	assert.Equal(t, KindInvalidFormat, KindOf(err))
}

func TestFrameRoundTrip(t *testing.T) {
	p := Packet{TimestampNs: 1_700_000_000_123_456_789, Data: []byte("hello packet")}
	wire := encodeFrame(p)

	fh, err := decodeFrameHeader(wire[:frameHeaderSize])
	require.NoError(t, err)
	assert.Equal(t, p.TimestampNs, fh.timestampNs())
	assert.Equal(t, uint32(len(p.Data)), fh.PacketLen)

	got := assemblePacket(fh, wire[frameHeaderSize:])
	assert.True(t, got.Valid)
	assert.Equal(t, p.Data, got.Data)
	assert.Equal(t, p.TimestampNs, got.TimestampNs)
}

func TestAssemblePacketDetectsChecksumMismatch(t *testing.T) {
	p := Packet{TimestampNs: 42, Data: []byte("abc")}
	wire := encodeFrame(p)
	wire[frameHeaderSize] ^= 0xFF // corrupt a payload byte

	fh, err := decodeFrameHeader(wire[:frameHeaderSize])
	require.NoError(t, err)

	got := assemblePacket(fh, wire[frameHeaderSize:])
	assert.False(t, got.Valid)
}

func TestDecodeFrameHeaderRejectsOutOfRangeNanoseconds(t *testing.T) {
	p := Packet{TimestampNs: 1, Data: []byte("x")}
	wire := encodeFrame(p)
	// Stomp the nanoseconds field with an out-of-range value.
	wire[4], wire[5], wire[6], wire[7] = 0xFF, 0xFF, 0xFF, 0xFF

	_, err := decodeFrameHeader(wire[:frameHeaderSize])
	assert.Equal(t, KindTimestampParseError, KindOf(err))
}
