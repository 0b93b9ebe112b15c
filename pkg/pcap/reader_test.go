package pcap

import (
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findContainerPath(t *testing.T, fs afero.Fs, dir string) string {
	t.Helper()
	files, err := afero.ReadDir(fs, dir)
	require.NoError(t, err)
	for _, f := range files {
		if strings.HasSuffix(f.Name(), containerFileExtension) {
			return dir + "/" + f.Name()
		}
	}
	t.Fatal("no container file found")
	return ""
}

func buildDataset(t *testing.T, fs afero.Fs, dir string, count int, spacingNs uint64) []uint64 {
	t.Helper()

	cfg := DefaultWriterConfig()
	cfg.MaxPacketsPerFile = 97 // force several roll-overs across a 1000-packet dataset

	w, err := CreateWriter(fs, dir, dir+"/index.pidx", 65535, 1, cfg)
	require.NoError(t, err)

	timestamps := make([]uint64, count)
	for i := 0; i < count; i++ {
		ts := uint64(i+1) * spacingNs
		timestamps[i] = ts
		require.NoError(t, w.WritePacket(Packet{TimestampNs: ts, Data: []byte("payload")}))
	}

	_, err = w.Finalize()
	require.NoError(t, err)
	return timestamps
}

func TestReaderSequentialReadMatchesWriteOrder(t *testing.T) {
	fs := afero.NewMemMapFs()
	timestamps := buildDataset(t, fs, "/ds", 250, 10_000)

	r, err := OpenReader(fs, "/ds", "/ds/index.pidx", DefaultReaderConfig())
	require.NoError(t, err)
	defer r.Close()

	for _, want := range timestamps {
		pkt, err := r.ReadPacket()
		require.NoError(t, err)
		require.NotNil(t, pkt)
		assert.Equal(t, want, pkt.TimestampNs)
		assert.True(t, pkt.Valid)
	}

	last, err := r.ReadPacket()
	require.NoError(t, err)
	assert.Nil(t, last)

	eof, err := r.IsEOF()
	require.NoError(t, err)
	assert.True(t, eof)
}

func TestReaderRangeQueryReturnsExactSlice(t *testing.T) {
	fs := afero.NewMemMapFs()
	timestamps := buildDataset(t, fs, "/ds", 1000, 10_000)

	r, err := OpenReader(fs, "/ds", "/ds/index.pidx", DefaultReaderConfig())
	require.NoError(t, err)
	defer r.Close()

	got, err := r.ReadPacketsByTimeRange(timestamps[200], timestamps[800])
	require.NoError(t, err)
	require.Len(t, got, 601)

	for i := 1; i < len(got); i++ {
		assert.Less(t, got[i-1].TimestampNs, got[i].TimestampNs)
	}
	assert.Equal(t, timestamps[200], got[0].TimestampNs)
	assert.Equal(t, timestamps[800], got[len(got)-1].TimestampNs)
}

func TestReaderSeekToPacketAndSeekToTimestamp(t *testing.T) {
	fs := afero.NewMemMapFs()
	timestamps := buildDataset(t, fs, "/ds", 300, 5_000)

	r, err := OpenReader(fs, "/ds", "/ds/index.pidx", DefaultReaderConfig())
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.SeekToPacket(150))
	pkt, err := r.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, timestamps[150], pkt.TimestampNs)

	landed, err := r.SeekToTimestamp(timestamps[42])
	require.NoError(t, err)
	assert.Equal(t, timestamps[42], landed)

	idx, err := r.CurrentPacketIndex()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), idx)
}

func TestReaderSeekToPacketOutOfRange(t *testing.T) {
	fs := afero.NewMemMapFs()
	buildDataset(t, fs, "/ds", 10, 1_000)

	r, err := OpenReader(fs, "/ds", "/ds/index.pidx", DefaultReaderConfig())
	require.NoError(t, err)
	defer r.Close()

	err = r.SeekToPacket(10)
	assert.Equal(t, KindInvalidArgument, KindOf(err))
}

func TestReaderProgressAndReset(t *testing.T) {
	fs := afero.NewMemMapFs()
	buildDataset(t, fs, "/ds", 100, 1_000)

	r, err := OpenReader(fs, "/ds", "/ds/index.pidx", DefaultReaderConfig())
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.SeekToPacket(49))
	_, err = r.ReadPacket()
	require.NoError(t, err)

	progress, err := r.Progress()
	require.NoError(t, err)
	assert.InDelta(t, 0.5, progress, 0.001)

	require.NoError(t, r.Reset())
	idx, err := r.CurrentPacketIndex()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), idx)
}

func TestReaderSkipPacketsClampsToLastPacket(t *testing.T) {
	fs := afero.NewMemMapFs()
	buildDataset(t, fs, "/ds", 10, 1_000)

	r, err := OpenReader(fs, "/ds", "/ds/index.pidx", DefaultReaderConfig())
	require.NoError(t, err)
	defer r.Close()

	skipped, err := r.SkipPackets(100)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), skipped)

	idx, err := r.CurrentPacketIndex()
	require.NoError(t, err)
	assert.Equal(t, uint64(9), idx)
}

func TestReaderReadPacketByTimestampExactOnly(t *testing.T) {
	fs := afero.NewMemMapFs()
	timestamps := buildDataset(t, fs, "/ds", 20, 1_000)

	r, err := OpenReader(fs, "/ds", "/ds/index.pidx", DefaultReaderConfig())
	require.NoError(t, err)
	defer r.Close()

	pkt, err := r.ReadPacketByTimestamp(timestamps[5])
	require.NoError(t, err)
	assert.Equal(t, timestamps[5], pkt.TimestampNs)

	_, err = r.ReadPacketByTimestamp(timestamps[5] + 1)
	assert.Equal(t, KindInvalidArgument, KindOf(err))
}

func TestReaderStrictCRCRejectsCorruptedPacket(t *testing.T) {
	fs := afero.NewMemMapFs()
	buildDataset(t, fs, "/ds", 1, 1_000)

	containerPath := findContainerPath(t, fs, "/ds")
	data, err := afero.ReadFile(fs, containerPath)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xFF
	require.NoError(t, afero.WriteFile(fs, containerPath, data, 0o644))

	cfg := DefaultReaderConfig()
	cfg.StrictCRC = true
	r, err := OpenReader(fs, "/ds", "/ds/index.pidx", cfg)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.ReadPacket()
	assert.Equal(t, KindChecksumMismatch, KindOf(err))
}

func TestReaderSoftCRCReturnsInvalidPacketInstead(t *testing.T) {
	fs := afero.NewMemMapFs()
	buildDataset(t, fs, "/ds", 1, 1_000)

	containerPath := findContainerPath(t, fs, "/ds")
	data, err := afero.ReadFile(fs, containerPath)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xFF
	require.NoError(t, afero.WriteFile(fs, containerPath, data, 0o644))

	r, err := OpenReader(fs, "/ds", "/ds/index.pidx", DefaultReaderConfig())
	require.NoError(t, err)
	defer r.Close()

	pkt, err := r.ReadPacket()
	require.NoError(t, err)
	require.NotNil(t, pkt)
	assert.False(t, pkt.Valid)
}

func TestReaderTotalPacketsComesFromIndex(t *testing.T) {
	fs := afero.NewMemMapFs()
	buildDataset(t, fs, "/ds", 5, 1_000)

	files, err := afero.ReadDir(fs, "/ds")
	require.NoError(t, err)
	require.Len(t, files, 2) // one container + one sidecar

	r, err := OpenReader(fs, "/ds", "/ds/index.pidx", DefaultReaderConfig())
	require.NoError(t, err)
	total, err := r.TotalPackets()
	require.NoError(t, err)
	assert.Equal(t, uint64(5), total)
	require.NoError(t, r.Close())
}
