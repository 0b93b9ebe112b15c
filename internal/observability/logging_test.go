package observability_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/packetvault/pcapstore/internal/observability"
)

func TestNewCoreLoggerAttachesGlobalTags(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewTextHandler(&buf, nil)
	logger := observability.NewCoreLogger(
		slog.New(handler),
		observability.Tags{"dataset": "capture-001"},
	)

	logger.Info("opened dataset")

	assert.Contains(t, buf.String(), "dataset=capture-001")
	assert.Contains(t, buf.String(), "opened dataset")
}

func TestWithAddsTagsWithoutMutatingParent(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewCoreLogger(
		slog.New(slog.NewTextHandler(&buf, nil)),
		observability.Tags{"dataset": "capture-001"},
	)

	child := logger.With("file", "250101_000000_0000000.pcap")
	child.Warn("skipping corrupt frame")

	assert.Contains(t, buf.String(), "file=250101_000000_0000000.pcap")
	assert.Equal(t, observability.Tags{"dataset": "capture-001"}, logger.GetTags())
}

func TestNoOpLoggerDiscardsOutput(t *testing.T) {
	logger := observability.NewNoOpLogger()
	assert.NotPanics(t, func() {
		logger.Error("should not be observed by anyone")
	})
}
