package pcap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatFileNameDefaultFormat(t *testing.T) {
	ts := time.Date(2026, time.March, 5, 14, 30, 7, 123456700, time.UTC)
	got := formatFileName(defaultFileNameFormat, ts)
	assert.Equal(t, "260305_143007_1234567", got)
}

func TestFormatFileNamePreservesLiterals(t *testing.T) {
	ts := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	got := formatFileName("yyyy-MM-dd/HH.mm.ss", ts)
	assert.Equal(t, "2026-01-01/00.00.00", got)
}

func TestFormatFileNameFractionalTruncatesNotRounds(t *testing.T) {
	ts := time.Date(2026, time.January, 1, 0, 0, 0, 999999999, time.UTC)
	assert.Equal(t, "9", formatFileName("f", ts))
	assert.Equal(t, "99", formatFileName("ff", ts))
}
