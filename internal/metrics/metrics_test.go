package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecordUnderrunIncrementsCounter(t *testing.T) {
	r := New(nil)
	r.RecordUnderrun("dev-1")
	r.RecordUnderrun("dev-1")
	assert.Equal(t, uint64(2), r.UnderrunCount("dev-1"))
}

func TestRecordFetchIntervalTracksMax(t *testing.T) {
	r := New(nil)
	r.RecordFetchInterval("stream-1", 10*time.Millisecond)
	r.RecordFetchInterval("stream-1", 5*time.Millisecond)
	r.RecordFetchInterval("stream-1", 50*time.Millisecond)

	assert.Equal(t, 50*time.Millisecond, r.longestFetches["stream-1"])
}
