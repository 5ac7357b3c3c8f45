package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecordTiming(t *testing.T) {
	c := NewCollector()
	c.RecordTiming(OpIndexSearch, 10*time.Millisecond)
	c.RecordTiming(OpIndexSearch, 30*time.Millisecond)

	snap := c.Snapshot()
	op := snap.Operations[OpIndexSearch]
	assert.Equal(t, int64(2), op.Count)
	assert.Equal(t, int64(10), op.MinTimeMs)
	assert.Equal(t, int64(30), op.MaxTimeMs)
	assert.Equal(t, int64(40), op.TotalTimeMs)
}

func TestRecordErrorOnly(t *testing.T) {
	c := NewCollector()
	c.RecordError(OpDocFetch)

	snap := c.Snapshot()
	op := snap.Operations[OpDocFetch]
	assert.Equal(t, int64(1), op.Errors)
	assert.Equal(t, int64(0), op.MinTimeMs, "min sentinel should be reset for display")
}

func TestConcurrentRecording(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RecordTiming(OpLLMGenerate, time.Millisecond)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), c.Snapshot().Operations[OpLLMGenerate].Count)
}
