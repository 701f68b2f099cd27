package parallel

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFor(t *testing.T) {
	var counter int64
	For(1000, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, DefaultConfig())
	assert.Equal(t, int64(1000), counter)
}

func TestFor_Sequential(t *testing.T) {
	var counter int64
	For(100, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, Config{Enabled: false})
	assert.Equal(t, int64(100), counter)
}

func TestForBatch(t *testing.T) {
	batch, channels := 4, 8
	var mu sync.Mutex
	seen := make(map[[2]int]bool)

	ForBatch(batch, channels, func(b, c int) {
		mu.Lock()
		seen[[2]int{b, c}] = true
		mu.Unlock()
	}, KernelConfig())

	assert.Len(t, seen, batch*channels)
}

func TestRange_CoversWithoutOverlap(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 3, MinChunkSize: 1}
	hits := make([]int32, 10)

	Range(len(hits), func(start, end int) {
		for i := start; i < end; i++ {
			atomic.AddInt32(&hits[i], 1)
		}
	}, cfg)

	for i, h := range hits {
		assert.Equal(t, int32(1), h, "index %d", i)
	}
}

func TestRange_Empty(t *testing.T) {
	called := false
	Range(0, func(_, _ int) { called = true }, KernelConfig())
	assert.False(t, called)
}
