package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotClock_StartsAtStart(t *testing.T) {
	clock := NewSlotClock(1000, 8)
	assert.Equal(t, int64(1000), clock.Current())
	assert.Equal(t, int64(1000), clock.Next())
	assert.Equal(t, int64(1000), clock.Current())
}

func TestSlotClock_NextAdvancesByStep(t *testing.T) {
	clock := NewSlotClock(0, 10)

	assert.Equal(t, int64(0), clock.Next())
	assert.Equal(t, int64(10), clock.Next())
	assert.Equal(t, int64(20), clock.Next())
	assert.Equal(t, int64(20), clock.Current())
}

func TestSlotClock_DefaultStep(t *testing.T) {
	clock := NewSlotClock(100, 0)
	clock.Next()
	assert.Equal(t, int64(100+DefaultBlockTime), clock.Next())
}

func TestSlotClock_Reset(t *testing.T) {
	clock := NewSlotClock(50, 5)
	clock.Next()
	clock.Next()
	clock.Next()
	assert.Equal(t, int64(60), clock.Current())

	clock.Reset()
	assert.Equal(t, int64(50), clock.Current())
	assert.Equal(t, int64(50), clock.Next())
}

func TestSlotClock_ThreadSafe(t *testing.T) {
	clock := NewSlotClock(0, 1)
	const numGoroutines = 50
	const callsPerGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	results := make([][]int64, numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		results[i] = make([]int64, callsPerGoroutine)
		go func(idx int) {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				results[idx][j] = clock.Next()
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]bool)
	for _, row := range results {
		for _, v := range row {
			require.False(t, seen[v], "duplicate timestamp %d", v)
			seen[v] = true
		}
	}
	assert.Len(t, seen, numGoroutines*callsPerGoroutine)
}
