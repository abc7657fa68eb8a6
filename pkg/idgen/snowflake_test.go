package idgen

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSnowflake(t *testing.T) {
	_, err := NewSnowflake(-1)
	assert.Error(t, err)
	_, err = NewSnowflake(1024)
	assert.Error(t, err)

	s, err := NewSnowflake(7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), (s.Generate()>>workerIDShift)&maxWorkerID)
}

func TestGenerateUniqueConcurrent(t *testing.T) {
	s, err := NewSnowflake(3)
	require.NoError(t, err)

	const workers, perWorker = 8, 2000
	ids := make(chan int64, workers*perWorker)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				ids <- s.Generate()
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]struct{}, workers*perWorker)
	for id := range ids {
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %d", id)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, workers*perWorker)
}

func TestGeneratedNumbers(t *testing.T) {
	assert.True(t, strings.HasPrefix(GenerateTransactionNo(), "TXN"))
	assert.True(t, strings.HasPrefix(GenerateRechargeNo(), "RCH"))

	a, b := GenerateSettlementRef(), GenerateSettlementRef()
	assert.True(t, strings.HasPrefix(a, "SET"))
	assert.NotEqual(t, a, b)
	assert.LessOrEqual(t, len(a), 64)
}
