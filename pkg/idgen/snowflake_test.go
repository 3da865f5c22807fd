package idgen

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextID_Unique(t *testing.T) {
	Init(1)

	seen := make(map[int64]struct{})
	for i := 0; i < 10000; i++ {
		id := NextID()
		_, dup := seen[id]
		assert.False(t, dup, "重复ID: %d", id)
		seen[id] = struct{}{}
	}
}

func TestNextID_ConcurrentUnique(t *testing.T) {
	Init(1)

	const goroutines = 10
	const perGoroutine = 1000

	var mu sync.Mutex
	seen := make(map[int64]struct{})
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids := make([]int64, 0, perGoroutine)
			for i := 0; i < perGoroutine; i++ {
				ids = append(ids, NextID())
			}
			mu.Lock()
			defer mu.Unlock()
			for _, id := range ids {
				seen[id] = struct{}{}
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, goroutines*perGoroutine)
}

func TestBizNoPrefixes(t *testing.T) {
	assert.True(t, strings.HasPrefix(GeneratePurchaseNo(), "BUY"))
	assert.True(t, strings.HasPrefix(GenerateTransactionNo(), "TXN"))
	assert.True(t, strings.HasPrefix(GenerateRefundNo(), "REF"))
}
