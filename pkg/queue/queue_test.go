package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestQueue_OverflowDropsNewest(t *testing.T) {
	q := New(Options{MaxSize: 3, BatchSize: 10, Interval: time.Hour}, nil)
	defer q.Close()

	for i := 0; i < 3; i++ {
		assert.True(t, q.Enqueue(i, 0))
	}
	assert.False(t, q.Enqueue(99, 0), "enqueue beyond capacity should be rejected")
	assert.Equal(t, 3, q.Size())
	assert.Equal(t, int64(1), q.Dropped())
}

func TestQueue_PriorityDrainOrder(t *testing.T) {
	var mu sync.Mutex
	var got []interface{}
	done := make(chan struct{})

	q := New(Options{MaxSize: 10, BatchSize: 10, Interval: 10 * time.Millisecond, Priority: true},
		func(batch []*Item) {
			mu.Lock()
			for _, it := range batch {
				got = append(got, it.Payload)
			}
			mu.Unlock()
			close(done)
		})
	defer q.Close()

	q.Enqueue("low-first", 1)
	q.Enqueue("low-second", 1)
	q.Enqueue("high-last", 5)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("drain did not run")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []interface{}{"high-last", "low-first", "low-second"}, got)
}

func TestQueue_DrainStopsWhenEmptyAndRestarts(t *testing.T) {
	var mu sync.Mutex
	count := 0

	q := New(Options{MaxSize: 10, BatchSize: 10, Interval: 5 * time.Millisecond},
		func(batch []*Item) {
			mu.Lock()
			count += len(batch)
			mu.Unlock()
		})
	defer q.Close()

	q.Enqueue("a", 0)
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	}, time.Second, 5*time.Millisecond)

	// 排空后再次入队应重启排空循环
	q.Enqueue("b", 0)
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 2
	}, time.Second, 5*time.Millisecond)
}
