package queue

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go-qtbridge/pkg/metrics"
)

type Item struct {
	Payload     interface{}
	Priority    int
	EnqueueTime time.Time
	seq         uint64
}

type Options struct {
	MaxSize   int
	BatchSize int
	Interval  time.Duration
	// 为 true 时按优先级出队 相同优先级保持入队顺序
	Priority bool
}

// 有界批处理队列 满时丢弃新项并累加错误计数 从不阻塞生产者
// 排空循环在队列清空后停止 下次入队时惰性重启
type Queue struct {
	mu      sync.Mutex
	items   []*Item
	opts    Options
	handler func([]*Item)

	draining bool
	nextSeq  uint64
	dropped  atomic.Int64
	closed   bool
}

func New(opts Options, handler func([]*Item)) *Queue {
	if opts.MaxSize <= 0 {
		opts.MaxSize = 256
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 16
	}
	if opts.Interval <= 0 {
		opts.Interval = 100 * time.Millisecond
	}
	return &Queue{opts: opts, handler: handler}
}

// 满时返回 false 并递增错误计数
func (q *Queue) Enqueue(payload interface{}, priority int) bool {
	q.mu.Lock()
	if q.closed || len(q.items) >= q.opts.MaxSize {
		q.mu.Unlock()
		q.dropped.Add(1)
		metrics.QueueOverflow.Inc()
		return false
	}

	q.nextSeq++
	q.items = append(q.items, &Item{
		Payload:     payload,
		Priority:    priority,
		EnqueueTime: time.Now(),
		seq:         q.nextSeq,
	})

	start := !q.draining
	if start {
		q.draining = true
	}
	q.mu.Unlock()

	if start {
		go q.drainLoop()
	}
	return true
}

func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}

func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

func (q *Queue) drainLoop() {
	ticker := time.NewTicker(q.opts.Interval)
	defer ticker.Stop()

	for range ticker.C {
		batch := q.takeBatch()
		if len(batch) > 0 && q.handler != nil {
			q.handler(batch)
		}

		q.mu.Lock()
		if len(q.items) == 0 || q.closed {
			// 队列已空 停止排空 下次 Enqueue 重启
			q.draining = false
			q.mu.Unlock()
			return
		}
		q.mu.Unlock()
	}
}

func (q *Queue) takeBatch() []*Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}

	if q.opts.Priority {
		// 优先级高者先出 同级按入队序号保持稳定
		sort.SliceStable(q.items, func(i, j int) bool {
			if q.items[i].Priority != q.items[j].Priority {
				return q.items[i].Priority > q.items[j].Priority
			}
			return q.items[i].seq < q.items[j].seq
		})
	}

	n := q.opts.BatchSize
	if n > len(q.items) {
		n = len(q.items)
	}
	batch := q.items[:n]
	q.items = append([]*Item(nil), q.items[n:]...)
	return batch
}
