package broker

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// Memory is the in-process broker used by single-binary deployments and
// tests. Publishing an id already in the ready set is a no-op, so
// reconcile passes can republish safely.
type Memory struct {
	mu      sync.Mutex
	seq     uint64
	ready   readyHeap
	live    map[string]uint64 // id -> seq of its live heap entry
	delayed map[string]delayedEntry
}

type readyItem struct {
	id       string
	priority int
	seq      uint64
}

type delayedEntry struct {
	priority  int
	notBefore time.Time
}

func NewMemory() *Memory {
	return &Memory{
		live:    make(map[string]uint64),
		delayed: make(map[string]delayedEntry),
	}
}

var _ Broker = (*Memory)(nil)

func (m *Memory) Publish(ctx context.Context, jobID string, priority int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.delayed, jobID)
	m.publishLocked(jobID, priority)
	return nil
}

func (m *Memory) publishLocked(jobID string, priority int) {
	if _, ok := m.live[jobID]; ok {
		return
	}
	m.seq++
	m.live[jobID] = m.seq
	heap.Push(&m.ready, readyItem{id: jobID, priority: priority, seq: m.seq})
}

func (m *Memory) Delay(ctx context.Context, jobID string, priority int, notBefore time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Tombstone any ready entry; the heap copy is skipped on pop.
	delete(m.live, jobID)
	m.delayed[jobID] = delayedEntry{priority: priority, notBefore: notBefore}
	return nil
}

func (m *Memory) Reserve(ctx context.Context) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.moveDueLocked(time.Now())

	for m.ready.Len() > 0 {
		it := heap.Pop(&m.ready).(readyItem)
		if seq, ok := m.live[it.id]; ok && seq == it.seq {
			delete(m.live, it.id)
			return it.id, true, nil
		}
	}
	return "", false, nil
}

func (m *Memory) Discard(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.live, jobID)
	delete(m.delayed, jobID)
	return nil
}

func (m *Memory) MoveDue(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.moveDueLocked(now), nil
}

func (m *Memory) moveDueLocked(now time.Time) int {
	moved := 0
	for id, e := range m.delayed {
		if e.notBefore.After(now) {
			continue
		}
		delete(m.delayed, id)
		m.publishLocked(id, e.priority)
		moved++
	}
	return moved
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

type readyHeap []readyItem

func (h readyHeap) Len() int { return len(h) }

func (h readyHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h readyHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *readyHeap) Push(x any) { *h = append(*h, x.(readyItem)) }

func (h *readyHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}
