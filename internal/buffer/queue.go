// Package buffer holds reports between the sampling loop and the transport.
// Queue is the bounded in-memory backlog; Spool persists the backlog across
// restarts.
package buffer

import (
	"context"
	"sync"

	"github.com/Guliveer/hostpulse/internal/models"
)

// DefaultCapacity is the default number of reports held while the
// connection is down.
const DefaultCapacity = 10

// Item is a queued report with its queue sequence number.
type Item struct {
	Seq    uint64
	Report *models.MachineReport
}

// Queue is a bounded FIFO with drop-oldest eviction. One producer pushes and
// one consumer peeks, sends and acks; the head stays queued until acked so a
// failed send loses nothing.
type Queue struct {
	mu       sync.Mutex
	items    []Item
	capacity int
	nextSeq  uint64
	notify   chan struct{}
}

// NewQueue creates a queue holding at most capacity reports.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{
		items:    make([]Item, 0, capacity),
		capacity: capacity,
		nextSeq:  1,
		notify:   make(chan struct{}, 1),
	}
}

// Push appends a report. When the queue is full the oldest item is evicted
// and returned with evicted set to true.
func (q *Queue) Push(report *models.MachineReport) (old Item, evicted bool) {
	q.mu.Lock()
	if len(q.items) == q.capacity {
		old, evicted = q.items[0], true
		copy(q.items, q.items[1:])
		q.items = q.items[:len(q.items)-1]
	}
	q.items = append(q.items, Item{Seq: q.nextSeq, Report: report})
	q.nextSeq++
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return old, evicted
}

// Peek returns the head without removing it.
func (q *Queue) Peek() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Item{}, false
	}
	return q.items[0], true
}

// Wait blocks until the queue is non-empty and returns the head without
// removing it.
func (q *Queue) Wait(ctx context.Context) (Item, error) {
	for {
		if item, ok := q.Peek(); ok {
			return item, nil
		}
		select {
		case <-q.notify:
		case <-ctx.Done():
			return Item{}, ctx.Err()
		}
	}
}

// Ack removes the head if it is still seq. It reports false when the item
// was evicted by the producer in the meantime.
func (q *Queue) Ack(seq uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 || q.items[0].Seq != seq {
		return false
	}
	copy(q.items, q.items[1:])
	q.items[len(q.items)-1] = Item{}
	q.items = q.items[:len(q.items)-1]
	return true
}

// Len returns the number of queued reports.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Capacity returns the queue bound.
func (q *Queue) Capacity() int { return q.capacity }

// Drain removes and returns every queued report, oldest first.
func (q *Queue) Drain() []*models.MachineReport {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*models.MachineReport, len(q.items))
	for i, it := range q.items {
		out[i] = it.Report
	}
	q.items = q.items[:0]
	return out
}
