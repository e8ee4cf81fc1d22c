package db

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/fzft/go-mock-kv/proto"
)

type ttlRecord struct {
	key      proto.Key
	expireAt time.Time
	valid    bool
	index    int
}

// ttlRecords implements heap.Interface ordered by expiry.
type ttlRecords []*ttlRecord

func (r ttlRecords) Len() int           { return len(r) }
func (r ttlRecords) Less(i, j int) bool { return r[i].expireAt.Before(r[j].expireAt) }

func (r ttlRecords) Swap(i, j int) {
	r[i], r[j] = r[j], r[i]
	r[i].index = i
	r[j].index = j
}

func (r *ttlRecords) Push(x any) {
	rec := x.(*ttlRecord)
	rec.index = len(*r)
	*r = append(*r, rec)
}

func (r *ttlRecords) Pop() any {
	old := *r
	n := len(old)
	rec := old[n-1]
	old[n-1] = nil
	rec.index = -1
	*r = old[:n-1]
	return rec
}

// TTLHeap is a min-heap of expiry deadlines. Replaced or invalidated records stay in the heap as
// tombstones and are dropped when they reach the front.
type TTLHeap struct {
	mu      sync.Mutex
	records ttlRecords
	index   map[proto.Key]*ttlRecord

	// notify holds at most one pending wake-up for consumers blocked in Get.
	notify chan struct{}
	now    func() time.Time
}

func NewTTLHeap() *TTLHeap {
	return &TTLHeap{
		index:  make(map[proto.Key]*ttlRecord),
		notify: make(chan struct{}, 1),
		now:    time.Now,
	}
}

// Put schedules key to expire at expireAt, replacing any earlier deadline for it.
func (h *TTLHeap) Put(key proto.Key, expireAt time.Time) {
	h.mu.Lock()
	if old, ok := h.index[key]; ok {
		old.valid = false
	}
	rec := &ttlRecord{key: key, expireAt: expireAt, valid: true}
	heap.Push(&h.records, rec)
	h.index[key] = rec
	front := h.records[0] == rec
	h.mu.Unlock()

	if front {
		h.wake()
	}
}

// Invalidate cancels the deadline for key, if any.
func (h *TTLHeap) Invalidate(key proto.Key) {
	h.mu.Lock()
	if rec, ok := h.index[key]; ok {
		rec.valid = false
	}
	h.mu.Unlock()
}

// Deadline returns the live deadline for key.
func (h *TTLHeap) Deadline(key proto.Key) (time.Time, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rec, ok := h.index[key]
	if !ok || !rec.valid {
		return time.Time{}, false
	}
	return rec.expireAt, true
}

// Len counts stored records, tombstones included.
func (h *TTLHeap) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}

// Get blocks until the earliest live deadline has passed, then removes that record and returns its key.
func (h *TTLHeap) Get(ctx context.Context) (proto.Key, time.Time, error) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		h.mu.Lock()
		if len(h.records) == 0 {
			h.mu.Unlock()
			select {
			case <-h.notify:
				continue
			case <-ctx.Done():
				return "", time.Time{}, ctx.Err()
			}
		}

		front := h.records[0]
		if !front.valid {
			h.popFront()
			h.mu.Unlock()
			continue
		}

		wait := front.expireAt.Sub(h.now())
		if wait <= 0 {
			h.popFront()
			h.mu.Unlock()
			return front.key, front.expireAt, nil
		}
		h.mu.Unlock()

		if timer == nil {
			timer = time.NewTimer(wait)
		} else {
			timer.Reset(wait)
		}
		select {
		case <-h.notify:
			timer.Stop()
		case <-timer.C:
		case <-ctx.Done():
			return "", time.Time{}, ctx.Err()
		}
	}
}

// popFront removes records[0]. Callers hold mu.
func (h *TTLHeap) popFront() {
	rec := heap.Pop(&h.records).(*ttlRecord)
	if h.index[rec.key] == rec {
		delete(h.index, rec.key)
	}
}

func (h *TTLHeap) wake() {
	select {
	case h.notify <- struct{}{}:
	default:
	}
}
