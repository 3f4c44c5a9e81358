package disk

import (
	"fmt"
	"sync"

	"github.com/me/kernsim/pkg/model"
)

const none = -1

// Handle names a request in a Queue. The zero Handle names nothing.
// A handle goes stale once its request is removed, even if the slot is reused.
type Handle struct {
	index int
	gen   uint32
}

// IsZero reports whether h is the zero handle.
func (h Handle) IsZero() bool {
	return h.gen == 0
}

type slot struct {
	req  *Request
	prev int
	next int
	gen  uint32
	used bool
}

// Queue is the pending disk request queue: a doubly linked list threaded
// through a slab of slots by index. Every method takes the queue mutex.
type Queue struct {
	mu    sync.Mutex
	slots []slot
	free  []int
	head  int
	tail  int
	size  int
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{head: none, tail: none}
}

func (q *Queue) alloc(r *Request) int {
	var i int
	if n := len(q.free); n > 0 {
		i = q.free[n-1]
		q.free = q.free[:n-1]
	} else {
		q.slots = append(q.slots, slot{})
		i = len(q.slots) - 1
	}
	s := &q.slots[i]
	s.gen++
	s.req = r
	s.used = true
	s.prev, s.next = none, none
	return i
}

// PushBack appends r at the tail.
func (q *Queue) PushBack(r *Request) Handle {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.alloc(r)
	q.slots[i].prev = q.tail
	if q.tail == none {
		q.head = i
	} else {
		q.slots[q.tail].next = i
	}
	q.tail = i
	q.size++
	return Handle{index: i, gen: q.slots[i].gen}
}

// PushFront inserts r at the head.
func (q *Queue) PushFront(r *Request) Handle {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.alloc(r)
	q.slots[i].next = q.head
	if q.head == none {
		q.tail = i
	} else {
		q.slots[q.head].prev = i
	}
	q.head = i
	q.size++
	return Handle{index: i, gen: q.slots[i].gen}
}

// valid reports whether h names a live slot. Caller holds mu.
func (q *Queue) valid(h Handle) bool {
	if h.index < 0 || h.index >= len(q.slots) {
		return false
	}
	s := q.slots[h.index]
	return s.used && s.gen == h.gen
}

// Remove unlinks the request named by h and returns it. Removing with the
// zero handle, or from a nil queue, does nothing. A handle that does not
// name a queued request is ErrQueueCorruption.
func (q *Queue) Remove(h Handle) (*Request, error) {
	if q == nil || h.IsZero() {
		return nil, nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.valid(h) {
		return nil, fmt.Errorf("%w: handle %d/%d not queued", model.ErrQueueCorruption, h.index, h.gen)
	}
	s := &q.slots[h.index]
	if s.prev == none {
		q.head = s.next
	} else {
		q.slots[s.prev].next = s.next
	}
	if s.next == none {
		q.tail = s.prev
	} else {
		q.slots[s.next].prev = s.prev
	}

	r := s.req
	s.req = nil
	s.used = false
	s.prev, s.next = none, none
	q.free = append(q.free, h.index)
	q.size--
	return r, nil
}

// Front returns the head request without removing it.
func (q *Queue) Front() (Handle, *Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head == none {
		return Handle{}, nil, false
	}
	s := q.slots[q.head]
	return Handle{index: q.head, gen: s.gen}, s.req, true
}

// Get returns the request named by h, if it is still queued.
func (q *Queue) Get(h Handle) (*Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.valid(h) {
		return nil, false
	}
	return q.slots[h.index].req, true
}

// Len returns the number of queued requests.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// IsEmpty reports whether the queue holds no requests.
func (q *Queue) IsEmpty() bool {
	return q.Len() == 0
}

// Each calls fn for every request from head to tail until fn returns false.
// fn must not call back into the queue.
func (q *Queue) Each(fn func(Handle, *Request) bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := q.head; i != none; i = q.slots[i].next {
		s := q.slots[i]
		if !fn(Handle{index: i, gen: s.gen}, s.req) {
			return
		}
	}
}

// EachReverse is Each from tail to head.
func (q *Queue) EachReverse(fn func(Handle, *Request) bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := q.tail; i != none; i = q.slots[i].prev {
		s := q.slots[i]
		if !fn(Handle{index: i, gen: s.gen}, s.req) {
			return
		}
	}
}

// Drain removes every request and returns them in queue order.
func (q *Queue) Drain() []*Request {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*Request, 0, q.size)
	for i := q.head; i != none; {
		s := &q.slots[i]
		next := s.next
		out = append(out, s.req)
		s.req = nil
		s.used = false
		s.prev, s.next = none, none
		q.free = append(q.free, i)
		i = next
	}
	q.head, q.tail, q.size = none, none, 0
	return out
}

// checkInvariants verifies the links: forward and backward walks agree
// with the size and the ends are terminated.
func (q *Queue) checkInvariants() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if (q.head == none) != (q.tail == none) {
		return fmt.Errorf("head %d / tail %d disagree on emptiness", q.head, q.tail)
	}
	if q.head != none && q.slots[q.head].prev != none {
		return fmt.Errorf("head %d has prev %d", q.head, q.slots[q.head].prev)
	}
	if q.tail != none && q.slots[q.tail].next != none {
		return fmt.Errorf("tail %d has next %d", q.tail, q.slots[q.tail].next)
	}

	forward := 0
	for i, prev := q.head, none; i != none; prev, i = i, q.slots[i].next {
		if !q.slots[i].used {
			return fmt.Errorf("free slot %d linked", i)
		}
		if q.slots[i].prev != prev {
			return fmt.Errorf("slot %d prev = %d, want %d", i, q.slots[i].prev, prev)
		}
		forward++
		if forward > len(q.slots) {
			return fmt.Errorf("cycle in forward links")
		}
	}
	backward := 0
	for i := q.tail; i != none; i = q.slots[i].prev {
		backward++
		if backward > len(q.slots) {
			return fmt.Errorf("cycle in backward links")
		}
	}
	if forward != q.size || backward != q.size {
		return fmt.Errorf("size %d, forward %d, backward %d", q.size, forward, backward)
	}
	return nil
}
