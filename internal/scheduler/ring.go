package scheduler

import "github.com/me/kernsim/pkg/model"

// Ring is the ready queue: a circular sequence of task references with a
// cursor marking the head. Traversal starts at the cursor and wraps, so the
// order is insertion order and does not depend on priorities.
type Ring struct {
	tasks  []*model.Task
	cursor int
}

// NewRing creates an empty ready ring.
func NewRing() *Ring {
	return &Ring{}
}

// Len returns the number of ready tasks.
func (r *Ring) Len() int {
	return len(r.tasks)
}

// at returns the i-th task in traversal order.
func (r *Ring) at(i int) *model.Task {
	return r.tasks[(r.cursor+i)%len(r.tasks)]
}

// Add appends t at the tail, i.e. just before the head.
// Adding a task already in the ring is a no-op.
func (r *Ring) Add(t *model.Task) {
	if r.indexOf(t) >= 0 {
		return
	}
	if r.cursor == 0 {
		r.tasks = append(r.tasks, t)
		return
	}
	r.tasks = append(r.tasks, nil)
	copy(r.tasks[r.cursor+1:], r.tasks[r.cursor:])
	r.tasks[r.cursor] = t
	r.cursor++
}

// Remove takes t out of the ring. If t was the head, its successor becomes
// the head. Returns false if t was not in the ring.
func (r *Ring) Remove(t *model.Task) bool {
	i := r.indexOf(t)
	if i < 0 {
		return false
	}
	r.tasks = append(r.tasks[:i], r.tasks[i+1:]...)
	if i < r.cursor {
		r.cursor--
	}
	if r.cursor >= len(r.tasks) {
		r.cursor = 0
	}
	return true
}

// Contains reports whether t is in the ring.
func (r *Ring) Contains(t *model.Task) bool {
	return r.indexOf(t) >= 0
}

// Head returns the task at the cursor, or nil if the ring is empty.
func (r *Ring) Head() *model.Task {
	if len(r.tasks) == 0 {
		return nil
	}
	return r.tasks[r.cursor]
}

// Tasks returns the ready tasks in traversal order.
func (r *Ring) Tasks() []*model.Task {
	out := make([]*model.Task, len(r.tasks))
	for i := range out {
		out[i] = r.at(i)
	}
	return out
}

func (r *Ring) indexOf(t *model.Task) int {
	for i, x := range r.tasks {
		if x == t {
			return i
		}
	}
	return -1
}
