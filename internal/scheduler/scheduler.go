// Package scheduler implements the Unix-style CPU scheduler: dynamic
// priorities with aging over a circular ready queue.
package scheduler

import "github.com/me/kernsim/pkg/model"

// AgingStep is added to the dynamic priority of every ready task that was
// not selected. Negative means more urgent.
const AgingStep = -1

// SelectNext returns the ready task with the lowest dynamic priority. Ties go
// to the first such task in traversal order from the head. The winner's
// dynamic priority is reset to its static priority and every other ready
// task is aged by exactly AgingStep. Dynamic priorities may go below
// model.MinPriority; only static priorities are clamped.
//
// The ring structure is not modified. Calling SelectNext on an empty ring is
// an invariant violation: a running system always has a runnable task.
func SelectNext(r *Ring) *model.Task {
	n := r.Len()
	if n == 0 {
		panic("scheduler: select on empty ready ring")
	}

	best := r.at(0)
	for i := 1; i < n; i++ {
		if t := r.at(i); t.DynamicPrio < best.DynamicPrio {
			best = t
		}
	}
	best.DynamicPrio = best.StaticPrio

	for i := 0; i < n; i++ {
		t := r.at(i)
		if t == best {
			continue
		}
		t.DynamicPrio += AgingStep
	}
	return best
}

// SetPriority sets the static priority of t, clamped to the priority range.
// The dynamic priority picks it up the next time t is selected.
func SetPriority(t *model.Task, prio int) {
	t.StaticPrio = model.ClampPriority(prio)
}

// Priority returns the static priority of t.
func Priority(t *model.Task) int {
	return t.StaticPrio
}
