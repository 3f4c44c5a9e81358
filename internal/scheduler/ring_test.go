package scheduler

import (
	"testing"

	"github.com/me/kernsim/pkg/model"
)

func newTasks(prios ...int) []*model.Task {
	tasks := make([]*model.Task, len(prios))
	for i, p := range prios {
		tasks[i] = &model.Task{ID: i + 1, StaticPrio: p, DynamicPrio: p}
	}
	return tasks
}

func ids(tasks []*model.Task) []int {
	out := make([]int, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRing_InsertionOrder(t *testing.T) {
	r := NewRing()
	tasks := newTasks(5, -3, 0, 7)
	for _, task := range tasks {
		r.Add(task)
	}

	if r.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", r.Len())
	}
	if got := ids(r.Tasks()); !equalInts(got, []int{1, 2, 3, 4}) {
		t.Errorf("Tasks() = %v, want [1 2 3 4]", got)
	}
}

func TestRing_AddIsIdempotent(t *testing.T) {
	r := NewRing()
	task := newTasks(0)[0]
	r.Add(task)
	r.Add(task)
	if r.Len() != 1 {
		t.Errorf("Len() = %d after adding the same task twice, want 1", r.Len())
	}
}

func TestRing_RemoveHeadAdvances(t *testing.T) {
	r := NewRing()
	tasks := newTasks(0, 0, 0)
	for _, task := range tasks {
		r.Add(task)
	}

	if !r.Remove(tasks[0]) {
		t.Fatal("Remove(head) = false, want true")
	}
	if r.Head() != tasks[1] {
		t.Errorf("Head() = %v, want task 2", r.Head().ID)
	}

	// Re-adding the removed task puts it at the tail, behind the new head.
	r.Add(tasks[0])
	if got := ids(r.Tasks()); !equalInts(got, []int{2, 3, 1}) {
		t.Errorf("Tasks() = %v, want [2 3 1]", got)
	}
}

func TestRing_AddAfterCursorMoved(t *testing.T) {
	r := NewRing()
	tasks := newTasks(0, 0, 0, 0)
	for _, task := range tasks[:3] {
		r.Add(task)
	}
	r.Remove(tasks[0]) // head is now task 2
	r.Add(tasks[0])    // 2 3 1
	r.Remove(tasks[1]) // 3 1
	r.Add(tasks[3])    // 3 1 4

	if got := ids(r.Tasks()); !equalInts(got, []int{3, 1, 4}) {
		t.Errorf("Tasks() = %v, want [3 1 4]", got)
	}
}

func TestRing_RemoveMissing(t *testing.T) {
	r := NewRing()
	tasks := newTasks(0, 1)
	r.Add(tasks[0])
	if r.Remove(tasks[1]) {
		t.Error("Remove(missing) = true, want false")
	}
	if r.Contains(tasks[1]) {
		t.Error("Contains(missing) = true")
	}
}

func TestRing_RemoveLastEmpties(t *testing.T) {
	r := NewRing()
	task := newTasks(0)[0]
	r.Add(task)
	r.Remove(task)
	if r.Len() != 0 || r.Head() != nil {
		t.Errorf("ring not empty after removing its only task: len=%d", r.Len())
	}
}
