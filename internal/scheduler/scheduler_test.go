package scheduler

import (
	"testing"

	"github.com/me/kernsim/pkg/model"
)

func ringOf(tasks []*model.Task) *Ring {
	r := NewRing()
	for _, t := range tasks {
		r.Add(t)
	}
	return r
}

// TestSelectNext_PicksLowestAndAges checks the core property: the lowest
// dynamic priority wins and is reset, every other task ages by one step.
func TestSelectNext_PicksLowestAndAges(t *testing.T) {
	tasks := newTasks(5, -3, 0, 7)
	tasks[2].DynamicPrio = -8 // aged below everyone else
	before := make([]int, len(tasks))
	for i, task := range tasks {
		before[i] = task.DynamicPrio
	}

	got := SelectNext(ringOf(tasks))

	if got != tasks[2] {
		t.Fatalf("SelectNext() = task %d, want task 3", got.ID)
	}
	if got.DynamicPrio != got.StaticPrio {
		t.Errorf("selected DynamicPrio = %d, want static %d", got.DynamicPrio, got.StaticPrio)
	}
	for i, task := range tasks {
		if task == got {
			continue
		}
		if want := before[i] + AgingStep; task.DynamicPrio != want {
			t.Errorf("task %d DynamicPrio = %d, want %d", task.ID, task.DynamicPrio, want)
		}
	}
}

func TestSelectNext_TieGoesToFirstInTraversal(t *testing.T) {
	tasks := newTasks(2, 1, 1, 1)
	r := ringOf(tasks)
	if got := SelectNext(r); got != tasks[1] {
		t.Errorf("SelectNext() = task %d, want task 2", got.ID)
	}

	// Move the head past task 2: traversal now starts at task 3.
	fresh := newTasks(2, 1, 1, 1)
	r = ringOf(fresh)
	r.Remove(fresh[0])
	r.Remove(fresh[1])
	r.Add(fresh[0])
	r.Add(fresh[1])
	if got := SelectNext(r); got != fresh[2] {
		t.Errorf("SelectNext() after rotation = task %d, want task 3", got.ID)
	}
}

func TestSelectNext_DoesNotChangeStructure(t *testing.T) {
	tasks := newTasks(3, 1, 2)
	r := ringOf(tasks)
	SelectNext(r)
	if got := ids(r.Tasks()); !equalInts(got, []int{1, 2, 3}) {
		t.Errorf("Tasks() after select = %v, want [1 2 3]", got)
	}
}

// TestSelectNext_AgingBoundsWait runs repeated rounds where the winner is
// taken out and re-added like the dispatcher does, and checks that a
// low-priority task is chosen within the width of the priority range.
func TestSelectNext_AgingBoundsWait(t *testing.T) {
	tasks := newTasks(-20, -20, 20)
	r := ringOf(tasks)
	width := model.MaxPriority - model.MinPriority

	for round := 0; round <= width+1; round++ {
		got := SelectNext(r)
		if got == tasks[2] {
			return
		}
		r.Remove(got)
		r.Add(got)
	}
	t.Errorf("task with static priority 20 not selected within %d rounds", width+1)
}

func TestSelectNext_AgesPastMinPriority(t *testing.T) {
	tasks := newTasks(model.MinPriority, model.MaxPriority)
	tasks[1].DynamicPrio = model.MinPriority

	got := SelectNext(ringOf(tasks))
	if got != tasks[0] {
		t.Fatalf("SelectNext() = task %d, want task 1 (tie goes to first)", got.ID)
	}
	if want := model.MinPriority + AgingStep; tasks[1].DynamicPrio != want {
		t.Errorf("DynamicPrio = %d, want %d", tasks[1].DynamicPrio, want)
	}
}

// TestSelectNext_StableRingBoundsWait selects repeatedly over a ring that is
// never reordered. The least urgent task must still win once its dynamic
// priority has aged across the whole priority range.
func TestSelectNext_StableRingBoundsWait(t *testing.T) {
	tasks := newTasks(model.MinPriority, model.MaxPriority)
	r := ringOf(tasks)
	width := model.MaxPriority - model.MinPriority

	for round := 0; round <= width+1; round++ {
		got := SelectNext(r)
		if got == tasks[1] {
			if round != width+1 {
				t.Errorf("selected at round %d, want %d", round, width+1)
			}
			if got.DynamicPrio != model.MaxPriority {
				t.Errorf("winner DynamicPrio = %d, want reset to %d", got.DynamicPrio, model.MaxPriority)
			}
			return
		}
	}
	t.Errorf("task with static priority %d never selected; DynamicPrio = %d", model.MaxPriority, tasks[1].DynamicPrio)
}

func TestSelectNext_EmptyPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("SelectNext on empty ring should panic")
		}
	}()
	SelectNext(NewRing())
}

func TestSetPriority_Clamps(t *testing.T) {
	task := &model.Task{}
	SetPriority(task, -99)
	if Priority(task) != model.MinPriority {
		t.Errorf("Priority() = %d, want %d", Priority(task), model.MinPriority)
	}
	SetPriority(task, 12)
	if Priority(task) != 12 {
		t.Errorf("Priority() = %d, want 12", Priority(task))
	}
	SetPriority(task, 99)
	if Priority(task) != model.MaxPriority {
		t.Errorf("Priority() = %d, want %d", Priority(task), model.MaxPriority)
	}
}
