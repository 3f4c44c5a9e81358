package model

// Priority range of the Unix-style scheduler. Lower values are more urgent.
const (
	MinPriority = -20
	MaxPriority = 20
)

// ClampPriority bounds prio to [MinPriority, MaxPriority].
func ClampPriority(prio int) int {
	if prio < MinPriority {
		return MinPriority
	}
	if prio > MaxPriority {
		return MaxPriority
	}
	return prio
}

// Task is a simulated kernel task as seen by the schedulers.
// The kernel owns its lifetime; schedulers hold non-owning references.
type Task struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	StaticPrio  int       `json:"static_priority"`
	DynamicPrio int       `json:"dynamic_priority"`
	State       TaskState `json:"state"`

	// Dispatcher marks the kernel's dispatcher task, which is never preempted.
	Dispatcher bool `json:"dispatcher,omitempty"`

	// Execution metrics, all in ticks.
	Activations    int    `json:"activations"`
	ProcessorTicks uint64 `json:"processor_ticks"`
	ExecTicks      uint64 `json:"exec_ticks"`
	CreatedTick    uint64 `json:"created_tick"`
}

// TaskStats is a point-in-time copy of a task's metrics for reports.
type TaskStats struct {
	ID             int    `json:"id"`
	Name           string `json:"name"`
	StaticPrio     int    `json:"static_priority"`
	Activations    int    `json:"activations"`
	ProcessorTicks uint64 `json:"processor_ticks"`
	ExecTicks      uint64 `json:"exec_ticks"`
}

// Stats returns a copy of the task's metrics.
func (t *Task) Stats() TaskStats {
	return TaskStats{
		ID:             t.ID,
		Name:           t.Name,
		StaticPrio:     t.StaticPrio,
		Activations:    t.Activations,
		ProcessorTicks: t.ProcessorTicks,
		ExecTicks:      t.ExecTicks,
	}
}
