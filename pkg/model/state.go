package model

// TaskState represents the lifecycle state of a simulated Task.
type TaskState string

const (
	TaskStateReady      TaskState = "READY"
	TaskStateRunning    TaskState = "RUNNING"
	TaskStateSuspended  TaskState = "SUSPENDED"
	TaskStateTerminated TaskState = "TERMINATED"
)

// String returns the string representation of the task state.
func (s TaskState) String() string {
	return string(s)
}

// IsTerminal returns true if the task has exited.
func (s TaskState) IsTerminal() bool {
	return s == TaskStateTerminated
}

// ValidTaskTransitions defines the allowed state transitions for Tasks.
// A task is in exactly one of: the ready ring, blocked, or terminated.
var ValidTaskTransitions = map[TaskState][]TaskState{
	TaskStateReady:     {TaskStateRunning},
	TaskStateRunning:   {TaskStateReady, TaskStateSuspended, TaskStateTerminated},
	TaskStateSuspended: {TaskStateReady},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s TaskState) CanTransitionTo(next TaskState) bool {
	for _, allowed := range ValidTaskTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// DiskServerState is the state of the disk server task's loop.
type DiskServerState string

const (
	DiskServerWaiting   DiskServerState = "WAIT_FOR_REQUEST"
	DiskServerServicing DiskServerState = "SERVICING"
	DiskServerShutdown  DiskServerState = "SHUTDOWN"
)

// String returns the string representation of the server state.
func (s DiskServerState) String() string {
	return string(s)
}
