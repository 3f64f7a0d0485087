package kernel

import "ember/kernel/arch"

// MaxTasks is the size of the task arena, idle included.
const MaxTasks = 64

// TaskID names a task for its whole life. IDs start at 1 and are never
// reused; 0 means no task.
type TaskID uint16

// State is the scheduling state of a task.
type State uint8

const (
	StateUnscheduled State = iota
	StateReady
	StateRunning
	StateBlocked
)

func (s State) String() string {
	switch s {
	case StateUnscheduled:
		return "unscheduled"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// Task is one schedulable unit: an id and the execution context it owns.
// prev and next link it into the ready ring; both are zero iff it is not
// queued.
type Task struct {
	id    TaskID
	name  string
	arg   uintptr
	ctx   *arch.Context
	state State

	prev TaskID
	next TaskID

	runs uint64
}

func (t *Task) ID() TaskID             { return t.id }
func (t *Task) Name() string           { return t.name }
func (t *Task) Arg() uintptr           { return t.arg }
func (t *Task) Context() *arch.Context { return t.ctx }
func (t *Task) State() State           { return t.state }

// Queued reports whether the task is a ready ring member.
func (t *Task) Queued() bool { return t.next != 0 }

// Runs returns how many times the task has been switched in.
func (t *Task) Runs() uint64 { return t.runs }
