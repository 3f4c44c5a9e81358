package disk

import (
	"github.com/me/kernsim/internal/kernel"
	"github.com/me/kernsim/pkg/model"
)

// Request is one pending block operation. The requester owns it until it is
// queued; the server task owns it from then until done is raised.
type Request struct {
	Op          model.DiskOp
	Block       int
	Buf         []byte
	Task        *model.Task
	EnqueueTick uint64

	seq        int
	headBefore int
	startTick  uint64
	doneTick   uint64
	err        error
	done       *kernel.Semaphore
}

// Err returns the result of the request once it has been released.
func (r *Request) Err() error {
	return r.err
}

func (r *Request) record(policy model.Policy) model.ServiceRecord {
	rec := model.ServiceRecord{
		Seq:         r.seq,
		Op:          r.Op,
		Block:       r.Block,
		Policy:      policy,
		HeadBefore:  r.headBefore,
		Seek:        distance(r.Block, r.headBefore),
		EnqueueTick: r.EnqueueTick,
		StartTick:   r.startTick,
		DoneTick:    r.doneTick,
	}
	if r.Task != nil {
		rec.TaskID = r.Task.ID
		rec.TaskName = r.Task.Name
	}
	if r.err != nil {
		rec.Error = r.err.Error()
	}
	return rec
}
