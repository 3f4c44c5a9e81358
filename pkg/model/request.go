package model

// DiskOp is the kind of a block request.
type DiskOp string

const (
	DiskOpRead  DiskOp = "READ"
	DiskOpWrite DiskOp = "WRITE"
)

// String returns the string representation of the operation.
func (o DiskOp) String() string {
	return string(o)
}

// ServiceRecord describes one request taken off the disk queue by the server task.
type ServiceRecord struct {
	Seq         int    `json:"seq"`
	TaskID      int    `json:"task_id"`
	TaskName    string `json:"task_name"`
	Op          DiskOp `json:"op"`
	Block       int    `json:"block"`
	Policy      Policy `json:"policy"`
	HeadBefore  int    `json:"head_before"`
	Seek        int    `json:"seek"`
	EnqueueTick uint64 `json:"enqueue_tick"`
	StartTick   uint64 `json:"start_tick"`
	DoneTick    uint64 `json:"done_tick"`
	Error       string `json:"error,omitempty"`
}

// Wait returns how long the request sat in the queue before service began.
func (r ServiceRecord) Wait() uint64 {
	if r.StartTick < r.EnqueueTick {
		return 0
	}
	return r.StartTick - r.EnqueueTick
}
