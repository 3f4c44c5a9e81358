package model

import "time"

// DiskMetrics holds the cumulative counters of the disk manager.
type DiskMetrics struct {
	TotalHeadMovement int64  `json:"total_head_movement"`
	TotalBusyTicks    uint64 `json:"total_busy_ticks"`
	Served            int    `json:"served"`
	Completed         int    `json:"completed"`
	Failed            int    `json:"failed"`
	Head              int    `json:"head"`
}

// Report is the outcome of one simulation run.
type Report struct {
	ID        string          `json:"id"`
	Workload  string          `json:"workload"`
	Policy    Policy          `json:"policy"`
	Quantum   int             `json:"quantum"`
	Blocks    int             `json:"blocks"`
	BlockSize int             `json:"block_size"`
	Ticks     uint64          `json:"ticks"`
	Disk      DiskMetrics     `json:"disk"`
	Tasks     []TaskStats     `json:"tasks"`
	Requests  []ServiceRecord `json:"requests,omitempty"`
	StartedAt time.Time       `json:"started_at"`
	Duration  time.Duration   `json:"duration_ns"`

	// StepErrors counts workload steps that failed: a bad block
	// expression or a rejected or failed disk request.
	StepErrors int `json:"step_errors"`
}

// AverageWait returns the mean queueing delay of the traced requests, in ticks.
func (r *Report) AverageWait() float64 {
	if len(r.Requests) == 0 {
		return 0
	}
	var total uint64
	for _, rec := range r.Requests {
		total += rec.Wait()
	}
	return float64(total) / float64(len(r.Requests))
}
