package model

import "time"

// Response is the standard API response envelope.
type Response struct {
	Status     string      `json:"status"`
	RequestID  string      `json:"request_id"`
	Timestamp  time.Time   `json:"timestamp"`
	Data       any         `json:"data"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Error      *APIError   `json:"error"`
}

// Pagination holds pagination metadata for list endpoints.
type Pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// ListOptions configures run listing with pagination and an optional policy filter.
type ListOptions struct {
	Limit  int
	Offset int
	Policy Policy
}

// DefaultListOptions returns sensible defaults.
func DefaultListOptions() ListOptions {
	return ListOptions{Limit: 20, Offset: 0}
}

// Clamp enforces limits (max 100, min 1).
func (o *ListOptions) Clamp() {
	if o.Limit <= 0 {
		o.Limit = 20
	}
	if o.Limit > 100 {
		o.Limit = 100
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
}

// RunSummary is the list view of a stored Report.
type RunSummary struct {
	ID                string    `json:"id"`
	Workload          string    `json:"workload"`
	Policy            Policy    `json:"policy"`
	Ticks             uint64    `json:"ticks"`
	TotalHeadMovement int64     `json:"total_head_movement"`
	TotalBusyTicks    uint64    `json:"total_busy_ticks"`
	Served            int       `json:"served"`
	StartedAt         time.Time `json:"started_at"`
}
