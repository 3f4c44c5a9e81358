package model

import (
	"errors"
	"fmt"
)

// Kernel and disk manager failure kinds.
var (
	// ErrInitialization: the device command failed or size queries failed.
	ErrInitialization = errors.New("disk initialization failed")
	// ErrDeviceBusy: the device was not idle when the server tried to issue.
	ErrDeviceBusy = errors.New("disk device busy")
	// ErrIssueFailure: the device rejected the operation.
	ErrIssueFailure = errors.New("disk rejected operation")
	// ErrQueueCorruption: removal of a request that is not in the queue.
	ErrQueueCorruption = errors.New("disk request queue corruption")

	ErrNotInitialized = errors.New("disk manager not initialized")
	ErrInvalidBlock   = errors.New("invalid block request")
	ErrShutdown       = errors.New("disk manager shut down")
	ErrDeadlock       = errors.New("no runnable task and no pending interrupt")
)

// DiskError records the request a disk failure belongs to.
type DiskError struct {
	Op    DiskOp
	Block int
	Err   error
}

func (e *DiskError) Error() string {
	return fmt.Sprintf("%s block %d: %v", e.Op, e.Block, e.Err)
}

func (e *DiskError) Unwrap() error {
	return e.Err
}

// ErrorCode represents a structured API error code.
type ErrorCode string

const (
	ErrValidation ErrorCode = "VALIDATION_ERROR"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrBusy       ErrorCode = "BUSY"
)

// APIError is a structured error returned by the kernsim API.
type APIError struct {
	Code    ErrorCode    `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// NewValidationError creates an APIError with validation details.
func NewValidationError(msg string, details ...FieldError) *APIError {
	return &APIError{Code: ErrValidation, Message: msg, Details: details}
}

// NewNotFoundError creates a NOT_FOUND APIError.
func NewNotFoundError(resource, id string) *APIError {
	return &APIError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s '%s' not found", resource, id),
	}
}

// InvalidTransitionError is returned when a task state transition is invalid.
type InvalidTransitionError struct {
	TaskID int
	From   TaskState
	To     TaskState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid task state transition: %s → %s (task %d)", e.From, e.To, e.TaskID)
}
