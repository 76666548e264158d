package core

import (
	"errors"
	"fmt"
	"time"
)

// Code is the stable, caller-facing identifier of a rejected request.
type Code string

const (
	CodeStaleTransition   Code = "STALE_TRANSITION"
	CodeJobTerminal       Code = "JOB_TERMINAL"
	CodeDraftConflict     Code = "DRAFT_CONFLICT"
	CodeEditPathNotFound  Code = "EDIT_PATH_NOT_FOUND"
	CodeLLMInvalidOutput  Code = "LLM_INVALID_OUTPUT"
	CodeJobNotFound       Code = "JOB_NOT_FOUND"
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodeInvalidEdit       Code = "INVALID_EDIT"
	CodeInvalidRequest    Code = "INVALID_REQUEST"
	CodeNotFound          Code = "NOT_FOUND"
	CodeInternal          Code = "INTERNAL"
)

// Error is a sentinel error carrying a Code.
// Wrap it with fmt.Errorf("%w: ...") to add detail.
type Error struct {
	Code Code
	msg  string
}

func (e *Error) Error() string {
	return e.msg
}

func newError(code Code, msg string) *Error {
	return &Error{Code: code, msg: msg}
}

// State machine, patch and generation errors
var (
	ErrStaleTransition   = newError(CodeStaleTransition, "draftflow: stale transition")
	ErrJobTerminal       = newError(CodeJobTerminal, "draftflow: job is in a terminal state")
	ErrDraftConflict     = newError(CodeDraftConflict, "draftflow: draft conflict")
	ErrEditPathNotFound  = newError(CodeEditPathNotFound, "draftflow: edit path not found")
	ErrLLMInvalidOutput  = newError(CodeLLMInvalidOutput, "draftflow: generative backend returned invalid output")
	ErrJobNotFound       = newError(CodeJobNotFound, "draftflow: job not found")
	ErrInvalidTransition = newError(CodeInvalidTransition, "draftflow: invalid transition")
	ErrInvalidEdit       = newError(CodeInvalidEdit, "draftflow: invalid edit")
	ErrInvalidRequest    = newError(CodeInvalidRequest, "draftflow: invalid request")
)

// Lookup and storage errors
var (
	ErrDraftNotFound   = newError(CodeNotFound, "draftflow: draft not found")
	ErrEntityNotFound  = newError(CodeNotFound, "draftflow: entity not found")
	ErrRunNotFound     = newError(CodeNotFound, "draftflow: run not found")
	ErrDuplicateSource = errors.New("draftflow: source already recorded")
	ErrLeaseLost       = errors.New("draftflow: job lease not owned by this worker")
	ErrSlugTaken       = errors.New("draftflow: entity slug already taken")
)

// CodeOf returns the Code of the first coded error in err's chain,
// or CodeInternal when there is none.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return CodeInternal
}

// PublicMessage returns a message safe to show to the workflow caller.
// Uncoded errors (driver errors, panics, I/O) never cross the boundary verbatim.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	if CodeOf(err) == CodeInternal {
		return "internal error"
	}
	return err.Error()
}

// NoRetryError indicates an error that should not be retried.
type NoRetryError struct {
	Err error
}

func (e *NoRetryError) Error() string {
	return fmt.Sprintf("no retry: %v", e.Err)
}

func (e *NoRetryError) Unwrap() error {
	return e.Err
}

// NoRetry wraps an error to indicate it should not be retried.
func NoRetry(err error) error {
	return &NoRetryError{Err: err}
}

// IsNoRetry reports whether err is marked as permanent.
func IsNoRetry(err error) bool {
	var nr *NoRetryError
	return errors.As(err, &nr)
}

// RetryAfterError indicates an error that should be retried after a delay.
type RetryAfterError struct {
	Err   error
	Delay time.Duration
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("retry after %v: %v", e.Delay, e.Err)
}

func (e *RetryAfterError) Unwrap() error {
	return e.Err
}

// RetryAfter wraps an error to indicate it should be retried after a delay.
func RetryAfter(d time.Duration, err error) error {
	return &RetryAfterError{Err: err, Delay: d}
}
