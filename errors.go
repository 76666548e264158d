package draftflow

import (
	"time"

	"github.com/mpislabs/draftflow/pkg/core"
)

// Code is the stable identifier of a rejected request.
type Code = core.Code

// Error codes
const (
	CodeStaleTransition   = core.CodeStaleTransition
	CodeJobTerminal       = core.CodeJobTerminal
	CodeDraftConflict     = core.CodeDraftConflict
	CodeEditPathNotFound  = core.CodeEditPathNotFound
	CodeLLMInvalidOutput  = core.CodeLLMInvalidOutput
	CodeJobNotFound       = core.CodeJobNotFound
	CodeInvalidTransition = core.CodeInvalidTransition
	CodeInvalidEdit       = core.CodeInvalidEdit
	CodeInvalidRequest    = core.CodeInvalidRequest
	CodeNotFound          = core.CodeNotFound
	CodeInternal          = core.CodeInternal
)

// Error variables
var (
	ErrStaleTransition   = core.ErrStaleTransition
	ErrJobTerminal       = core.ErrJobTerminal
	ErrDraftConflict     = core.ErrDraftConflict
	ErrEditPathNotFound  = core.ErrEditPathNotFound
	ErrLLMInvalidOutput  = core.ErrLLMInvalidOutput
	ErrJobNotFound       = core.ErrJobNotFound
	ErrInvalidTransition = core.ErrInvalidTransition
	ErrInvalidEdit       = core.ErrInvalidEdit
	ErrInvalidRequest    = core.ErrInvalidRequest
	ErrDraftNotFound     = core.ErrDraftNotFound
	ErrEntityNotFound    = core.ErrEntityNotFound
	ErrRunNotFound       = core.ErrRunNotFound
)

// CodeOf returns the Code of err, or CodeInternal for uncoded errors.
func CodeOf(err error) Code {
	return core.CodeOf(err)
}

// PublicMessage returns a message for err that is safe to show callers.
func PublicMessage(err error) string {
	return core.PublicMessage(err)
}

// NoRetry marks a backend error as permanent.
func NoRetry(err error) error {
	return core.NoRetry(err)
}

// RetryAfter asks for a backend call to be retried after d.
func RetryAfter(d time.Duration, err error) error {
	return core.RetryAfter(d, err)
}
