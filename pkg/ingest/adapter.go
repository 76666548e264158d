package ingest

import (
	"context"
	"fmt"

	"github.com/mpislabs/draftflow/pkg/core"
)

// Candidate is one source offered for ingestion.
// Content, when set, is used instead of fetching Ref.
type Candidate struct {
	Channel core.Channel `json:"channel" yaml:"channel" validate:"required,oneof=transcript document web text"`
	Ref     string       `json:"ref" yaml:"ref" validate:"required,max=1024"`
	Content string       `json:"content,omitempty" yaml:"content,omitempty"`
}

// Adapter fetches raw text for one channel.
type Adapter interface {
	Channel() core.Channel
	Fetch(ctx context.Context, ref string) (string, error)
}

// FetchErrorKind classifies adapter failures.
type FetchErrorKind string

const (
	KindTransport         FetchErrorKind = "transport_error"
	KindUnsupportedFormat FetchErrorKind = "unsupported_format"
)

// FetchError is returned by adapters. Errors of any other type are treated
// as transport failures.
type FetchError struct {
	Kind    FetchErrorKind
	Ref     string
	Message string
	Cause   error
}

func (e *FetchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s for %s: %s: %v", e.Kind, e.Ref, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s for %s: %s", e.Kind, e.Ref, e.Message)
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// TransportError builds a transport FetchError.
func TransportError(ref, message string, cause error) error {
	return &FetchError{Kind: KindTransport, Ref: ref, Message: message, Cause: cause}
}

// UnsupportedFormat builds an unsupported_format FetchError.
func UnsupportedFormat(ref, message string, cause error) error {
	return &FetchError{Kind: KindUnsupportedFormat, Ref: ref, Message: message, Cause: cause}
}
