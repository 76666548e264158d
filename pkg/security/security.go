package security

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/mpislabs/draftflow/pkg/core"
)

// Security limits and configuration
const (
	// MaxTargetNameLength is the maximum length for target entity names
	MaxTargetNameLength = 255

	// MaxInputSize is the maximum size in bytes for a job input payload (1MB)
	MaxInputSize = 1 << 20

	// MaxSourceRefLength is the maximum length for a source reference
	MaxSourceRefLength = 1024

	// MaxSourceTextSize is the maximum size in bytes of fetched source text (4MB)
	MaxSourceTextSize = 4 << 20

	// MaxEditsPerRequest is the hard limit for edits in a single patch request
	MaxEditsPerRequest = 200

	// MaxRetries is the hard limit for generation retry attempts
	MaxRetries = 10

	// MaxConcurrency is the hard limit for worker and ingestion concurrency
	MaxConcurrency = 1000

	// MaxErrorMessageLength is the maximum length for stored failure reasons
	MaxErrorMessageLength = 4096
)

var (
	// secretPatterns match credentials that transport errors like to echo back.
	secretPatterns = []*regexp.Regexp{
		regexp.MustCompile(`sk-[A-Za-z0-9_\-]{8,}`),
		regexp.MustCompile(`AIza[0-9A-Za-z_\-]{20,}`),
		regexp.MustCompile(`(?i)(password|api[_-]?key|token|secret)=([^\s&]+)`),
		regexp.MustCompile(`://([^:/\s]+):([^@/\s]+)@`),
	}
)

// ValidateTargetName validates a target entity name.
func ValidateTargetName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: target name is required", core.ErrInvalidRequest)
	}
	if utf8.RuneCountInString(name) > MaxTargetNameLength {
		return fmt.Errorf("%w: target name exceeds %d characters", core.ErrInvalidRequest, MaxTargetNameLength)
	}
	return nil
}

// ValidateInput rejects oversized job inputs.
func ValidateInput(input []byte) error {
	if len(input) > MaxInputSize {
		return fmt.Errorf("%w: input exceeds %d bytes", core.ErrInvalidRequest, MaxInputSize)
	}
	return nil
}

// ValidateSourceRef validates a source reference
func ValidateSourceRef(ref string) error {
	if ref == "" {
		return fmt.Errorf("%w: source reference is required", core.ErrInvalidRequest)
	}
	if len(ref) > MaxSourceRefLength {
		return fmt.Errorf("%w: source reference exceeds %d bytes", core.ErrInvalidRequest, MaxSourceRefLength)
	}
	return nil
}

// ValidateEditCount bounds the size of a patch request.
func ValidateEditCount(n int) error {
	if n == 0 {
		return fmt.Errorf("%w: no edits supplied", core.ErrInvalidEdit)
	}
	if n > MaxEditsPerRequest {
		return fmt.Errorf("%w: more than %d edits", core.ErrInvalidEdit, MaxEditsPerRequest)
	}
	return nil
}

// SanitizeErrorMessage truncates and sanitizes error messages for storage.
// Credentials embedded in URLs or key=value pairs are redacted.
func SanitizeErrorMessage(msg string) string {
	if msg == "" {
		return ""
	}

	// Remove any null bytes or control characters (except newlines)
	var sanitized strings.Builder
	sanitized.Grow(len(msg))

	for _, r := range msg {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			sanitized.WriteRune(r)
		}
	}

	result := redactSecrets(sanitized.String())

	// Truncate if too long
	if utf8.RuneCountInString(result) > MaxErrorMessageLength {
		runes := []rune(result)
		result = string(runes[:MaxErrorMessageLength-3]) + "..."
	}

	return result
}

func redactSecrets(s string) string {
	s = secretPatterns[0].ReplaceAllString(s, "[REDACTED]")
	s = secretPatterns[1].ReplaceAllString(s, "[REDACTED]")
	s = secretPatterns[2].ReplaceAllString(s, "$1=[REDACTED]")
	return secretPatterns[3].ReplaceAllString(s, "://$1:[REDACTED]@")
}

// ClampRetries ensures retry count is within limits
func ClampRetries(n int) int {
	if n < 0 {
		return 0
	}
	if n > MaxRetries {
		return MaxRetries
	}
	return n
}

// ClampConcurrency ensures concurrency is within limits
func ClampConcurrency(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxConcurrency {
		return MaxConcurrency
	}
	return n
}
