// Package hashing canonicalizes source text and derives content hashes and slugs.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	exoticSpaces = regexp.MustCompile(`[\x{00a0}\x{2000}-\x{200b}\x{2028}\x{2029}\x{202f}\x{205f}\x{3000}\x{feff}]`)
	inlineSpace  = regexp.MustCompile(`[ \t]+`)
	blankRuns    = regexp.MustCompile(`\n{3,}`)
)

// Normalize returns the canonical form of text used for hashing and for the
// corpus handed to generation.
//
// The canonical form is NFKC, uses LF line endings, has no exotic spaces,
// collapses runs of spaces and tabs, trims every line and keeps at most one
// blank line between paragraphs.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	text = norm.NFKC.String(text)
	text = exoticSpaces.ReplaceAllString(text, " ")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = inlineSpace.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// Hash returns the hex SHA-256 digest of the canonical form of text.
// Two payloads that differ only in encoding or whitespace hash identically.
func Hash(text string) string {
	return HashNormalized(Normalize(text))
}

// HashNormalized hashes text that is already in canonical form.
func HashNormalized(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Preview returns at most maxChars of the canonical text, cut at a word
// boundary when one is close to the limit.
func Preview(text string, maxChars int) string {
	text = Normalize(text)
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	truncated := string(runes[:maxChars])
	if i := strings.LastIndex(truncated, " "); i > maxChars*7/10 {
		truncated = truncated[:i]
	}
	return strings.TrimRight(truncated, " \n") + "..."
}
