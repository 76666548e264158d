package ingest

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncateUTF8(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"abcdef", 3, "abc"},
		{"abé", 3, "ab"}, // é is two bytes; cutting at 3 would split it
		{"a世界", 5, "a世"}, // three-byte runes
		{"é", 1, ""},
	}
	for _, tt := range tests {
		got := truncateUTF8(tt.in, tt.n)
		assert.Equal(t, tt.want, got, "%q[:%d]", tt.in, tt.n)
		assert.True(t, utf8.ValidString(got))
	}
}
