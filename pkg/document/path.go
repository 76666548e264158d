package document

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mpislabs/draftflow/pkg/core"
)

// Segment is one step of a path: an object key or an array index.
type Segment struct {
	Key     string
	Index   int
	IsIndex bool
}

func (s Segment) String() string {
	if s.IsIndex {
		return "[" + strconv.Itoa(s.Index) + "]"
	}
	return s.Key
}

// Path is a parsed edit path such as section.list[0].field.
type Path []Segment

func (p Path) String() string {
	var b strings.Builder
	for i, s := range p {
		if i > 0 && !s.IsIndex {
			b.WriteByte('.')
		}
		b.WriteString(s.String())
	}
	return b.String()
}

// ParsePath parses the dotted/indexed notation: `a.b`, `list[2]`,
// `section.list[0].field` and `[1]`.
func ParsePath(raw string) (Path, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty path", core.ErrInvalidEdit)
	}
	var p Path
	i := 0
	expectKey := raw[0] != '['
	for i < len(raw) {
		switch {
		case raw[i] == '[':
			end := strings.IndexByte(raw[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated index in %q", core.ErrInvalidEdit, raw)
			}
			n, err := strconv.Atoi(raw[i+1 : i+end])
			if err != nil || n < 0 {
				return nil, fmt.Errorf("%w: bad index in %q", core.ErrInvalidEdit, raw)
			}
			p = append(p, Segment{Index: n, IsIndex: true})
			i += end + 1
			expectKey = false
		case raw[i] == '.':
			if expectKey || i == len(raw)-1 {
				return nil, fmt.Errorf("%w: empty segment in %q", core.ErrInvalidEdit, raw)
			}
			i++
			expectKey = true
		default:
			if !expectKey {
				return nil, fmt.Errorf("%w: missing separator in %q", core.ErrInvalidEdit, raw)
			}
			j := i
			for j < len(raw) && raw[j] != '.' && raw[j] != '[' && raw[j] != ']' {
				j++
			}
			if j < len(raw) && raw[j] == ']' {
				return nil, fmt.Errorf("%w: unexpected ']' in %q", core.ErrInvalidEdit, raw)
			}
			p = append(p, Segment{Key: raw[i:j]})
			i = j
			expectKey = false
		}
	}
	if expectKey {
		return nil, fmt.Errorf("%w: empty segment in %q", core.ErrInvalidEdit, raw)
	}
	return p, nil
}

// resolve walks p from the root and returns the node id it names.
func (d *Document) resolve(p Path) (int, error) {
	id := 0
	for i, seg := range p {
		next, ok := d.child(id, seg)
		if !ok {
			return 0, fmt.Errorf("%w: %s", core.ErrEditPathNotFound, p[:i+1])
		}
		id = next
	}
	return id, nil
}

func (d *Document) child(id int, seg Segment) (int, bool) {
	n := d.nodes[id]
	if seg.IsIndex {
		if n.kind != KindArray || seg.Index >= len(n.elems) {
			return 0, false
		}
		return n.elems[seg.Index], true
	}
	if n.kind != KindObject {
		return 0, false
	}
	c, ok := n.fields[seg.Key]
	return c, ok
}
