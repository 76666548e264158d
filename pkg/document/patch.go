package document

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/mpislabs/draftflow/pkg/core"
)

// Op is an edit operation.
type Op string

const (
	OpReplace Op = "replace"
	OpAdd     Op = "add"
	OpRemove  Op = "remove"
)

// Edit is one human edit against a draft document.
type Edit struct {
	Path  string          `json:"path" validate:"required"`
	Op    Op              `json:"op" validate:"required,oneof=replace add remove"`
	Value json.RawMessage `json:"value,omitempty"`
}

// Apply applies edits in order to a copy of d and returns the copy.
// Any failing edit aborts the whole list and d is left untouched.
func (d *Document) Apply(edits []Edit) (*Document, error) {
	out := d.Clone()
	for i, e := range edits {
		if err := out.apply(e); err != nil {
			return nil, fmt.Errorf("edit %d (%s %s): %w", i, e.Op, e.Path, err)
		}
	}
	return out, nil
}

func (d *Document) apply(e Edit) error {
	p, err := ParsePath(e.Path)
	if err != nil {
		return err
	}

	switch e.Op {
	case OpReplace:
		v, err := decodeValue(e.Value)
		if err != nil {
			return err
		}
		parent, last, err := d.parentOf(p)
		if err != nil {
			return err
		}
		if _, ok := d.child(parent, last); !ok {
			return fmt.Errorf("%w: %s", core.ErrEditPathNotFound, p)
		}
		d.setChild(parent, last, d.load(v))
		return nil

	case OpRemove:
		if len(e.Value) > 0 && string(bytes.TrimSpace(e.Value)) != "null" {
			return fmt.Errorf("%w: remove takes no value", core.ErrInvalidEdit)
		}
		parent, last, err := d.parentOf(p)
		if err != nil {
			return err
		}
		if _, ok := d.child(parent, last); !ok {
			return fmt.Errorf("%w: %s", core.ErrEditPathNotFound, p)
		}
		d.removeChild(parent, last)
		return nil

	case OpAdd:
		v, err := decodeValue(e.Value)
		if err != nil {
			return err
		}
		// A path naming an existing array appends to it.
		if target, err := d.resolve(p); err == nil && d.nodes[target].kind == KindArray {
			id := d.load(v)
			d.nodes[target].elems = append(d.nodes[target].elems, id)
			return nil
		}
		parent, last, err := d.parentOf(p)
		if err != nil {
			return err
		}
		return d.addChild(parent, last, v)

	default:
		return fmt.Errorf("%w: unknown op %q", core.ErrInvalidEdit, e.Op)
	}
}

// parentOf resolves every segment but the last and returns the parent node id.
func (d *Document) parentOf(p Path) (int, Segment, error) {
	parent, err := d.resolve(p[:len(p)-1])
	if err != nil {
		return 0, Segment{}, err
	}
	return parent, p[len(p)-1], nil
}

func (d *Document) setChild(parent int, seg Segment, id int) {
	n := &d.nodes[parent]
	if seg.IsIndex {
		n.elems[seg.Index] = id
		return
	}
	n.fields[seg.Key] = id
}

func (d *Document) removeChild(parent int, seg Segment) {
	n := &d.nodes[parent]
	if seg.IsIndex {
		n.elems = append(n.elems[:seg.Index], n.elems[seg.Index+1:]...)
		return
	}
	delete(n.fields, seg.Key)
	for i, k := range n.keys {
		if k == seg.Key {
			n.keys = append(n.keys[:i], n.keys[i+1:]...)
			break
		}
	}
}

func (d *Document) addChild(parent int, seg Segment, v any) error {
	kind := d.nodes[parent].kind
	switch {
	case seg.IsIndex && kind == KindArray:
		id := d.load(v)
		n := &d.nodes[parent]
		if seg.Index >= len(n.elems) {
			// Past the end appends.
			n.elems = append(n.elems, id)
			return nil
		}
		n.elems = append(n.elems, 0)
		copy(n.elems[seg.Index+1:], n.elems[seg.Index:])
		n.elems[seg.Index] = id
		return nil
	case !seg.IsIndex && kind == KindObject:
		id := d.load(v)
		n := &d.nodes[parent]
		if _, exists := n.fields[seg.Key]; !exists {
			n.keys = append(n.keys, seg.Key)
		}
		n.fields[seg.Key] = id
		return nil
	default:
		return fmt.Errorf("%w: parent of %s is not a matching container", core.ErrEditPathNotFound, seg)
	}
}

func decodeValue(raw json.RawMessage) (any, error) {
	if len(raw) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return nil, fmt.Errorf("%w: value is required", core.ErrInvalidEdit)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: value is not valid JSON", core.ErrInvalidEdit)
	}
	return v, nil
}
