// Package document holds structured draft documents in an arena of nodes so
// that edit paths resolve structurally to node ids.
package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ErrNotObject is returned by Parse when the document root is not a JSON object.
var ErrNotObject = errors.New("document: root must be a JSON object")

// Kind classifies a node.
type Kind int

const (
	KindScalar Kind = iota
	KindObject
	KindArray
)

type node struct {
	kind   Kind
	scalar any            // string, json.Number, bool or nil
	keys   []string       // object member order
	fields map[string]int // object member -> node id
	elems  []int          // array elements
}

// Document is an arena-addressed JSON document. Node 0 is always the root object.
// Nodes detached by edits stay in the arena but are unreachable.
type Document struct {
	nodes []node
}

// Parse decodes data into a Document. Numbers keep their textual form.
func Parse(data []byte) (*Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("document: decode: %w", err)
	}
	if dec.More() {
		return nil, errors.New("document: trailing data after JSON value")
	}
	if _, ok := v.(map[string]any); !ok {
		return nil, ErrNotObject
	}
	d := &Document{}
	d.load(v)
	return d, nil
}

// load appends v (and its children) to the arena and returns its node id.
func (d *Document) load(v any) int {
	id := len(d.nodes)
	d.nodes = append(d.nodes, node{})
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		n := node{kind: KindObject, keys: keys, fields: make(map[string]int, len(t))}
		for _, k := range keys {
			n.fields[k] = d.load(t[k])
		}
		d.nodes[id] = n
	case []any:
		n := node{kind: KindArray, elems: make([]int, 0, len(t))}
		for _, e := range t {
			n.elems = append(n.elems, d.load(e))
		}
		d.nodes[id] = n
	default:
		d.nodes[id] = node{kind: KindScalar, scalar: t}
	}
	return id
}

// Clone returns a deep copy that can be edited independently.
func (d *Document) Clone() *Document {
	c := &Document{nodes: make([]node, len(d.nodes))}
	for i, n := range d.nodes {
		cn := node{kind: n.kind, scalar: n.scalar}
		if n.keys != nil {
			cn.keys = append([]string(nil), n.keys...)
			cn.fields = make(map[string]int, len(n.fields))
			for k, v := range n.fields {
				cn.fields[k] = v
			}
		}
		if n.elems != nil {
			cn.elems = append([]int(nil), n.elems...)
		}
		c.nodes[i] = cn
	}
	return c
}

// value rebuilds the plain Go value rooted at node id.
func (d *Document) value(id int) any {
	n := d.nodes[id]
	switch n.kind {
	case KindObject:
		m := make(map[string]any, len(n.keys))
		for _, k := range n.keys {
			m[k] = d.value(n.fields[k])
		}
		return m
	case KindArray:
		out := make([]any, len(n.elems))
		for i, e := range n.elems {
			out[i] = d.value(e)
		}
		return out
	default:
		return n.scalar
	}
}

// Map returns the document as a plain map.
func (d *Document) Map() map[string]any {
	return d.value(0).(map[string]any)
}

// MarshalJSON encodes the reachable part of the arena.
func (d *Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.value(0))
}

// Lookup resolves path and returns the value stored there.
func (d *Document) Lookup(path string) (any, error) {
	p, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	id, err := d.resolve(p)
	if err != nil {
		return nil, err
	}
	return d.value(id), nil
}

// Section is one top-level member of a document rendered as text.
type Section struct {
	Key  string
	Text string
}

// Sections renders each top-level member for indexing, in key order.
// Scalar strings are emitted as-is; everything else as compact JSON.
func (d *Document) Sections() []Section {
	root := d.nodes[0]
	out := make([]Section, 0, len(root.keys))
	for _, k := range root.keys {
		v := d.value(root.fields[k])
		text, ok := v.(string)
		if !ok {
			b, err := json.Marshal(v)
			if err != nil {
				continue
			}
			text = string(b)
		}
		out = append(out, Section{Key: k, Text: text})
	}
	return out
}
