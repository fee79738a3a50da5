package models

import (
	"bytes"
	"encoding/json"
	"reflect"
)

// Clone returns a deep copy of the graph. Mutating the copy never affects the original.
func (g Graph) Clone() Graph {
	var out Graph
	if g.Nodes != nil {
		out.Nodes = make([]Node, len(g.Nodes))
	}
	if g.Edges != nil {
		out.Edges = make([]Edge, len(g.Edges))
	}
	for i, n := range g.Nodes {
		out.Nodes[i] = n.Clone()
	}
	for i, e := range g.Edges {
		out.Edges[i] = e.Clone()
	}
	return out
}

// Equal reports whether two graphs serialize identically. Nil and empty lists are equal.
func (g Graph) Equal(other Graph) bool {
	a, err := json.Marshal(g.withEmptyLists())
	if err != nil {
		return false
	}
	b, err := json.Marshal(other.withEmptyLists())
	if err != nil {
		return false
	}
	return bytes.Equal(a, b)
}

func (g Graph) withEmptyLists() Graph {
	if g.Nodes == nil {
		g.Nodes = []Node{}
	}
	if g.Edges == nil {
		g.Edges = []Edge{}
	}
	return g
}

// Clone returns a deep copy of the node
func (n Node) Clone() Node {
	out := n
	out.Data = n.Data.Clone()
	out.Style = CloneMap(n.Style)
	return out
}

// Clone returns a deep copy of the payload
func (d NodeData) Clone() NodeData {
	out := d
	if d.Columns != nil {
		out.Columns = make([]Column, len(d.Columns))
		for i, c := range d.Columns {
			out.Columns[i] = c.Clone()
		}
	}
	out.Extra = CloneMap(d.Extra)
	return out
}

// Clone returns a deep copy of the column
func (c Column) Clone() Column {
	out := c
	if c.ReferencedTable != nil {
		ref := *c.ReferencedTable
		out.ReferencedTable = &ref
	}
	return out
}

// Clone returns a deep copy of the edge
func (e Edge) Clone() Edge {
	out := e
	if e.SourceHandle != nil {
		h := *e.SourceHandle
		out.SourceHandle = &h
	}
	if e.TargetHandle != nil {
		h := *e.TargetHandle
		out.TargetHandle = &h
	}
	out.Style = CloneMap(e.Style)
	return out
}

// CloneMap deep copies nested maps and slices. Other values are copied by
// assignment. Shared and self-referencing containers keep their shape in the copy.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	c := &cloner{maps: make(map[uintptr]map[string]any), lists: make(map[listKey][]any)}
	return c.cloneMap(m)
}

type listKey struct {
	ptr uintptr
	n   int
}

type cloner struct {
	maps  map[uintptr]map[string]any
	lists map[listKey][]any
}

func (c *cloner) cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	ptr := reflect.ValueOf(m).Pointer()
	if out, ok := c.maps[ptr]; ok {
		return out
	}
	out := make(map[string]any, len(m))
	c.maps[ptr] = out
	for k, v := range m {
		out[k] = c.cloneValue(v)
	}
	return out
}

func (c *cloner) cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return c.cloneMap(val)
	case []any:
		if len(val) == 0 {
			return make([]any, 0)
		}
		key := listKey{ptr: reflect.ValueOf(val).Pointer(), n: len(val)}
		if out, ok := c.lists[key]; ok {
			return out
		}
		out := make([]any, len(val))
		c.lists[key] = out
		for i, item := range val {
			out[i] = c.cloneValue(item)
		}
		return out
	default:
		return val
	}
}
