package models

import (
	"encoding/json"
	"math"
)

// Decoding of graph documents is tolerant: documents written by older
// clients may carry wrong types, and a malformed field must never make the
// whole schema unreadable.

// MarshalJSON writes the known payload keys over the preserved extra keys
func (d NodeData) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Extra)+4)
	for k, v := range d.Extra {
		out[k] = v
	}
	out["label"] = d.Label
	if d.Columns != nil {
		out["columns"] = d.Columns
	}
	if d.Color != "" {
		out["color"] = d.Color
	}
	if d.BorderColor != "" {
		out["borderColor"] = d.BorderColor
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a node payload. A payload that is not an object decodes as empty.
func (d *NodeData) UnmarshalJSON(b []byte) error {
	*d = NodeData{}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil
	}

	for key, value := range raw {
		switch key {
		case "label":
			d.Label = decodeString(value)
		case "columns":
			d.Columns = decodeColumns(value)
		case "color":
			d.Color = decodeString(value)
		case "borderColor":
			d.BorderColor = decodeString(value)
		default:
			var v any
			if err := json.Unmarshal(value, &v); err != nil {
				continue
			}
			if d.Extra == nil {
				d.Extra = make(map[string]any)
			}
			d.Extra[key] = v
		}
	}
	return nil
}

// UnmarshalJSON decodes a column, coercing flags by truthiness
func (c *Column) UnmarshalJSON(b []byte) error {
	*c = Column{}

	var raw struct {
		Name            any `json:"name"`
		Type            any `json:"type"`
		IsPrimary       any `json:"isPrimary"`
		IsForeignKey    any `json:"isForeignKey"`
		ReferencedTable any `json:"referencedTable"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil
	}

	c.Name = stringOf(raw.Name)
	c.Type = DataType(stringOf(raw.Type))
	c.IsPrimary = Truthy(raw.IsPrimary)
	c.IsForeignKey = Truthy(raw.IsForeignKey)
	if ref, ok := raw.ReferencedTable.(string); ok {
		c.ReferencedTable = &ref
	}
	return nil
}

// UnmarshalJSON decodes an edge, tolerating wrongly typed optional fields
func (e *Edge) UnmarshalJSON(b []byte) error {
	*e = Edge{}

	var raw struct {
		ID           any            `json:"id"`
		Source       any            `json:"source"`
		Target       any            `json:"target"`
		SourceHandle any            `json:"sourceHandle"`
		TargetHandle any            `json:"targetHandle"`
		Type         any            `json:"type"`
		Animated     any            `json:"animated"`
		Style        json.RawMessage `json:"style"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil
	}

	e.ID = stringOf(raw.ID)
	e.Source = stringOf(raw.Source)
	e.Target = stringOf(raw.Target)
	if h, ok := raw.SourceHandle.(string); ok {
		e.SourceHandle = &h
	}
	if h, ok := raw.TargetHandle.(string); ok {
		e.TargetHandle = &h
	}
	e.Type = stringOf(raw.Type)
	e.Animated = Truthy(raw.Animated)
	if len(raw.Style) > 0 {
		var style map[string]any
		if err := json.Unmarshal(raw.Style, &style); err == nil {
			e.Style = style
		}
	}
	return nil
}

// Truthy coerces a decoded JSON value to a boolean the way a browser would
func Truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case float64:
		return val != 0 && !math.IsNaN(val)
	case string:
		return val != ""
	default:
		return true
	}
}

func stringOf(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func decodeString(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	return stringOf(v)
}

// decodeColumns returns nil when the value is not an array
func decodeColumns(raw json.RawMessage) []Column {
	var columns []Column
	if err := json.Unmarshal(raw, &columns); err != nil {
		return nil
	}
	return columns
}

// UnmarshalJSON decodes a node. Missing or malformed positions decode as the origin.
func (n *Node) UnmarshalJSON(b []byte) error {
	*n = Node{}

	var raw struct {
		ID       any             `json:"id"`
		Type     any             `json:"type"`
		Position json.RawMessage `json:"position"`
		Data     NodeData        `json:"data"`
		Style    json.RawMessage `json:"style"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil
	}

	n.ID = stringOf(raw.ID)
	n.Type = NodeKind(stringOf(raw.Type))
	n.Data = raw.Data
	if len(raw.Position) > 0 {
		var pos struct {
			X any `json:"x"`
			Y any `json:"y"`
		}
		if err := json.Unmarshal(raw.Position, &pos); err == nil {
			n.Position = Position{X: numberOf(pos.X), Y: numberOf(pos.Y)}
		}
	}
	if len(raw.Style) > 0 {
		var style map[string]any
		if err := json.Unmarshal(raw.Style, &style); err == nil {
			n.Style = style
		}
	}
	return nil
}

func numberOf(v any) float64 {
	if f, ok := v.(float64); ok {
		return f
	}
	return 0
}
