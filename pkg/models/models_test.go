package models

import (
	"encoding/json"
	"testing"
)

func TestParseNodeKind(t *testing.T) {
	tests := []struct {
		input    string
		expected NodeKind
	}{
		{"", KindTable},
		{"table", KindTable},
		{"tableNode", KindTable},
		{"colorSource", KindColorSource},
		{"colorChooser", KindColorSource},
		{"note", NodeKind("note")},
	}

	for _, tt := range tests {
		if got := ParseNodeKind(tt.input); got != tt.expected {
			t.Errorf("Expected ParseNodeKind(%q) to be %q, got %q", tt.input, tt.expected, got)
		}
	}
}

func TestParseDataType(t *testing.T) {
	if dt, ok := ParseDataType(" VARCHAR "); !ok || dt != TypeVarchar {
		t.Errorf("Expected varchar, got %q (ok=%v)", dt, ok)
	}
	if _, ok := ParseDataType("money"); ok {
		t.Error("Expected money to be rejected")
	}
}

func TestColumnTolerantDecoding(t *testing.T) {
	input := `[
		{"name": "id", "type": "integer", "isPrimary": 1, "isForeignKey": "", "referencedTable": null},
		{"name": 42, "type": true, "isPrimary": "yes", "isForeignKey": {}, "referencedTable": "users"},
		7
	]`

	var columns []Column
	if err := json.Unmarshal([]byte(input), &columns); err != nil {
		t.Fatalf("Expected tolerant decoding, got error: %v", err)
	}
	if len(columns) != 3 {
		t.Fatalf("Expected 3 columns, got %d", len(columns))
	}

	if !columns[0].IsPrimary || columns[0].IsForeignKey || columns[0].ReferencedTable != nil {
		t.Errorf("Unexpected first column: %+v", columns[0])
	}
	if columns[1].Name != "" || columns[1].Type != "" {
		t.Errorf("Expected non-string fields to decode empty, got %+v", columns[1])
	}
	if !columns[1].IsPrimary || !columns[1].IsForeignKey {
		t.Errorf("Expected truthy flags, got %+v", columns[1])
	}
	if columns[1].ReferencedTable == nil || *columns[1].ReferencedTable != "users" {
		t.Errorf("Expected referencedTable users, got %v", columns[1].ReferencedTable)
	}
	if columns[2] != (Column{}) {
		t.Errorf("Expected non-object column to decode empty, got %+v", columns[2])
	}
}

func TestNodeDataDecodingKeepsExtraKeys(t *testing.T) {
	input := `{"label": "users", "columns": "oops", "icon": "db", "meta": {"a": 1}}`

	var data NodeData
	if err := json.Unmarshal([]byte(input), &data); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if data.Label != "users" {
		t.Errorf("Expected label users, got %q", data.Label)
	}
	if data.Columns != nil {
		t.Errorf("Expected non-array columns to decode as missing, got %v", data.Columns)
	}
	if data.Extra["icon"] != "db" {
		t.Errorf("Expected extra key icon to be preserved, got %v", data.Extra)
	}

	out, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("Unexpected marshal error: %v", err)
	}
	var roundTrip map[string]any
	if err := json.Unmarshal(out, &roundTrip); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if roundTrip["icon"] != "db" || roundTrip["label"] != "users" {
		t.Errorf("Expected extra and known keys on the wire, got %v", roundTrip)
	}
}

func TestNodeDecodingToleratesBadPosition(t *testing.T) {
	var node Node
	if err := json.Unmarshal([]byte(`{"id": "n1", "type": "tableNode", "position": {"x": "left", "y": 20}}`), &node); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if node.ID != "n1" || node.Type != "tableNode" {
		t.Errorf("Unexpected node: %+v", node)
	}
	if node.Position.X != 0 || node.Position.Y != 20 {
		t.Errorf("Expected position (0, 20), got %+v", node.Position)
	}
}

func TestGraphCloneIsDeep(t *testing.T) {
	ref := "users"
	handle := "a"
	g := Graph{
		Nodes: []Node{{
			ID:    "orders",
			Type:  KindTable,
			Style: map[string]any{"nested": map[string]any{"k": "v"}},
			Data: NodeData{
				Label:   "orders",
				Columns: []Column{{Name: "user_id", Type: TypeInteger, IsForeignKey: true, ReferencedTable: &ref}},
				Extra:   map[string]any{"tags": []any{"a"}},
			},
		}},
		Edges: []Edge{{ID: "e1", Source: "orders", Target: "users", SourceHandle: &handle}},
	}

	clone := g.Clone()
	clone.Nodes[0].Data.Columns[0].Name = "changed"
	*clone.Nodes[0].Data.Columns[0].ReferencedTable = "changed"
	clone.Nodes[0].Style["nested"].(map[string]any)["k"] = "changed"
	clone.Nodes[0].Data.Extra["tags"].([]any)[0] = "changed"
	*clone.Edges[0].SourceHandle = "changed"

	if g.Nodes[0].Data.Columns[0].Name != "user_id" {
		t.Error("Expected original column name to be untouched")
	}
	if *g.Nodes[0].Data.Columns[0].ReferencedTable != "users" {
		t.Error("Expected original referenced table to be untouched")
	}
	if g.Nodes[0].Style["nested"].(map[string]any)["k"] != "v" {
		t.Error("Expected original style to be untouched")
	}
	if g.Nodes[0].Data.Extra["tags"].([]any)[0] != "a" {
		t.Error("Expected original extra to be untouched")
	}
	if *g.Edges[0].SourceHandle != "a" {
		t.Error("Expected original handle to be untouched")
	}
	if g.Equal(clone) {
		t.Error("Expected modified clone to differ from original")
	}
	if !g.Equal(g.Clone()) {
		t.Error("Expected fresh clone to equal original")
	}
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		value    any
		expected bool
	}{
		{nil, false},
		{false, false},
		{0.0, false},
		{"", false},
		{true, true},
		{1.0, true},
		{"false", true},
		{map[string]any{}, true},
		{[]any{}, true},
	}

	for _, tt := range tests {
		if got := Truthy(tt.value); got != tt.expected {
			t.Errorf("Expected Truthy(%v) to be %v, got %v", tt.value, tt.expected, got)
		}
	}
}

func TestCloneMapKeepsCycles(t *testing.T) {
	m := map[string]any{"note": "v"}
	m["self"] = m
	list := []any{"a", nil}
	list[1] = list
	m["list"] = list

	clone := CloneMap(m)
	clone["note"] = "changed"

	if m["note"] != "v" {
		t.Error("Expected original map to be untouched")
	}
	self, ok := clone["self"].(map[string]any)
	if !ok {
		t.Fatalf("Expected self reference to be kept, got %T", clone["self"])
	}
	if self["note"] != "changed" {
		t.Error("Expected self reference to point at the clone")
	}
	inner, ok := clone["list"].([]any)
	if !ok || len(inner) != 2 {
		t.Fatalf("Expected list to be kept, got %T", clone["list"])
	}
	inner[0] = "changed"
	if list[0] != "a" {
		t.Error("Expected original list to be untouched")
	}
	if nested, ok := inner[1].([]any); !ok || nested[0] != "changed" {
		t.Error("Expected the list self reference to point at the cloned list")
	}
}
