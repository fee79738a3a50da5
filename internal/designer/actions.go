package designer

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/vitebski/schema-designer/internal/sanitizer"
	"github.com/vitebski/schema-designer/pkg/models"
)

var (
	// ErrUnknownNode is returned when an action names a node that does not exist
	ErrUnknownNode = errors.New("unknown node")
	// ErrUnknownEdge is returned when an action names an edge that does not exist
	ErrUnknownEdge = errors.New("unknown edge")
	// ErrInvalidAction is returned when an action cannot be applied to the graph
	ErrInvalidAction = errors.New("invalid action")
)

// DuplicateOffset is how far a duplicated node is moved from the original
const DuplicateOffset = 50

// IDSource generates node ids with the given prefix
type IDSource func(prefix string) string

// NewID returns prefix-<uuid>
func NewID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

// Action is a single mutation of the schema graph
type Action interface {
	// Kind is the wire name of the action
	Kind() string
	apply(g *models.Graph, ids IDSource) error
}

// Apply returns a new graph with the action applied. The input graph is never modified.
func Apply(g models.Graph, action Action, ids IDSource) (models.Graph, error) {
	if ids == nil {
		ids = NewID
	}
	next := g.Clone()
	if err := action.apply(&next, ids); err != nil {
		return g, fmt.Errorf("%s: %w", action.Kind(), err)
	}
	return next, nil
}

// AddTable adds a table node with an id primary key and a created_at column
type AddTable struct {
	Label    string          `json:"label"`
	Position models.Position `json:"position"`
}

func (AddTable) Kind() string { return "addTable" }

func (a AddTable) apply(g *models.Graph, ids IDSource) error {
	label := strings.TrimSpace(a.Label)
	if label == "" {
		label = fmt.Sprintf("Table %d", len(g.Nodes)+1)
	}
	g.Nodes = append(g.Nodes, models.Node{
		ID:       ids("table"),
		Type:     models.KindTable,
		Position: a.Position,
		Data: models.NodeData{
			Label: label,
			Columns: []models.Column{
				{Name: "id", Type: models.TypeInteger, IsPrimary: true},
				{Name: "created_at", Type: models.TypeTimestamp},
			},
		},
		Style: map[string]any{"backgroundColor": sanitizer.DefaultTableBackground},
	})
	return nil
}

// AddColorSource adds a color chooser node
type AddColorSource struct {
	Color    string          `json:"color"`
	Position models.Position `json:"position"`
}

func (AddColorSource) Kind() string { return "addColorSource" }

func (a AddColorSource) apply(g *models.Graph, ids IDSource) error {
	color := a.Color
	if color == "" {
		color = sanitizer.DefaultColor
	}
	if !sanitizer.IsHexColor(color) {
		return fmt.Errorf("%w: %q is not a hex color", ErrInvalidAction, color)
	}
	g.Nodes = append(g.Nodes, models.Node{
		ID:       ids("color"),
		Type:     models.KindColorSource,
		Position: a.Position,
		Data: models.NodeData{
			Label: fmt.Sprintf("Color %d", len(g.Nodes)+1),
			Color: color,
		},
	})
	return nil
}

// RenameNode changes the display name of a node
type RenameNode struct {
	NodeID string `json:"nodeId"`
	Label  string `json:"label"`
}

func (RenameNode) Kind() string { return "renameNode" }

func (a RenameNode) apply(g *models.Graph, _ IDSource) error {
	label := strings.TrimSpace(a.Label)
	if label == "" {
		return fmt.Errorf("%w: name must not be empty", ErrInvalidAction)
	}
	node, err := findNode(g, a.NodeID)
	if err != nil {
		return err
	}
	node.Data.Label = label
	return nil
}

// DeleteNode removes a node together with every edge touching it
type DeleteNode struct {
	NodeID string `json:"nodeId"`
}

func (DeleteNode) Kind() string { return "deleteNode" }

func (a DeleteNode) apply(g *models.Graph, _ IDSource) error {
	if _, err := findNode(g, a.NodeID); err != nil {
		return err
	}
	nodes := g.Nodes[:0]
	for _, n := range g.Nodes {
		if n.ID != a.NodeID {
			nodes = append(nodes, n)
		}
	}
	g.Nodes = nodes

	edges := g.Edges[:0]
	for _, e := range g.Edges {
		if e.Source != a.NodeID && e.Target != a.NodeID {
			edges = append(edges, e)
		}
	}
	g.Edges = edges
	return nil
}

// MoveNode records the final position of a dragged node
type MoveNode struct {
	NodeID   string          `json:"nodeId"`
	Position models.Position `json:"position"`
}

func (MoveNode) Kind() string { return "moveNode" }

func (a MoveNode) apply(g *models.Graph, _ IDSource) error {
	node, err := findNode(g, a.NodeID)
	if err != nil {
		return err
	}
	node.Position = a.Position
	return nil
}

// DuplicateNode copies a node next to the original
type DuplicateNode struct {
	NodeID string `json:"nodeId"`
}

func (DuplicateNode) Kind() string { return "duplicateNode" }

func (a DuplicateNode) apply(g *models.Graph, ids IDSource) error {
	node, err := findNode(g, a.NodeID)
	if err != nil {
		return err
	}
	copied := node.Clone()
	prefix := "table"
	if copied.IsColorSource() {
		prefix = "color"
	}
	copied.ID = ids(prefix)
	copied.Position.X += DuplicateOffset
	copied.Position.Y += DuplicateOffset
	g.Nodes = append(g.Nodes, copied)
	return nil
}

// AddColumn appends a column to a table
type AddColumn struct {
	NodeID string        `json:"nodeId"`
	Column models.Column `json:"column"`
}

func (AddColumn) Kind() string { return "addColumn" }

func (a AddColumn) apply(g *models.Graph, _ IDSource) error {
	table, err := findTable(g, a.NodeID)
	if err != nil {
		return err
	}
	column, err := validColumn(a.Column)
	if err != nil {
		return err
	}
	table.Data.Columns = append(table.Data.Columns, column)
	return nil
}

// UpdateColumn replaces the column at Index
type UpdateColumn struct {
	NodeID string        `json:"nodeId"`
	Index  int           `json:"index"`
	Column models.Column `json:"column"`
}

func (UpdateColumn) Kind() string { return "updateColumn" }

func (a UpdateColumn) apply(g *models.Graph, _ IDSource) error {
	table, err := findTable(g, a.NodeID)
	if err != nil {
		return err
	}
	if a.Index < 0 || a.Index >= len(table.Data.Columns) {
		return fmt.Errorf("%w: column index %d out of range", ErrInvalidAction, a.Index)
	}
	column, err := validColumn(a.Column)
	if err != nil {
		return err
	}
	table.Data.Columns[a.Index] = column
	return nil
}

// RemoveColumn deletes the column at Index. The last column of a table cannot be removed.
type RemoveColumn struct {
	NodeID string `json:"nodeId"`
	Index  int    `json:"index"`
}

func (RemoveColumn) Kind() string { return "removeColumn" }

func (a RemoveColumn) apply(g *models.Graph, _ IDSource) error {
	table, err := findTable(g, a.NodeID)
	if err != nil {
		return err
	}
	if a.Index < 0 || a.Index >= len(table.Data.Columns) {
		return fmt.Errorf("%w: column index %d out of range", ErrInvalidAction, a.Index)
	}
	if len(table.Data.Columns) == 1 {
		return fmt.Errorf("%w: a table needs at least one column", ErrInvalidAction)
	}
	table.Data.Columns = append(table.Data.Columns[:a.Index], table.Data.Columns[a.Index+1:]...)
	return nil
}

// Connect adds an edge between two existing nodes. Connecting a color
// chooser to a table gives the table the chooser's border color.
type Connect struct {
	Source       string  `json:"source"`
	Target       string  `json:"target"`
	SourceHandle *string `json:"sourceHandle"`
	TargetHandle *string `json:"targetHandle"`
}

func (Connect) Kind() string { return "connect" }

func (a Connect) apply(g *models.Graph, ids IDSource) error {
	source, err := findNode(g, a.Source)
	if err != nil {
		return err
	}
	target, err := findNode(g, a.Target)
	if err != nil {
		return err
	}

	for _, e := range g.Edges {
		if e.Source == a.Source && e.Target == a.Target &&
			sameHandle(e.SourceHandle, a.SourceHandle) && sameHandle(e.TargetHandle, a.TargetHandle) {
			return nil
		}
	}

	if source.IsColorSource() && target.IsTable() {
		target.Data.BorderColor = source.Data.Color
	}

	edge := models.Edge{
		ID:     ids("edge"),
		Source: a.Source,
		Target: a.Target,
		Type:   sanitizer.DefaultEdgeType,
		Style:  map[string]any{"stroke": sanitizer.DefaultColor},
	}
	if a.SourceHandle != nil && *a.SourceHandle != "" {
		h := *a.SourceHandle
		edge.SourceHandle = &h
	}
	if a.TargetHandle != nil && *a.TargetHandle != "" {
		h := *a.TargetHandle
		edge.TargetHandle = &h
	}
	g.Edges = append(g.Edges, edge)
	return nil
}

// Disconnect removes an edge
type Disconnect struct {
	EdgeID string `json:"edgeId"`
}

func (Disconnect) Kind() string { return "disconnect" }

func (a Disconnect) apply(g *models.Graph, _ IDSource) error {
	for i, e := range g.Edges {
		if e.ID == a.EdgeID {
			g.Edges = append(g.Edges[:i], g.Edges[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownEdge, a.EdgeID)
}

// ColorChanged is emitted by a color chooser when the user picks a color.
// The chooser takes the color and every table it links to is tinted with it.
type ColorChanged struct {
	NodeID string `json:"nodeId"`
	Color  string `json:"color"`
}

func (ColorChanged) Kind() string { return "colorChanged" }

func (a ColorChanged) apply(g *models.Graph, _ IDSource) error {
	if !sanitizer.IsHexColor(a.Color) {
		return fmt.Errorf("%w: %q is not a hex color", ErrInvalidAction, a.Color)
	}
	source, err := findNode(g, a.NodeID)
	if err != nil {
		return err
	}
	if !source.IsColorSource() {
		return fmt.Errorf("%w: node %s is not a color chooser", ErrInvalidAction, a.NodeID)
	}
	source.Data.Color = a.Color

	linked := make(map[string]bool)
	for _, e := range g.Edges {
		if e.Source == a.NodeID {
			linked[e.Target] = true
		}
	}
	for i := range g.Nodes {
		node := &g.Nodes[i]
		if !linked[node.ID] || !node.IsTable() {
			continue
		}
		if node.Style == nil {
			node.Style = make(map[string]any)
		}
		node.Style["backgroundColor"] = a.Color
		node.Data.BorderColor = a.Color
	}
	return nil
}

// ReplaceGraph swaps the whole graph, as done by undo and redo
type ReplaceGraph struct {
	Graph models.Graph `json:"graph"`
}

func (ReplaceGraph) Kind() string { return "replaceGraph" }

func (a ReplaceGraph) apply(g *models.Graph, _ IDSource) error {
	*g = a.Graph.Clone()
	return nil
}

// actionTypes maps wire names to constructors for DecodeAction
var actionTypes = map[string]func() Action{
	"addTable":       func() Action { return &AddTable{} },
	"addColorSource": func() Action { return &AddColorSource{} },
	"renameNode":     func() Action { return &RenameNode{} },
	"deleteNode":     func() Action { return &DeleteNode{} },
	"moveNode":       func() Action { return &MoveNode{} },
	"duplicateNode":  func() Action { return &DuplicateNode{} },
	"addColumn":      func() Action { return &AddColumn{} },
	"updateColumn":   func() Action { return &UpdateColumn{} },
	"removeColumn":   func() Action { return &RemoveColumn{} },
	"connect":        func() Action { return &Connect{} },
	"disconnect":     func() Action { return &Disconnect{} },
	"colorChanged":   func() Action { return &ColorChanged{} },
}

// DecodeAction decodes a JSON action of the form {"type": "...", ...fields}
func DecodeAction(data []byte) (Action, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}
	newAction, ok := actionTypes[envelope.Type]
	if !ok {
		return nil, fmt.Errorf("%w: unknown action type %q", ErrInvalidAction, envelope.Type)
	}
	action := newAction()
	if err := json.Unmarshal(data, action); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}
	return action, nil
}

func findNode(g *models.Graph, id string) (*models.Node, error) {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownNode, id)
}

func findTable(g *models.Graph, id string) (*models.Node, error) {
	node, err := findNode(g, id)
	if err != nil {
		return nil, err
	}
	if !node.IsTable() {
		return nil, fmt.Errorf("%w: node %s is not a table", ErrInvalidAction, id)
	}
	return node, nil
}

func validColumn(c models.Column) (models.Column, error) {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return models.Column{}, fmt.Errorf("%w: column name must not be empty", ErrInvalidAction)
	}
	dataType := models.TypeVarchar
	if c.Type != "" {
		dt, ok := models.ParseDataType(string(c.Type))
		if !ok {
			return models.Column{}, fmt.Errorf("%w: unknown column type %q", ErrInvalidAction, c.Type)
		}
		dataType = dt
	}
	out := models.Column{
		Name:         name,
		Type:         dataType,
		IsPrimary:    c.IsPrimary,
		IsForeignKey: c.IsForeignKey,
	}
	if c.IsForeignKey && c.ReferencedTable != nil && *c.ReferencedTable != "" {
		ref := *c.ReferencedTable
		out.ReferencedTable = &ref
	}
	return out, nil
}

func sameHandle(a, b *string) bool {
	av, bv := "", ""
	if a != nil {
		av = *a
	}
	if b != nil {
		bv = *b
	}
	return av == bv
}
