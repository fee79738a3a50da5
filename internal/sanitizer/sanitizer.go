package sanitizer

import (
	"math"
	"reflect"
	"regexp"

	"github.com/google/uuid"
	"github.com/vitebski/schema-designer/pkg/models"
)

// Defaults applied to incomplete nodes and edges
const (
	DefaultLabel           = "Untitled"
	DefaultColor           = "#4D55CC"
	DefaultTableBackground = "#ffffff"
	DefaultEdgeType        = "default"
)

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)

// IsHexColor reports whether s is a #rgb, #rrggbb or #rrggbbaa color
func IsHexColor(s string) bool {
	return hexColor.MatchString(s)
}

// Sanitizer converts a graph into its canonical persistence-safe form
type Sanitizer struct {
	// NewEdgeID generates ids for edges that have none
	NewEdgeID func() string
}

// NewSanitizer creates a sanitizer generating uuid based edge ids
func NewSanitizer() *Sanitizer {
	return &Sanitizer{NewEdgeID: NewEdgeID}
}

// NewEdgeID returns a collision-resistant edge id
func NewEdgeID() string {
	return "edge-" + uuid.NewString()
}

var defaultSanitizer = NewSanitizer()

// Sanitize normalizes nodes and edges with the default sanitizer
func Sanitize(nodes []models.Node, edges []models.Edge) ([]models.Node, []models.Edge) {
	return defaultSanitizer.Sanitize(nodes, edges)
}

// SanitizeGraph is Sanitize over a graph value
func SanitizeGraph(g models.Graph) models.Graph {
	nodes, edges := defaultSanitizer.Sanitize(g.Nodes, g.Edges)
	return models.Graph{Nodes: nodes, Edges: edges}
}

// Sanitize returns fresh copies of nodes and edges with defaults filled in,
// non-serializable values removed and dangling edges dropped. The inputs are
// never modified and sanitizing an already sanitized graph returns it unchanged.
func (s *Sanitizer) Sanitize(nodes []models.Node, edges []models.Edge) ([]models.Node, []models.Edge) {
	safeNodes := make([]models.Node, 0, len(nodes))
	seenNodes := make(map[string]bool, len(nodes))
	for _, node := range nodes {
		if seenNodes[node.ID] {
			continue
		}
		seenNodes[node.ID] = true
		safeNodes = append(safeNodes, sanitizeNode(node))
	}

	safeEdges := make([]models.Edge, 0, len(edges))
	seenEdges := make(map[string]bool, len(edges))
	for _, edge := range edges {
		if !seenNodes[edge.Source] || !seenNodes[edge.Target] {
			continue
		}
		safe := sanitizeEdge(edge)
		if safe.ID == "" || seenEdges[safe.ID] {
			safe.ID = s.newEdgeID()
		}
		seenEdges[safe.ID] = true
		safeEdges = append(safeEdges, safe)
	}

	return safeNodes, safeEdges
}

// DanglingEdges counts edges whose source or target is not among the nodes
func DanglingEdges(nodes []models.Node, edges []models.Edge) int {
	ids := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		ids[n.ID] = true
	}
	count := 0
	for _, e := range edges {
		if !ids[e.Source] || !ids[e.Target] {
			count++
		}
	}
	return count
}

func (s *Sanitizer) newEdgeID() string {
	if s.NewEdgeID != nil {
		return s.NewEdgeID()
	}
	return NewEdgeID()
}

func sanitizeNode(node models.Node) models.Node {
	out := models.Node{
		ID:       node.ID,
		Type:     models.ParseNodeKind(string(node.Type)),
		Position: sanitizePosition(node.Position),
		Style:    sanitizeMap(node.Style),
	}

	data := models.NodeData{
		Label:       node.Data.Label,
		BorderColor: node.Data.BorderColor,
		Extra:       sanitizeMap(node.Data.Extra),
	}
	if data.Label == "" {
		data.Label = DefaultLabel
	}

	switch out.Type {
	case models.KindTable:
		data.Columns = sanitizeColumns(node.Data.Columns)
		data.Color = node.Data.Color
		if out.Style == nil {
			out.Style = make(map[string]any)
		}
		if _, ok := out.Style["backgroundColor"]; !ok {
			out.Style["backgroundColor"] = DefaultTableBackground
		}
	case models.KindColorSource:
		data.Color = node.Data.Color
		if !hexColor.MatchString(data.Color) {
			data.Color = DefaultColor
		}
	default:
		data.Color = node.Data.Color
	}

	out.Data = data
	return out
}

func sanitizePosition(p models.Position) models.Position {
	return models.Position{X: finiteOrZero(p.X), Y: finiteOrZero(p.Y)}
}

func finiteOrZero(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// DefaultColumns is the column list given to tables that have none
func DefaultColumns() []models.Column {
	return []models.Column{{
		Name:      "id",
		Type:      models.TypeInteger,
		IsPrimary: true,
	}}
}

func sanitizeColumns(columns []models.Column) []models.Column {
	if len(columns) == 0 {
		return DefaultColumns()
	}

	out := make([]models.Column, len(columns))
	for i, c := range columns {
		safe := models.Column{
			Name:         c.Name,
			IsPrimary:    c.IsPrimary,
			IsForeignKey: c.IsForeignKey,
		}
		if dt, ok := models.ParseDataType(string(c.Type)); ok {
			safe.Type = dt
		} else {
			safe.Type = models.TypeVarchar
		}
		if c.IsForeignKey && c.ReferencedTable != nil && *c.ReferencedTable != "" {
			ref := *c.ReferencedTable
			safe.ReferencedTable = &ref
		}
		out[i] = safe
	}
	return out
}

func sanitizeEdge(edge models.Edge) models.Edge {
	out := models.Edge{
		ID:           edge.ID,
		Source:       edge.Source,
		Target:       edge.Target,
		SourceHandle: sanitizeHandle(edge.SourceHandle),
		TargetHandle: sanitizeHandle(edge.TargetHandle),
		Type:         edge.Type,
		Animated:     edge.Animated,
		Style:        sanitizeMap(edge.Style),
	}
	if out.Type == "" {
		out.Type = DefaultEdgeType
	}
	if len(out.Style) == 0 {
		out.Style = map[string]any{"stroke": DefaultColor}
	}
	return out
}

func sanitizeHandle(h *string) *string {
	if h == nil || *h == "" {
		return nil
	}
	v := *h
	return &v
}

// sanitizeMap deep copies m, dropping values that cannot be encoded as JSON
func sanitizeMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	c := &copier{path: make(map[visit]bool)}
	out, _ := c.stringMap(reflect.ValueOf(m))
	return out
}

// visit identifies a map, slice or pointer by the memory it refers to
type visit struct {
	ptr uintptr
	typ reflect.Type
	n   int
}

// copier deep copies free-form values. A container that is already on the
// current path is a cycle and gets dropped.
type copier struct {
	path map[visit]bool
}

func (c *copier) enter(rv reflect.Value) (func(), bool) {
	key := visit{ptr: rv.Pointer(), typ: rv.Type()}
	if rv.Kind() == reflect.Slice {
		key.n = rv.Len()
	}
	if c.path[key] {
		return nil, false
	}
	c.path[key] = true
	return func() { delete(c.path, key) }, true
}

func (c *copier) value(v any) (any, bool) {
	switch val := v.(type) {
	case nil, bool, string:
		return val, true
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil, false
		}
		return val, true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32:
		return c.value(rv.Float())
	case reflect.String:
		return rv.String(), true
	case reflect.Bool:
		return rv.Bool(), true
	case reflect.Slice, reflect.Array:
		return c.list(rv)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		out, ok := c.stringMap(rv)
		if !ok {
			return nil, false
		}
		return out, true
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, true
		}
		leave, ok := c.enter(rv)
		if !ok {
			return nil, false
		}
		defer leave()
		return c.value(rv.Elem().Interface())
	default:
		// funcs, channels, complex numbers, structs and unsafe pointers
		return nil, false
	}
}

func (c *copier) stringMap(rv reflect.Value) (map[string]any, bool) {
	if rv.IsNil() {
		return nil, true
	}
	leave, ok := c.enter(rv)
	if !ok {
		return nil, false
	}
	defer leave()

	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		if safe, ok := c.value(iter.Value().Interface()); ok {
			out[iter.Key().String()] = safe
		}
	}
	return out, true
}

func (c *copier) list(rv reflect.Value) ([]any, bool) {
	if rv.Kind() == reflect.Slice && rv.Len() > 0 {
		leave, ok := c.enter(rv)
		if !ok {
			return nil, false
		}
		defer leave()
	}

	out := make([]any, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		if safe, ok := c.value(rv.Index(i).Interface()); ok {
			out = append(out, safe)
		}
	}
	return out, true
}
