package models

import (
	"strings"
	"time"
)

// NodeKind identifies what a node on the canvas represents
type NodeKind string

const (
	// KindTable is a database table node
	KindTable NodeKind = "table"
	// KindColorSource is a color chooser node that tints the tables it links to
	KindColorSource NodeKind = "colorSource"
)

// Wire values written by the browser canvas before node kinds were renamed
const (
	legacyKindTable       = "tableNode"
	legacyKindColorSource = "colorChooser"
)

// ParseNodeKind maps a wire value to a node kind. An empty value is treated as a table.
func ParseNodeKind(value string) NodeKind {
	switch value {
	case "", string(KindTable), legacyKindTable:
		return KindTable
	case string(KindColorSource), legacyKindColorSource:
		return KindColorSource
	default:
		return NodeKind(value)
	}
}

// DataType is the SQL type of a designed column
type DataType string

const (
	TypeVarchar   DataType = "varchar"
	TypeInteger   DataType = "integer"
	TypeText      DataType = "text"
	TypeBoolean   DataType = "boolean"
	TypeTimestamp DataType = "timestamp"
	TypeFloat     DataType = "float"
	TypeJSON      DataType = "json"
	TypeUUID      DataType = "uuid"
	TypeDate      DataType = "date"
	TypeTime      DataType = "time"
	TypeDecimal   DataType = "decimal"
	TypeBigint    DataType = "bigint"
)

// DataTypes lists the column types offered by the designer, in menu order
var DataTypes = []DataType{
	TypeVarchar, TypeInteger, TypeText, TypeBoolean, TypeTimestamp, TypeFloat,
	TypeJSON, TypeUUID, TypeDate, TypeTime, TypeDecimal, TypeBigint,
}

// ParseDataType returns the data type named by value, ignoring case
func ParseDataType(value string) (DataType, bool) {
	candidate := DataType(strings.ToLower(strings.TrimSpace(value)))
	for _, dt := range DataTypes {
		if dt == candidate {
			return dt, true
		}
	}
	return "", false
}

// Position is a canvas coordinate
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Column represents a designed table column
type Column struct {
	Name            string   `json:"name"`
	Type            DataType `json:"type"`
	IsPrimary       bool     `json:"isPrimary"`
	IsForeignKey    bool     `json:"isForeignKey"`
	ReferencedTable *string  `json:"referencedTable"`
}

// NodeData is the payload of a node. Table nodes use Label and Columns,
// color nodes use Label and Color. Unknown keys are kept in Extra.
type NodeData struct {
	Label       string
	Columns     []Column
	Color       string
	BorderColor string
	Extra       map[string]any
}

// Node is a vertex of the schema graph
type Node struct {
	ID       string         `json:"id"`
	Type     NodeKind       `json:"type"`
	Position Position       `json:"position"`
	Data     NodeData       `json:"data"`
	Style    map[string]any `json:"style,omitempty"`
}

// IsTable reports whether the node is a table node
func (n Node) IsTable() bool {
	return ParseNodeKind(string(n.Type)) == KindTable
}

// IsColorSource reports whether the node is a color chooser
func (n Node) IsColorSource() bool {
	return ParseNodeKind(string(n.Type)) == KindColorSource
}

// Edge is a directed connection between two nodes
type Edge struct {
	ID           string         `json:"id"`
	Source       string         `json:"source"`
	Target       string         `json:"target"`
	SourceHandle *string        `json:"sourceHandle"`
	TargetHandle *string        `json:"targetHandle"`
	Type         string         `json:"type"`
	Animated     bool           `json:"animated"`
	Style        map[string]any `json:"style,omitempty"`
}

// Graph is the full set of nodes and edges of a schema. A Graph stored in
// history is called a snapshot.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// NodeByID returns the node with the given id
func (g Graph) NodeByID(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// SchemaRecord is the persisted form of a schema
type SchemaRecord struct {
	ID             string    `json:"id,omitempty"`
	OwnerID        string    `json:"userId"`
	Name           string    `json:"name"`
	Nodes          []Node    `json:"nodes"`
	Edges          []Edge    `json:"edges"`
	LastModified   time.Time `json:"lastModified"`
	LastModifiedBy string    `json:"lastModifiedBy"`
	Collaborators  []string  `json:"collaborators,omitempty"`
}

// Graph returns the nodes and edges of the record
func (r SchemaRecord) Graph() Graph {
	return Graph{Nodes: r.Nodes, Edges: r.Edges}
}

// DefaultSchemaName is used for schemas created without a name
const DefaultSchemaName = "Untitled Schema"

// ForeignKey represents a foreign key relationship derived from a table edge
type ForeignKey struct {
	Table           string
	Column          string
	ReferencedTable string
	EdgeID          string
}

// TableCategory represents the category of a table
type TableCategory int

const (
	Standalone TableCategory = iota
	Dependent
	ManyToMany
	Circular
)

// String returns the display name of the category
func (c TableCategory) String() string {
	switch c {
	case Dependent:
		return "Dependent"
	case ManyToMany:
		return "Many-to-Many"
	case Circular:
		return "Circular"
	default:
		return "Standalone"
	}
}

// DashboardStats summarises all schemas of one owner
type DashboardStats struct {
	TotalSchemas       int `json:"totalSchemas"`
	SharedSchemas      int `json:"sharedSchemas"`
	TotalTables        int `json:"totalTables"`
	TotalRelationships int `json:"totalRelationships"`
}
