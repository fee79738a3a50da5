package exporter

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vitebski/schema-designer/pkg/models"
)

// Format is an export output format
type Format string

const (
	FormatSQL  Format = "sql"
	FormatJSON Format = "json"
)

// ParseFormat returns the format named by value, ignoring case
func ParseFormat(value string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(value))) {
	case FormatSQL:
		return FormatSQL, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported export format %q (expected sql or json)", value)
	}
}

// ContentType returns the MIME type of the format
func (f Format) ContentType() string {
	if f == FormatJSON {
		return "application/json"
	}
	return "application/sql"
}

// FileName returns the download file name for a schema in the given format
func FileName(schemaName string, format Format) string {
	stem := strings.TrimSpace(schemaName)
	if stem == "" {
		stem = models.DefaultSchemaName
	}
	return stem + "." + string(format)
}

// Document is a rendered export ready to be copied or downloaded
type Document struct {
	Format      Format
	FileName    string
	ContentType string
	Content     string
}

// Export renders the graph in the given format
func Export(schemaName string, format Format, nodes []models.Node, edges []models.Edge) (Document, error) {
	var content string
	switch format {
	case FormatSQL:
		content = GenerateSQL(nodes, edges)
	case FormatJSON:
		content = GenerateJSON(nodes, edges)
	default:
		return Document{}, fmt.Errorf("unsupported export format %q", format)
	}

	return Document{
		Format:      format,
		FileName:    FileName(schemaName, format),
		ContentType: format.ContentType(),
		Content:     content,
	}, nil
}

// GenerateSQL renders one CREATE TABLE statement per table node followed by
// one ALTER TABLE statement per relationship whose source table has a
// foreign key column. The referenced column is always id.
func GenerateSQL(nodes []models.Node, edges []models.Edge) string {
	var sb strings.Builder
	tables := tableIndex(nodes)

	for _, node := range nodes {
		if !node.IsTable() {
			continue
		}
		sb.WriteString("CREATE TABLE ")
		sb.WriteString(node.Data.Label)
		sb.WriteString(" (\n")
		for i, column := range node.Data.Columns {
			if i > 0 {
				sb.WriteString(",\n")
			}
			sb.WriteString("  ")
			sb.WriteString(column.Name)
			sb.WriteString(" ")
			sb.WriteString(strings.ToUpper(string(column.Type)))
			if column.IsPrimary {
				sb.WriteString(" PRIMARY KEY")
			}
		}
		sb.WriteString("\n);\n\n")
	}

	for _, edge := range edges {
		source, ok := tables[edge.Source]
		if !ok {
			continue
		}
		target, ok := tables[edge.Target]
		if !ok {
			continue
		}
		fk, ok := firstForeignKey(source)
		if !ok {
			continue
		}
		fmt.Fprintf(&sb, "ALTER TABLE %s ADD FOREIGN KEY (%s) REFERENCES %s(id);\n\n",
			source.Data.Label, fk.Name, target.Data.Label)
	}

	return sb.String()
}

// TableColumn is a column entry of a JSON export
type TableColumn struct {
	Name            string          `json:"name"`
	Type            models.DataType `json:"type"`
	IsPrimary       bool            `json:"isPrimary"`
	IsForeignKey    bool            `json:"isForeignKey"`
	ReferencedTable *string         `json:"referencedTable"`
}

// Table is a table entry of a JSON export
type Table struct {
	Name    string        `json:"name"`
	Columns []TableColumn `json:"columns"`
}

// Relationship is a table-to-table link of a JSON export
type Relationship struct {
	SourceTable string `json:"sourceTable"`
	TargetTable string `json:"targetTable"`
	Type        string `json:"type"`
}

// SchemaDocument is the structure written by GenerateJSON
type SchemaDocument struct {
	Tables        []Table        `json:"tables"`
	Relationships []Relationship `json:"relationships"`
}

// RelationshipType is the cardinality reported for every relationship
const RelationshipType = "many-to-one"

// GenerateJSON renders the tables and table-to-table relationships as an
// indented JSON document
func GenerateJSON(nodes []models.Node, edges []models.Edge) string {
	doc := SchemaDocument{
		Tables:        []Table{},
		Relationships: []Relationship{},
	}
	tables := tableIndex(nodes)

	for _, node := range nodes {
		if !node.IsTable() {
			continue
		}
		table := Table{Name: node.Data.Label, Columns: []TableColumn{}}
		for _, column := range node.Data.Columns {
			table.Columns = append(table.Columns, TableColumn{
				Name:            column.Name,
				Type:            column.Type,
				IsPrimary:       column.IsPrimary,
				IsForeignKey:    column.IsForeignKey,
				ReferencedTable: column.ReferencedTable,
			})
		}
		doc.Tables = append(doc.Tables, table)
	}

	for _, edge := range edges {
		source, ok := tables[edge.Source]
		if !ok {
			continue
		}
		target, ok := tables[edge.Target]
		if !ok {
			continue
		}
		doc.Relationships = append(doc.Relationships, Relationship{
			SourceTable: source.Data.Label,
			TargetTable: target.Data.Label,
			Type:        RelationshipType,
		})
	}

	// Only strings, bools and slices of them are encoded here
	out, _ := json.MarshalIndent(doc, "", "  ")
	return string(out)
}

func tableIndex(nodes []models.Node) map[string]models.Node {
	tables := make(map[string]models.Node, len(nodes))
	for _, n := range nodes {
		if n.IsTable() {
			if _, exists := tables[n.ID]; !exists {
				tables[n.ID] = n
			}
		}
	}
	return tables
}

func firstForeignKey(node models.Node) (models.Column, bool) {
	for _, c := range node.Data.Columns {
		if c.IsForeignKey {
			return c, true
		}
	}
	return models.Column{}, false
}
