package analyzer

import (
	"sort"

	"github.com/vitebski/schema-designer/pkg/models"
)

// TableEntry is one table of the creation order
type TableEntry struct {
	Name     string `json:"name"`
	Category string `json:"category"`
}

// Report summarises an analyzed schema
type Report struct {
	Tables         int          `json:"tables"`
	Relationships  int          `json:"relationships"`
	ColorLinks     int          `json:"colorLinks"`
	DanglingEdges  int          `json:"danglingEdges"`
	ManyToMany     []string     `json:"manyToMany"`
	Circular       []string     `json:"circular"`
	CircularPairs  [][]string   `json:"circularPairs"`
	CreationOrder  []TableEntry `json:"creationOrder"`
	TablesWithKeys int          `json:"tablesWithForeignKeys"`
}

// Report builds a summary of the last analyzed graph
func (sa *SchemaAnalyzer) Report() Report {
	ordered, circular := sa.GetTableCreationOrder()

	report := Report{
		Tables:         len(sa.Tables),
		ColorLinks:     sa.ColorLinks,
		DanglingEdges:  sa.DanglingEdges,
		ManyToMany:     sortedKeys(sa.ManyToManyTables),
		Circular:       sortedKeys(circular),
		CircularPairs:  sa.DirectCircularDeps,
		CreationOrder:  make([]TableEntry, 0, len(ordered)),
		TablesWithKeys: len(sa.ForeignKeys),
	}
	for _, fks := range sa.ForeignKeys {
		report.Relationships += len(fks)
	}
	for _, table := range ordered {
		report.CreationOrder = append(report.CreationOrder, TableEntry{
			Name:     table,
			Category: sa.Category(table, circular).String(),
		})
	}
	return report
}

// Analyze runs a fresh analysis of g and returns its report
func (sa *SchemaAnalyzer) Analyze(g models.Graph) Report {
	sa.AnalyzeGraph(g)
	return sa.Report()
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k, v := range m {
		if v {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Dashboard totals the schemas of one owner. Only table nodes count as
// tables and only edges between two tables count as relationships.
func Dashboard(records []models.SchemaRecord) models.DashboardStats {
	stats := models.DashboardStats{TotalSchemas: len(records)}
	for _, record := range records {
		if len(record.Collaborators) > 0 {
			stats.SharedSchemas++
		}

		tables := make(map[string]bool)
		for _, node := range record.Nodes {
			if node.IsTable() {
				tables[node.ID] = true
			}
		}
		stats.TotalTables += len(tables)
		for _, edge := range record.Edges {
			if tables[edge.Source] && tables[edge.Target] {
				stats.TotalRelationships++
			}
		}
	}
	return stats
}
