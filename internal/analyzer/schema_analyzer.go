package analyzer

import (
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/schema-designer/pkg/models"
	"github.com/yourbasic/graph"
)

// SchemaAnalyzer analyzes a designed schema graph, detects dependencies and
// sorts tables into the order they can be created in
type SchemaAnalyzer struct {
	Tables             []string
	ForeignKeys        map[string][]models.ForeignKey
	ManyToManyTables   map[string]bool
	TableColumns       map[string][]models.Column
	DependencyGraph    *graph.Mutable
	TableIndexMap      map[string]int
	IndexTableMap      map[int]string
	DirectCircularDeps [][]string
	DanglingEdges      int
	ColorLinks         int
	Logger             *logrus.Logger
}

// NewSchemaAnalyzer creates a new schema analyzer
func NewSchemaAnalyzer(logger *logrus.Logger) *SchemaAnalyzer {
	sa := &SchemaAnalyzer{Logger: logger}
	sa.reset()
	return sa
}

func (sa *SchemaAnalyzer) reset() {
	sa.Tables = nil
	sa.ForeignKeys = make(map[string][]models.ForeignKey)
	sa.ManyToManyTables = make(map[string]bool)
	sa.TableColumns = make(map[string][]models.Column)
	sa.TableIndexMap = make(map[string]int)
	sa.IndexTableMap = make(map[int]string)
	sa.DirectCircularDeps = nil
	sa.DanglingEdges = 0
	sa.ColorLinks = 0
	sa.DependencyGraph = graph.New(0)
}

// AnalyzeGraph analyzes the tables and relationships of a schema graph.
// Tables are identified by label; a table whose label repeats an earlier
// one is ignored. A relationship is an edge between two tables whose
// source has a foreign key column, or a foreign key column naming another
// table by label.
func (sa *SchemaAnalyzer) AnalyzeGraph(g models.Graph) {
	sa.reset()

	labelByID := make(map[string]string)
	nodeByID := make(map[string]models.Node)
	for _, node := range g.Nodes {
		nodeByID[node.ID] = node
		if !node.IsTable() {
			continue
		}
		label := node.Data.Label
		if _, exists := sa.TableIndexMap[label]; exists {
			sa.Logger.Warningf("Duplicate table name %s (node %s), ignoring it in the analysis", label, node.ID)
			continue
		}
		labelByID[node.ID] = label
		sa.TableIndexMap[label] = len(sa.Tables)
		sa.IndexTableMap[len(sa.Tables)] = label
		sa.Tables = append(sa.Tables, label)
		sa.TableColumns[label] = node.Data.Columns
	}

	sa.DependencyGraph = graph.New(len(sa.Tables))

	seen := make(map[[3]string]bool)
	addForeignKey := func(fk models.ForeignKey) {
		key := [3]string{fk.Table, fk.Column, fk.ReferencedTable}
		if seen[key] {
			return
		}
		seen[key] = true
		sa.ForeignKeys[fk.Table] = append(sa.ForeignKeys[fk.Table], fk)
		sa.DependencyGraph.Add(sa.TableIndexMap[fk.Table], sa.TableIndexMap[fk.ReferencedTable])
	}

	for _, edge := range g.Edges {
		source, sourceOK := nodeByID[edge.Source]
		_, targetOK := nodeByID[edge.Target]
		if !sourceOK || !targetOK {
			sa.DanglingEdges++
			continue
		}
		if source.IsColorSource() {
			sa.ColorLinks++
			continue
		}
		srcLabel, srcIsTable := labelByID[edge.Source]
		dstLabel, dstIsTable := labelByID[edge.Target]
		if !srcIsTable || !dstIsTable {
			continue
		}
		column, ok := firstForeignKey(source)
		if !ok {
			sa.Logger.Debugf("Edge %s from %s has no foreign key column", edge.ID, srcLabel)
			continue
		}
		addForeignKey(models.ForeignKey{
			Table:           srcLabel,
			Column:          column.Name,
			ReferencedTable: dstLabel,
			EdgeID:          edge.ID,
		})
	}

	for _, table := range sa.Tables {
		for _, col := range sa.TableColumns[table] {
			if !col.IsForeignKey || col.ReferencedTable == nil {
				continue
			}
			if _, ok := sa.TableIndexMap[*col.ReferencedTable]; !ok {
				continue
			}
			addForeignKey(models.ForeignKey{
				Table:           table,
				Column:          col.Name,
				ReferencedTable: *col.ReferencedTable,
			})
		}
	}

	sa.detectManyToManyTables()
	sa.Logger.Debugf("Analyzed %d tables, %d with foreign keys", len(sa.Tables), len(sa.ForeignKeys))
}

func firstForeignKey(node models.Node) (models.Column, bool) {
	for _, col := range node.Data.Columns {
		if col.IsForeignKey {
			return col, true
		}
	}
	return models.Column{}, false
}

// detectManyToManyTables detects tables that represent many-to-many relationships
func (sa *SchemaAnalyzer) detectManyToManyTables() {
	for _, table := range sa.Tables {
		fks, hasFKs := sa.ForeignKeys[table]
		if !hasFKs {
			continue
		}

		columns := sa.TableColumns[table]
		if len(columns) == 0 {
			continue
		}

		pkColumns := 0
		for _, col := range columns {
			if col.IsPrimary {
				pkColumns++
			}
		}

		// A join table has at least 2 foreign keys making up at least half
		// of its columns, and almost every foreign key is part of the key
		if len(fks) >= 2 && float64(len(fks))/float64(len(columns)) >= 0.5 && pkColumns >= len(fks)-1 {
			referencedTables := make(map[string]bool)
			for _, fk := range fks {
				referencedTables[fk.ReferencedTable] = true
			}

			if len(referencedTables) >= 2 {
				sa.ManyToManyTables[table] = true
			}
		}
	}
}

// GetCircularTables returns tables involved in circular dependencies.
// Self references are not circular: the table can be created first and
// the constraint added afterwards.
func (sa *SchemaAnalyzer) GetCircularTables() map[string]bool {
	circularTables := make(map[string]bool)
	sa.DirectCircularDeps = [][]string{}

	if sa.DependencyGraph == nil {
		return circularTables
	}

	for _, component := range graph.StrongComponents(sa.DependencyGraph) {
		if len(component) < 2 {
			continue
		}
		for _, idx := range component {
			circularTables[sa.IndexTableMap[idx]] = true
		}
	}

	for i := range sa.Tables {
		for j := i + 1; j < len(sa.Tables); j++ {
			if sa.DependencyGraph.Edge(i, j) && sa.DependencyGraph.Edge(j, i) {
				sa.DirectCircularDeps = append(sa.DirectCircularDeps, []string{sa.IndexTableMap[i], sa.IndexTableMap[j]})
			}
		}
	}

	return circularTables
}

// GetTableCreationOrder determines the order in which tables can be
// created so that every referenced table exists before the tables
// referencing it. Circular tables follow in name order, join tables last.
func (sa *SchemaAnalyzer) GetTableCreationOrder() ([]string, map[string]bool) {
	circularTables := sa.GetCircularTables()

	// Edges point from the referenced table to the referencing one
	order := graph.New(len(sa.Tables))
	for table, fks := range sa.ForeignKeys {
		for _, fk := range fks {
			if fk.ReferencedTable == table || circularTables[table] || circularTables[fk.ReferencedTable] {
				continue
			}
			order.Add(sa.TableIndexMap[fk.ReferencedTable], sa.TableIndexMap[table])
		}
	}

	var orderedTables []string
	sorted, ok := graph.TopSort(order)
	if !ok {
		// Cannot happen once circular tables are excluded; fall back to node order
		sa.Logger.Warning("Unexpected cycle among non-circular tables, using node order")
		sorted = make([]int, len(sa.Tables))
		for i := range sorted {
			sorted[i] = i
		}
	}
	for _, idx := range sorted {
		table := sa.IndexTableMap[idx]
		if !circularTables[table] {
			orderedTables = append(orderedTables, table)
		}
	}

	var circularTablesList []string
	for table := range circularTables {
		circularTablesList = append(circularTablesList, table)
	}
	sort.Strings(circularTablesList)
	orderedTables = append(orderedTables, circularTablesList...)

	// Move many-to-many tables to the end
	var finalOrderedTables []string
	var manyToManyTablesList []string
	for _, table := range orderedTables {
		if sa.ManyToManyTables[table] {
			manyToManyTablesList = append(manyToManyTablesList, table)
		} else {
			finalOrderedTables = append(finalOrderedTables, table)
		}
	}
	finalOrderedTables = append(finalOrderedTables, manyToManyTablesList...)

	return finalOrderedTables, circularTables
}

// Category returns how a table relates to the rest of the schema
func (sa *SchemaAnalyzer) Category(table string, circularTables map[string]bool) models.TableCategory {
	switch {
	case sa.ManyToManyTables[table]:
		return models.ManyToMany
	case circularTables[table]:
		return models.Circular
	case len(sa.ForeignKeys[table]) > 0:
		return models.Dependent
	default:
		return models.Standalone
	}
}
