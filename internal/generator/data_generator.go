package generator

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/jaswdr/faker"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/schema-designer/internal/designer"
	"github.com/vitebski/schema-designer/internal/sanitizer"
	"github.com/vitebski/schema-designer/pkg/models"
)

const (
	// MaxTables caps the size of a generated schema
	MaxTables = 40
	// DefaultTables is the table count used when none is given
	DefaultTables = 5

	columnSpacing = 320
	rowSpacing    = 260
	tablesPerRow  = 4
)

var entityNames = []string{
	"users", "orders", "products", "customers", "invoices", "payments",
	"categories", "reviews", "shipments", "suppliers", "employees",
	"departments", "projects", "tasks", "comments", "tags", "addresses",
	"carts", "coupons", "warehouses",
}

var columnNames = []string{
	"name", "email", "title", "description", "price", "quantity", "status",
	"phone", "city", "country", "zip_code", "website", "is_active",
	"birth_date", "opening_time", "updated_at", "uuid", "color", "notes",
	"total", "rating",
}

// DataGenerator generates sample schema graphs with fake table and column names
type DataGenerator struct {
	Faker  faker.Faker
	Logger *logrus.Logger

	nextID int
}

// NewDataGenerator creates a new data generator. A zero seed draws random
// values; any other seed makes the generated schemas reproducible.
func NewDataGenerator(seed int64, logger *logrus.Logger) *DataGenerator {
	f := faker.New()
	if seed != 0 {
		f = faker.NewWithSeed(rand.NewSource(seed))
	}
	return &DataGenerator{
		Faker:  f,
		Logger: logger,
	}
}

// InferType guesses a column type from its name
func InferType(columnName string) models.DataType {
	name := strings.ToLower(columnName)

	switch {
	case name == "id" || strings.HasSuffix(name, "_id"):
		return models.TypeInteger
	case strings.HasPrefix(name, "is_") || strings.HasPrefix(name, "has_"):
		return models.TypeBoolean
	case strings.HasSuffix(name, "_at") || strings.Contains(name, "timestamp"):
		return models.TypeTimestamp
	case strings.Contains(name, "date") || strings.Contains(name, "birthday"):
		return models.TypeDate
	case strings.Contains(name, "time"):
		return models.TypeTime
	case strings.Contains(name, "price") || strings.Contains(name, "total") || strings.Contains(name, "amount"):
		return models.TypeDecimal
	case strings.Contains(name, "rating") || strings.HasPrefix(name, "latitude") || strings.HasPrefix(name, "longitude"):
		return models.TypeFloat
	case strings.Contains(name, "quantity") || strings.HasSuffix(name, "count") || name == "age":
		return models.TypeInteger
	case strings.Contains(name, "description") || strings.Contains(name, "notes") || strings.Contains(name, "summary"):
		return models.TypeText
	default:
		return models.TypeVarchar
	}
}

// Generate builds a schema with the given number of tables. Every table
// after the first references one earlier table, and a color chooser tints
// the first table.
func (dg *DataGenerator) Generate(tables int) (models.Graph, error) {
	if tables <= 0 {
		tables = DefaultTables
	}
	if tables > MaxTables {
		dg.Logger.Warningf("Requested %d tables, limiting to %d", tables, MaxTables)
		tables = MaxTables
	}

	g := models.Graph{Nodes: []models.Node{}, Edges: []models.Edge{}}
	labels := dg.tableNames(tables)
	ids := make([]string, 0, tables)

	var err error
	for i, label := range labels {
		id := fmt.Sprintf("table-%d", dg.nextID+1)
		if g, err = dg.apply(g, designer.AddTable{Label: label, Position: gridPosition(i)}); err != nil {
			return models.Graph{}, err
		}
		ids = append(ids, id)

		for _, column := range dg.columnsFor() {
			if g, err = dg.apply(g, designer.AddColumn{NodeID: id, Column: column}); err != nil {
				return models.Graph{}, err
			}
		}

		if i == 0 {
			continue
		}
		parent := dg.Faker.IntBetween(0, i-1)
		referenced := labels[parent]
		fk := models.Column{
			Name:            singular(referenced) + "_id",
			Type:            models.TypeInteger,
			IsForeignKey:    true,
			ReferencedTable: &referenced,
		}
		if g, err = dg.apply(g, designer.AddColumn{NodeID: id, Column: fk}); err != nil {
			return models.Graph{}, err
		}
		if g, err = dg.apply(g, designer.Connect{Source: id, Target: ids[parent]}); err != nil {
			return models.Graph{}, err
		}
	}

	colorID := fmt.Sprintf("color-%d", dg.nextID+1)
	hex := strings.ToUpper(dg.Faker.Color().Hex())
	if !sanitizer.IsHexColor(hex) {
		hex = sanitizer.DefaultColor
	}
	color := designer.AddColorSource{
		Color:    hex,
		Position: models.Position{X: -columnSpacing, Y: 0},
	}
	if g, err = dg.apply(g, color); err != nil {
		return models.Graph{}, err
	}
	if g, err = dg.apply(g, designer.Connect{Source: colorID, Target: ids[0]}); err != nil {
		return models.Graph{}, err
	}

	dg.Logger.Debugf("Generated schema with %d tables and %d edges", tables, len(g.Edges))
	return g, nil
}

// SchemaName returns a fake name for a generated schema
func (dg *DataGenerator) SchemaName() string {
	word := dg.Faker.Lorem().Word()
	if word != "" {
		word = strings.ToUpper(word[:1]) + word[1:]
	}
	return fmt.Sprintf("%s %s", word, dg.Faker.RandomStringElement([]string{"Store", "CRM", "Inventory", "Blog", "Billing"}))
}

func (dg *DataGenerator) apply(g models.Graph, action designer.Action) (models.Graph, error) {
	next, err := designer.Apply(g, action, dg.newID)
	if err != nil {
		return models.Graph{}, fmt.Errorf("failed to generate schema: %w", err)
	}
	return next, nil
}

func (dg *DataGenerator) newID(prefix string) string {
	dg.nextID++
	return fmt.Sprintf("%s-%d", prefix, dg.nextID)
}

// tableNames picks unique table names, falling back to fake words once
// the known entity names run out
func (dg *DataGenerator) tableNames(n int) []string {
	used := make(map[string]bool)
	names := make([]string, 0, n)

	pool := make([]string, len(entityNames))
	copy(pool, entityNames)
	dg.shuffle(pool)

	for _, name := range pool {
		if len(names) == n {
			break
		}
		used[name] = true
		names = append(names, name)
	}
	for len(names) < n {
		name := strings.ToLower(dg.Faker.Lorem().Word()) + "s"
		if used[name] {
			name = fmt.Sprintf("%s_%d", name, len(names))
		}
		used[name] = true
		names = append(names, name)
	}
	return names
}

// columnsFor picks two to four distinct columns; every table already has id and created_at
func (dg *DataGenerator) columnsFor() []models.Column {
	pool := make([]string, len(columnNames))
	copy(pool, columnNames)
	dg.shuffle(pool)

	count := dg.Faker.IntBetween(2, 4)
	columns := make([]models.Column, 0, count)
	for _, name := range pool[:count] {
		columns = append(columns, models.Column{Name: name, Type: InferType(name)})
	}
	return columns
}

func (dg *DataGenerator) shuffle(values []string) {
	for i := len(values) - 1; i > 0; i-- {
		j := dg.Faker.IntBetween(0, i)
		values[i], values[j] = values[j], values[i]
	}
}

func gridPosition(i int) models.Position {
	return models.Position{
		X: float64((i % tablesPerRow) * columnSpacing),
		Y: float64((i / tablesPerRow) * rowSpacing),
	}
}

func singular(table string) string {
	switch {
	case strings.HasSuffix(table, "ies"):
		return strings.TrimSuffix(table, "ies") + "y"
	case strings.HasSuffix(table, "sses"):
		return strings.TrimSuffix(table, "es")
	case strings.HasSuffix(table, "s"):
		return strings.TrimSuffix(table, "s")
	default:
		return table
	}
}
