// Package schema describes database tables independently of any dialect. A
// MetaData value is the target a migration run compares and migrates towards.
package schema

import (
	"fmt"
	"regexp"

	"github.com/toolsascode/stackmig/internal/depgraph"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Default is a server-side column default
type Default struct {
	Now   bool        `yaml:"now,omitempty" json:"now,omitempty"`
	Value interface{} `yaml:"value,omitempty" json:"value,omitempty"`
}

// Now returns a default of the current timestamp
func Now() *Default { return &Default{Now: true} }

// DefaultValue returns a constant default
func DefaultValue(v interface{}) *Default { return &Default{Value: v} }

// ForeignKey references a column of another table
type ForeignKey struct {
	Table    string `yaml:"table" json:"table"`
	Column   string `yaml:"column" json:"column"`
	OnDelete string `yaml:"on_delete,omitempty" json:"on_delete,omitempty"`
}

// Column describes one table column
type Column struct {
	Name          string      `yaml:"name" json:"name"`
	Type          Type        `yaml:"type" json:"type"`
	PrimaryKey    bool        `yaml:"primary_key,omitempty" json:"primary_key,omitempty"`
	NotNull       bool        `yaml:"not_null,omitempty" json:"not_null,omitempty"`
	Unique        bool        `yaml:"unique,omitempty" json:"unique,omitempty"`
	Index         bool        `yaml:"index,omitempty" json:"index,omitempty"`
	ServerDefault *Default    `yaml:"server_default,omitempty" json:"server_default,omitempty"`
	ForeignKey    *ForeignKey `yaml:"foreign_key,omitempty" json:"foreign_key,omitempty"`
}

// Col starts a nullable column definition
func Col(name string, typ Type) Column {
	return Column{Name: name, Type: typ}
}

// PK marks the column as the primary key
func (c Column) PK() Column {
	c.PrimaryKey = true
	c.NotNull = true
	return c
}

// Required marks the column NOT NULL
func (c Column) Required() Column {
	c.NotNull = true
	return c
}

// Uniq adds a unique constraint
func (c Column) Uniq() Column {
	c.Unique = true
	return c
}

// Indexed adds an index named ix_<table>_<column>
func (c Column) Indexed() Column {
	c.Index = true
	return c
}

// Default sets the server default
func (c Column) Default(d *Default) Column {
	c.ServerDefault = d
	return c
}

// References adds a foreign key to table.column
func (c Column) References(table, column, onDelete string) Column {
	c.ForeignKey = &ForeignKey{Table: table, Column: column, OnDelete: onDelete}
	return c
}

// Nullable reports whether the column accepts NULL
func (c Column) Nullable() bool {
	return !c.NotNull && !c.PrimaryKey
}

// Index is a single-column index derived from a column definition
type Index struct {
	Name   string
	Table  string
	Column string
	Unique bool
}

// IndexName returns the conventional index name for a column
func IndexName(table, column string) string {
	return fmt.Sprintf("ix_%s_%s", table, column)
}

// Table describes one table
type Table struct {
	Name    string   `yaml:"name" json:"name"`
	Columns []Column `yaml:"columns" json:"columns"`
}

// NewTable builds a table from columns
func NewTable(name string, columns ...Column) *Table {
	return &Table{Name: name, Columns: columns}
}

// Column returns the column with the given name
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// PrimaryKey returns the primary key column names
func (t *Table) PrimaryKey() []string {
	var pk []string
	for _, c := range t.Columns {
		if c.PrimaryKey {
			pk = append(pk, c.Name)
		}
	}
	return pk
}

// Indexes returns the indexes declared through Column.Index. A column that
// is both indexed and unique gets a unique index instead of a constraint.
func (t *Table) Indexes() []Index {
	var indexes []Index
	for _, c := range t.Columns {
		if !c.Index {
			continue
		}
		indexes = append(indexes, Index{
			Name:   IndexName(t.Name, c.Name),
			Table:  t.Name,
			Column: c.Name,
			Unique: c.Unique,
		})
	}
	return indexes
}

// Dependencies returns the other tables this table references
func (t *Table) Dependencies() []string {
	seen := make(map[string]bool)
	var deps []string
	for _, c := range t.Columns {
		if c.ForeignKey == nil || c.ForeignKey.Table == t.Name || seen[c.ForeignKey.Table] {
			continue
		}
		seen[c.ForeignKey.Table] = true
		deps = append(deps, c.ForeignKey.Table)
	}
	return deps
}

// Validate checks names, types and duplicate columns
func (t *Table) Validate() error {
	if !identPattern.MatchString(t.Name) {
		return fmt.Errorf("invalid table name: %q", t.Name)
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("table %s has no columns", t.Name)
	}
	seen := make(map[string]bool)
	for _, c := range t.Columns {
		if !identPattern.MatchString(c.Name) {
			return fmt.Errorf("invalid column name %q in table %s", c.Name, t.Name)
		}
		if seen[c.Name] {
			return fmt.Errorf("duplicate column %s in table %s", c.Name, t.Name)
		}
		seen[c.Name] = true
		if err := c.Type.Validate(); err != nil {
			return fmt.Errorf("column %s.%s: %w", t.Name, c.Name, err)
		}
	}
	if len(t.PrimaryKey()) > 1 {
		return fmt.Errorf("table %s declares more than one primary key column", t.Name)
	}
	return nil
}

// MetaData is a collection of tables
type MetaData struct {
	tables []*Table
	byName map[string]*Table
}

// NewMetaData returns an empty collection
func NewMetaData() *MetaData {
	return &MetaData{byName: make(map[string]*Table)}
}

// Add registers a table. Invalid tables and duplicate names are rejected.
func (m *MetaData) Add(t *Table) error {
	if t == nil {
		return fmt.Errorf("table cannot be nil")
	}
	if err := t.Validate(); err != nil {
		return err
	}
	if _, exists := m.byName[t.Name]; exists {
		return fmt.Errorf("table %s already defined", t.Name)
	}
	m.tables = append(m.tables, t)
	m.byName[t.Name] = t
	return nil
}

// Table returns the named table
func (m *MetaData) Table(name string) (*Table, bool) {
	t, ok := m.byName[name]
	return t, ok
}

// Has reports whether the named table is part of the metadata
func (m *MetaData) Has(name string) bool {
	_, ok := m.byName[name]
	return ok
}

// Tables returns tables in definition order
func (m *MetaData) Tables() []*Table {
	return append([]*Table(nil), m.tables...)
}

// TableNames returns table names in definition order
func (m *MetaData) TableNames() []string {
	names := make([]string, 0, len(m.tables))
	for _, t := range m.tables {
		names = append(names, t.Name)
	}
	return names
}

// SortedTables returns the tables ordered so every table follows the tables
// its foreign keys reference
func (m *MetaData) SortedTables() ([]*Table, error) {
	graph := depgraph.New()
	for _, t := range m.tables {
		graph.AddNode(t.Name, t.Name)
	}
	for _, t := range m.tables {
		for _, dep := range t.Dependencies() {
			graph.AddEdge(t.Name, dep)
		}
	}

	order, err := graph.TopologicalSort()
	if err != nil {
		return nil, fmt.Errorf("failed to order tables: %w", err)
	}

	sorted := make([]*Table, 0, len(order))
	for _, name := range order {
		sorted = append(sorted, m.byName[name])
	}
	return sorted, nil
}

// Validate checks that every foreign key targets a known table and column
func (m *MetaData) Validate() error {
	for _, t := range m.tables {
		for _, c := range t.Columns {
			if c.ForeignKey == nil {
				continue
			}
			target, ok := m.byName[c.ForeignKey.Table]
			if !ok {
				return fmt.Errorf("foreign key %s.%s references unknown table %s", t.Name, c.Name, c.ForeignKey.Table)
			}
			if _, ok := target.Column(c.ForeignKey.Column); !ok {
				return fmt.Errorf("foreign key %s.%s references unknown column %s.%s", t.Name, c.Name, c.ForeignKey.Table, c.ForeignKey.Column)
			}
		}
	}
	return nil
}

// Description is a serializable view of the metadata
type Description struct {
	Tables []*Table `yaml:"tables" json:"tables"`
}

// Describe returns the metadata in definition order
func (m *MetaData) Describe() Description {
	return Description{Tables: m.Tables()}
}
