// Package autogen compares target metadata against a live database and
// renders revision files for the differences.
package autogen

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/toolsascode/stackmig/internal/dialect"
	"github.com/toolsascode/stackmig/internal/schema"
)

// Queryer runs read queries. *sql.Conn, *sql.DB and *sql.Tx satisfy it.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// ColumnChange names a column of a table
type ColumnChange struct {
	Table  string
	Column schema.Column
}

// Diff is the set of changes that bring a database to the metadata
type Diff struct {
	AddTables   []*schema.Table
	DropTables  []string
	AddColumns  []ColumnChange
	DropColumns []ColumnChange
}

// Empty reports whether the database already matches
func (d *Diff) Empty() bool {
	return len(d.AddTables) == 0 && len(d.DropTables) == 0 && len(d.AddColumns) == 0 && len(d.DropColumns) == 0
}

// Summary describes each change on one line
func (d *Diff) Summary() []string {
	var lines []string
	for _, t := range d.AddTables {
		lines = append(lines, fmt.Sprintf("Detected added table '%s'", t.Name))
	}
	for _, c := range d.AddColumns {
		lines = append(lines, fmt.Sprintf("Detected added column '%s.%s'", c.Table, c.Column.Name))
	}
	for _, c := range d.DropColumns {
		lines = append(lines, fmt.Sprintf("Detected removed column '%s.%s'", c.Table, c.Column.Name))
	}
	for _, t := range d.DropTables {
		lines = append(lines, fmt.Sprintf("Detected removed table '%s'", t))
	}
	return lines
}

// Compare reflects the database's tables and columns and diffs them against
// md. The version table is ignored. Column types are not compared.
func Compare(ctx context.Context, q Queryer, d dialect.Dialect, md *schema.MetaData, versionTable string) (*Diff, error) {
	existing, err := queryNames(ctx, q, d, d.ListTables())
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	existingSet := make(map[string]bool, len(existing))
	for _, name := range existing {
		existingSet[name] = true
	}

	sorted, err := md.SortedTables()
	if err != nil {
		return nil, err
	}

	diff := &Diff{}
	for _, t := range sorted {
		if !existingSet[t.Name] {
			diff.AddTables = append(diff.AddTables, t)
			continue
		}

		columns, err := queryNames(ctx, q, d, d.ListColumns(t.Name))
		if err != nil {
			return nil, fmt.Errorf("failed to list columns of %s: %w", t.Name, err)
		}
		columnSet := make(map[string]bool, len(columns))
		for _, name := range columns {
			columnSet[name] = true
		}

		for _, c := range t.Columns {
			if !columnSet[c.Name] {
				diff.AddColumns = append(diff.AddColumns, ColumnChange{Table: t.Name, Column: c})
			}
		}
		for _, name := range columns {
			if _, ok := t.Column(name); !ok {
				diff.DropColumns = append(diff.DropColumns, ColumnChange{Table: t.Name, Column: schema.Column{Name: name}})
			}
		}
	}

	for _, name := range existing {
		if name == versionTable || md.Has(name) {
			continue
		}
		diff.DropTables = append(diff.DropTables, name)
	}
	sort.Strings(diff.DropTables)

	return diff, nil
}

func queryNames(ctx context.Context, q Queryer, d dialect.Dialect, stmt dialect.Statement) ([]string, error) {
	query, args, err := stmt.Compile(d, d.ParamStyle(), false)
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
