// Package ops provides the schema operations revision functions call.
// Operations compile DDL for a dialect and hand each statement to an
// Executor, which either runs it on a connection or writes it to a script.
package ops

import (
	"context"
	"fmt"
	"sort"

	"github.com/toolsascode/stackmig/internal/dialect"
	"github.com/toolsascode/stackmig/internal/schema"
)

// Executor runs or records one statement
type Executor interface {
	Exec(ctx context.Context, stmt dialect.Statement) error
}

// ExecutorFunc adapts a function to Executor
type ExecutorFunc func(ctx context.Context, stmt dialect.Statement) error

// Exec calls f
func (f ExecutorFunc) Exec(ctx context.Context, stmt dialect.Statement) error {
	return f(ctx, stmt)
}

// Operations emits schema changes through an Executor
type Operations struct {
	dialect dialect.Dialect
	exec    Executor
	touched map[string]bool
}

// New returns operations bound to d and exec
func New(d dialect.Dialect, exec Executor) *Operations {
	return &Operations{
		dialect: d,
		exec:    exec,
		touched: make(map[string]bool),
	}
}

// Dialect returns the dialect statements are compiled for
func (o *Operations) Dialect() dialect.Dialect {
	return o.dialect
}

// Tables returns the sorted names of the tables operated on
func (o *Operations) Tables() []string {
	names := make([]string, 0, len(o.touched))
	for name := range o.touched {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (o *Operations) run(ctx context.Context, table string, sql string) error {
	if table != "" {
		o.touched[table] = true
	}
	return o.exec.Exec(ctx, dialect.Text(sql))
}

// CreateTable creates a table and the indexes its columns declare
func (o *Operations) CreateTable(ctx context.Context, t *schema.Table) error {
	if err := t.Validate(); err != nil {
		return err
	}

	sql, err := dialect.CreateTable(o.dialect, t, false)
	if err != nil {
		return err
	}
	if err := o.run(ctx, t.Name, sql); err != nil {
		return fmt.Errorf("failed to create table %s: %w", t.Name, err)
	}

	for _, idx := range t.Indexes() {
		if err := o.CreateIndex(ctx, idx); err != nil {
			return err
		}
	}
	return nil
}

// DropTable drops a table
func (o *Operations) DropTable(ctx context.Context, name string) error {
	if err := o.run(ctx, name, dialect.DropTable(o.dialect, name)); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", name, err)
	}
	return nil
}

// AddColumn adds a column, plus its index when the column declares one
func (o *Operations) AddColumn(ctx context.Context, table string, c schema.Column) error {
	if err := c.Type.Validate(); err != nil {
		return fmt.Errorf("column %s.%s: %w", table, c.Name, err)
	}

	sql, err := dialect.AddColumn(o.dialect, table, c)
	if err != nil {
		return err
	}
	if err := o.run(ctx, table, sql); err != nil {
		return fmt.Errorf("failed to add column %s.%s: %w", table, c.Name, err)
	}

	if c.Index {
		return o.CreateIndex(ctx, schema.Index{
			Name:   schema.IndexName(table, c.Name),
			Table:  table,
			Column: c.Name,
			Unique: c.Unique,
		})
	}
	return nil
}

// DropColumn drops a column
func (o *Operations) DropColumn(ctx context.Context, table, column string) error {
	if err := o.run(ctx, table, dialect.DropColumn(o.dialect, table, column)); err != nil {
		return fmt.Errorf("failed to drop column %s.%s: %w", table, column, err)
	}
	return nil
}

// CreateIndex creates an index
func (o *Operations) CreateIndex(ctx context.Context, idx schema.Index) error {
	if err := o.run(ctx, idx.Table, dialect.CreateIndex(o.dialect, idx, false)); err != nil {
		return fmt.Errorf("failed to create index %s: %w", idx.Name, err)
	}
	return nil
}

// DropIndex drops an index of table
func (o *Operations) DropIndex(ctx context.Context, name, table string) error {
	if err := o.run(ctx, table, dialect.DropIndex(o.dialect, name)); err != nil {
		return fmt.Errorf("failed to drop index %s: %w", name, err)
	}
	return nil
}

// Execute runs arbitrary SQL with :name parameters
func (o *Operations) Execute(ctx context.Context, sql string, params map[string]interface{}) error {
	if err := o.exec.Exec(ctx, dialect.NewStatement(sql, params)); err != nil {
		return fmt.Errorf("failed to execute statement: %w", err)
	}
	return nil
}
