package migrate

import (
	"context"
	"fmt"

	"github.com/toolsascode/stackmig/internal/dialect"
	"github.com/toolsascode/stackmig/internal/ops"
	"github.com/toolsascode/stackmig/internal/registry"
	"github.com/toolsascode/stackmig/internal/schema"
)

// VersionTableSchema returns the definition of the version table
func VersionTableSchema(name string) *schema.Table {
	return schema.NewTable(name,
		schema.Col("version_num", schema.String(registry.MaxIDLength)).PK(),
	)
}

// prepareVersionTable creates the version table when needed and returns the
// current revision
func (c *Context) prepareVersionTable(ctx context.Context, exec ops.Executor) (string, error) {
	if c.IsOfflineMode() {
		if c.opts.StartingRevision != "" {
			return c.opts.StartingRevision, nil
		}
		if err := c.createVersionTable(ctx, exec); err != nil {
			return "", err
		}
		return "", nil
	}

	exists, err := c.tableExists(ctx, c.opts.VersionTable)
	if err != nil {
		return "", err
	}
	if !exists {
		if err := c.createVersionTable(ctx, exec); err != nil {
			return "", err
		}
		return "", nil
	}
	return c.readVersion(ctx)
}

func (c *Context) createVersionTable(ctx context.Context, exec ops.Executor) error {
	ddl, err := dialect.CreateTable(c.dialect, VersionTableSchema(c.opts.VersionTable), false)
	if err != nil {
		return err
	}
	if err := exec.Exec(ctx, dialect.Text(ddl)); err != nil {
		return fmt.Errorf("failed to create version table %s: %w", c.opts.VersionTable, err)
	}
	return nil
}

// CurrentRevision returns the revision recorded in the version table, or
// the empty string when nothing has been applied. Offline it returns the
// starting revision.
func (c *Context) CurrentRevision(ctx context.Context) (string, error) {
	if !c.configured {
		return "", fmt.Errorf("migration context is not configured")
	}
	if c.IsOfflineMode() {
		return c.opts.StartingRevision, nil
	}

	exists, err := c.tableExists(ctx, c.opts.VersionTable)
	if err != nil || !exists {
		return "", err
	}
	return c.readVersion(ctx)
}

func (c *Context) tableExists(ctx context.Context, name string) (bool, error) {
	rows, err := c.query(ctx, c.dialect.ListTables())
	if err != nil {
		return false, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var table string
		if err := rows.Scan(&table); err != nil {
			return false, fmt.Errorf("failed to scan table name: %w", err)
		}
		if table == name {
			return true, nil
		}
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("failed to list tables: %w", err)
	}
	return false, nil
}

func (c *Context) readVersion(ctx context.Context) (string, error) {
	stmt := dialect.Text(fmt.Sprintf("SELECT version_num FROM %s", c.dialect.QuoteIdent(c.opts.VersionTable)))
	rows, err := c.query(ctx, stmt)
	if err != nil {
		return "", fmt.Errorf("failed to read version table: %w", err)
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return "", fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("failed to read version table: %w", err)
	}

	switch len(versions) {
	case 0:
		return "", nil
	case 1:
		return versions[0], nil
	default:
		return "", fmt.Errorf("version table %s holds %d rows; expected one", c.opts.VersionTable, len(versions))
	}
}

// stamp records id as the current revision
func (c *Context) stamp(ctx context.Context, exec ops.Executor, previous, id string) error {
	table := c.dialect.QuoteIdent(c.opts.VersionTable)

	if previous == "" {
		stmt := dialect.NewStatement(
			fmt.Sprintf("INSERT INTO %s (version_num) VALUES (:version_num)", table),
			map[string]interface{}{"version_num": id},
		)
		if err := exec.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to stamp revision %s: %w", id, err)
		}
		return nil
	}

	stmt := dialect.NewStatement(
		fmt.Sprintf("UPDATE %s SET version_num = :version_num WHERE %s.version_num = :previous", table, table),
		map[string]interface{}{"version_num": id, "previous": previous},
	)
	if c.IsOfflineMode() {
		if err := exec.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to stamp revision %s: %w", id, err)
		}
		return nil
	}

	res, err := c.exec(ctx, stmt)
	if err != nil {
		return fmt.Errorf("failed to stamp revision %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n != 1 {
		return fmt.Errorf("failed to stamp revision %s: expected to update 1 row, updated %d", id, n)
	}
	return nil
}
