package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"

	"github.com/toolsascode/stackmig/internal/dialect"
	"github.com/toolsascode/stackmig/internal/logger"
	"github.com/toolsascode/stackmig/internal/ops"
)

func (c *Context) executor() ops.Executor {
	if c.IsOfflineMode() {
		return ops.ExecutorFunc(c.execOffline)
	}
	return ops.ExecutorFunc(c.execOnline)
}

func (c *Context) execOffline(ctx context.Context, stmt dialect.Statement) error {
	query, _, err := stmt.Compile(c.dialect, c.opts.ParamStyle, c.opts.LiteralBinds)
	if err != nil {
		return err
	}
	return c.out.statement(query)
}

func (c *Context) execOnline(ctx context.Context, stmt dialect.Statement) error {
	_, err := c.exec(ctx, stmt)
	return err
}

func (c *Context) exec(ctx context.Context, stmt dialect.Statement) (sql.Result, error) {
	query, args, err := stmt.Compile(c.dialect, c.dialect.ParamStyle(), false)
	if err != nil {
		return nil, err
	}
	logger.Debug("%s", query)

	if c.tx != nil {
		return c.tx.ExecContext(ctx, query, args...)
	}
	return c.opts.Conn.ExecContext(ctx, query, args...)
}

func (c *Context) query(ctx context.Context, stmt dialect.Statement) (*sql.Rows, error) {
	query, args, err := stmt.Compile(c.dialect, c.dialect.ParamStyle(), false)
	if err != nil {
		return nil, err
	}
	logger.Debug("%s", query)

	if c.tx != nil {
		return c.tx.QueryContext(ctx, query, args...)
	}
	return c.opts.Conn.QueryContext(ctx, query, args...)
}

// scriptWriter writes an offline SQL script
type scriptWriter struct {
	w io.Writer
}

func (s *scriptWriter) statement(text string) error {
	text = strings.TrimRight(strings.TrimSpace(text), ";")
	if _, err := io.WriteString(s.w, text+";\n\n"); err != nil {
		return fmt.Errorf("failed to write SQL output: %w", err)
	}
	return nil
}

func (s *scriptWriter) comment(text string) error {
	if _, err := io.WriteString(s.w, "-- "+text+"\n\n"); err != nil {
		return fmt.Errorf("failed to write SQL output: %w", err)
	}
	return nil
}
