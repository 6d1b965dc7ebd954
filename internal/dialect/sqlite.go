package dialect

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/toolsascode/stackmig/internal/dburl"
	"github.com/toolsascode/stackmig/internal/schema"
)

// SQLite renders SQL for SQLite through modernc.org/sqlite
type SQLite struct{}

func (SQLite) Name() string       { return dburl.DialectSQLite }
func (SQLite) DriverName() string { return "sqlite" }

func (SQLite) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteSQLiteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func (SQLite) QuoteLiteral(value interface{}) (string, error) {
	if lit, ok := quoteLiteral(value, quoteSQLiteString); ok {
		return lit, nil
	}
	switch v := value.(type) {
	case bool:
		if v {
			return "1", nil
		}
		return "0", nil
	case []string:
		// arrays are stored as JSON text
		encoded, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to encode array literal: %w", err)
		}
		return quoteSQLiteString(string(encoded)), nil
	default:
		return "", fmt.Errorf("cannot render %T as a literal", value)
	}
}

func (SQLite) ColumnType(c schema.Column) string {
	switch c.Type.Kind {
	case schema.KindInteger:
		return "INTEGER"
	case schema.KindString:
		if c.Type.Length > 0 {
			return fmt.Sprintf("VARCHAR(%d)", c.Type.Length)
		}
		return "VARCHAR"
	case schema.KindBoolean:
		return "BOOLEAN"
	case schema.KindDateTime:
		return "DATETIME"
	case schema.KindEnum:
		return fmt.Sprintf("VARCHAR(%d)", c.Type.EnumLength())
	default:
		return "TEXT"
	}
}

func (SQLite) NowExpr() string        { return "(CURRENT_TIMESTAMP)" }
func (SQLite) ParamStyle() ParamStyle { return Qmark }

func (SQLite) ListTables() Statement {
	return NewStatement(`SELECT name FROM sqlite_master
WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
ORDER BY name`, nil)
}

func (SQLite) ListColumns(table string) Statement {
	return NewStatement(`SELECT name FROM pragma_table_info(:table_name) ORDER BY cid`,
		map[string]interface{}{"table_name": table})
}
