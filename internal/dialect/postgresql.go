package dialect

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/toolsascode/stackmig/internal/dburl"
	"github.com/toolsascode/stackmig/internal/schema"
)

// PostgreSQL renders SQL for PostgreSQL. Connections go through the pgx
// database/sql driver.
type PostgreSQL struct{}

func (PostgreSQL) Name() string       { return dburl.DialectPostgreSQL }
func (PostgreSQL) DriverName() string { return "pgx" }

// QuoteIdent quotes an identifier to prevent SQL injection
func (PostgreSQL) QuoteIdent(name string) string {
	return pq.QuoteIdentifier(name)
}

func (p PostgreSQL) QuoteLiteral(value interface{}) (string, error) {
	if lit, ok := quoteLiteral(value, pq.QuoteLiteral); ok {
		return lit, nil
	}
	switch v := value.(type) {
	case bool:
		if v {
			return "true", nil
		}
		return "false", nil
	case []string:
		items := make([]string, len(v))
		for i, s := range v {
			items[i] = pq.QuoteLiteral(s)
		}
		if len(items) == 0 {
			return "'{}'", nil
		}
		return "ARRAY[" + strings.Join(items, ", ") + "]", nil
	default:
		return "", fmt.Errorf("cannot render %T as a literal", value)
	}
}

func (p PostgreSQL) ColumnType(c schema.Column) string {
	if c.Type.Kind == schema.KindInteger && c.PrimaryKey {
		return "SERIAL"
	}
	return p.typeName(c.Type)
}

func (p PostgreSQL) typeName(t schema.Type) string {
	switch t.Kind {
	case schema.KindInteger:
		return "INTEGER"
	case schema.KindString:
		if t.Length > 0 {
			return fmt.Sprintf("VARCHAR(%d)", t.Length)
		}
		return "VARCHAR"
	case schema.KindText:
		return "TEXT"
	case schema.KindBoolean:
		return "BOOLEAN"
	case schema.KindDateTime:
		if t.Timezone {
			return "TIMESTAMP WITH TIME ZONE"
		}
		return "TIMESTAMP WITHOUT TIME ZONE"
	case schema.KindEnum:
		return fmt.Sprintf("VARCHAR(%d)", t.EnumLength())
	case schema.KindArray:
		if t.Elem == nil {
			return "TEXT[]"
		}
		return p.typeName(*t.Elem) + "[]"
	default:
		return "TEXT"
	}
}

func (PostgreSQL) NowExpr() string        { return "now()" }
func (PostgreSQL) ParamStyle() ParamStyle { return Numeric }

func (PostgreSQL) ListTables() Statement {
	return NewStatement(`SELECT table_name FROM information_schema.tables
WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'
ORDER BY table_name`, nil)
}

func (PostgreSQL) ListColumns(table string) Statement {
	return NewStatement(`SELECT column_name FROM information_schema.columns
WHERE table_schema = current_schema() AND table_name = :table_name
ORDER BY ordinal_position`, map[string]interface{}{"table_name": table})
}
