// Package dialect renders schema definitions and statements as SQL for a
// specific database.
package dialect

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/toolsascode/stackmig/internal/dburl"
	"github.com/toolsascode/stackmig/internal/schema"
)

// Dialect renders SQL for one database
type Dialect interface {
	// Name returns the dialect name as used in connection URLs
	Name() string
	// DriverName returns the database/sql driver name
	DriverName() string
	QuoteIdent(name string) string
	QuoteLiteral(value interface{}) (string, error)
	// ColumnType returns the SQL type of a column definition
	ColumnType(c schema.Column) string
	// NowExpr is the expression used for a Now() server default
	NowExpr() string
	// ParamStyle is the placeholder style the driver accepts
	ParamStyle() ParamStyle
	// ListTables selects the names of the user tables
	ListTables() Statement
	// ListColumns selects the column names of one table
	ListColumns(table string) Statement
}

// ForURL returns the dialect of a parsed connection URL
func ForURL(u *dburl.URL) (Dialect, error) {
	return ForName(u.Dialect)
}

// ForName returns a dialect by name
func ForName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case dburl.DialectPostgreSQL, "postgres":
		return PostgreSQL{}, nil
	case dburl.DialectSQLite, "sqlite3":
		return SQLite{}, nil
	default:
		return nil, fmt.Errorf("unsupported dialect: %s", name)
	}
}

// quoteLiteral renders the value types shared by every dialect. ok is false when
// the value needs dialect-specific handling.
func quoteLiteral(value interface{}, quoteString func(string) string) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "NULL", true
	case string:
		return quoteString(v), true
	case []byte:
		return quoteString(string(v)), true
	case int:
		return strconv.Itoa(v), true
	case int8:
		return strconv.FormatInt(int64(v), 10), true
	case int16:
		return strconv.FormatInt(int64(v), 10), true
	case int32:
		return strconv.FormatInt(int64(v), 10), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case uint:
		return strconv.FormatUint(uint64(v), 10), true
	case uint8:
		return strconv.FormatUint(uint64(v), 10), true
	case uint16:
		return strconv.FormatUint(uint64(v), 10), true
	case uint32:
		return strconv.FormatUint(uint64(v), 10), true
	case uint64:
		return strconv.FormatUint(v, 10), true
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32), true
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), true
	case time.Time:
		return quoteString(v.Format("2006-01-02 15:04:05.999999-07:00")), true
	case fmt.Stringer:
		return quoteString(v.String()), true
	default:
		return "", false
	}
}

func columnDefault(d Dialect, c schema.Column) (string, error) {
	if c.ServerDefault == nil {
		return "", nil
	}
	if c.ServerDefault.Now {
		return d.NowExpr(), nil
	}
	return d.QuoteLiteral(c.ServerDefault.Value)
}

// columnDefinition renders `name TYPE [NOT NULL] [DEFAULT x]`
func columnDefinition(d Dialect, c schema.Column) (string, error) {
	var b strings.Builder
	b.WriteString(d.QuoteIdent(c.Name))
	b.WriteString(" ")
	b.WriteString(d.ColumnType(c))
	if !c.Nullable() {
		b.WriteString(" NOT NULL")
	}
	def, err := columnDefault(d, c)
	if err != nil {
		return "", fmt.Errorf("failed to render default of %s: %w", c.Name, err)
	}
	if def != "" {
		b.WriteString(" DEFAULT ")
		b.WriteString(def)
	}
	return b.String(), nil
}

func foreignKeyClause(d Dialect, fk *schema.ForeignKey) string {
	clause := fmt.Sprintf("REFERENCES %s (%s)", d.QuoteIdent(fk.Table), d.QuoteIdent(fk.Column))
	if fk.OnDelete != "" {
		clause += " ON DELETE " + strings.ToUpper(fk.OnDelete)
	}
	return clause
}

func enumCheck(d Dialect, c schema.Column) (string, error) {
	values := make([]string, 0, len(c.Type.Values))
	for _, v := range c.Type.Values {
		lit, err := d.QuoteLiteral(v)
		if err != nil {
			return "", err
		}
		values = append(values, lit)
	}
	return fmt.Sprintf("CHECK (%s IN (%s))", d.QuoteIdent(c.Name), strings.Join(values, ", ")), nil
}

// CreateTable renders CREATE TABLE for t. Column indexes are not included;
// see CreateIndex.
func CreateTable(d Dialect, t *schema.Table, ifNotExists bool) (string, error) {
	var lines []string
	for _, c := range t.Columns {
		def, err := columnDefinition(d, c)
		if err != nil {
			return "", fmt.Errorf("table %s: %w", t.Name, err)
		}
		lines = append(lines, def)
	}

	if pk := t.PrimaryKey(); len(pk) > 0 {
		lines = append(lines, fmt.Sprintf("PRIMARY KEY (%s)", quoteList(d, pk)))
	}
	for _, c := range t.Columns {
		if c.Unique && !c.Index && !c.PrimaryKey {
			lines = append(lines, fmt.Sprintf("UNIQUE (%s)", d.QuoteIdent(c.Name)))
		}
	}
	for _, c := range t.Columns {
		if c.ForeignKey != nil {
			lines = append(lines, fmt.Sprintf("FOREIGN KEY(%s) %s", d.QuoteIdent(c.Name), foreignKeyClause(d, c.ForeignKey)))
		}
	}
	for _, c := range t.Columns {
		if c.Type.Kind == schema.KindEnum {
			check, err := enumCheck(d, c)
			if err != nil {
				return "", fmt.Errorf("table %s: %w", t.Name, err)
			}
			lines = append(lines, check)
		}
	}

	prefix := "CREATE TABLE "
	if ifNotExists {
		prefix += "IF NOT EXISTS "
	}
	return prefix + d.QuoteIdent(t.Name) + " (\n\t" + strings.Join(lines, ",\n\t") + "\n)", nil
}

// CreateIndex renders CREATE INDEX for idx
func CreateIndex(d Dialect, idx schema.Index, ifNotExists bool) string {
	var b strings.Builder
	b.WriteString("CREATE ")
	if idx.Unique {
		b.WriteString("UNIQUE ")
	}
	b.WriteString("INDEX ")
	if ifNotExists {
		b.WriteString("IF NOT EXISTS ")
	}
	fmt.Fprintf(&b, "%s ON %s (%s)", d.QuoteIdent(idx.Name), d.QuoteIdent(idx.Table), d.QuoteIdent(idx.Column))
	return b.String()
}

// DropTable renders DROP TABLE
func DropTable(d Dialect, table string) string {
	return "DROP TABLE " + d.QuoteIdent(table)
}

// DropIndex renders DROP INDEX
func DropIndex(d Dialect, name string) string {
	return "DROP INDEX " + d.QuoteIdent(name)
}

// AddColumn renders ALTER TABLE ... ADD COLUMN with inline constraints
func AddColumn(d Dialect, table string, c schema.Column) (string, error) {
	if c.PrimaryKey {
		return "", fmt.Errorf("cannot add primary key column %s to existing table %s", c.Name, table)
	}
	def, err := columnDefinition(d, c)
	if err != nil {
		return "", fmt.Errorf("table %s: %w", table, err)
	}
	parts := []string{"ALTER TABLE", d.QuoteIdent(table), "ADD COLUMN", def}
	if c.Unique && !c.Index {
		parts = append(parts, "UNIQUE")
	}
	if c.ForeignKey != nil {
		parts = append(parts, foreignKeyClause(d, c.ForeignKey))
	}
	if c.Type.Kind == schema.KindEnum {
		check, err := enumCheck(d, c)
		if err != nil {
			return "", fmt.Errorf("table %s: %w", table, err)
		}
		parts = append(parts, check)
	}
	return strings.Join(parts, " "), nil
}

// DropColumn renders ALTER TABLE ... DROP COLUMN
func DropColumn(d Dialect, table, column string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", d.QuoteIdent(table), d.QuoteIdent(column))
}

func quoteList(d Dialect, names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = d.QuoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}
