package autogen

import (
	"bytes"
	"fmt"
	"go/format"
	"io"
	"regexp"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/toolsascode/stackmig/internal/schema"
)

// MigrationsImportPath is imported by generated revision files
const MigrationsImportPath = "github.com/toolsascode/stackmig/migrations"

// GoFileTemplate renders a revision file
const GoFileTemplate = `// {{.Message}}
//
// Revision ID: {{.ID}}
// Revises: {{.DownRevisionLabel}}
// Create Date: {{.CreateDate}}

package {{.PackageName}}

import (
	"context"

	"{{.ImportPath}}"
)

func init() {
	migrations.Register(&migrations.Revision{
		ID:           {{printf "%q" .ID}},
		DownRevision: {{printf "%q" .DownRevision}},
		Message:      {{printf "%q" .Message}},
		Upgrade:      {{.FuncName}},
	})
}

func {{.FuncName}}(ctx context.Context, op *migrations.Operations) error {
{{- if not .Steps}}
	// no schema changes
{{- end}}
{{- range .Steps}}
	if err := {{.}}; err != nil {
		return err
	}
{{- end}}
	return nil
}
`

var revisionTemplate = template.Must(template.New("revision").Parse(GoFileTemplate))

// RevisionFile describes a revision file to render
type RevisionFile struct {
	ID           string
	DownRevision string
	Message      string
	PackageName  string
	CreatedAt    time.Time
	// Diff supplies the upgrade steps; nil renders an empty revision
	Diff *Diff
}

// NewRevisionID returns a 14-digit timestamp ID
func NewRevisionID(now time.Time) string {
	return now.UTC().Format("20060102150405")
}

// FileName returns <id>_<slug>.go
func (f RevisionFile) FileName() string {
	return fmt.Sprintf("%s_%s.go", f.ID, Slug(f.Message))
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slug turns a message into a file name fragment
func Slug(message string) string {
	slug := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(message), "_"), "_")
	if len(slug) > 40 {
		slug = strings.TrimRight(slug[:40], "_")
	}
	if slug == "" {
		slug = "revision"
	}
	return slug
}

// RenderRevision writes a gofmt'ed revision file
func RenderRevision(w io.Writer, f RevisionFile) error {
	if f.ID == "" {
		return fmt.Errorf("revision ID is required")
	}
	if f.PackageName == "" {
		f.PackageName = "versions"
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	f.Message = strings.Join(strings.Fields(f.Message), " ")

	var steps []string
	if f.Diff != nil {
		var err error
		if steps, err = upgradeSteps(f.Diff); err != nil {
			return err
		}
	}

	downLabel := f.DownRevision
	if downLabel == "" {
		downLabel = "<base>"
	}

	var buf bytes.Buffer
	err := revisionTemplate.Execute(&buf, struct {
		RevisionFile
		DownRevisionLabel string
		CreateDate        string
		ImportPath        string
		FuncName          string
		Steps             []string
	}{
		RevisionFile:      f,
		DownRevisionLabel: downLabel,
		CreateDate:        f.CreatedAt.Format("2006-01-02 15:04:05.000000"),
		ImportPath:        MigrationsImportPath,
		FuncName:          "upgrade" + sanitizeIdent(f.ID),
		Steps:             steps,
	})
	if err != nil {
		return fmt.Errorf("failed to render revision: %w", err)
	}

	source, err := format.Source(buf.Bytes())
	if err != nil {
		return fmt.Errorf("failed to format revision: %w", err)
	}
	if _, err := w.Write(source); err != nil {
		return fmt.Errorf("failed to write revision: %w", err)
	}
	return nil
}

func upgradeSteps(d *Diff) ([]string, error) {
	var steps []string
	for _, t := range d.AddTables {
		columns := make([]string, 0, len(t.Columns))
		for _, c := range t.Columns {
			expr, err := columnExpr(c)
			if err != nil {
				return nil, fmt.Errorf("table %s: %w", t.Name, err)
			}
			columns = append(columns, "\n\t\t"+expr+",")
		}
		steps = append(steps, fmt.Sprintf("op.CreateTable(ctx, migrations.NewTable(%q,%s\n\t))", t.Name, strings.Join(columns, "")))
	}
	for _, c := range d.AddColumns {
		expr, err := columnExpr(c.Column)
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", c.Table, err)
		}
		steps = append(steps, fmt.Sprintf("op.AddColumn(ctx, %q, %s)", c.Table, expr))
	}
	for _, c := range d.DropColumns {
		steps = append(steps, fmt.Sprintf("op.DropColumn(ctx, %q, %q)", c.Table, c.Column.Name))
	}
	for _, t := range d.DropTables {
		steps = append(steps, fmt.Sprintf("op.DropTable(ctx, %q)", t))
	}
	return steps, nil
}

// columnExpr renders a column as a Go expression against the migrations package
func columnExpr(c schema.Column) (string, error) {
	typ, err := typeExpr(c.Type)
	if err != nil {
		return "", fmt.Errorf("column %s: %w", c.Name, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "migrations.Col(%q, %s)", c.Name, typ)
	if c.PrimaryKey {
		b.WriteString(".PK()")
	} else if c.NotNull {
		b.WriteString(".Required()")
	}
	if c.Unique {
		b.WriteString(".Uniq()")
	}
	if c.Index {
		b.WriteString(".Indexed()")
	}
	if c.ServerDefault != nil {
		if c.ServerDefault.Now {
			b.WriteString(".Default(migrations.Now())")
		} else {
			lit, err := goLiteral(c.ServerDefault.Value)
			if err != nil {
				return "", fmt.Errorf("column %s default: %w", c.Name, err)
			}
			fmt.Fprintf(&b, ".Default(migrations.DefaultValue(%s))", lit)
		}
	}
	if fk := c.ForeignKey; fk != nil {
		fmt.Fprintf(&b, ".References(%q, %q, %q)", fk.Table, fk.Column, fk.OnDelete)
	}
	return b.String(), nil
}

func typeExpr(t schema.Type) (string, error) {
	switch t.Kind {
	case schema.KindInteger:
		return "migrations.Integer()", nil
	case schema.KindString:
		return fmt.Sprintf("migrations.String(%d)", t.Length), nil
	case schema.KindText:
		return "migrations.Text()", nil
	case schema.KindBoolean:
		return "migrations.Boolean()", nil
	case schema.KindDateTime:
		return fmt.Sprintf("migrations.DateTime(%t)", t.Timezone), nil
	case schema.KindEnum:
		args := []string{strconv.Quote(t.EnumName)}
		for _, v := range t.Values {
			args = append(args, strconv.Quote(v))
		}
		return fmt.Sprintf("migrations.Enum(%s)", strings.Join(args, ", ")), nil
	case schema.KindArray:
		if t.Elem == nil {
			return "", fmt.Errorf("array without element type")
		}
		elem, err := typeExpr(*t.Elem)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("migrations.Array(%s)", elem), nil
	default:
		return "", fmt.Errorf("unknown column type kind: %q", t.Kind)
	}
}

func goLiteral(v interface{}) (string, error) {
	switch val := v.(type) {
	case string:
		return strconv.Quote(val), nil
	case bool:
		return strconv.FormatBool(val), nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return fmt.Sprintf("int64(%d)", val), nil
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64), nil
	default:
		return "", fmt.Errorf("cannot render %T as Go source", v)
	}
}

var nonIdent = regexp.MustCompile(`[^a-zA-Z0-9_]`)

func sanitizeIdent(s string) string {
	return nonIdent.ReplaceAllString(s, "_")
}
