package dialect

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/toolsascode/stackmig/internal/schema"
)

func teamsTable() *schema.Table {
	return schema.NewTable("teams",
		schema.Col("id", schema.Integer()).PK().Indexed(),
		schema.Col("name", schema.String(0)).Required(),
		schema.Col("plan_type", schema.Enum("teamplantype", "STANDARD")).Required(),
		schema.Col("created_at", schema.DateTime(true)).Required().Default(schema.Now()),
	)
}

func TestCreateTable_PostgreSQL(t *testing.T) {
	sql, err := CreateTable(PostgreSQL{}, teamsTable(), false)
	if err != nil {
		t.Fatalf("CreateTable() error = %v", err)
	}

	want := `CREATE TABLE "teams" (
	"id" SERIAL NOT NULL,
	"name" VARCHAR NOT NULL,
	"plan_type" VARCHAR(8) NOT NULL,
	"created_at" TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now(),
	PRIMARY KEY ("id"),
	CHECK ("plan_type" IN ('STANDARD'))
)`
	if sql != want {
		t.Errorf("CreateTable() =\n%s\nwant\n%s", sql, want)
	}
}

func TestCreateTable_SQLiteIfNotExists(t *testing.T) {
	table := schema.NewTable("projects",
		schema.Col("id", schema.Integer()).PK(),
		schema.Col("title", schema.String(0)).Required().Uniq(),
		schema.Col("team_id", schema.Integer()).Required().References("teams", "id", "cascade"),
	)

	sql, err := CreateTable(SQLite{}, table, true)
	if err != nil {
		t.Fatalf("CreateTable() error = %v", err)
	}

	for _, fragment := range []string{
		`CREATE TABLE IF NOT EXISTS "projects" (`,
		`"id" INTEGER NOT NULL`,
		`UNIQUE ("title")`,
		`FOREIGN KEY("team_id") REFERENCES "teams" ("id") ON DELETE CASCADE`,
	} {
		if !strings.Contains(sql, fragment) {
			t.Errorf("CreateTable() missing %q in\n%s", fragment, sql)
		}
	}
}

func TestCreateIndex(t *testing.T) {
	idx := schema.Index{Name: "ix_users_username", Table: "users", Column: "username", Unique: true}

	got := CreateIndex(PostgreSQL{}, idx, false)
	want := `CREATE UNIQUE INDEX "ix_users_username" ON "users" ("username")`
	if got != want {
		t.Errorf("CreateIndex() = %s, want %s", got, want)
	}

	got = CreateIndex(SQLite{}, schema.Index{Name: "ix_users_id", Table: "users", Column: "id"}, true)
	want = `CREATE INDEX IF NOT EXISTS "ix_users_id" ON "users" ("id")`
	if got != want {
		t.Errorf("CreateIndex() = %s, want %s", got, want)
	}
}

func TestAddColumn(t *testing.T) {
	tests := []struct {
		name    string
		d       Dialect
		column  schema.Column
		want    string
		wantErr bool
	}{
		{
			name:   "postgres array",
			d:      PostgreSQL{},
			column: schema.Col("images", schema.Array(schema.String(0))),
			want:   `ALTER TABLE "messages" ADD COLUMN "images" VARCHAR[]`,
		},
		{
			name:   "sqlite array",
			d:      SQLite{},
			column: schema.Col("images", schema.Array(schema.String(0))),
			want:   `ALTER TABLE "messages" ADD COLUMN "images" TEXT`,
		},
		{
			name:   "foreign key",
			d:      PostgreSQL{},
			column: schema.Col("chat_id", schema.Integer()).References("chats", "id", "CASCADE"),
			want:   `ALTER TABLE "messages" ADD COLUMN "chat_id" INTEGER REFERENCES "chats" ("id") ON DELETE CASCADE`,
		},
		{
			name:    "primary key rejected",
			d:       SQLite{},
			column:  schema.Col("id", schema.Integer()).PK(),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AddColumn(tt.d, "messages", tt.column)
			if (err != nil) != tt.wantErr {
				t.Fatalf("AddColumn() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("AddColumn() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDropStatements(t *testing.T) {
	d := PostgreSQL{}
	if got := DropTable(d, "users"); got != `DROP TABLE "users"` {
		t.Errorf("DropTable() = %s", got)
	}
	if got := DropIndex(d, "ix_users_id"); got != `DROP INDEX "ix_users_id"` {
		t.Errorf("DropIndex() = %s", got)
	}
	if got := DropColumn(d, "messages", "images"); got != `ALTER TABLE "messages" DROP COLUMN "images"` {
		t.Errorf("DropColumn() = %s", got)
	}
}

func TestQuoteLiteral(t *testing.T) {
	ts := time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name  string
		d     Dialect
		value interface{}
		want  string
	}{
		{name: "pg string", d: PostgreSQL{}, value: "it's", want: `'it''s'`},
		{name: "pg bool", d: PostgreSQL{}, value: true, want: "true"},
		{name: "pg null", d: PostgreSQL{}, value: nil, want: "NULL"},
		{name: "pg array", d: PostgreSQL{}, value: []string{"a", "b"}, want: "ARRAY['a', 'b']"},
		{name: "pg time", d: PostgreSQL{}, value: ts, want: "'2025-01-15 10:30:00+00:00'"},
		{name: "sqlite bool", d: SQLite{}, value: false, want: "0"},
		{name: "sqlite int", d: SQLite{}, value: int64(42), want: "42"},
		{name: "sqlite array", d: SQLite{}, value: []string{"x"}, want: `'["x"]'`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.d.QuoteLiteral(tt.value)
			if err != nil {
				t.Fatalf("QuoteLiteral() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("QuoteLiteral() = %s, want %s", got, tt.want)
			}
		})
	}

	if _, err := (PostgreSQL{}).QuoteLiteral(struct{}{}); err == nil {
		t.Error("expected error for unsupported literal type")
	}
}

func TestForName(t *testing.T) {
	for _, name := range []string{"postgresql", "postgres", "sqlite"} {
		if _, err := ForName(name); err != nil {
			t.Errorf("ForName(%s) error = %v", name, err)
		}
	}
	if _, err := ForName("oracle"); err == nil {
		t.Error("expected error for unknown dialect")
	}
}

func TestStatement_Compile(t *testing.T) {
	stmt := NewStatement(
		"UPDATE stackmig_version SET version_num = :new WHERE version_num = :old AND note <> ':skip' AND x::text = :new",
		map[string]interface{}{"new": "20250201000000", "old": "20250115000000"},
	)

	tests := []struct {
		name     string
		d        Dialect
		style    ParamStyle
		literal  bool
		wantSQL  string
		wantArgs []interface{}
	}{
		{
			name:    "literal",
			d:       PostgreSQL{},
			style:   Named,
			literal: true,
			wantSQL: "UPDATE stackmig_version SET version_num = '20250201000000' WHERE version_num = '20250115000000' AND note <> ':skip' AND x::text = '20250201000000'",
		},
		{
			name:     "numeric",
			d:        PostgreSQL{},
			style:    Numeric,
			wantSQL:  "UPDATE stackmig_version SET version_num = $1 WHERE version_num = $2 AND note <> ':skip' AND x::text = $1",
			wantArgs: []interface{}{"20250201000000", "20250115000000"},
		},
		{
			name:     "qmark",
			d:        SQLite{},
			style:    Qmark,
			wantSQL:  "UPDATE stackmig_version SET version_num = ? WHERE version_num = ? AND note <> ':skip' AND x::text = ?",
			wantArgs: []interface{}{"20250201000000", "20250115000000", "20250201000000"},
		},
		{
			name:     "named",
			d:        SQLite{},
			style:    Named,
			wantSQL:  stmt.SQL,
			wantArgs: []interface{}{"20250201000000", "20250115000000"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := stmt.Compile(tt.d, tt.style, tt.literal)
			if err != nil {
				t.Fatalf("Compile() error = %v", err)
			}
			if sql != tt.wantSQL {
				t.Errorf("Compile() sql =\n%s\nwant\n%s", sql, tt.wantSQL)
			}
			if !reflect.DeepEqual(args, tt.wantArgs) {
				t.Errorf("Compile() args = %v, want %v", args, tt.wantArgs)
			}
		})
	}
}

func TestStatement_CompileMissingParam(t *testing.T) {
	stmt := NewStatement("SELECT * FROM users WHERE id = :id", nil)
	if _, _, err := stmt.Compile(SQLite{}, Qmark, false); err == nil {
		t.Error("expected error for missing parameter")
	}
}
