// Package models defines the application's tables. Metadata is the schema
// every migration run targets.
package models

import (
	"sync"

	"github.com/toolsascode/stackmig/internal/schema"
)

// Team plan types
const (
	TeamPlanStandard = "STANDARD"
)

// Team roles
const (
	TeamRoleAdmin  = "ADMIN"
	TeamRoleMember = "MEMBER"
)

var (
	metadataOnce sync.Once
	metadata     *schema.MetaData
)

// Metadata returns the application metadata. The same instance is returned
// on every call.
func Metadata() *schema.MetaData {
	metadataOnce.Do(func() {
		md, err := build()
		if err != nil {
			panic("models: invalid table definitions: " + err.Error())
		}
		metadata = md
	})
	return metadata
}

// Tables returns freshly built table definitions in declaration order
func Tables() []*schema.Table {
	return []*schema.Table{
		Users(),
		Projects(),
		Teams(),
		TeamMembers(),
		Stacks(),
		Chats(),
		Messages(),
		PreparedSandboxes(),
		TeamInvites(),
		TeamCreditPurchases(),
	}
}

func build() (*schema.MetaData, error) {
	md := schema.NewMetaData()
	for _, t := range Tables() {
		if err := md.Add(t); err != nil {
			return nil, err
		}
	}
	if err := md.Validate(); err != nil {
		return nil, err
	}
	return md, nil
}

func table(name string, columns ...schema.Column) *schema.Table {
	return schema.NewTable(name, append(columns, timestamps()...)...)
}

// timestamps are appended to every table
func timestamps() []schema.Column {
	return []schema.Column{
		schema.Col("created_at", schema.DateTime(true)).Required().Default(schema.Now()),
		schema.Col("updated_at", schema.DateTime(true)),
	}
}

func id() schema.Column {
	return schema.Col("id", schema.Integer()).PK().Indexed()
}

func varchar(name string) schema.Column {
	return schema.Col(name, schema.String(0))
}

func text(name string) schema.Column {
	return schema.Col(name, schema.Text())
}

func integer(name string) schema.Column {
	return schema.Col(name, schema.Integer())
}

func fk(name, target, onDelete string) schema.Column {
	return integer(name).Required().References(target, "id", onDelete)
}

func Users() *schema.Table {
	return table("users",
		id(),
		varchar("username").Required().Uniq().Indexed(),
		varchar("email").Uniq(),
	)
}

func Projects() *schema.Table {
	return table("projects",
		id(),
		varchar("name").Required().Indexed(),
		text("description"),
		text("custom_instructions"),
		schema.Col("modal_sandbox_last_used_at", schema.DateTime(true)),
		varchar("modal_sandbox_id"),
		schema.Col("modal_sandbox_expires_at", schema.DateTime(true)),
		varchar("modal_volume_label"),
		schema.Col("modal_never_cleanup", schema.Boolean()),
		fk("team_id", "teams", "CASCADE"),
		fk("stack_id", "stacks", ""),
		fk("user_id", "users", "CASCADE"),
	)
}

func Teams() *schema.Table {
	return table("teams",
		id(),
		varchar("name").Required(),
		schema.Col("plan_type", schema.Enum("teamplantype", TeamPlanStandard)).Required(),
		integer("credits").Required(),
	)
}

func TeamMembers() *schema.Table {
	return table("team_members",
		id(),
		fk("team_id", "teams", "CASCADE"),
		fk("user_id", "users", "CASCADE"),
		schema.Col("role", schema.Enum("teamrole", TeamRoleAdmin, TeamRoleMember)).Required(),
	)
}

func Stacks() *schema.Table {
	return table("stacks",
		id(),
		varchar("title").Required().Uniq(),
		text("description").Required(),
		text("prompt").Required(),
		varchar("from_registry").Required(),
		text("sandbox_init_cmd").Required(),
		text("sandbox_start_cmd").Required(),
		varchar("pack_hash").Required(),
		integer("setup_time_seconds").Required(),
	)
}

func Chats() *schema.Table {
	return table("chats",
		id(),
		varchar("name").Required(),
		fk("project_id", "projects", "CASCADE"),
		fk("user_id", "users", "CASCADE"),
	)
}

func Messages() *schema.Table {
	return table("messages",
		id(),
		varchar("role").Required(),
		text("content").Required(),
		schema.Col("images", schema.Array(schema.String(0))),
		fk("chat_id", "chats", "CASCADE"),
	)
}

func PreparedSandboxes() *schema.Table {
	return table("prepared_sandboxes",
		id(),
		varchar("modal_sandbox_id"),
		varchar("modal_volume_label"),
		varchar("pack_hash"),
		fk("stack_id", "stacks", ""),
	)
}

func TeamInvites() *schema.Table {
	return table("team_invites",
		id(),
		fk("team_id", "teams", "CASCADE"),
		varchar("invite_code").Required().Uniq().Indexed(),
		schema.Col("expires_at", schema.DateTime(true)),
		fk("created_by_id", "users", "CASCADE"),
	)
}

func TeamCreditPurchases() *schema.Table {
	return table("team_credit_purchases",
		id(),
		fk("team_id", "teams", "CASCADE"),
		integer("amount").Required(),
		integer("price_cents").Required(),
		varchar("external_payment_id").Required(),
	)
}
