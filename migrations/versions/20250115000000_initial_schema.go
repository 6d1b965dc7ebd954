// initial schema
//
// Revision ID: 20250115000000
// Revises: <base>
// Create Date: 2025-01-15 00:00:00.000000

package versions

import (
	"context"

	"github.com/toolsascode/stackmig/migrations"
)

func init() {
	migrations.Register(&migrations.Revision{
		ID:           "20250115000000",
		DownRevision: "",
		Message:      "initial schema",
		Upgrade:      upgrade20250115000000,
	})
}

func upgrade20250115000000(ctx context.Context, op *migrations.Operations) error {
	if err := op.CreateTable(ctx, migrations.NewTable("users",
		migrations.Col("id", migrations.Integer()).PK().Indexed(),
		migrations.Col("username", migrations.String(0)).Required().Uniq().Indexed(),
		migrations.Col("email", migrations.String(0)).Uniq(),
		migrations.Col("created_at", migrations.DateTime(true)).Required().Default(migrations.Now()),
		migrations.Col("updated_at", migrations.DateTime(true)),
	)); err != nil {
		return err
	}
	if err := op.CreateTable(ctx, migrations.NewTable("stacks",
		migrations.Col("id", migrations.Integer()).PK().Indexed(),
		migrations.Col("title", migrations.String(0)).Required().Uniq(),
		migrations.Col("description", migrations.Text()).Required(),
		migrations.Col("prompt", migrations.Text()).Required(),
		migrations.Col("from_registry", migrations.String(0)).Required(),
		migrations.Col("sandbox_init_cmd", migrations.Text()).Required(),
		migrations.Col("sandbox_start_cmd", migrations.Text()).Required(),
		migrations.Col("pack_hash", migrations.String(0)).Required(),
		migrations.Col("setup_time_seconds", migrations.Integer()).Required(),
		migrations.Col("created_at", migrations.DateTime(true)).Required().Default(migrations.Now()),
		migrations.Col("updated_at", migrations.DateTime(true)),
	)); err != nil {
		return err
	}
	if err := op.CreateTable(ctx, migrations.NewTable("teams",
		migrations.Col("id", migrations.Integer()).PK().Indexed(),
		migrations.Col("name", migrations.String(0)).Required(),
		migrations.Col("plan_type", migrations.Enum("teamplantype", "STANDARD")).Required(),
		migrations.Col("credits", migrations.Integer()).Required(),
		migrations.Col("created_at", migrations.DateTime(true)).Required().Default(migrations.Now()),
		migrations.Col("updated_at", migrations.DateTime(true)),
	)); err != nil {
		return err
	}
	if err := op.CreateTable(ctx, migrations.NewTable("prepared_sandboxes",
		migrations.Col("id", migrations.Integer()).PK().Indexed(),
		migrations.Col("modal_sandbox_id", migrations.String(0)),
		migrations.Col("modal_volume_label", migrations.String(0)),
		migrations.Col("pack_hash", migrations.String(0)),
		migrations.Col("stack_id", migrations.Integer()).Required().References("stacks", "id", ""),
		migrations.Col("created_at", migrations.DateTime(true)).Required().Default(migrations.Now()),
		migrations.Col("updated_at", migrations.DateTime(true)),
	)); err != nil {
		return err
	}
	if err := op.CreateTable(ctx, migrations.NewTable("projects",
		migrations.Col("id", migrations.Integer()).PK().Indexed(),
		migrations.Col("name", migrations.String(0)).Required().Indexed(),
		migrations.Col("description", migrations.Text()),
		migrations.Col("custom_instructions", migrations.Text()),
		migrations.Col("modal_sandbox_last_used_at", migrations.DateTime(true)),
		migrations.Col("modal_sandbox_id", migrations.String(0)),
		migrations.Col("modal_sandbox_expires_at", migrations.DateTime(true)),
		migrations.Col("modal_volume_label", migrations.String(0)),
		migrations.Col("modal_never_cleanup", migrations.Boolean()),
		migrations.Col("team_id", migrations.Integer()).Required().References("teams", "id", "CASCADE"),
		migrations.Col("stack_id", migrations.Integer()).Required().References("stacks", "id", ""),
		migrations.Col("user_id", migrations.Integer()).Required().References("users", "id", "CASCADE"),
		migrations.Col("created_at", migrations.DateTime(true)).Required().Default(migrations.Now()),
		migrations.Col("updated_at", migrations.DateTime(true)),
	)); err != nil {
		return err
	}
	if err := op.CreateTable(ctx, migrations.NewTable("team_credit_purchases",
		migrations.Col("id", migrations.Integer()).PK().Indexed(),
		migrations.Col("team_id", migrations.Integer()).Required().References("teams", "id", "CASCADE"),
		migrations.Col("amount", migrations.Integer()).Required(),
		migrations.Col("price_cents", migrations.Integer()).Required(),
		migrations.Col("external_payment_id", migrations.String(0)).Required(),
		migrations.Col("created_at", migrations.DateTime(true)).Required().Default(migrations.Now()),
		migrations.Col("updated_at", migrations.DateTime(true)),
	)); err != nil {
		return err
	}
	if err := op.CreateTable(ctx, migrations.NewTable("team_invites",
		migrations.Col("id", migrations.Integer()).PK().Indexed(),
		migrations.Col("team_id", migrations.Integer()).Required().References("teams", "id", "CASCADE"),
		migrations.Col("invite_code", migrations.String(0)).Required().Uniq().Indexed(),
		migrations.Col("expires_at", migrations.DateTime(true)),
		migrations.Col("created_by_id", migrations.Integer()).Required().References("users", "id", "CASCADE"),
		migrations.Col("created_at", migrations.DateTime(true)).Required().Default(migrations.Now()),
		migrations.Col("updated_at", migrations.DateTime(true)),
	)); err != nil {
		return err
	}
	if err := op.CreateTable(ctx, migrations.NewTable("team_members",
		migrations.Col("id", migrations.Integer()).PK().Indexed(),
		migrations.Col("team_id", migrations.Integer()).Required().References("teams", "id", "CASCADE"),
		migrations.Col("user_id", migrations.Integer()).Required().References("users", "id", "CASCADE"),
		migrations.Col("role", migrations.Enum("teamrole", "ADMIN", "MEMBER")).Required(),
		migrations.Col("created_at", migrations.DateTime(true)).Required().Default(migrations.Now()),
		migrations.Col("updated_at", migrations.DateTime(true)),
	)); err != nil {
		return err
	}
	if err := op.CreateTable(ctx, migrations.NewTable("chats",
		migrations.Col("id", migrations.Integer()).PK().Indexed(),
		migrations.Col("name", migrations.String(0)).Required(),
		migrations.Col("project_id", migrations.Integer()).Required().References("projects", "id", "CASCADE"),
		migrations.Col("user_id", migrations.Integer()).Required().References("users", "id", "CASCADE"),
		migrations.Col("created_at", migrations.DateTime(true)).Required().Default(migrations.Now()),
		migrations.Col("updated_at", migrations.DateTime(true)),
	)); err != nil {
		return err
	}
	if err := op.CreateTable(ctx, migrations.NewTable("messages",
		migrations.Col("id", migrations.Integer()).PK().Indexed(),
		migrations.Col("role", migrations.String(0)).Required(),
		migrations.Col("content", migrations.Text()).Required(),
		migrations.Col("chat_id", migrations.Integer()).Required().References("chats", "id", "CASCADE"),
		migrations.Col("created_at", migrations.DateTime(true)).Required().Default(migrations.Now()),
		migrations.Col("updated_at", migrations.DateTime(true)),
	)); err != nil {
		return err
	}
	return nil
}
