// add message images
//
// Revision ID: 20250201000000
// Revises: 20250115000000
// Create Date: 2025-02-01 00:00:00.000000

package versions

import (
	"context"

	"github.com/toolsascode/stackmig/migrations"
)

func init() {
	migrations.Register(&migrations.Revision{
		ID:           "20250201000000",
		DownRevision: "20250115000000",
		Message:      "add message images",
		Upgrade:      upgrade20250201000000,
	})
}

func upgrade20250201000000(ctx context.Context, op *migrations.Operations) error {
	if err := op.AddColumn(ctx, "messages", migrations.Col("images", migrations.Array(migrations.String(0)))); err != nil {
		return err
	}
	return nil
}
