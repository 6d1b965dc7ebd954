// Package migrations provides the public API revision files use to register
// themselves. It exports the revision type, the schema operations, the column
// type constructors and the global revision registry.
//
// Example revision file:
//
//	package versions
//
//	import (
//		"context"
//
//		"github.com/toolsascode/stackmig/migrations"
//	)
//
//	func init() {
//		migrations.Register(&migrations.Revision{
//			ID:           "20250301000000",
//			DownRevision: "20250201000000",
//			Message:      "add avatar",
//			Upgrade:      upgrade20250301000000,
//		})
//	}
//
//	func upgrade20250301000000(ctx context.Context, op *migrations.Operations) error {
//		return op.AddColumn(ctx, "users", migrations.Col("avatar_url", migrations.String(0)))
//	}
package migrations
