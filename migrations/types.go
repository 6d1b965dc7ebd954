package migrations

import (
	"github.com/toolsascode/stackmig/internal/ops"
	"github.com/toolsascode/stackmig/internal/registry"
	"github.com/toolsascode/stackmig/internal/schema"
)

// Revision is a public alias for registry.Revision
type Revision = registry.Revision

// Operations is a public alias for ops.Operations
type Operations = ops.Operations

// Table, Column and Type describe schema objects passed to Operations
type (
	Table  = schema.Table
	Column = schema.Column
	Type   = schema.Type
	Index  = schema.Index
)

// Column and table constructors
var (
	NewTable     = schema.NewTable
	Col          = schema.Col
	Integer      = schema.Integer
	String       = schema.String
	Text         = schema.Text
	Boolean      = schema.Boolean
	DateTime     = schema.DateTime
	Enum         = schema.Enum
	Array        = schema.Array
	Now          = schema.Now
	DefaultValue = schema.DefaultValue
	IndexName    = schema.IndexName
)
