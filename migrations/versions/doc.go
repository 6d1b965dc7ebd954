// Package versions holds the application's revisions. Importing it registers
// them with migrations.GlobalRegistry.
package versions
