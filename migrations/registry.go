package migrations

import "github.com/toolsascode/stackmig/internal/registry"

// GlobalRegistry provides public access to the global revision registry.
var GlobalRegistry = registry.GlobalRegistry

// Register adds a revision to the global registry. It panics when the
// revision is invalid or already registered, so broken revision files fail
// at startup.
func Register(rev *Revision) {
	registry.MustRegister(rev)
}
