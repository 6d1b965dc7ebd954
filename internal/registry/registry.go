package registry

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/toolsascode/stackmig/internal/depgraph"
	"github.com/toolsascode/stackmig/internal/ops"
)

const (
	// Head names the latest revision
	Head = "head"
	// Base names the state before the first revision
	Base = "base"

	// MaxIDLength is the width of the version table column
	MaxIDLength = 32
)

var revisionIDPattern = regexp.MustCompile(`^[0-9A-Za-z_]+$`)

// UpgradeFunc applies one revision
type UpgradeFunc func(ctx context.Context, op *ops.Operations) error

// Revision is one step of the migration history
type Revision struct {
	ID           string
	DownRevision string // empty for the first revision
	Message      string
	Upgrade      UpgradeFunc
}

// Registry manages revision registration and lookup
type Registry interface {
	// Register registers a revision
	Register(rev *Revision) error

	// Get returns a revision by ID
	Get(id string) (*Revision, bool)

	// GetAll returns all revisions, each after its down revision
	GetAll() ([]*Revision, error)

	// Heads returns the IDs no other revision builds on
	Heads() []string

	// Resolve returns the revisions to apply to move from one revision to
	// another, in order. from may be empty or "base"; to may be "head".
	Resolve(from, to string) ([]*Revision, error)
}

// GlobalRegistry is the global revision registry instance
var GlobalRegistry Registry = NewInMemoryRegistry()

// MustRegister registers rev with GlobalRegistry and panics on error. It is
// meant for revision files' init functions.
func MustRegister(rev *Revision) {
	if err := GlobalRegistry.Register(rev); err != nil {
		panic(err)
	}
}

// NewInMemoryRegistry creates a new in-memory registry
func NewInMemoryRegistry() Registry {
	return &inMemoryRegistry{
		revisions: make(map[string]*Revision),
	}
}

type inMemoryRegistry struct {
	mu        sync.RWMutex
	revisions map[string]*Revision
}

func (r *inMemoryRegistry) Register(rev *Revision) error {
	if rev == nil {
		return fmt.Errorf("revision cannot be nil")
	}
	if err := validateID(rev.ID); err != nil {
		return err
	}
	if rev.DownRevision == rev.ID {
		return fmt.Errorf("revision %s cannot be its own down revision", rev.ID)
	}
	if rev.DownRevision != "" {
		if err := validateID(rev.DownRevision); err != nil {
			return fmt.Errorf("revision %s: invalid down revision: %w", rev.ID, err)
		}
	}
	if rev.Upgrade == nil {
		return fmt.Errorf("revision %s has no upgrade function", rev.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.revisions[rev.ID]; exists {
		return fmt.Errorf("revision %s is already registered", rev.ID)
	}
	r.revisions[rev.ID] = rev
	return nil
}

func validateID(id string) error {
	if id == "" {
		return fmt.Errorf("revision ID is required")
	}
	if id == Head || id == Base {
		return fmt.Errorf("revision ID %q is reserved", id)
	}
	if len(id) > MaxIDLength || !revisionIDPattern.MatchString(id) {
		return fmt.Errorf("invalid revision ID: %q", id)
	}
	return nil
}

func (r *inMemoryRegistry) Get(id string) (*Revision, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rev, ok := r.revisions[id]
	return rev, ok
}

func (r *inMemoryRegistry) GetAll() ([]*Revision, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.checkDownRevisions(); err != nil {
		return nil, err
	}

	graph := depgraph.New()
	for id := range r.revisions {
		graph.AddNode(id, id)
	}
	for id, rev := range r.revisions {
		if rev.DownRevision != "" {
			graph.AddEdge(id, rev.DownRevision)
		}
	}

	order, err := graph.TopologicalSort()
	if err != nil {
		return nil, fmt.Errorf("failed to order revisions: %w", err)
	}

	results := make([]*Revision, 0, len(order))
	for _, id := range order {
		results = append(results, r.revisions[id])
	}
	return results, nil
}

func (r *inMemoryRegistry) checkDownRevisions() error {
	for _, id := range r.sortedIDs() {
		rev := r.revisions[id]
		if rev.DownRevision == "" {
			continue
		}
		if _, ok := r.revisions[rev.DownRevision]; !ok {
			return fmt.Errorf("revision %s has unknown down revision %s", rev.ID, rev.DownRevision)
		}
	}
	return nil
}

func (r *inMemoryRegistry) Heads() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.heads()
}

func (r *inMemoryRegistry) heads() []string {
	hasChild := make(map[string]bool)
	for _, rev := range r.revisions {
		if rev.DownRevision != "" {
			hasChild[rev.DownRevision] = true
		}
	}

	var heads []string
	for id := range r.revisions {
		if !hasChild[id] {
			heads = append(heads, id)
		}
	}
	sort.Strings(heads)
	return heads
}

func (r *inMemoryRegistry) Resolve(from, to string) ([]*Revision, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.checkDownRevisions(); err != nil {
		return nil, err
	}

	if from == Base {
		from = ""
	}
	if from != "" {
		if _, ok := r.revisions[from]; !ok {
			return nil, fmt.Errorf("current revision %s is not known to this registry", from)
		}
	}

	if to == "" || to == Head {
		heads := r.heads()
		switch len(heads) {
		case 0:
			if len(r.revisions) > 0 {
				return nil, fmt.Errorf("circular dependency detected: no head revision")
			}
			return nil, nil
		case 1:
			to = heads[0]
		default:
			return nil, fmt.Errorf("multiple head revisions present: %s", strings.Join(heads, ", "))
		}
	}
	if to == Base {
		if from == "" {
			return nil, nil
		}
		return nil, fmt.Errorf("downgrade from %s to base is not supported", from)
	}
	if _, ok := r.revisions[to]; !ok {
		return nil, fmt.Errorf("unknown target revision %s", to)
	}

	// walk down from the target until the starting revision is reached
	var path []*Revision
	seen := make(map[string]bool)
	for id := to; id != from; {
		if id == "" {
			return nil, fmt.Errorf("revision %s is not an ancestor of %s; downgrades are not supported", from, to)
		}
		if seen[id] {
			return nil, fmt.Errorf("circular dependency detected at revision %s", id)
		}
		seen[id] = true
		rev := r.revisions[id]
		path = append(path, rev)
		id = rev.DownRevision
	}

	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

func (r *inMemoryRegistry) sortedIDs() []string {
	ids := make([]string, 0, len(r.revisions))
	for id := range r.revisions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
