package engine

import (
	"context"
	"slices"
	"sync"

	"github.com/pkg/errors"
)

type (
	// GoMigration is a migration written in Go and compiled into the binary.
	//
	// Name follows the same convention as SQL scripts without the suffix, e.g.
	// V3__backfill_users, and carries the version and description.
	GoMigration struct {
		// Database restricts the migration to one named database. Empty means
		// every database.
		Database string

		// Name is the migration name, e.g. V3__backfill_users
		Name string

		// Up applies the migration. q is a transaction when the database
		// supports transactional migrations.
		Up func(ctx context.Context, q Queryer) error
	}

	// Registry holds Go migrations.
	Registry struct {
		mu         sync.RWMutex
		migrations []*GoMigration
	}
)

// DefaultRegistry is the registry used by Register.
var DefaultRegistry = NewRegistry()

// Register adds a Go migration to DefaultRegistry. It is meant to be called
// from init functions and panics when the migration is invalid or its name is
// already taken, like sql.Register.
//
// Example:
//
//	func init() {
//		engine.Register(&engine.GoMigration{
//			Name: "V3__backfill_users",
//			Up: func(ctx context.Context, q engine.Queryer) error {
//				_, err := q.ExecContext(ctx, "UPDATE users SET active = true")
//				return err
//			},
//		})
//	}
func Register(m *GoMigration) {
	if err := DefaultRegistry.Register(m); err != nil {
		panic(err)
	}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a Go migration.
func (r *Registry) Register(m *GoMigration) error {
	if m == nil || m.Name == "" {
		return errors.New("go migration must have a name")
	}
	if m.Up == nil {
		return errors.Errorf("go migration %s has no Up function", m.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.migrations {
		if existing.Name == m.Name && (existing.Database == "" || m.Database == "" || existing.Database == m.Database) {
			return errors.Errorf("go migration %s is already registered", m.Name)
		}
	}

	r.migrations = append(r.migrations, m)
	return nil
}

// For returns the migrations that apply to the named database.
func (r *Registry) For(database string) []*GoMigration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*GoMigration
	for _, m := range r.migrations {
		if m.Database == "" || m.Database == database {
			out = append(out, m)
		}
	}

	return out
}

// Has reports whether a migration with the given name is registered. It is
// the code probe used when looking for the source of a pending migration.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.ContainsFunc(r.migrations, func(m *GoMigration) bool {
		return m.Name == name
	})
}
