package engine

import (
	"slices"
	"time"
)

const (
	// TypeSQL is a migration read from a SQL script
	TypeSQL MigrationType = "SQL"

	// TypeGo is a migration compiled into the binary
	TypeGo MigrationType = "GO"

	// TypeBaseline marks the version a schema was baselined at
	TypeBaseline MigrationType = "BASELINE"

	// StatePending is resolved but not applied yet
	StatePending MigrationState = "pending"

	// StateSuccess is applied successfully
	StateSuccess MigrationState = "success"

	// StateFailed is applied but failed
	StateFailed MigrationState = "failed"

	// StateFuture is applied, not resolved and newer than every resolved migration
	StateFuture MigrationState = "future"

	// StateIgnored is resolved, not applied and older than the current version
	StateIgnored MigrationState = "ignored"

	// StateMissing is applied but no longer resolved
	StateMissing MigrationState = "missing"

	// StateBaseline is the baseline marker
	StateBaseline MigrationState = "baseline"

	// StateBelowBaseline is resolved but not newer than the baseline
	StateBelowBaseline MigrationState = "below_baseline"

	// StateOutOfOrder is applied after a newer version
	StateOutOfOrder MigrationState = "out_of_order"
)

type (
	// MigrationType is the kind of a migration.
	MigrationType string

	// MigrationState is the state of a migration relative to the schema
	// history.
	MigrationState string

	// MigrationInfo describes a single migration, resolved, applied or both.
	MigrationInfo struct {
		Version       Version        `json:"version"`
		Description   string         `json:"description"`
		Script        string         `json:"script"`
		Type          MigrationType  `json:"type"`
		State         MigrationState `json:"state"`
		Checksum      string         `json:"checksum,omitempty"`
		InstalledRank int            `json:"installed_rank,omitempty"`
		InstalledBy   string         `json:"installed_by,omitempty"`
		InstalledOn   *time.Time     `json:"installed_on,omitempty"`
		ExecutionTime time.Duration  `json:"execution_time,omitempty"`

		resolved *resolvedMigration
	}

	// Info is the state of every migration of a database.
	Info struct {
		migrations []*MigrationInfo
	}
)

// IsApplied reports whether the migration is recorded in the schema history.
func (m *MigrationInfo) IsApplied() bool {
	return m.InstalledRank > 0
}

// NewInfo builds an Info from migration records, sorted by version.
func NewInfo(migrations ...*MigrationInfo) *Info {
	ms := slices.Clone(migrations)
	slices.SortStableFunc(ms, func(a, b *MigrationInfo) int {
		return a.Version.Compare(b.Version)
	})

	return &Info{migrations: ms}
}

// All returns every migration sorted by version.
func (i *Info) All() []*MigrationInfo {
	return slices.Clone(i.migrations)
}

// Pending returns the migrations that Migrate would apply, in the order it
// would apply them.
func (i *Info) Pending() []*MigrationInfo {
	var out []*MigrationInfo
	for _, m := range i.migrations {
		if m.State == StatePending {
			out = append(out, m)
		}
	}

	return out
}

// Applied returns the migrations recorded in the schema history.
func (i *Info) Applied() []*MigrationInfo {
	var out []*MigrationInfo
	for _, m := range i.migrations {
		if m.IsApplied() {
			out = append(out, m)
		}
	}

	return out
}

// Current returns the applied migration with the highest version, or nil
// when nothing has been applied.
func (i *Info) Current() *MigrationInfo {
	var current *MigrationInfo
	for _, m := range i.migrations {
		if !m.IsApplied() || m.State == StateFailed {
			continue
		}
		if current == nil || !m.Version.Less(current.Version) {
			current = m
		}
	}

	return current
}

func (i *Info) failed() []*MigrationInfo {
	var out []*MigrationInfo
	for _, m := range i.migrations {
		if m.State == StateFailed {
			out = append(out, m)
		}
	}

	return out
}

// buildInfo merges the resolved migrations with the schema history.
func buildInfo(resolved []*resolvedMigration, applied []*appliedMigration, outOfOrder bool) *Info {
	var (
		infos       []*MigrationInfo
		seen        = make(map[string]bool, len(applied))
		baseline    *Version
		maxApplied  *Version
		maxResolved *Version
		maxSoFar    *Version
	)

	byVersion := make(map[string]*resolvedMigration, len(resolved))
	for _, r := range resolved {
		byVersion[r.Version.key()] = r
		if maxResolved == nil || maxResolved.Less(r.Version) {
			maxResolved = &r.Version
		}
	}

	for _, a := range applied {
		if !a.Success {
			continue
		}
		if maxApplied == nil || maxApplied.Less(a.Version) {
			maxApplied = &a.Version
		}
		if a.Type == TypeBaseline {
			baseline = &a.Version
		}
	}

	for _, a := range applied {
		info := &MigrationInfo{
			Version:       a.Version,
			Description:   a.Description,
			Script:        a.Script,
			Type:          a.Type,
			Checksum:      a.Checksum,
			InstalledRank: a.Rank,
			InstalledBy:   a.InstalledBy,
			InstalledOn:   &a.InstalledOn,
			ExecutionTime: a.ExecutionTime,
		}

		r, ok := byVersion[a.Version.key()]
		switch {
		case a.Type == TypeBaseline:
			info.State = StateBaseline
		case !a.Success:
			info.State = StateFailed
			info.resolved = r
		case !ok && (maxResolved == nil || maxResolved.Less(a.Version)):
			info.State = StateFuture
		case !ok:
			info.State = StateMissing
		case maxSoFar != nil && a.Version.Less(*maxSoFar):
			info.State = StateOutOfOrder
			info.resolved = r
		default:
			info.State = StateSuccess
			info.resolved = r
		}

		if a.Success && (maxSoFar == nil || maxSoFar.Less(a.Version)) {
			maxSoFar = &a.Version
		}

		if a.Type != TypeBaseline {
			seen[a.Version.key()] = true
		}
		infos = append(infos, info)
	}

	for _, r := range resolved {
		if seen[r.Version.key()] {
			continue
		}

		info := &MigrationInfo{
			Version:     r.Version,
			Description: r.Description,
			Script:      r.Script,
			Type:        r.Type,
			Checksum:    r.Checksum,
			resolved:    r,
		}

		switch {
		case baseline != nil && !baseline.Less(r.Version):
			info.State = StateBelowBaseline
		case maxApplied != nil && r.Version.Less(*maxApplied) && !outOfOrder:
			info.State = StateIgnored
		default:
			info.State = StatePending
		}

		infos = append(infos, info)
	}

	return NewInfo(infos...)
}
