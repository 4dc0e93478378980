package engine

import (
	"context"
	"database/sql"
	"slices"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// appliedMigration is a row of the schema history table.
type appliedMigration struct {
	Rank          int
	Version       Version
	Description   string
	Type          MigrationType
	Script        string
	Checksum      string
	InstalledBy   string
	InstalledOn   time.Time
	ExecutionTime time.Duration
	Success       bool
}

// history reads and writes the schema history table of one schema.
type history struct {
	dialect Dialect
	schema  string
	table   string
}

// qualified returns the quoted, schema qualified name of the table.
func (h *history) qualified() string {
	return h.dialect.Qualify(h.schema, h.table)
}

// exists checks whether the history table has been created.
func (h *history) exists(ctx context.Context, q Queryer) (bool, error) {
	tables, err := h.dialect.Tables(ctx, q, h.schema)
	if err != nil {
		return false, errors.Wrap(err, "failed to check for schema history table")
	}

	return slices.ContainsFunc(tables, func(t string) bool {
		return strings.EqualFold(t, h.table)
	}), nil
}

// create creates the history table if it doesn't exist.
func (h *history) create(ctx context.Context, q Queryer) error {
	_, err := q.ExecContext(ctx, h.dialect.HistoryDDL(h.qualified()))
	return errors.Wrapf(err, "failed to create schema history table %s", h.qualified())
}

// load returns every row ordered by installed rank.
func (h *history) load(ctx context.Context, q Queryer) ([]*appliedMigration, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT
			installed_rank,
			version,
			description,
			type,
			script,
			checksum,
			installed_by,
			installed_on,
			execution_time,
			success
		FROM `+h.qualified()+`
		ORDER BY installed_rank`,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query schema history")
	}
	defer func() { _ = rows.Close() }()

	var applied []*appliedMigration
	for rows.Next() {
		var (
			a           appliedMigration
			version     sql.NullString
			kind        string
			checksum    sql.NullString
			installedOn any
			execMillis  int64
		)

		if err := rows.Scan(
			&a.Rank,
			&version,
			&a.Description,
			&kind,
			&a.Script,
			&checksum,
			&a.InstalledBy,
			&installedOn,
			&execMillis,
			&a.Success,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan schema history row")
		}

		if a.Version, err = ParseVersion(version.String); err != nil {
			return nil, errors.Wrapf(err, "invalid version in schema history (installed rank %d)", a.Rank)
		}
		if a.InstalledOn, err = toTime(installedOn); err != nil {
			return nil, errors.Wrapf(err, "invalid installed_on in schema history (installed rank %d)", a.Rank)
		}

		a.Type = MigrationType(kind)
		a.Checksum = checksum.String
		a.ExecutionTime = time.Duration(execMillis) * time.Millisecond
		applied = append(applied, &a)
	}

	return applied, errors.Wrap(rows.Err(), "failed to read schema history")
}

// insert records a row.
func (h *history) insert(ctx context.Context, q Queryer, a *appliedMigration) error {
	binds := make([]string, 10)
	for i := range binds {
		binds[i] = h.dialect.Bind(i + 1)
	}

	var checksum any
	if a.Checksum != "" {
		checksum = a.Checksum
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO `+h.qualified()+` (
			installed_rank,
			version,
			description,
			type,
			script,
			checksum,
			installed_by,
			installed_on,
			execution_time,
			success
		) VALUES (`+strings.Join(binds, ", ")+`)`,
		int32(a.Rank),
		a.Version.String(),
		a.Description,
		string(a.Type),
		a.Script,
		checksum,
		a.InstalledBy,
		a.InstalledOn.UTC(),
		int32(a.ExecutionTime.Milliseconds()),
		a.Success,
	)

	return errors.Wrapf(err, "failed to record migration %s in schema history", a.Version)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

// toTime normalizes the installed_on column, which drivers return either as
// a time.Time or as text.
func toTime(v any) (time.Time, error) {
	var s string
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case nil:
		return time.Time{}, nil
	case string:
		s = t
	case []byte:
		s = string(t)
	default:
		return time.Time{}, errors.Errorf("unexpected type %T", v)
	}

	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, errors.Errorf("unrecognized time %q", s)
}
