package engine

import (
	"crypto/sha256"
	"encoding/base64"
	"io/fs"
	"log/slog"
	"path"
	"slices"
	"strings"

	"github.com/pkg/errors"
)

// resolvedMigration is a migration found in the configured locations or in
// the Go migrations handed to the engine.
type resolvedMigration struct {
	Version     Version
	Description string
	Script      string
	Type        MigrationType
	Checksum    string

	// Path is the location of a SQL script in the resource filesystem
	Path string

	// Content is the decoded script, before placeholder replacement
	Content string

	code *GoMigration
}

// resolve collects every migration, sorted by version.
func (e *Engine) resolve() ([]*resolvedMigration, error) {
	var resolved []*resolvedMigration

	if e.fsys != nil {
		for _, loc := range e.settings.Locations {
			found, err := e.resolveLocation(loc)
			if err != nil {
				return nil, err
			}
			resolved = append(resolved, found...)
		}
	}

	for _, gm := range e.code {
		version, description, ok := e.parseName(gm.Name, false)
		if !ok {
			return nil, errors.Errorf("invalid go migration name %s", gm.Name)
		}

		v, err := ParseVersion(version)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid go migration name %s", gm.Name)
		}

		resolved = append(resolved, &resolvedMigration{
			Version:     v,
			Description: description,
			Script:      gm.Name,
			Type:        TypeGo,
			code:        gm,
		})
	}

	slices.SortStableFunc(resolved, func(a, b *resolvedMigration) int {
		return a.Version.Compare(b.Version)
	})

	for i := 1; i < len(resolved); i++ {
		if resolved[i-1].Version.Equal(resolved[i].Version) {
			return nil, errors.Errorf(
				"found more than one migration with version %s (%s and %s)",
				resolved[i].Version,
				resolved[i-1].Script,
				resolved[i].Script,
			)
		}
	}

	return resolved, nil
}

// resolveLocation walks a location recursively. A missing location resolves
// to nothing.
func (e *Engine) resolveLocation(loc string) ([]*resolvedMigration, error) {
	var found []*resolvedMigration

	err := fs.WalkDir(e.fsys, loc, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == loc && errors.Is(err, fs.ErrNotExist) {
				slog.Debug("Migration location not found", "location", loc)
				return nil
			}
			return err
		}

		if d.IsDir() {
			return nil
		}

		version, description, ok := e.parseName(d.Name(), true)
		if !ok {
			return nil
		}

		v, err := ParseVersion(version)
		if err != nil {
			return errors.Wrapf(err, "invalid migration name %s", p)
		}

		data, err := fs.ReadFile(e.fsys, p)
		if err != nil {
			return errors.Wrapf(err, "failed to read migration %s", p)
		}

		content, err := Decode(data, e.settings.Encoding)
		if err != nil {
			return errors.Wrapf(err, "failed to read migration %s", p)
		}

		found = append(found, &resolvedMigration{
			Version:     v,
			Description: description,
			Script:      strings.TrimPrefix(p, path.Clean(loc)+"/"),
			Type:        TypeSQL,
			Checksum:    checksum(content),
			Path:        p,
			Content:     content,
		})

		return nil
	})

	return found, errors.Wrapf(err, "failed to scan location %s", loc)
}

// parseName splits <prefix><version><separator><description>[<suffix>]. It
// reports false for names that aren't migrations.
func (e *Engine) parseName(name string, withSuffix bool) (version, description string, ok bool) {
	s := e.settings
	if !strings.HasPrefix(name, s.SQLMigrationPrefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(name, s.SQLMigrationPrefix)

	if withSuffix {
		suffix, matched := "", false
		for _, sfx := range s.SQLMigrationSuffixes {
			if strings.HasSuffix(rest, sfx) && len(sfx) > len(suffix) {
				suffix, matched = sfx, true
			}
		}
		if !matched {
			return "", "", false
		}
		rest = strings.TrimSuffix(rest, suffix)
	}

	idx := strings.Index(rest, s.SQLMigrationSeparator)
	if idx <= 0 {
		slog.Warn("Ignoring migration without version separator", "name", name, "separator", s.SQLMigrationSeparator)
		return "", "", false
	}

	version = rest[:idx]
	description = strings.ReplaceAll(rest[idx+len(s.SQLMigrationSeparator):], "_", " ")
	return version, description, true
}

// checksum computes a SHA256 hash in h1 format for a script.
func checksum(content string) string {
	hash := sha256.Sum256([]byte(content))
	return "h1:" + base64.StdEncoding.EncodeToString(hash[:])
}
