package engine

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Version is a migration version made of numeric parts, e.g. 1, 1.2 or
// 20240101120000. Underscores in file names are read as dots, so V1_2__x.sql
// has version 1.2.
type Version struct {
	parts []uint64
	raw   string
}

// ParseVersion parses a version string.
func ParseVersion(s string) (Version, error) {
	raw := strings.ReplaceAll(strings.TrimSpace(s), "_", ".")
	if raw == "" {
		return Version{}, errors.New("version must not be empty")
	}

	fields := strings.Split(raw, ".")
	parts := make([]uint64, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.ParseUint(f, 10, 64)
		if err != nil {
			return Version{}, errors.Errorf("invalid version %q: %q is not a number", s, f)
		}
		parts = append(parts, n)
	}

	// trailing zeros don't change the version (1.0 == 1)
	for len(parts) > 1 && parts[len(parts)-1] == 0 {
		parts = parts[:len(parts)-1]
	}

	return Version{parts: parts, raw: raw}, nil
}

// MustParseVersion is like ParseVersion but panics on error.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// IsZero reports whether the version is unset.
func (v Version) IsZero() bool {
	return len(v.parts) == 0
}

// Compare returns -1, 0 or 1 when v is lower than, equal to or greater than o.
func (v Version) Compare(o Version) int {
	for i := 0; i < len(v.parts) || i < len(o.parts); i++ {
		var a, b uint64
		if i < len(v.parts) {
			a = v.parts[i]
		}
		if i < len(o.parts) {
			b = o.parts[i]
		}

		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
	}

	return 0
}

// Less reports whether v sorts before o.
func (v Version) Less(o Version) bool {
	return v.Compare(o) < 0
}

// Equal reports whether v and o denote the same version.
func (v Version) Equal(o Version) bool {
	return v.Compare(o) == 0
}

// Underscored renders the version the way it appears in file names (1_2).
func (v Version) Underscored() string {
	return strings.ReplaceAll(v.String(), ".", "_")
}

// String renders the version as written, with dots.
func (v Version) String() string {
	return v.raw
}

// key is the canonical form of the version, equal for equal versions.
func (v Version) key() string {
	parts := make([]string, len(v.parts))
	for i, p := range v.parts {
		parts[i] = strconv.FormatUint(p, 10)
	}

	return strings.Join(parts, ".")
}

// MarshalText implements encoding.TextMarshaler.
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.raw), nil
}
