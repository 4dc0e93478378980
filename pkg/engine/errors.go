package engine

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrCleanDisabled is returned by Clean when cleaning has been disabled.
var ErrCleanDisabled = errors.New("clean is disabled")

type (
	// ValidationError lists the differences between the resolved migrations
	// and the schema history.
	ValidationError struct {
		Problems []string
	}

	// MigrationError is returned when applying a migration fails.
	MigrationError struct {
		Version string
		Script  string
		Err     error
	}
)

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration %s (%s) failed: %v", e.Version, e.Script, e.Err)
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}
