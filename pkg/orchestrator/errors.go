package orchestrator

import "fmt"

type (
	// InvalidRevisionError is returned when a database has pending migrations
	// and is not allowed to apply them on start. Report holds one
	// "--- <script> ---" block per pending migration followed by its source.
	InvalidRevisionError struct {
		Database string
		Report   string
	}

	// ScriptNotFoundError is returned when the source of a pending migration
	// cannot be located.
	ScriptNotFoundError struct {
		Database string
		Script   string
	}
)

func (e *InvalidRevisionError) Error() string {
	return fmt.Sprintf("database %s has pending migrations and auto migration is disabled:\n%s", e.Database, e.Report)
}

func (e *ScriptNotFoundError) Error() string {
	return fmt.Sprintf("unable to locate the source of migration %s for database %s", e.Script, e.Database)
}
