// Package resource resolves logical, slash separated paths to migration
// scripts on an fs.FS.
//
// Two backends are supported: a directory on disk (NewDir) and a filesystem
// packaged into the binary, usually an embed.FS (NewEmbedded). Callers only
// see logical paths such as "db/migration/default/V1__init.sql"; the
// Locator decides how they map onto the backend.
//
// Example usage:
//
//	//go:embed db/migration
//	var migrations embed.FS
//
//	loc := resource.NewEmbedded(migrations)
//	if loc.Exists("db/migration/default") {
//		rc, ok, err := loc.OpenScript("db/migration/default/V1__init.sql")
//		...
//	}
package resource
