// Package utils provides small helpers shared across gatekeeper packages.
//
// # Identifier Utilities (identifier.go)
//
// Engine dialects quote identifiers differently: PostgreSQL and SQLite use
// double quotes, MySQL and ClickHouse use backticks. QuoteIdentifier and
// QualifiedName take the quote character so every dialect can share the same
// quoting rules:
//
//	utils.QuoteIdentifier("public.history", '"')
//	// Result: "public"."history"
//
//	utils.QualifiedName("analytics", "history", '`')
//	// Result: `analytics`.`history`
package utils
