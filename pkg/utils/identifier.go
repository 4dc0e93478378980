package utils

import "strings"

// QuoteIdentifier wraps each dot separated part of name in the given quote
// character. Parts that are already quoted are left untouched and embedded
// quote characters are doubled.
//
// Examples:
//
//	utils.QuoteIdentifier("public.users", '"')   // "public"."users"
//	utils.QuoteIdentifier("app.history", '`')    // `app`.`history`
//	utils.QuoteIdentifier(`"public".users`, '"') // "public"."users"
func QuoteIdentifier(name string, quote byte) string {
	if name == "" {
		return ""
	}

	parts := strings.Split(name, ".")
	for i, part := range parts {
		if IsQuoted(part, quote) {
			continue
		}
		q := string(quote)
		parts[i] = q + strings.ReplaceAll(part, q, q+q) + q
	}
	return strings.Join(parts, ".")
}

// QualifiedName quotes name and, when schema is not empty, prefixes it with
// the quoted schema.
//
//	utils.QualifiedName("public", "history", '"') // "public"."history"
//	utils.QualifiedName("", "history", '`')       // `history`
func QualifiedName(schema, name string, quote byte) string {
	if schema != "" {
		return QuoteIdentifier(schema, quote) + "." + QuoteIdentifier(name, quote)
	}
	return QuoteIdentifier(name, quote)
}

// IsQuoted reports whether s is wrapped in the quote character.
func IsQuoted(s string, quote byte) bool {
	return len(s) >= 2 && s[0] == quote && s[len(s)-1] == quote
}
