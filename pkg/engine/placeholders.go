package engine

import (
	"strings"

	"github.com/pkg/errors"
)

// replacePlaceholders substitutes every prefix+key+suffix occurrence in the
// script with its value. A placeholder without a value is an error.
func replacePlaceholders(script, prefix, suffix string, values map[string]string) (string, error) {
	if prefix == "" || suffix == "" {
		return script, nil
	}

	var out strings.Builder
	rest := script

	for {
		start := strings.Index(rest, prefix)
		if start < 0 {
			out.WriteString(rest)
			break
		}

		end := strings.Index(rest[start+len(prefix):], suffix)
		if end < 0 {
			out.WriteString(rest)
			break
		}

		key := rest[start+len(prefix) : start+len(prefix)+end]
		value, ok := values[key]
		if !ok {
			return "", errors.Errorf("no value provided for placeholder %s%s%s", prefix, key, suffix)
		}

		out.WriteString(rest[:start])
		out.WriteString(value)
		rest = rest[start+len(prefix)+end+len(suffix):]
	}

	return out.String(), nil
}
