// Package config loads and validates the loom run configuration file.
package config

import (
	"os"
	"regexp"
)

// Config files may reference the environment with shell-style ${NAME}
// or ${NAME:-fallback} placeholders. Expansion runs over the raw file
// bytes before YAML decoding, so a placeholder works anywhere a scalar
// value does.
var placeholderRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnv substitutes environment placeholders in input. An unset or
// empty variable takes its :- fallback when one is given and otherwise
// expands to the empty string; a missing required value surfaces later
// as a validation error, not here.
func ExpandEnv(input string) string {
	return placeholderRe.ReplaceAllStringFunc(input, func(match string) string {
		sub := placeholderRe.FindStringSubmatch(match)
		name, fallback := sub[1], sub[2]
		if value := os.Getenv(name); value != "" {
			return value
		}
		return fallback
	})
}
