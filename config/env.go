package config

import (
	"os"
	"strings"
)

// expandEnvironmentVariables substitutes $VAR, ${VAR} and ${VAR:-default}
// in a single pass, so expanded values are never expanded again.
func expandEnvironmentVariables(content []byte) []byte {
	return []byte(os.Expand(string(content), lookupWithDefault))
}

// lookupWithDefault resolves a variable expression. The default applies
// when the variable is unset or empty.
func lookupWithDefault(expr string) string {
	name, def, hasDefault := strings.Cut(expr, ":-")
	value := os.Getenv(name)
	if value == "" && hasDefault {
		return def
	}
	return value
}
