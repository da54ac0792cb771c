package shell

import (
	"os"
	"regexp"
	"strings"
)

var reEnv = regexp.MustCompile(`\${([^}{]+)}`)

// ReplaceEnvVars replaces ${NAME} and ${NAME:default} with environment values.
// Unknown variables without default stay as is.
func ReplaceEnvVars(text string) string {
	return reEnv.ReplaceAllStringFunc(text, func(match string) string {
		key := match[2 : len(match)-1]

		key, def, hasDef := strings.Cut(key, ":")

		if value, ok := os.LookupEnv(key); ok {
			return value
		}

		if hasDef {
			return def
		}

		return match
	})
}
