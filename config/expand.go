package config

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv expands ${VAR} references in a config file's contents through
// lookup before parsing.
//
// Semantics:
//   - `${VAR}` is replaced with the variable's value.
//   - A `${VAR}` whose variable is missing is an error, so a half-expanded
//     file never reaches the parser.
//   - `$$` emits a literal `$` (escape hatch).
//   - Bare `$VAR` is left alone; YAML values use it too often to guess.
func expandEnv(s string, lookup func(string) (string, bool)) (string, error) {
	const dollarSentinel = "\x00RETAIN_DOLLAR\x00"
	s = strings.ReplaceAll(s, "$$", dollarSentinel)

	missing := make(map[string]struct{})
	s = envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		key := envVarPattern.FindStringSubmatch(match)[1]
		v, ok := lookup(key)
		if !ok {
			missing[key] = struct{}{}
			return match
		}
		return v
	})
	if len(missing) > 0 {
		keys := make([]string, 0, len(missing))
		for k := range missing {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return "", fmt.Errorf("config: missing required environment variables: %s", strings.Join(keys, ", "))
	}

	return strings.ReplaceAll(s, dollarSentinel, "$"), nil
}
