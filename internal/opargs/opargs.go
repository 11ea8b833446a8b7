// Package opargs parses operation arguments of the form key=value.
package opargs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Parse turns key=value arguments into a map. Values are decoded as YAML
// scalars or structures where possible and kept as the raw string
// otherwise. A bare key maps to nil. A leading ~ is expanded to the home
// directory before splitting.
func Parse(args []string) (map[string]any, error) {
	result := make(map[string]any, len(args))
	for _, arg := range args {
		expanded, err := expandHome(arg)
		if err != nil {
			return nil, err
		}
		key, val := parseArg(expanded)
		result[key] = val
	}
	return result, nil
}

func parseArg(s string) (string, any) {
	key, raw, ok := strings.Cut(s, "=")
	if !ok {
		return key, nil
	}
	return key, decodeValue(raw)
}

func decodeValue(s string) any {
	var val any
	if err := yaml.Unmarshal([]byte(s), &val); err != nil {
		return s
	}
	return val
}

func expandHome(s string) (string, error) {
	if s != "~" && !strings.HasPrefix(s, "~/") {
		return s, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to expand %q: %w", s, err)
	}
	return filepath.Join(home, s[1:]), nil
}
