package secrets

import (
	"fmt"
	"maps"
	"os"
	"strings"
)

// EnvLoader returns a Loader that reads the specified environment variables.
// A variable may instead be supplied as KEY_FILE naming a file that holds the
// value. Missing variables are omitted from the result map.
func EnvLoader(keys ...string) Loader {
	return func() (map[string]string, error) {
		vals := make(map[string]string, len(keys))
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				vals[k] = v
				continue
			}
			path := os.Getenv(k + "_FILE")
			if path == "" {
				continue
			}
			data, err := os.ReadFile(path) //nolint:gosec // G304: operator-supplied secret path
			if err != nil {
				return nil, fmt.Errorf("read %s_FILE: %w", k, err)
			}
			vals[k] = strings.TrimSpace(string(data))
		}
		return vals, nil
	}
}

// StaticLoader returns a Loader serving a fixed copy of vals.
func StaticLoader(vals map[string]string) Loader {
	return func() (map[string]string, error) {
		return maps.Clone(vals), nil
	}
}

// Layered merges loaders in order; later loaders override earlier ones.
// Empty values never override.
func Layered(loaders ...Loader) Loader {
	return func() (map[string]string, error) {
		out := make(map[string]string)
		for _, l := range loaders {
			vals, err := l()
			if err != nil {
				return nil, err
			}
			for k, v := range vals {
				if v != "" {
					out[k] = v
				}
			}
		}
		return out, nil
	}
}
