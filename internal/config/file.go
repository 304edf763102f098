package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LoadDotenv loads the given .env files into the process environment.
// Variables that are already set win. Missing files are ignored.
func LoadDotenv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyFile reads a YAML document of ENV_NAME: value pairs and exports every
// key that is not already present in the environment. It returns the keys it set.
//
//	WATCHER_POLL_INTERVAL_MS: 2000
//	STELLAR_NETWORK: mainnet
func ApplyFile(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	values := map[string]any{}
	if err := yaml.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	var applied []string
	for key, v := range values {
		if _, ok := os.LookupEnv(key); ok {
			continue
		}
		if err := os.Setenv(key, stringify(v)); err != nil {
			return applied, fmt.Errorf("set %s: %w", key, err)
		}
		applied = append(applied, key)
	}
	return applied, nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []any:
		out := ""
		for i, item := range t {
			if i > 0 {
				out += ","
			}
			out += stringify(item)
		}
		return out
	default:
		return fmt.Sprint(t)
	}
}
