// Package config holds the environment readers shared by every package's
// LoadConfig, plus the .env and YAML sources that feed the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Getenv returns the value of key, or def when unset or empty.
func Getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func GetInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return def
}

func GetDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return def
}

// GetMillis reads an integer number of milliseconds.
func GetMillis(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if ms, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return def
}

// GetSeconds reads an integer number of seconds.
func GetSeconds(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if s, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil && s > 0 {
			return time.Duration(s) * time.Second
		}
	}
	return def
}

func GetBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return parsed
		}
	}
	return def
}

// GetList splits a comma separated value, dropping blanks.
func GetList(key string, def []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
