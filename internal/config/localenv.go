package config

import (
	"os"
	"path/filepath"
	"strings"
)

// LoadLocalEnv loads KEY=value pairs from a .local file in the project
// directory into the process environment without overriding variables that
// are already set. Lines starting with # and lines without '=' are skipped.
// Surrounding single or double quotes on values are stripped.
func LoadLocalEnv(projectDir string) error {
	path := filepath.Join(projectDir, ".local")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"`)
		value = strings.Trim(value, `'`)
		if key == "" {
			continue
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return err
		}
	}
	return nil
}
