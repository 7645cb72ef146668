// Package init sets up environment defaults before any other packages initialize.
// Import this package with a blank identifier as the first import.
package init

import (
	"os"
	"path/filepath"
)

func init() {
	// Use ~/.bucketmount/config.yaml when present unless CONFIG_PATH is set
	if os.Getenv("CONFIG_PATH") != "" {
		return
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	path := filepath.Join(home, ".bucketmount", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		os.Setenv("CONFIG_PATH", path)
	}
}
