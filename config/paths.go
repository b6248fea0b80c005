// ABOUTME: XDG-based data directory resolution and automatic .env discovery.
// ABOUTME: Checks XDG_DATA_HOME, falling back to ~/.local/share/buildr; .env files never clobber the environment.

package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// DefaultHome returns the default data directory for persistent state.
// It checks XDG_DATA_HOME first, then falls back to ~/.local/share/buildr.
func DefaultHome() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "buildr"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}

	return filepath.Join(home, ".local", "share", "buildr"), nil
}

// LoadDotEnv loads .env files from common locations without clobbering
// existing environment variables. Search order:
//  1. .env in current directory and its parents
//  2. .env next to the current executable
//
// Earlier files win because godotenv never overrides a set variable.
func LoadDotEnv() {
	var paths []string
	seen := map[string]bool{}
	add := func(p string) {
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		if _, err := os.Stat(p); err == nil {
			paths = append(paths, p)
		}
	}

	if wd, err := os.Getwd(); err == nil {
		dir := wd
		for {
			add(filepath.Join(dir, ".env"))
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}
	if exe, err := os.Executable(); err == nil {
		add(filepath.Join(filepath.Dir(exe), ".env"))
	}

	for _, p := range paths {
		// A malformed file is skipped rather than aborting startup.
		_ = godotenv.Load(p)
	}
}
