package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileName is the configuration file name looked for by Discover.
const FileName = "kairoi.yaml"

// EnvConfigPath overrides discovery when set.
const EnvConfigPath = "KAIROI_CONFIG"

// SearchPaths returns the locations Discover tries, in order.
func SearchPaths() []string {
	var paths []string
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		paths = append(paths, p)
	}
	paths = append(paths, FileName)

	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		if home, err := os.UserHomeDir(); err == nil {
			configHome = filepath.Join(home, ".config")
		}
	}
	if configHome != "" {
		paths = append(paths, filepath.Join(configHome, "kairoi", FileName))
	}
	return append(paths, filepath.Join("/etc/kairoi", FileName))
}

// Discover returns the first configuration file found in SearchPaths.
func Discover() (string, error) {
	paths := SearchPaths()
	for _, p := range paths {
		if fileExists(p) {
			return p, nil
		}
	}
	return "", fmt.Errorf("no configuration file found (searched %s)\n"+
		"Hint: pass --config or set %s", strings.Join(paths, ", "), EnvConfigPath)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
