package main

import (
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"

	"github.com/benaskins/leaf/internal/config"
)

// leafHome returns the leaf home directory: --home, then $LEAF_HOME, then
// ~/.leaf.
func leafHome() (string, error) {
	dir := flagHome
	if dir == "" {
		dir = os.Getenv("LEAF_HOME")
	}
	if dir == "" {
		return config.DefaultHome(), nil
	}
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return "", err
	}
	return filepath.Abs(expanded)
}

func configPath(home string) string {
	if flagConfig != "" {
		return flagConfig
	}
	return config.DefaultPath(home)
}

func logPath(home string) string {
	return filepath.Join(home, "leaf.log")
}
