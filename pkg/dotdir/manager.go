// Package dotdir manages the .lokal/ and ~/.lokal directories.
//
// The directory holds the fact database, credentials.toml, config.toml and the
// saved chat session.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// dirName is the name of the lokal directory.
	dirName = ".lokal"

	// HomeEnv points at a lokal directory and wins over the local and home
	// lookups, but not over an explicit override.
	HomeEnv = "LOKAL_HOME"
)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the absolute path to a .lokal/ directory, creating it when
// missing. Order of precedence is as follows:
//  1. Provided override
//  2. $LOKAL_HOME
//  3. Local ./.lokal/ dir
//  4. Home ~/.lokal/ dir
func (m *Manager) Target(overrideDir string) (string, error) {
	var dir string

	switch {
	case overrideDir != "":
		dir = overrideDir

	case os.Getenv(HomeEnv) != "":
		dir = os.Getenv(HomeEnv)

	case m.localDirExists():
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting current directory: %w", err)
		}
		dir = filepath.Join(cwd, dirName)

	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		dir = filepath.Join(home, dirName)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating lokal directory %s: %w", dir, err)
	}

	return filepath.Abs(dir)
}

// File returns the path of name inside the target directory.
func (m *Manager) File(name, overrideDir string) (string, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// localDirExists checks whether a .lokal/ directory exists in the current
// working directory.
func (m *Manager) localDirExists() bool {
	cwd, err := os.Getwd()
	if err != nil {
		return false
	}

	info, err := os.Stat(filepath.Join(cwd, dirName))
	return err == nil && info.IsDir()
}
