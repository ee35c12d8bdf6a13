// Package dotdir manages the .parlor/ and ~/.parlor directories, which hold
// config.toml, credentials.toml and the chat client's resume state.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

// DirName is the name of the parlor directory.
const DirName = ".parlor"

// Manager locates the parlor directory for a command.
type Manager struct {
	workDir func() (string, error)
	homeDir func() (string, error)
}

// Option configures a Manager.
type Option func(*Manager)

// WithWorkDir replaces the working directory searched for a local .parlor/.
func WithWorkDir(dir string) Option {
	return func(m *Manager) {
		m.workDir = func() (string, error) { return dir, nil }
	}
}

// WithHomeDir replaces the home directory used for the fallback ~/.parlor.
func WithHomeDir(dir string) Option {
	return func(m *Manager) {
		m.homeDir = func() (string, error) { return dir, nil }
	}
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{workDir: os.Getwd, homeDir: os.UserHomeDir}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Target returns the absolute path of the parlor directory, creating it when
// missing. An override wins, then ./.parlor/ when it exists, then ~/.parlor.
func (m *Manager) Target(override string) (string, error) {
	dir := override
	if dir == "" {
		var err error
		if dir, err = m.search(); err != nil {
			return "", err
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating parlor directory %s: %w", dir, err)
	}
	return filepath.Abs(dir)
}

func (m *Manager) search() (string, error) {
	if cwd, err := m.workDir(); err == nil {
		local := filepath.Join(cwd, DirName)
		if info, err := os.Stat(local); err == nil && info.IsDir() {
			return local, nil
		}
	}

	home, err := m.homeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, DirName), nil
}

// Path returns the absolute path of name inside the target directory.
func (m *Manager) Path(override, name string) (string, error) {
	dir, err := m.Target(override)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}
