package manager

import (
	"fmt"
	"os"
	"path/filepath"
)

// Config is the typed, flag-populated process configuration
// threaded into New: a small struct of process defaults rather than a
// global.
type Config struct {
	// StateDir is the root of the on-disk layout.
	StateDir string
	// TunnelBinary is the quick-tunnel agent's name or absolute path,
	// resolvable in PATH or via absolute path.
	TunnelBinary string
	// ConfigPatch is an optional JSON policy patch representing the
	// process-wide config struct, merged between the on-disk policy
	// and the built-in defaults.
	ConfigPatch []byte
	// LogLevel selects the slog level ("debug"|"info"|"warn"|"error").
	LogLevel string
}

// DefaultStateDir resolves the default state directory:
// ~/.openclaw/cfshare in plugin mode, ~/.cfshare in CLI mode.
func DefaultStateDir(pluginMode bool) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	if pluginMode {
		return filepath.Join(home, ".openclaw", "cfshare"), nil
	}
	return filepath.Join(home, ".cfshare"), nil
}

func (c Config) workspacesDir() string { return filepath.Join(c.StateDir, "workspaces") }
