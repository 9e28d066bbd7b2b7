package util

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
)

// DataDir returns the per-user data directory for the app.
func DataDir(app string) string {
	return filepath.Join(xdg.DataHome, app)
}

// ConfigDir returns the per-user config directory for the app.
func ConfigDir(app string) string {
	return filepath.Join(xdg.ConfigHome, app)
}

// ReportsDir returns where generated reports land.
func ReportsDir(app string) string {
	return filepath.Join(documentsDir(), strings.ToUpper(app))
}

func documentsDir() string {
	if dir := strings.TrimSpace(xdg.UserDirs.Documents); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return filepath.Join(home, "Documents")
}

// EnsureDir creates the directory (and parents) if it does not exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}
