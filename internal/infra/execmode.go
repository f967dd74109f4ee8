package infra

import (
	"os"
	"os/user"
	"path/filepath"
)

// ExecMode represents the execution mode of the application.
type ExecMode string

const (
	// ExecModeUser keeps data under the invoking user's home directory.
	ExecModeUser ExecMode = "user"
	// ExecModeSystem keeps data in system directories (root required).
	ExecModeSystem ExecMode = "system"
)

// ExecModeConfig holds paths derived from the execution mode.
type ExecModeConfig struct {
	Mode         ExecMode
	DataDir      string // Encrypted store and key
	LogPath      string // Daemon log
	ErrorLogPath string // zap internal errors
	IsRoot       bool
}

// DataDirEnv overrides the data directory (tests, multiple profiles).
const DataDirEnv = "APPLOCK_DATA_DIR"

// DetectExecMode determines paths from the effective UID.
func DetectExecMode() *ExecModeConfig {
	if os.Geteuid() == 0 {
		return withDataDirOverride(&ExecModeConfig{
			Mode:         ExecModeSystem,
			DataDir:      "/var/lib/applock",
			LogPath:      "/var/log/applock.log",
			ErrorLogPath: "/var/log/applock.error.log",
			IsRoot:       true,
		})
	}
	return GetUserModeConfig()
}

// GetUserModeConfig returns user mode paths regardless of current euid.
func GetUserModeConfig() *ExecModeConfig {
	home := GetRealUserHome()
	dataDir := filepath.Join(home, ".applock")
	return withDataDirOverride(&ExecModeConfig{
		Mode:         ExecModeUser,
		DataDir:      dataDir,
		LogPath:      filepath.Join(dataDir, "applock.log"),
		ErrorLogPath: filepath.Join(dataDir, "applock.error.log"),
		IsRoot:       os.Geteuid() == 0,
	})
}

func withDataDirOverride(cfg *ExecModeConfig) *ExecModeConfig {
	if dir := os.Getenv(DataDirEnv); dir != "" {
		cfg.DataDir = dir
		cfg.LogPath = filepath.Join(dir, "applock.log")
		cfg.ErrorLogPath = filepath.Join(dir, "applock.error.log")
	}
	return cfg
}

// String returns a human-readable description of the mode.
func (m ExecMode) String() string {
	switch m {
	case ExecModeSystem:
		return "system (root)"
	case ExecModeUser:
		return "user (non-root)"
	default:
		return "unknown"
	}
}

// GetRealUserHome returns the real user's home directory, even when running under sudo.
func GetRealUserHome() string {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		if u, err := user.Lookup(sudoUser); err == nil {
			return u.HomeDir
		}
	}
	home, _ := os.UserHomeDir()
	return home
}
