package profile

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.ridechat, or $RIDECHAT_HOME when set.
func BaseDir() string {
	if dir := os.Getenv("RIDECHAT_HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".ridechat")
}

// Dir returns the profile-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "profiles", name)
}

// SocketPath returns the UDS socket path for a profile.
func SocketPath(name string) string {
	return filepath.Join(Dir(name), "daemon.sock")
}

// LockPath returns the lock file path for a profile.
func LockPath(name string) string {
	return filepath.Join(Dir(name), "LOCK")
}

// TokenPath returns the default access token file for a profile.
func TokenPath(name string) string {
	return filepath.Join(Dir(name), "token")
}

// VoiceDir returns where recorded voice notes are kept.
func VoiceDir(name string) string {
	return filepath.Join(Dir(name), "voice")
}

// LogDir returns the log directory for a profile.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the daemon log file path.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), "ridechatd.log")
}

// SharedDBPath is the default SQLite store. It is shared by every profile
// on the machine so two local daemons can talk to each other.
func SharedDBPath() string {
	return filepath.Join(BaseDir(), "shared.db")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the profile directory tree with proper permissions.
func EnsureDir(name string) error {
	dirs := []string{
		Dir(name),
		LogDir(name),
		VoiceDir(name),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
