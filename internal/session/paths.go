package session

import (
	"os"
	"path/filepath"

	"github.com/matheus3301/quickchat/internal/config"
)

// HomeEnv overrides the base directory.
const HomeEnv = "QUICKCHAT_HOME"

// BaseDir returns $QUICKCHAT_HOME, or ~/.quickchat.
func BaseDir() string {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".quickchat")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// Dir returns the directory of a client profile.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "profiles", name)
}

// CredentialsPath returns where a profile's token is kept.
func CredentialsPath(name string) string {
	return filepath.Join(Dir(name), "credentials.toml")
}

// ServerDir returns the chatd data directory, honoring server.data_dir.
func ServerDir(cfg *config.Config) string {
	if cfg != nil && cfg.Server.DataDir != "" {
		return cfg.Server.DataDir
	}
	return filepath.Join(BaseDir(), "server")
}

// SocketPath returns the chatd Unix socket inside a data directory.
func SocketPath(dataDir string) string {
	return filepath.Join(dataDir, "chatd.sock")
}

// DBPath returns the chatd database inside a data directory.
func DBPath(dataDir string) string {
	return filepath.Join(dataDir, "quickchat.db")
}

// LogDir returns the log directory inside a data directory.
func LogDir(dataDir string) string {
	return filepath.Join(dataDir, "logs")
}

// LogPath returns the chatd log file path.
func LogPath(dataDir string) string {
	return filepath.Join(LogDir(dataDir), "chatd.log")
}

// ClientTarget returns the gRPC target chatctl dials: client.address, or the
// local chatd socket.
func ClientTarget(cfg *config.Config) string {
	if cfg != nil && cfg.Client.Address != "" {
		return cfg.Client.Address
	}
	return "unix://" + SocketPath(ServerDir(cfg))
}

// EnsureServerDir creates the data directory tree with proper permissions.
func EnsureServerDir(dataDir string) error {
	for _, d := range []string{dataDir, LogDir(dataDir)} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
