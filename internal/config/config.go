package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Store backends.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config represents the global ~/.ridechat/config.toml.
type Config struct {
	DefaultProfile string  `toml:"default_profile"`
	Store          Store   `toml:"store"`
	Auth           Auth    `toml:"auth"`
	Chat           Chat    `toml:"chat"`
	Metrics        Metrics `toml:"metrics"`
}

// Store selects and configures the message store adapter.
type Store struct {
	Backend      string   `toml:"backend"`
	SQLitePath   string   `toml:"sqlite_path"`
	DatabaseURL  string   `toml:"database_url"`
	ApplySchema  bool     `toml:"apply_schema"`
	PollInterval Duration `toml:"poll_interval"`
}

type Auth struct {
	TokenFile string `toml:"token_file"`
	JWTSecret string `toml:"jwt_secret"`
	// Token is only ever set from the environment.
	Token string `toml:"-"`
}

// Chat tunes the reconciliation engine and coordinator.
type Chat struct {
	EchoWindow      Duration `toml:"echo_window"`
	DeliveredDelay  Duration `toml:"delivered_delay"`
	TypingTimeout   Duration `toml:"typing_timeout"`
	TypingInterval  Duration `toml:"typing_interval"`
	DropFailedSends bool     `toml:"drop_failed_sends"`
	ResubscribeMin  Duration `toml:"resubscribe_min"`
	ResubscribeMax  Duration `toml:"resubscribe_max"`
}

type Metrics struct {
	// Listen is a host:port for the /metrics endpoint. Empty disables it.
	Listen string `toml:"listen"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Store: Store{
			Backend:      BackendSQLite,
			PollInterval: Duration(250 * time.Millisecond),
		},
		Chat: Chat{
			EchoWindow:     Duration(15 * time.Second),
			DeliveredDelay: Duration(time.Second),
			TypingTimeout:  Duration(1500 * time.Millisecond),
			TypingInterval: Duration(2 * time.Second),
			ResubscribeMin: Duration(time.Second),
			ResubscribeMax: Duration(30 * time.Second),
		},
	}
}

// Load reads config from the given path over Default. Returns error if file missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault is Load, falling back to Default when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	return cfg, err
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendSQLite:
	case BackendPostgres:
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("store.database_url is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown store.backend %q", c.Store.Backend)
	}
	if c.Chat.ResubscribeMin.D() <= 0 || c.Chat.ResubscribeMax.D() < c.Chat.ResubscribeMin.D() {
		return fmt.Errorf("chat.resubscribe_min must be positive and not above resubscribe_max")
	}
	if c.Store.PollInterval.D() <= 0 {
		return fmt.Errorf("store.poll_interval must be positive")
	}
	return nil
}

// ApplyEnv overlays environment settings. A .env file in the working
// directory is loaded first; a missing file is ignored.
func (c *Config) ApplyEnv() {
	_ = godotenv.Load(".env")

	if v := os.Getenv("RIDECHAT_STORE_BACKEND"); v != "" {
		c.Store.Backend = v
	}
	if v := os.Getenv("RIDECHAT_DATABASE_URL"); v != "" {
		c.Store.DatabaseURL = v
	}
	if v := os.Getenv("RIDECHAT_ACCESS_TOKEN"); v != "" {
		c.Auth.Token = v
	}
	if v := os.Getenv("RIDECHAT_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
