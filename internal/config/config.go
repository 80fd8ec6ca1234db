// Package config loads process configuration from a CUE file.
//
// Configuration is read once at startup and handed to the components that
// need it; nothing re-reads config per message.
package config

import (
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/stagehand-bot/stagehand/internal/db"
)

// Config is the full process configuration.
type Config struct {
	Database DatabaseConfig `json:"database"`
	Session  SessionConfig  `json:"session"`
	Server   ServerConfig   `json:"server"`
}

// DatabaseConfig selects and targets the persistence backend.
type DatabaseConfig struct {
	Engine      string `json:"engine"`
	Target      string `json:"target"`
	Mode        string `json:"mode"`
	PoolSize    int    `json:"poolSize"`
	MaxOverflow int    `json:"maxOverflow"`
}

// SessionConfig tunes the conversation engine.
type SessionConfig struct {
	TimeoutMinutes int `json:"timeoutMinutes"`
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Addr string `json:"addr"`
}

// Default returns the configuration used when no file is given: an embedded
// sqlite database next to the process, blocking mode, 30-minute idle
// timeout.
func Default() Config {
	return Config{
		Database: DatabaseConfig{
			Engine:      string(db.EngineSQLite),
			Target:      "stagehand.db",
			Mode:        string(db.ModeBlocking),
			PoolSize:    db.DefaultPoolSize,
			MaxOverflow: db.DefaultMaxOverflow,
		},
		Session: SessionConfig{TimeoutMinutes: 30},
		Server:  ServerConfig{Addr: ":8080"},
	}
}

// Load reads and evaluates a CUE config file. Fields absent from the file
// keep their Default values; an unreadable or invalid file is an error.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cctx := cuecontext.New()
	value := cctx.CompileBytes(data, cue.Filename(path))
	if err := value.Err(); err != nil {
		return Config{}, fmt.Errorf("compile config %s: %w", path, err)
	}

	cfg := Default()
	if err := value.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Session.TimeoutMinutes <= 0 {
		return fmt.Errorf("config: session.timeoutMinutes must be positive, got %d", c.Session.TimeoutMinutes)
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("config: server.addr must not be empty")
	}
	return nil
}

// DB converts the database section into the factory's Config. Engine and
// mode validity is the factory's concern.
func (c Config) DB() db.Config {
	return db.Config{
		Engine:      db.Engine(c.Database.Engine),
		Target:      c.Database.Target,
		Mode:        db.Mode(c.Database.Mode),
		PoolSize:    c.Database.PoolSize,
		MaxOverflow: c.Database.MaxOverflow,
	}
}

// IdleTimeout returns the session timeout as a duration.
func (c Config) IdleTimeout() time.Duration {
	return time.Duration(c.Session.TimeoutMinutes) * time.Minute
}
