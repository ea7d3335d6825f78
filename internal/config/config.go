// Package config provides Viper-based configuration loading for the coordination server.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// maxRoomCapacity is bounded by the number of distinct movement directions.
const maxRoomCapacity = 4

// GameConfig holds the fixed parameters of the shared grid game.
type GameConfig struct {
	// GridSize is the edge length of the square grid; coordinates lie in [0, GridSize-1].
	GridSize int `mapstructure:"grid_size"`
	// RoomCapacity is the number of members required to start a room.
	RoomCapacity int `mapstructure:"room_capacity"`
	// CountdownSeconds is the countdown announced to clients in countdown_start.
	CountdownSeconds int `mapstructure:"countdown_seconds"`
	// CountdownTick is the server-defined length of one countdown unit.
	CountdownTick time.Duration `mapstructure:"countdown_tick"`
	// MaxUsernameLength is the longest accepted username, in characters.
	MaxUsernameLength int `mapstructure:"max_username_length"`
	// MinStartDistance is the minimum Manhattan distance between start and target.
	MinStartDistance int `mapstructure:"min_start_distance"`
}

// CountdownDelay returns how long a room waits between countdown_start and game_start.
//
// Postcondition: Returns CountdownSeconds × CountdownTick.
func (g GameConfig) CountdownDelay() time.Duration {
	return time.Duration(g.CountdownSeconds) * g.CountdownTick
}

// ListenerConfig holds settings for the line-delimited JSON TCP listener.
type ListenerConfig struct {
	// Host is the bind address for the TCP listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the listener. Zero selects a random port.
	Port int `mapstructure:"port"`
	// WriteTimeout bounds a single socket write; a stalled peer is disconnected after it.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// MaxLineBytes is the longest accepted inbound line.
	MaxLineBytes int `mapstructure:"max_line_bytes"`
	// OutboxSize is the number of outbound messages queued per connection.
	OutboxSize int `mapstructure:"outbox_size"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (l ListenerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", l.Host, l.Port)
}

// WebSocketConfig holds settings for the optional WebSocket transport.
type WebSocketConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Path         string        `mapstructure:"path"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MaxLineBytes int           `mapstructure:"max_line_bytes"`
	OutboxSize   int           `mapstructure:"outbox_size"`
}

// Addr returns the "host:port" listen address.
func (w WebSocketConfig) Addr() string {
	return fmt.Sprintf("%s:%d", w.Host, w.Port)
}

// HealthConfig holds settings for the gRPC health service.
type HealthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// Addr returns the "host:port" gRPC address.
func (h HealthConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
	// File, when set, additionally writes logs to a rolling file.
	File string `mapstructure:"file"`
	// MaxSizeMB is the size at which the log file is rotated.
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of rotated files kept.
	MaxBackups int `mapstructure:"max_backups"`
	// MaxAgeDays is how long rotated files are kept.
	MaxAgeDays int `mapstructure:"max_age_days"`
}

// ResultsConfig holds settings for the per-username result log.
type ResultsConfig struct {
	// Dir is the directory holding one append-only log per username.
	Dir string `mapstructure:"dir"`
}

// DatabaseConfig holds PostgreSQL connection settings for the optional result repository.
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// Config is the top-level application configuration.
type Config struct {
	Game      GameConfig      `mapstructure:"game"`
	TCP       ListenerConfig  `mapstructure:"tcp"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Health    HealthConfig    `mapstructure:"health"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Results   ResultsConfig   `mapstructure:"results"`
	Database  DatabaseConfig  `mapstructure:"database"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	checks := []error{
		validateGame(c.Game),
		validateListener("tcp", c.TCP.Port, c.TCP.WriteTimeout, c.TCP.MaxLineBytes, c.TCP.OutboxSize),
		validateLogging(c.Logging),
		validateResults(c.Results),
	}
	if c.WebSocket.Enabled {
		checks = append(checks,
			validateListener("websocket", c.WebSocket.Port, c.WebSocket.WriteTimeout, c.WebSocket.MaxLineBytes, c.WebSocket.OutboxSize),
			validateWebSocketPath(c.WebSocket.Path),
		)
	}
	if c.Health.Enabled {
		checks = append(checks, validatePort("health.port", c.Health.Port))
	}
	if c.Database.Enabled {
		checks = append(checks, validateDatabase(c.Database))
	}

	for _, err := range checks {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateGame(g GameConfig) error {
	var errs []string
	if g.GridSize < 3 {
		errs = append(errs, fmt.Sprintf("game.grid_size must be >= 3, got %d", g.GridSize))
	}
	if g.RoomCapacity < 1 || g.RoomCapacity > maxRoomCapacity {
		errs = append(errs, fmt.Sprintf("game.room_capacity must be 1-%d, got %d", maxRoomCapacity, g.RoomCapacity))
	}
	if g.CountdownSeconds < 0 {
		errs = append(errs, fmt.Sprintf("game.countdown_seconds must be >= 0, got %d", g.CountdownSeconds))
	}
	if g.CountdownTick < 0 {
		errs = append(errs, "game.countdown_tick must not be negative")
	}
	if g.MaxUsernameLength < 1 {
		errs = append(errs, fmt.Sprintf("game.max_username_length must be >= 1, got %d", g.MaxUsernameLength))
	}
	if g.MinStartDistance < 1 {
		errs = append(errs, fmt.Sprintf("game.min_start_distance must be >= 1, got %d", g.MinStartDistance))
	}
	if g.GridSize >= 3 && g.MinStartDistance > 2*(g.GridSize-1) {
		errs = append(errs, fmt.Sprintf("game.min_start_distance %d is unreachable on a %dx%d grid", g.MinStartDistance, g.GridSize, g.GridSize))
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validatePort(key string, port int) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("%s must be 0-65535, got %d", key, port)
	}
	return nil
}

func validateListener(prefix string, port int, writeTimeout time.Duration, maxLine, outbox int) error {
	var errs []string
	if err := validatePort(prefix+".port", port); err != nil {
		errs = append(errs, err.Error())
	}
	if writeTimeout < 0 {
		errs = append(errs, prefix+".write_timeout must not be negative")
	}
	if maxLine < 64 {
		errs = append(errs, fmt.Sprintf("%s.max_line_bytes must be >= 64, got %d", prefix, maxLine))
	}
	if outbox < 1 {
		errs = append(errs, fmt.Sprintf("%s.outbox_size must be >= 1, got %d", prefix, outbox))
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateWebSocketPath(path string) error {
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("websocket.path must start with '/', got %q", path)
	}
	return nil
}

func validateResults(r ResultsConfig) error {
	if strings.TrimSpace(r.Dir) == "" {
		return errors.New("results.dir must not be empty")
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	if l.File != "" && l.MaxSizeMB < 1 {
		return fmt.Errorf("logging.max_size_mb must be >= 1 when logging.file is set, got %d", l.MaxSizeMB)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	return LoadFromViper(v)
}

// Default returns the built-in configuration with environment overrides applied
// and no file read. Useful when the server is started without a config file.
//
// Postcondition: Returns a valid Config or a non-nil error.
func Default() (Config, error) {
	return LoadFromViper(newViper())
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()

	// Environment variable overrides with HARMONY_ prefix
	v.SetEnvPrefix("HARMONY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("game.grid_size", 10)
	v.SetDefault("game.room_capacity", 4)
	v.SetDefault("game.countdown_seconds", 3)
	v.SetDefault("game.countdown_tick", "1s")
	v.SetDefault("game.max_username_length", 20)
	v.SetDefault("game.min_start_distance", 3)

	v.SetDefault("tcp.host", "0.0.0.0")
	v.SetDefault("tcp.port", 5555)
	v.SetDefault("tcp.write_timeout", "10s")
	v.SetDefault("tcp.max_line_bytes", 64*1024)
	v.SetDefault("tcp.outbox_size", 64)

	v.SetDefault("websocket.enabled", false)
	v.SetDefault("websocket.host", "0.0.0.0")
	v.SetDefault("websocket.port", 8080)
	v.SetDefault("websocket.path", "/ws")
	v.SetDefault("websocket.write_timeout", "10s")
	v.SetDefault("websocket.max_line_bytes", 64*1024)
	v.SetDefault("websocket.outbox_size", 64)

	v.SetDefault("health.enabled", false)
	v.SetDefault("health.host", "127.0.0.1")
	v.SetDefault("health.port", 50051)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 7)

	v.SetDefault("results.dir", "game_results")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "harmony")
	v.SetDefault("database.password", "harmony")
	v.SetDefault("database.name", "harmony")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
}
