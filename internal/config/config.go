package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v6"
	"go.uber.org/zap/zapcore"

	dbconfig "chathub/pkg/database"
)

// EnvPrefix namespaces every environment variable read by LoadFromEnv.
const EnvPrefix = "CHATHUB_"

// FileEnvVar names the optional JSON configuration file.
const FileEnvVar = EnvPrefix + "CONFIG_FILE"

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings coordinator
// Clean separation between configuration management and business logic
type Config struct {
	Database  *DatabaseConfig  `json:"database" envPrefix:"DATABASE_"`
	HTTP      *HTTPConfig      `json:"http" envPrefix:"HTTP_"`
	WebSocket *WebSocketConfig `json:"websocket" envPrefix:"WEBSOCKET_"`
	Auth      *AuthConfig      `json:"auth" envPrefix:"AUTH_"`
	Files     *FilesConfig     `json:"files" envPrefix:"FILES_"`
	Log       *LogConfig       `json:"log" envPrefix:"LOG_"`
}

// DatabaseConfig locates the two store files.
type DatabaseConfig struct {
	IdentityPath   string `json:"identity_path" env:"IDENTITY_PATH"`
	MessagesPath   string `json:"messages_path" env:"MESSAGES_PATH"`
	MaxConnections int    `json:"max_connections" env:"MAX_CONNECTIONS"`
}

// HTTPConfig covers the listener shared by the API and the socket endpoint.
type HTTPConfig struct {
	Host            string   `json:"host" env:"HOST"`
	Port            int      `json:"port" env:"PORT"`
	ReadTimeout     Duration `json:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    Duration `json:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout Duration `json:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	AllowedOrigins  []string `json:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
}

// WebSocketConfig tunes the socket lifecycle and per-connection limits.
// FUNCTIONAL DISCOVERY: EventsPerSecond of 0 disables the rate limiter
type WebSocketConfig struct {
	JoinTimeout     Duration `json:"join_timeout" env:"JOIN_TIMEOUT"`
	PingInterval    Duration `json:"ping_interval" env:"PING_INTERVAL"`
	PongWait        Duration `json:"pong_wait" env:"PONG_WAIT"`
	EventTimeout    Duration `json:"event_timeout" env:"EVENT_TIMEOUT"`
	MaxMessageBytes int64    `json:"max_message_bytes" env:"MAX_MESSAGE_BYTES"`
	EventsPerSecond int      `json:"events_per_second" env:"EVENTS_PER_SECOND"`
	HistoryLimit    int      `json:"history_limit" env:"HISTORY_LIMIT"`
	JanitorInterval Duration `json:"janitor_interval" env:"JANITOR_INTERVAL"`
}

// AuthConfig holds token secrets and password hashing cost.
type AuthConfig struct {
	AccessSecret  string   `json:"access_secret" env:"ACCESS_SECRET"`
	RefreshSecret string   `json:"refresh_secret" env:"REFRESH_SECRET"`
	AccessTTL     Duration `json:"access_ttl" env:"ACCESS_TTL"`
	RefreshTTL    Duration `json:"refresh_ttl" env:"REFRESH_TTL"`
	Issuer        string   `json:"issuer" env:"ISSUER"`
	BcryptCost    int      `json:"bcrypt_cost" env:"BCRYPT_COST"`
}

// FilesConfig locates the attachment directory.
type FilesConfig struct {
	Dir      string `json:"dir" env:"DIR"`
	MaxBytes int64  `json:"max_bytes" env:"MAX_BYTES"`
}

// LogConfig selects the zap preset and level.
type LogConfig struct {
	Level       string `json:"level" env:"LEVEL"`
	Development bool   `json:"development" env:"DEVELOPMENT"`
}

// Duration reads "30s" style strings from both JSON files and environment variables.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	return d.UnmarshalText([]byte(s))
}

func seconds(n int) Duration { return Duration{time.Duration(n) * time.Second} }

// DefaultConfig returns settings suitable for a single-node deployment.
// FUNCTIONAL DISCOVERY: secrets have no default and must be provided
func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			IdentityPath:   "./chathub_identity.db",
			MessagesPath:   "./chathub_messages.db",
			MaxConnections: 10,
		},
		HTTP: &HTTPConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     seconds(30),
			WriteTimeout:    seconds(30),
			ShutdownTimeout: seconds(10),
		},
		WebSocket: &WebSocketConfig{
			JoinTimeout:     seconds(10),
			PingInterval:    seconds(30),
			PongWait:        seconds(60),
			EventTimeout:    seconds(15),
			MaxMessageBytes: 16 << 20,
			EventsPerSecond: 20,
			HistoryLimit:    50,
			JanitorInterval: seconds(60),
		},
		Auth: &AuthConfig{
			AccessTTL:  Duration{15 * time.Minute},
			RefreshTTL: Duration{7 * 24 * time.Hour},
			Issuer:     "chathub",
			BcryptCost: 12,
		},
		Files: &FilesConfig{
			Dir:      "./uploads",
			MaxBytes: 10 << 20,
		},
		Log: &LogConfig{
			Level: "info",
		},
	}
}

// Validate reports the first unusable setting.
func (c *Config) Validate() error {
	if c.Database == nil || c.HTTP == nil || c.WebSocket == nil || c.Auth == nil || c.Files == nil || c.Log == nil {
		return errors.New("every configuration section is required")
	}

	if c.Database.IdentityPath == "" || c.Database.MessagesPath == "" {
		return errors.New("database paths cannot be empty")
	}
	if c.Database.IdentityPath == c.Database.MessagesPath {
		return errors.New("identity and message stores must use different files")
	}
	if c.Database.MaxConnections <= 0 {
		return errors.New("database max connections must be positive")
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return errors.New("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout.Duration <= 0 || c.HTTP.WriteTimeout.Duration <= 0 || c.HTTP.ShutdownTimeout.Duration <= 0 {
		return errors.New("HTTP timeouts must be positive")
	}

	ws := c.WebSocket
	if ws.JoinTimeout.Duration <= 0 || ws.PingInterval.Duration <= 0 || ws.EventTimeout.Duration <= 0 || ws.JanitorInterval.Duration <= 0 {
		return errors.New("WebSocket intervals must be positive")
	}
	if ws.PongWait.Duration <= ws.PingInterval.Duration {
		return errors.New("WebSocket pong wait must exceed the ping interval")
	}
	if ws.MaxMessageBytes <= 0 {
		return errors.New("WebSocket max message size must be positive")
	}
	if ws.EventsPerSecond < 0 {
		return errors.New("WebSocket events per second cannot be negative")
	}
	if ws.HistoryLimit <= 0 || ws.HistoryLimit > 200 {
		return errors.New("history limit must be between 1 and 200")
	}

	if len(c.Auth.AccessSecret) < 32 || len(c.Auth.RefreshSecret) < 32 {
		return errors.New("auth secrets must be at least 32 characters")
	}
	if c.Auth.AccessSecret == c.Auth.RefreshSecret {
		return errors.New("access and refresh secrets must differ")
	}
	if c.Auth.AccessTTL.Duration <= 0 || c.Auth.RefreshTTL.Duration <= 0 {
		return errors.New("token lifetimes must be positive")
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		return errors.New("bcrypt cost must be between 4 and 31")
	}

	if c.Files.Dir == "" {
		return errors.New("files directory cannot be empty")
	}
	// base64 frames carry a third more than the decoded file
	if c.Files.MaxBytes <= 0 || c.Files.MaxBytes*4/3 > ws.MaxMessageBytes {
		return errors.New("files max bytes must be positive and fit in one WebSocket frame")
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	return nil
}

// Addr is the listen address of the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

// IdentityStore returns the store config of the identity database.
func (c *Config) IdentityStore() *dbconfig.Config {
	cfg := dbconfig.DefaultConfig(c.Database.IdentityPath)
	cfg.MaxConnections = c.Database.MaxConnections
	return cfg
}

// MessageStore returns the store config of the message database.
func (c *Config) MessageStore() *dbconfig.Config {
	cfg := dbconfig.DefaultConfig(c.Database.MessagesPath)
	cfg.MaxConnections = c.Database.MaxConnections
	return cfg
}

// LoadFromEnv overlays CHATHUB_* environment variables on the defaults.
func LoadFromEnv() (*Config, error) {
	cfg := DefaultConfig()
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if err := env.Parse(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	return nil
}

// LoadFromFile overlays a JSON file on the defaults.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := applyFile(cfg, path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFile decodes path onto cfg; keys missing from the file keep their value.
func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Load builds the runtime configuration.
// FUNCTIONAL DISCOVERY: Configuration precedence: file > environment > defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if path := os.Getenv(FileEnvVar); path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
