package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultConfigPath      = "config.toml"
	DefaultHTTPAddr        = ":8080"
	DefaultDriver          = DriverSQLite
	DefaultSQLitePath      = "materials.db"
	DefaultPGHost          = "127.0.0.1"
	DefaultPGPort          = 5432
	DefaultPGUser          = "postgres"
	DefaultPGDatabase      = "catalogbot"
	DefaultPGSSLMode       = "disable"
	DefaultPGMaxConns      = 8
	DefaultPollTimeout     = 30
	DefaultSweepSchedule   = "@every 1m"
	DefaultDispatchWorkers = 4
	DefaultDispatchQueue   = 64

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// ErrBotTokenRequired is returned by RequireBotToken when no credential is configured.
var ErrBotTokenRequired = errors.New("telegram bot token is required (set telegram.bot_token or BOT_TOKEN)")

type Config struct {
	Log          LogConfig          `toml:"log"`
	Telegram     TelegramConfig     `toml:"telegram"`
	Database     DatabaseConfig     `toml:"database"`
	Server       ServerConfig       `toml:"server"`
	Conversation ConversationConfig `toml:"conversation"`
	Dispatch     DispatchConfig     `toml:"dispatch"`
}

type LogConfig struct {
	Level  string `toml:"level" validate:"oneof=debug info warn error"`
	Format string `toml:"format" validate:"oneof=text json"`
}

type TelegramConfig struct {
	BotToken    string `toml:"bot_token"`
	OwnerID     int64  `toml:"owner_id" validate:"gte=0"`
	PollTimeout int    `toml:"poll_timeout" validate:"gte=0"`
}

type DatabaseConfig struct {
	Driver     string         `toml:"driver" validate:"oneof=postgres sqlite"`
	SQLitePath string         `toml:"sqlite_path" validate:"required_if=Driver sqlite"`
	Postgres   PostgresConfig `toml:"postgres"`
}

type PostgresConfig struct {
	DSN      string `toml:"dsn"`
	Host     string `toml:"host"`
	Port     int    `toml:"port" validate:"gte=0,lte=65535"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
	MaxConns int32  `toml:"max_conns" validate:"gte=0"`
}

// ConnString returns the configured DSN, or builds a postgres:// URL from the discrete fields.
func (c PostgresConfig) ConnString() string {
	if dsn := strings.TrimSpace(c.DSN); dsn != "" {
		return dsn
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Database,
	}
	if c.Password != "" {
		u.User = url.UserPassword(c.User, c.Password)
	} else if c.User != "" {
		u.User = url.User(c.User)
	}
	if c.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{c.SSLMode}}.Encode()
	}
	return u.String()
}

type ServerConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

type ConversationConfig struct {
	// IdleTimeout is a Go duration string; "0" keeps stalled sessions forever.
	IdleTimeout   string `toml:"idle_timeout"`
	SweepSchedule string `toml:"sweep_schedule"`
}

// IdleTimeoutDuration parses IdleTimeout. An empty value means no timeout.
func (c ConversationConfig) IdleTimeoutDuration() (time.Duration, error) {
	raw := strings.TrimSpace(c.IdleTimeout)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("conversation.idle_timeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("conversation.idle_timeout must not be negative")
	}
	return d, nil
}

type DispatchConfig struct {
	Workers   int `toml:"workers" validate:"gte=1"`
	QueueSize int `toml:"queue_size" validate:"gte=1"`
}

func defaults() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Telegram: TelegramConfig{
			PollTimeout: DefaultPollTimeout,
		},
		Database: DatabaseConfig{
			Driver:     DefaultDriver,
			SQLitePath: DefaultSQLitePath,
			Postgres: PostgresConfig{
				Host:     DefaultPGHost,
				Port:     DefaultPGPort,
				User:     DefaultPGUser,
				Database: DefaultPGDatabase,
				SSLMode:  DefaultPGSSLMode,
				MaxConns: DefaultPGMaxConns,
			},
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Conversation: ConversationConfig{
			IdleTimeout:   "0",
			SweepSchedule: DefaultSweepSchedule,
		},
		Dispatch: DispatchConfig{
			Workers:   DefaultDispatchWorkers,
			QueueSize: DefaultDispatchQueue,
		},
	}
}

// Load reads the TOML file at path (a missing file yields defaults), applies
// environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return cfg, err
		}
	} else if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks field constraints declared in struct tags.
func Validate(cfg Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := cfg.Conversation.IdleTimeoutDuration(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// RequireBotToken is checked only by commands that talk to Telegram.
func (c Config) RequireBotToken() error {
	if strings.TrimSpace(c.Telegram.BotToken) == "" {
		return ErrBotTokenRequired
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	if v, ok := lookup("BOT_TOKEN"); ok && strings.TrimSpace(v) != "" {
		cfg.Telegram.BotToken = strings.TrimSpace(v)
	}
	if v, ok := lookup("OWNER_ID"); ok && strings.TrimSpace(v) != "" {
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("OWNER_ID: %w", err)
		}
		cfg.Telegram.OwnerID = id
	}
	if v, ok := lookup("DATABASE_DRIVER"); ok && strings.TrimSpace(v) != "" {
		cfg.Database.Driver = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := lookup("DATABASE_DSN"); ok && strings.TrimSpace(v) != "" {
		cfg.Database.Postgres.DSN = strings.TrimSpace(v)
	}
	if v, ok := lookup("SQLITE_PATH"); ok && strings.TrimSpace(v) != "" {
		cfg.Database.SQLitePath = strings.TrimSpace(v)
	}
	if v, ok := lookup("LOG_LEVEL"); ok && strings.TrimSpace(v) != "" {
		cfg.Log.Level = strings.ToLower(strings.TrimSpace(v))
	}
	return nil
}
