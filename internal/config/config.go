package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ErrInvalid marks configuration validation failures.
var ErrInvalid = errors.New("invalid configuration")

const (
	defaultDomain       = "sms.voipportal.com.au"
	defaultMaxBodyBytes = 64 << 10
	defaultCacheSize    = 1024
)

func checkFilePermissions(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %04o; should be 0600", path, perm)
	}
	return nil
}

type Config struct {
	Gateway  GatewayConfig  `mapstructure:"gateway" yaml:"gateway"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
	Outbound OutboundConfig `mapstructure:"outbound" yaml:"outbound"`
	SMTP     SMTPConfig     `mapstructure:"smtp" yaml:"smtp,omitempty"`
	Inbox    InboxConfig    `mapstructure:"inbox" yaml:"inbox,omitempty"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

type GatewayConfig struct {
	Domain string `mapstructure:"domain" yaml:"domain"`
}

// StoreConfig selects the record store. Driver is "sqlite" or "pgx"; with
// Migrate off the schema is assumed to exist already.
type StoreConfig struct {
	Driver  string `mapstructure:"driver" yaml:"driver"`
	DSN     string `mapstructure:"dsn" yaml:"dsn"`
	Migrate bool   `mapstructure:"migrate" yaml:"migrate"`
}

type OutboundConfig struct {
	MaxBodyBytes int `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	CacheSize    int `mapstructure:"cache_size" yaml:"cache_size"`
}

// SMTPConfig holds the relay settings used by `smsgw relay`
type SMTPConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	UseTLS   bool   `mapstructure:"use_tls" yaml:"use_tls"`
	From     string `mapstructure:"from" yaml:"from"`
}

// InboxConfig holds IMAP settings for inspecting gateway mail
type InboxConfig struct {
	Server   string `mapstructure:"server" yaml:"server"`     // e.g., "imap.gmail.com"
	Port     int    `mapstructure:"port" yaml:"port"`         // e.g., 993
	Email    string `mapstructure:"email" yaml:"email"`       // Mailbox receiving gateway mail
	Password string `mapstructure:"password" yaml:"password"` // App password (not main password)
	Folder   string `mapstructure:"folder" yaml:"folder"`     // Folder to read (default: "INBOX")
}

type ServerConfig struct {
	Addr          string `mapstructure:"addr" yaml:"addr"`
	RateLimit     int    `mapstructure:"rate_limit" yaml:"rate_limit"`           // Requests per client per window
	RateWindowSec int    `mapstructure:"rate_window_sec" yaml:"rate_window_sec"` // Window length
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"` // "console" or "json"
}

func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".smsgw")
}

func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

// DefaultDataPath is where the SQLite store lives unless store.dsn says otherwise.
func DefaultDataPath() string {
	return filepath.Join(configDir(), "smsgw.db")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("gateway.domain", defaultDomain)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", DefaultDataPath())
	v.SetDefault("store.migrate", true)
	v.SetDefault("outbound.max_body_bytes", defaultMaxBodyBytes)
	v.SetDefault("outbound.cache_size", defaultCacheSize)
	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 465)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.use_tls", true)
	v.SetDefault("smtp.from", "")
	v.SetDefault("inbox.server", "")
	v.SetDefault("inbox.port", 993)
	v.SetDefault("inbox.email", "")
	v.SetDefault("inbox.password", "")
	v.SetDefault("inbox.folder", "INBOX")
	v.SetDefault("server.addr", "127.0.0.1:8080")
	v.SetDefault("server.rate_limit", 120)
	v.SetDefault("server.rate_window_sec", 60)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Load reads the YAML file at path, when it exists, and applies SMSGW_*
// environment overrides (SMSGW_GATEWAY_DOMAIN, SMSGW_STORE_DSN, ...) on
// top of the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	v.SetEnvPrefix("SMSGW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		_, err := os.Stat(path)
		switch {
		case err == nil:
			if err := checkFilePermissions(path); err != nil {
				fmt.Fprintf(os.Stderr, "WARNING: %v\n", err)
			}
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.Gateway.Domain = strings.TrimPrefix(strings.TrimSpace(cfg.Gateway.Domain), "@")
	return &cfg, nil
}

func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

func (c *Config) Validate() error {
	d := c.Gateway.Domain
	if d == "" {
		return invalid("gateway: domain is required")
	}
	if strings.ContainsAny(d, "@ \t") || !strings.Contains(d, ".") {
		return invalid("gateway: %q is not a mail domain", d)
	}
	switch c.Store.Driver {
	case "sqlite", "pgx":
	default:
		return invalid("store: unknown driver %q (sqlite or pgx)", c.Store.Driver)
	}
	if c.Store.DSN == "" {
		return invalid("store: dsn is required")
	}
	if c.Outbound.MaxBodyBytes <= 0 {
		return invalid("outbound: max_body_bytes must be positive")
	}
	if c.Outbound.CacheSize < 0 {
		return invalid("outbound: cache_size must not be negative")
	}
	switch c.Log.Format {
	case "", "console", "json":
	default:
		return invalid("log: unknown format %q (console or json)", c.Log.Format)
	}
	return nil
}

// ValidateSMTP validates relay settings (only called by commands that send mail)
func (c *Config) ValidateSMTP() error {
	if c.SMTP.Host == "" {
		return invalid("smtp: host is required")
	}
	if c.SMTP.Port == 0 {
		return invalid("smtp: port is required")
	}
	if c.SMTP.From == "" {
		return invalid("smtp: from address is required")
	}
	if c.SMTP.Username != "" && !c.SMTP.UseTLS {
		return invalid("smtp: auth requires use_tls")
	}
	return nil
}

// ValidateInbox validates inbox configuration (only called when inbox inspection is used)
func (c *Config) ValidateInbox() error {
	if c.Inbox.Email == "" {
		return invalid("inbox: email address is required")
	}
	if c.Inbox.Password == "" {
		return invalid("inbox: password (app password) is required")
	}
	if c.Inbox.Server == "" {
		return invalid("inbox: IMAP server is required")
	}
	if c.Inbox.Port == 0 {
		return invalid("inbox: IMAP port is required")
	}
	return nil
}
