package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "sms.voipportal.com.au", cfg.Gateway.Domain)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.True(t, cfg.Store.Migrate)
	assert.Equal(t, 64<<10, cfg.Outbound.MaxBodyBytes)
	assert.Equal(t, "INBOX", cfg.Inbox.Folder)
	assert.NoError(t, cfg.Validate())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Gateway.Domain = "sms.example.net"
	cfg.Store.DSN = "file:/tmp/records.db"
	cfg.SMTP = SMTPConfig{Host: "smtp.example.net", Port: 465, From: "desk@example.net", UseTLS: true}
	require.NoError(t, Save(path, cfg))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestEnvironmentOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gateway:\n  domain: sms.example.net\nstore:\n  driver: sqlite\n"), 0600))

	t.Setenv("SMSGW_GATEWAY_DOMAIN", "@SMS.Other.Example")
	t.Setenv("SMSGW_STORE_DRIVER", "pgx")
	t.Setenv("SMSGW_OUTBOUND_MAX_BODY_BYTES", "1024")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "SMS.Other.Example", cfg.Gateway.Domain)
	assert.Equal(t, "pgx", cfg.Store.Driver)
	assert.Equal(t, 1024, cfg.Outbound.MaxBodyBytes)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gateway: [unterminated\n"), 0600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"empty domain", func(c *Config) { c.Gateway.Domain = "" }, true},
		{"address instead of domain", func(c *Config) { c.Gateway.Domain = "me@sms.example.net" }, true},
		{"bare host", func(c *Config) { c.Gateway.Domain = "localhost" }, true},
		{"unknown driver", func(c *Config) { c.Store.Driver = "mysql" }, true},
		{"postgres", func(c *Config) { c.Store.Driver = "pgx"; c.Store.DSN = "postgres://localhost/helpdesk" }, false},
		{"empty dsn", func(c *Config) { c.Store.DSN = "" }, true},
		{"zero body bound", func(c *Config) { c.Outbound.MaxBodyBytes = 0 }, true},
		{"negative cache", func(c *Config) { c.Outbound.CacheSize = -1 }, true},
		{"json logs", func(c *Config) { c.Log.Format = "json" }, false},
		{"xml logs", func(c *Config) { c.Log.Format = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalid))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateSMTPAndInbox(t *testing.T) {
	cfg := Default()
	assert.ErrorIs(t, cfg.ValidateSMTP(), ErrInvalid)
	assert.ErrorIs(t, cfg.ValidateInbox(), ErrInvalid)

	cfg.SMTP = SMTPConfig{Host: "smtp.example.net", Port: 465, From: "desk@example.net", UseTLS: true, Username: "desk"}
	assert.NoError(t, cfg.ValidateSMTP())
	cfg.SMTP.UseTLS = false
	assert.ErrorIs(t, cfg.ValidateSMTP(), ErrInvalid)

	cfg.Inbox = InboxConfig{Server: "imap.example.net", Port: 993, Email: "desk@example.net", Password: "secret", Folder: "INBOX"}
	assert.NoError(t, cfg.ValidateInbox())
}

func TestInitLogger(t *testing.T) {
	tests := []struct {
		level  string
		format string
		want   zapcore.Level
	}{
		{"debug", "console", zapcore.DebugLevel},
		{"WARNING", "json", zapcore.WarnLevel},
		{"error", "", zapcore.ErrorLevel},
		{"bogus", "console", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		logger, err := InitLogger(tt.level, tt.format)
		require.NoError(t, err)
		assert.True(t, logger.Core().Enabled(tt.want), tt.level)
		if tt.want > zapcore.DebugLevel {
			assert.False(t, logger.Core().Enabled(tt.want-1), tt.level)
		}
	}
	Cleanup()
}
