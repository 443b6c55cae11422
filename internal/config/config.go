package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dmitrijs2005/keeperbridge/internal/bridge"
)

var ErrSharedSecretMissing = errors.New("shared secret is not configured")

// Config holds runtime settings for the bridge.
type Config struct {
	ListenAddr       string        `env:"LISTEN_ADDR"`
	PairingDBPath    string        `env:"PAIRING_DB_PATH"`
	SharedSecret     string        `env:"SHARED_SECRET"`
	SharedSecretFile string        `env:"SHARED_SECRET_FILE"`
	VaultFile        string        `env:"VAULT_FILE"`
	ConnTimeout      time.Duration `env:"CONN_TIMEOUT"`
	MaxSessions      int           `env:"MAX_SESSIONS"`
	OTPMargin        time.Duration `env:"OTP_MARGIN"`
	LogLevel         string        `env:"LOG_LEVEL"`
	LogFormat        string        `env:"LOG_FORMAT"`
}

// LoadDefaults populates c with defaults. There is no default secret.
func (c *Config) LoadDefaults() {
	c.ListenAddr = bridge.DefaultAddr
	c.PairingDBPath = "keeperbridge.db"
	c.VaultFile = "vault.yaml"
	c.ConnTimeout = bridge.DefaultConnTimeout
	c.MaxSessions = bridge.DefaultMaxSessions
	c.OTPMargin = bridge.DefaultOTPMargin
	c.LogLevel = "info"
	c.LogFormat = "json"
}

// Load builds a Config from defaults, the config file, the environment and
// args (usually os.Args[1:]), then resolves the shared secret file.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := parseEnv(cfg); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.ResolveSharedSecret(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ResolveSharedSecret replaces SharedSecret with the contents of
// SharedSecretFile when the latter is set. Surrounding whitespace is
// trimmed.
func (c *Config) ResolveSharedSecret() error {
	if c.SharedSecretFile == "" {
		return nil
	}
	b, err := os.ReadFile(c.SharedSecretFile)
	if err != nil {
		return fmt.Errorf("read shared secret: %w", err)
	}
	c.SharedSecret = strings.TrimSpace(string(b))
	return nil
}

func (c *Config) Validate() error {
	if c.SharedSecret == "" {
		return ErrSharedSecretMissing
	}
	if err := bridge.CheckLoopback(c.ListenAddr); err != nil {
		return err
	}
	if c.PairingDBPath == "" {
		return errors.New("pairing database path is empty")
	}
	if c.ConnTimeout <= 0 {
		return fmt.Errorf("conn timeout must be positive, got %v", c.ConnTimeout)
	}
	if c.MaxSessions <= 0 {
		return fmt.Errorf("max sessions must be positive, got %d", c.MaxSessions)
	}
	if c.OTPMargin <= 0 {
		return fmt.Errorf("otp margin must be positive, got %v", c.OTPMargin)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	return nil
}
