package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"

	"github.com/dmitrijs2005/keeperbridge/internal/flagx"
	"github.com/dmitrijs2005/keeperbridge/internal/timex"
)

// jsonConfig is the file representation. Durations use timex.Duration so
// both "5s" and integer nanoseconds are accepted.
type jsonConfig struct {
	ListenAddr       string         `json:"listen_addr"`
	PairingDBPath    string         `json:"pairing_db_path"`
	SharedSecret     string         `json:"shared_secret"`
	SharedSecretFile string         `json:"shared_secret_file"`
	VaultFile        string         `json:"vault_file"`
	ConnTimeout      timex.Duration `json:"conn_timeout"`
	MaxSessions      int            `json:"max_sessions"`
	OTPMargin        timex.Duration `json:"otp_margin"`
	LogLevel         string         `json:"log_level"`
	LogFormat        string         `json:"log_format"`
}

// parseJson overlays cfg with the non-zero values of the file named by -c
// or -config. Without either flag it does nothing.
func parseJson(cfg *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var jc jsonConfig
	if err := json.Unmarshal(jsonc.ToJSON(data), &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setString(&cfg.ListenAddr, jc.ListenAddr)
	setString(&cfg.PairingDBPath, jc.PairingDBPath)
	setString(&cfg.SharedSecret, jc.SharedSecret)
	setString(&cfg.SharedSecretFile, jc.SharedSecretFile)
	setString(&cfg.VaultFile, jc.VaultFile)
	setString(&cfg.LogLevel, jc.LogLevel)
	setString(&cfg.LogFormat, jc.LogFormat)
	if jc.ConnTimeout.Duration != 0 {
		cfg.ConnTimeout = jc.ConnTimeout.Duration
	}
	if jc.OTPMargin.Duration != 0 {
		cfg.OTPMargin = jc.OTPMargin.Duration
	}
	if jc.MaxSessions != 0 {
		cfg.MaxSessions = jc.MaxSessions
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
