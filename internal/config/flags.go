package config

import (
	"flag"
	"fmt"
	"io"

	"github.com/dmitrijs2005/keeperbridge/internal/flagx"
)

var knownFlags = []string{"-a", "-d", "-s", "-f", "-v", "-t", "-m", "-o", "-l", "-log-format", "--log-format"}

// parseFlags overlays cfg with command-line flags. Flags owned by other
// parsers (such as -c) are filtered out first.
func parseFlags(cfg *Config, args []string) error {
	fs := flag.NewFlagSet("keeperbridge", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ListenAddr, "a", cfg.ListenAddr, "listen address (loopback only)")
	fs.StringVar(&cfg.PairingDBPath, "d", cfg.PairingDBPath, "pairing database path")
	fs.StringVar(&cfg.SharedSecret, "s", cfg.SharedSecret, "shared secret")
	fs.StringVar(&cfg.SharedSecretFile, "f", cfg.SharedSecretFile, "file holding the shared secret")
	fs.StringVar(&cfg.VaultFile, "v", cfg.VaultFile, "credential export (YAML)")
	fs.DurationVar(&cfg.ConnTimeout, "t", cfg.ConnTimeout, "per-connection timeout")
	fs.IntVar(&cfg.MaxSessions, "m", cfg.MaxSessions, "maximum concurrent sessions")
	fs.DurationVar(&cfg.OTPMargin, "o", cfg.OTPMargin, "minimum remaining validity of a one-time code")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format (json or text)")

	if err := fs.Parse(flagx.FilterArgs(args, knownFlags)); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}
	return nil
}
