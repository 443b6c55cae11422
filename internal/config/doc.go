// Package config loads the bridge configuration.
//
// Sources, later ones override earlier ones:
//
//  1. Built-in defaults (LoadDefaults).
//  2. An optional JSON file named by -c or -config. Comments and trailing
//     commas are allowed.
//  3. KEEPERBRIDGE_* environment variables.
//  4. Command-line flags.
//
// Flags
//
//	-a string      listen address (loopback only)
//	-d string      pairing database path
//	-s string      shared secret
//	-f string      file holding the shared secret
//	-v string      credential export (YAML)
//	-t duration    per-connection timeout
//	-m int         maximum concurrent sessions
//	-o duration    minimum remaining validity of a one-time code
//	-l string      log level (debug, info, warn, error)
//	-log-format    json or text
//
// Example file:
//
//	{
//	  // only loopback addresses are accepted
//	  "listen_addr": "127.0.0.1:7654",
//	  "pairing_db_path": "/var/lib/keeperbridge/pairings.db",
//	  "shared_secret_file": "/etc/keeperbridge/secret",
//	  "conn_timeout": "5s",
//	}
package config
