package ctl

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/keeperbridge/internal/filex"
)

var ErrNotPaired = errors.New("no pairing saved, run bridgectl pair first")

// state is what bridgectl remembers between runs.
type state struct {
	Addr         string `json:"addr"`
	PairingID    string `json:"pairing_id"`
	ServerIDHash string `json:"server_id_hash"`
}

func defaultStatePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "bridgectl.json"
	}
	return filepath.Join(dir, "keeperbridge", "bridgectl.json")
}

func loadState(path string) (*state, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotPaired
	}
	if err != nil {
		return nil, err
	}
	var s state
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if s.PairingID == "" {
		return nil, ErrNotPaired
	}
	return &s, nil
}

func saveState(path string, s *state) error {
	if err := filex.EnsureParentDir(path); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}
