// Package app wires configuration, storage and the bridge server together
// and runs them until a termination signal arrives.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/keeperbridge/internal/bridge"
	"github.com/dmitrijs2005/keeperbridge/internal/config"
	"github.com/dmitrijs2005/keeperbridge/internal/cryptox"
	"github.com/dmitrijs2005/keeperbridge/internal/filex"
	"github.com/dmitrijs2005/keeperbridge/internal/logging"
	"github.com/dmitrijs2005/keeperbridge/internal/pairing"
	"github.com/dmitrijs2005/keeperbridge/internal/vault"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	pairings *pairing.SQLiteStore
	vault    *vault.FileStore
	server   *bridge.Server
}

// NewApp validates cfg, opens the pairing store and builds the server.
// Logs go to w.
func NewApp(ctx context.Context, cfg *config.Config, w io.Writer) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger, err := logging.New(cfg.LogFormat, cfg.LogLevel, w)
	if err != nil {
		return nil, err
	}

	if err := filex.EnsureParentDir(cfg.PairingDBPath); err != nil {
		return nil, err
	}
	store, err := pairing.Open(ctx, cfg.PairingDBPath)
	if err != nil {
		return nil, fmt.Errorf("pairing store init error: %w", err)
	}

	v := vault.NewFileStore(cfg.VaultFile)
	srv, err := newServer(ctx, cfg, store, v, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &App{config: cfg, logger: logger, pairings: store, vault: v, server: srv}, nil
}

func newServer(ctx context.Context, cfg *config.Config, store *pairing.SQLiteStore, v vault.Store, l logging.Logger) (*bridge.Server, error) {
	serverKey, err := store.ServerKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("server key: %w", err)
	}
	serverID, err := cryptox.ServerIDHash(serverKey)
	if err != nil {
		return nil, err
	}

	h, err := bridge.NewHandler(store, v, []byte(cfg.SharedSecret), serverID, l,
		bridge.WithOTPMargin(cfg.OTPMargin))
	if err != nil {
		return nil, err
	}

	return bridge.NewServer(cfg.ListenAddr, h, l,
		bridge.WithConnTimeout(cfg.ConnTimeout),
		bridge.WithMaxSessions(int64(cfg.MaxSessions)))
}

// initSignalHandler stops the app on SIGINT, SIGTERM and SIGQUIT. SIGHUP
// unlocks a vault that a client has locked.
func (app *App) initSignalHandler(ctx context.Context, cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)

	go func() {
		defer signal.Stop(sigs)
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigs:
				if app.handleSignal(ctx, sig) {
					cancelFunc()
					return
				}
			}
		}
	}()
}

// handleSignal reports whether sig should stop the app.
func (app *App) handleSignal(ctx context.Context, sig os.Signal) bool {
	if sig == syscall.SIGHUP {
		app.vault.Unlock()
		app.logger.Info(ctx, "vault unlocked", "signal", sig.String())
		return false
	}
	app.logger.Info(ctx, "shutting down", "signal", sig.String())
	return true
}

// Run serves until ctx is cancelled or a signal arrives, then closes the
// pairing store.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting keeperbridge...", "addr", app.config.ListenAddr, "pairing_db", app.config.PairingDBPath)

	app.initSignalHandler(ctx, cancelFunc)

	var (
		wg     sync.WaitGroup
		runErr error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.server.Run(ctx); err != nil {
			app.logger.Error(ctx, "bridge server failed", "error", err)
			runErr = err
			cancelFunc()
		}
	}()

	wg.Wait()

	if err := app.pairings.Close(); err != nil {
		app.logger.Error(ctx, "closing pairing store", "error", err)
	}
	app.logger.Info(ctx, "keeperbridge stopped")
	return runErr
}

// Ready is closed once the server accepts connections.
func (app *App) Ready() <-chan struct{} {
	return app.server.Ready()
}
