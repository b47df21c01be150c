package main

import (
	"context"
	"errors"
	"fmt"

	"coursedesk/internal/api"
	"coursedesk/internal/channel"
	"coursedesk/internal/config"
	"coursedesk/internal/credential"
	"coursedesk/internal/crypto"
	"coursedesk/internal/database"
	"coursedesk/internal/registry"
	"coursedesk/internal/toast"
	"coursedesk/internal/tracker"

	"go.uber.org/zap"
)

// App struct - main application state
type App struct {
	ctx    context.Context
	cfg    config.AppConfig
	logger *zap.Logger

	db      *database.Handle
	store   *credential.Store
	watcher *credential.Watcher

	provider  *channel.Provider
	registry  *registry.Registry
	toasts    *toast.Sink
	bus       *toast.Bus
	api       *api.Client
	initiator *tracker.Initiator

	disposers []func()
}

// NewApp creates a new App application struct
func NewApp(cfg config.AppConfig, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{cfg: cfg, logger: logger}
}

// openStore opens the credential database. It is all login and logout need.
func (a *App) openStore() error {
	key, err := crypto.LoadKey(a.cfg.EncryptionKey, a.logger)
	if err != nil {
		return fmt.Errorf("encryption initialization failed: %w", err)
	}
	cipher, err := crypto.NewCipher(key)
	if err != nil {
		return err
	}

	db, err := database.Open(a.cfg.Database, a.logger, a.logger.Core().Enabled(zap.DebugLevel))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	a.db = db
	a.store = credential.NewStore(db.DB, cipher)
	return nil
}

// startup wires the live tracking pipeline: push channel, registry, toast
// sink, event binder, request layer and credential watcher. On failure
// everything opened so far is released.
func (a *App) startup(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			a.shutdown()
		}
	}()
	a.ctx = ctx
	a.logger.Info("application starting up", zap.String("profile", a.cfg.Profile))

	if err := a.openStore(); err != nil {
		return err
	}

	token, err := a.store.Token(ctx, a.cfg.Profile)
	if errors.Is(err, credential.ErrNotFound) {
		err = nil
	}
	if err != nil {
		return err
	}
	if token == "" {
		a.logger.Warn("no stored credential; live updates wait for login", zap.String("profile", a.cfg.Profile))
	}

	a.registry = registry.New(registry.Options{
		GracePeriod: a.cfg.Tracking.GracePeriod,
		Logger:      a.logger.Named("registry"),
	})
	a.toasts = toast.NewSink(nil, a.cfg.Tracking.ToastDuration)
	a.bus = toast.NewBus()
	a.disposers = append(a.disposers, a.toasts.Attach(a.bus))

	a.provider = channel.NewProvider(channel.Options{
		URL:        a.cfg.Channel.URL,
		MinBackoff: a.cfg.Channel.MinBackoff,
		MaxBackoff: a.cfg.Channel.MaxBackoff,
		Logger:     a.logger.Named("channel"),
	})

	binder := tracker.NewBinder(tracker.Options{
		Channel:  a.provider,
		Registry: a.registry,
		Toasts:   a.toasts,
		Logger:   a.logger.Named("tracker"),
	})
	a.disposers = append(a.disposers, binder.Bind())
	a.initiator = tracker.NewInitiator(a.provider, a.registry, nil)

	a.api = api.NewClient(api.Options{
		BaseURL:    a.cfg.API.BaseURL,
		Token:      token,
		Channel:    a.provider,
		Errors:     a.bus,
		Timeout:    a.cfg.API.Timeout,
		RetryCount: a.cfg.API.RetryCount,
		Logger:     a.logger.Named("api"),
	})

	if token != "" {
		a.provider.Connect(ctx, token)
	}

	a.watcher = credential.NewWatcher(a.store, credential.WatcherOptions{
		Profile:      a.cfg.Profile,
		Path:         a.db.Path,
		PollInterval: a.cfg.Channel.CredentialPollInterval,
		Logger:       a.logger.Named("credential"),
	}, token, a.onCredentialChange)
	if err := a.watcher.Start(); err != nil {
		a.logger.Warn("credential watcher unavailable", zap.Error(err))
	}

	a.logger.Info("startup complete")
	return nil
}

// onCredentialChange re-establishes the channel under the new credential.
func (a *App) onCredentialChange(token string) {
	a.api.SetToken(token)
	if token == "" {
		a.provider.Close()
		a.toasts.Show("Signed out; live updates stopped", toast.KindInfo)
		return
	}
	a.provider.Connect(a.ctx, token)
}

// shutdown is called when the app is closing
func (a *App) shutdown() {
	a.logger.Info("application shutting down")

	for i := len(a.disposers) - 1; i >= 0; i-- {
		a.disposers[i]()
	}
	a.disposers = nil

	if a.watcher != nil {
		a.watcher.Stop()
	}
	if a.provider != nil {
		a.provider.Close()
	}
	if a.registry != nil {
		a.registry.Close()
	}
	if a.toasts != nil {
		a.toasts.Stop()
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("error closing database", zap.Error(err))
	}

	a.logger.Info("shutdown complete")
}

// waitForChannel blocks until the push channel has a live identifier.
func (a *App) waitForChannel(ctx context.Context) (string, error) {
	connected := make(chan struct{}, 1)
	dispose := a.provider.On(channel.EventConnect, func(channel.Event) {
		select {
		case connected <- struct{}{}:
		default:
		}
	})
	defer dispose()

	for {
		if id := a.provider.CurrentID(); id != "" {
			return id, nil
		}
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("waiting for live updates: %w", tracker.ErrNoChannel)
		case <-connected:
		}
	}
}
