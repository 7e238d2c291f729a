package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rickgao/chatpulse/internal/api"
	"github.com/rickgao/chatpulse/internal/auth"
	"github.com/rickgao/chatpulse/internal/config"
	"github.com/rickgao/chatpulse/internal/connection"
	"github.com/rickgao/chatpulse/internal/metrics"
	"github.com/rickgao/chatpulse/internal/storage"
	"github.com/rickgao/chatpulse/internal/version"
	"github.com/rickgao/chatpulse/internal/views"
)

// app holds state shared by every subcommand.
type app struct {
	configPath string
	cfg        *config.ClientConfig
	logger     *slog.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:          "chatpulse",
		Short:        "Real-time client for the chat backend",
		Version:      version.String(),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "configs/chatpulse.local.yaml", "path to config file")

	root.AddCommand(
		newListenCommand(a),
		newChatCommand(a),
		newLoginCommand(a),
		newLogoutCommand(a),
		newRegisterCommand(a),
		newFriendsCommand(a),
		newRequestsCommand(a),
		newRequestCommand(a),
		newSearchCommand(a),
		newMessagesCommand(a),
		newSendCommand(a),
		newAdminCommand(a),
	)
	return root
}

func (a *app) load() error {
	cfg, err := config.LoadAndValidate(a.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	a.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(a.logger)

	a.logger.Debug("configuration loaded",
		"version", version.Version,
		"instance_id", cfg.Instance.ID,
		"rest_url", cfg.API.RestURL,
		"storage", cfg.Storage.Driver,
	)
	a.cfg = cfg
	return nil
}

func (a *app) openStore(ctx context.Context) (storage.Store, error) {
	store, err := storage.Open(ctx, a.cfg.Storage, a.logger)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	return store, nil
}

func (a *app) toolkit(store storage.Store) *auth.IdentityToolkit {
	return auth.NewIdentityToolkit(a.cfg.Auth, auth.WithStore(store), auth.WithLogger(a.logger))
}

// signIn restores the stored session, falling back to the credentials in
// the config file.
func (a *app) signIn(ctx context.Context, tk *auth.IdentityToolkit) (*auth.Identity, error) {
	id, err := tk.Resume(ctx)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, auth.ErrNoRefreshToken) {
		a.logger.Warn("stored session unusable", "error", err)
	}

	switch {
	case a.cfg.Auth.CustomToken != "":
		return tk.SignInWithCustomToken(ctx, a.cfg.Auth.CustomToken)
	case a.cfg.Auth.Email != "" && a.cfg.Auth.Password != "":
		return tk.SignInWithPassword(ctx, a.cfg.Auth.Email, a.cfg.Auth.Password)
	}
	return nil, errors.New("not signed in: run 'chatpulse login' or set auth.email and auth.password")
}

func (a *app) apiClient(tokens api.TokenSource, m *metrics.Metrics) *api.Client {
	opts := []api.ClientOption{
		api.WithLogger(a.logger),
		api.WithTimeout(a.cfg.API.Timeout),
		api.WithRetries(a.cfg.API.MaxRetries, a.cfg.API.RetryBackoff),
		api.WithUserAgent(version.UserAgent()),
		api.WithMetrics(m),
	}
	if a.cfg.API.RateLimit > 0 {
		opts = append(opts, api.WithRateLimit(a.cfg.API.RateLimit, a.cfg.API.RateBurst))
	}
	return api.NewClient(a.cfg.API.RestURL, tokens, opts...)
}

func (a *app) managerConfig() connection.ManagerConfig {
	c := a.cfg.Connection
	return connection.ManagerConfig{
		WSURL:            a.cfg.API.WSURL,
		WSPath:           a.cfg.API.WSPath,
		UserAgent:        version.UserAgent(),
		HandshakeTimeout: c.HandshakeTimeout,
		PingInterval:     c.PingInterval,
		PingTimeout:      c.PingTimeout,
		WriteTimeout:     c.WriteTimeout,
		BufferSize:       c.BufferSize,
		StateBuffer:      c.StateBuffer,
	}
}

func (a *app) viewOptions() views.Options {
	return views.Options{PageSize: a.cfg.Views.PageSize, Logger: a.logger}
}

// account is a signed-in REST client.
type account struct {
	identity *auth.Identity
	client   *api.Client
	store    storage.Store
}

func (acct *account) Close() {
	if err := acct.store.Close(); err != nil {
		slog.Warn("close storage", "error", err)
	}
}

func (a *app) openAccount(ctx context.Context, m *metrics.Metrics) (*account, error) {
	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}

	id, err := a.signIn(ctx, a.toolkit(store))
	if err != nil {
		store.Close()
		return nil, err
	}

	return &account{
		identity: id,
		client:   a.apiClient(auth.NewTokenCache(id, auth.DefaultCacheSkew), m),
		store:    store,
	}, nil
}

// withAccount runs fn with a signed-in client and releases it afterwards.
func (a *app) withAccount(ctx context.Context, fn func(*account) error) error {
	acct, err := a.openAccount(ctx, nil)
	if err != nil {
		return err
	}
	defer acct.Close()
	return fn(acct)
}
