package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/chatpulse/internal/connection"
	"github.com/rickgao/chatpulse/internal/metrics"
	"github.com/rickgao/chatpulse/internal/model"
	"github.com/rickgao/chatpulse/internal/registry"
	"github.com/rickgao/chatpulse/internal/session"
	"github.com/rickgao/chatpulse/internal/views"
)

func newListenCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Stay connected and print notifications as they arrive",
		Long: `Signs in, opens the notification socket and prints every event.

SIGHUP reconnects after the connection dropped. SIGINT or SIGTERM exits.
When metrics are enabled /health, /debug/connection and the metrics path
are served on metrics.port.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.listen(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func (a *app) listen(ctx context.Context, out io.Writer) error {
	m := metrics.MustNew(prometheus.DefaultRegisterer)

	acct, err := a.openAccount(ctx, m)
	if err != nil {
		return err
	}
	defer acct.Close()

	reg := registry.New(a.logger, m)
	manager := connection.NewManager(a.managerConfig(), reg, m, a.logger)
	binding := session.New(manager, reg, session.Config{
		ReconnectInterval: a.cfg.Connection.ReconnectInterval,
	}, a.logger)
	defer binding.Shutdown()

	p := newPrinter(out, acct.identity.Email)
	reg.Subscribe(p.Event)

	pending, err := views.NewRequestsView(reg, acct.client, model.StatusPending, a.viewOptions())
	if err != nil {
		return err
	}
	pending.OnChange(func() { p.Pending(len(pending.Snapshot())) })
	if err := pending.Open(ctx); err != nil {
		return fmt.Errorf("load pending requests: %w", err)
	}
	defer pending.Close()

	friends := views.NewFriendsView(reg, acct.client, a.viewOptions())
	friends.OnChange(func() { p.Friends(friends.Snapshot()) })
	if err := friends.Open(ctx); err != nil {
		return fmt.Errorf("load friends: %w", err)
	}
	defer friends.Close()

	g, gctx := errgroup.WithContext(ctx)

	if a.cfg.Metrics.Enabled {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", a.cfg.Metrics.Port),
			Handler:           createHealthHandler(manager, reg, a.cfg.Metrics.Path),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			a.logger.Info("starting health server", "port", a.cfg.Metrics.Port)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("health server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case ev := <-manager.States():
				p.State(ev)
			}
		}
	})

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
				if err := binding.Reconnect(gctx); err != nil {
					a.logger.Warn("reconnect failed", "error", err)
				}
			}
		}
	})

	g.Go(func() error {
		if err := binding.SetIdentity(gctx, acct.identity); err != nil {
			a.logger.Warn("connect failed", "error", err)
		}
		return nil
	})

	a.logger.Info("listening",
		"identity", acct.identity.String(),
		"instance_id", a.cfg.Instance.ID,
	)
	return g.Wait()
}
