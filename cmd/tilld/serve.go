package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tillworks/tillsync/internal/api"
	"github.com/tillworks/tillsync/internal/config"
	"github.com/tillworks/tillsync/internal/connectivity"
	"github.com/tillworks/tillsync/internal/dashboard"
	"github.com/tillworks/tillsync/internal/localstore"
	"github.com/tillworks/tillsync/internal/logging"
	"github.com/tillworks/tillsync/internal/remote"
	"github.com/tillworks/tillsync/internal/spool"
	"github.com/tillworks/tillsync/internal/syncer"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the terminal daemon",
	Long: `Run the full terminal daemon: local REST API, connectivity monitor,
sync engine, spool watcher, dashboard and background scheduler.

The daemon starts offline and flips online once the first health probe
against the central store succeeds. Writing works in either state.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return runServe(cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cfg *config.Config) error {
	sink := logging.Sink(logging.Options{
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})

	local, err := localstore.Open(cfg.Store.Path, logging.Component(sink, "store"))
	if err != nil {
		return fmt.Errorf("failed to open local store: %w", err)
	}
	defer local.Close()

	client := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.GetTimeout())

	monitor := connectivity.New(client, cfg.Remote.GetProbeInterval(),
		logging.Component(sink, "connectivity"))

	svc := syncer.NewService(local, client, monitor, logging.Component(sink, "sync"))
	monitor.OnOnline(svc.HandleReconnect)

	handler := api.NewHandler(local, svc.Writer, svc, monitor,
		logging.Component(sink, "api"))

	// Dashboard feed
	var dash *dashboard.Server
	if cfg.Dashboard.Enabled {
		dash = dashboard.NewServer(&dashboard.Config{
			Port:   cfg.Dashboard.Port,
			State:  snapshotSource{handler},
			Logger: logging.Component(sink, "dashboard"),
		})
		svc.OnStatus(func(st syncer.Status) {
			switch st {
			case syncer.StatusStart:
				dash.BroadcastSyncStart()
			case syncer.StatusEnd:
				pending, _ := local.CountPending(context.Background())
				dash.BroadcastSyncEnd(pending)
			}
		})
		monitor.OnChange(dash.BroadcastConnectivity)
		svc.Refresher.OnRefresh(dash.BroadcastRefresh)
		if err := dash.Start(); err != nil {
			return fmt.Errorf("failed to start dashboard: %w", err)
		}
		defer dash.Stop()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	monitor.Start(ctx)
	defer monitor.Stop()

	// Spool watcher feeds sale files the register drops on disk
	if cfg.Spool.Dir != "" {
		spoolCfg := spool.DefaultConfig(cfg.Spool.Dir)
		spoolCfg.Logger = logging.Component(sink, "spool")
		watcher, err := spool.New(spoolCfg, svc.Writer)
		if err != nil {
			return fmt.Errorf("failed to create spool watcher: %w", err)
		}
		if err := watcher.Start(ctx); err != nil {
			return fmt.Errorf("failed to start spool watcher: %w", err)
		}
		defer watcher.Stop()
	}

	if cfg.Scheduler.Enabled {
		scheduler := syncer.NewScheduler(cfg.Scheduler.Schedule, svc,
			logging.Component(sink, "scheduler"))
		if err := scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		defer scheduler.Stop()
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		apiLog := logging.Component(sink, "api")
		apiLog.Printf("REST API listening on %s", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	fmt.Printf("tilld serving on http://%s\n", cfg.Server.Addr())
	if cfg.Dashboard.Enabled {
		fmt.Printf("Dashboard: ws://localhost:%d/ws\n", cfg.Dashboard.Port)
	}

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	fmt.Println("\nShutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	return nil
}

// snapshotSource adapts the API handler's status payload to the dashboard's
// welcome snapshot.
type snapshotSource struct {
	handler *api.Handler
}

func (s snapshotSource) Snapshot(ctx context.Context) dashboard.SnapshotData {
	st := s.handler.Snapshot(ctx)
	return dashboard.SnapshotData{
		Online:  st.Online,
		Syncing: st.Syncing,
		Pending: st.Pending,
	}
}
