package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tillworks/tillsync/internal/config"
	"github.com/tillworks/tillsync/internal/connectivity"
	"github.com/tillworks/tillsync/internal/localstore"
	"github.com/tillworks/tillsync/internal/logging"
	"github.com/tillworks/tillsync/internal/remote"
	"github.com/tillworks/tillsync/internal/syncer"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one refresh-and-drain pass against the central store",
	Long: `Probe the central store, refresh every collection into the local
cache, and replay queued mutations. Exits non-zero when the store is
unreachable or the queue still has entries afterwards.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		sink := logging.Sink(logging.Options{File: cfg.Logging.File})

		local, err := localstore.Open(cfg.Store.Path, logging.Component(sink, "store"))
		if err != nil {
			return fmt.Errorf("failed to open local store: %w", err)
		}
		defer local.Close()

		client := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.GetTimeout())
		monitor := connectivity.New(client, cfg.Remote.GetProbeInterval(),
			logging.Component(sink, "connectivity"))
		svc := syncer.NewService(local, client, monitor, logging.Component(sink, "sync"))

		ctx := cmd.Context()
		if !monitor.CheckNow(ctx) {
			return fmt.Errorf("central store unreachable at %s", cfg.Remote.BaseURL)
		}

		svc.HandleReconnect(ctx)

		pending, err := local.CountPending(context.Background())
		if err != nil {
			return err
		}
		if pending > 0 {
			fmt.Fprintf(os.Stderr, "%d mutation(s) still queued\n", pending)
			os.Exit(1)
		}

		fmt.Println("Sync complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
