package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tillworks/tillsync/internal/config"
	"github.com/tillworks/tillsync/internal/localstore"
	"github.com/tillworks/tillsync/internal/logging"
	"github.com/tillworks/tillsync/internal/pos"
	"github.com/tillworks/tillsync/internal/remote"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cache contents, queue depth and connectivity",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		local, err := localstore.Open(cfg.Store.Path, logging.Component(io.Discard, "store"))
		if err != nil {
			return fmt.Errorf("failed to open local store: %w", err)
		}
		defer local.Close()

		ctx := cmd.Context()

		client := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.GetTimeout())
		if client.Ping(ctx) == nil {
			fmt.Printf("Central store:  online (%s)\n", cfg.Remote.BaseURL)
		} else {
			fmt.Printf("Central store:  offline (%s)\n", cfg.Remote.BaseURL)
		}

		pending, err := local.CountPending(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Queued writes:  %d\n", pending)

		for _, collection := range pos.Collections() {
			count, err := local.CountRecords(ctx, collection)
			if err != nil {
				return err
			}
			fmt.Printf("Cached %-9s %d\n", collection+":", count)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
