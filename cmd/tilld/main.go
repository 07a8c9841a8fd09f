package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "tilld",
	Short: "Offline-first sync daemon for point-of-sale terminals",
	Long: `tilld keeps a register usable when the back office is unreachable.

Reads are served from a local SQLite cache, writes land in the cache
immediately and replay to the central store when connectivity returns.
Run "tilld serve" on the terminal; the register frontend talks to the
local REST API instead of the central store.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "tillsync.yaml", "Path to config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
