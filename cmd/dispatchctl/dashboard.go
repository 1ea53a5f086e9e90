package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/shardha/internal/persist"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Inspect persisted mirror dashboard snapshots",
}

var dashboardShowCmd = &cobra.Command{
	Use:   "show HOST",
	Short: "Show the last persisted dashboard snapshot for HOST",
	Long: `Reads cfg.Persist.Path (see --config) and prints the outcome
counters, host aggregates and consecutive-error streak last checkpointed for
HOST. Requires persist.enabled in the config, since the in-memory dashboard
state of a running dispatch process isn't otherwise reachable from a
separate CLI invocation.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.Persist.Enabled {
			return fmt.Errorf("dashboard persistence is disabled in the active config (persist.enabled: false)")
		}

		store, err := persist.Open(cfg.Persist.Path)
		if err != nil {
			return fmt.Errorf("open dashboard store: %w", err)
		}
		defer store.Close()

		snap, found, err := store.Load(args[0])
		if err != nil {
			return fmt.Errorf("load snapshot: %w", err)
		}
		if !found {
			fmt.Printf("no snapshot recorded for %s\n", args[0])
			return nil
		}

		fmt.Printf("Host: %s\n", snap.Host)
		fmt.Printf("Captured: %s\n", snap.CapturedAt)
		fmt.Printf("Consecutive errors: %d\n", snap.ConsecutiveErrors)
		fmt.Printf("Outcome counters: %v\n", snap.Counters)
		fmt.Printf("Host aggregates:  %v\n", snap.HostAggregates)
		return nil
	},
}

var dashboardListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every host with a persisted dashboard snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.Persist.Enabled {
			return fmt.Errorf("dashboard persistence is disabled in the active config (persist.enabled: false)")
		}

		store, err := persist.Open(cfg.Persist.Path)
		if err != nil {
			return fmt.Errorf("open dashboard store: %w", err)
		}
		defer store.Close()

		all, err := store.LoadAll()
		if err != nil {
			return fmt.Errorf("load snapshots: %w", err)
		}
		if len(all) == 0 {
			fmt.Println("no snapshots recorded")
			return nil
		}
		for host, snap := range all {
			fmt.Printf("%-30s consecutive_errors=%d captured=%s\n", host, snap.ConsecutiveErrors, snap.CapturedAt)
		}
		return nil
	},
}

func init() {
	dashboardCmd.AddCommand(dashboardShowCmd)
	dashboardCmd.AddCommand(dashboardListCmd)
}
