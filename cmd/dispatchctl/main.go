package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/shardha/pkg/config"
	"github.com/cuemby/shardha/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var cfg config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dispatchctl",
	Short: "dispatchctl drives and inspects a sharded search dispatcher",
	Long: `dispatchctl parses agent specs, runs one-off dispatches against a
mirror group, and inspects the dashboard health state dispatch accumulates
per mirror.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"dispatchctl version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file (defaults applied if unset)")

	cobra.OnInitialize(initLogging, initConfig)

	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(dispatchCmd)
	rootCmd.AddCommand(dashboardCmd)
	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

func initConfig() {
	path, _ := rootCmd.PersistentFlags().GetString("config")
	if path == "" {
		cfg = config.Default()
		return
	}
	loaded, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", path, err)
		os.Exit(1)
	}
	cfg = *loaded
}
