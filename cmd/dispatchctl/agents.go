package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/shardha/pkg/config"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Inspect agent specs",
}

var agentsParseCmd = &cobra.Command{
	Use:   "parse SPEC",
	Short: "Parse an agent spec and print the mirrors, options and indexes it resolves to",
	Long: `SPEC follows the agent-spec grammar: pipe-separated host:port or
/unix/path alternatives, an optional bracketed [opt=val,...] option list,
and an optional trailing :index[,index]*.

Example: dispatchctl agents parse "db1:9312|db2:9312[ha_strategy=roundrobin,retry_count=1]:products"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, warnings, err := config.ParseAgentSpec(args[0])
		if err != nil {
			return fmt.Errorf("parse agent spec: %w", err)
		}

		fmt.Printf("Mirrors (%d):\n", len(spec.Mirrors))
		for i, m := range spec.Mirrors {
			fmt.Printf("  [%d] %s\n", i, m.String())
		}

		fmt.Println("Options:")
		fmt.Printf("  persistent:  %v\n", spec.Options.Persistent)
		fmt.Printf("  strategy:    %v\n", spec.Options.Strategy)
		fmt.Printf("  blackhole:   %v\n", spec.Options.Blackhole)
		fmt.Printf("  retry_count: %d\n", spec.Options.RetryCount)

		if len(spec.Indexes) > 0 {
			fmt.Printf("Indexes: %v\n", spec.Indexes)
		}
		for _, w := range warnings {
			fmt.Printf("warning: %s\n", w)
		}
		return nil
	},
}

func init() {
	agentsCmd.AddCommand(agentsParseCmd)
}
