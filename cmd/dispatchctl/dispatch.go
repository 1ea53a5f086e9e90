package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cuemby/shardha/pkg/agent"
	"github.com/cuemby/shardha/pkg/config"
	"github.com/cuemby/shardha/pkg/dispatch"
	"github.com/cuemby/shardha/pkg/log"
)

// rawQueryBuilder sends a fixed byte payload on every attempt, regardless
// of which mirror or index it targets — enough for a CLI smoke-test of a
// live agent spec without a real query-language frontend.
type rawQueryBuilder struct{ payload []byte }

func (b rawQueryBuilder) BuildRequest(*agent.Desc) ([]byte, error) { return b.payload, nil }

// rawReplyParser treats the entire reply body as opaque bytes.
type rawReplyParser struct{}

func (rawReplyParser) ParseReply(_ *agent.Conn, body []byte) (int, bool, bool) {
	return len(body), false, true
}

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Run a one-off dispatch against a mirror group",
}

var (
	dispatchWorkers int
	dispatchTimeout time.Duration
	dispatchRetry   time.Duration
)

var dispatchQueryCmd = &cobra.Command{
	Use:   "query SPEC QUERY",
	Short: "Dispatch QUERY against the mirror group described by SPEC",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, warnings, err := config.ParseAgentSpec(args[0])
		if err != nil {
			return fmt.Errorf("parse agent spec: %w", err)
		}
		for _, w := range warnings {
			log.Warn(w)
		}

		correlationID := uuid.New().String()
		reqLog := log.WithComponent("dispatchctl")
		reqLog.Info().Str("request_id", correlationID).Str("spec", args[0]).Msg("dispatching query")

		urls := make([]string, len(spec.Mirrors))
		for i, m := range spec.Mirrors {
			urls[i] = m.String()
		}

		d := dispatch.NewDispatcher(&cfg)

		groupSpec := dispatch.GroupSpec{
			Mirrors: spec.Mirrors,
			URLs:    urls,
			Options: spec.Options,
			Indexes: spec.Indexes,
		}

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		results, err := d.Run(ctx, []dispatch.GroupSpec{groupSpec},
			rawQueryBuilder{payload: []byte(args[1])}, rawReplyParser{},
			dispatch.Options{Workers: dispatchWorkers, Timeout: dispatchTimeout, RetryDelay: dispatchRetry})
		if err != nil {
			return fmt.Errorf("dispatch: %w", err)
		}

		r := results[0]
		if r.Success {
			fmt.Printf("OK host=%s wall=%s warned=%v body=%q\n", r.Host, r.Wall, r.Warned, r.Body)
		} else {
			fmt.Printf("FAILED host=%s reason=%s\n", r.Host, r.Failure)
		}
		return nil
	},
}

func init() {
	dispatchQueryCmd.Flags().IntVar(&dispatchWorkers, "workers", 1, "1 = sequential mode, >1 = parallel worker pool")
	dispatchQueryCmd.Flags().DurationVar(&dispatchTimeout, "timeout", 2*time.Second, "per-round connect/reply deadline")
	dispatchQueryCmd.Flags().DurationVar(&dispatchRetry, "retry-delay", 100*time.Millisecond, "delay before retrying against the next mirror")

	dispatchCmd.AddCommand(dispatchQueryCmd)
}
