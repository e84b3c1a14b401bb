package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taxonrag/dtrag/internal/config"
)

func newStatsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index and query statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd.Context(), cmd, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func runStats(ctx context.Context, cmd *cobra.Command, asJSON bool) error {
	cfg, err := config.Load(".")
	if err != nil {
		return err
	}

	rt, err := openRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	engineStats, err := rt.engine.Stats(ctx)
	if err != nil {
		return err
	}
	snapshot := rt.collector.Snapshot()

	out := cmd.OutOrStdout()
	if asJSON {
		return json.NewEncoder(out).Encode(struct {
			Engine  any `json:"engine"`
			Queries any `json:"queries"`
		}{engineStats, snapshot})
	}

	fmt.Fprintf(out, "Data directory: %s\n", cfg.Data.Dir)
	fmt.Fprintf(out, "Chunks:         %d\n", engineStats.ChunkCount)
	fmt.Fprintf(out, "Vectors:        %d\n", engineStats.VectorCount)
	fmt.Fprintf(out, "Lexical docs:   %d\n", engineStats.LexicalCount)
	fmt.Fprintf(out, "Cache entries:  %d (hits %d, misses %d)\n",
		engineStats.Cache.Size, engineStats.Cache.Hits, engineStats.Cache.Misses)
	fmt.Fprintf(out, "Queries (this process): %d, cache hit rate %.0f%%\n",
		snapshot.TotalQueries, snapshot.CacheHitRate()*100)
	return nil
}
