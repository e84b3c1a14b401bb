package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/taxonrag/dtrag/internal/config"
	dtragerr "github.com/taxonrag/dtrag/internal/errors"
	"github.com/taxonrag/dtrag/internal/filter"
	"github.com/taxonrag/dtrag/internal/search"
)

type searchOptions struct {
	limit       int
	filterJSON  string
	filterFile  string
	format      string
	rerank      bool
	noRerank    bool
	bypassCache bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed corpus",
		Long: `Search runs hybrid retrieval over the indexed corpus: BM25 and
dense vector candidates are fused with adaptive weights, optionally
reranked, and returned in relevance order.

Examples:
  dtrag search "solar panel efficiency"
  dtrag search "pv yield" -n 5 --filter '{"content_types":["pdf"]}'
  dtrag search "storage" --filter-file scope.json --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVar(&opts.filterJSON, "filter", "", "Filter as inline JSON")
	cmd.Flags().StringVar(&opts.filterFile, "filter-file", "", "Filter from a JSON file")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.rerank, "rerank", false, "Force reranking on")
	cmd.Flags().BoolVar(&opts.noRerank, "no-rerank", false, "Force reranking off")
	cmd.Flags().BoolVar(&opts.bypassCache, "bypass-cache", false, "Skip the result cache")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	cfg, err := config.Load(".")
	if err != nil {
		return err
	}

	f, err := resolveFilter(opts)
	if err != nil {
		return err
	}

	rt, err := openRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	enableRerank := cfg.Search.EnableRerank
	if opts.rerank {
		enableRerank = true
	}
	if opts.noRerank {
		enableRerank = false
	}

	out := cmd.OutOrStdout()
	hits, metrics, err := rt.engine.Search(ctx, query, opts.limit, f, search.Options{
		NLex:         cfg.Search.NLex,
		NVec:         cfg.Search.NVec,
		EnableRerank: enableRerank,
		BypassCache:  opts.bypassCache,
	})
	if err != nil {
		// In JSON mode machine consumers get the structured error on
		// stdout; the exit code and stderr line still signal failure.
		if opts.format == "json" {
			if body, jerr := dtragerr.FormatJSON(err); jerr == nil {
				fmt.Fprintf(out, "{\"error\":%s}\n", body)
			}
		}
		return err
	}
	if opts.format == "json" {
		return json.NewEncoder(out).Encode(struct {
			Hits    []search.SearchHit    `json:"hits"`
			Metrics *search.SearchMetrics `json:"metrics"`
		}{hits, metrics})
	}

	if len(hits) == 0 {
		fmt.Fprintln(out, "No results.")
		return nil
	}
	for i, h := range hits {
		score := h.Fused
		if h.Rerank > 0 {
			score = h.Rerank
		}
		fmt.Fprintf(out, "%2d. [%.3f] %s\n", i+1, score, headline(h))
		fmt.Fprintf(out, "    %s\n", snippet(h.Text, 160))
		if len(h.TaxonomyPath) > 0 {
			fmt.Fprintf(out, "    taxonomy: %s\n", strings.Join(h.TaxonomyPath, " > "))
		}
	}
	fmt.Fprintf(out, "\n%d results in %s", len(hits), metrics.TotalLatency.Round(time.Millisecond))
	if metrics.CacheHit {
		fmt.Fprint(out, " (cached)")
	}
	if len(metrics.Degradations) > 0 {
		fmt.Fprintf(out, " (degraded: %s)", strings.Join(metrics.Degradations, ", "))
	}
	fmt.Fprintln(out)
	return nil
}

func resolveFilter(opts searchOptions) (filter.Filter, error) {
	switch {
	case opts.filterJSON != "" && opts.filterFile != "":
		return filter.Filter{}, fmt.Errorf("--filter and --filter-file are mutually exclusive")
	case opts.filterJSON != "":
		return filter.Parse([]byte(opts.filterJSON))
	case opts.filterFile != "":
		data, err := os.ReadFile(opts.filterFile)
		if err != nil {
			return filter.Filter{}, fmt.Errorf("read filter file: %w", err)
		}
		return filter.Parse(data)
	default:
		return filter.Filter{}, nil
	}
}

func headline(h search.SearchHit) string {
	if h.Title != "" {
		return h.Title
	}
	if h.SourceURL != "" {
		return h.SourceURL
	}
	return h.ChunkID
}

func snippet(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= n {
		return text
	}
	return text[:n] + "..."
}
