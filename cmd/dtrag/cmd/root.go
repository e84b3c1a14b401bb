// Package cmd provides the CLI commands for dtrag.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	dtragerr "github.com/taxonrag/dtrag/internal/errors"
	"github.com/taxonrag/dtrag/internal/logging"
	"github.com/taxonrag/dtrag/internal/profiling"
	"github.com/taxonrag/dtrag/pkg/version"
)

var (
	debugMode      bool
	loggingCleanup func()

	profileCPU   string
	profileMem   string
	profileTrace string
	profiler     = profiling.NewProfiler()
	cpuCleanup   func()
	traceCleanup func()
)

// NewRootCmd creates the root command for the dtrag CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dtrag",
		Short: "Taxonomy-aware hybrid retrieval",
		Long: `dtrag indexes document chunks and serves hybrid search over them:
BM25 keyword matching fused with dense vector similarity, scoped by
dynamic taxonomy filters, with optional cross-encoder reranking.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("dtrag version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.dtrag/logs/")
	cmd.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileMem, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileTrace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = startRun
	cmd.PersistentPostRunE = stopRun

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func startRun(_ *cobra.Command, _ []string) error {
	cfg := logging.DefaultConfig()
	if debugMode {
		cfg = logging.DebugConfig()
	}
	cfg.WriteToStderr = false

	if logger, cleanup, err := logging.Setup(cfg); err == nil {
		slog.SetDefault(logger)
		loggingCleanup = cleanup
	}
	// A logging setup failure degrades to stderr-only logging rather
	// than refusing to run.

	if profileCPU != "" {
		cleanup, err := profiler.StartCPU(profileCPU)
		if err != nil {
			return err
		}
		cpuCleanup = cleanup
	}
	if profileTrace != "" {
		cleanup, err := profiler.StartTrace(profileTrace)
		if err != nil {
			return err
		}
		traceCleanup = cleanup
	}
	return nil
}

func stopRun(_ *cobra.Command, _ []string) error {
	if traceCleanup != nil {
		traceCleanup()
		traceCleanup = nil
	}
	if cpuCleanup != nil {
		cpuCleanup()
		cpuCleanup = nil
	}

	var err error
	if profileMem != "" {
		err = profiler.WriteHeap(profileMem)
	}

	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return err
}

// reportError renders a command failure with its code and retryability
// hint rather than cobra's bare "Error:" line, and mirrors it to the
// structured log.
func reportError(cmd *cobra.Command, err error) {
	fmt.Fprint(cmd.ErrOrStderr(), dtragerr.FormatForCLI(err))

	attrs := dtragerr.FormatForLog(err)
	args := make([]any, 0, len(attrs)*2)
	for k, v := range attrs {
		args = append(args, k, v)
	}
	slog.Error("command_failed", args...)
}

// Execute runs the root command.
func Execute() error {
	cmd := NewRootCmd()
	err := cmd.Execute()
	if err != nil {
		reportError(cmd, err)
	}
	return err
}
