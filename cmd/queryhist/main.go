package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/queryhist/queryhist/internal/histogram"
	"github.com/queryhist/queryhist/internal/service"
	"github.com/queryhist/queryhist/internal/version"
)

var (
	cfgFile  string
	logLevel string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queryhist",
		Short: "Query latency histogram service",
		Long: `queryhist maintains shared latency histograms for database
query workloads, broken down globally and per database, with
optional sampling and snapshot persistence across restarts.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	cmd.Flags().StringVar(
		&cfgFile, "config", "",
		"path to config file (required)",
	)
	cmd.Flags().StringVar(
		&logLevel, "log-level", "",
		"override log level (debug, info, warn, error)",
	)

	if err := cmd.MarkFlagRequired("config"); err != nil {
		fmt.Fprintf(os.Stderr, "error marking flag required: %v\n", err)
		os.Exit(1)
	}

	cmd.AddCommand(inspectCmd())
	cmd.AddCommand(versionCmd())

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.FullWithPlatform())
		},
	}
}

func inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <snapshot-file>",
		Short: "Print the contents of a histogram snapshot file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dump, err := histogram.ReadDump(args[0])
			if err != nil {
				return fmt.Errorf("reading snapshot: %w", err)
			}

			printDump(cmd.OutOrStdout(), dump)

			return nil
		},
	}
}

func printDump(w io.Writer, dump *histogram.Dump) {
	fmt.Fprintf(w, "kind: %s\n", dump.Config.Kind)
	fmt.Fprintf(w, "bins: %d x %dms\n", dump.Config.BinCount, dump.Config.BinWidthMs)
	fmt.Fprintf(w, "sample_pct: %d\n", dump.Config.SamplePct)
	fmt.Fprintf(w, "track_utility: %t\n", dump.Config.TrackUtility)
	fmt.Fprintf(w, "dynamic: %t\n", dump.Config.Dynamic)
	fmt.Fprintf(w, "version: %d\n", dump.Version)
	fmt.Fprintf(w, "databases: %d\n", len(dump.Histograms)-1)

	// Histograms[0] is always the global histogram; database ids are
	// opaque, so even id 0 names a real database.
	for i := range dump.Histograms {
		h := &dump.Histograms[i]

		if i == 0 {
			fmt.Fprintf(w, "\nglobal histogram (last reset %s):\n",
				h.LastReset.Format("2006-01-02 15:04:05"))
		} else {
			fmt.Fprintf(w, "\ndatabase %d (last reset %s):\n",
				h.DatabaseID, h.LastReset.Format("2006-01-02 15:04:05"))
		}

		printHistogram(w, h)
	}
}

func printHistogram(w io.Writer, h *histogram.Snapshot) {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "bin\trange (ms)\tcount\tcount %\ttime (ms)\ttime %\t")

	for bin := 0; bin <= h.BinCount; bin++ {
		if h.Counts[bin] == 0 && bin == h.BinCount {
			continue
		}

		lo := h.LowerBound(bin)
		rangeStr := fmt.Sprintf("%d+", lo)

		if hi, ok := h.UpperBound(bin); ok {
			rangeStr = fmt.Sprintf("%d-%d", lo, hi)
		}

		fmt.Fprintf(tw, "%d\t%s\t%d\t%.1f\t%.1f\t%.1f\t\n",
			bin, rangeStr, h.Counts[bin],
			h.CountPct(bin), h.TimesMs[bin], h.TimePct(bin))
	}

	tw.Flush()

	fmt.Fprintf(w, "total: %d queries, %.1f ms\n", h.TotalCount, h.TotalTimeMs)
}

func run(cmd *cobra.Command, args []string) error {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	cfg, err := service.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// CLI flag overrides config file.
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("parsing log level %q: %w", cfg.LogLevel, err)
	}

	log.SetLevel(level)

	ctx, cancel := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer cancel()

	svc, err := service.New(log, cfg)
	if err != nil {
		return fmt.Errorf("creating service: %w", err)
	}

	log.Info("Starting queryhist service")

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("starting service: %w", err)
	}

	<-ctx.Done()

	log.Info("Shutting down queryhist service")

	if err := svc.Stop(); err != nil {
		log.WithError(err).Error("Error during shutdown")
		return fmt.Errorf("stopping service: %w", err)
	}

	log.Info("Shutdown complete")

	return nil
}
