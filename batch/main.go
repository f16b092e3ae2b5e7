package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tmskss/portfolio-health-report/internal/config"
	"github.com/tmskss/portfolio-health-report/internal/logger"
	"github.com/tmskss/portfolio-health-report/internal/pipeline"
	"github.com/tmskss/portfolio-health-report/internal/report"
)

type options struct {
	emailsDir      string
	colleaguesFile string
	threadsOut     string
	logLevel       string
	envFile        string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "portfolio-report",
		Short:         "Summarize email archive threads into a portfolio health report",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(opts.envFile); err != nil {
				return err
			}
			cfg := config.LoadBatch()
			applyFlags(cmd, opts, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			log := logger.NewWriter(cmd.ErrOrStderr(), "batch", opts.logLevel)
			p, _, err := pipeline.Build(ctx, cfg.Common, log)
			if err != nil {
				return err
			}
			return run(ctx, p, opts.threadsOut, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.emailsDir, "emails-dir", "", "Directory of email archive files (overrides EMAILS_DIR)")
	flags.StringVar(&opts.colleaguesFile, "colleagues-file", "", "Reserved colleague directory file name (overrides COLLEAGUES_FILE)")
	flags.StringVar(&opts.threadsOut, "threads-out", "", "Write the per-thread structured reports to this YAML file")
	flags.StringVar(&opts.logLevel, "log-level", os.Getenv("LOG_LEVEL"), "Logging level: debug, info, warn, error")
	flags.StringVar(&opts.envFile, "env-file", ".env", "Optional dotenv file loaded before reading the environment")

	return cmd
}

func applyFlags(cmd *cobra.Command, opts *options, cfg *config.Batch) {
	if cmd.Flags().Changed("emails-dir") {
		cfg.EmailsDir = opts.emailsDir
	}
	if cmd.Flags().Changed("colleagues-file") {
		cfg.ColleaguesFile = opts.colleaguesFile
	}
}

type reportRunner interface {
	Run(ctx context.Context) (*report.Outcome, error)
}

func run(ctx context.Context, p reportRunner, threadsOut string, out io.Writer) error {
	outcome, err := p.Run(ctx)
	if err != nil {
		return err
	}

	if threadsOut != "" {
		if err := writeThreads(threadsOut, outcome.Threads); err != nil {
			return err
		}
	}

	_, err = fmt.Fprintln(out, outcome.Portfolio)
	return err
}

func writeThreads(path string, threads []report.ThreadResult) error {
	data, err := yaml.Marshal(threads)
	if err != nil {
		return fmt.Errorf("marshal thread reports: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write thread reports: %w", err)
	}
	return nil
}
