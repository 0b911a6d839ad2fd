// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bodaay/shardfetch/internal/logging"
	"github.com/bodaay/shardfetch/internal/s3source"
	"github.com/bodaay/shardfetch/internal/tui"
	"github.com/bodaay/shardfetch/pkg/shardfetch"
)

// RootOpts holds global CLI options.
type RootOpts struct {
	JSONOut  bool
	Quiet    bool
	Verbose  bool
	Config   string
	LogFile  string
	LogLevel string
}

// fetchOpts holds the flags of the fetch command.
type fetchOpts struct {
	BaseURL    string
	Output     string
	Manifest   string
	Retries    int
	RetryDelay string
	Timeout    string
	UserAgent  string
	S3Region   string
	S3Profile  string
	S3Endpoint string
	S3CredFile string
	DryRun     bool

	// Values from the config file. They rank below the manifest.
	cfgBaseURL string
	cfgOutput  string
}

// Execute runs the CLI with the given version string.
func Execute(version string) error {
	ctx, cancel := signalContext(context.Background())
	defer cancel()

	root := newRootCmd(ctx, version, os.Stdout)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return err
	}
	return nil
}

func newRootCmd(ctx context.Context, version string, out io.Writer) *cobra.Command {
	ro := &RootOpts{}
	fo := &fetchOpts{}

	root := &cobra.Command{
		Use:           "shardfetch",
		Short:         "Fetch model weight shards into a local directory, skipping what is already there",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}
	root.SetOut(out)

	// Global flags
	root.PersistentFlags().BoolVar(&ro.JSONOut, "json", false, "Emit machine-readable JSON events and summary")
	root.PersistentFlags().BoolVarP(&ro.Quiet, "quiet", "q", false, "Quiet mode (no bars, no skip lines)")
	root.PersistentFlags().BoolVarP(&ro.Verbose, "verbose", "v", false, "Verbose diagnostic logs")
	root.PersistentFlags().StringVar(&ro.Config, "config", "", "Path to config file (JSON or YAML)")
	root.PersistentFlags().StringVar(&ro.LogFile, "log-file", "", "Write diagnostic logs to file")
	root.PersistentFlags().StringVar(&ro.LogLevel, "log-level", "info", "Log level: trace, info, warn, error")

	fetchCmd := newFetchCmd(ctx, ro, fo, out)
	root.AddCommand(fetchCmd)
	root.AddCommand(newVersionCmd(version))
	root.AddCommand(newConfigCmd())

	// Running without a subcommand performs a full fetch pass.
	bindFetchFlags(root.Flags(), fo)
	root.PreRunE = fetchCmd.PreRunE
	root.RunE = fetchCmd.RunE
	root.SetHelpCommand(&cobra.Command{Use: "help", Hidden: true})

	return root
}

func newFetchCmd(ctx context.Context, ro *RootOpts, fo *fetchOpts, out io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch every missing file of the job (default command)",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return applySettingsDefaults(cmd, ro, fo)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(ctx, ro, fo, out)
		},
	}
	bindFetchFlags(cmd.Flags(), fo)
	return cmd
}

func bindFetchFlags(fs *pflag.FlagSet, fo *fetchOpts) {
	def := shardfetch.DefaultSettings()
	fs.StringVar(&fo.BaseURL, "base-url", "", "Remote base URL (http, https or s3://bucket/prefix); overrides the manifest")
	fs.StringVarP(&fo.Output, "output", "o", "", "Destination directory; overrides the manifest")
	fs.StringVarP(&fo.Manifest, "manifest", "m", "", "Manifest file (YAML or JSON) listing the files to fetch")
	fs.IntVar(&fo.Retries, "retries", def.Retries, "Extra attempts per file after a failure")
	fs.StringVar(&fo.RetryDelay, "retry-delay", def.RetryDelay, "Fixed delay between attempts")
	fs.StringVar(&fo.Timeout, "timeout", def.Timeout, "Give up on a request after this long without progress (0 disables)")
	fs.StringVar(&fo.UserAgent, "user-agent", def.UserAgent, "User-Agent header for HTTP requests")
	fs.StringVar(&fo.S3Region, "s3-region", "", "AWS region for s3:// sources")
	fs.StringVar(&fo.S3Profile, "s3-profile", "", "AWS shared config profile for s3:// sources")
	fs.StringVar(&fo.S3Endpoint, "s3-endpoint", "", "Custom S3-compatible endpoint")
	fs.StringVar(&fo.S3CredFile, "s3-credentials-file", "", "AWS shared credentials file for s3:// sources")
	fs.BoolVar(&fo.DryRun, "dry-run", false, "List files and whether they are present, then exit")
}

func runFetch(ctx context.Context, ro *RootOpts, fo *fetchOpts, out io.Writer) error {
	job, err := buildJob(fo)
	if err != nil {
		return err
	}

	stopLogs, err := logging.Init(logging.Options{
		Level:   ro.LogLevel,
		Console: ro.Verbose,
		File:    ro.LogFile,
	})
	if err != nil {
		return err
	}
	defer stopLogs()

	if fo.DryRun {
		return printPlan(out, ro, job)
	}

	cfg := shardfetch.Settings{
		Retries:    fo.Retries,
		RetryDelay: fo.RetryDelay,
		Timeout:    fo.Timeout,
		UserAgent:  fo.UserAgent,
	}
	if isS3(job.BaseURL) {
		timeout, err := cfg.TimeoutDuration()
		if err != nil {
			return err
		}
		f, err := s3source.New(s3source.Config{
			Region:   fo.S3Region,
			Profile:  fo.S3Profile,
			CredFile: fo.S3CredFile,
			Endpoint: fo.S3Endpoint,
			Timeout:  timeout,
		})
		if err != nil {
			return err
		}
		cfg.Fetcher = f
	}

	var progress shardfetch.ProgressFunc
	if ro.JSONOut {
		progress = jsonProgress(out)
	} else {
		tui.PrintHeader(out, "Model Shard Downloader", job)
		ui := tui.NewRenderer(out, !ro.Quiet && tui.IsInteractive(out), ro.Quiet)
		defer ui.Close()
		progress = ui.Handler()
	}

	sum, err := shardfetch.Download(ctx, job, cfg, progress)
	if sum != nil {
		if ro.JSONOut {
			enc := json.NewEncoder(out)
			enc.SetEscapeHTML(false)
			_ = enc.Encode(map[string]any{"event": "summary", "summary": sum})
		} else {
			tui.PrintSummary(out, sum)
		}
	}
	if err != nil {
		return err
	}
	if !sum.OK() {
		return fmt.Errorf("%w: %d of %d failed", shardfetch.ErrIncomplete, sum.Failed, sum.Total())
	}
	return nil
}

// buildJob resolves the job. Per field the order is: flag, manifest, config
// file, built-in job.
func buildJob(fo *fetchOpts) (shardfetch.Job, error) {
	m := shardfetch.Manifest{Files: shardfetch.DefaultJob().Files}
	if fo.Manifest != "" {
		mf, err := shardfetch.ReadManifest(fo.Manifest)
		if err != nil {
			return shardfetch.Job{}, err
		}
		m = mf
	}
	m.BaseURL = firstNonEmpty(fo.BaseURL, m.BaseURL, fo.cfgBaseURL)
	m.Output = firstNonEmpty(fo.Output, m.Output, fo.cfgOutput)

	job, err := m.Job()
	if err != nil {
		if fo.Manifest != "" {
			return job, fmt.Errorf("manifest %s: %w", fo.Manifest, err)
		}
		return job, err
	}
	return job, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func isS3(base string) bool {
	u, err := url.Parse(base)
	return err == nil && u.Scheme == "s3"
}

func printPlan(out io.Writer, ro *RootOpts, job shardfetch.Job) error {
	p, err := shardfetch.PlanJob(job)
	if err != nil {
		return err
	}
	if ro.JSONOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	}
	fmt.Fprintf(out, "Plan for %s -> %s (%d files, %d missing):\n", job.BaseURL, job.OutputDir, len(p.Items), p.Missing)
	for _, it := range p.Items {
		state := "missing"
		if it.Present {
			state = "present"
		}
		fmt.Fprintf(out, "  %-8s %12d  %s\n", state, it.LocalSize, it.Name)
	}
	return nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// jsonProgress returns a JSON-lines progress handler.
func jsonProgress(w io.Writer) shardfetch.ProgressFunc {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	var mu sync.Mutex
	return func(ev shardfetch.ProgressEvent) {
		mu.Lock()
		_ = enc.Encode(ev)
		mu.Unlock()
	}
}
