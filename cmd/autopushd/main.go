package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/frostnova/autopushd/internal/config"
	"github.com/frostnova/autopushd/internal/detector"
	"github.com/frostnova/autopushd/internal/git"
	"github.com/frostnova/autopushd/internal/notify"
	"github.com/frostnova/autopushd/internal/publisher"
	"github.com/frostnova/autopushd/internal/scheduler"
	"github.com/frostnova/autopushd/internal/server"
	"github.com/spf13/cobra"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string

	// Watch/push overrides
	flagDir         string
	flagRemoteURL   string
	flagMessage     string
	flagThresholdKB int64
	flagInterval    int

	// Status flags
	statusJSON bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "autopushd",
	Short: "Automatically commit and push a directory when its content changes",
	Long: `autopushd watches a directory by periodically measuring its aggregate
content size. When the delta against the last published baseline exceeds a
threshold, it stages, commits, and pushes the changes with the external git
tool, recovering from the common push rejection modes (missing upstream,
non-fast-forward, branch mismatch).`,
	SilenceUsage: true,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the monitoring loop",
	Long: `Watch measures the directory on a fixed interval and publishes whenever
the accumulated size delta exceeds the configured threshold. The loop runs
until interrupted; a publish in flight is allowed to finish on shutdown.`,
	RunE: runWatch,
}

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Perform a one-time stage, commit, and push",
	Long: `Push runs the publish sequence once, regardless of any size delta.
It exits zero on success or when there was nothing to commit.`,
	RunE: runPush,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the current repository and watch state",
	RunE:  runStatus,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("autopushd %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/autopushd/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	for _, cmd := range []*cobra.Command{watchCmd, pushCmd, statusCmd} {
		cmd.Flags().StringVar(&flagDir, "dir", "", "directory to watch (default \".\")")
		cmd.Flags().StringVar(&flagRemoteURL, "remote", "", "remote URL to register as origin when none is configured")
		cmd.Flags().StringVar(&flagMessage, "message", "", "commit message template")
	}
	watchCmd.Flags().Int64Var(&flagThresholdKB, "threshold-kb", 0, "change threshold in kilobytes")
	watchCmd.Flags().IntVar(&flagInterval, "interval", 0, "poll interval in seconds")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print status as JSON")

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(cmd, logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	pub := buildPublisher(cfg, logger)
	notifier, err := buildNotifier(cfg, logger)
	if err != nil {
		return err
	}

	sched := scheduler.New(cfg, pub, notifier, logger)

	if cfg.Serve.Enabled {
		srv, err := server.New(cfg, sched, logger)
		if err != nil {
			return err
		}
		go func() {
			if err := srv.Start(ctx); err != nil {
				logger.Error("status server failed", "error", err)
			}
		}()
	}

	logger.Info("starting watch",
		"dir", cfg.Watch.Dir,
		"threshold_kb", cfg.Watch.ThresholdKB,
		"interval_seconds", cfg.Watch.IntervalSeconds)

	if err := sched.Run(ctx); err != nil {
		logger.Error("watch stopped", "error", err)
		return err
	}

	return nil
}

func runPush(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(cmd, logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	pub := buildPublisher(cfg, logger)

	outcome, err := pub.Publish(ctx, cfg.CommitMessage(nowUTC()))
	if err != nil {
		logger.Error("publish failed", "error", err)
		return err
	}

	logger.Info("publish finished", "outcome", outcome.String())
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(cmd, logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	pub := buildPublisher(cfg, logger)
	sched := scheduler.New(cfg, pub, nil, logger)
	sched.RestoreBaseline()
	status := sched.Status(ctx)

	// One-shot invocation: measure fresh so the snapshot is meaningful.
	if snapshot, err := detector.Measure(cfg.Watch.Dir); err == nil {
		status.SnapshotBytes = snapshot
	}

	if statusJSON {
		return printJSON(status)
	}

	fmt.Printf("directory:        %s\n", cfg.Watch.Dir)
	fmt.Printf("repository:       %t\n", status.IsRepository)
	fmt.Printf("remote:           %t\n", status.HasRemote)
	fmt.Printf("branch:           %s\n", orDash(status.Branch))
	fmt.Printf("monitoring:       %t\n", status.Monitoring)
	fmt.Printf("snapshot:         %d bytes\n", status.SnapshotBytes)
	if status.BaselinePrimed {
		fmt.Printf("baseline:         %d bytes\n", status.BaselineBytes)
	} else {
		fmt.Printf("baseline:         (unprimed)\n")
	}
	fmt.Printf("threshold:        %d KB\n", status.ThresholdKB)
	fmt.Printf("interval:         %d s\n", status.IntervalSeconds)
	return nil
}

func buildPublisher(cfg *config.Config, logger *slog.Logger) *publisher.Publisher {
	client := git.NewClient(cfg.Watch.Dir)
	return publisher.New(client, cfg.Repo.RemoteURL, cfg.Repo.FallbackBranch, logger)
}

func buildNotifier(cfg *config.Config, logger *slog.Logger) (scheduler.Notifier, error) {
	notifiers := scheduler.MultiNotifier{scheduler.LogNotifier{Logger: logger}}

	if cfg.Notify.URL != "" {
		wh, err := notify.NewWebhook(cfg.Notify.URL, cfg.Notify.SecretFile, logger)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, wh)
	}

	return notifiers, nil
}

func setupLogger() *slog.Logger {
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

// loadConfig resolves the configuration: an explicit --config file must
// exist; the default path is used when present; otherwise flag values on
// top of defaults. Flags always override file values.
func loadConfig(cmd *cobra.Command, logger *slog.Logger) (*config.Config, error) {
	var cfg *config.Config

	configPath := cfgFile
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		defaultPath := filepath.Join(home, ".config", "autopushd", "config.yaml")
		if _, err := os.Stat(defaultPath); err == nil {
			configPath = defaultPath
		}
	}

	if configPath != "" {
		logger.Info("loading configuration", "path", configPath)
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	applyFlagOverrides(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Debug("configuration resolved",
		"dir", cfg.Watch.Dir,
		"threshold_kb", cfg.Watch.ThresholdKB,
		"interval_seconds", cfg.Watch.IntervalSeconds,
		"remote", cfg.Repo.RemoteURL != "")

	return cfg, nil
}

// applyFlagOverrides copies explicitly set flags over the loaded config.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("dir") {
		cfg.Watch.Dir = flagDir
	}
	if flags.Changed("remote") {
		cfg.Repo.RemoteURL = flagRemoteURL
	}
	if flags.Changed("message") {
		cfg.Repo.CommitMessage = flagMessage
	}
	if flags.Changed("threshold-kb") {
		cfg.Watch.ThresholdKB = flagThresholdKB
	}
	if flags.Changed("interval") {
		cfg.Watch.IntervalSeconds = flagInterval
	}
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
