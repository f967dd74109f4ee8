// Package main is the CLI entry point for applock.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/focusd/app_lock/internal/daemon"
	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
	"github.com/eliteGoblin/focusd/app_lock/internal/infra"
	"github.com/eliteGoblin/focusd/app_lock/internal/policy"
	"github.com/eliteGoblin/focusd/app_lock/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

// selfPackage is the monitor's own identifier; its activity is never reported.
const selfPackage = "applock"

const (
	sourceProcess = "process"
	sourceStdin   = "stdin"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "applock",
	Short: "Application lock - enforces a guardian's lock schedule",
	Long: `applock watches which application comes to the foreground and locks it
when its schedule says so. Rules are permanent locks, daily time windows,
or lists of dates that may repeat monthly or weekly.

Locked and opened applications are reported to the guardian's server
when a session token is configured.`,
	Version: Version,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the watcher daemon in the background",
	RunE:  runStart,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the watcher in the foreground",
	Long: `Runs the watcher in the foreground with console logging.
--source process polls running processes; --source stdin reads
"<kind> <package>" lines, e.g. forwarded accessibility events.`,
	RunE: runForeground,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check watcher status",
	RunE:  runStatus,
}

var checkCmd = &cobra.Command{
	Use:   "check <package>",
	Short: "Show the lock decision for an app",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

// Hidden daemon command - used for self-exec when spawning the watcher
var daemonCmd = &cobra.Command{
	Use:    "daemon",
	Hidden: true,
	RunE:   runDaemon,
}

var (
	eventSource string
	rulesFile   string
	checkAt     string
	checkFrom   string
	jsonOutput  bool
)

func init() {
	runCmd.Flags().StringVar(&eventSource, "source", sourceProcess, "Event source (process/stdin)")
	daemonCmd.Flags().StringVar(&eventSource, "source", sourceProcess, "Event source (process/stdin)")
	for _, c := range []*cobra.Command{startCmd, runCmd, daemonCmd} {
		c.Flags().StringVar(&rulesFile, "rules-file", "", "Reload rules whenever this JSON or YAML file changes")
	}
	checkCmd.Flags().StringVar(&checkAt, "at", "", "Evaluate at this RFC3339 instant instead of now")
	checkCmd.Flags().StringVar(&checkFrom, "from", "", "Evaluate rules from this JSON or YAML file instead of the store")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(ruleCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(daemonCmd)
}

func openStore() (*infra.EncryptedStore, *infra.ExecModeConfig, error) {
	execMode := infra.DetectExecMode()
	store, err := infra.OpenStore(execMode.DataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store in %s: %w", execMode.DataDir, err)
	}
	return store, execMode, nil
}

func runStart(cmd *cobra.Command, args []string) error {
	store, execMode, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	pm := infra.NewProcessManager()
	status, err := daemon.GetWatcherStatus(store, pm, time.Now())
	if err != nil {
		return err
	}
	if status.Running {
		fmt.Println("applock is already running")
		return nil
	}

	daemonArgs := []string{"--source", sourceProcess}
	if rulesFile != "" {
		abs, err := filepath.Abs(rulesFile)
		if err != nil {
			return err
		}
		daemonArgs = append(daemonArgs, "--rules-file", abs)
	}
	if err := daemon.StartDaemon(daemonArgs...); err != nil {
		return err
	}

	// Wait a moment for the daemon to register
	time.Sleep(500 * time.Millisecond)

	fmt.Println("\n=== applock Started ===")
	fmt.Printf("Mode: %s\n", execMode.Mode)
	fmt.Printf("Data: %s\n", execMode.DataDir)
	fmt.Printf("Log: %s\n", execMode.LogPath)
	printRuleCount(cmd.Context(), store)
	fmt.Println("=======================")
	return nil
}

func runForeground(cmd *cobra.Command, args []string) error {
	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	// Foreground runs are not registered; status reports the daemon only.
	return runWatcher(store, nil, logger)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	store, execMode, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	logger := createLogger(execMode)
	defer func() { _ = logger.Sync() }()

	return runWatcher(store, store, logger)
}

// runWatcher wires the enforcement pipeline and blocks until a shutdown
// signal or the end of the event stream.
func runWatcher(store *infra.EncryptedStore, registry domain.DaemonRegistry, logger *zap.Logger) error {
	pm := infra.NewProcessManager()

	source, err := buildEventSource(eventSource, pm, store, logger)
	if err != nil {
		return err
	}
	enforcer := buildEnforcer(store, pm, logger)

	d := domain.Daemon{
		PID:        os.Getpid(),
		Role:       domain.RoleWatcher,
		StartedAt:  time.Now(),
		AppVersion: Version,
	}

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			logger.Info("received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	if rulesFile != "" {
		rw := infra.NewRuleFileWatcher(rulesFile, store, policy.ValidateRule, logger)
		go func() {
			if err := rw.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("rule file watcher stopped", zap.Error(err))
			}
		}()
	}

	watcher := daemon.NewWatcher(daemon.DefaultWatcherConfig(), source, enforcer, registry, d, logger)
	err = watcher.Run(ctx)
	if registry != nil {
		if clearErr := registry.Clear(); clearErr != nil {
			logger.Warn("failed to clear daemon state", zap.Error(clearErr))
		}
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func buildEnforcer(store *infra.EncryptedStore, pm domain.ProcessManager, logger *zap.Logger) *usecase.EnforcerImpl {
	lockScreen := infra.NewProcessLockScreen(pm, logger)
	activity := infra.NewActivityClient(infra.DefaultSyncConfig(), logger)
	dispatcher := usecase.NewDispatcher(lockScreen, activity, store, selfPackage, logger)
	gate := usecase.NewThrottleGate(domain.DefaultThrottleDelay)
	return usecase.NewEnforcer(gate, store, dispatcher, logger)
}

func buildEventSource(kind string, pm domain.ProcessManager, rules domain.RuleRepository, logger *zap.Logger) (domain.EventSource, error) {
	switch kind {
	case sourceProcess:
		return infra.NewProcessEventSource(infra.DefaultProcessSourceConfig(), pm, rules, logger), nil
	case sourceStdin:
		return infra.NewLineEventSource(os.Stdin, logger), nil
	default:
		return nil, fmt.Errorf("unknown event source %q (want %s or %s)", kind, sourceProcess, sourceStdin)
	}
}

func createLogger(execMode *infra.ExecModeConfig) *zap.Logger {
	_ = os.MkdirAll(filepath.Dir(execMode.LogPath), 0700)

	config := zap.NewProductionConfig()
	config.OutputPaths = []string{execMode.LogPath}
	config.ErrorOutputPaths = []string{execMode.ErrorLogPath}
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		// Fallback to stdout if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}

func runStatus(cmd *cobra.Command, args []string) error {
	store, execMode, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	fmt.Println("\n=== applock Status ===")

	status, err := daemon.GetWatcherStatus(store, infra.NewProcessManager(), time.Now())
	if err != nil {
		return err
	}

	switch {
	case status.Entry == nil || !status.Running:
		fmt.Println("Status: NOT RUNNING")
		fmt.Println("\nRun 'applock start' to enable locking.")
	case status.Stale:
		fmt.Println("Status: UNRESPONSIVE (heartbeat is stale)")
	default:
		fmt.Println("Status: RUNNING")
	}

	fmt.Printf("\nExecution mode: %s\n", execMode.Mode)
	fmt.Printf("Data directory: %s\n", execMode.DataDir)

	if status.Entry != nil && status.Running {
		if status.Entry.AppVersion != "" {
			fmt.Printf("Daemon version: %s\n", status.Entry.AppVersion)
		}
		lastBeat := time.Unix(status.Entry.LastHeartbeat, 0)
		fmt.Printf("Last heartbeat: %s ago\n", time.Since(lastBeat).Round(time.Second))
	}

	token, err := store.AuthToken()
	if err == nil && token != "" {
		fmt.Println("Activity sync: enabled")
	} else {
		fmt.Println("Activity sync: disabled (no session token)")
	}

	printRuleCount(cmd.Context(), store)
	fmt.Println("======================")
	return nil
}

func printRuleCount(ctx context.Context, repo domain.RuleRepository) {
	if ctx == nil {
		ctx = context.Background()
	}
	rules, err := repo.ListRules(ctx)
	if err != nil {
		fmt.Printf("Tracked apps: unknown (%v)\n", err)
		return
	}
	fmt.Printf("Tracked apps: %d\n", len(rules))
}

func runCheck(cmd *cobra.Command, args []string) error {
	at := time.Now()
	if checkAt != "" {
		parsed, err := time.Parse(time.RFC3339, checkAt)
		if err != nil {
			return fmt.Errorf("invalid --at: %w", err)
		}
		at = parsed
	}

	var rules domain.RuleStore
	if checkFrom != "" {
		registry, err := loadRuleFile(cmd.Context(), checkFrom)
		if err != nil {
			return err
		}
		rules = registry
	} else {
		store, _, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		rules = store
	}

	rule, err := rules.GetRule(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if rule == nil {
		fmt.Printf("%s is not tracked\n", args[0])
		return nil
	}

	outcome, err := policy.Resolve(*rule, at)
	if err != nil {
		fmt.Printf("Warning: %v (rule fails open)\n", err)
	}

	fmt.Printf("%s at %s: %s\n", rule.PackageName, at.Format(time.RFC3339), outcome.Action)
	if len(outcome.MatchedCriteria) > 0 {
		fmt.Printf("Locked during: %s\n", domain.JoinLockDates(outcome.MatchedCriteria))
	}
	return nil
}

// loadRuleFile reads a rule file into memory for a dry-run check; nothing
// is written to the store.
func loadRuleFile(ctx context.Context, path string) (*policy.Registry, error) {
	registry := policy.NewRegistry()
	if _, err := infra.ImportRules(ctx, registry, path, policy.ValidateRule); err != nil {
		return nil, err
	}
	return registry, nil
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("applock %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}
