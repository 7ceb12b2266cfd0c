// Imapnotify watches an IMAP inbox and announces new mail in chat.
//
// Each invocation performs a single pass: it searches INBOX for unseen
// messages, announces the ones addressed to a watched recipient through
// a Telegram-compatible bot, and marks a message unseen again when no
// chat could be reached. Run it from cron or a systemd timer.
// Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	imapnotify                  Run one pass
//	imapnotify -config <path>   Run one pass with an explicit config
//	imapnotify init [dir]       Write an example config.yaml
//	imapnotify last             Show the last pass from the run journal
//	imapnotify version          Print version and build information
//	imapnotify -o json version  Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nugget/imapnotify/internal/bridge"
	"github.com/nugget/imapnotify/internal/buildinfo"
	"github.com/nugget/imapnotify/internal/config"
	"github.com/nugget/imapnotify/internal/journal"
	"github.com/nugget/imapnotify/internal/mailbox"
	"github.com/nugget/imapnotify/internal/notify"
	"github.com/nugget/imapnotify/internal/status"
)

// main constructs the OS-level environment and delegates to [run], so
// the whole lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. Logs go to stdout; run returns nil after
// a clean pass and an error for any failure that should produce a
// non-zero exit status.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	// Arguments are parsed by hand to keep run free of flag package
	// globals.
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "", "run":
		return runPass(ctx, stdout, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "last":
		return runLast(stdout, configPath, outputFmt)
	case "version":
		return runVersion(stdout, outputFmt)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runPass loads the configuration, connects to the mailbox, and performs
// one notification pass. The run journal and MQTT report are written
// afterwards when configured; their failures are logged but do not
// change the result.
func runPass(ctx context.Context, stdout io.Writer, configPath string) error {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	level, _ := config.ParseLogLevel(cfg.LogLevel) // validated by Load
	logger := newLogger(stdout, level, cfg.LogFormat)
	logger.Debug("config loaded", "path", cfgPath, "version", buildinfo.Version)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sess, err := mailbox.Dial(ctx, cfg.Mail, logger)
	if err != nil {
		logger.Error("unable to connect to mail server",
			"server", cfg.Mail.Server,
			"port", cfg.Mail.Port,
			"error", err,
		)
		return fmt.Errorf("connect to %s:%d: %w", cfg.Mail.Server, cfg.Mail.Port, err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Debug("mail session close failed", "error", err)
		}
	}()

	notifier := notify.New(cfg.Bot, cfg.Recipients, notify.NewSilentHours(cfg.SilentHours),
		notify.WithLogger(logger),
	)
	runner := bridge.NewRunner(sess, notifier, bridge.NewFilter(cfg.Filters), logger)

	sum, runErr := runner.Run(ctx)

	recordRun(cfg, sum, logger)
	publishRun(cfg, sum, runErr, logger)

	if runErr != nil {
		return fmt.Errorf("notification pass: %w", runErr)
	}
	return nil
}

// recordRun appends the pass to the SQLite journal when db is set.
func recordRun(cfg *config.Config, sum bridge.Summary, logger *slog.Logger) {
	if cfg.DB == "" {
		return
	}

	store, err := journal.NewStore(cfg.DB)
	if err != nil {
		logger.Warn("run journal unavailable", "path", cfg.DB, "error", err)
		return
	}
	defer store.Close()

	if err := store.Record(sum); err != nil {
		logger.Warn("run journal write failed", "path", cfg.DB, "error", err)
	}
}

// publishRun sends the retained MQTT report when a broker is set. It
// uses its own context so an interrupted pass is still reported.
func publishRun(cfg *config.Config, sum bridge.Summary, runErr error, logger *slog.Logger) {
	if !cfg.MQTT.Configured() {
		return
	}

	pub := status.New(cfg.MQTT, mqttClientID(), logger)
	if err := pub.Publish(context.Background(), status.NewReport(sum, runErr)); err != nil {
		logger.Warn("run report not published", "broker", cfg.MQTT.Broker, "error", err)
	}
}

func mqttClientID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return "imapnotify-" + host
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.BuildInfo()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "imapnotify - announce new IMAP mail in chat")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: imapnotify [flags] [command] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  run          Run one notification pass (default)")
	fmt.Fprintln(w, "  init [dir]   Write an example config.yaml (default: .)")
	fmt.Fprintln(w, "  last         Show the most recent pass from the run journal")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	for _, p := range config.DefaultSearchPaths() {
		fmt.Fprintf(w, "  %s\n", p)
	}
	return nil
}

// newLogger creates a structured logger writing to w at the given level.
// Format "json" selects JSON output; anything else uses text.
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// loadConfig locates and parses the YAML configuration file. Returns the
// parsed config, the path that was loaded, and any error.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}
