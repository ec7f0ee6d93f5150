// gtkbridge hosts native GTK capabilities in sandboxed helper processes
// and proxies them to the main process over the session D-Bus.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/lmittmann/tint"

	"github.com/halcyon-im/gtkbridge/internal/applock"
	"github.com/halcyon-im/gtkbridge/internal/config"
	"github.com/halcyon-im/gtkbridge/internal/gtkbus"
	"github.com/halcyon-im/gtkbridge/internal/helper"
	"github.com/halcyon-im/gtkbridge/internal/integration"
	"github.com/halcyon-im/gtkbridge/internal/notification"
	"github.com/halcyon-im/gtkbridge/internal/service"
	"github.com/halcyon-im/gtkbridge/internal/supervisor"
)

var progName = filepath.Base(os.Args[0])

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runRun(os.Args[2:])
	case "base-helper":
		runHelper(gtkbus.TypeBase, os.Args[2:])
	case "app-helper":
		runHelper(gtkbus.TypeApp, os.Args[2:])
	case "open-with":
		runOpenWith(os.Args[2:])
	case "service":
		runService(os.Args[2:])
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: %s <command> [options]

Commands:
  run           Start the helper supervisor for this working directory
  base-helper   GTK helper process (spawned by the supervisor)
  app-helper    GTK helper process with application-level capabilities
  open-with     Show the native "Open With" dialog for a file
  service       Manage the systemd user service

Run '%s <command> -h' for command-specific help.
`, progName, progName)
}

func runRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/gtkbridge/config.yaml)")
	workDir := fs.String("work-dir", "", "Working directory that roots the helper service identity (default: current directory)")
	allowedBackends := fs.String("allowed-backends", "", "GDK backend preference list passed to helpers (default: detect from session)")
	logLevel := fs.String("log-level", "info", "Log level: debug, info, warn, error")
	logFormat := fs.String("log-format", "text", "Log format: text (colored) or json")
	dialogTimeout := fs.Duration("dialog-timeout", integration.DefaultDialogTimeout, "Maximum wait for a dialog response")
	notifications := fs.Bool("notifications", true, "Enable desktop notifications for failing helpers")
	fs.Parse(args)

	// Load config and apply values for flags not explicitly set
	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	set := setFlags(fs)
	if !set["work-dir"] && cfg.WorkDir != "" {
		*workDir = cfg.WorkDir
	}
	if !set["allowed-backends"] && cfg.AllowedBackends != "" {
		*allowedBackends = cfg.AllowedBackends
	}
	if !set["log-level"] && cfg.Run.LogLevel != "" {
		*logLevel = cfg.Run.LogLevel
	}
	if !set["log-format"] && cfg.Run.LogFormat != "" {
		*logFormat = cfg.Run.LogFormat
	}
	if !set["dialog-timeout"] && cfg.Run.DialogTimeout != 0 {
		*dialogTimeout = time.Duration(cfg.Run.DialogTimeout)
	}
	if !set["notifications"] && cfg.Run.Notifications != nil {
		*notifications = *cfg.Run.Notifications
	}

	if *workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		*workDir = wd
	}
	if *allowedBackends == "" {
		*allowedBackends = integration.AllowedBackends()
	}

	levelVar := setupLogging(*logLevel, *logFormat)

	// One supervisor per working directory; the lock keeps a second
	// instance from fighting over the same helper identities.
	lock, err := applock.Acquire(*workDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer lock.Release()

	integration.Configure(integration.Settings{
		WorkDir:       *workDir,
		DialogTimeout: *dialogTimeout,
	})

	// Alert the user when a helper keeps falling off the bus.
	var notifHandler *notification.Handler
	if *notifications {
		notifier, err := notification.NewDBusNotifier("")
		if err != nil {
			slog.Warn("failed to create desktop notifier, notifications disabled", "error", err)
		} else {
			notifHandler = notification.NewHandler(notifier)
			defer notifier.Stop()
		}
	}

	backends := *allowedBackends
	var sup *supervisor.Supervisor
	sup = supervisor.New(supervisor.Config{
		WorkDir: *workDir,
		OnAppeared: func(t gtkbus.Type) {
			if err := integration.ForType(t).Load(backends); err != nil {
				slog.Warn("gtk helper load failed", "type", t, "error", err)
			}
		},
		OnVanished: func(t gtkbus.Type) {
			if notifHandler != nil {
				notifHandler.HelperVanished(sup.ServiceName(t))
			}
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	for _, t := range []gtkbus.Type{gtkbus.TypeBase, gtkbus.TypeApp} {
		sup.Start(t)
		sup.Autorestart(t)
	}
	slog.Info("supervisor running",
		"work_dir", *workDir,
		"base_service", sup.ServiceName(gtkbus.TypeBase),
		"app_service", sup.ServiceName(gtkbus.TypeApp))

	// Pick up log level changes without a restart.
	watchPath := *configPath
	if watchPath == "" {
		watchPath = config.DefaultPath()
	}
	if watchPath != "" {
		go func() {
			err := config.Watch(ctx, watchPath, func(c *config.Config) {
				if c.Run.LogLevel != "" {
					levelVar.Set(parseLogLevel(c.Run.LogLevel))
					slog.Info("log level updated", "level", c.Run.LogLevel)
				}
			})
			if err != nil && err != context.Canceled {
				slog.Debug("config watch stopped", "error", err)
			}
		}()
	}

	<-ctx.Done()
}

// runHelper is the entry point of a spawned helper process. The parent
// passes its unique bus name and the service identity to claim as
// positional arguments.
func runHelper(t gtkbus.Type, args []string) {
	fs := flag.NewFlagSet(helperName(t), flag.ExitOnError)
	busAddress := fs.String("bus-address", "", "D-Bus address to connect to instead of the session bus")
	logLevel := fs.String("log-level", "info", "Log level: debug, info, warn, error")
	logFormat := fs.String("log-format", "text", "Log format: text (colored) or json")
	fs.Parse(args)

	if fs.NArg() < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s %s [options] <parent-bus-name> <service-name>\n", progName, helperName(t))
		os.Exit(1)
	}

	setupLogging(*logLevel, *logFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	err := helper.Run(ctx, helper.Config{
		Type:          t,
		ParentBusName: fs.Arg(0),
		ServiceName:   fs.Arg(1),
		BusAddress:    *busAddress,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func helperName(t gtkbus.Type) string {
	if t == gtkbus.TypeBase {
		return "base-helper"
	}
	return "app-helper"
}

// runOpenWith spawns a helper with this process as parent, forwards an
// open-with request for the given file, and prints the user's choice.
func runOpenWith(args []string) {
	fs := flag.NewFlagSet("open-with", flag.ExitOnError)
	workDir := fs.String("work-dir", "", "Working directory that roots the helper service identity (default: current directory)")
	logLevel := fs.String("log-level", "info", "Log level: debug, info, warn, error")
	logFormat := fs.String("log-format", "text", "Log format: text (colored) or json")
	timeout := fs.Duration("timeout", integration.DefaultDialogTimeout, "Maximum wait for the dialog response")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "usage: %s open-with [options] <file>\n", progName)
		os.Exit(1)
	}
	target := fs.Arg(0)

	setupLogging(*logLevel, *logFormat)

	if *workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		*workDir = wd
	}

	conn, err := gtkbus.SessionConn()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	sup := supervisor.New(supervisor.Config{WorkDir: *workDir})
	sup.Start(gtkbus.TypeBase)

	name := sup.ServiceName(gtkbus.TypeBase)
	if err := waitForName(conn, name, 10*time.Second); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	integ := integration.New(integration.Config{
		Type:          gtkbus.TypeBase,
		Remoting:      true,
		Conn:          conn,
		ServiceName:   name,
		DialogTimeout: *timeout,
	})
	if err := integ.Load(integration.AllowedBackends()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	accepted, err := integ.ShowOpenWithDialog(target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if accepted {
		fmt.Println("accepted")
	} else {
		fmt.Println("dismissed")
	}
}

// runService handles the "service" subcommand group (install/uninstall/status).
func runService(args []string) {
	if len(args) == 0 {
		printServiceUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "install":
		runServiceInstall(args[1:])
	case "uninstall":
		if err := service.Uninstall(); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	case "status":
		service.Status()
	case "-h", "--help", "help":
		printServiceUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown service command: %s\n\n", args[0])
		printServiceUsage()
		os.Exit(1)
	}
}

func runServiceInstall(args []string) {
	fs := flag.NewFlagSet("service install", flag.ExitOnError)
	start := fs.Bool("start", false, "Start the service immediately after installing")
	configPath := fs.String("config", "", "Config file path to embed in the unit file")
	workDir := fs.String("work-dir", "", "Working directory to pin in the unit file")
	fs.Parse(args)

	if err := service.Install(service.Options{
		ConfigPath: *configPath,
		WorkDir:    *workDir,
		Start:      *start,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printServiceUsage() {
	fmt.Fprintf(os.Stderr, `Usage: %s service <command> [options]

Commands:
  install       Install and enable the systemd user service
  uninstall     Stop, disable, and remove the systemd user service
  status        Show the service status

Install options:
  --start       Start the service immediately after installing
  --config      Config file path to embed in the unit file's ExecStart
  --work-dir    Working directory to pin in the unit (keeps helper identities stable)
`, progName)
}

// waitForName polls the bus until name has an owner.
func waitForName(conn *dbus.Conn, name string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		var has bool
		err := conn.BusObject().Call("org.freedesktop.DBus.NameHasOwner", 0, name).Store(&has)
		if err == nil && has {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("timeout waiting for %s on the bus", name)
}

// setupLogging installs the global slog handler and returns the level
// var so the config watcher can adjust verbosity at runtime.
func setupLogging(logLevel, logFormat string) *slog.LevelVar {
	levelVar := new(slog.LevelVar)
	levelVar.Set(parseLogLevel(logLevel))

	var handler slog.Handler
	switch logFormat {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar})
	default:
		// When running under systemd, the journal adds its own timestamps.
		underSystemd := os.Getenv("INVOCATION_ID") != ""
		opts := &tint.Options{
			Level:      levelVar,
			TimeFormat: time.TimeOnly,
			NoColor:    underSystemd,
		}
		if underSystemd {
			opts.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey {
					return slog.Attr{}
				}
				return a
			}
		}
		handler = tint.NewHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
	return levelVar
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// loadConfig loads a config file. An explicit path that doesn't exist is an error.
// A missing default path is silently ignored (returns empty config).
func loadConfig(explicitPath string) (*config.Config, error) {
	if explicitPath != "" {
		cfg, err := config.Load(explicitPath)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", explicitPath, err)
		}
		if _, statErr := os.Stat(explicitPath); statErr != nil {
			return nil, fmt.Errorf("config file not found: %s", explicitPath)
		}
		return cfg, nil
	}

	defaultPath := config.DefaultPath()
	if defaultPath == "" {
		return &config.Config{}, nil
	}
	cfg, err := config.Load(defaultPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", defaultPath, err)
	}
	return cfg, nil
}

// setFlags returns the set of flag names that were explicitly provided on the command line.
func setFlags(fs *flag.FlagSet) map[string]bool {
	m := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { m[f.Name] = true })
	return m
}
