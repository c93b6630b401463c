package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"codeberg.org/mutker/sysoptctl/internal/cleanup"
	"codeberg.org/mutker/sysoptctl/internal/config"
	"codeberg.org/mutker/sysoptctl/internal/errors"
	"codeberg.org/mutker/sysoptctl/internal/history"
	"codeberg.org/mutker/sysoptctl/internal/logger"
	"codeberg.org/mutker/sysoptctl/internal/registry"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
)

const dashboardLog = "dashboard.log"

const usageText = `Usage: sysoptctl [flags] [command] [args]

Commands:
  monitor            Watch memory and auto-purge the standby list (default)
  dashboard          Interactive memory dashboard
  status             Show memory, settings and last runs
  purge              Purge the standby list once
  trim               Empty the working sets of all processes
  scan               List registry issues
  clean              Back up the registry and clean all issues found
  backups            List registry backups
  restore <path>     Import a registry backup
  flush-dns          Flush the DNS resolver cache
  clear-recent       Delete recent-files shortcuts
  history [n]        Show the last n logged actions
  startup on|off     Start at logon
  ps [n]             List the n processes using the most memory (* = protected)
  kill <pid>         Terminate a process
  kill-tree <pid>    Terminate a process and its descendants

Flags:
`

// app holds the collaborators shared by all commands.
type app struct {
	store    *config.Store
	log      logger.Logger
	history  history.Recorder
	registry registry.Store
	fs       afero.Fs
	runner   cleanup.CommandRunner
}

func main() {
	flags := pflag.NewFlagSet("sysoptctl", pflag.ContinueOnError)
	config.RegisterFlags(flags)
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, usageText)
		flags.PrintDefaults()
	}

	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	configPath, _ := flags.GetString("config")
	store, err := config.Load(config.WithConfigFile(configPath), config.WithFlags(flags))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	cfg := store.Config()
	initLogger(cfg)
	logger.Debug().Str("path", store.Path()).Msg("Config loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	command, args := "monitor", flags.Args()
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	if command == "dashboard" {
		// the terminal belongs to the dashboard; log to a file instead
		dir := filepath.Dir(store.Path())
		_ = os.MkdirAll(dir, 0o755)
		f, err := os.OpenFile(filepath.Join(dir, dashboardLog), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err == nil {
			defer f.Close()
			logger.InitWithWriter(f, true)
		}
	}

	if err := run(ctx, store, command, args); err != nil {
		if errors.HasCode(err, errors.ErrUnknownCommand) {
			flags.Usage()
		}
		logger.Error().Err(err).Str("command", command).Msg("Command failed")
		stop()
		os.Exit(1)
	}
}

func initLogger(cfg config.Config) {
	logger.Init(cfg.Debug, cfg.Verbose, logger.IsService())
	if cfg.Debug || cfg.Verbose {
		return
	}
	if level, ok := logger.ParseLevel(cfg.LogLevel); ok {
		logger.SetLogLevel(level)
	}
}

func run(ctx context.Context, store *config.Store, command string, args []string) error {
	errFactory := errors.New()

	handler, ok := commands[command]
	if !ok {
		return errFactory.WithData(errors.ErrUnknownCommand, command)
	}

	a, err := newApp(store)
	if err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}
	defer func() {
		if err := a.history.Close(); err != nil {
			a.log.Warn().Err(err).Msg("Failed to close history")
		}
	}()

	return handler(ctx, a, args)
}

func newApp(store *config.Store) (*app, error) {
	cfg := store.Config()
	log := logger.Default()

	rec, err := history.NewService(history.Config{
		DBPath:       cfg.History.DBPath,
		Enabled:      cfg.History.Enabled,
		BatchSize:    cfg.History.BatchSize,
		BatchTimeout: cfg.History.BatchTimeout,
	}, log)
	if err != nil {
		return nil, err
	}

	return &app{
		store:    store,
		log:      log,
		history:  rec,
		registry: registry.NewSystemStore(),
		fs:       afero.NewOsFs(),
		runner:   cleanup.ExecRunner{},
	}, nil
}

// stateDir holds the pid file.
func (a *app) stateDir() string {
	return filepath.Dir(a.store.Path())
}
