package main

import (
	"context"

	"codeberg.org/mutker/sysoptctl/internal/config"
	"codeberg.org/mutker/sysoptctl/internal/errors"
	"codeberg.org/mutker/sysoptctl/internal/history"
	"codeberg.org/mutker/sysoptctl/internal/memory"
	"codeberg.org/mutker/sysoptctl/internal/monitor"
	"codeberg.org/mutker/sysoptctl/internal/pid"
	"codeberg.org/mutker/sysoptctl/internal/startup"
	"codeberg.org/mutker/sysoptctl/internal/tui"
	"golang.org/x/sync/errgroup"
)

const eventBuffer = 64

func (a *app) newMonitor() *monitor.Monitor {
	return monitor.New(memory.NewProbe(), memory.NewReclaimer(a.log), a.store, a.log)
}

// runMonitor is the long-running daemon: the polling loop, live config and
// outcome recording.
func runMonitor(ctx context.Context, a *app, _ []string) error {
	release, err := a.acquirePID()
	if err != nil {
		return err
	}
	defer release()

	a.syncStartup(a.store.Config().StartWithWindows)

	mon := a.newMonitor()
	g, gctx := errgroup.WithContext(ctx)

	a.superviseMonitor(gctx, g, mon)

	policy := a.store.AutoPurgePolicy()
	a.log.Info().
		Bool("auto_purge", policy.Enabled).
		Uint64("standby_threshold", policy.StandbyThresholdBytes).
		Uint64("free_threshold", policy.FreeThresholdBytes).
		Dur("interval", policy.PollInterval).
		Msg("Monitor mode activated")

	err = g.Wait()
	a.log.Info().Uint64("purges", mon.PurgeCount()).Msg("Exiting...")

	return err
}

// runDashboard runs the monitor behind the interactive dashboard.
func runDashboard(ctx context.Context, a *app, _ []string) error {
	release, err := a.acquirePID()
	if err != nil {
		return err
	}
	defer release()

	mon := a.newMonitor()
	events, unsubscribe := mon.Subscribe(eventBuffer)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	a.superviseMonitor(gctx, g, mon)

	g.Go(func() error {
		defer cancel()
		return tui.Run(gctx, tui.NewModel(gctx, events, mon, a.store))
	})

	return g.Wait()
}

// acquirePID writes the pid file. The returned func removes it again and
// logs a failure to do so.
func (a *app) acquirePID() (func(), error) {
	dir := a.stateDir()
	if err := pid.Write(dir); err != nil {
		return nil, err
	}

	return func() {
		if err := pid.Remove(dir); err != nil {
			a.log.Warn().Err(err).Str("path", pid.Path(dir)).Msg("Failed to remove pid file")
		}
	}, nil
}

// superviseMonitor adds the monitor loop, the config watcher and the outcome
// recorder to g.
func (a *app) superviseMonitor(ctx context.Context, g *errgroup.Group, mon *monitor.Monitor) {
	outcomes, unsubscribe := mon.Subscribe(eventBuffer)

	g.Go(func() error {
		return mon.Run(ctx)
	})

	g.Go(func() error {
		prev := a.store.Config().StartWithWindows
		return a.store.Watch(ctx, func(cfg config.Config) {
			if cfg.StartWithWindows != prev {
				prev = cfg.StartWithWindows
				a.syncStartup(prev)
			}
		})
	})

	g.Go(func() error {
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev, ok := <-outcomes:
				if !ok {
					return nil
				}
				if ev.Outcome != nil {
					a.recordPurge(ctx, *ev.Outcome)
				}
			}
		}
	})
}

func (a *app) recordPurge(ctx context.Context, o monitor.PurgeOutcome) {
	if err := a.history.Record(ctx, history.FromPurge(o)); err != nil {
		a.log.Warn().Err(err).Msg("Failed to record purge")
	}
	if o.Success {
		if err := a.store.MarkRun(config.OpMemoryClean, o.Timestamp); err != nil {
			a.log.Warn().Err(err).Msg("Failed to save last run")
		}
	}
}

// syncStartup brings the Run key in line with the setting.
func (a *app) syncStartup(enabled bool) {
	m := startup.New(a.registry, nil, a.log)
	if m.Enabled() == enabled {
		return
	}
	if err := m.Set(enabled); err != nil && !errors.HasCode(err, errors.ErrNotSupported) {
		a.log.Warn().Err(err).Bool("enabled", enabled).Msg("Failed to update start at logon")
	}
}
