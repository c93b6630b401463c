package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"codeberg.org/mutker/sysoptctl/internal/cleanup"
	"codeberg.org/mutker/sysoptctl/internal/config"
	"codeberg.org/mutker/sysoptctl/internal/errors"
	"codeberg.org/mutker/sysoptctl/internal/history"
	"codeberg.org/mutker/sysoptctl/internal/memory"
	"codeberg.org/mutker/sysoptctl/internal/process"
	"codeberg.org/mutker/sysoptctl/internal/registry"
	"codeberg.org/mutker/sysoptctl/internal/startup"
	"github.com/dustin/go-humanize"
)

type commandFunc func(ctx context.Context, a *app, args []string) error

var commands = map[string]commandFunc{
	"monitor":      runMonitor,
	"dashboard":    runDashboard,
	"status":       runStatus,
	"purge":        runPurge,
	"trim":         runTrim,
	"scan":         runScan,
	"clean":        runClean,
	"backups":      runBackups,
	"restore":      runRestore,
	"flush-dns":    runFlushDNS,
	"clear-recent": runClearRecent,
	"history":      runHistory,
	"startup":      runStartup,
	"ps":           runPs,
	"kill":         runKill,
	"kill-tree":    runKillTree,
}

func runStatus(ctx context.Context, a *app, _ []string) error {
	cfg := a.store.Config()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	if s, err := memory.NewProbe().Sample(); err != nil {
		fmt.Fprintf(w, "Memory:\tunavailable (%v)\n", err)
	} else {
		fmt.Fprintf(w, "Total:\t%s\n", humanize.IBytes(s.TotalPhysical))
		fmt.Fprintf(w, "Used:\t%s (%d%%)\n", humanize.IBytes(s.UsedPhysical), s.UsagePercent)
		fmt.Fprintf(w, "Available:\t%s\n", humanize.IBytes(s.AvailablePhysical))
		fmt.Fprintf(w, "Standby:\t%s\n", humanize.IBytes(s.StandbyListSize))
		fmt.Fprintf(w, "Free:\t%s\n", humanize.IBytes(s.FreeMemory))
		fmt.Fprintf(w, "Processes:\t%d (%d threads, %d handles)\n", s.ProcessCount, s.ThreadCount, s.HandleCount)
	}

	fmt.Fprintf(w, "Auto-purge:\t%t (standby >= %d MB, free <= %d MB, every %d ms)\n",
		cfg.AutoPurgeEnabled, cfg.StandbyThresholdMB, cfg.FreeMemoryThresholdMB, cfg.PollingRateMs)
	fmt.Fprintf(w, "Start at logon:\t%t\n", startup.New(a.registry, nil, a.log).Enabled())

	if n := cleanup.NewDNSFlusher(a.runner, a.log).CacheEntryCount(ctx); n >= 0 {
		fmt.Fprintf(w, "DNS cache entries:\t%d\n", n)
	}
	if locations, err := cleanup.DefaultRecentLocations(); err == nil {
		info := cleanup.NewRecentFiles(a.fs, a.log, locations...).Info()
		fmt.Fprintf(w, "Recent files:\t%d (%s)\n", info.TotalCount, humanize.IBytes(info.TotalSize))
	}

	for _, op := range []config.Operation{config.OpMemoryClean, config.OpDNSFlush, config.OpRecentFilesClear, config.OpRegistryClean} {
		fmt.Fprintf(w, "Last %s:\t%s\n", op, lastRun(a.store.LastRun(op)))
	}

	return nil
}

func lastRun(at time.Time) string {
	if at.IsZero() {
		return "never"
	}
	return humanize.Time(at)
}

func runPurge(ctx context.Context, a *app, _ []string) error {
	outcome, err := a.newMonitor().PurgeNow(ctx)
	if !outcome.Timestamp.IsZero() {
		a.recordPurge(ctx, outcome)
	}
	if err != nil {
		return err
	}
	if !outcome.Success {
		return errors.New().WithMessage(errors.ErrOperationFailed, "standby list purge was rejected")
	}

	fmt.Printf("Freed %s (standby %s -> %s)\n", humanize.IBytes(outcome.BytesFreed),
		humanize.IBytes(outcome.PreviousStandbySize), humanize.IBytes(outcome.NewStandbySize))

	return nil
}

func runTrim(ctx context.Context, a *app, _ []string) error {
	track := cleanup.Track(nil)
	ok := memory.NewReclaimer(a.log).EmptyWorkingSets()

	r := track.Finish(cleanup.Result{Success: ok, Operation: history.ActionEmptyWorkingSets})
	if ok {
		r.Message, r.ItemsProcessed = "Working sets emptied", 1
	} else {
		r.Message, r.ItemsFailed = "Emptying working sets failed", 1
	}
	a.recordResult(ctx, r, config.OpMemoryClean)

	return printResult(r)
}

func runScan(ctx context.Context, a *app, _ []string) error {
	issues := a.scan(ctx)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, issue := range issues {
		fmt.Fprintf(w, "%s\t%s\t%s\n", issue.Category, issue.Severity, issue.Description)
	}
	w.Flush()
	fmt.Printf("%d issues found\n", len(issues))

	return ctx.Err()
}

func (a *app) scan(ctx context.Context) []registry.Issue {
	scanner := registry.NewScanner(a.registry, a.fs, a.log)
	return scanner.Scan(ctx, func(percent int) {
		fmt.Fprintf(os.Stderr, "\rScanning... %3d%%", percent)
		if percent == 100 {
			fmt.Fprintln(os.Stderr)
		}
	})
}

func (a *app) cleaner() *registry.Cleaner {
	return registry.NewCleaner(a.registry, a.fs, a.runner, a.store.Config().BackupDir, a.log)
}

func runClean(ctx context.Context, a *app, _ []string) error {
	issues := a.scan(ctx)
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(issues) == 0 {
		fmt.Println("No registry issues found")
		return nil
	}

	c := a.cleaner()
	if a.store.Config().CreateRegistryBackup {
		path, err := c.CreateBackup(ctx)
		if err != nil {
			return err
		}
		if !c.VerifyBackup(path) {
			return errors.New().WithData(registry.ErrBackupFailed, path)
		}
		fmt.Printf("Backup written to %s\n", path)
	}

	r := c.Clean(ctx, issues)
	a.recordResult(ctx, r, config.OpRegistryClean)

	return printResult(r)
}

func runBackups(_ context.Context, a *app, _ []string) error {
	backups, err := a.cleaner().ListBackups()
	if err != nil {
		return err
	}
	if len(backups) == 0 {
		fmt.Println("No registry backups")
	}
	for _, b := range backups {
		fmt.Println(b)
	}

	return nil
}

func runRestore(ctx context.Context, a *app, args []string) error {
	errFactory := errors.New()

	if len(args) != 1 {
		return errFactory.WithMessage(errors.ErrInvalidArgument, "restore needs exactly one backup path")
	}

	c := a.cleaner()
	if !c.VerifyBackup(args[0]) {
		return errFactory.WithData(registry.ErrRestoreFailed, args[0])
	}
	if !c.RestoreBackup(ctx, args[0]) {
		return errFactory.WithData(registry.ErrRestoreFailed, args[0])
	}

	fmt.Printf("Restored %s\n", args[0])

	return nil
}

func runFlushDNS(ctx context.Context, a *app, _ []string) error {
	r := cleanup.NewDNSFlusher(a.runner, a.log).Flush(ctx)
	a.recordResult(ctx, r, config.OpDNSFlush)

	return printResult(r)
}

func runClearRecent(ctx context.Context, a *app, _ []string) error {
	locations, err := cleanup.DefaultRecentLocations()
	if err != nil {
		return errors.New().Wrap(cleanup.ErrRecentLocation, err)
	}

	r := cleanup.NewRecentFiles(a.fs, a.log, locations...).Clear()
	a.recordResult(ctx, r, config.OpRecentFilesClear)

	return printResult(r)
}

func runHistory(ctx context.Context, a *app, args []string) error {
	n, err := countArg(args, history.DefaultRecent, "history count must be a positive number")
	if err != nil {
		return err
	}

	entries, err := a.history.Recent(ctx, n)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()
	for _, e := range entries {
		status := "ok"
		if !e.Success {
			status = "failed"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Timestamp.Format(time.DateTime), e.Action, status, e.Details)
	}

	return nil
}

func runStartup(_ context.Context, a *app, args []string) error {
	errFactory := errors.New()

	if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
		return errFactory.WithMessage(errors.ErrInvalidArgument, "usage: startup on|off")
	}
	enabled := args[0] == "on"

	if err := startup.New(a.registry, nil, a.log).Set(enabled); err != nil {
		return err
	}

	return a.store.SetStartWithWindows(enabled)
}

func (a *app) recordResult(ctx context.Context, r cleanup.Result, op config.Operation) {
	a.recordHistory(ctx, r)
	if r.Success {
		if err := a.store.MarkRun(op, r.Timestamp); err != nil {
			a.log.Warn().Err(err).Msg("Failed to save last run")
		}
	}
}

func (a *app) recordHistory(ctx context.Context, r cleanup.Result) {
	if err := a.history.Record(ctx, history.FromResult(r)); err != nil {
		a.log.Warn().Err(err).Str("operation", r.Operation).Msg("Failed to record result")
	}
}

func printResult(r cleanup.Result) error {
	fmt.Printf("%s: %s (%s)\n", r.Operation, r.Message, r.Duration.Round(time.Millisecond))
	if !r.Success {
		return errors.New().WithMessage(errors.ErrOperationFailed, r.Operation+" failed")
	}
	return nil
}

const defaultPs = 25

func runPs(_ context.Context, a *app, args []string) error {
	n, err := countArg(args, defaultPs, "ps count must be a positive number")
	if err != nil {
		return err
	}

	procs, err := process.New(process.NewSystemSource(), a.log).List()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintln(w, "PID\tNAME\tWORKING SET\tPRIVATE\tTHREADS\t")
	for _, p := range procs[:min(n, len(procs))] {
		name := p.Name
		if p.Dangerous {
			name += " *"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t\n", p.PID, name,
			humanize.IBytes(p.WorkingSet), humanize.IBytes(p.PrivateBytes), p.Threads)
	}

	return nil
}

func runKill(ctx context.Context, a *app, args []string) error {
	return a.terminate(ctx, args, false)
}

func runKillTree(ctx context.Context, a *app, args []string) error {
	return a.terminate(ctx, args, true)
}

func (a *app) terminate(ctx context.Context, args []string, tree bool) error {
	if len(args) != 1 {
		return errors.New().WithMessage(errors.ErrInvalidArgument, "kill needs exactly one process id")
	}
	pid, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return errors.New().WithData(errors.ErrInvalidArgument, args[0])
	}

	m := process.New(process.NewSystemSource(), a.log)
	track := cleanup.Track(nil)

	var killed []process.Info
	if tree {
		killed, err = m.TerminateTree(uint32(pid))
	} else {
		var p process.Info
		if p, err = m.Terminate(uint32(pid)); err == nil {
			killed = append(killed, p)
		}
	}
	if errors.HasCode(err, process.ErrProtectedProcess) || errors.HasCode(err, process.ErrNotFound) {
		return err
	}

	r := track.Finish(cleanup.Result{
		Success:        err == nil,
		Operation:      process.ActionTerminate,
		ItemsProcessed: len(killed),
	})
	for _, p := range killed {
		r.BytesFreed += p.WorkingSet
	}
	if err != nil {
		r.ItemsFailed = 1
		r.Message = err.Error()
	} else {
		r.Message = fmt.Sprintf("Terminated %d process(es) (pid %d, %s freed)", len(killed), pid, r.BytesFreedHuman())
	}
	a.recordHistory(ctx, r)

	return printResult(r)
}

func countArg(args []string, def int, msg string) (int, error) {
	if len(args) == 0 {
		return def, nil
	}
	v, err := strconv.Atoi(args[0])
	if err != nil || v <= 0 {
		return 0, errors.New().WithMessage(errors.ErrInvalidArgument, msg)
	}
	return v, nil
}
