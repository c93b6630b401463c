package history

import (
	"context"
	"fmt"

	"codeberg.org/mutker/sysoptctl/internal/cleanup"
	"codeberg.org/mutker/sysoptctl/internal/errors"
	"codeberg.org/mutker/sysoptctl/internal/logger"
	"codeberg.org/mutker/sysoptctl/internal/monitor"
	"github.com/dustin/go-humanize"
)

// Action names for memory operations. Cleaning results use their own
// Operation name.
const (
	ActionClearStandby     = "Clear Standby"
	ActionEmptyWorkingSets = "Empty Working Sets"
)

type service struct {
	repo Repository
	log  logger.Logger
}

type noopRecorder struct{}

// NewService returns a Recorder backed by SQLite, or a no-op recorder when
// history is disabled.
func NewService(cfg Config, log logger.Logger) (Recorder, error) {
	errFactory := errors.New()

	if log == nil {
		log = logger.Nop()
	} else {
		log = log.With("history")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if !cfg.Enabled {
		log.Debug().Msg("History disabled, using no-op recorder")
		return noopRecorder{}, nil
	}

	repo, err := NewRepository(cfg, log)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to create history repository")
		return nil, err
	}

	return &service{repo: repo, log: log}, nil
}

func (s *service) Record(ctx context.Context, entry Entry) error {
	errFactory := errors.New()

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
	}

	if err := s.repo.Record(entry); err != nil {
		return errFactory.Wrap(ErrRecordFailed, err)
	}

	return nil
}

func (s *service) Recent(ctx context.Context, n int) ([]Entry, error) {
	return s.repo.Recent(ctx, n)
}

func (s *service) Close() error {
	return s.repo.Close()
}

func (noopRecorder) Record(context.Context, Entry) error { return nil }

func (noopRecorder) Recent(context.Context, int) ([]Entry, error) { return nil, nil }

func (noopRecorder) Close() error { return nil }

// FromResult converts a cleaning result into a history entry.
func FromResult(r cleanup.Result) Entry {
	return Entry{
		Timestamp:      r.Timestamp,
		Action:         r.Operation,
		Details:        r.Message,
		Success:        r.Success,
		ItemsProcessed: r.ItemsProcessed,
		ItemsFailed:    r.ItemsFailed,
		BytesFreed:     r.BytesFreed,
		Duration:       r.Duration,
	}
}

// FromPurge converts a standby purge outcome into a history entry.
func FromPurge(o monitor.PurgeOutcome) Entry {
	e := Entry{
		Timestamp:  o.Timestamp,
		Action:     ActionClearStandby,
		Success:    o.Success,
		BytesFreed: o.BytesFreed,
	}

	if o.Success {
		e.Details = "Freed " + humanize.IBytes(o.BytesFreed)
		e.ItemsProcessed = 1
	} else {
		e.Details = fmt.Sprintf("Purge failed (standby %s)", humanize.IBytes(o.PreviousStandbySize))
		e.ItemsFailed = 1
	}

	return e
}
