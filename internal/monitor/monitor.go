package monitor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/sysoptctl/internal/errors"
	"codeberg.org/mutker/sysoptctl/internal/logger"
	"codeberg.org/mutker/sysoptctl/internal/memory"
	"github.com/dustin/go-humanize"
)

const (
	defaultSettleDelay  = 100 * time.Millisecond
	defaultErrorBackoff = time.Second
	defaultPollInterval = time.Second
)

// Monitor polls memory and purges the standby list when the policy fires.
type Monitor struct {
	probe     memory.Probe
	reclaimer memory.Reclaimer
	policy    PolicySource
	log       logger.Logger

	settleDelay  time.Duration
	errorBackoff time.Duration
	now          func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	running atomic.Bool
	purges  atomic.Uint64
	dropped atomic.Uint64

	subMu   sync.Mutex
	subs    map[uint64]chan Event
	nextSub uint64
}

func New(probe memory.Probe, reclaimer memory.Reclaimer, policy PolicySource, log logger.Logger, opts ...Option) *Monitor {
	if log == nil {
		log = logger.Nop()
	}

	m := &Monitor{
		probe:        probe,
		reclaimer:    reclaimer,
		policy:       policy,
		log:          log.With("monitor"),
		settleDelay:  defaultSettleDelay,
		errorBackoff: defaultErrorBackoff,
		now:          time.Now,
		subs:         make(map[uint64]chan Event),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Start spawns the polling loop. Calling Start on a running monitor does
// nothing.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running.Store(true)

	go m.loop(ctx, m.done)

	m.log.Info().Msg("Memory monitoring started")
}

// Stop cancels the loop and waits for an in-flight tick to finish. No policy
// evaluation or purge starts after Stop returns. Stopping a stopped monitor
// does nothing.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel == nil {
		return
	}

	m.cancel()
	<-m.done

	m.cancel = nil
	m.done = nil
	m.running.Store(false)

	m.log.Info().Msg("Memory monitoring stopped")
}

// Run starts the monitor and blocks until ctx is done, then stops it.
func (m *Monitor) Run(ctx context.Context) error {
	m.Start()
	<-ctx.Done()
	m.Stop()

	return nil
}

func (m *Monitor) IsMonitoring() bool {
	return m.running.Load()
}

// PurgeCount returns the number of successful purges since construction.
func (m *Monitor) PurgeCount() uint64 {
	return m.purges.Load()
}

// PurgeNow samples memory, purges the standby list, waits for the counters
// to settle and samples again. The outcome is published to subscribers. An
// error is returned only when a sample fails; a rejected purge is reported
// through PurgeOutcome.Success.
func (m *Monitor) PurgeNow(ctx context.Context) (PurgeOutcome, error) {
	errFactory := errors.New()

	before, err := m.probe.Sample()
	if err != nil {
		return PurgeOutcome{}, errFactory.Wrap(ErrPurgeSample, err)
	}

	success := m.reclaimer.PurgeStandbyList()

	timer := time.NewTimer(m.settleDelay)
	select {
	case <-ctx.Done():
		timer.Stop()
	case <-timer.C:
	}

	outcome := PurgeOutcome{
		Success:             success,
		PreviousStandbySize: before.StandbyListSize,
		NewStandbySize:      before.StandbyListSize,
	}

	after, sampleErr := m.probe.Sample()
	if sampleErr == nil {
		outcome.NewStandbySize = after.StandbyListSize
		if after.AvailablePhysical > before.AvailablePhysical {
			outcome.BytesFreed = after.AvailablePhysical - before.AvailablePhysical
		}
	}
	outcome.Timestamp = m.now()

	if success {
		m.purges.Add(1)
	}

	m.publish(Event{Outcome: &outcome})
	m.logOutcome(outcome)

	if sampleErr != nil {
		return outcome, errFactory.Wrap(ErrPurgeSample, sampleErr)
	}

	return outcome, nil
}

// Subscribe registers a subscriber with a channel of the given capacity.
// Events are dropped for a subscriber whose channel is full. The returned
// function unsubscribes and closes the channel.
func (m *Monitor) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}

	ch := make(chan Event, buffer)

	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.subMu.Lock()
			delete(m.subs, id)
			close(ch)
			m.subMu.Unlock()
		})
	}
}

func (m *Monitor) publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = m.now()
	}

	m.subMu.Lock()
	defer m.subMu.Unlock()

	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
			n := m.dropped.Add(1)
			m.log.Debug().Uint64("dropped_total", n).Msg("Subscriber queue full, event dropped")
		}
	}
}

func (m *Monitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		wait, err := m.tick(ctx)
		if ctx.Err() != nil {
			return
		}

		if err != nil {
			m.publish(Event{Err: err})
			m.log.Warn().Err(err).Msg("Monitor iteration failed")
			wait = m.errorBackoff
		}

		if !sleep(ctx, wait) {
			return
		}
	}
}

func (m *Monitor) tick(ctx context.Context) (wait time.Duration, err error) {
	wait = defaultPollInterval

	defer func() {
		if r := recover(); r != nil {
			err = errors.New().WithData(ErrTickPanic, fmt.Sprint(r))
		}
	}()

	if ctx.Err() != nil {
		return wait, nil
	}

	policy := m.policy.AutoPurgePolicy()
	if policy.PollInterval > 0 {
		wait = policy.PollInterval
	}

	snapshot, err := m.probe.Sample()
	if err != nil {
		return wait, errors.New().Wrap(ErrSampleFailed, err)
	}

	m.publish(Event{Snapshot: &snapshot})

	if !policy.ShouldPurge(snapshot.StandbyListSize, snapshot.AvailablePhysical) {
		return wait, nil
	}

	if ctx.Err() != nil {
		return wait, nil
	}

	m.log.Info().
		Str("standby", humanize.IBytes(snapshot.StandbyListSize)).
		Str("available", humanize.IBytes(snapshot.AvailablePhysical)).
		Msg("Thresholds reached, purging standby list")

	if _, err := m.PurgeNow(ctx); err != nil {
		return wait, err
	}

	return wait, nil
}

func (m *Monitor) logOutcome(o PurgeOutcome) {
	if !o.Success {
		m.log.Warn().Msg("Standby list purge failed")
		return
	}

	m.log.Info().
		Str("freed", humanize.IBytes(o.BytesFreed)).
		Str("standby_before", humanize.IBytes(o.PreviousStandbySize)).
		Str("standby_after", humanize.IBytes(o.NewStandbySize)).
		Uint64("purge_count", m.purges.Load()).
		Msg("Standby list purged")
}

// sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
