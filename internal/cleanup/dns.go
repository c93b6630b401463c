package cleanup

import (
	"bytes"
	"context"
	"time"

	"codeberg.org/mutker/sysoptctl/internal/logger"
)

const (
	dnsFlushTimeout   = 5 * time.Second
	dnsDisplayTimeout = 10 * time.Second
)

var recordNameMarker = []byte("record name")

// DNSFlusher clears the resolver cache.
type DNSFlusher struct {
	native func() bool
	runner CommandRunner
	log    logger.Logger
	now    func() time.Time
}

func NewDNSFlusher(runner CommandRunner, log logger.Logger) *DNSFlusher {
	if runner == nil {
		runner = ExecRunner{}
	}
	if log == nil {
		log = logger.Nop()
	}

	return &DNSFlusher{
		native: flushResolverCache,
		runner: runner,
		log:    log.With("dns"),
		now:    time.Now,
	}
}

// Flush clears the cache through the resolver API, falling back to
// "ipconfig /flushdns" whose exit code decides success.
func (d *DNSFlusher) Flush(ctx context.Context) Result {
	tracker := Track(d.now)

	success := d.native()
	if !success {
		d.log.Debug().Msg("Native flush unavailable, running ipconfig")

		runCtx, cancel := context.WithTimeout(ctx, dnsFlushTimeout)
		code, err := d.runner.Run(runCtx, "ipconfig", "/flushdns")
		cancel()

		if err != nil {
			d.log.Warn().Err(err).Msg("ipconfig /flushdns failed")
		}
		success = err == nil && code == 0
	}

	message := "DNS cache flushed successfully"
	if !success {
		message = "Failed to flush DNS cache"
	}

	return tracker.Finish(Result{
		Success:   success,
		Operation: OperationDNSFlush,
		Message:   message,
	})
}

// CacheEntryCount counts the records listed by "ipconfig /displaydns". It
// returns -1 if the listing cannot be produced.
func (d *DNSFlusher) CacheEntryCount(ctx context.Context) int {
	runCtx, cancel := context.WithTimeout(ctx, dnsDisplayTimeout)
	defer cancel()

	out, err := d.runner.Output(runCtx, "ipconfig", "/displaydns")
	if err != nil {
		d.log.Debug().Err(err).Msg("ipconfig /displaydns failed")
		return -1
	}

	return bytes.Count(bytes.ToLower(out), recordNameMarker)
}
