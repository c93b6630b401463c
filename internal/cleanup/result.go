package cleanup

import (
	"time"

	"github.com/dustin/go-humanize"
)

// Operation names carried by Result.Operation.
const (
	OperationDNSFlush      = "DNS Cache Flush"
	OperationRecentFiles   = "Clear Recent Files"
	OperationRegistryClean = "Registry Clean"
)

// Result is the uniform outcome of a mutating cleanup operation.
type Result struct {
	Success        bool
	Operation      string
	Message        string
	ItemsProcessed int
	ItemsFailed    int
	BytesFreed     uint64
	Timestamp      time.Time
	Duration       time.Duration
}

// BytesFreedHuman formats BytesFreed for display.
func (r Result) BytesFreedHuman() string {
	return humanize.IBytes(r.BytesFreed)
}

// Tracker measures the duration of an operation and stamps its Result.
type Tracker struct {
	now   func() time.Time
	start time.Time
}

func Track(now func() time.Time) Tracker {
	if now == nil {
		now = time.Now
	}

	return Tracker{now: now, start: now()}
}

// Finish fills Timestamp and Duration on r.
func (t Tracker) Finish(r Result) Result {
	end := t.now()
	r.Timestamp = end
	r.Duration = end.Sub(t.start)

	return r
}
