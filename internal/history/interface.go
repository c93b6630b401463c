package history

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Recorder persists the action log.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
	// Recent returns up to n entries, newest first.
	Recent(ctx context.Context, n int) ([]Entry, error)
	Close() error
}

// Repository is the storage behind a Recorder.
type Repository interface {
	Record(entry Entry) error
	Recent(ctx context.Context, n int) ([]Entry, error)
	Close() error
}

// Entry is one logged action.
type Entry struct {
	ID             uuid.UUID
	Timestamp      time.Time
	Action         string
	Details        string
	Success        bool
	ItemsProcessed int
	ItemsFailed    int
	BytesFreed     uint64
	Duration       time.Duration
}
