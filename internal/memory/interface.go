package memory

import "time"

// Probe reads the current memory counters from the operating system.
type Probe interface {
	// Sample captures a fresh snapshot. An error means "no data this
	// tick"; callers retry on the next call.
	Sample() (Snapshot, error)
}

// Reclaimer issues one-shot reclaim commands against OS-global memory
// state. Both operations acquire the required privilege for the duration of
// the call only and report failure as false, never as a panic.
type Reclaimer interface {
	PurgeStandbyList() bool
	EmptyWorkingSets() bool
}

// Counters are the raw values a Probe gathers before derivation.
type Counters struct {
	TotalPhysical     uint64
	AvailablePhysical uint64
	SystemCache       uint64
	UsagePercent      uint32
	PageSize          uint64
	ProcessCount      uint32
	ThreadCount       uint32
	HandleCount       uint32
}

// Snapshot is an immutable view of memory at one moment.
type Snapshot struct {
	TotalPhysical     uint64
	AvailablePhysical uint64
	UsedPhysical      uint64
	StandbyListSize   uint64
	FreeMemory        uint64
	UsagePercent      uint32
	PageSize          uint64
	ProcessCount      uint32
	ThreadCount       uint32
	HandleCount       uint32
	CapturedAt        time.Time
}
