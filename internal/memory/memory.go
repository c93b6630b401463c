package memory

import "time"

const (
	// Values for SystemMemoryListInformation.
	memoryEmptyWorkingSets = 2
	memoryPurgeStandbyList = 4

	systemMemoryListInformation = 80

	profileSingleProcessPrivilege = "SeProfileSingleProcessPrivilege"
)

// NewSnapshot derives a Snapshot from raw counters. The standby list is
// approximated by the system file cache size; the OS does not expose it
// directly through the counters we read.
func NewSnapshot(c Counters, at time.Time) Snapshot {
	available := min(c.AvailablePhysical, c.TotalPhysical)
	standby := c.SystemCache

	var free uint64
	if available > standby {
		free = available - standby
	}

	return Snapshot{
		TotalPhysical:     c.TotalPhysical,
		AvailablePhysical: available,
		UsedPhysical:      c.TotalPhysical - available,
		StandbyListSize:   standby,
		FreeMemory:        free,
		UsagePercent:      min(c.UsagePercent, 100),
		PageSize:          c.PageSize,
		ProcessCount:      c.ProcessCount,
		ThreadCount:       c.ThreadCount,
		HandleCount:       c.HandleCount,
		CapturedAt:        at,
	}
}
