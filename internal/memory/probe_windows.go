//go:build windows

package memory

import (
	"time"
	"unsafe"

	"codeberg.org/mutker/sysoptctl/internal/errors"
	"golang.org/x/sys/windows"
)

var (
	modPsapi                   = windows.NewLazySystemDLL("psapi.dll")
	procGetPerformanceInfo     = modPsapi.NewProc("GetPerformanceInfo")
	modNtdll                   = windows.NewLazySystemDLL("ntdll.dll")
	procNtSetSystemInformation = modNtdll.NewProc("NtSetSystemInformation")
)

type performanceInformation struct {
	Cb                uint32
	CommitTotal       uintptr
	CommitLimit       uintptr
	CommitPeak        uintptr
	PhysicalTotal     uintptr
	PhysicalAvailable uintptr
	SystemCache       uintptr
	KernelTotal       uintptr
	KernelPaged       uintptr
	KernelNonpaged    uintptr
	PageSize          uintptr
	HandleCount       uint32
	ProcessCount      uint32
	ThreadCount       uint32
}

type systemProbe struct {
	now func() time.Time
}

// NewProbe returns a Probe backed by GlobalMemoryStatusEx and
// GetPerformanceInfo.
func NewProbe() Probe {
	return &systemProbe{now: time.Now}
}

func (p *systemProbe) Sample() (Snapshot, error) {
	errFactory := errors.New()

	var status windows.MemoryStatusEx
	status.Length = uint32(unsafe.Sizeof(status))
	if err := windows.GlobalMemoryStatusEx(&status); err != nil {
		return Snapshot{}, errFactory.Wrap(ErrProbeFailed, errFactory.Wrap(ErrMemoryStatus, err))
	}

	var perf performanceInformation
	perf.Cb = uint32(unsafe.Sizeof(perf))
	if r, _, err := procGetPerformanceInfo.Call(
		uintptr(unsafe.Pointer(&perf)),
		uintptr(perf.Cb),
	); r == 0 {
		return Snapshot{}, errFactory.Wrap(ErrProbeFailed, errFactory.Wrap(ErrPerformanceInfo, err))
	}

	pageSize := uint64(perf.PageSize)

	return NewSnapshot(Counters{
		TotalPhysical:     status.TotalPhys,
		AvailablePhysical: status.AvailPhys,
		SystemCache:       uint64(perf.SystemCache) * pageSize,
		UsagePercent:      status.MemoryLoad,
		PageSize:          pageSize,
		ProcessCount:      perf.ProcessCount,
		ThreadCount:       perf.ThreadCount,
		HandleCount:       perf.HandleCount,
	}, p.now()), nil
}
