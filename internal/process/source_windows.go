//go:build windows

package process

import (
	"unsafe"

	"codeberg.org/mutker/sysoptctl/internal/errors"
	"golang.org/x/sys/windows"
)

const killWait = 5000 // ms

var (
	modPsapi                 = windows.NewLazySystemDLL("psapi.dll")
	procGetProcessMemoryInfo = modPsapi.NewProc("GetProcessMemoryInfo")
)

type processMemoryCounters struct {
	Cb                         uint32
	PageFaultCount             uint32
	PeakWorkingSetSize         uintptr
	WorkingSetSize             uintptr
	QuotaPeakPagedPoolUsage    uintptr
	QuotaPagedPoolUsage        uintptr
	QuotaPeakNonPagedPoolUsage uintptr
	QuotaNonPagedPoolUsage     uintptr
	PagefileUsage              uintptr
	PeakPagefileUsage          uintptr
	PrivateUsage               uintptr
}

type systemSource struct{}

// NewSystemSource returns a Source backed by a Toolhelp snapshot.
func NewSystemSource() Source {
	return systemSource{}
}

func (systemSource) Snapshot() ([]Info, error) {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return nil, err
	}
	defer windows.CloseHandle(snap)

	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))
	if err := windows.Process32First(snap, &entry); err != nil {
		return nil, err
	}

	var procs []Info
	for {
		p := Info{
			PID:       entry.ProcessID,
			ParentPID: entry.ParentProcessID,
			Name:      trimExe(windows.UTF16ToString(entry.ExeFile[:])),
			Threads:   entry.Threads,
		}
		if p.PID == 0 {
			p.Name = "System Idle Process"
		}
		query(&p)
		procs = append(procs, p)

		if err := windows.Process32Next(snap, &entry); err != nil {
			if errors.Is(err, windows.ERROR_NO_MORE_FILES) {
				break
			}
			return nil, err
		}
	}

	return procs, nil
}

// query fills the fields that need a process handle. Processes we may not
// open keep zero values.
func query(p *Info) {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, p.PID)
	if err != nil {
		return
	}
	defer windows.CloseHandle(h)

	buf := make([]uint16, windows.MAX_LONG_PATH)
	size := uint32(len(buf))
	if windows.QueryFullProcessImageName(h, 0, &buf[0], &size) == nil {
		p.Path = windows.UTF16ToString(buf[:size])
	}

	var mc processMemoryCounters
	mc.Cb = uint32(unsafe.Sizeof(mc))
	if r, _, _ := procGetProcessMemoryInfo.Call(uintptr(h), uintptr(unsafe.Pointer(&mc)), uintptr(mc.Cb)); r != 0 {
		p.WorkingSet = uint64(mc.WorkingSetSize)
		p.PrivateBytes = uint64(mc.PrivateUsage)
	}
}

func (systemSource) Kill(pid uint32) error {
	h, err := windows.OpenProcess(windows.PROCESS_TERMINATE|windows.SYNCHRONIZE, false, pid)
	if err != nil {
		return err
	}
	defer windows.CloseHandle(h)

	if err := windows.TerminateProcess(h, 1); err != nil {
		return err
	}

	if ev, err := windows.WaitForSingleObject(h, killWait); err != nil {
		return err
	} else if ev == uint32(windows.WAIT_TIMEOUT) {
		return errors.New().New(errors.ErrTimeout)
	}

	return nil
}
