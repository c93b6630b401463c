//go:build windows

package cleanup

import "golang.org/x/sys/windows"

var (
	modDnsapi                 = windows.NewLazySystemDLL("dnsapi.dll")
	procDnsFlushResolverCache = modDnsapi.NewProc("DnsFlushResolverCache")
)

func flushResolverCache() bool {
	if err := procDnsFlushResolverCache.Find(); err != nil {
		return false
	}

	r, _, _ := procDnsFlushResolverCache.Call()

	return r != 0
}
