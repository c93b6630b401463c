package process

import "strings"

// protected holds lower-cased image names without the .exe suffix.
var protected = map[string]struct{}{}

func init() {
	for _, name := range []string{
		// core
		"System", "smss", "csrss", "wininit", "services", "lsass", "lsaiso",
		"svchost", "winlogon", "dwm", "explorer", "fontdrvhost", "sihost",
		"taskhostw", "RuntimeBroker", "ShellExperienceHost", "SearchHost",
		"StartMenuExperienceHost", "TextInputHost", "ctfmon", "conhost",
		"WmiPrvSE", "dllhost", "msdtc", "spoolsv", "wuauserv",
		// security
		"MsMpEng", "NisSrv", "SecurityHealthService", "SecurityHealthSystray",
		"SgrmBroker", "MpDefenderCoreService",
		// services and display
		"audiodg", "SearchIndexer", "SettingSyncHost", "SystemSettings",
		"ApplicationFrameHost", "WUDFHost", "dasHost", "Memory Compression",
		// network
		"netsh", "ipconfig",
	} {
		protected[strings.ToLower(name)] = struct{}{}
	}
}

// IsDangerous reports whether terminating the process could destabilize the
// system. PIDs 0 and 4 are the idle and kernel processes.
func IsDangerous(name string, pid uint32) bool {
	if pid <= 4 {
		return true
	}

	n := strings.ToLower(trimExe(name))
	if strings.HasPrefix(n, "svchost") {
		return true
	}
	_, ok := protected[n]

	return ok
}

func trimExe(name string) string {
	if len(name) > 4 && strings.EqualFold(name[len(name)-4:], ".exe") {
		return name[:len(name)-4]
	}
	return name
}
