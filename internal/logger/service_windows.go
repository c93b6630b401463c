//go:build windows

package logger

import (
	"os"

	"golang.org/x/sys/windows/svc"
)

// IsService checks if the application is running under the service control manager
func IsService() bool {
	if os.Getenv("SERVICE_NAME") != "" {
		return true
	}

	isService, err := svc.IsWindowsService()
	if err != nil {
		return false
	}

	return isService
}
