// Package runtime holds the immutable, boot-time-constructed context
// threaded explicitly through the core instead of living in package-level
// globals.
package runtime

import (
	"github.com/google/uuid"

	"github.com/bluebuzzah/firmware/internal/config"
	"github.com/bluebuzzah/firmware/internal/role"
)

// Context is built once at boot and passed by value (it is small and
// immutable) to every component that needs to know who it's running as.
type Context struct {
	Role            role.Role
	FirmwareVersion string
	BootRunID       string
}

// New builds a Context from a loaded DeviceConfig, minting a fresh
// BootRunID for this run.
func New(device *config.DeviceConfig) Context {
	return Context{
		Role:            device.Role,
		FirmwareVersion: device.FirmwareVersion,
		BootRunID:       uuid.NewString(),
	}
}
