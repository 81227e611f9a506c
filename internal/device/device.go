package device

import (
	"os"
	"strings"

	"github.com/google/uuid"
)

// KioskManager handles kiosk ID generation and management
type KioskManager struct{}

// NewKioskManager creates a new kiosk manager
func NewKioskManager() *KioskManager {
	return &KioskManager{}
}

// GetOrGenerateKioskID returns the configured kiosk ID, falling back to a
// stable machine identifier and finally to a random UUID. The ID tags
// every request the kiosk makes so the server can attribute visits.
func (km *KioskManager) GetOrGenerateKioskID(existingID string) (string, error) {
	if existingID != "" {
		return existingID, nil
	}

	if machineID := readMachineID(); machineID != "" {
		return machineID, nil
	}

	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		return "kiosk-" + hostname, nil
	}

	return uuid.New().String(), nil
}

func readMachineID() string {
	for _, path := range []string{"/etc/machine-id", "/var/lib/dbus/machine-id"} {
		if data, err := os.ReadFile(path); err == nil && len(data) > 0 {
			return strings.TrimSpace(string(data))
		}
	}
	return ""
}
