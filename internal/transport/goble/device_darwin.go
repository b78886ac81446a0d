//go:build darwin

package goble

import (
	"fmt"
	"strings"

	blelib "github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
)

func newDefaultDevice() (blelib.Device, error) {
	dev, err := darwin.NewDevice()
	if err != nil {
		// CoreBluetooth reports power and permission problems as
		// opaque state errors; translate the common ones.
		if strings.Contains(err.Error(), "central manager has invalid state") {
			if strings.Contains(err.Error(), "have=4") {
				return nil, fmt.Errorf("bluetooth is powered off: %w", err)
			}
			return nil, fmt.Errorf("bluetooth is unavailable (check System Settings permissions): %w", err)
		}
		return nil, err
	}
	return dev, nil
}
