// Package devicefactory selects the BLE transport used by the commands.
package devicefactory

import (
	"github.com/sirupsen/logrus"
	"github.com/srg/blevol/internal/device"
	goble "github.com/srg/blevol/internal/device/go-ble"
)

// TransportFactory creates the platform BLE transport.
// This is a variable so that it can be overridden in tests.
var TransportFactory = func(logger *logrus.Logger) (device.Transport, error) {
	t, err := goble.NewTransport(logger)
	if err != nil {
		return nil, err
	}
	return t, nil
}
