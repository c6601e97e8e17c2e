// Package device defines the Bluetooth Low Energy transport boundary used by
// the speaker manager.
//
// Contents:
//   - DiscoveredDevice, Transport and Handle describe the GATT capability set
//     the manager depends on (scan, connect, write, disconnect)
//   - ConnectError, WriteError and DisconnectError form the error taxonomy
//     reported per device by batch operations
//   - UUID helpers normalize the many textual UUID forms to one lookup key
//
// Concrete transports live in sub-packages (see goble).
package device
