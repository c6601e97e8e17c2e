package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/srg/blevol/internal/device"
	"github.com/stretchr/testify/mock"
)

// MockTransport is a testify mock of device.Transport.
type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Scan(ctx context.Context, timeout time.Duration) ([]device.DiscoveredDevice, error) {
	args := m.Called(ctx, timeout)
	devices, _ := args.Get(0).([]device.DiscoveredDevice)
	return devices, args.Error(1)
}

func (m *MockTransport) Connect(ctx context.Context, address string) (device.Handle, error) {
	args := m.Called(ctx, address)
	h, _ := args.Get(0).(device.Handle)
	return h, args.Error(1)
}

// MockHandle is a testify mock of device.Handle. Link state is kept outside
// the mock expectations so tests can drop a link without reprogramming calls.
type MockHandle struct {
	mock.Mock

	address string

	mu        sync.Mutex
	connected bool
}

// NewMockHandle returns a connected handle for address.
func NewMockHandle(address string) *MockHandle {
	return &MockHandle{address: address, connected: true}
}

func (m *MockHandle) Address() string {
	return m.address
}

func (m *MockHandle) WriteCharacteristic(ctx context.Context, service, characteristic string, data []byte) error {
	args := m.Called(ctx, service, characteristic, data)
	return args.Error(0)
}

// Disconnect records the call and marks the link down unless the
// programmed result is an error.
func (m *MockHandle) Disconnect(ctx context.Context) error {
	args := m.Called(ctx)
	err := args.Error(0)
	if err == nil {
		m.SetConnected(false)
	}
	return err
}

func (m *MockHandle) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// SetConnected simulates the transport reporting a link change.
func (m *MockHandle) SetConnected(connected bool) {
	m.mu.Lock()
	m.connected = connected
	m.mu.Unlock()
}

// WrittenValues returns the payloads of every successful or failed write, in call order.
func (m *MockHandle) WrittenValues() [][]byte {
	var out [][]byte
	for _, call := range m.Calls {
		if call.Method == "WriteCharacteristic" {
			out = append(out, call.Arguments.Get(3).([]byte))
		}
	}
	return out
}
