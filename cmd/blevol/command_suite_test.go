package main

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/srg/blevol/internal/device"
	"github.com/srg/blevol/internal/devicefactory"
	"github.com/srg/blevol/internal/profile"
	"github.com/srg/blevol/internal/testutils"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

// Test device addresses for consistent mock device identification
const (
	TestAddressS3  = "AA:BB:CC:DD:EE:FF"
	TestAddressSX  = "AA:BB:CC:DD:EE:01"
	TestAddressJBL = "11:22:33:44:55:66"
)

// syncBuffer is a bytes.Buffer safe for the concurrent writers of serve.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// CommandTestSuite runs commands against a mocked BLE transport.
// All cmd/blevol test suites embed it.
type CommandTestSuite struct {
	suite.Suite

	Transport *testutils.MockTransport
	Handles   map[string]*testutils.MockHandle

	noColor         bool
	originalFactory func(*logrus.Logger) (device.Transport, error)
	factoryCalls    int
}

func (s *CommandTestSuite) SetupSuite() {
	s.noColor = color.NoColor
	color.NoColor = true
	s.originalFactory = devicefactory.TransportFactory
}

func (s *CommandTestSuite) TearDownSuite() {
	color.NoColor = s.noColor
	devicefactory.TransportFactory = s.originalFactory
}

func (s *CommandTestSuite) SetupTest() {
	s.Transport = &testutils.MockTransport{}
	s.Handles = make(map[string]*testutils.MockHandle)
	s.factoryCalls = 0
	devicefactory.TransportFactory = func(*logrus.Logger) (device.Transport, error) {
		s.factoryCalls++
		return s.Transport, nil
	}
	resetFlags()
}

// resetFlags restores package-level flag variables; cobra keeps them across
// Execute calls.
func resetFlags() {
	configPath = ""
	logLevel = ""
	verbose = false
	profilesFormat = "table"
	scanDuration = 0
	scanAll = false
	scanFormat = "table"
	volumeFormat = "table"
	serveInteractive = false
	serveMQTT = false
	serveBroker = ""
}

// resetContexts hands ctx to every subcommand. Cobra only propagates the root
// context to a subcommand that has none, so a later run would otherwise keep
// the context of the first one.
func resetContexts(ctx context.Context) {
	for _, c := range rootCmd.Commands() {
		c.SetContext(ctx)
	}
}

// ScanReturns programs the next scans to report devices.
func (s *CommandTestSuite) ScanReturns(devices ...device.DiscoveredDevice) {
	s.Transport.On("Scan", mock.Anything, mock.AnythingOfType("time.Duration")).Return(devices, nil)
}

// Speaker programs a reachable speaker accepting writes and disconnects.
func (s *CommandTestSuite) Speaker(address string) *testutils.MockHandle {
	h := testutils.NewMockHandle(address)
	h.On("Disconnect", mock.Anything).Return(nil)
	s.Handles[address] = h
	s.Transport.On("Connect", mock.Anything, address).Return(h, nil)
	return h
}

// ExpectVolume programs h to accept a write of v.
func (s *CommandTestSuite) ExpectVolume(h *testutils.MockHandle, v int, err error) *mock.Call {
	return h.On("WriteCharacteristic", mock.Anything, profile.BeoplayFunctionService, profile.BeoplayVolumeChar, []byte{byte(v)}).Return(err)
}

// ExecuteCommand runs the root command with args and returns stdout, stderr
// and the error.
func (s *CommandTestSuite) ExecuteCommand(in io.Reader, args ...string) (string, string, error) {
	stdout, stderr := new(syncBuffer), new(syncBuffer)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	if in == nil {
		in = bytes.NewReader(nil)
	}
	rootCmd.SetIn(in)
	rootCmd.SetArgs(args)
	ctx := context.Background()
	resetContexts(ctx)
	err := rootCmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

// ExecuteAsync runs the root command in the background; the result arrives
// on the returned channel.
func (s *CommandTestSuite) ExecuteAsync(ctx context.Context, in io.Reader, stdout, stderr io.Writer, args ...string) <-chan error {
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.SetIn(in)
	rootCmd.SetArgs(args)
	resetContexts(ctx)

	done := make(chan error, 1)
	go func() {
		done <- rootCmd.ExecuteContext(ctx)
	}()
	return done
}

// WaitFor polls cond until it holds or the test times out.
func (s *CommandTestSuite) WaitFor(cond func() bool, msg string) {
	s.Require().Eventually(cond, 5*time.Second, 10*time.Millisecond, msg)
}

func speakerAd(name, address string, rssi int) device.DiscoveredDevice {
	return device.DiscoveredDevice{Name: name, Address: address, RSSI: rssi}
}
