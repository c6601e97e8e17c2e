package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// NotFoundError represents an error when a GATT resource is not found
type NotFoundError struct {
	Resource string   // "service" or "characteristic"
	UUIDs    []string // One or more UUIDs (e.g., [serviceUUID] or [serviceUUID, charUUID])
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	return fmt.Sprintf("%s %q not found in service %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], e.UUIDs[0])
}

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
)

// ConnectionError represents a link-state problem reported by the transport
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
)

// Operation errors
var (
	ErrTimeout      = errors.New("timeout")
	ErrUnsupported  = errors.New("unsupported")
	ErrBluetoothOff = errors.New("bluetooth is turned off")
	ErrNotWritable  = errors.New("characteristic is not writable")
)

// ErrorKind classifies per-device failures so batch results can be reported
// without inspecting error strings.
type ErrorKind string

const (
	KindUnreachable  ErrorKind = "unreachable"
	KindNotFound     ErrorKind = "not_found"
	KindTimeout      ErrorKind = "timeout"
	KindLinkLost     ErrorKind = "link_lost"
	KindRejected     ErrorKind = "rejected"
	KindNotConnected ErrorKind = "not_connected"
	KindBluetoothOff ErrorKind = "bluetooth_off"
	KindCanceled     ErrorKind = "canceled"
)

// KindOf classifies err. Errors that carry no recognizable cause get fallback.
func KindOf(err error, fallback ErrorKind) ErrorKind {
	if err == nil {
		return ""
	}

	var (
		connErr  *ConnectError
		writeErr *WriteError
		discErr  *DisconnectError
		notFound *NotFoundError
	)
	switch {
	case errors.As(err, &connErr):
		return connErr.Kind
	case errors.As(err, &writeErr):
		return writeErr.Kind
	case errors.As(err, &discErr):
		return discErr.Kind
	case errors.As(err, &notFound):
		return KindNotFound
	case errors.Is(err, ErrBluetoothOff):
		return KindBluetoothOff
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, ErrNotConnected):
		return KindLinkLost
	default:
		return fallback
	}
}

// ConnectError reports a failed connection attempt: device unreachable,
// GATT service or characteristic missing, or timeout.
type ConnectError struct {
	Address string
	Kind    ErrorKind
	Err     error
}

// NewConnectError wraps err, classifying it with KindOf
func NewConnectError(address string, err error) *ConnectError {
	return &ConnectError{Address: address, Kind: KindOf(err, KindUnreachable), Err: err}
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %s: %v", e.Address, e.Kind, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// Is matches another *ConnectError by Kind; an empty target Kind matches any.
func (e *ConnectError) Is(target error) bool {
	t, ok := target.(*ConnectError)
	if !ok {
		return false
	}
	return t.Kind == "" || t.Kind == e.Kind
}

// WriteError reports a failed characteristic write: link dropped mid-write,
// value rejected by the characteristic, or timeout.
type WriteError struct {
	Address        string
	Characteristic string
	Kind           ErrorKind
	Err            error
}

// NewWriteError wraps err, classifying it with KindOf
func NewWriteError(address, characteristic string, err error) *WriteError {
	return &WriteError{
		Address:        address,
		Characteristic: characteristic,
		Kind:           KindOf(err, KindRejected),
		Err:            err,
	}
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s on %s: %s: %v", ShortenUUID(e.Characteristic), e.Address, e.Kind, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Is matches another *WriteError by Kind; an empty target Kind matches any.
func (e *WriteError) Is(target error) bool {
	t, ok := target.(*WriteError)
	if !ok {
		return false
	}
	return t.Kind == "" || t.Kind == e.Kind
}

// DisconnectError reports a failed disconnect. Disconnecting a link that is
// already down is not an error and never produces a DisconnectError.
type DisconnectError struct {
	Address string
	Kind    ErrorKind
	Err     error
}

// NewDisconnectError wraps err, classifying it with KindOf
func NewDisconnectError(address string, err error) *DisconnectError {
	return &DisconnectError{Address: address, Kind: KindOf(err, KindUnreachable), Err: err}
}

func (e *DisconnectError) Error() string {
	return fmt.Sprintf("disconnect %s: %s: %v", e.Address, e.Kind, e.Err)
}

func (e *DisconnectError) Unwrap() error { return e.Err }

// Is matches another *DisconnectError by Kind; an empty target Kind matches any.
func (e *DisconnectError) Is(target error) bool {
	t, ok := target.(*DisconnectError)
	if !ok {
		return false
	}
	return t.Kind == "" || t.Kind == e.Kind
}

// containsIgnoreCase checks substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// NormalizeError maps known transport error strings to the sentinel errors above.
// It ensures consistent handling even if the upstream library changes messages slightly.
// Returns wrapped errors to preserve original context.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case containsIgnoreCase(msg, "is Bluetooth turned on"),
		containsIgnoreCase(msg, "bluetooth is turned off"):
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "device not connected"),
		containsIgnoreCase(msg, "disconnected"):
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	case containsIgnoreCase(msg, "device already connected"):
		return fmt.Errorf("%w: %v", ErrAlreadyConnected, err)
	default:
		return err
	}
}
