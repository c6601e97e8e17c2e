package device

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotFoundError(t *testing.T) {
	tests := []struct {
		name     string
		err      *NotFoundError
		expected string
	}{
		{
			name:     "resource only",
			err:      &NotFoundError{Resource: "service"},
			expected: "service not found",
		},
		{
			name:     "service",
			err:      &NotFoundError{Resource: "service", UUIDs: []string{"fe89"}},
			expected: `service "fe89" not found`,
		},
		{
			name:     "characteristic in service",
			err:      &NotFoundError{Resource: "characteristic", UUIDs: []string{"fe89", "44fa50b2"}},
			expected: `characteristic "44fa50b2" not found in service "fe89"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		fallback ErrorKind
		expected ErrorKind
	}{
		{name: "nil", err: nil, fallback: KindRejected, expected: ""},
		{name: "deadline", err: fmt.Errorf("dial: %w", context.DeadlineExceeded), fallback: KindUnreachable, expected: KindTimeout},
		{name: "timeout sentinel", err: ErrTimeout, fallback: KindUnreachable, expected: KindTimeout},
		{name: "canceled", err: context.Canceled, fallback: KindUnreachable, expected: KindCanceled},
		{name: "not found", err: &NotFoundError{Resource: "service", UUIDs: []string{"fe89"}}, fallback: KindUnreachable, expected: KindNotFound},
		{name: "link lost", err: fmt.Errorf("%w: gone", ErrNotConnected), fallback: KindRejected, expected: KindLinkLost},
		{name: "bluetooth off", err: NormalizeError(errors.New("bluetooth is turned off")), fallback: KindUnreachable, expected: KindBluetoothOff},
		{name: "nested typed error keeps its kind", err: fmt.Errorf("outer: %w", &WriteError{Kind: KindTimeout}), fallback: KindRejected, expected: KindTimeout},
		{name: "unknown uses fallback", err: errors.New("boom"), fallback: KindRejected, expected: KindRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, KindOf(tt.err, tt.fallback))
		})
	}
}

func TestTypedErrors(t *testing.T) {
	t.Run("connect error classifies and unwraps", func(t *testing.T) {
		cause := &NotFoundError{Resource: "characteristic", UUIDs: []string{"fe89", "44fa50b2"}}
		err := NewConnectError("AA:BB:CC:DD:EE:FF", cause)

		assert.Equal(t, KindNotFound, err.Kind)
		assert.ErrorIs(t, err, &ConnectError{Kind: KindNotFound})
		assert.ErrorIs(t, err, &ConnectError{})
		assert.NotErrorIs(t, err, &ConnectError{Kind: KindTimeout})

		var nf *NotFoundError
		assert.ErrorAs(t, err, &nf)
		assert.Contains(t, err.Error(), "connect AA:BB:CC:DD:EE:FF: not_found")
	})

	t.Run("write error defaults to rejected", func(t *testing.T) {
		err := NewWriteError("AA:BB:CC:DD:EE:FF", "44fa50b2d0a3472ea939d80cf17638bb", errors.New("att: write not permitted"))

		assert.Equal(t, KindRejected, err.Kind)
		assert.ErrorIs(t, err, &WriteError{Kind: KindRejected})
		assert.Equal(t, "write 44fa50b2 on AA:BB:CC:DD:EE:FF: rejected: att: write not permitted", err.Error())
	})

	t.Run("disconnect error keeps cause", func(t *testing.T) {
		cause := errors.New("hci: command disallowed")
		err := NewDisconnectError("AA:BB:CC:DD:EE:FF", cause)

		assert.Equal(t, KindUnreachable, err.Kind)
		assert.ErrorIs(t, err, cause)
		assert.ErrorIs(t, err, &DisconnectError{})
	})
}

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected error
	}{
		{name: "darwin bluetooth off", err: errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?"), expected: ErrBluetoothOff},
		{name: "device not connected", err: errors.New("device not connected"), expected: ErrNotConnected},
		{name: "disconnected", err: errors.New("peripheral disconnected"), expected: ErrNotConnected},
		{name: "already connected", err: errors.New("Device Already Connected"), expected: ErrAlreadyConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NormalizeError(tt.err)
			assert.ErrorIs(t, err, tt.expected)
			assert.Contains(t, err.Error(), tt.err.Error(), "original message MUST be preserved")
		})
	}

	t.Run("passes through unknown errors", func(t *testing.T) {
		orig := errors.New("some other error")
		assert.Same(t, orig, NormalizeError(orig))
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, NormalizeError(nil))
	})
}
