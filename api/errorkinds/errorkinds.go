// Package errorkinds describes the error taxonomy shared by the controller and
// the platform backends.
package errorkinds

import (
	"context"
	"errors"
	"strconv"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
)

var (
	ErrNotSupported    = fault.New("this operation is not supported")
	ErrSessionNotExist = fault.New("the session does not exist")
	ErrSessionStop     = fault.New("the session was stopped")
	ErrMethodCall      = fault.New("method call error")
	ErrMethodTimeout   = fault.New("method timed out")
	ErrAdapterNotFound = fault.New("adapter not found")
	ErrDeviceNotFound  = fault.New("device not found")
)

// Kind classifies an error raised while discovering or talking to a device.
type Kind uint8

const (
	KindNone Kind = iota
	DiscoveryFailure
	ServiceNotFound
	SocketError
	BleControllerError
	CharacteristicInvalid
	DescriptorMissing
	WriteNotPermittedNoActiveSession
)

// String returns the name of the error kind.
func (k Kind) String() string {
	switch k {
	case DiscoveryFailure:
		return "discovery-failure"
	case ServiceNotFound:
		return "service-not-found"
	case SocketError:
		return "socket-error"
	case BleControllerError:
		return "ble-controller-error"
	case CharacteristicInvalid:
		return "characteristic-invalid"
	case DescriptorMissing:
		return "descriptor-missing"
	case WriteNotPermittedNoActiveSession:
		return "write-not-permitted-no-active-session"
	}

	return "none"
}

// tag maps a kind to a fault tag.
func (k Kind) tag() ftag.Kind {
	switch k {
	case ServiceNotFound, DescriptorMissing:
		return ftag.NotFound
	case CharacteristicInvalid:
		return ftag.InvalidArgument
	case WriteNotPermittedNoActiveSession:
		return ftag.PermissionDenied
	}

	return ftag.Internal
}

// SocketErrorCode describes an RFCOMM socket failure.
type SocketErrorCode int

const (
	SocketNoError SocketErrorCode = iota
	SocketHostNotFound
	SocketServiceNotFound
	SocketUnsupportedProtocol
	SocketOperationError
	SocketRemoteHostClosed
	SocketNetworkError
	SocketUnknown
)

// String returns the name of the socket error code.
func (c SocketErrorCode) String() string {
	switch c {
	case SocketNoError:
		return "no-error"
	case SocketHostNotFound:
		return "host-not-found"
	case SocketServiceNotFound:
		return "service-not-found"
	case SocketUnsupportedProtocol:
		return "unsupported-protocol"
	case SocketOperationError:
		return "operation-error"
	case SocketRemoteHostClosed:
		return "remote-closed"
	case SocketNetworkError:
		return "network-error"
	}

	return "unknown"
}

// ControllerErrorCode describes a BLE controller or GATT service failure.
type ControllerErrorCode int

const (
	ControllerNoError ControllerErrorCode = iota
	ControllerUnknown
	ControllerUnknownRemoteDevice
	ControllerNetwork
	ControllerInvalidBluetoothAdapter
	ControllerConnection
	ControllerRemoteHostClosed
	ControllerAuthorization
	ControllerMissingPermissions

	ServiceOperation
	ServiceCharacteristicWrite
	ServiceDescriptorWrite
	ServiceCharacteristicRead
)

// String returns the name of the controller error code.
func (c ControllerErrorCode) String() string {
	switch c {
	case ControllerNoError:
		return "no-error"
	case ControllerUnknownRemoteDevice:
		return "unknown-remote-device"
	case ControllerNetwork:
		return "network-error"
	case ControllerInvalidBluetoothAdapter:
		return "invalid-adapter"
	case ControllerConnection:
		return "connection-error"
	case ControllerRemoteHostClosed:
		return "remote-host-closed"
	case ControllerAuthorization:
		return "authorization-error"
	case ControllerMissingPermissions:
		return "missing-permissions"
	case ServiceOperation:
		return "service-operation-error"
	case ServiceCharacteristicWrite:
		return "characteristic-write-error"
	case ServiceDescriptorWrite:
		return "descriptor-write-error"
	case ServiceCharacteristicRead:
		return "characteristic-read-error"
	}

	return "unknown-error"
}

// Error is a classified error. Code holds the kind-specific code, which is a
// SocketErrorCode for SocketError and a ControllerErrorCode for BleControllerError.
type Error struct {
	Kind Kind
	Code int
	Err  error
}

// Error returns the error message.
func (e *Error) Error() string {
	msg := e.Kind.String()
	if name := e.CodeName(); name != "" {
		msg += " (" + name + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// CodeName returns the name of the kind-specific code.
func (e *Error) CodeName() string {
	switch e.Kind {
	case SocketError:
		return SocketErrorCode(e.Code).String()

	case BleControllerError:
		return ControllerErrorCode(e.Code).String()
	}

	if e.Code == 0 {
		return ""
	}

	return strconv.Itoa(e.Code)
}

// New returns a classified error wrapping err. The error is tagged according to its kind.
func New(kind Kind, code int, err error, at string) error {
	if err == nil {
		err = fault.New(kind.String())
	}

	return fault.Wrap(&Error{Kind: kind, Code: code, Err: err},
		fctx.With(context.Background(), "error_at", at),
		ftag.With(kind.tag()),
		fmsg.With(kind.String()),
	)
}

// NewSocketError returns a classified RFCOMM socket error.
func NewSocketError(code SocketErrorCode, err error, at string) error {
	return New(SocketError, int(code), err, at)
}

// NewControllerError returns a classified BLE controller error.
func NewControllerError(code ControllerErrorCode, err error, at string) error {
	return New(BleControllerError, int(code), err, at)
}

// KindOf returns the kind and code of a classified error.
// If err was not classified, KindNone is returned.
func KindOf(err error) (Kind, int) {
	var e *Error
	if !errors.As(err, &e) {
		return KindNone, 0
	}

	return e.Kind, e.Code
}
