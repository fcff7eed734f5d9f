//go:build linux

package linux

import (
	"context"
	"errors"
	"io"
	"os"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	api "github.com/bluetuith-org/bluelink/api/bluetooth"
	"github.com/bluetuith-org/bluelink/api/errorkinds"
)

// rfcommSocket is an RFCOMM channel opened through a BlueZ client profile.
// BlueZ hands the connected socket over to the profile object as a file descriptor.
type rfcommSocket struct {
	b       *BluezSession
	handler api.SocketHandler

	state atomic.Uint32

	mu      sync.Mutex
	file    *os.File
	pending []byte
	cancel  context.CancelFunc
	closing bool
}

// clientProfile is the Profile1 object that receives the RFCOMM descriptor.
type clientProfile struct {
	fd chan int
}

func newRFCOMMSocket(b *BluezSession, handler api.SocketHandler) *rfcommSocket {
	return &rfcommSocket{b: b, handler: handler}
}

func (r *rfcommSocket) ConnectToService(address api.MacAddress, service uuid.UUID) error {
	if !r.state.CompareAndSwap(uint32(api.SocketUnconnected), uint32(api.SocketConnecting)) {
		return errorkinds.NewSocketError(errorkinds.SocketOperationError,
			fault.Wrap(errorkinds.ErrMethodCall, fmsg.With("Socket is already in use")),
			"rfcomm-connect",
		)
	}

	ctx, cancel := context.WithCancel(context.Background())

	r.mu.Lock()
	r.cancel = cancel
	r.closing = false
	r.mu.Unlock()

	go r.connect(ctx, address, service)

	return nil
}

func (r *rfcommSocket) connect(ctx context.Context, address api.MacAddress, service uuid.UUID) {
	profile := &clientProfile{fd: make(chan int, 1)}
	path := dbus.ObjectPath("/org/bluetuith/bluelink/profile" + strconv.FormatUint(r.b.profiles.Add(1), 10))

	unregister, err := r.register(profile, path, service)
	if err != nil {
		r.failed(errorkinds.NewSocketError(socketErrorCode(err), err, "rfcomm-register-profile"))
		return
	}

	device := r.b.deviceObject(address)
	call := device.GoWithContext(ctx, deviceIface+".ConnectProfile", 0, nil, service.String())

	var fd int
	select {
	case <-ctx.Done():
		unregister()
		r.disconnected()
		return

	case <-call.Done:
		if call.Err != nil {
			unregister()
			if ctx.Err() != nil {
				r.disconnected()
				return
			}

			r.failed(errorkinds.NewSocketError(socketErrorCode(call.Err), callError(call.Err, "rfcomm-connect-profile",
				"address", address.String(),
			), "rfcomm-connect-profile"))
			return
		}

		select {
		case fd = <-profile.fd:
		case <-ctx.Done():
			unregister()
			r.disconnected()
			return
		}

	case fd = <-profile.fd:
	}

	unregister()

	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		r.failed(errorkinds.NewSocketError(errorkinds.SocketOperationError, err, "rfcomm-set-nonblock"))
		return
	}

	file := os.NewFile(uintptr(fd), "rfcomm-"+address.String())

	r.mu.Lock()
	if r.closing {
		r.mu.Unlock()
		file.Close()
		r.disconnected()
		return
	}
	r.file = file
	r.mu.Unlock()

	r.state.Store(uint32(api.SocketConnected))
	r.handler.SocketConnected()

	r.b.log.WithField("address", address).Info("RFCOMM channel connected")

	go r.read(file)
}

// register exports the profile object and registers it with BlueZ.
// The returned function removes the registration.
func (r *rfcommSocket) register(profile *clientProfile, path dbus.ObjectPath, service uuid.UUID) (func(), error) {
	if err := r.b.conn.Export(profile, path, profileIface); err != nil {
		return nil, callError(err, "rfcomm-export-profile")
	}

	manager := r.b.conn.Object(bluezService, bluezPath)
	opts := map[string]dbus.Variant{
		"Role":        dbus.MakeVariant("client"),
		"AutoConnect": dbus.MakeVariant(false),
	}
	if err := manager.Call(profileManagerIface+".RegisterProfile", 0, path, service.String(), opts).Err; err != nil {
		r.b.conn.Export(nil, path, profileIface)
		return nil, callError(err, "rfcomm-register-profile")
	}

	return func() {
		manager.Call(profileManagerIface+".UnregisterProfile", 0, path)
		r.b.conn.Export(nil, path, profileIface)
	}, nil
}

func (r *rfcommSocket) read(file *os.File) {
	size := r.b.cfg.ReadBufferSize
	if size <= 0 {
		size = 1024
	}

	buf := make([]byte, size)

	for {
		n, err := file.Read(buf)
		if n > 0 {
			r.mu.Lock()
			r.pending = append(r.pending, buf[:n]...)
			r.mu.Unlock()

			r.handler.SocketReadyRead()
		}

		if err == nil {
			continue
		}

		r.mu.Lock()
		closing := r.closing
		r.file = nil
		r.mu.Unlock()

		file.Close()

		if !closing {
			code := errorkinds.SocketNetworkError
			if errors.Is(err, io.EOF) || errors.Is(err, unix.ECONNRESET) {
				code = errorkinds.SocketRemoteHostClosed
			}

			r.handler.SocketError(errorkinds.NewSocketError(code, err, "rfcomm-read"))
		}

		r.disconnected()

		return
	}
}

func (r *rfcommSocket) Write(data []byte) (int, error) {
	r.mu.Lock()
	file := r.file
	r.mu.Unlock()

	if file == nil || !r.IsOpen() {
		return 0, errorkinds.NewSocketError(errorkinds.SocketOperationError,
			fault.Wrap(errorkinds.ErrSessionNotExist, fmsg.With("RFCOMM socket is not connected")),
			"rfcomm-write",
		)
	}

	n, err := file.Write(data)
	if err != nil {
		return n, errorkinds.NewSocketError(errorkinds.SocketNetworkError, err, "rfcomm-write")
	}

	return n, nil
}

func (r *rfcommSocket) ReadAll() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := r.pending
	r.pending = nil

	return data
}

// Close closes the channel. SocketDisconnected is reported once the
// channel or the pending connection is released.
func (r *rfcommSocket) Close() error {
	if r.State() == api.SocketUnconnected {
		return nil
	}

	r.mu.Lock()
	r.closing = true
	file, cancel := r.file, r.cancel
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if file == nil {
		return nil
	}

	r.state.Store(uint32(api.SocketClosing))

	if err := file.Close(); err != nil {
		return fault.Wrap(err,
			fctx.With(context.Background(), "error_at", "rfcomm-close"),
			ftag.With(ftag.Internal),
			fmsg.With("Cannot close the RFCOMM socket"),
		)
	}

	return nil
}

func (r *rfcommSocket) IsOpen() bool {
	return r.State() == api.SocketConnected
}

func (r *rfcommSocket) State() api.SocketState {
	return api.SocketState(r.state.Load())
}

func (r *rfcommSocket) failed(err error) {
	r.state.Store(uint32(api.SocketUnconnected))
	r.handler.SocketError(err)
}

func (r *rfcommSocket) disconnected() {
	r.state.Store(uint32(api.SocketUnconnected))
	r.handler.SocketDisconnected()
}

// Release is called by BlueZ when the profile is unregistered.
func (p *clientProfile) Release() *dbus.Error { return nil }

// Cancel is called when a profile request was cancelled.
func (p *clientProfile) Cancel() *dbus.Error { return nil }

// RequestDisconnection is handled by closing the socket.
func (p *clientProfile) RequestDisconnection(_ dbus.ObjectPath) *dbus.Error { return nil }

// NewConnection receives the connected RFCOMM socket.
func (p *clientProfile) NewConnection(_ dbus.ObjectPath, fd dbus.UnixFD, _ map[string]dbus.Variant) *dbus.Error {
	select {
	case p.fd <- int(fd):
		return nil

	default:
		unix.Close(int(fd))
		return dbus.NewError("org.bluez.Error.Rejected", []interface{}{"connection already accepted"})
	}
}
