//go:build linux

// Package linux implements the Bluetooth stack over the BlueZ DBus API.
// Low Energy devices are handled by the gatt package.
package linux

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"

	api "github.com/bluetuith-org/bluelink/api/bluetooth"
	"github.com/bluetuith-org/bluelink/api/config"
	"github.com/bluetuith-org/bluelink/api/errorkinds"
	"github.com/bluetuith-org/bluelink/gatt"
)

// BluezSession describes a Linux BlueZ DBus session.
type BluezSession struct {
	conn   *dbus.Conn
	cfg    config.Configuration
	log    logrus.FieldLogger
	gatt   *gatt.Adapter
	signal chan *dbus.Signal

	adapterPath dbus.ObjectPath

	// watchers receive every signal that matches the session's rules.
	watchers *xsync.MapOf[uint64, func(*dbus.Signal)]
	watchID  atomic.Uint64

	profiles atomic.Uint64

	stop sync.Once
	done chan struct{}
}

// NewBluezSession returns a new, unstarted BlueZ session.
func NewBluezSession(log logrus.FieldLogger) *BluezSession {
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &BluezSession{
		log:      log.WithField("stack", "bluez"),
		watchers: xsync.NewMapOf[uint64, func(*dbus.Signal)](),
		done:     make(chan struct{}),
	}
}

// Start attempts to initialize a session with the system's Bluetooth daemon or service.
func (b *BluezSession) Start(cfg config.Configuration) error {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return fault.Wrap(err,
			fctx.With(context.Background(), "error_at", "bluez-connect-bus"),
			ftag.With(ftag.Internal),
			fmsg.With("Cannot connect to the system bus"),
		)
	}

	b.conn = conn
	b.cfg = cfg
	b.adapterPath = bluezPath + "/" + dbus.ObjectPath(cfg.Adapter)

	if _, err := b.adapterProperty("Address"); err != nil {
		conn.Close()
		return fault.Wrap(errorkinds.ErrAdapterNotFound,
			fctx.With(context.Background(), "error_at", "bluez-find-adapter", "adapter", cfg.Adapter),
			ftag.With(ftag.NotFound),
			fmsg.With("Bluetooth adapter "+cfg.Adapter+" was not found"),
		)
	}

	for _, opt := range [][]dbus.MatchOption{
		{
			dbus.WithMatchInterface(objManagerIface),
			dbus.WithMatchMember("InterfacesAdded"),
		},
		{
			dbus.WithMatchInterface(propsIface),
			dbus.WithMatchMember("PropertiesChanged"),
			dbus.WithMatchPathNamespace(b.adapterPath),
		},
	} {
		if err := conn.AddMatchSignal(opt...); err != nil {
			conn.Close()
			return callError(err, "bluez-add-match")
		}
	}

	b.signal = make(chan *dbus.Signal, 32)
	conn.Signal(b.signal)
	go b.dispatch()

	b.gatt = gatt.NewAdapter(bluetooth.NewAdapter(cfg.Adapter), cfg.ReadBufferSize, b.log)
	b.gatt.SetDescriber(b)

	b.log.WithField("adapter", b.adapterPath).Info("BlueZ session started")

	return nil
}

// Stop attempts to stop a session with the system's Bluetooth daemon or service.
func (b *BluezSession) Stop() error {
	if b.conn == nil {
		return fault.Wrap(errorkinds.ErrSessionNotExist,
			fctx.With(context.Background(), "error_at", "bluez-stop"),
			ftag.With(ftag.Internal),
		)
	}

	var err error
	b.stop.Do(func() {
		close(b.done)
		b.conn.RemoveSignal(b.signal)
		err = b.conn.Close()
	})

	return err
}

// NewDiscoveryAgent returns an agent that scans for nearby devices on both radios.
func (b *BluezSession) NewDiscoveryAgent(handler api.DiscoveryHandler) (api.DiscoveryAgent, error) {
	if err := b.check(handler != nil); err != nil {
		return nil, err
	}

	return &discoveryAgent{b: b, handler: handler}, nil
}

// NewServiceDiscoveryAgent returns an agent that enumerates the services of a Classic device.
func (b *BluezSession) NewServiceDiscoveryAgent(address api.MacAddress, handler api.ServiceDiscoveryHandler) (api.ServiceDiscoveryAgent, error) {
	if err := b.check(handler != nil); err != nil {
		return nil, err
	}

	agent := &serviceAgent{
		bus:         b,
		log:         b.log,
		handler:     handler,
		adapterPath: b.adapterPath,
		timeout:     b.cfg.ServiceDiscoveryTimeout,
	}
	agent.SetRemoteAddress(address)

	return agent, nil
}

// NewRFCOMMSocket returns an unconnected RFCOMM socket.
func (b *BluezSession) NewRFCOMMSocket(handler api.SocketHandler) (api.RFCOMMSocket, error) {
	if err := b.check(handler != nil); err != nil {
		return nil, err
	}

	return newRFCOMMSocket(b, handler), nil
}

// NewLowEnergyController returns a GATT client for a Low Energy device.
func (b *BluezSession) NewLowEnergyController(device api.DeviceData, handler api.ControllerHandler) (api.LowEnergyController, error) {
	if err := b.check(true); err != nil {
		return nil, err
	}

	if err := b.gatt.Enable(); err != nil {
		return nil, err
	}

	controller, err := b.gatt.NewController(device, handler)
	if err != nil {
		return nil, err
	}

	return controller, nil
}

// DescribeCharacteristic resolves the flags and descriptors of a characteristic
// from the GATT objects that BlueZ exports for a connected device.
func (b *BluezSession) DescribeCharacteristic(device api.MacAddress, service, characteristic uuid.UUID) (api.Characteristic, bool) {
	objects, err := b.managedObjects()
	if err != nil {
		b.log.WithError(err).Debug("Cannot list GATT objects")
		return api.Characteristic{}, false
	}

	return characteristicFromObjects(objects, devicePath(b.adapterPath, device), service, characteristic)
}

// check verifies that the session is started and that a handler was provided.
func (b *BluezSession) check(hasHandler bool) error {
	if b.conn == nil {
		return fault.Wrap(errorkinds.ErrSessionNotExist,
			fctx.With(context.Background(), "error_at", "bluez-session-check"),
			ftag.With(ftag.Internal),
			fmsg.With("The BlueZ session is not started"),
		)
	}

	if !hasHandler {
		return fault.Wrap(errorkinds.ErrMethodCall,
			fctx.With(context.Background(), "error_at", "bluez-session-check"),
			ftag.With(ftag.InvalidArgument),
			fmsg.With("No handler was provided"),
		)
	}

	return nil
}

// watch registers fn to receive bus signals. The returned function removes it.
func (b *BluezSession) watch(fn func(*dbus.Signal)) func() {
	id := b.watchID.Add(1)
	b.watchers.Store(id, fn)

	return func() {
		b.watchers.Delete(id)
	}
}

func (b *BluezSession) dispatch() {
	for {
		select {
		case <-b.done:
			return

		case sig, ok := <-b.signal:
			if !ok {
				return
			}

			b.watchers.Range(func(_ uint64, fn func(*dbus.Signal)) bool {
				fn(sig)
				return true
			})
		}
	}
}

func (b *BluezSession) adapterObject() dbus.BusObject {
	return b.conn.Object(bluezService, b.adapterPath)
}

func (b *BluezSession) deviceObject(address api.MacAddress) dbus.BusObject {
	return b.conn.Object(bluezService, devicePath(b.adapterPath, address))
}

func (b *BluezSession) adapterProperty(name string) (dbus.Variant, error) {
	return b.adapterObject().GetProperty(adapterIface + "." + name)
}

func (b *BluezSession) deviceProperties(path dbus.ObjectPath) (map[string]dbus.Variant, error) {
	var props map[string]dbus.Variant

	if err := b.conn.Object(bluezService, path).Call(propsIface+".GetAll", 0, deviceIface).Store(&props); err != nil {
		return nil, callError(err, "bluez-device-properties", "path", string(path))
	}

	return props, nil
}

func (b *BluezSession) connectDevice(ctx context.Context, path dbus.ObjectPath) error {
	if err := b.conn.Object(bluezService, path).CallWithContext(ctx, deviceIface+".Connect", 0).Err; err != nil {
		return callError(err, "bluez-connect-device", "path", string(path))
	}

	return nil
}

// managedObjects returns every object that BlueZ exports.
func (b *BluezSession) managedObjects() (map[dbus.ObjectPath]map[string]map[string]dbus.Variant, error) {
	var objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

	if err := b.conn.Object(bluezService, "/").Call(objManagerIface+".GetManagedObjects", 0).Store(&objects); err != nil {
		return nil, callError(err, "bluez-managed-objects")
	}

	return objects, nil
}
