// Package gatt implements the Low Energy controller and service objects over
// the tinygo bluetooth adapter.
//
// Calls into the adapter block, so every client runs its operations on its own
// event loop and reports the results through the registered handlers.
package gatt

import (
	"context"
	"sync"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"

	api "github.com/bluetuith-org/bluelink/api/bluetooth"
	"github.com/bluetuith-org/bluelink/api/errorkinds"
)

// Adapter holds a tinygo adapter and the clients connected through it.
type Adapter struct {
	adapter *bluetooth.Adapter
	log     logrus.FieldLogger

	readBufferSize int

	// clients routes adapter-wide connection callbacks to the
	// client of the device, keyed by device address.
	clients *xsync.MapOf[string, *Controller]

	enable    sync.Once
	enableErr error

	describer CharacteristicDescriber
}

// CharacteristicDescriber resolves the properties and descriptors of a
// remote characteristic from the platform stack.
type CharacteristicDescriber interface {
	DescribeCharacteristic(device api.MacAddress, service, characteristic uuid.UUID) (api.Characteristic, bool)
}

// NewAdapter returns a new adapter. If adapter is nil, the default adapter is used.
func NewAdapter(adapter *bluetooth.Adapter, readBufferSize int, log logrus.FieldLogger) *Adapter {
	if adapter == nil {
		adapter = bluetooth.DefaultAdapter
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	if readBufferSize <= 0 {
		readBufferSize = 512
	}

	return &Adapter{
		adapter:        adapter,
		log:            log,
		readBufferSize: readBufferSize,
		clients:        xsync.NewMapOf[string, *Controller](),
	}
}

// SetDescriber sets the source of characteristic properties and descriptors.
// Without one, every characteristic is assumed to be readable, writable and
// notify-capable with a client characteristic configuration descriptor.
// It must be called before any client is created.
func (a *Adapter) SetDescriber(d CharacteristicDescriber) {
	a.describer = d
}

// Enable powers on the adapter. It is safe to call Enable multiple times.
func (a *Adapter) Enable() error {
	a.enable.Do(func() {
		if err := a.adapter.Enable(); err != nil {
			a.enableErr = fault.Wrap(err,
				fctx.With(context.Background(), "error_at", "gatt-enable-adapter"),
				ftag.With(ftag.Internal),
				fmsg.With("Cannot enable the Bluetooth adapter"),
			)
			return
		}

		a.adapter.SetConnectHandler(a.connectionChanged)
	})

	return a.enableErr
}

// NewController returns a GATT client for a Low Energy device.
func (a *Adapter) NewController(device api.DeviceData, handler api.ControllerHandler) (*Controller, error) {
	if handler == nil {
		return nil, fault.Wrap(errorkinds.ErrMethodCall,
			fctx.With(context.Background(), "error_at", "gatt-new-controller", "address", device.Address.String()),
			ftag.With(ftag.InvalidArgument),
			fmsg.With("No controller handler was provided"),
		)
	}

	if err := a.Enable(); err != nil {
		return nil, err
	}

	return newController(a, device, handler), nil
}

// connectionChanged is called by the adapter when any device connects or disconnects.
func (a *Adapter) connectionChanged(device bluetooth.Device, connected bool) {
	if connected {
		return
	}

	if c, ok := a.clients.Load(device.Address.String()); ok {
		c.remoteDisconnected()
	}
}

func (a *Adapter) register(c *Controller) {
	a.clients.Store(c.address.String(), c)
}

func (a *Adapter) unregister(c *Controller) {
	a.clients.Compute(c.address.String(), func(old *Controller, loaded bool) (*Controller, bool) {
		return old, !loaded || old == c
	})
}
