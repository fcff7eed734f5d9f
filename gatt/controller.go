package gatt

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"

	api "github.com/bluetuith-org/bluelink/api/bluetooth"
	"github.com/bluetuith-org/bluelink/api/errorkinds"
	"github.com/bluetuith-org/bluelink/api/eventloop"
)

// clientState describes the link state of a client.
type clientState uint32

const (
	clientIdle clientState = iota
	clientConnecting
	clientConnected
	clientClosed
)

// Controller is a GATT client bound to one Low Energy device.
type Controller struct {
	adapter *Adapter
	handler api.ControllerHandler
	log     logrus.FieldLogger

	mac     api.MacAddress
	address bluetooth.Address
	device  bluetooth.Device

	loop   *eventloop.Loop
	cancel context.CancelFunc

	state atomic.Uint32

	services map[uuid.UUID]bluetooth.DeviceService
	mu       sync.Mutex
}

func newController(a *Adapter, device api.DeviceData, handler api.ControllerHandler) *Controller {
	address := bluetooth.Address{}
	address.Set(device.Address.String())

	return &Controller{
		adapter:  a,
		handler:  handler,
		log:      a.log.WithField("address", device.Address),
		mac:      device.Address,
		address:  address,
		loop:     eventloop.New(),
		services: make(map[uuid.UUID]bluetooth.DeviceService),
	}
}

// ConnectToDevice connects to the device. ControllerConnected or ControllerError
// is reported once the connection attempt completes.
func (c *Controller) ConnectToDevice() error {
	if !c.state.CompareAndSwap(uint32(clientIdle), uint32(clientConnecting)) {
		return fault.Wrap(errorkinds.ErrMethodCall,
			fctx.With(context.Background(), "error_at", "gatt-connect", "address", c.address.String()),
			ftag.With(ftag.AlreadyExists),
			fmsg.With("The client is already connecting or connected"),
		)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.loop.Run(ctx)

	c.loop.Post(func() {
		device, err := c.adapter.adapter.Connect(c.address, bluetooth.ConnectionParams{})
		if err != nil {
			c.stop()
			c.handler.ControllerError(errorkinds.NewControllerError(errorkinds.ControllerConnection, err, "gatt-connect"))
			return
		}

		c.device = device
		c.adapter.register(c)

		if !c.state.CompareAndSwap(uint32(clientConnecting), uint32(clientConnected)) {
			// Disconnected while the connection attempt was pending.
			c.disconnect()
			return
		}

		c.log.Debug("GATT client connected")
		c.handler.ControllerConnected()
	})

	return nil
}

// DiscoverServices resolves the primary services of the device. Every service is
// reported with ServiceFound, followed by ServiceDiscoveryFinished.
func (c *Controller) DiscoverServices() error {
	if err := c.checkConnected("gatt-discover-services"); err != nil {
		return err
	}

	c.loop.Post(func() {
		services, err := c.device.DiscoverServices(nil)
		if err != nil {
			c.handler.ControllerError(errorkinds.NewControllerError(errorkinds.ServiceOperation, err, "gatt-discover-services"))
			return
		}

		found := make([]uuid.UUID, 0, len(services))

		c.mu.Lock()
		for _, svc := range services {
			id, err := fromTinyUUID(svc.UUID())
			if err != nil {
				c.log.WithError(err).Debug("Skipping service with unparseable UUID")
				continue
			}

			c.services[id] = svc
			found = append(found, id)
		}
		c.mu.Unlock()

		for _, id := range found {
			c.handler.ServiceFound(id)
		}
		c.handler.ServiceDiscoveryFinished()
	})

	return nil
}

// DisconnectFromDevice disconnects from the device. ControllerDisconnected is
// reported once the link is down.
func (c *Controller) DisconnectFromDevice() error {
	for {
		state := clientState(c.state.Load())

		switch state {
		case clientIdle, clientClosed:
			return nil

		case clientConnecting:
			// The pending connection attempt disconnects once it completes.
			if c.state.CompareAndSwap(uint32(state), uint32(clientClosed)) {
				return nil
			}

		case clientConnected:
			if c.state.CompareAndSwap(uint32(state), uint32(clientClosed)) {
				c.loop.Post(c.disconnect)
				return nil
			}
		}
	}
}

// CreateServiceObject returns a service object for a discovered service.
func (c *Controller) CreateServiceObject(id uuid.UUID, handler api.ServiceHandler) (api.LowEnergyService, error) {
	c.mu.Lock()
	svc, ok := c.services[id]
	c.mu.Unlock()

	if !ok {
		return nil, fault.Wrap(errorkinds.New(errorkinds.ServiceNotFound, 0, nil, "gatt-create-service"),
			fctx.With(context.Background(), "error_at", "gatt-create-service", "uuid", id.String()),
			ftag.With(ftag.NotFound),
			fmsg.With("The service was not discovered"),
		)
	}

	return newService(c, id, svc, handler), nil
}

func (c *Controller) checkConnected(at string) error {
	if clientState(c.state.Load()) == clientConnected {
		return nil
	}

	return fault.Wrap(errorkinds.ErrSessionNotExist,
		fctx.With(context.Background(), "error_at", at, "address", c.address.String()),
		ftag.With(ftag.Internal),
		fmsg.With("The device is not connected"),
	)
}

// disconnect drops the link and reports the disconnection.
func (c *Controller) disconnect() {
	if err := c.device.Disconnect(); err != nil {
		c.log.WithError(err).Debug("Cannot disconnect device")
	}

	c.stop()
	c.handler.ControllerDisconnected()
}

// remoteDisconnected is called when the adapter reports that the device is gone.
func (c *Controller) remoteDisconnected() {
	if !c.state.CompareAndSwap(uint32(clientConnected), uint32(clientClosed)) {
		return
	}

	c.log.Debug("GATT client disconnected by remote device")
	c.stop()
	c.handler.ControllerDisconnected()
}

// stop releases the client's loop and adapter registration.
func (c *Controller) stop() {
	c.state.Store(uint32(clientClosed))
	c.adapter.unregister(c)

	if c.cancel != nil {
		c.cancel()
	}
}
