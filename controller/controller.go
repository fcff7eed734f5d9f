// Package controller unifies Classic RFCOMM and Low Energy GATT devices behind
// a single connect, send, receive and disconnect contract.
//
// A Controller is driven by a cooperative event loop. Every operation posts
// its work to the loop and returns immediately, and every platform callback
// is re-posted to the same loop, so the controller state has a single owner.
// Results are observed as events.
package controller

import (
	"context"
	"sync/atomic"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/bluetuith-org/bluelink/api/bluetooth"
	"github.com/bluetuith-org/bluelink/api/config"
	"github.com/bluetuith-org/bluelink/api/errorkinds"
	"github.com/bluetuith-org/bluelink/api/eventbus"
	"github.com/bluetuith-org/bluelink/api/eventloop"
	sstore "github.com/bluetuith-org/bluelink/api/helpers/sessionstore"
)

// Controller manages device discovery and at most one device connection.
type Controller struct {
	stack bluetooth.Stack
	log   logrus.FieldLogger
	exec  eventloop.Executor
	bus   *eventbus.Bus
	store sstore.SessionStore

	serviceUUID        uuid.UUID
	characteristicUUID uuid.UUID
	serialPortUUID     uuid.UUID

	discovery    bluetooth.DiscoveryAgent
	serviceAgent bluetooth.ServiceDiscoveryAgent
	serviceScan  bool

	// session is the single live connection. Its dynamic type selects the transport.
	session session

	connState      atomic.Uint32
	discoveryState atomic.Uint32
	transport      atomic.Uint32
}

// Option configures a Controller.
type Option func(c *Controller)

// WithLogger sets the logger of the controller.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Controller) {
		if log != nil {
			c.log = log
		}
	}
}

// WithExecutor sets the executor that runs the controller's work.
// By default, an eventloop.Loop is used, which must be driven by Run.
func WithExecutor(exec eventloop.Executor) Option {
	return func(c *Controller) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithEventHandler replaces the default event handler of the controller.
func WithEventHandler(eh eventbus.EventHandler) Option {
	return func(c *Controller) {
		c.bus.RegisterEventHandler(eh)
	}
}

// WithEventPublisher replaces only the event publisher of the controller.
// Subscriptions are disabled.
func WithEventPublisher(p eventbus.EventPublisher) Option {
	return func(c *Controller) {
		c.bus.RegisterEventHandlers(p, nil)
	}
}

// New returns a new controller over the provided stack.
// The stack must already be started.
func New(stack bluetooth.Stack, cfg config.Configuration, opts ...Option) (*Controller, error) {
	if stack == nil {
		return nil, fault.Wrap(errorkinds.ErrSessionNotExist,
			fctx.With(context.Background(), "error_at", "controller-new"),
			ftag.With(ftag.InvalidArgument),
			fmsg.With("No Bluetooth stack was provided"),
		)
	}

	c := &Controller{
		stack: stack,
		log:   logrus.StandardLogger(),
		exec:  eventloop.New(),
		bus:   eventbus.New(cfg.EventBufferSize),
		store: sstore.NewSessionStore(),
	}

	for _, u := range []struct {
		value  string
		target *uuid.UUID
	}{
		{cfg.ServiceUUID, &c.serviceUUID},
		{cfg.CharacteristicUUID, &c.characteristicUUID},
		{cfg.SerialPortUUID, &c.serialPortUUID},
	} {
		id, err := bluetooth.ParseUUID(u.value)
		if err != nil {
			return nil, fault.Wrap(err,
				fctx.With(context.Background(), "error_at", "controller-new", "uuid", u.value),
				ftag.With(ftag.InvalidArgument),
				fmsg.With("Invalid UUID in configuration"),
			)
		}

		*u.target = id
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Run drives the controller's event loop until the context is cancelled.
// If the controller uses an executor that is not a loop, Run only waits
// for the context.
func (c *Controller) Run(ctx context.Context) error {
	if loop, ok := c.exec.(interface {
		Run(ctx context.Context) error
	}); ok {
		return loop.Run(ctx)
	}

	<-ctx.Done()

	return ctx.Err()
}

// Close tears down the active session and stops all scans.
func (c *Controller) Close() {
	c.exec.Post(func() {
		if c.discovery != nil && c.discoveryState.Load() == uint32(DiscoveryActive) {
			if err := c.discovery.Stop(); err != nil {
				c.log.WithError(err).Debug("Cannot stop device discovery")
			}
			c.finishDiscovery()
		}

		c.teardown()
	})
}

// Subscribe subscribes to one or more controller events.
func (c *Controller) Subscribe(ids ...bluetooth.EventID) eventbus.SubscriberID {
	topics := make([]eventbus.EventID, 0, len(ids))
	for _, id := range ids {
		topics = append(topics, id)
	}

	return c.bus.Subscribe(topics...)
}

// Devices returns the devices found since the last discovery was started.
func (c *Controller) Devices() []bluetooth.DeviceData {
	return c.store.Devices()
}

// Device returns a discovered device.
func (c *Controller) Device(address bluetooth.MacAddress) (bluetooth.DeviceData, error) {
	device, ok := c.store.Device(address)
	if !ok {
		return device, fault.Wrap(errorkinds.ErrDeviceNotFound,
			fctx.With(context.Background(), "error_at", "controller-device", "address", address.String()),
			ftag.With(ftag.NotFound),
			fmsg.With("The device was not discovered"),
		)
	}

	return device, nil
}

// Services returns the Classic services reported for a device.
func (c *Controller) Services(address bluetooth.MacAddress) []bluetooth.ServiceData {
	return c.store.Services(address)
}

// ConnectionState returns the current connection state.
func (c *Controller) ConnectionState() ConnectionState {
	return ConnectionState(c.connState.Load())
}

// DiscoveryState returns the current discovery state.
func (c *Controller) DiscoveryState() DiscoveryState {
	return DiscoveryState(c.discoveryState.Load())
}

// Transport returns the transport of the active session.
func (c *Controller) Transport() bluetooth.Transport {
	return bluetooth.Transport(c.transport.Load())
}

func (c *Controller) setState(state ConnectionState) {
	if old := ConnectionState(c.connState.Swap(uint32(state))); old != state {
		c.log.WithFields(logrus.Fields{"from": old, "state": state}).Debug("Connection state changed")
	}
}

func (c *Controller) publish(id bluetooth.EventID, data any) {
	c.bus.Publish(id, data)
}

// publishError publishes a transport error. Errors that were not classified
// by the platform are published with the fallback kind and code.
func (c *Controller) publishError(err error, fallback errorkinds.Kind, code int) {
	kind, errCode := errorkinds.KindOf(err)
	if kind == errorkinds.KindNone {
		kind, errCode = fallback, code
	}

	c.log.WithError(err).WithFields(logrus.Fields{
		"kind": kind,
		"code": errCode,
	}).Error("Transport error")

	c.publish(bluetooth.EventTransportError, bluetooth.TransportErrorData{
		Kind: kind,
		Code: errCode,
		Err:  err,
	})
}

// warn logs an application-level invalid state. The operation that hit it
// becomes a no-op.
func (c *Controller) warn(kind errorkinds.Kind, fields logrus.Fields, msg string) {
	c.log.WithFields(fields).WithField("kind", kind).Warn(msg)
}
