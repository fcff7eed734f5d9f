//go:build linux

package linux

import (
	"context"
	"sync"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"

	api "github.com/bluetuith-org/bluelink/api/bluetooth"
	"github.com/bluetuith-org/bluelink/api/errorkinds"
)

// deviceBus is the part of the BlueZ session that service discovery uses.
type deviceBus interface {
	watch(fn func(*dbus.Signal)) func()
	deviceProperties(path dbus.ObjectPath) (map[string]dbus.Variant, error)

	// connectDevice connects to the device, which makes BlueZ run an SDP
	// query and resolve its services.
	connectDevice(ctx context.Context, path dbus.ObjectPath) error
}

// serviceAgent resolves the services of a Classic device from its UUIDs
// property. If BlueZ has not resolved them yet, the agent connects to the
// device to run an SDP query, and waits for ServicesResolved until the
// service discovery timeout.
type serviceAgent struct {
	bus         deviceBus
	log         logrus.FieldLogger
	handler     api.ServiceDiscoveryHandler
	adapterPath dbus.ObjectPath
	timeout     time.Duration

	mu      sync.Mutex
	address api.MacAddress
	scan    *serviceScan
}

type serviceScan struct {
	address  api.MacAddress
	path     dbus.ObjectPath
	reported map[string]struct{}

	cancel  context.CancelFunc
	unwatch func()
	timer   *time.Timer
	done    bool
}

func (s *serviceAgent) SetRemoteAddress(address api.MacAddress) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.address = address
}

func (s *serviceAgent) RemoteAddress() api.MacAddress {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.address
}

func (s *serviceAgent) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scan != nil {
		return fault.Wrap(errorkinds.ErrMethodCall, fmsg.With("A service scan is already running"))
	}

	ctx, cancel := context.WithCancel(context.Background())

	scan := &serviceScan{
		address:  s.address,
		path:     devicePath(s.adapterPath, s.address),
		reported: make(map[string]struct{}),
		cancel:   cancel,
	}
	scan.unwatch = s.bus.watch(func(sig *dbus.Signal) { s.signal(scan, sig) })
	scan.timer = time.AfterFunc(s.timeout, func() { s.finish(scan, nil) })
	s.scan = scan

	go s.resolve(ctx, scan)

	return nil
}

func (s *serviceAgent) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scan != nil {
		s.end(s.scan)
	}

	return nil
}

// resolve reports the services that BlueZ already knows of, and starts an
// SDP query if they are not resolved yet.
func (s *serviceAgent) resolve(ctx context.Context, scan *serviceScan) {
	props, err := s.bus.deviceProperties(scan.path)
	if err != nil {
		s.finish(scan, errorkinds.New(errorkinds.DiscoveryFailure, 0,
			fault.Wrap(errorkinds.ErrDeviceNotFound, fmsg.With(err.Error())),
			"bluez-resolve-services",
		))
		return
	}

	if v, ok := props["UUIDs"]; ok {
		s.report(scan, v)
	}

	if servicesResolved(props) {
		s.finish(scan, nil)
		return
	}

	s.log.WithField("address", scan.address).Debug("Services are not resolved, connecting to run an SDP query")

	if err := s.bus.connectDevice(ctx, scan.path); err != nil && ctx.Err() == nil {
		// The services known so far are reported when the scan times out.
		s.log.WithError(err).WithField("address", scan.address).Debug("Cannot connect to resolve services")
		return
	}

	if ctx.Err() != nil {
		return
	}

	// Connect returns once the services are resolved, and the change
	// signal may have been missed before the watcher saw it.
	if props, err := s.bus.deviceProperties(scan.path); err == nil {
		if v, ok := props["UUIDs"]; ok {
			s.report(scan, v)
		}
		if servicesResolved(props) {
			s.finish(scan, nil)
		}
	}
}

func (s *serviceAgent) signal(scan *serviceScan, sig *dbus.Signal) {
	if sig.Name != propsIface+".PropertiesChanged" || sig.Path != scan.path || len(sig.Body) < 2 {
		return
	}

	if iface, _ := sig.Body[0].(string); iface != deviceIface {
		return
	}

	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return
	}

	if v, ok := changed["UUIDs"]; ok {
		s.report(scan, v)
	}

	if servicesResolved(changed) {
		s.finish(scan, nil)
	}
}

func (s *serviceAgent) report(scan *serviceScan, v dbus.Variant) {
	for _, service := range serviceUUIDs(v) {
		key := service.UUID.String()

		s.mu.Lock()
		_, seen := scan.reported[key]
		if seen || scan.done {
			s.mu.Unlock()
			continue
		}
		scan.reported[key] = struct{}{}
		s.mu.Unlock()

		service.Address = scan.address
		s.handler.ServiceFound(service)
	}
}

// finish completes scan, reporting err if it is not nil.
func (s *serviceAgent) finish(scan *serviceScan, err error) {
	s.mu.Lock()
	if scan.done {
		s.mu.Unlock()
		return
	}
	s.end(scan)
	s.mu.Unlock()

	if err != nil {
		s.handler.ServiceScanError(scan.address, err)
		return
	}

	s.handler.ServiceScanFinished(scan.address)
}

// end marks scan as done. It must be called with the lock held.
func (s *serviceAgent) end(scan *serviceScan) {
	scan.done = true
	scan.cancel()
	scan.unwatch()
	scan.timer.Stop()

	if s.scan == scan {
		s.scan = nil
	}
}

// servicesResolved reports whether a set of Device1 properties marks the
// services of the device as resolved.
func servicesResolved(props map[string]dbus.Variant) bool {
	v, ok := props["ServicesResolved"]
	if !ok {
		return false
	}

	resolved, _ := v.Value().(bool)

	return resolved
}
