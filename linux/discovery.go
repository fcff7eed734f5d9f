//go:build linux

package linux

import (
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"

	api "github.com/bluetuith-org/bluelink/api/bluetooth"
	"github.com/bluetuith-org/bluelink/api/errorkinds"
)

// discoveryAgent scans for devices through the adapter's discovery session.
// Devices already known to BlueZ are reported if they are in range.
type discoveryAgent struct {
	b       *BluezSession
	handler api.DiscoveryHandler

	mu      sync.Mutex
	scan    *deviceScan
	running bool
}

// deviceScan holds the state of one discovery run.
type deviceScan struct {
	seen    map[dbus.ObjectPath]struct{}
	unwatch func()
	timer   *time.Timer
	done    bool
}

func (d *discoveryAgent) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return nil
	}

	scan := &deviceScan{seen: make(map[dbus.ObjectPath]struct{})}
	scan.unwatch = d.b.watch(func(sig *dbus.Signal) { d.signal(scan, sig) })

	if err := d.b.adapterObject().Call(adapterIface+".StartDiscovery", 0).Err; err != nil {
		scan.unwatch()
		return errorkinds.New(errorkinds.DiscoveryFailure, 0, callError(err, "bluez-start-discovery"), "bluez-start-discovery")
	}

	d.scan = scan
	d.running = true
	scan.timer = time.AfterFunc(d.b.cfg.DiscoveryTimeout, func() { d.finish(scan) })

	go d.prime(scan)

	d.b.log.WithField("timeout", d.b.cfg.DiscoveryTimeout).Debug("BlueZ discovery started")

	return nil
}

func (d *discoveryAgent) Stop() error {
	d.mu.Lock()
	scan := d.scan
	if !d.running || scan == nil {
		d.mu.Unlock()
		return nil
	}

	d.end(scan)
	d.mu.Unlock()

	return d.stopDiscovery()
}

// finish ends a scan that ran until its timeout.
func (d *discoveryAgent) finish(scan *deviceScan) {
	d.mu.Lock()
	if scan.done {
		d.mu.Unlock()
		return
	}

	d.end(scan)
	d.mu.Unlock()

	if err := d.stopDiscovery(); err != nil {
		d.b.log.WithError(err).Debug("Cannot stop BlueZ discovery")
	}

	d.handler.ScanFinished()
}

// end marks scan as done. It must be called with the lock held.
func (d *discoveryAgent) end(scan *deviceScan) {
	scan.done = true
	scan.unwatch()
	scan.timer.Stop()

	if d.scan == scan {
		d.scan = nil
		d.running = false
	}
}

func (d *discoveryAgent) stopDiscovery() error {
	if err := d.b.adapterObject().Call(adapterIface+".StopDiscovery", 0).Err; err != nil {
		return callError(err, "bluez-stop-discovery")
	}

	return nil
}

// prime reports the known devices that BlueZ has seen recently.
func (d *discoveryAgent) prime(scan *deviceScan) {
	objects, err := d.b.managedObjects()
	if err != nil {
		d.mu.Lock()
		done := scan.done
		if !done {
			d.end(scan)
		}
		d.mu.Unlock()

		if !done {
			d.handler.ScanError(errorkinds.New(errorkinds.DiscoveryFailure, 0, err, "bluez-prime-discovery"))
		}

		return
	}

	for path, ifaces := range objects {
		props, ok := ifaces[deviceIface]
		if !ok || !d.onAdapter(path) {
			continue
		}

		if _, inRange := props["RSSI"]; !inRange {
			continue
		}

		d.report(scan, path, props)
	}
}

func (d *discoveryAgent) signal(scan *deviceScan, sig *dbus.Signal) {
	switch sig.Name {
	case objManagerIface + ".InterfacesAdded":
		if len(sig.Body) < 2 {
			return
		}

		path, ok := sig.Body[0].(dbus.ObjectPath)
		if !ok || !d.onAdapter(path) {
			return
		}

		ifaces, ok := sig.Body[1].(map[string]map[string]dbus.Variant)
		if !ok {
			return
		}

		if props, ok := ifaces[deviceIface]; ok {
			d.report(scan, path, props)
		}

	case propsIface + ".PropertiesChanged":
		if len(sig.Body) < 2 || !d.onAdapter(sig.Path) {
			return
		}

		if iface, _ := sig.Body[0].(string); iface != deviceIface {
			return
		}

		changed, ok := sig.Body[1].(map[string]dbus.Variant)
		if !ok {
			return
		}

		if _, ok := changed["RSSI"]; !ok {
			return
		}

		props, err := d.b.deviceProperties(sig.Path)
		if err != nil {
			return
		}

		d.report(scan, sig.Path, props)
	}
}

// report sends a device to the handler once per scan.
func (d *discoveryAgent) report(scan *deviceScan, path dbus.ObjectPath, props map[string]dbus.Variant) {
	device, ok := deviceFromProperties(path, props)
	if !ok {
		return
	}

	d.mu.Lock()
	if _, seen := scan.seen[path]; seen || scan.done {
		d.mu.Unlock()
		return
	}
	scan.seen[path] = struct{}{}
	d.mu.Unlock()

	d.b.log.WithFields(logrus.Fields{
		"address": device.Address,
		"radio":   device.RadioClass,
	}).Trace("BlueZ device found")

	d.handler.DeviceFound(device)
}

func (d *discoveryAgent) onAdapter(path dbus.ObjectPath) bool {
	return strings.HasPrefix(string(path), string(d.b.adapterPath)+"/dev_")
}
