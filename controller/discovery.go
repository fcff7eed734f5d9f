package controller

import (
	"github.com/sirupsen/logrus"

	"github.com/bluetuith-org/bluelink/api/bluetooth"
	"github.com/bluetuith-org/bluelink/api/errorkinds"
)

// discoveryHandler forwards device scan callbacks to the controller's loop.
type discoveryHandler struct {
	c *Controller
}

// StartDiscovery starts scanning for nearby devices on both radios.
// Each unique device is published once as EventDeviceDiscovered, followed
// by exactly one EventDiscoveryFinished.
func (c *Controller) StartDiscovery() {
	c.exec.Post(c.startDiscovery)
}

// StopDiscovery stops a running device scan and publishes EventDiscoveryFinished.
func (c *Controller) StopDiscovery() {
	c.exec.Post(func() {
		if c.discoveryState.Load() != uint32(DiscoveryActive) {
			c.log.Debug("Device discovery is not running")
			return
		}

		if err := c.discovery.Stop(); err != nil {
			c.publishError(err, errorkinds.DiscoveryFailure, 0)
		}

		c.finishDiscovery()
	})
}

func (c *Controller) startDiscovery() {
	if c.discoveryState.Load() == uint32(DiscoveryActive) {
		c.log.Debug("Device discovery is already running")
		return
	}

	if c.discovery == nil {
		agent, err := c.stack.NewDiscoveryAgent(&discoveryHandler{c})
		if err != nil {
			c.publishError(err, errorkinds.DiscoveryFailure, 0)
			c.publish(bluetooth.EventDiscoveryFinished, bluetooth.DiscoveryFinishedData{})
			return
		}

		c.discovery = agent
	}

	c.store.ClearDevices()
	c.discoveryState.Store(uint32(DiscoveryActive))
	c.log.Info("Starting device discovery")

	if err := c.discovery.Start(); err != nil {
		c.publishError(err, errorkinds.DiscoveryFailure, 0)
		c.finishDiscovery()
	}
}

// finishDiscovery ends the discovery sub-cycle and publishes EventDiscoveryFinished.
// It is a no-op if no discovery is running.
func (c *Controller) finishDiscovery() {
	if !c.discoveryState.CompareAndSwap(uint32(DiscoveryActive), uint32(DiscoveryIdle)) {
		return
	}

	count := c.store.DeviceCount()
	c.log.WithField("devices", count).Info("Device discovery finished")
	c.publish(bluetooth.EventDiscoveryFinished, bluetooth.DiscoveryFinishedData{Devices: count})
}

func (d *discoveryHandler) DeviceFound(device bluetooth.DeviceData) {
	d.c.exec.Post(func() {
		if d.c.discoveryState.Load() != uint32(DiscoveryActive) {
			return
		}

		if !d.c.store.AddDevice(device) {
			return
		}

		d.c.log.WithFields(logrus.Fields{
			"address": device.Address,
			"name":    device.Name,
			"radio":   device.RadioClass,
		}).Info("Device discovered")
		d.c.publish(bluetooth.EventDeviceDiscovered, device)
	})
}

func (d *discoveryHandler) ScanFinished() {
	d.c.exec.Post(d.c.finishDiscovery)
}

func (d *discoveryHandler) ScanError(err error) {
	d.c.exec.Post(func() {
		if d.c.discoveryState.Load() != uint32(DiscoveryActive) {
			return
		}

		d.c.publishError(err, errorkinds.DiscoveryFailure, 0)
		d.c.finishDiscovery()
	})
}
