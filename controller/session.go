package controller

import (
	"github.com/sirupsen/logrus"

	"github.com/bluetuith-org/bluelink/api/bluetooth"
	"github.com/bluetuith-org/bluelink/api/errorkinds"
)

// session is the live transport state of a controller. It is either
// a *classicSession or a *bleSession.
type session interface {
	device() bluetooth.DeviceData
	transport() bluetooth.Transport

	// send writes outbound data to the transport.
	send(data []byte)

	// read requests an explicit read from the transport.
	read()

	// disconnect requests a disconnection. The transport confirms it
	// asynchronously. It returns false if the session was dropped
	// without any confirmation to wait for.
	disconnect() bool

	// close releases the transport without waiting for a confirmation.
	close()
}

// Connect connects to a discovered device. Low Energy devices are connected over
// GATT. Classic devices have their services resolved first, and an RFCOMM channel
// is opened to the Serial Port service.
//
// If another device is connected, its session is torn down first, and no
// EventConnectionLost is published for it. Connecting to the device of the
// active session is a no-op.
func (c *Controller) Connect(device bluetooth.DeviceData) {
	c.exec.Post(func() {
		log := c.log.WithFields(logrus.Fields{
			"address": device.Address,
			"radio":   device.RadioClass,
		})

		if c.session != nil {
			if c.session.device().Address == device.Address {
				log.Debug("Device is already connected or connecting")
				return
			}

			log.WithField("previous", c.session.device().Address).Info("Tearing down previous session")
			c.teardown()
		}

		log.Info("Connecting to device")

		if device.IsLowEnergy() {
			c.connectLowEnergy(device)
			return
		}

		c.connectClassic(device)
	})
}

// SendData writes data to the connected device. If no session is active, or the
// session cannot carry data yet, the data is dropped and the condition is logged.
func (c *Controller) SendData(data []byte) {
	buf := append([]byte(nil), data...)

	c.exec.Post(func() {
		if c.session == nil {
			c.warn(errorkinds.WriteNotPermittedNoActiveSession, nil, "No active session, dropping outbound data")
			return
		}

		c.session.send(buf)
	})
}

// ReadData requests a read of the notify characteristic of a Low Energy device.
// The value is published as EventDataReceived. RFCOMM channels are streams,
// so for Classic devices this is a no-op.
func (c *Controller) ReadData() {
	c.exec.Post(func() {
		if c.session == nil {
			c.warn(errorkinds.WriteNotPermittedNoActiveSession, nil, "No active session, cannot read")
			return
		}

		c.session.read()
	})
}

// DisconnectDevice disconnects the active session. EventConnectionLost is published
// once the transport confirms the disconnection. It is a no-op if no session is active.
func (c *Controller) DisconnectDevice() {
	c.exec.Post(func() {
		if c.session == nil {
			c.log.Debug("No active session to disconnect")
			return
		}

		c.log.WithField("address", c.session.device().Address).Info("Disconnecting device")
		if !c.session.disconnect() {
			c.clearSession()
		}
	})
}

// attach makes s the active session.
func (c *Controller) attach(s session) {
	c.session = s
	c.transport.Store(uint32(s.transport()))
	c.setState(StateConnecting)
}

// clearSession detaches the active session. Callbacks that arrive for it
// afterwards are ignored.
func (c *Controller) clearSession() {
	c.session = nil
	c.transport.Store(uint32(bluetooth.TransportNone))
	c.setState(StateDisconnected)
}

// teardown closes and detaches the active session.
func (c *Controller) teardown() {
	if c.session == nil {
		return
	}

	c.session.close()
	c.clearSession()
}

// lost handles a transport disconnection of the active session.
func (c *Controller) lost(s session) {
	device := s.device()

	c.clearSession()
	c.log.WithField("address", device.Address).Info("Connection lost")
	c.publish(bluetooth.EventConnectionLost, bluetooth.ConnectionData{
		Address:   device.Address,
		Transport: s.transport(),
	})
}

// established marks the active session as connected.
func (c *Controller) established(s session) {
	device := s.device()

	c.setState(StateConnected)
	c.log.WithFields(logrus.Fields{
		"address":   device.Address,
		"transport": s.transport(),
	}).Info("Connection established")
	c.publish(bluetooth.EventConnectionEstablished, bluetooth.ConnectionData{
		Address:   device.Address,
		Transport: s.transport(),
	})
}

// received publishes inbound data of the active session.
func (c *Controller) received(s session, data []byte) {
	if len(data) == 0 {
		return
	}

	c.publish(bluetooth.EventDataReceived, bluetooth.ReceivedData{
		Address: s.device().Address,
		Data:    data,
	})
}

// current reports whether s is the active session.
func (c *Controller) current(s session) bool {
	return s != nil && c.session == s
}
