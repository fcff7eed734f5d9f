package gatt

import (
	"context"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/sirupsen/logrus"

	api "github.com/bluetuith-org/bluelink/api/bluetooth"
	"github.com/bluetuith-org/bluelink/api/config"
	"github.com/bluetuith-org/bluelink/api/errorkinds"
)

// Stack is a Low Energy only Bluetooth stack. Devices are discovered from their
// advertisements, and Classic services and sockets are not supported.
type Stack struct {
	log     logrus.FieldLogger
	adapter *Adapter
	cfg     config.Configuration
}

// NewStack returns a new, unstarted Low Energy stack.
func NewStack(log logrus.FieldLogger) *Stack {
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Stack{log: log.WithField("stack", "gatt")}
}

// Start enables the default adapter.
func (s *Stack) Start(cfg config.Configuration) error {
	s.cfg = cfg
	s.adapter = NewAdapter(nil, cfg.ReadBufferSize, s.log)

	return s.adapter.Enable()
}

// Stop releases the connected clients.
func (s *Stack) Stop() error {
	if s.adapter == nil {
		return fault.Wrap(errorkinds.ErrSessionNotExist,
			fctx.With(context.Background(), "error_at", "gatt-stack-stop"),
			ftag.With(ftag.Internal),
		)
	}

	s.adapter.clients.Range(func(_ string, c *Controller) bool {
		if err := c.DisconnectFromDevice(); err != nil {
			s.log.WithError(err).Debug("Cannot disconnect GATT client")
		}

		return true
	})

	return nil
}

func (s *Stack) NewDiscoveryAgent(handler api.DiscoveryHandler) (api.DiscoveryAgent, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	agent, err := s.adapter.NewScanAgent(handler, s.cfg.DiscoveryTimeout)
	if err != nil {
		return nil, err
	}

	return agent, nil
}

func (s *Stack) NewServiceDiscoveryAgent(api.MacAddress, api.ServiceDiscoveryHandler) (api.ServiceDiscoveryAgent, error) {
	return nil, unsupported("gatt-service-discovery")
}

func (s *Stack) NewRFCOMMSocket(api.SocketHandler) (api.RFCOMMSocket, error) {
	return nil, unsupported("gatt-rfcomm-socket")
}

func (s *Stack) NewLowEnergyController(device api.DeviceData, handler api.ControllerHandler) (api.LowEnergyController, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	controller, err := s.adapter.NewController(device, handler)
	if err != nil {
		return nil, err
	}

	return controller, nil
}

func (s *Stack) check() error {
	if s.adapter != nil {
		return nil
	}

	return fault.Wrap(errorkinds.ErrSessionNotExist,
		fctx.With(context.Background(), "error_at", "gatt-stack-check"),
		ftag.With(ftag.Internal),
		fmsg.With("The Low Energy stack is not started"),
	)
}

func unsupported(at string) error {
	return fault.Wrap(errorkinds.ErrNotSupported,
		fctx.With(context.Background(), "error_at", at),
		ftag.With(ftag.Internal),
		fmsg.With("Classic devices are not supported on this platform"),
	)
}
