package gatt

import (
	"context"
	"sync"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"tinygo.org/x/bluetooth"

	api "github.com/bluetuith-org/bluelink/api/bluetooth"
	"github.com/bluetuith-org/bluelink/api/errorkinds"
)

// ScanAgent scans for Low Energy advertisements. It is used where the platform
// stack has no Classic discovery.
type ScanAgent struct {
	adapter *Adapter
	handler api.DiscoveryHandler
	timeout time.Duration

	running   bool
	cancelled bool
	timer     *time.Timer
	mu        sync.Mutex
}

// NewScanAgent returns a scan agent that stops scanning after timeout.
func (a *Adapter) NewScanAgent(handler api.DiscoveryHandler, timeout time.Duration) (*ScanAgent, error) {
	if handler == nil {
		return nil, fault.Wrap(errorkinds.ErrMethodCall,
			fctx.With(context.Background(), "error_at", "gatt-new-scan-agent"),
			ftag.With(ftag.InvalidArgument),
			fmsg.With("No discovery handler was provided"),
		)
	}

	if err := a.Enable(); err != nil {
		return nil, err
	}

	return &ScanAgent{adapter: a, handler: handler, timeout: timeout}, nil
}

// Start starts a scan. The scan runs until the timeout elapses or Stop is called.
func (s *ScanAgent) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fault.Wrap(errorkinds.ErrMethodCall,
			fctx.With(context.Background(), "error_at", "gatt-scan-start"),
			ftag.With(ftag.AlreadyExists),
			fmsg.With("A scan is already running"),
		)
	}

	s.running = true
	s.cancelled = false
	s.timer = time.AfterFunc(s.timeout, func() {
		if err := s.adapter.adapter.StopScan(); err != nil {
			s.adapter.log.WithError(err).Debug("Cannot stop scan")
		}
	})

	go s.scan()

	return nil
}

// Stop cancels a running scan.
func (s *ScanAgent) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}

	s.cancelled = true
	s.timer.Stop()
	s.mu.Unlock()

	if err := s.adapter.adapter.StopScan(); err != nil {
		return fault.Wrap(err,
			fctx.With(context.Background(), "error_at", "gatt-scan-stop"),
			ftag.With(ftag.Internal),
			fmsg.With("Cannot stop scan"),
		)
	}

	return nil
}

func (s *ScanAgent) scan() {
	err := s.adapter.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		device, ok := scanDevice(result.Address.String(), result.LocalName(), result.RSSI)
		if !ok {
			return
		}

		s.handler.DeviceFound(device)
	})

	s.mu.Lock()
	cancelled := s.cancelled
	s.running = false
	s.timer.Stop()
	s.mu.Unlock()

	switch {
	case cancelled:
		return

	case err != nil:
		s.handler.ScanError(errorkinds.New(errorkinds.DiscoveryFailure, 0, err, "gatt-scan"))

	default:
		s.handler.ScanFinished()
	}
}
