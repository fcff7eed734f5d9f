//go:build linux

package linux

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	api "github.com/bluetuith-org/bluelink/api/bluetooth"
	"github.com/bluetuith-org/bluelink/api/errorkinds"
	"github.com/bluetuith-org/bluelink/api/logging"
)

const testAdapter = dbus.ObjectPath("/org/bluez/hci0")

var testDevice = api.MustParseMAC("AA:BB:CC:DD:EE:01")

// fakeBus serves Device1 properties and records connection requests.
type fakeBus struct {
	mu       sync.Mutex
	props    map[string]dbus.Variant
	propsErr error
	watchers map[int]func(*dbus.Signal)
	nextID   int

	connects   int
	onConnect  func()
	connectErr error
}

func newFakeBus(props map[string]dbus.Variant) *fakeBus {
	return &fakeBus{props: props, watchers: make(map[int]func(*dbus.Signal))}
}

func (f *fakeBus) watch(fn func(*dbus.Signal)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++
	f.watchers[id] = fn

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()

		delete(f.watchers, id)
	}
}

func (f *fakeBus) deviceProperties(dbus.ObjectPath) (map[string]dbus.Variant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.props, f.propsErr
}

func (f *fakeBus) connectDevice(context.Context, dbus.ObjectPath) error {
	f.mu.Lock()
	f.connects++
	onConnect := f.onConnect
	f.mu.Unlock()

	if onConnect != nil {
		onConnect()
	}

	return f.connectErr
}

func (f *fakeBus) emit(changed map[string]dbus.Variant) {
	f.mu.Lock()
	watchers := make([]func(*dbus.Signal), 0, len(f.watchers))
	for _, fn := range f.watchers {
		watchers = append(watchers, fn)
	}
	f.mu.Unlock()

	sig := &dbus.Signal{
		Path: devicePath(testAdapter, testDevice),
		Name: propsIface + ".PropertiesChanged",
		Body: []interface{}{deviceIface, changed, []string{}},
	}
	for _, fn := range watchers {
		fn(sig)
	}
}

func (f *fakeBus) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.connects
}

// scanResult collects the callbacks of a service scan.
type scanResult struct {
	mu       sync.Mutex
	services []api.ServiceData
	finished []api.MacAddress
	errs     []error
	done     chan struct{}
}

func newScanResult() *scanResult {
	return &scanResult{done: make(chan struct{}, 1)}
}

func (r *scanResult) ServiceFound(service api.ServiceData) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.services = append(r.services, service)
}

func (r *scanResult) ServiceScanFinished(address api.MacAddress) {
	r.mu.Lock()
	r.finished = append(r.finished, address)
	r.mu.Unlock()

	r.done <- struct{}{}
}

func (r *scanResult) ServiceScanError(_ api.MacAddress, err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()

	r.done <- struct{}{}
}

func (r *scanResult) wait(t *testing.T) {
	t.Helper()

	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("service scan did not complete")
	}
}

func (r *scanResult) uuids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.services))
	for _, s := range r.services {
		ids = append(ids, s.UUID.String())
	}

	return ids
}

func newTestServiceAgent(bus deviceBus, handler api.ServiceDiscoveryHandler, timeout time.Duration) *serviceAgent {
	agent := &serviceAgent{
		bus:         bus,
		log:         logging.Discard(),
		handler:     handler,
		adapterPath: testAdapter,
		timeout:     timeout,
	}
	agent.SetRemoteAddress(testDevice)

	return agent
}

const (
	sppUUID  = "00001101-0000-1000-8000-00805f9b34fb"
	hfpUUID  = "0000111e-0000-1000-8000-00805f9b34fb"
	pnpUUID  = "00001200-0000-1000-8000-00805f9b34fb"
	longWait = time.Minute
)

func TestServiceAgentResolvedDevice(t *testing.T) {
	bus := newFakeBus(map[string]dbus.Variant{
		"UUIDs":            dbus.MakeVariant([]string{pnpUUID, sppUUID}),
		"ServicesResolved": dbus.MakeVariant(true),
	})
	result := newScanResult()

	agent := newTestServiceAgent(bus, result, longWait)
	require.NoError(t, agent.Start())
	result.wait(t)

	assert.Equal(t, []string{pnpUUID, sppUUID}, result.uuids())
	assert.Equal(t, []api.MacAddress{testDevice}, result.finished)
	assert.Zero(t, bus.connectCount())
	assert.Equal(t, testDevice, result.services[0].Address)
}

func TestServiceAgentRunsSDPQuery(t *testing.T) {
	bus := newFakeBus(map[string]dbus.Variant{
		"UUIDs":            dbus.MakeVariant([]string{pnpUUID}),
		"ServicesResolved": dbus.MakeVariant(false),
	})
	result := newScanResult()

	bus.onConnect = func() {
		bus.emit(map[string]dbus.Variant{
			"UUIDs":            dbus.MakeVariant([]string{pnpUUID, sppUUID}),
			"ServicesResolved": dbus.MakeVariant(true),
		})
	}

	agent := newTestServiceAgent(bus, result, longWait)
	require.NoError(t, agent.Start())
	result.wait(t)

	assert.Equal(t, 1, bus.connectCount())
	assert.Equal(t, []string{pnpUUID, sppUUID}, result.uuids())
	assert.Equal(t, []api.MacAddress{testDevice}, result.finished)
}

func TestServiceAgentTimeout(t *testing.T) {
	bus := newFakeBus(map[string]dbus.Variant{
		"UUIDs": dbus.MakeVariant([]string{hfpUUID}),
	})
	bus.connectErr = dbus.NewError("org.bluez.Error.Failed", []interface{}{"Page Timeout"})
	result := newScanResult()

	agent := newTestServiceAgent(bus, result, 20*time.Millisecond)
	require.NoError(t, agent.Start())
	result.wait(t)

	assert.Equal(t, []string{hfpUUID}, result.uuids())
	assert.Equal(t, []api.MacAddress{testDevice}, result.finished)
	assert.Empty(t, result.errs)
}

func TestServiceAgentUnknownDevice(t *testing.T) {
	bus := newFakeBus(nil)
	bus.propsErr = dbus.NewError("org.freedesktop.DBus.Error.UnknownObject", nil)
	result := newScanResult()

	agent := newTestServiceAgent(bus, result, longWait)
	require.NoError(t, agent.Start())
	result.wait(t)

	require.Len(t, result.errs, 1)
	kind, _ := errorkinds.KindOf(result.errs[0])
	assert.Equal(t, errorkinds.DiscoveryFailure, kind)
	assert.ErrorIs(t, result.errs[0], errorkinds.ErrDeviceNotFound)
	assert.Empty(t, result.finished)
}

func TestServiceAgentStopSuppressesResults(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	bus := newFakeBus(map[string]dbus.Variant{})
	bus.onConnect = func() {
		close(started)
		<-release
	}
	result := newScanResult()

	agent := newTestServiceAgent(bus, result, longWait)
	require.NoError(t, agent.Start())
	<-started

	require.NoError(t, agent.Stop())
	bus.emit(map[string]dbus.Variant{
		"UUIDs":            dbus.MakeVariant([]string{sppUUID}),
		"ServicesResolved": dbus.MakeVariant(true),
	})
	close(release)

	select {
	case <-result.done:
		t.Fatal("a stopped scan reported a result")
	case <-time.After(50 * time.Millisecond):
	}

	assert.Empty(t, result.uuids())
	assert.Nil(t, agent.scan)
}

func TestServicesResolved(t *testing.T) {
	assert.False(t, servicesResolved(map[string]dbus.Variant{}))
	assert.False(t, servicesResolved(map[string]dbus.Variant{"ServicesResolved": dbus.MakeVariant(false)}))
	assert.True(t, servicesResolved(map[string]dbus.Variant{"ServicesResolved": dbus.MakeVariant(true)}))
}
