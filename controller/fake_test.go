package controller

import (
	"github.com/google/uuid"

	"github.com/bluetuith-org/bluelink/api/bluetooth"
	"github.com/bluetuith-org/bluelink/api/config"
	"github.com/bluetuith-org/bluelink/api/errorkinds"
)

// fakeStack records every platform object that a controller creates.
type fakeStack struct {
	discovery      *fakeDiscoveryAgent
	serviceAgents  []*fakeServiceAgent
	sockets        []*fakeSocket
	controllers    []*fakeLEController
	discoveryCalls int
}

func (f *fakeStack) Start(config.Configuration) error { return nil }
func (f *fakeStack) Stop() error                      { return nil }

func (f *fakeStack) NewDiscoveryAgent(h bluetooth.DiscoveryHandler) (bluetooth.DiscoveryAgent, error) {
	f.discoveryCalls++
	if f.discovery == nil {
		f.discovery = &fakeDiscoveryAgent{}
	}
	f.discovery.handler = h

	return f.discovery, nil
}

func (f *fakeStack) NewServiceDiscoveryAgent(address bluetooth.MacAddress, h bluetooth.ServiceDiscoveryHandler) (bluetooth.ServiceDiscoveryAgent, error) {
	agent := &fakeServiceAgent{address: address, handler: h}
	f.serviceAgents = append(f.serviceAgents, agent)

	return agent, nil
}

func (f *fakeStack) NewRFCOMMSocket(h bluetooth.SocketHandler) (bluetooth.RFCOMMSocket, error) {
	socket := &fakeSocket{handler: h}
	f.sockets = append(f.sockets, socket)

	return socket, nil
}

func (f *fakeStack) NewLowEnergyController(device bluetooth.DeviceData, h bluetooth.ControllerHandler) (bluetooth.LowEnergyController, error) {
	controller := &fakeLEController{device: device, handler: h}
	f.controllers = append(f.controllers, controller)

	return controller, nil
}

func (f *fakeStack) lastSocket() *fakeSocket {
	return f.sockets[len(f.sockets)-1]
}

func (f *fakeStack) lastController() *fakeLEController {
	return f.controllers[len(f.controllers)-1]
}

type fakeDiscoveryAgent struct {
	handler  bluetooth.DiscoveryHandler
	startErr error
	starts   int
	stops    int
}

func (f *fakeDiscoveryAgent) Start() error {
	f.starts++
	return f.startErr
}

func (f *fakeDiscoveryAgent) Stop() error {
	f.stops++
	return nil
}

type fakeServiceAgent struct {
	address bluetooth.MacAddress
	handler bluetooth.ServiceDiscoveryHandler
	starts  int
	stops   int
}

func (f *fakeServiceAgent) SetRemoteAddress(address bluetooth.MacAddress) { f.address = address }
func (f *fakeServiceAgent) RemoteAddress() bluetooth.MacAddress           { return f.address }

func (f *fakeServiceAgent) Start() error {
	f.starts++
	return nil
}

func (f *fakeServiceAgent) Stop() error {
	f.stops++
	return nil
}

func (f *fakeServiceAgent) found(id uuid.UUID) {
	f.handler.ServiceFound(bluetooth.ServiceData{Address: f.address, UUID: id})
}

func (f *fakeServiceAgent) finished() {
	f.handler.ServiceScanFinished(f.address)
}

type connectCall struct {
	address bluetooth.MacAddress
	service uuid.UUID
}

type fakeSocket struct {
	handler bluetooth.SocketHandler
	state   bluetooth.SocketState

	connects []connectCall
	written  [][]byte
	inbound  []byte
	closes   int
}

func (f *fakeSocket) ConnectToService(address bluetooth.MacAddress, service uuid.UUID) error {
	f.connects = append(f.connects, connectCall{address, service})
	f.state = bluetooth.SocketConnecting

	return nil
}

func (f *fakeSocket) Write(data []byte) (int, error) {
	f.written = append(f.written, data)
	return len(data), nil
}

func (f *fakeSocket) ReadAll() []byte {
	data := f.inbound
	f.inbound = nil

	return data
}

func (f *fakeSocket) Close() error {
	f.closes++
	f.state = bluetooth.SocketUnconnected

	return nil
}

func (f *fakeSocket) IsOpen() bool                 { return f.state == bluetooth.SocketConnected }
func (f *fakeSocket) State() bluetooth.SocketState { return f.state }

func (f *fakeSocket) connected() {
	f.state = bluetooth.SocketConnected
	f.handler.SocketConnected()
}

func (f *fakeSocket) receive(data []byte) {
	f.inbound = append(f.inbound, data...)
	f.handler.SocketReadyRead()
}

func (f *fakeSocket) remoteClose() {
	f.state = bluetooth.SocketUnconnected
	f.handler.SocketError(errorkinds.NewSocketError(errorkinds.SocketRemoteHostClosed, nil, "fake-socket"))
	f.handler.SocketDisconnected()
}

type fakeLEController struct {
	device  bluetooth.DeviceData
	handler bluetooth.ControllerHandler

	connects    int
	discoveries int
	disconnects int
	services    []*fakeService

	discoverErr error
	detailsErr  error

	// characteristics are handed to every service object that is created.
	characteristics []bluetooth.Characteristic
}

func (f *fakeLEController) ConnectToDevice() error {
	f.connects++
	return nil
}

func (f *fakeLEController) DiscoverServices() error {
	f.discoveries++
	return f.discoverErr
}

func (f *fakeLEController) DisconnectFromDevice() error {
	f.disconnects++
	return nil
}

func (f *fakeLEController) CreateServiceObject(id uuid.UUID, h bluetooth.ServiceHandler) (bluetooth.LowEnergyService, error) {
	svc := &fakeService{id: id, handler: h, characteristics: f.characteristics, detailsErr: f.detailsErr}
	f.services = append(f.services, svc)

	return svc, nil
}

type characteristicWrite struct {
	characteristic uuid.UUID
	data           []byte
	mode           bluetooth.WriteMode
}

type descriptorWrite struct {
	characteristic uuid.UUID
	descriptor     uuid.UUID
	data           []byte
}

type fakeService struct {
	id      uuid.UUID
	handler bluetooth.ServiceHandler
	state   bluetooth.ServiceState

	characteristics  []bluetooth.Characteristic
	detailsErr       error
	detailRequests   int
	writes           []characteristicWrite
	reads            []uuid.UUID
	descriptorWrites []descriptorWrite
}

func (f *fakeService) UUID() uuid.UUID               { return f.id }
func (f *fakeService) State() bluetooth.ServiceState { return f.state }

func (f *fakeService) DiscoverDetails() error {
	f.detailRequests++
	if f.detailsErr != nil {
		return f.detailsErr
	}
	f.state = bluetooth.ServiceDiscovering

	return nil
}

func (f *fakeService) Characteristic(id uuid.UUID) bluetooth.Characteristic {
	if f.state != bluetooth.ServiceDiscovered {
		return bluetooth.Characteristic{}
	}

	for _, c := range f.characteristics {
		if c.UUID == id {
			return c
		}
	}

	return bluetooth.Characteristic{}
}

func (f *fakeService) WriteCharacteristic(c bluetooth.Characteristic, data []byte, mode bluetooth.WriteMode) error {
	f.writes = append(f.writes, characteristicWrite{c.UUID, data, mode})
	return nil
}

func (f *fakeService) ReadCharacteristic(c bluetooth.Characteristic) error {
	f.reads = append(f.reads, c.UUID)
	return nil
}

func (f *fakeService) WriteDescriptor(c bluetooth.Characteristic, d bluetooth.Descriptor, data []byte) error {
	f.descriptorWrites = append(f.descriptorWrites, descriptorWrite{c.UUID, d.UUID, data})
	return nil
}

func (f *fakeService) discovered() {
	f.state = bluetooth.ServiceDiscovered
	f.handler.ServiceStateChanged(bluetooth.ServiceDiscovered)
}

// published is an event that was published by a controller.
type published struct {
	id   bluetooth.EventID
	data any
}

// recorder is an event publisher that keeps every published event.
type recorder struct {
	events []published
}

func (r *recorder) Publish(id uint, _ string, data any) {
	r.events = append(r.events, published{bluetooth.EventID(id), data})
}

func (r *recorder) ids() []bluetooth.EventID {
	ids := make([]bluetooth.EventID, 0, len(r.events))
	for _, ev := range r.events {
		ids = append(ids, ev.id)
	}

	return ids
}

func (r *recorder) count(id bluetooth.EventID) int {
	n := 0
	for _, ev := range r.events {
		if ev.id == id {
			n++
		}
	}

	return n
}

func (r *recorder) last(id bluetooth.EventID) (any, bool) {
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].id == id {
			return r.events[i].data, true
		}
	}

	return nil, false
}

func (r *recorder) reset() {
	r.events = nil
}
