package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"

	"github.com/bluetuith-org/bluelink/api/bluetooth"
	"github.com/bluetuith-org/bluelink/api/eventbus"
	"github.com/bluetuith-org/bluelink/api/helpers/serde"
	"github.com/bluetuith-org/bluelink/controller"
)

// deviceController is the part of the controller that the commands drive.
type deviceController interface {
	StartDiscovery()
	StopDiscovery()
	Connect(device bluetooth.DeviceData)
	SendData(data []byte)
	ReadData()
	DisconnectDevice()

	Devices() []bluetooth.DeviceData
	Device(address bluetooth.MacAddress) (bluetooth.DeviceData, error)
	Services(address bluetooth.MacAddress) []bluetooth.ServiceData
	ConnectionState() controller.ConnectionState
	DiscoveryState() controller.DiscoveryState
	Transport() bluetooth.Transport
}

// sessionController is a deviceController that can be shut down.
type sessionController interface {
	deviceController
	Close()
}

type command struct {
	name    string
	address bluetooth.MacAddress
	data    []byte
}

var usage = fault.New("commands: scan, stop, devices, services <addr>, connect <addr>, send <text>, sendhex <hex>, read, disconnect, state, quit")

func parseCommand(line string) (command, error) {
	name, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	cmd := command{name: strings.ToLower(name)}
	rest = strings.TrimSpace(rest)

	switch cmd.name {
	case "scan", "stop", "devices", "read", "disconnect", "state", "quit":
		return cmd, nil

	case "connect", "services":
		address, err := bluetooth.ParseMAC(rest)
		if err != nil {
			return cmd, err
		}
		cmd.address = address

	case "send":
		if rest == "" {
			return cmd, fault.Wrap(usage, fmsg.With("send needs data"))
		}
		cmd.data = []byte(rest)

	case "sendhex":
		data, err := hex.DecodeString(strings.ReplaceAll(rest, " ", ""))
		if err != nil || len(data) == 0 {
			return cmd, fault.Wrap(usage, fmsg.With("sendhex needs hex encoded data"))
		}
		cmd.data = data

	default:
		return cmd, usage
	}

	return cmd, nil
}

func execute(c deviceController, cmd command, out io.Writer, jsonOutput bool) error {
	switch cmd.name {
	case "scan":
		c.StartDiscovery()

	case "stop":
		c.StopDiscovery()

	case "devices":
		return printValue(out, c.Devices(), jsonOutput, func() string {
			var sb strings.Builder
			for _, d := range c.Devices() {
				fmt.Fprintf(&sb, "%s  %-10s  %4d  %s\n", d.Address, d.RadioClass, d.RSSI, d.DisplayName())
			}

			return strings.TrimSuffix(sb.String(), "\n")
		})

	case "services":
		services := c.Services(cmd.address)
		return printValue(out, services, jsonOutput, func() string {
			var sb strings.Builder
			for _, s := range services {
				fmt.Fprintf(&sb, "%s  %s\n", s.UUID, s.Name)
			}

			return strings.TrimSuffix(sb.String(), "\n")
		})

	case "connect":
		device, err := c.Device(cmd.address)
		if err != nil {
			return err
		}
		c.Connect(device)

	case "send", "sendhex":
		c.SendData(cmd.data)

	case "read":
		c.ReadData()

	case "disconnect":
		c.DisconnectDevice()

	case "state":
		state := struct {
			Connection string `json:"connection"`
			Discovery  string `json:"discovery"`
			Transport  string `json:"transport"`
		}{c.ConnectionState().String(), c.DiscoveryState().String(), c.Transport().String()}

		return printValue(out, state, jsonOutput, func() string {
			return fmt.Sprintf("connection=%s discovery=%s transport=%s", state.Connection, state.Discovery, state.Transport)
		})
	}

	return nil
}

func printValue[T any](out io.Writer, v T, jsonOutput bool, text func() string) error {
	if !jsonOutput {
		if s := text(); s != "" {
			fmt.Fprintln(out, s)
		}

		return nil
	}

	data, err := serde.MarshalJson(v)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(out, string(data))

	return err
}

// formatEvent renders a controller event for display.
func formatEvent(ev eventbus.Event, jsonOutput bool) string {
	if jsonOutput {
		data, err := serde.MarshalJson(ev)
		if err != nil {
			return fmt.Sprintf(`{"event":%q,"error":%q}`, ev.Name, err.Error())
		}

		return string(data)
	}

	switch data := ev.Data.(type) {
	case bluetooth.DeviceData:
		return fmt.Sprintf("[%s] %s %s %s", ev.Name, data.Address, data.RadioClass, data.DisplayName())

	case bluetooth.ServiceData:
		return fmt.Sprintf("[%s] %s %s %s", ev.Name, data.Address, data.UUID, data.Name)

	case bluetooth.ConnectionData:
		return fmt.Sprintf("[%s] %s over %s", ev.Name, data.Address, data.Transport)

	case bluetooth.ReceivedData:
		return fmt.Sprintf("[%s] %s %q", ev.Name, data.Address, data.Data)

	case bluetooth.DiscoveryFinishedData:
		return fmt.Sprintf("[%s] %d devices", ev.Name, data.Devices)

	case bluetooth.TransportErrorData:
		return fmt.Sprintf("[%s] %s: %s", ev.Name, data.Kind, data.Error())
	}

	return fmt.Sprintf("[%s] %v", ev.Name, ev.Data)
}
