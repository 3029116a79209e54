package bcp

import (
	"strings"

	"github.com/pkg/errors"
)

// CommandDevice is sent by the peer in the devices category.
const CommandDevice = "device"

// DeviceAttributeChange is the single attribute change carried by a Device
// message.
type DeviceAttributeChange struct {
	Attribute string
	OldValue  any
	NewValue  any
}

// Device is the state of a device, with the attribute that changed if any.
type Device struct {
	Type   string
	Name   string
	Change *DeviceAttributeChange
	State  map[string]any
}

func parseDevice(m *Message) (Device, error) {
	typ, err := m.StringParam("type")
	if err != nil {
		return Device{}, err
	}
	name, err := m.StringParam("name")
	if err != nil {
		return Device{}, err
	}
	state, err := m.ObjectParam("state")
	if err != nil {
		return Device{}, err
	}

	d := Device{Type: typ, Name: name, State: state}
	d.Change, err = parseDeviceChange(m)
	if err != nil {
		return Device{}, err
	}
	return d, nil
}

// parseDeviceChange reads the changes parameter, which is false when
// nothing changed and [attribute, old, new] otherwise.
func parseDeviceChange(m *Message) (*DeviceAttributeChange, error) {
	v, ok := m.Value("changes")
	if !ok {
		return nil, newParameterError("changes", m.String(), nil)
	}

	switch t := v.(type) {
	case nil:
		return nil, nil
	case bool:
		if !t {
			return nil, nil
		}
	case string:
		if strings.EqualFold(t, "false") {
			return nil, nil
		}
		if decoded, err := decodeJSON(t); err == nil {
			v = decoded
		}
	}

	change, ok := v.([]any)
	if !ok || len(change) != 3 {
		return nil, newParameterError("changes", m.String(),
			errors.New("expected false or [attribute, old, new]"))
	}
	attr, ok := change[0].(string)
	if !ok {
		return nil, newParameterError("changes", m.String(),
			errors.New("attribute name is not a string"))
	}
	return &DeviceAttributeChange{Attribute: attr, OldValue: change[1], NewValue: change[2]}, nil
}
