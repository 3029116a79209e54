package bcp

import "github.com/pkg/errors"

// CommandSwitch reports or sets a switch state.
const CommandSwitch = "switch"

// Switch is the state of a named switch.
type Switch struct {
	Name   string
	Active bool
}

// ToMessage implements OutboundMessage.
func (s Switch) ToMessage() *Message {
	state := 0
	if s.Active {
		state = 1
	}
	return NewMessage(CommandSwitch, Param("name", s.Name), Param("state", state))
}

func parseSwitch(m *Message) (Switch, error) {
	name, err := m.StringParam("name")
	if err != nil {
		return Switch{}, err
	}
	state, err := m.IntParam("state")
	if err != nil {
		return Switch{}, err
	}

	switch state {
	case 0:
		return Switch{Name: name}, nil
	case 1:
		return Switch{Name: name, Active: true}, nil
	}
	return Switch{}, newParameterError("state", m.String(), errors.Errorf("state %d is not 0 or 1", state))
}
