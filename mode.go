package bcp

import "github.com/pkg/errors"

// Mode commands, sent by the peer in the modes category.
const (
	CommandModeStart = "mode_start"
	CommandModeStop  = "mode_stop"
	CommandModeList  = "mode_list"
)

// ModeStart is sent when a mode starts.
type ModeStart struct {
	Name     string
	Priority int
}

func parseModeStart(m *Message) (ModeStart, error) {
	name, err := m.StringParam("name")
	if err != nil {
		return ModeStart{}, err
	}
	priority, err := m.IntParam("priority")
	if err != nil {
		return ModeStart{}, err
	}
	return ModeStart{Name: name, Priority: priority}, nil
}

// ModeStop is sent when a mode stops.
type ModeStop struct {
	Name string
}

func parseModeStop(m *Message) (ModeStop, error) {
	name, err := m.StringParam("name")
	if err != nil {
		return ModeStop{}, err
	}
	return ModeStop{Name: name}, nil
}

// RunningMode is an entry of ModeList.
type RunningMode struct {
	Name     string
	Priority int
}

// ModeList carries every running mode.
type ModeList struct {
	RunningModes []RunningMode
}

// IsRunning reports whether the named mode is in the list.
func (l ModeList) IsRunning(name string) bool {
	for _, mode := range l.RunningModes {
		if mode.Name == name {
			return true
		}
	}
	return false
}

func parseModeList(m *Message) (ModeList, error) {
	entries, err := m.ArrayParam("running_modes")
	if err != nil {
		return ModeList{}, err
	}

	list := ModeList{RunningModes: make([]RunningMode, 0, len(entries))}
	for i, entry := range entries {
		pair, ok := entry.([]any)
		if !ok || len(pair) != 2 {
			return ModeList{}, newParameterError("running_modes", m.String(),
				errors.Errorf("entry %d is not a [name, priority] pair", i))
		}
		name, ok := pair[0].(string)
		if !ok {
			return ModeList{}, newParameterError("running_modes", m.String(),
				errors.Errorf("entry %d has no mode name", i))
		}
		priority, err := toInt64(pair[1])
		if err != nil {
			return ModeList{}, newParameterError("running_modes", m.String(), err)
		}
		list.RunningModes = append(list.RunningModes, RunningMode{Name: name, Priority: int(priority)})
	}
	return list, nil
}
