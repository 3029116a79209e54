package bcp

// Variable and settings commands.
const (
	CommandPlayerVariable  = "player_variable"
	CommandMachineVariable = "machine_variable"
	CommandSettings        = "settings"
)

// PlayerVariable is sent when a player variable changes.
type PlayerVariable struct {
	Name      string
	PlayerNum int
	Value     any
}

func parsePlayerVariable(m *Message) (PlayerVariable, error) {
	name, err := m.StringParam("name")
	if err != nil {
		return PlayerVariable{}, err
	}
	player, err := m.IntParam("player_num")
	if err != nil {
		return PlayerVariable{}, err
	}
	value, ok := m.Value("value")
	if !ok {
		return PlayerVariable{}, newParameterError("value", m.String(), nil)
	}
	return PlayerVariable{Name: name, PlayerNum: player, Value: value}, nil
}

// MachineVariable is sent when a machine variable changes.
type MachineVariable struct {
	Name  string
	Value any
}

func parseMachineVariable(m *Message) (MachineVariable, error) {
	name, err := m.StringParam("name")
	if err != nil {
		return MachineVariable{}, err
	}
	value, ok := m.Value("value")
	if !ok {
		return MachineVariable{}, newParameterError("value", m.String(), nil)
	}
	return MachineVariable{Name: name, Value: value}, nil
}

// Settings carries the machine settings as sent by the peer.
type Settings struct {
	Settings []any
}

func parseSettings(m *Message) (Settings, error) {
	settings, err := m.ArrayParam("settings")
	if err != nil {
		return Settings{}, err
	}
	return Settings{Settings: settings}, nil
}
