package bcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSwitchMonitor(t *testing.T) {
	i, _ := newTestInterface(t)
	m := NewSwitchMonitor(i, "flipper_l")

	var changes []bool
	m.OnChanged(func(v bool) { changes = append(changes, v) })

	receive(t, i,
		"switch?name=flipper_r&state=1",
		"switch?name=flipper_l&state=1",
		"switch?name=flipper_l&state=1",
		"switch?name=flipper_l&state=0",
		"switch?name=flipper_l&state=1",
	)
	i.Tick()

	assert.True(t, m.Value())
	assert.Equal(t, []bool{true, false, true}, changes)

	receive(t, i, "reset")
	i.Tick()
	assert.False(t, m.Value())
	assert.Equal(t, []bool{true, false, true, false}, changes)
}

func TestMonitor_CloseReleasesCategory(t *testing.T) {
	i, _ := newTestInterface(t)
	receive(t, i, "hello?version=1.1")
	i.Tick()
	sent(i)

	m := NewSwitchMonitor(i, "s_start")
	assert.Equal(t, []string{"monitor_start?category=switches"}, sent(i))
	assert.Equal(t, 1, i.Handlers().Switch.Subscribers())

	m.Close()
	m.Close()
	assert.Equal(t, []string{"monitor_stop?category=switches"}, sent(i))
	assert.Equal(t, 0, i.Handlers().Switch.Subscribers())

	receive(t, i, "switch?name=s_start&state=1")
	i.Tick()
	assert.False(t, m.Value())
}

func TestModeMonitor(t *testing.T) {
	i, _ := newTestInterface(t)
	m := NewModeMonitor(i, "multiball")

	receive(t, i, "mode_start?name=attract&priority=int:10")
	i.Tick()
	assert.False(t, m.Value())

	receive(t, i, "mode_start?name=multiball&priority=int:500")
	i.Tick()
	assert.True(t, m.Value())

	receive(t, i, "mode_stop?name=multiball")
	i.Tick()
	assert.False(t, m.Value())

	receive(t, i, `mode_list?json={"running_modes":[["base",100],["multiball",500]]}`)
	i.Tick()
	assert.True(t, m.Value())

	receive(t, i, `mode_list?json={"running_modes":[]}`)
	i.Tick()
	assert.False(t, m.Value())
}

func TestPlayerMonitors(t *testing.T) {
	i, _ := newTestInterface(t)
	current := NewCurrentPlayerMonitor(i)
	count := NewPlayerCountMonitor(i)

	receive(t, i,
		"player_added?player_num=int:1",
		"player_added?player_num=int:2",
		"player_turn_start?player_num=int:2",
	)
	i.Tick()

	assert.Equal(t, 2, current.Value())
	assert.Equal(t, 2, count.Value())

	receive(t, i, "hello?version=1.1")
	i.Tick()
	assert.Equal(t, 0, current.Value())
	assert.Equal(t, 0, count.Value())
}

func TestMachineVariableMonitor(t *testing.T) {
	i, _ := newTestInterface(t)
	m := NewMachineVariableMonitor(i, "credits")

	changes := 0
	m.OnChanged(func(any) { changes++ })
	assert.Nil(t, m.Value())

	receive(t, i,
		"machine_variable?name=credits&value=int:3",
		"machine_variable?name=other&value=int:9",
		`machine_variable?json={"name":"credits","value":{"free_play":false}}`,
		`machine_variable?json={"name":"credits","value":{"free_play":false}}`,
	)
	i.Tick()

	assert.Equal(t, map[string]any{"free_play": false}, m.Value())
	assert.Equal(t, 2, changes)
}

func TestTriggerListener(t *testing.T) {
	i, _ := newTestInterface(t)

	fired := 0
	l := NewTriggerListener(i, "ball_save", func() { fired++ })
	assert.Equal(t, "ball_save", l.Name())
	assert.Empty(t, sent(i))

	receive(t, i, "hello?version=1.1")
	i.Tick()
	assert.Equal(t, []string{
		"hello?version=1.1&controller_name=bcp-go&controller_version=0.1.0",
		"register_trigger?event=ball_save",
	}, sent(i))

	receive(t, i, "trigger?name=ball_save", "trigger?name=other", "trigger?name=ball_save")
	i.Tick()
	assert.Equal(t, 2, fired)

	l.Close()
	l.Close()
	assert.Equal(t, []string{"remove_trigger?event=ball_save"}, sent(i))

	receive(t, i, "trigger?name=ball_save")
	i.Tick()
	assert.Equal(t, 2, fired)
}

func TestTriggerListener_SharedEvent(t *testing.T) {
	i, _ := newTestInterface(t)
	receive(t, i, "hello?version=1.1")
	i.Tick()
	sent(i)

	a := NewTriggerListener(i, "ball_save", func() {})
	b := NewTriggerListener(i, "ball_save", func() {})
	assert.Equal(t, []string{"register_trigger?event=ball_save"}, sent(i))
	assert.Equal(t, 2, i.Events().Listeners("ball_save"))

	a.Close()
	assert.Empty(t, sent(i))
	b.Close()
	assert.Equal(t, []string{"remove_trigger?event=ball_save"}, sent(i))
}

func TestMonitor_WasEverUpdated(t *testing.T) {
	i, _ := newTestInterface(t)
	m := NewSwitchMonitor(i, "s_start")
	assert.False(t, m.WasEverUpdated())

	changes := 0
	m.OnChanged(func(bool) { changes++ })

	// An update equal to the initial value still counts.
	receive(t, i, "switch?name=s_start&state=0")
	i.Tick()
	assert.True(t, m.WasEverUpdated())
	assert.Equal(t, 0, changes)

	receive(t, i, "reset")
	i.Tick()
	assert.False(t, m.WasEverUpdated())
}

func TestPlayerVariableMonitor(t *testing.T) {
	i, _ := newTestInterface(t)
	m := NewPlayerVariableMonitor(i, "score")
	defer m.Close()

	var changes []any
	m.OnChanged(func(v any) { changes = append(changes, v) })

	receive(t, i,
		"player_turn_start?player_num=int:1",
		"player_variable?name=score&player_num=int:1&value=int:100",
		"player_variable?name=score&player_num=int:2&value=int:900",
		"player_variable?name=ball&player_num=int:1&value=int:3",
	)
	i.Tick()
	assert.Equal(t, int64(100), m.Value())
	assert.True(t, m.WasEverUpdated())

	receive(t, i, "player_turn_start?player_num=int:2")
	i.Tick()
	assert.Equal(t, int64(900), m.Value())

	receive(t, i, "player_turn_start?player_num=int:3")
	i.Tick()
	assert.Nil(t, m.Value())

	receive(t, i, "player_turn_start?player_num=int:1")
	i.Tick()
	assert.Equal(t, int64(100), m.Value())
	assert.Equal(t, []any{int64(100), int64(900), nil, int64(100)}, changes)

	receive(t, i, "reset", "player_turn_start?player_num=int:2")
	i.Tick()
	assert.Nil(t, m.Value())
	assert.False(t, m.WasEverUpdated())
}

func TestPlayerVariableMonitor_CloseReleasesHandlers(t *testing.T) {
	i, _ := newTestInterface(t)
	m := NewPlayerVariableMonitor(i, "score")
	assert.Equal(t, 1, i.Handlers().PlayerVariable.Subscribers())
	assert.Equal(t, 1, i.Handlers().PlayerTurnStart.Subscribers())

	m.Close()
	assert.Equal(t, 0, i.Handlers().PlayerVariable.Subscribers())
	assert.Equal(t, 0, i.Handlers().PlayerTurnStart.Subscribers())
}

func TestDeviceMonitor(t *testing.T) {
	i, _ := newTestInterface(t)
	receive(t, i, "hello?version=1.1")
	i.Tick()
	sent(i)

	d := NewDeviceMonitor(i, "switch", "s_start")
	assert.Equal(t, []string{"monitor_start?category=devices"}, sent(i))
	assert.Nil(t, d.Value())

	var order []string
	d.OnChanged(func(map[string]any) { order = append(order, "state") })
	d.OnAttributeChanged(func(c DeviceAttributeChange) { order = append(order, "attr "+c.Attribute) })

	receive(t, i,
		`device?json={"type":"switch","name":"s_start","changes":false,"state":{"state":0}}`,
		`device?json={"type":"switch","name":"s_other","changes":["state",0,1],"state":{"state":1}}`,
		`device?json={"type":"light","name":"s_start","changes":false,"state":{"color":"ff0000"}}`,
		`device?json={"type":"switch","name":"s_start","changes":["state",0,1],"state":{"state":1}}`,
	)
	i.Tick()

	assert.Equal(t, map[string]any{"state": int64(1)}, d.Value())
	v, ok := d.Attribute("state")
	assert.True(t, ok)
	assert.Equal(t, int64(1), v)
	assert.Equal(t, []string{"state", "state", "attr state"}, order)

	d.Close()
	assert.Equal(t, []string{"monitor_stop?category=devices"}, sent(i))
	assert.Equal(t, 0, i.Handlers().Device.Subscribers())
}
