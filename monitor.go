package bcp

import (
	"reflect"
	"sync"
)

// Monitor caches the latest value of something the peer reports, such as a
// switch state or the current player. The value returns to its initial
// value whenever the peer requests a reset.
type Monitor[V any] struct {
	initial V
	equal   func(a, b V) bool

	mu      sync.Mutex
	value   V
	updated bool
	changed observers[V]

	cancelMu sync.Mutex
	cancels  []func()
}

// NewMonitor creates a monitor that resets to initial on every reset
// request of iface. Feed it with Watch.
func NewMonitor[V comparable](iface *Interface, initial V) *Monitor[V] {
	return newMonitor(iface, initial, func(a, b V) bool { return a == b })
}

func newMonitor[V any](iface *Interface, initial V, equal func(a, b V) bool) *Monitor[V] {
	m := &Monitor[V]{initial: initial, value: initial, equal: equal}
	m.addCancel(iface.OnResetRequested(m.reset))
	return m
}

// Watch feeds m from handler. extract returns false for messages that do
// not concern m.
func Watch[T, V any](m *Monitor[V], handler *Handler[T], extract func(T) (V, bool)) {
	m.addCancel(handler.Subscribe(func(msg T) {
		if v, ok := extract(msg); ok {
			m.update(v)
		}
	}))
}

// Value returns the cached value.
func (m *Monitor[V]) Value() V {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value
}

// WasEverUpdated reports whether the peer reported a value since the
// monitor was created or last reset, even one equal to the cached value.
func (m *Monitor[V]) WasEverUpdated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updated
}

// OnChanged registers fn for every change of the value.
func (m *Monitor[V]) OnChanged(fn func(V)) func() {
	return m.changed.subscribe(fn)
}

// Close detaches the monitor from its handlers, releasing their
// subscriptions.
func (m *Monitor[V]) Close() {
	m.cancelMu.Lock()
	cancels := m.cancels
	m.cancels = nil
	m.cancelMu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

func (m *Monitor[V]) addCancel(cancel func()) {
	m.cancelMu.Lock()
	m.cancels = append(m.cancels, cancel)
	m.cancelMu.Unlock()
}

func (m *Monitor[V]) update(v V) {
	m.mu.Lock()
	m.updated = true
	m.mu.Unlock()
	m.set(v)
}

func (m *Monitor[V]) reset() {
	m.mu.Lock()
	m.updated = false
	m.mu.Unlock()
	m.set(m.initial)
}

func (m *Monitor[V]) set(v V) {
	m.mu.Lock()
	if m.equal(m.value, v) {
		m.mu.Unlock()
		return
	}
	m.value = v
	m.mu.Unlock()

	m.changed.notify(v)
}

// NewSwitchMonitor tracks whether the named switch is active.
func NewSwitchMonitor(iface *Interface, name string) *Monitor[bool] {
	m := NewMonitor(iface, false)
	Watch(m, iface.Handlers().Switch, func(s Switch) (bool, bool) {
		return s.Active, s.Name == name
	})
	return m
}

// NewModeMonitor tracks whether the named mode is running.
func NewModeMonitor(iface *Interface, name string) *Monitor[bool] {
	m := NewMonitor(iface, false)
	h := iface.Handlers()
	Watch(m, h.ModeStart, func(s ModeStart) (bool, bool) {
		return true, s.Name == name
	})
	Watch(m, h.ModeStop, func(s ModeStop) (bool, bool) {
		return false, s.Name == name
	})
	Watch(m, h.ModeList, func(l ModeList) (bool, bool) {
		return l.IsRunning(name), true
	})
	return m
}

// NewCurrentPlayerMonitor tracks the player whose turn it is, 0 before the
// first turn.
func NewCurrentPlayerMonitor(iface *Interface) *Monitor[int] {
	m := NewMonitor(iface, 0)
	Watch(m, iface.Handlers().PlayerTurnStart, func(t PlayerTurnStart) (int, bool) {
		return t.PlayerNum, true
	})
	return m
}

// NewPlayerCountMonitor tracks the number of players in the game.
func NewPlayerCountMonitor(iface *Interface) *Monitor[int] {
	m := NewMonitor(iface, 0)
	Watch(m, iface.Handlers().PlayerAdded, func(p PlayerAdded) (int, bool) {
		return p.PlayerNum, true
	})
	return m
}

// NewMachineVariableMonitor tracks the value of a machine variable, nil
// until the peer reports it.
func NewMachineVariableMonitor(iface *Interface, name string) *Monitor[any] {
	m := newMonitor[any](iface, nil, reflect.DeepEqual)
	Watch(m, iface.Handlers().MachineVariable, func(v MachineVariable) (any, bool) {
		return v.Value, v.Name == name
	})
	return m
}

// NewPlayerVariableMonitor tracks a player variable of the current player.
// Values reported for other players are kept and take over when their turn
// starts.
func NewPlayerVariableMonitor(iface *Interface, name string) *Monitor[any] {
	m := newMonitor[any](iface, nil, reflect.DeepEqual)

	var mu sync.Mutex
	perPlayer := make(map[int]any)
	m.addCancel(iface.OnResetRequested(func() {
		mu.Lock()
		clear(perPlayer)
		mu.Unlock()
	}))

	current := NewCurrentPlayerMonitor(iface)
	m.addCancel(current.Close)

	Watch(m, iface.Handlers().PlayerVariable, func(v PlayerVariable) (any, bool) {
		if v.Name != name {
			return nil, false
		}
		mu.Lock()
		perPlayer[v.PlayerNum] = v.Value
		mu.Unlock()
		return v.Value, v.PlayerNum == current.Value()
	})

	m.addCancel(current.OnChanged(func(player int) {
		mu.Lock()
		v := perPlayer[player]
		mu.Unlock()
		m.set(v)
	}))
	return m
}

// DeviceMonitor tracks the state of one device and reports changes of its
// individual attributes.
type DeviceMonitor struct {
	*Monitor[map[string]any]

	attributes observers[DeviceAttributeChange]
}

// NewDeviceMonitor tracks the device of type typ called name. Its value is
// nil until the peer reports the device.
func NewDeviceMonitor(iface *Interface, typ, name string) *DeviceMonitor {
	d := &DeviceMonitor{
		Monitor: newMonitor[map[string]any](iface, nil, func(a, b map[string]any) bool {
			return reflect.DeepEqual(a, b)
		}),
	}

	handler := iface.Handlers().Device
	Watch(d.Monitor, handler, func(dev Device) (map[string]any, bool) {
		return dev.State, dev.Type == typ && dev.Name == name
	})
	d.addCancel(handler.Subscribe(func(dev Device) {
		if dev.Change != nil && dev.Type == typ && dev.Name == name {
			d.attributes.notify(*dev.Change)
		}
	}))
	return d
}

// Attribute returns one attribute of the cached device state.
func (d *DeviceMonitor) Attribute(name string) (any, bool) {
	v, ok := d.Value()[name]
	return v, ok
}

// OnAttributeChanged registers fn for every attribute change the peer
// reports, after the state has been updated.
func (d *DeviceMonitor) OnAttributeChanged(fn func(DeviceAttributeChange)) func() {
	return d.attributes.subscribe(fn)
}
