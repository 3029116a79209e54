package bcp

import "sync"

// TriggerListener calls a func every time the peer posts one named trigger.
// While it is open the peer is asked to forward that trigger.
type TriggerListener struct {
	events *EventRequester[string]
	id     ListenerID
	name   string

	unsubscribe func()
	once        sync.Once
}

// NewTriggerListener registers interest in the trigger name and calls fn
// for each occurrence until Close.
func NewTriggerListener(iface *Interface, name string, fn func()) *TriggerListener {
	l := &TriggerListener{
		events: iface.Events(),
		id:     NewListenerID(),
		name:   name,
	}
	l.unsubscribe = iface.Handlers().Trigger.Subscribe(func(t Trigger) {
		if t.Name == name {
			fn()
		}
	})
	l.events.AddListener(l.id, name)
	return l
}

// Name returns the trigger name.
func (l *TriggerListener) Name() string {
	return l.name
}

// Close stops the callbacks and withdraws the interest.
func (l *TriggerListener) Close() {
	l.once.Do(func() {
		l.unsubscribe()
		l.events.RemoveListener(l.id, l.name)
	})
}
