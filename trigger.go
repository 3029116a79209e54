package bcp

// Trigger commands.
const (
	CommandTrigger         = "trigger"
	CommandRegisterTrigger = "register_trigger"
	CommandRemoveTrigger   = "remove_trigger"
)

// Trigger is a named event posted by either side.
type Trigger struct {
	Name string
}

// ToMessage implements OutboundMessage.
func (t Trigger) ToMessage() *Message {
	return NewMessage(CommandTrigger, Param("name", t.Name))
}

func parseTrigger(m *Message) (Trigger, error) {
	name, err := m.StringParam("name")
	if err != nil {
		return Trigger{}, err
	}
	return Trigger{Name: name}, nil
}

// RegisterTrigger asks the peer to forward an event as a trigger.
type RegisterTrigger struct {
	Event string
}

// ToMessage implements OutboundMessage.
func (r RegisterTrigger) ToMessage() *Message {
	return NewMessage(CommandRegisterTrigger, Param("event", r.Event))
}

// RemoveTrigger asks the peer to stop forwarding an event.
type RemoveTrigger struct {
	Event string
}

// ToMessage implements OutboundMessage.
func (r RemoveTrigger) ToMessage() *Message {
	return NewMessage(CommandRemoveTrigger, Param("event", r.Event))
}
