package bcp

// MonitoringCategory is a group of peer events that is subscribed to as a unit.
type MonitoringCategory int

const (
	// CategoryNone marks a handler that needs no subscription.
	CategoryNone MonitoringCategory = iota
	CategoryEvents
	CategoryDevices
	CategoryMachineVars
	CategoryPlayerVars
	CategorySwitches
	CategoryModes
	CategoryCoreEvents
)

var categoryNames = map[MonitoringCategory]string{
	CategoryEvents:      "events",
	CategoryDevices:     "devices",
	CategoryMachineVars: "machine_vars",
	CategoryPlayerVars:  "player_vars",
	CategorySwitches:    "switches",
	CategoryModes:       "modes",
	CategoryCoreEvents:  "core_events",
}

// String returns the wire name of the category.
func (c MonitoringCategory) String() string {
	return categoryNames[c]
}

// ParseCategory returns the category with the given wire name.
func ParseCategory(name string) (MonitoringCategory, bool) {
	for c, n := range categoryNames {
		if n == name {
			return c, true
		}
	}
	return CategoryNone, false
}

// Commands for monitoring subscriptions.
const (
	CommandMonitorStart = "monitor_start"
	CommandMonitorStop  = "monitor_stop"
)

// MonitorStart asks the peer to start sending a category.
type MonitorStart struct {
	Category MonitoringCategory
}

// ToMessage implements OutboundMessage.
func (s MonitorStart) ToMessage() *Message {
	return NewMessage(CommandMonitorStart, Param("category", s.Category.String()))
}

// MonitorStop asks the peer to stop sending a category.
type MonitorStop struct {
	Category MonitoringCategory
}

// ToMessage implements OutboundMessage.
func (s MonitorStop) ToMessage() *Message {
	return NewMessage(CommandMonitorStop, Param("category", s.Category.String()))
}
