package bcp

import "sort"

// Handlers holds one handler per built-in command. It is built once by
// NewInterface; the command lookup never changes afterwards.
type Handlers struct {
	Hello   *Handler[Hello]
	Goodbye *Handler[Goodbye]
	Reset   *Handler[Reset]
	Error   *Handler[ErrorMessage]
	Trigger *Handler[Trigger]
	Switch  *Handler[Switch]

	BallStart       *Handler[BallStart]
	BallEnd         *Handler[BallEnd]
	PlayerAdded     *Handler[PlayerAdded]
	PlayerTurnStart *Handler[PlayerTurnStart]

	ModeStart *Handler[ModeStart]
	ModeStop  *Handler[ModeStop]
	ModeList  *Handler[ModeList]

	PlayerVariable  *Handler[PlayerVariable]
	MachineVariable *Handler[MachineVariable]
	Settings        *Handler[Settings]
	Device          *Handler[Device]

	lookup map[string]MessageHandler
}

func newHandlers(categories *EventRequester[MonitoringCategory], extra []MessageHandler, logger Logger) *Handlers {
	h := &Handlers{
		Hello:   NewHandler(CommandHello, CategoryNone, parseHello, categories),
		Goodbye: NewHandler(CommandGoodbye, CategoryNone, parseGoodbye, categories),
		Reset:   NewHandler(CommandReset, CategoryNone, parseReset, categories),
		Error:   NewHandler(CommandError, CategoryNone, parseErrorMessage, categories),
		Trigger: NewHandler(CommandTrigger, CategoryNone, parseTrigger, categories),
		Switch:  NewHandler(CommandSwitch, CategorySwitches, parseSwitch, categories),

		BallStart:       NewHandler(CommandBallStart, CategoryCoreEvents, parseBallStart, categories),
		BallEnd:         NewHandler(CommandBallEnd, CategoryCoreEvents, parseBallEnd, categories),
		PlayerAdded:     NewHandler(CommandPlayerAdded, CategoryCoreEvents, parsePlayerAdded, categories),
		PlayerTurnStart: NewHandler(CommandPlayerTurnStart, CategoryCoreEvents, parsePlayerTurnStart, categories),

		ModeStart: NewHandler(CommandModeStart, CategoryModes, parseModeStart, categories),
		ModeStop:  NewHandler(CommandModeStop, CategoryModes, parseModeStop, categories),
		ModeList:  NewHandler(CommandModeList, CategoryModes, parseModeList, categories),

		PlayerVariable:  NewHandler(CommandPlayerVariable, CategoryPlayerVars, parsePlayerVariable, categories),
		MachineVariable: NewHandler(CommandMachineVariable, CategoryMachineVars, parseMachineVariable, categories),
		Settings:        NewHandler(CommandSettings, CategoryMachineVars, parseSettings, categories),
		Device:          NewHandler(CommandDevice, CategoryDevices, parseDevice, categories),
	}

	builtin := []MessageHandler{
		h.Hello, h.Goodbye, h.Reset, h.Error, h.Trigger, h.Switch,
		h.BallStart, h.BallEnd, h.PlayerAdded, h.PlayerTurnStart,
		h.ModeStart, h.ModeStop, h.ModeList,
		h.PlayerVariable, h.MachineVariable, h.Settings, h.Device,
	}

	h.lookup = make(map[string]MessageHandler, len(builtin)+len(extra))
	for _, handler := range builtin {
		h.lookup[handler.Command()] = handler
	}
	for _, handler := range extra {
		if _, dup := h.lookup[handler.Command()]; dup {
			logger.Warn("ignoring duplicate handler", "command", handler.Command())
			continue
		}
		h.lookup[handler.Command()] = handler
	}
	return h
}

// Lookup returns the handler for a command.
func (h *Handlers) Lookup(command string) (MessageHandler, bool) {
	handler, ok := h.lookup[command]
	return handler, ok
}

// Commands returns every handled command in sorted order.
func (h *Handlers) Commands() []string {
	commands := make([]string, 0, len(h.lookup))
	for command := range h.lookup {
		commands = append(commands, command)
	}
	sort.Strings(commands)
	return commands
}
