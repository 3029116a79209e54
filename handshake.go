package bcp

// ProtocolVersion is the BCP version spoken by this package.
const ProtocolVersion = "1.1"

// Defaults reported in the hello reply.
const (
	DefaultControllerName    = "bcp-go"
	DefaultControllerVersion = "0.1.0"
)

// Handshake and session commands.
const (
	CommandHello         = "hello"
	CommandGoodbye       = "goodbye"
	CommandReset         = "reset"
	CommandResetComplete = "reset_complete"
	CommandError         = "error"
)

// Hello opens a session and carries the protocol version of the sender.
type Hello struct {
	Version           string
	ControllerName    string
	ControllerVersion string
}

// ToMessage implements OutboundMessage.
func (h Hello) ToMessage() *Message {
	return NewMessage(CommandHello,
		Param("version", h.Version),
		Param("controller_name", h.ControllerName),
		Param("controller_version", h.ControllerVersion),
	)
}

func parseHello(m *Message) (Hello, error) {
	version, err := m.StringParam("version")
	if err != nil {
		return Hello{}, err
	}
	h := Hello{Version: version}
	h.ControllerName, _ = m.StringParam("controller_name")
	h.ControllerVersion, _ = m.StringParam("controller_version")
	return h, nil
}

// Goodbye ends a session.
type Goodbye struct{}

// ToMessage implements OutboundMessage.
func (Goodbye) ToMessage() *Message {
	return NewMessage(CommandGoodbye)
}

func parseGoodbye(*Message) (Goodbye, error) {
	return Goodbye{}, nil
}

// Reset asks the receiver to return to its initial state.
type Reset struct{}

// ToMessage implements OutboundMessage.
func (Reset) ToMessage() *Message {
	return NewMessage(CommandReset)
}

func parseReset(*Message) (Reset, error) {
	return Reset{}, nil
}

// ResetComplete acknowledges a Reset.
type ResetComplete struct{}

// ToMessage implements OutboundMessage.
func (ResetComplete) ToMessage() *Message {
	return NewMessage(CommandResetComplete)
}

// ErrorMessage reports a problem with a received command.
type ErrorMessage struct {
	Message string
	// Command is the display form of the offending message.
	Command string
}

// ToMessage implements OutboundMessage.
func (e ErrorMessage) ToMessage() *Message {
	return NewMessage(CommandError,
		Param("message", e.Message),
		Param("command", e.Command),
	)
}

func parseErrorMessage(m *Message) (ErrorMessage, error) {
	text, err := m.StringParam("message")
	if err != nil {
		return ErrorMessage{}, err
	}
	command, _ := m.StringParam("command")
	return ErrorMessage{Message: text, Command: command}, nil
}
