package bcp

// ConnectionState is the state of the transport's connection loop.
type ConnectionState int

const (
	// NotConnected means no listener is open.
	NotConnected ConnectionState = iota
	// Connecting means the listener is open and waiting for a peer.
	Connecting
	// Connected means a peer is attached.
	Connected
	// Disconnecting means the current session or the listener is being torn down.
	Disconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case NotConnected:
		return "not_connected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	}
	return "unknown"
}

// StateChange is delivered to state observers.
type StateChange struct {
	Current  ConnectionState
	Previous ConnectionState
}
