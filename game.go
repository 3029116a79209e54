package bcp

// Game flow commands, sent by the peer in the core_events category.
const (
	CommandBallStart       = "ball_start"
	CommandBallEnd         = "ball_end"
	CommandPlayerAdded     = "player_added"
	CommandPlayerTurnStart = "player_turn_start"
)

// BallStart is sent when a ball starts.
type BallStart struct {
	PlayerNum int
	Ball      int
}

func parseBallStart(m *Message) (BallStart, error) {
	player, err := m.IntParam("player_num")
	if err != nil {
		return BallStart{}, err
	}
	ball, err := m.IntParam("ball")
	if err != nil {
		return BallStart{}, err
	}
	return BallStart{PlayerNum: player, Ball: ball}, nil
}

// BallEnd is sent when a ball ends.
type BallEnd struct{}

func parseBallEnd(*Message) (BallEnd, error) {
	return BallEnd{}, nil
}

// PlayerAdded is sent when a player joins the game. PlayerNum starts at 1.
type PlayerAdded struct {
	PlayerNum int
}

func parsePlayerAdded(m *Message) (PlayerAdded, error) {
	player, err := m.IntParam("player_num")
	if err != nil {
		return PlayerAdded{}, err
	}
	return PlayerAdded{PlayerNum: player}, nil
}

// PlayerTurnStart is sent when a player's turn begins.
type PlayerTurnStart struct {
	PlayerNum int
}

func parsePlayerTurnStart(m *Message) (PlayerTurnStart, error) {
	player, err := m.IntParam("player_num")
	if err != nil {
		return PlayerTurnStart{}, err
	}
	return PlayerTurnStart{PlayerNum: player}, nil
}
