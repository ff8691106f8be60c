package match

import (
	"github.com/wfunc/bombarena/board"
	"github.com/wfunc/bombarena/models"
)

// Inbound payloads.

type MoveRequest struct {
	GameID    string `json:"gameId"`
	PlayerID  string `json:"playerId"`
	XA        int    `json:"xa"`
	YA        int    `json:"ya"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Direction string `json:"direction"`
}

type BombRequest struct {
	GameID   string `json:"gameId"`
	PlayerID string `json:"playerId"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
}

type ExplodeRequest struct {
	GameID   string        `json:"gameId"`
	PlayerID string        `json:"playerId"`
	Tiles    []board.Point `json:"explosionTiles"`
}

type Victim struct {
	VictimID string `json:"victimId"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
}

// KillRequest names a single victim, or several in Victims when one blast
// took out more than one player.
type KillRequest struct {
	GameID   string   `json:"gameId"`
	KillerID string   `json:"killerId"`
	VictimID string   `json:"victimId,omitempty"`
	X        int      `json:"x"`
	Y        int      `json:"y"`
	Victims  []Victim `json:"victims,omitempty"`
}

func (r KillRequest) victims() []Victim {
	if len(r.Victims) > 0 {
		return r.Victims
	}
	if r.VictimID == "" {
		return nil
	}
	return []Victim{{VictimID: r.VictimID, X: r.X, Y: r.Y}}
}

type LeaveRequest struct {
	GameID   string `json:"gameId"`
	PlayerID string `json:"playerId"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
}

type ConnectRequest struct {
	GameID   string `json:"gameId"`
	Username string `json:"username"`
}

// Outbound payloads.

type Countdown struct {
	GameID string `json:"gameId"`
	Time   int    `json:"time"`
}

type ClockTick struct {
	GameID   string `json:"gameId"`
	TimeLeft int    `json:"timeLeft"`
}

type PlayerDied struct {
	KillerID string `json:"killerId,omitempty"`
	Killer   string `json:"killer,omitempty"`
	VictimID string `json:"victimId"`
	Victim   string `json:"victim"`
	Suicide  bool   `json:"suicide"`
}

type PlayerLeft struct {
	PlayerID string `json:"playerId"`
	Username string `json:"username"`
}

type GameOver struct {
	GameID  string   `json:"gameId"`
	Reason  string   `json:"reason"`
	Winners []Player `json:"winners"`
	Players []Player `json:"players"`
}

// State is a full view of a live match, sent to a (re)connecting client.
type State struct {
	GameID   string            `json:"gameId"`
	Players  []Player          `json:"players"`
	Board    board.Layout      `json:"board"`
	TimeLeft int               `json:"timeLeft"`
	Config   models.GameConfig `json:"config"`
}
