package room

import (
	"context"

	"github.com/wfunc/bombarena/factory"
	"github.com/wfunc/bombarena/match"
)

// Broadcaster is the slice of broadcast.Hub the lobby needs. It is declared
// here so room does not depend on the transport.
type Broadcaster interface {
	SendTo(connID string, event string, data interface{}) error
	BroadcastToConns(connIDs []string, event string, data interface{})
	BroadcastToAll(event string, data interface{})
}

// GameFactory generates the board and roster for a starting room.
type GameFactory interface {
	CreateGame(ctx context.Context, req factory.Request) (*factory.Game, error)
}

// MatchCreator turns a factory game into a live match.
type MatchCreator interface {
	CreateMatch(roomID string, game *factory.Game) *match.Match
}
