// models/models.go
package models

import (
	"time"
)

// GameConfig is the owner-editable configuration of a room, handed to the
// match factory and carried by the resulting match.
type GameConfig struct {
	Map      string `json:"map"`
	Duration int    `json:"time"` // minutes
	Items    int    `json:"items"`
}

// ConfigPatch is a partial GameConfig; nil fields are left unchanged.
type ConfigPatch struct {
	Map      *string `json:"map,omitempty"`
	Duration *int    `json:"time,omitempty"`
	Items    *int    `json:"items,omitempty"`
}

// Apply returns c with the non-nil fields of p applied.
func (p ConfigPatch) Apply(c GameConfig) GameConfig {
	if p.Map != nil {
		c.Map = *p.Map
	}
	if p.Duration != nil {
		c.Duration = *p.Duration
	}
	if p.Items != nil {
		c.Items = *p.Items
	}
	return c
}

// PlayerLobbyInfo is a room member as seen by the lobby.
type PlayerLobbyInfo struct {
	ID           string   `json:"id"`
	Username     string   `json:"username"`
	Score        int      `json:"score"`
	SpecialItems []string `json:"specialItems"`
	BombCapacity int      `json:"bomb"`
}

// MatchRecord is the finished-match history entry written by the result
// sinks.
type MatchRecord struct {
	GameID          string         `json:"gameId"`
	RoomID          string         `json:"roomId"`
	Reason          string         `json:"reason"`
	DurationSeconds int            `json:"durationSeconds"`
	Players         []PlayerResult `json:"players"`
	FinishedAt      time.Time      `json:"finishedAt"`
}

// PlayerResult is one participant's line in a MatchRecord.
type PlayerResult struct {
	PlayerID  string `json:"playerId"`
	Username  string `json:"username"`
	Rank      int    `json:"rank"`
	Score     int    `json:"score"`
	Kills     int    `json:"kills"`
	TimeAlive int    `json:"timeAlive"`
	Winner    bool   `json:"winner"`
}

// PlayerStats aggregates a username's history.
type PlayerStats struct {
	Username string `json:"username"`
	Games    int    `json:"games"`
	Wins     int    `json:"wins"`
	Kills    int    `json:"kills"`
	Score    int    `json:"score"`
}
