// Package factory talks to the external match factory that generates the
// board and canonical player records for a starting room.
package factory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/wfunc/bombarena/board"
	"github.com/wfunc/bombarena/models"
)

var ErrMalformedGame = errors.New("factory returned a malformed game")

// Request is the roster handed to the factory: only ready members.
type Request struct {
	RoomID  string                   `json:"roomId"`
	Config  models.GameConfig        `json:"config"`
	Players []models.PlayerLobbyInfo `json:"players"`
}

// PlayerRecord is the factory's canonical view of a participant.
type PlayerRecord struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Game is the factory response and the authoritative initial match state.
type Game struct {
	GameID  string            `json:"gameId"`
	Players []PlayerRecord    `json:"players"`
	Config  models.GameConfig `json:"config"`
	Board   board.Layout      `json:"board"`
}

type Client interface {
	CreateGame(ctx context.Context, req Request) (*Game, error)
}

// HTTPClient posts requests to a factory endpoint as JSON.
type HTTPClient struct {
	url  string
	http *http.Client
}

func NewHTTPClient(url string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPClient{url: url, http: httpClient}
}

func (c *HTTPClient) CreateGame(ctx context.Context, req Request) (*Game, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("factory request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("factory status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	game := &Game{}
	if err := json.NewDecoder(resp.Body).Decode(game); err != nil {
		return nil, fmt.Errorf("decode factory response: %w", err)
	}
	if err := game.Validate(); err != nil {
		return nil, err
	}
	return game, nil
}

// Validate checks structural presence only; board contents are trusted.
func (g *Game) Validate() error {
	if len(g.Players) == 0 {
		return fmt.Errorf("%w: no players", ErrMalformedGame)
	}
	if g.Board.Cells == nil {
		return fmt.Errorf("%w: no board", ErrMalformedGame)
	}
	for _, p := range g.Players {
		if p.ID == "" {
			return fmt.Errorf("%w: player without id", ErrMalformedGame)
		}
	}
	return nil
}
