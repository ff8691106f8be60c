package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/bombarena/apperr"
	"github.com/wfunc/bombarena/board"
	"github.com/wfunc/bombarena/config"
	"github.com/wfunc/bombarena/factory"
	"github.com/wfunc/bombarena/network"
	"github.com/wfunc/bombarena/session"
)

type sent struct {
	event string
	ack   int64
	data  interface{}
}

// MockConnection records every outbound envelope.
type MockConnection struct {
	mu  sync.Mutex
	out []sent
}

func (m *MockConnection) Send(event string, ack int64, data interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.out = append(m.out, sent{event: event, ack: ack, data: data})
	return nil
}

func (m *MockConnection) Close() error                         { return nil }
func (m *MockConnection) RemoteAddr() net.Addr                 { return &net.TCPAddr{} }
func (m *MockConnection) SetHeartbeat(interval time.Duration)  {}
func (m *MockConnection) ReadPacket() (*network.Packet, error) { return nil, net.ErrClosed }

func (m *MockConnection) events(event string) []sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []sent
	for _, s := range m.out {
		if s.event == event {
			out = append(out, s)
		}
	}
	return out
}

// ack returns the acknowledgement body for id.
func (m *MockConnection) ack(t *testing.T, id int64) ackData {
	t.Helper()
	for _, s := range m.events(network.EventAck) {
		if s.ack == id {
			return s.data.(ackData)
		}
	}
	t.Fatalf("no ack %d", id)
	return nil
}

// MockFactory builds a one-row board with every requested player on it.
type MockFactory struct {
	err error
}

func (f *MockFactory) CreateGame(ctx context.Context, req factory.Request) (*factory.Game, error) {
	if f.err != nil {
		return nil, f.err
	}
	game := &factory.Game{GameID: "game-" + req.RoomID, Config: req.Config}
	for i, p := range req.Players {
		game.Players = append(game.Players, factory.PlayerRecord{ID: p.ID, Username: p.Username})
		game.Board.Cells = append(game.Board.Cells,
			board.Cell{X: i * 2, Y: 0, Type: board.Player, OccupantID: p.ID},
			board.Cell{X: i*2 + 1, Y: 0, Type: board.Empty})
	}
	return game, nil
}

type testServer struct {
	*GameServer
	conns map[string]*MockConnection
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWith(t, &MockFactory{})
}

func newTestServerWith(t *testing.T, f *MockFactory) *testServer {
	t.Helper()
	cfg, err := config.LoadConfig("", t.TempDir())
	require.NoError(t, err)
	cfg.Match.CountdownTicks = 0

	s := &testServer{
		GameServer: NewGameServer(cfg, Backends{Factory: f}),
		conns:      make(map[string]*MockConnection),
	}
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	return s
}

func (s *testServer) conn(id string) *MockConnection {
	if c, ok := s.conns[id]; ok {
		return c
	}
	c := &MockConnection{}
	s.conns[id] = c
	s.sessionManager.Add(session.NewSession(id, c))
	return c
}

func (s *testServer) send(t *testing.T, connID string, ack int64, event string, data interface{}) {
	t.Helper()
	s.conn(connID)
	sess, _ := s.sessionManager.Get(connID)
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	s.handlePacket(sess, &network.Packet{Event: event, Ack: ack, Data: raw})
}

func TestCreateAndJoinRoom(t *testing.T) {
	s := newTestServer(t)

	s.send(t, "c1", 1, network.EventCreateRoom, map[string]string{"roomName": "r1", "username": "ana"})
	ack := s.conn("c1").ack(t, 1)
	assert.Equal(t, true, ack["success"])
	assert.Equal(t, true, ack["isOwner"])
	assert.Equal(t, "c1", ack["playerId"])

	s.send(t, "c2", 2, network.EventJoinRoom, map[string]string{"room": "r1", "username": "ana"})
	ack = s.conn("c2").ack(t, 2)
	assert.Equal(t, false, ack["success"])
	assert.Equal(t, apperr.UsernameTaken, ack["code"])

	s.send(t, "c2", 3, network.EventJoinRoom, map[string]string{"room": "r1", "username": "bo"})
	ack = s.conn("c2").ack(t, 3)
	assert.Equal(t, true, ack["success"])
	assert.Equal(t, false, ack["isOwner"])

	assert.NotEmpty(t, s.conn("c1").events(network.EventUpdateLobby))
}

func TestCreateRoom_ExistingNameLeavesRoomIntact(t *testing.T) {
	s := newTestServer(t)
	s.send(t, "c1", 1, network.EventCreateRoom, map[string]string{"room": "r1", "username": "ana"})
	s.send(t, "c2", 2, network.EventCreateRoom, map[string]string{"room": "r1", "username": "bo"})

	ack := s.conn("c2").ack(t, 2)
	assert.Equal(t, apperr.AlreadyExists, ack["code"])
	r, ok := s.registry.Get("r1")
	require.True(t, ok)
	assert.Equal(t, 1, r.MemberCount())
}

func TestUnknownEventAndMissingAck(t *testing.T) {
	s := newTestServer(t)

	s.send(t, "c1", 7, "dance", nil)
	ack := s.conn("c1").ack(t, 7)
	assert.Equal(t, false, ack["success"])
	assert.Equal(t, apperr.InvalidRequest, ack["code"])

	// no ack id, no acknowledgement
	s.send(t, "c1", 0, network.EventJoinRoom, map[string]string{"room": "r1", "username": "ana"})
	assert.Len(t, s.conn("c1").events(network.EventAck), 1)
}

func TestGetRooms(t *testing.T) {
	s := newTestServer(t)
	s.send(t, "c1", 1, network.EventJoinRoom, map[string]string{"room": "r1", "username": "ana"})

	s.send(t, "c2", 2, network.EventGetRooms, nil)
	ack := s.conn("c2").ack(t, 2)
	assert.Equal(t, []string{"r1"}, ack["rooms"])
	lists := s.conn("c2").events(network.EventRoomsList)
	require.NotEmpty(t, lists)
	assert.Equal(t, []string{"r1"}, lists[len(lists)-1].data)
}

func TestStartGame_PlayLeaveAndRetire(t *testing.T) {
	s := newTestServer(t)
	s.send(t, "c1", 0, network.EventJoinRoom, map[string]string{"room": "r1", "username": "ana"})
	s.send(t, "c2", 0, network.EventJoinRoom, map[string]string{"room": "r1", "username": "bo"})

	s.send(t, "c2", 1, network.EventStartGame, map[string]string{"room": "r1"})
	assert.Equal(t, apperr.NotOwner, s.conn("c2").ack(t, 1)["code"])

	s.send(t, "c1", 0, network.EventSetReady, map[string]interface{}{"room": "r1", "isReady": true})
	s.send(t, "c2", 0, network.EventSetReady, map[string]interface{}{"room": "r1", "isReady": true})
	s.send(t, "c1", 2, network.EventStartGame, map[string]string{"room": "r1"})
	ack := s.conn("c1").ack(t, 2)
	require.Equal(t, true, ack["success"], ack["message"])
	assert.Equal(t, "game-r1", ack["gameId"])
	assert.Len(t, s.conn("c2").events(network.EventGameStart), 1)

	// players reconnect on the game page
	s.send(t, "g1", 3, network.EventConnectToGame, map[string]string{"gameId": "game-r1", "username": "ana"})
	s.send(t, "g2", 4, network.EventConnectToGame, map[string]string{"gameId": "game-r1", "username": "bo"})
	assert.Equal(t, "c1", s.conn("g1").ack(t, 3)["playerId"])
	assert.Equal(t, "c2", s.conn("g2").ack(t, 4)["playerId"])

	s.send(t, "g2", 5, network.EventMove, map[string]interface{}{"gameId": "game-r1", "playerId": "c2", "x": 3, "y": 0})
	assert.Equal(t, true, s.conn("g2").ack(t, 5)["success"])
	assert.Len(t, s.conn("g1").events(network.EventPlayerMoved), 1)

	s.send(t, "g2", 6, network.EventLeaveGame, map[string]interface{}{"gameId": "game-r1", "playerId": "c2"})
	assert.Equal(t, true, s.conn("g2").ack(t, 6)["success"])

	require.Len(t, s.conn("g1").events(network.EventGameOver), 1)
	assert.Zero(t, s.matches.Count())
	assert.Zero(t, s.registry.Count(), "the finished match retires its room")

	// usernames are free once the room is retired
	s.send(t, "c3", 7, network.EventJoinRoom, map[string]string{"room": "r2", "username": "ana"})
	assert.Equal(t, true, s.conn("c3").ack(t, 7)["success"])
}

func TestStartGame_FactoryFailureReportsToRequester(t *testing.T) {
	s := newTestServerWith(t, &MockFactory{err: assert.AnError})

	s.send(t, "c1", 0, network.EventJoinRoom, map[string]string{"room": "r1", "username": "ana"})
	s.send(t, "c2", 0, network.EventJoinRoom, map[string]string{"room": "r1", "username": "bo"})
	s.send(t, "c1", 0, network.EventSetReady, map[string]interface{}{"room": "r1", "isReady": true})
	s.send(t, "c2", 0, network.EventSetReady, map[string]interface{}{"room": "r1", "isReady": true})
	s.send(t, "c1", 1, network.EventStartGame, map[string]string{"room": "r1"})

	assert.Equal(t, apperr.FactoryError, s.conn("c1").ack(t, 1)["code"])
	assert.Empty(t, s.conn("c2").events(network.EventGameStart))
	r, _ := s.registry.Get("r1")
	assert.False(t, r.Started())
}

func TestSetRoomConfigAck(t *testing.T) {
	s := newTestServer(t)
	s.send(t, "c1", 0, network.EventJoinRoom, map[string]string{"room": "r1", "username": "ana"})

	s.send(t, "c1", 1, network.EventSetRoomConfig, map[string]interface{}{"room": "r1", "time": 3})
	ack := s.conn("c1").ack(t, 1)
	require.Equal(t, true, ack["success"])
	r, _ := s.registry.Get("r1")
	assert.Equal(t, 3, r.Config().Duration)
	assert.Equal(t, "default", r.Config().Map)
}

func TestDisconnectLeavesRoom(t *testing.T) {
	s := newTestServer(t)
	s.send(t, "c1", 0, network.EventJoinRoom, map[string]string{"room": "r1", "username": "ana"})
	s.send(t, "c2", 0, network.EventJoinRoom, map[string]string{"room": "r1", "username": "bo"})

	s.sessionManager.Remove("c1")
	s.disconnect("c1")

	r, ok := s.registry.Get("r1")
	require.True(t, ok)
	assert.Equal(t, 1, r.MemberCount())
	assert.Equal(t, "c2", r.Owner())
}

func TestHTTPRoutes(t *testing.T) {
	s := newTestServer(t)
	s.send(t, "c1", 0, network.EventGetRooms, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/leaderboard")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "leaderboard disabled without redis")

	resp, err = http.Get(srv.URL + "/stats")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `bombarena_events_received_total{event="getRooms"} 1`)
}

func TestWebSocketRoundTrip(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.WriteJSON(map[string]interface{}{
		"event": network.EventJoinRoom,
		"ack":   1,
		"data":  map[string]string{"room": "r1", "username": "ana"},
	}))

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var env struct {
			Event string                 `json:"event"`
			Ack   int64                  `json:"ack"`
			Data  map[string]interface{} `json:"data"`
		}
		_, raw, err := ws.ReadMessage()
		require.NoError(t, err)
		if json.Unmarshal(raw, &env) != nil || env.Event != network.EventAck {
			continue
		}
		assert.Equal(t, int64(1), env.Ack)
		assert.Equal(t, true, env.Data["success"])
		assert.Equal(t, true, env.Data["isOwner"])
		break
	}

	ws.Close()
	require.Eventually(t, func() bool { return s.registry.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}
