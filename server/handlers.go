package server

import (
	"encoding/json"
	"time"

	"github.com/wfunc/bombarena/apperr"
	"github.com/wfunc/bombarena/logger"
	"github.com/wfunc/bombarena/match"
	"github.com/wfunc/bombarena/models"
	"github.com/wfunc/bombarena/network"
	"github.com/wfunc/bombarena/session"
)

// ackData is merged into the acknowledgement of a successful request.
type ackData map[string]interface{}

type handlerFunc func(sess *session.Session, data json.RawMessage) (ackData, error)

type roomRequest struct {
	Room     string `json:"room"`
	RoomName string `json:"roomName"`
	Username string `json:"username"`
}

// name accepts either spelling of the room field.
func (r roomRequest) name() string {
	if r.Room != "" {
		return r.Room
	}
	return r.RoomName
}

type readyRequest struct {
	Room    string `json:"room"`
	IsReady bool   `json:"isReady"`
}

type configRequest struct {
	Room string `json:"room"`
	models.ConfigPatch
}

type characterRequest struct {
	Room      string `json:"room"`
	Character string `json:"character"`
}

func (s *GameServer) routes() map[string]handlerFunc {
	return map[string]handlerFunc{
		network.EventGetRooms:        s.handleGetRooms,
		network.EventCreateRoom:      s.handleCreateRoom,
		network.EventJoinRoom:        s.handleJoinRoom,
		network.EventSetReady:        s.handleSetReady,
		network.EventSetRoomConfig:   s.handleSetRoomConfig,
		network.EventSelectCharacter: s.handleSelectCharacter,
		network.EventStartGame:       s.handleStartGame,
		network.EventLeaveRoom:       s.handleLeaveRoom,
		network.EventConnectToGame:   s.handleConnectToGame,
		network.EventMove:            s.handleMove,
		network.EventBombPlaced:      s.handleBombPlaced,
		network.EventBombExploded:    s.handleBombExploded,
		network.EventPlayerKilled:    s.handlePlayerKilled,
		network.EventLeaveGame:       s.handleLeaveGame,
	}
}

func (s *GameServer) handlePacket(sess *session.Session, packet *network.Packet) {
	sess.Touch()

	handler, ok := s.handlers[packet.Event]
	if !ok {
		logger.Log.Infof("Unknown event: %s", packet.Event)
		s.reply(sess, packet, nil, apperr.Newf(apperr.InvalidRequest, "unknown event %q", packet.Event))
		return
	}
	s.metrics.IncEvent(packet.Event)

	extra, err := handler(sess, packet.Data)
	if err != nil {
		logger.Log.Debugw("request rejected", "conn", sess.GetID(), "event", packet.Event, "error", err)
	}
	s.reply(sess, packet, extra, err)
}

// reply acknowledges packet when the client asked for it.
func (s *GameServer) reply(sess *session.Session, packet *network.Packet, extra ackData, err error) {
	if packet.Ack == 0 {
		return
	}
	body := ackData{"success": err == nil}
	if err != nil {
		body["message"] = apperr.MessageOf(err)
		body["code"] = apperr.KindOf(err)
	} else {
		for k, v := range extra {
			body[k] = v
		}
	}
	if sendErr := sess.Send(network.EventAck, packet.Ack, body); sendErr != nil {
		logger.Log.Debugw("ack not delivered", "conn", sess.GetID(), "error", sendErr)
	}
}

func decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return apperr.New(apperr.InvalidRequest, "missing payload")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperr.Wrap(apperr.InvalidRequest, "malformed payload", err)
	}
	return nil
}

// --- lobby ---

func (s *GameServer) handleGetRooms(sess *session.Session, _ json.RawMessage) (ackData, error) {
	rooms := s.registry.RoomIDs()
	if err := sess.Send(network.EventRoomsList, 0, rooms); err != nil {
		logger.Log.Debugw("rooms list not delivered", "conn", sess.GetID(), "error", err)
	}
	return ackData{"rooms": rooms}, nil
}

// handleCreateRoom creates the room and seats its creator as owner.
func (s *GameServer) handleCreateRoom(sess *session.Session, data json.RawMessage) (ackData, error) {
	var req roomRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	res, err := s.registry.CreateAndJoin(req.name(), sess.GetID(), req.Username)
	if err != nil {
		return nil, err
	}
	return joinAck(req.name(), res.PlayerID, res.IsOwner, res.Config), nil
}

func (s *GameServer) handleJoinRoom(sess *session.Session, data json.RawMessage) (ackData, error) {
	var req roomRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	join := s.registry.Join
	if s.cfg.Room.CreateOnJoin {
		join = s.registry.JoinOrCreate
	}
	res, err := join(req.name(), sess.GetID(), req.Username)
	if err != nil {
		return nil, err
	}
	return joinAck(req.name(), res.PlayerID, res.IsOwner, res.Config), nil
}

func joinAck(room, playerID string, isOwner bool, cfg models.GameConfig) ackData {
	return ackData{"room": room, "playerId": playerID, "isOwner": isOwner, "config": cfg}
}

func (s *GameServer) handleSetReady(sess *session.Session, data json.RawMessage) (ackData, error) {
	var req readyRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	return nil, s.registry.SetReady(req.Room, sess.GetID(), req.IsReady)
}

func (s *GameServer) handleSetRoomConfig(sess *session.Session, data json.RawMessage) (ackData, error) {
	var req configRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	cfg, err := s.registry.SetConfig(req.Room, sess.GetID(), req.ConfigPatch)
	if err != nil {
		return nil, err
	}
	return ackData{"config": cfg}, nil
}

func (s *GameServer) handleSelectCharacter(sess *session.Session, data json.RawMessage) (ackData, error) {
	var req characterRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	return nil, s.registry.SelectCharacter(req.Room, sess.GetID(), req.Character)
}

// handleStartGame blocks this connection's read loop for the factory call;
// other connections keep being served.
func (s *GameServer) handleStartGame(sess *session.Session, data json.RawMessage) (ackData, error) {
	var req roomRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}

	begin := time.Now()
	gameID, err := s.registry.StartMatch(s.ctx, req.name(), sess.GetID())
	if err == nil || apperr.Is(err, apperr.FactoryError) {
		s.metrics.ObserveStart(time.Since(begin), err != nil)
	}
	if err != nil {
		return nil, err
	}
	return ackData{"gameId": gameID}, nil
}

func (s *GameServer) handleLeaveRoom(sess *session.Session, data json.RawMessage) (ackData, error) {
	var req roomRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	return nil, s.registry.Leave(req.name(), sess.GetID())
}

// --- match ---

func (s *GameServer) game(id string) (*match.Match, error) {
	game, ok := s.matches.Get(id)
	if !ok {
		return nil, apperr.Newf(apperr.NotFound, "game %s not found", id)
	}
	return game, nil
}

func (s *GameServer) handleConnectToGame(sess *session.Session, data json.RawMessage) (ackData, error) {
	var req match.ConnectRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	game, err := s.game(req.GameID)
	if err != nil {
		return nil, err
	}
	player, err := game.ConnectToGame(sess.GetID(), req.Username)
	if err != nil {
		return nil, err
	}
	s.directory.BindMatch(sess.GetID(), game.ID, player.ID)

	extra := ackData{"gameId": game.ID, "playerId": player.ID}
	if st, err := game.Snapshot(); err == nil {
		extra["game"] = st
	}
	return extra, nil
}

func (s *GameServer) handleMove(sess *session.Session, data json.RawMessage) (ackData, error) {
	var req match.MoveRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	game, err := s.game(req.GameID)
	if err != nil {
		return nil, err
	}
	return nil, game.Move(sess.GetID(), req)
}

func (s *GameServer) handleBombPlaced(sess *session.Session, data json.RawMessage) (ackData, error) {
	var req match.BombRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	game, err := s.game(req.GameID)
	if err != nil {
		return nil, err
	}
	return nil, game.PlaceBomb(sess.GetID(), req)
}

func (s *GameServer) handleBombExploded(sess *session.Session, data json.RawMessage) (ackData, error) {
	var req match.ExplodeRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	game, err := s.game(req.GameID)
	if err != nil {
		return nil, err
	}
	return nil, game.Explode(sess.GetID(), req)
}

func (s *GameServer) handlePlayerKilled(sess *session.Session, data json.RawMessage) (ackData, error) {
	var req match.KillRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	game, err := s.game(req.GameID)
	if err != nil {
		return nil, err
	}
	return nil, game.Kill(req)
}

func (s *GameServer) handleLeaveGame(sess *session.Session, data json.RawMessage) (ackData, error) {
	var req match.LeaveRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	game, err := s.game(req.GameID)
	if err != nil {
		return nil, err
	}
	player, known := game.Player(req.PlayerID)
	if err := game.Leave(req); err != nil {
		return nil, err
	}
	s.directory.UnbindMatch(sess.GetID(), game.ID)
	if known {
		s.registry.ForgetPlayer(game.RoomID, player.Username)
	}
	return nil, nil
}
