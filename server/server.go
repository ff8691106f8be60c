package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wfunc/bombarena/broadcast"
	"github.com/wfunc/bombarena/config"
	"github.com/wfunc/bombarena/logger"
	"github.com/wfunc/bombarena/match"
	"github.com/wfunc/bombarena/models"
	"github.com/wfunc/bombarena/monitor"
	"github.com/wfunc/bombarena/network"
	"github.com/wfunc/bombarena/room"
	"github.com/wfunc/bombarena/services"
	"github.com/wfunc/bombarena/session"
	"github.com/wfunc/bombarena/timer"
)

// Backends are the collaborators built outside the server.
type Backends struct {
	Factory room.GameFactory
	Results *services.ResultService
	// Metrics is the prometheus registry to register on; a fresh one is
	// used when nil.
	Metrics *prometheus.Registry
}

type GameServer struct {
	cfg      *config.Config
	upgrader websocket.Upgrader
	http     *http.Server

	sessionManager *session.Manager
	directory      *session.Directory
	broadcaster    *broadcast.Hub
	timers         *timer.TimerManager
	matches        *match.Manager
	registry       *room.Registry
	results        *services.ResultService
	metrics        *monitor.Metrics
	handlers       map[string]handlerFunc

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
}

func NewGameServer(cfg *config.Config, backends Backends) *GameServer {
	ctx, cancel := context.WithCancel(context.Background())
	s := &GameServer{
		cfg:            cfg,
		sessionManager: session.NewManager(),
		directory:      session.NewDirectory(),
		timers:         timer.NewTimerManager(0),
		results:        backends.Results,
		ctx:            ctx,
		cancel:         cancel,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	if s.results == nil {
		s.results = services.NewResultService()
	}
	s.broadcaster = broadcast.NewHub(s.sessionManager)

	rules := match.Rules{
		CountdownTicks: cfg.Match.CountdownTicks,
		TickInterval:   cfg.Match.TickInterval,
		BlockReward:    cfg.Match.BlockReward,
		KillReward:     cfg.Match.KillReward,
		Ranking:        match.RankingPolicy(cfg.Match.Ranking),
	}
	s.matches = match.NewManager(rules, s.timers, s.broadcaster, s)

	settings := room.Settings{
		MaxPlayers:  cfg.Room.MaxPlayers,
		OwnerPolicy: room.OwnerPolicy(cfg.Room.OwnerPolicy),
		DefaultConfig: models.GameConfig{
			Map:      cfg.Room.DefaultMap,
			Duration: cfg.Room.DefaultDuration,
			Items:    cfg.Room.DefaultItems,
		},
		StartTimeout: cfg.Factory.Timeout,
	}
	s.registry = room.NewRegistry(settings, backends.Factory, s.matches, s.broadcaster, s.directory)

	reg := backends.Metrics
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	s.metrics = monitor.NewMetrics("bombarena", reg, monitor.Gauges{
		Connections: s.sessionManager.Count,
		Rooms:       s.registry.Count,
		Matches:     s.matches.Count,
	})

	s.handlers = s.routes()
	s.http = &http.Server{Addr: cfg.Server.HTTPAddress, Handler: s.Handler()}
	return s
}

// Start serves HTTP and websocket traffic until Shutdown.
func (s *GameServer) Start() error {
	logger.Log.Infof("Game server listening on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections, closes live ones and retires every
// match without recording an outcome.
func (s *GameServer) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.cancel()
		err = s.http.Shutdown(ctx)
		for _, sess := range s.sessionManager.All() {
			sess.Close()
		}
		s.matches.Shutdown()
		s.timers.Stop()
	})
	return err
}

// MatchFinished receives every match outcome: it counts it, hands it to
// the result sinks and retires the lobby the match came from.
func (s *GameServer) MatchFinished(rec *models.MatchRecord) {
	s.metrics.MatchFinished(rec.Reason)
	s.results.MatchFinished(rec)
	if s.registry.RetireRoom(rec.RoomID) {
		logger.Log.Infow("room retired", "room", rec.RoomID, "match", rec.GameID)
	}
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	wsConn := network.NewWSConnection(conn)
	if s.cfg.Server.Heartbeat > 0 {
		wsConn.SetHeartbeat(s.cfg.Server.Heartbeat)
	}
	s.serve(wsConn)
}

// serve runs the read loop of one connection. Events from a connection are
// handled in arrival order.
func (s *GameServer) serve(conn network.Connection) {
	sess := session.NewSession(uuid.New().String(), conn)
	s.sessionManager.Add(sess)

	logger.Log.Infof("New connection from %s, session ID: %s", conn.RemoteAddr(), sess.GetID())

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", conn.RemoteAddr(), sess.GetID())
		s.sessionManager.Remove(sess.GetID())
		s.disconnect(sess.GetID())
		conn.Close()
	}()

	for {
		packet, err := conn.ReadPacket()
		if err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				logger.Log.Debugw("malformed frame dropped", "conn", sess.GetID(), "error", err)
				continue
			}
			return
		}
		select {
		case <-s.ctx.Done():
			return
		default:
		}
		s.handlePacket(sess, packet)
	}
}

// disconnect runs the leave paths for whatever the connection belonged to.
func (s *GameServer) disconnect(connID string) {
	membership, ok := s.directory.Unbind(connID)
	if !ok {
		return
	}
	if membership.RoomID != "" {
		s.registry.Disconnect(membership.RoomID, connID)
	}
	if membership.MatchID != "" {
		game, exists := s.matches.Get(membership.MatchID)
		if !exists {
			return
		}
		if p, left := game.Disconnect(connID); left {
			s.registry.ForgetPlayer(game.RoomID, p.Username)
		}
	}
}
