// Package match runs live matches. Each Match is an actor: every client
// event and timer tick is applied on the match's own goroutine, one at a
// time, so match state needs no locks.
package match

import (
	"sync"
	"time"

	"github.com/wfunc/bombarena/apperr"
	"github.com/wfunc/bombarena/board"
	"github.com/wfunc/bombarena/logger"
	"github.com/wfunc/bombarena/models"
	"github.com/wfunc/bombarena/network"
)

// Scheduler is the timer source; timer.TimerManager satisfies it.
type Scheduler interface {
	AddTimer(delay time.Duration, interval time.Duration, callback func()) int64
	RemoveTimer(timerId int64)
}

// Broadcaster delivers events to connections.
type Broadcaster interface {
	BroadcastToConns(connIDs []string, event string, data interface{})
}

// Rules are the tunables of a match.
type Rules struct {
	CountdownTicks int
	TickInterval   time.Duration
	BlockReward    int
	KillReward     int
	Ranking        RankingPolicy
}

func DefaultRules() Rules {
	return Rules{
		CountdownTicks: 3,
		TickInterval:   time.Second,
		BlockReward:    10,
		KillReward:     25,
		Ranking:        RankBySurvival,
	}
}

// Player is a participant. Dead only ever goes false -> true and TimeAlive
// is written once, at death or when the match ends.
type Player struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Score     int    `json:"score"`
	Kills     int    `json:"kills"`
	Dead      bool   `json:"dead"`
	TimeAlive int    `json:"timeAlive"`
	Rank      int    `json:"rank,omitempty"`
	ConnID    string `json:"-"`

	timeAliveSet bool
	bound        bool
}

type phase int

const (
	phaseWaiting phase = iota
	phaseCountdown
	phaseRunning
	phaseOver
)

type Match struct {
	ID     string
	RoomID string
	Config models.GameConfig

	board   *board.Board
	players []*Player
	byID    map[string]*Player

	phase          phase
	connected      int
	countdownLeft  int
	timeLeft       int
	totalSeconds   int
	countdownTimer int64
	clockTimer     int64

	rules       Rules
	scheduler   Scheduler
	broadcaster Broadcaster
	onOver      func(*Match, Outcome)

	actions   chan func()
	closeChan chan struct{}
	closeOnce sync.Once

	resultMu     sync.Mutex
	outcome      *Outcome
	finalPlayers []Player
	finishedAt   time.Time
}

// newMatch builds and starts a match. onOver runs on the match goroutine
// after the match has stopped accepting events.
func newMatch(id, roomID string, cfg models.GameConfig, layout board.Layout, roster []Player,
	rules Rules, scheduler Scheduler, broadcaster Broadcaster, onOver func(*Match, Outcome)) *Match {
	m := &Match{
		ID:           id,
		RoomID:       roomID,
		Config:       cfg,
		board:        board.New(layout),
		byID:         make(map[string]*Player, len(roster)),
		timeLeft:     cfg.Duration * 60,
		totalSeconds: cfg.Duration * 60,
		rules:        rules,
		scheduler:    scheduler,
		broadcaster:  broadcaster,
		onOver:       onOver,
		actions:      make(chan func()),
		closeChan:    make(chan struct{}),
	}
	for i := range roster {
		p := roster[i]
		p.Dead, p.Score, p.Kills, p.TimeAlive, p.Rank, p.ConnID = false, 0, 0, 0, 0, ""
		m.players = append(m.players, &p)
		m.byID[p.ID] = &p
	}
	go m.run()
	return m
}

func (m *Match) run() {
	for {
		select {
		case fn := <-m.actions:
			fn()
		case <-m.closeChan:
			return
		}
	}
}

// do runs fn on the match goroutine and waits for it. It reports false
// when the match is already over and fn did not run.
func (m *Match) do(fn func()) bool {
	ran := false
	done := make(chan struct{})
	action := func() {
		defer close(done)
		if m.closed() {
			return
		}
		ran = true
		fn()
	}

	select {
	case m.actions <- action:
	case <-m.closeChan:
		return false
	}
	<-done
	return ran
}

func (m *Match) closed() bool {
	select {
	case <-m.closeChan:
		return true
	default:
		return false
	}
}

func (m *Match) shutdown() {
	m.closeOnce.Do(func() { close(m.closeChan) })
}

// Close retires the match without an outcome, cancelling its timers.
func (m *Match) Close() {
	m.do(func() {
		m.phase = phaseOver
		m.stopTimers()
	})
	m.shutdown()
}

// Done is closed once the match stops accepting events.
func (m *Match) Done() <-chan struct{} {
	return m.closeChan
}

// Result returns the final outcome and player lines once the match is over.
func (m *Match) Result() (Outcome, []Player, bool) {
	m.resultMu.Lock()
	defer m.resultMu.Unlock()
	if m.outcome == nil {
		return Outcome{}, nil, false
	}
	return *m.outcome, append([]Player(nil), m.finalPlayers...), true
}

// ConnectToGame binds connID to the player named username. The countdown
// starts once every roster member has connected at least once.
func (m *Match) ConnectToGame(connID, username string) (Player, error) {
	var (
		bound Player
		err   error
	)
	ok := m.do(func() {
		p := m.byUsername(username)
		if p == nil {
			err = apperr.Newf(apperr.NotMember, "%s is not part of game %s", username, m.ID)
			return
		}
		p.ConnID = connID
		if !p.bound {
			p.bound = true
			m.connected++
		}
		bound = *p
		logger.Log.Infow("player connected to match", "match", m.ID, "player", p.ID, "connected", m.connected, "roster", len(m.players))

		if m.phase == phaseWaiting && m.connected == len(m.players) {
			m.startCountdown()
		}
	})
	if !ok {
		return Player{}, apperr.New(apperr.MatchOver, "game is over")
	}
	return bound, err
}

// Move places the player on the target cell if it is empty and relays the
// move to everyone but the sender. A blocked move is dropped silently.
func (m *Match) Move(connID string, req MoveRequest) error {
	return m.act(func() error {
		p, err := m.livePlayer(req.PlayerID)
		if err != nil || p == nil {
			return err
		}
		if !m.board.MoveTo(p.ID, board.Point{X: req.X, Y: req.Y}) {
			return nil
		}
		m.broadcastExcept(connID, network.EventPlayerMoved, req)
		return nil
	})
}

// PlaceBomb relays a bomb placement; fuses are timed by the clients.
func (m *Match) PlaceBomb(connID string, req BombRequest) error {
	return m.act(func() error {
		p, err := m.livePlayer(req.PlayerID)
		if err != nil || p == nil {
			return err
		}
		m.broadcastExcept(connID, network.EventBombPlaced, req)
		return nil
	})
}

// Explode applies a client-reported blast: every BLOCK tile becomes EMPTY
// and credits the placer once.
func (m *Match) Explode(connID string, req ExplodeRequest) error {
	return m.act(func() error {
		p, err := m.livePlayer(req.PlayerID)
		if err != nil || p == nil {
			return err
		}
		m.broadcastExcept(connID, network.EventBombExplodedClient, req)

		for _, tile := range req.Tiles {
			if m.board.Destroy(tile) {
				p.Score += m.rules.BlockReward
			}
		}
		m.broadcast(network.EventPlayers, m.snapshot())
		m.checkWin(m.aliveCount())
		return nil
	})
}

// Kill eliminates every listed victim in one step. Victims that are
// already dead are skipped, so repeated reports never double count.
func (m *Match) Kill(req KillRequest) error {
	return m.act(func() error {
		aliveBefore := m.aliveCount()
		killer := m.byID[req.KillerID]
		died := false

		for _, v := range req.victims() {
			victim := m.byID[v.VictimID]
			if victim == nil || victim.Dead {
				continue
			}
			if !m.board.VacateAt(board.Point{X: v.X, Y: v.Y}, victim.ID) {
				m.board.Vacate(victim.ID)
			}
			m.markDead(victim)
			died = true

			suicide := victim.ID == req.KillerID
			death := PlayerDied{VictimID: victim.ID, Victim: victim.Username, Suicide: suicide}
			if killer != nil {
				death.KillerID, death.Killer = killer.ID, killer.Username
				if !suicide {
					killer.Score += m.rules.KillReward
					killer.Kills++
				}
			}
			logger.Log.Infow("player eliminated", "match", m.ID, "victim", victim.ID, "killer", req.KillerID, "suicide", suicide)
			m.broadcast(network.EventPlayerDied, death)
		}

		if !died {
			return nil
		}
		m.broadcast(network.EventPlayers, m.snapshot())
		m.checkWin(aliveBefore)
		return nil
	})
}

// Leave removes a player who quit the match on purpose.
func (m *Match) Leave(req LeaveRequest) error {
	return m.act(func() error {
		p := m.byID[req.PlayerID]
		if p == nil {
			return apperr.Newf(apperr.NotMember, "player %s is not in game %s", req.PlayerID, m.ID)
		}
		m.depart(p)
		return nil
	})
}

// Disconnect handles a dropped connection. It returns the player the
// connection was bound to, if any.
func (m *Match) Disconnect(connID string) (Player, bool) {
	var (
		left  Player
		found bool
	)
	m.do(func() {
		for _, p := range m.players {
			if p.ConnID == connID {
				m.depart(p)
				left, found = *p, true
				return
			}
		}
	})
	return left, found
}

// Player returns the current line of player id, or its final line once
// the match is over.
func (m *Match) Player(id string) (Player, bool) {
	var (
		line  Player
		found bool
	)
	if m.do(func() {
		if p := m.byID[id]; p != nil {
			line, found = *p, true
		}
	}) {
		return line, found
	}
	_, players, _ := m.Result()
	for _, p := range players {
		if p.ID == id {
			return p, true
		}
	}
	return Player{}, false
}

// Snapshot returns the current players, board and clock.
func (m *Match) Snapshot() (State, error) {
	var st State
	ok := m.do(func() {
		st = State{
			GameID:   m.ID,
			Players:  m.snapshot(),
			Board:    board.Layout{Cells: m.board.Cells()},
			TimeLeft: m.timeLeft,
			Config:   m.Config,
		}
	})
	if !ok {
		return State{}, apperr.New(apperr.MatchOver, "game is over")
	}
	return st, nil
}

func (m *Match) act(fn func() error) error {
	var err error
	if !m.do(func() { err = fn() }) {
		return apperr.New(apperr.MatchOver, "game is over")
	}
	return err
}

// livePlayer returns nil, nil for a known but dead player.
func (m *Match) livePlayer(id string) (*Player, error) {
	p := m.byID[id]
	if p == nil {
		return nil, apperr.Newf(apperr.NotMember, "player %s is not in game %s", id, m.ID)
	}
	if p.Dead {
		return nil, nil
	}
	return p, nil
}

func (m *Match) byUsername(username string) *Player {
	for _, p := range m.players {
		if p.Username == username {
			return p
		}
	}
	return nil
}

func (m *Match) depart(p *Player) {
	aliveBefore := m.aliveCount()
	wasAlive := !p.Dead
	if wasAlive {
		m.board.Vacate(p.ID)
		m.markDead(p)
	}
	p.ConnID = ""
	m.broadcast(network.EventPlayers, m.snapshot())
	m.broadcast(network.EventPlayerLeft, PlayerLeft{PlayerID: p.ID, Username: p.Username})
	logger.Log.Infow("player left match", "match", m.ID, "player", p.ID)

	if wasAlive {
		m.checkWin(aliveBefore)
	}
}

func (m *Match) markDead(p *Player) {
	p.Dead = true
	m.setTimeAlive(p)
}

func (m *Match) setTimeAlive(p *Player) {
	if p.timeAliveSet {
		return
	}
	p.TimeAlive = m.elapsed()
	p.timeAliveSet = true
}

func (m *Match) elapsed() int {
	if m.phase != phaseRunning && m.phase != phaseOver {
		return 0
	}
	return m.totalSeconds - m.timeLeft
}

func (m *Match) aliveCount() int {
	n := 0
	for _, p := range m.players {
		if !p.Dead {
			n++
		}
	}
	return n
}

func (m *Match) snapshot() []Player {
	out := make([]Player, 0, len(m.players))
	for _, p := range m.players {
		out = append(out, *p)
	}
	return out
}

func (m *Match) recipients(except string) []string {
	ids := make([]string, 0, len(m.players))
	for _, p := range m.players {
		if p.ConnID != "" && p.ConnID != except {
			ids = append(ids, p.ConnID)
		}
	}
	return ids
}

func (m *Match) broadcast(event string, data interface{}) {
	m.broadcaster.BroadcastToConns(m.recipients(""), event, data)
}

func (m *Match) broadcastExcept(connID, event string, data interface{}) {
	m.broadcaster.BroadcastToConns(m.recipients(connID), event, data)
}
