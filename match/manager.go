package match

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/wfunc/bombarena/factory"
	"github.com/wfunc/bombarena/logger"
	"github.com/wfunc/bombarena/models"
)

// ResultSink receives the record of every match that reached an outcome.
type ResultSink interface {
	MatchFinished(rec *models.MatchRecord)
}

// Manager owns every live match.
type Manager struct {
	matches     map[string]*Match
	mutex       sync.RWMutex
	rules       Rules
	scheduler   Scheduler
	broadcaster Broadcaster
	sink        ResultSink
}

// NewManager builds a manager. sink may be nil.
func NewManager(rules Rules, scheduler Scheduler, broadcaster Broadcaster, sink ResultSink) *Manager {
	return &Manager{
		matches:     make(map[string]*Match),
		rules:       rules,
		scheduler:   scheduler,
		broadcaster: broadcaster,
		sink:        sink,
	}
}

// CreateMatch turns a factory game into a running match. A missing or
// already used game id is replaced with a fresh one.
func (m *Manager) CreateMatch(roomID string, game *factory.Game) *Match {
	roster := make([]Player, 0, len(game.Players))
	for _, p := range game.Players {
		roster = append(roster, Player{ID: p.ID, Username: p.Username})
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	id := game.GameID
	if _, taken := m.matches[id]; id == "" || taken {
		id = uuid.NewString()
	}
	match := newMatch(id, roomID, game.Config, game.Board, roster,
		m.rules, m.scheduler, m.broadcaster, m.matchOver)
	m.matches[id] = match

	logger.Log.Infow("match created", "match", id, "room", roomID, "players", len(roster))
	return match
}

func (m *Manager) Get(matchID string) (*Match, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	match, exists := m.matches[matchID]
	return match, exists
}

func (m *Manager) Remove(matchID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.matches, matchID)
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.matches)
}

// IDs returns the ids of live matches in ascending order.
func (m *Manager) IDs() []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	ids := make([]string, 0, len(m.matches))
	for id := range m.matches {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Shutdown retires every live match without recording outcomes.
func (m *Manager) Shutdown() {
	m.mutex.Lock()
	matches := m.matches
	m.matches = make(map[string]*Match)
	m.mutex.Unlock()

	for _, match := range matches {
		match.Close()
	}
}

func (m *Manager) matchOver(match *Match, out Outcome) {
	m.Remove(match.ID)
	if m.sink == nil {
		return
	}
	rec, ok := Record(match)
	if !ok {
		return
	}
	m.sink.MatchFinished(rec)
}

// Record converts a finished match into its history entry.
func Record(match *Match) (*models.MatchRecord, bool) {
	out, players, ok := match.Result()
	if !ok {
		return nil, false
	}
	match.resultMu.Lock()
	finishedAt := match.finishedAt
	match.resultMu.Unlock()

	rec := &models.MatchRecord{
		GameID:     match.ID,
		RoomID:     match.RoomID,
		Reason:     out.Reason,
		Players:    make([]models.PlayerResult, 0, len(players)),
		FinishedAt: finishedAt,
	}
	won := make(map[string]bool, len(out.Winners))
	for _, id := range out.Winners {
		won[id] = true
	}
	for _, p := range players {
		if p.TimeAlive > rec.DurationSeconds {
			rec.DurationSeconds = p.TimeAlive
		}
		rec.Players = append(rec.Players, models.PlayerResult{
			PlayerID:  p.ID,
			Username:  p.Username,
			Rank:      p.Rank,
			Score:     p.Score,
			Kills:     p.Kills,
			TimeAlive: p.TimeAlive,
			Winner:    won[p.ID],
		})
	}
	return rec, true
}
