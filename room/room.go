// room/room.go
package room

import (
	"sort"
	"sync"
	"time"

	"github.com/wfunc/bombarena/models"
	"github.com/wfunc/bombarena/state"
)

// Lobby phases.
const (
	PhaseOpen     state.Phase = "open"
	PhaseFull     state.Phase = "full"
	PhaseStarting state.Phase = "starting"
	PhaseClosed   state.Phase = "closed"
)

// OwnerPolicy decides what happens when the owner departs.
type OwnerPolicy string

const (
	// PromoteOwner hands ownership to the longest-present member.
	PromoteOwner OwnerPolicy = "promote"
	// CloseOnOwnerLeave closes the room for everyone.
	CloseOnOwnerLeave OwnerPolicy = "close"
)

// Member is one connection seated in a room.
type Member struct {
	Info      models.PlayerLobbyInfo
	Ready     bool
	Character string
	JoinedAt  time.Time
	seq       uint64
}

// Room is a pre-game lobby. All fields are guarded by mutex; the registry
// takes its own lock before a room's, never the other way round. started and
// destroyed are written only with both locks held, so the registry may read
// them under its own lock alone.
type Room struct {
	ID        string
	CreatedAt time.Time

	members    map[string]*Member // connID -> member
	owner      string
	config     models.GameConfig
	started    bool
	destroyed  bool
	departed   map[string]bool // conns that left while Starting
	maxPlayers int
	machine    *state.Machine
	seq        uint64
	mutex      sync.Mutex
}

func newRoom(id string, maxPlayers int, config models.GameConfig) *Room {
	r := &Room{
		ID:         id,
		CreatedAt:  time.Now(),
		members:    make(map[string]*Member),
		config:     config,
		maxPlayers: maxPlayers,
		machine:    state.NewMachine(PhaseOpen),
	}

	full := func() bool { return len(r.members) >= r.maxPlayers }
	notFull := func() bool { return len(r.members) < r.maxPlayers }

	r.machine.AddTransition(PhaseOpen, PhaseFull, full)
	r.machine.AddTransition(PhaseFull, PhaseOpen, notFull)
	r.machine.AddTransition(PhaseOpen, PhaseStarting, nil)
	r.machine.AddTransition(PhaseFull, PhaseStarting, nil)
	r.machine.AddTransition(PhaseStarting, PhaseOpen, notFull)
	r.machine.AddTransition(PhaseStarting, PhaseFull, full)
	r.machine.AddTransition(PhaseStarting, PhaseClosed, nil)
	r.machine.AddTransition(PhaseOpen, PhaseClosed, nil)
	r.machine.AddTransition(PhaseFull, PhaseClosed, nil)
	return r
}

// LobbyView is the updateLobby payload. Maps are keyed by connection id.
type LobbyView struct {
	Room        string                            `json:"room"`
	Players     map[string]models.PlayerLobbyInfo `json:"players"`
	Ready       map[string]bool                   `json:"ready"`
	Characters  map[string]string                 `json:"characters"`
	Owner       string                            `json:"owner"`
	GameStarted bool                              `json:"gameStarted"`
	Config      models.GameConfig                 `json:"config"`
	Phase       state.Phase                       `json:"phase"`
}

func (r *Room) View() LobbyView {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.view()
}

func (r *Room) Phase() state.Phase {
	return r.machine.Current()
}

func (r *Room) Started() bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.started
}

func (r *Room) Owner() string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.owner
}

func (r *Room) Config() models.GameConfig {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.config
}

func (r *Room) MemberCount() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.members)
}

// Member returns a copy of the member seated on connID.
func (r *Room) Member(connID string) (Member, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	m, ok := r.members[connID]
	if !ok {
		return Member{}, false
	}
	return *m, true
}

// --- helpers below expect r.mutex held ---

func (r *Room) view() LobbyView {
	v := LobbyView{
		Room:        r.ID,
		Players:     make(map[string]models.PlayerLobbyInfo, len(r.members)),
		Ready:       make(map[string]bool, len(r.members)),
		Characters:  make(map[string]string, len(r.members)),
		Owner:       r.owner,
		GameStarted: r.started,
		Config:      r.config,
		Phase:       r.machine.Current(),
	}
	for connID, m := range r.members {
		v.Players[connID] = m.Info
		v.Ready[connID] = m.Ready
		if m.Character != "" {
			v.Characters[connID] = m.Character
		}
	}
	return v
}

func (r *Room) add(connID, username string) *Member {
	r.seq++
	m := &Member{
		Info: models.PlayerLobbyInfo{
			ID:           connID,
			Username:     username,
			SpecialItems: []string{},
		},
		JoinedAt: time.Now(),
		seq:      r.seq,
	}
	r.members[connID] = m
	if r.owner == "" {
		r.owner = connID
	}
	return m
}

// ordered returns members by join order.
func (r *Room) ordered() []*Member {
	out := make([]*Member, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

func (r *Room) connIDs() []string {
	ids := make([]string, 0, len(r.members))
	for _, m := range r.ordered() {
		ids = append(ids, m.Info.ID)
	}
	return ids
}

func (r *Room) readyCount() int {
	n := 0
	for _, m := range r.members {
		if m.Ready {
			n++
		}
	}
	return n
}

// settle moves between Open and Full to match the head count. It leaves
// Starting and Closed alone.
func (r *Room) settle() {
	switch r.machine.Current() {
	case PhaseOpen, PhaseFull:
		r.machine.ChangeState(r.capacityPhase())
	}
}

func (r *Room) capacityPhase() state.Phase {
	if len(r.members) >= r.maxPlayers {
		return PhaseFull
	}
	return PhaseOpen
}

// listed reports whether the room shows up in the room list.
func (r *Room) listed() bool {
	return !r.started && !r.destroyed
}
