package room

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wfunc/bombarena/apperr"
	"github.com/wfunc/bombarena/board"
	"github.com/wfunc/bombarena/factory"
	"github.com/wfunc/bombarena/logger"
	"github.com/wfunc/bombarena/models"
	"github.com/wfunc/bombarena/network"
	"github.com/wfunc/bombarena/session"
)

// OptionsRedirect is where members left out of a starting match are sent.
const OptionsRedirect = "/options"

type Settings struct {
	MaxPlayers    int
	OwnerPolicy   OwnerPolicy
	DefaultConfig models.GameConfig
	StartTimeout  time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		MaxPlayers:    4,
		OwnerPolicy:   PromoteOwner,
		DefaultConfig: models.GameConfig{Map: "default", Duration: 5, Items: 3},
		StartTimeout:  10 * time.Second,
	}
}

// JoinResult is returned to a member that just took a seat.
type JoinResult struct {
	PlayerID string            `json:"playerId"`
	IsOwner  bool              `json:"isOwner"`
	Config   models.GameConfig `json:"config"`
}

// GameStart is sent to every member that made it into the match.
type GameStart struct {
	GameID  string                 `json:"gameId"`
	Players []factory.PlayerRecord `json:"players"`
	Config  models.GameConfig      `json:"config"`
	Board   interface{}            `json:"board"`
}

type Redirect struct {
	To string `json:"to"`
}

type RoomClosed struct {
	Room    string `json:"room"`
	Message string `json:"message"`
}

// Registry owns every lobby and the global username reservations.
type Registry struct {
	rooms     map[string]*Room
	usernames map[string]string // username -> room id
	mutex     sync.Mutex

	settings    Settings
	factory     GameFactory
	matches     MatchCreator
	broadcaster Broadcaster
	directory   *session.Directory
}

func NewRegistry(settings Settings, gameFactory GameFactory, matches MatchCreator,
	broadcaster Broadcaster, directory *session.Directory) *Registry {
	if settings.MaxPlayers <= 0 {
		settings.MaxPlayers = DefaultSettings().MaxPlayers
	}
	if settings.OwnerPolicy == "" {
		settings.OwnerPolicy = PromoteOwner
	}
	return &Registry{
		rooms:       make(map[string]*Room),
		usernames:   make(map[string]string),
		settings:    settings,
		factory:     gameFactory,
		matches:     matches,
		broadcaster: broadcaster,
		directory:   directory,
	}
}

// CreateRoom registers an empty room with default config and no owner.
func (g *Registry) CreateRoom(name, username string) (*Room, error) {
	if name == "" {
		return nil, apperr.New(apperr.InvalidRequest, "room name is required")
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	if _, exists := g.rooms[name]; exists {
		return nil, apperr.Newf(apperr.AlreadyExists, "room %s already exists", name)
	}
	if username != "" {
		if _, taken := g.usernames[username]; taken {
			return nil, apperr.Newf(apperr.UsernameTaken, "%s is already playing in another room", username)
		}
	}

	r := g.createLocked(name)
	g.broadcastRoomsLocked()
	return r, nil
}

// FindOrCreateRoom returns the named room, creating it if needed.
func (g *Registry) FindOrCreateRoom(name string) (*Room, error) {
	if name == "" {
		return nil, apperr.New(apperr.InvalidRequest, "room name is required")
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	if r, exists := g.rooms[name]; exists {
		return r, nil
	}
	r := g.createLocked(name)
	g.broadcastRoomsLocked()
	return r, nil
}

func (g *Registry) Get(name string) (*Room, bool) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	r, exists := g.rooms[name]
	return r, exists
}

// DestroyRoom drops a room, releasing its members' usernames and directory
// bindings.
func (g *Registry) DestroyRoom(name string) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	r, exists := g.rooms[name]
	if !exists {
		return apperr.Newf(apperr.NotFound, "room %s not found", name)
	}
	r.mutex.Lock()
	g.destroyLocked(r)
	r.mutex.Unlock()
	g.broadcastRoomsLocked()
	return nil
}

// RoomIDs lists rooms that have not started, in name order.
func (g *Registry) RoomIDs() []string {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return g.roomIDsLocked()
}

func (g *Registry) Count() int {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return len(g.rooms)
}

// Join seats connID in an existing room.
func (g *Registry) Join(name, connID, username string) (JoinResult, error) {
	return g.join(name, connID, username, false)
}

// JoinOrCreate seats connID, creating the room on first use.
func (g *Registry) JoinOrCreate(name, connID, username string) (JoinResult, error) {
	return g.join(name, connID, username, true)
}

func (g *Registry) join(name, connID, username string, create bool) (JoinResult, error) {
	if name == "" || username == "" {
		return JoinResult{}, apperr.New(apperr.InvalidRequest, "room and username are required")
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	if err := g.checkUnseatedLocked(connID, name); err != nil {
		return JoinResult{}, err
	}

	r, exists := g.rooms[name]
	if !exists && !create {
		return JoinResult{}, apperr.Newf(apperr.NotFound, "room %s not found", name)
	}
	if !exists {
		if _, taken := g.usernames[username]; taken {
			return JoinResult{}, apperr.Newf(apperr.UsernameTaken, "%s is already playing in another room", username)
		}
		r = g.createLocked(name)
	}
	return g.seatLocked(r, connID, username)
}

// CreateAndJoin registers a new room and seats connID as its owner in one
// step, so nobody else can take the room first.
func (g *Registry) CreateAndJoin(name, connID, username string) (JoinResult, error) {
	if name == "" || username == "" {
		return JoinResult{}, apperr.New(apperr.InvalidRequest, "room and username are required")
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	if err := g.checkUnseatedLocked(connID, name); err != nil {
		return JoinResult{}, err
	}
	if _, exists := g.rooms[name]; exists {
		return JoinResult{}, apperr.Newf(apperr.AlreadyExists, "room %s already exists", name)
	}
	if _, taken := g.usernames[username]; taken {
		return JoinResult{}, apperr.Newf(apperr.UsernameTaken, "%s is already playing in another room", username)
	}
	return g.seatLocked(g.createLocked(name), connID, username)
}

// SetReady records a member's readiness.
func (g *Registry) SetReady(name, connID string, ready bool) error {
	return g.mutate(name, connID, func(r *Room, m *Member) error {
		m.Ready = ready
		return nil
	})
}

// SetConfig applies the owner's partial config change.
func (g *Registry) SetConfig(name, connID string, patch models.ConfigPatch) (models.GameConfig, error) {
	var cfg models.GameConfig
	err := g.mutate(name, connID, func(r *Room, m *Member) error {
		if r.owner != connID {
			return apperr.New(apperr.NotOwner, "only the owner can change the configuration")
		}
		next := patch.Apply(r.config)
		if next.Duration <= 0 || next.Items < 0 || next.Map == "" {
			return apperr.New(apperr.InvalidRequest, "invalid configuration")
		}
		r.config = next
		cfg = next
		return nil
	})
	return cfg, err
}

// SelectCharacter records a member's character choice.
func (g *Registry) SelectCharacter(name, connID, character string) error {
	return g.mutate(name, connID, func(r *Room, m *Member) error {
		m.Character = character
		return nil
	})
}

// mutate runs fn against a member of a room still in the lobby and
// broadcasts the new lobby view if fn succeeds.
func (g *Registry) mutate(name, connID string, fn func(*Room, *Member) error) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	r, exists := g.rooms[name]
	if !exists {
		return apperr.Newf(apperr.NotFound, "room %s not found", name)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.machine.Current() == PhaseStarting {
		return apperr.New(apperr.StartInProgress, "the game is starting")
	}
	if r.started {
		return apperr.New(apperr.GameAlreadyStarted, "the game has already started")
	}
	m, ok := r.members[connID]
	if !ok {
		return apperr.Newf(apperr.NotMember, "not a member of room %s", name)
	}
	if err := fn(r, m); err != nil {
		return err
	}
	g.broadcaster.BroadcastToConns(r.connIDs(), network.EventUpdateLobby, r.view())
	return nil
}

// StartMatch asks the factory for a game and launches it. The room sits in
// Starting for the duration of the factory call; joins and lobby changes
// are refused meanwhile. A factory failure puts the room back the way it
// was and is reported to the caller only.
func (g *Registry) StartMatch(ctx context.Context, name, connID string) (string, error) {
	r, req, err := g.beginStart(name, connID)
	if err != nil {
		return "", err
	}
	logger.Log.Infow("match start requested", "room", name, "players", len(req.Players))

	if g.settings.StartTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.settings.StartTimeout)
		defer cancel()
	}
	game, factoryErr := g.factory.CreateGame(ctx, req)

	g.mutex.Lock()
	defer g.mutex.Unlock()
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.destroyed {
		return "", apperr.Newf(apperr.NotFound, "room %s was closed while starting", name)
	}
	departed := r.departed
	r.departed = nil
	if factoryErr != nil {
		r.machine.ChangeState(r.capacityPhase())
		logger.Log.Warnw("match factory failed", "room", name, "error", factoryErr)
		return "", apperr.Wrap(apperr.FactoryError, "could not start the game", factoryErr)
	}

	game = withoutPlayers(game, departed)
	if len(game.Players) < 2 {
		r.machine.ChangeState(r.capacityPhase())
		g.broadcaster.BroadcastToConns(r.connIDs(), network.EventUpdateLobby, r.view())
		g.broadcastRoomsLocked()
		logger.Log.Infow("match start abandoned", "room", name, "departed", len(departed))
		return "", apperr.New(apperr.InsufficientReady, "too few players left while the game was starting")
	}

	m := g.matches.CreateMatch(r.ID, game)
	r.started = true
	r.machine.ChangeState(PhaseClosed)

	inRoster := make(map[string]bool, len(game.Players))
	for _, p := range game.Players {
		inRoster[p.ID] = true
	}
	start := GameStart{GameID: m.ID, Players: game.Players, Config: game.Config, Board: game.Board}
	for _, member := range r.ordered() {
		connID := member.Info.ID
		if member.Ready && inRoster[connID] {
			g.broadcaster.SendTo(connID, network.EventGameStart, start)
		} else {
			g.broadcaster.SendTo(connID, network.EventRedirect, Redirect{To: OptionsRedirect})
		}
	}
	logger.Log.Infow("match started", "room", name, "match", m.ID, "players", len(game.Players))

	g.broadcastRoomsLocked()
	return m.ID, nil
}

// withoutPlayers drops the given players from the roster and clears the
// cells they occupy.
func withoutPlayers(game *factory.Game, gone map[string]bool) *factory.Game {
	if len(gone) == 0 {
		return game
	}
	out := *game
	out.Players = make([]factory.PlayerRecord, 0, len(game.Players))
	for _, p := range game.Players {
		if !gone[p.ID] {
			out.Players = append(out.Players, p)
		}
	}
	out.Board.Cells = make([]board.Cell, len(game.Board.Cells))
	for i, c := range game.Board.Cells {
		if c.Type == board.Player && gone[c.OccupantID] {
			c.Type = board.Empty
			c.OccupantID = ""
		}
		out.Board.Cells[i] = c
	}
	return &out
}

func (g *Registry) beginStart(name, connID string) (*Room, factory.Request, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	r, exists := g.rooms[name]
	if !exists {
		return nil, factory.Request{}, apperr.Newf(apperr.NotFound, "room %s not found", name)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	switch {
	case r.machine.Current() == PhaseStarting:
		return nil, factory.Request{}, apperr.New(apperr.StartInProgress, "the game is already starting")
	case r.started:
		return nil, factory.Request{}, apperr.New(apperr.GameAlreadyStarted, "the game has already started")
	case r.owner != connID:
		return nil, factory.Request{}, apperr.New(apperr.NotOwner, "only the owner can start the game")
	case !r.members[connID].Ready:
		return nil, factory.Request{}, apperr.New(apperr.OwnerNotReady, "the owner must be ready too")
	case r.readyCount() < 2:
		return nil, factory.Request{}, apperr.New(apperr.InsufficientReady, "at least 2 ready players are needed")
	}

	if err := r.machine.ChangeState(PhaseStarting); err != nil {
		return nil, factory.Request{}, apperr.Wrap(apperr.Internal, "cannot start", err)
	}

	req := factory.Request{RoomID: r.ID, Config: r.config}
	for _, m := range r.ordered() {
		if m.Ready {
			req.Players = append(req.Players, m.Info)
		}
	}
	return r, req, nil
}

// Leave removes connID from the room.
func (g *Registry) Leave(name, connID string) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	r, exists := g.rooms[name]
	if !exists {
		return apperr.Newf(apperr.NotFound, "room %s not found", name)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, ok := r.members[connID]; !ok {
		return apperr.Newf(apperr.NotMember, "not a member of room %s", name)
	}
	g.removeLocked(r, connID)
	return nil
}

// Disconnect is Leave for a dropped connection; unknown rooms or members
// are ignored.
func (g *Registry) Disconnect(name, connID string) {
	if err := g.Leave(name, connID); err != nil {
		logger.Log.Debugw("disconnect cleanup skipped", "room", name, "conn", connID, "error", err)
	}
}

// ForgetPlayer removes whichever member of the room holds username. Match
// connections can differ from lobby ones, so a dropped match connection
// is matched by name.
func (g *Registry) ForgetPlayer(name, username string) bool {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	r, exists := g.rooms[name]
	if !exists {
		return false
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	for connID, m := range r.members {
		if m.Info.Username == username {
			g.removeLocked(r, connID)
			return true
		}
	}
	return false
}

// RetireRoom drops a started room once its match is over, releasing the
// usernames its members still hold. Unstarted rooms are left alone.
func (g *Registry) RetireRoom(name string) bool {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	r, exists := g.rooms[name]
	if !exists {
		return false
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if !r.started {
		return false
	}
	g.destroyLocked(r)
	return true
}

// --- helpers below expect g.mutex held (and r.mutex where they take a room) ---

func (g *Registry) checkUnseatedLocked(connID, name string) error {
	if current, ok := g.directory.Lookup(connID); ok && current.RoomID != "" {
		if current.RoomID == name {
			return apperr.Newf(apperr.AlreadyExists, "already in room %s", name)
		}
		return apperr.Newf(apperr.InvalidRequest, "leave room %s first", current.RoomID)
	}
	return nil
}

func (g *Registry) seatLocked(r *Room, connID, username string) (JoinResult, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	switch {
	case r.machine.Current() == PhaseStarting:
		return JoinResult{}, apperr.New(apperr.StartInProgress, "the game is starting")
	case r.started:
		return JoinResult{}, apperr.New(apperr.GameAlreadyStarted, "the game has already started")
	case len(r.members) >= r.maxPlayers:
		return JoinResult{}, apperr.New(apperr.RoomFull, "the room is full")
	}
	if _, taken := g.usernames[username]; taken {
		return JoinResult{}, apperr.Newf(apperr.UsernameTaken, "%s is already playing in another room", username)
	}

	r.add(connID, username)
	r.settle()
	g.usernames[username] = r.ID
	g.directory.BindRoom(connID, r.ID)
	logger.Log.Infow("player joined room", "room", r.ID, "conn", connID, "username", username, "players", len(r.members))

	g.broadcaster.BroadcastToConns(r.connIDs(), network.EventUpdateLobby, r.view())
	g.broadcastRoomsLocked()

	return JoinResult{PlayerID: connID, IsOwner: r.owner == connID, Config: r.config}, nil
}

func (g *Registry) createLocked(name string) *Room {
	r := newRoom(name, g.settings.MaxPlayers, g.settings.DefaultConfig)
	g.rooms[name] = r
	logger.Log.Infow("room created", "room", name)
	return r
}

func (g *Registry) removeLocked(r *Room, connID string) {
	m := r.members[connID]
	delete(r.members, connID)
	if g.usernames[m.Info.Username] == r.ID {
		delete(g.usernames, m.Info.Username)
	}
	g.directory.UnbindRoom(connID, r.ID)
	if r.machine.Current() == PhaseStarting {
		if r.departed == nil {
			r.departed = make(map[string]bool)
		}
		r.departed[connID] = true
	}
	logger.Log.Infow("player left room", "room", r.ID, "conn", connID, "players", len(r.members))

	if len(r.members) == 0 {
		g.destroyLocked(r)
		g.broadcastRoomsLocked()
		return
	}

	if r.owner == connID {
		if g.settings.OwnerPolicy == CloseOnOwnerLeave && !r.started {
			g.broadcaster.BroadcastToConns(r.connIDs(), network.EventRoomClosed, RoomClosed{
				Room:    r.ID,
				Message: "the owner left, room closed",
			})
			g.destroyLocked(r)
			g.broadcastRoomsLocked()
			return
		}
		r.owner = r.ordered()[0].Info.ID
		logger.Log.Infow("room owner promoted", "room", r.ID, "owner", r.owner)
	}

	r.settle()
	g.broadcaster.BroadcastToConns(r.connIDs(), network.EventUpdateLobby, r.view())
	if r.listed() {
		g.broadcastRoomsLocked()
	}
}

func (g *Registry) destroyLocked(r *Room) {
	for connID, m := range r.members {
		if g.usernames[m.Info.Username] == r.ID {
			delete(g.usernames, m.Info.Username)
		}
		g.directory.UnbindRoom(connID, r.ID)
	}
	r.members = make(map[string]*Member)
	r.owner = ""
	r.destroyed = true
	r.machine.ChangeState(PhaseClosed)
	if g.rooms[r.ID] == r {
		delete(g.rooms, r.ID)
	}
	logger.Log.Infow("room destroyed", "room", r.ID)
}

func (g *Registry) roomIDsLocked() []string {
	ids := make([]string, 0, len(g.rooms))
	for id, r := range g.rooms {
		if r.listed() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (g *Registry) broadcastRoomsLocked() {
	g.broadcaster.BroadcastToAll(network.EventRoomsList, g.roomIDsLocked())
}
