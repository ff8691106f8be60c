package room

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/bombarena/apperr"
	"github.com/wfunc/bombarena/board"
	"github.com/wfunc/bombarena/factory"
	"github.com/wfunc/bombarena/match"
	"github.com/wfunc/bombarena/models"
	"github.com/wfunc/bombarena/network"
	"github.com/wfunc/bombarena/session"
)

type delivery struct {
	to    string // conn id, or "*" for everyone
	event string
	data  interface{}
}

// MockBroadcaster records every delivery in order.
type MockBroadcaster struct {
	mu  sync.Mutex
	out []delivery
}

func (b *MockBroadcaster) SendTo(connID string, event string, data interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.out = append(b.out, delivery{to: connID, event: event, data: data})
	return nil
}

func (b *MockBroadcaster) BroadcastToConns(connIDs []string, event string, data interface{}) {
	for _, id := range connIDs {
		b.SendTo(id, event, data)
	}
}

func (b *MockBroadcaster) BroadcastToAll(event string, data interface{}) {
	b.SendTo("*", event, data)
}

func (b *MockBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.out)
}

func (b *MockBroadcaster) to(connID, event string) []delivery {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []delivery
	for _, d := range b.out {
		if d.to == connID && d.event == event {
			out = append(out, d)
		}
	}
	return out
}

func (b *MockBroadcaster) lastRoomsList() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.out) - 1; i >= 0; i-- {
		if b.out[i].event == network.EventRoomsList {
			return b.out[i].data.([]string)
		}
	}
	return nil
}

// MockFactory answers with a game built from the request roster, or with
// err. When gate is set each call blocks until gate is closed.
type MockFactory struct {
	mu       sync.Mutex
	err      error
	gate     chan struct{}
	called   chan struct{}
	requests []factory.Request
}

func (f *MockFactory) CreateGame(ctx context.Context, req factory.Request) (*factory.Game, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	gate, called, err := f.gate, f.called, f.err
	f.mu.Unlock()

	if called != nil {
		called <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	game := &factory.Game{GameID: "game-" + req.RoomID, Config: req.Config}
	for i, p := range req.Players {
		game.Players = append(game.Players, factory.PlayerRecord{ID: p.ID, Username: p.Username})
		game.Board.Cells = append(game.Board.Cells, board.Cell{X: i, Y: 0, Type: board.Player, OccupantID: p.ID})
	}
	return game, nil
}

type nopScheduler struct{}

func (nopScheduler) AddTimer(delay, interval time.Duration, callback func()) int64 { return 1 }
func (nopScheduler) RemoveTimer(int64)                                             {}

type nopMatchBroadcaster struct{}

func (nopMatchBroadcaster) BroadcastToConns([]string, string, interface{}) {}

type fixture struct {
	registry  *Registry
	bc        *MockBroadcaster
	factory   *MockFactory
	matches   *match.Manager
	directory *session.Directory
}

func newFixture(t *testing.T, policy OwnerPolicy) *fixture {
	t.Helper()
	f := &fixture{
		bc:        &MockBroadcaster{},
		factory:   &MockFactory{},
		matches:   match.NewManager(match.DefaultRules(), nopScheduler{}, nopMatchBroadcaster{}, nil),
		directory: session.NewDirectory(),
	}
	settings := DefaultSettings()
	settings.OwnerPolicy = policy
	f.registry = NewRegistry(settings, f.factory, f.matches, f.bc, f.directory)
	t.Cleanup(f.matches.Shutdown)
	return f
}

// seat joins n players c1..cn (usernames u1..un) to room.
func (f *fixture) seat(t *testing.T, room string, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		_, err := f.registry.JoinOrCreate(room, fmt.Sprintf("c%d", i), fmt.Sprintf("u%d", i))
		require.NoError(t, err)
	}
}

func TestCreateRoom(t *testing.T) {
	f := newFixture(t, PromoteOwner)

	r, err := f.registry.CreateRoom("arena", "ana")
	require.NoError(t, err)
	assert.Empty(t, r.Owner())
	assert.Equal(t, DefaultSettings().DefaultConfig, r.Config())
	assert.Equal(t, []string{"arena"}, f.bc.lastRoomsList())

	_, err = f.registry.CreateRoom("arena", "bo")
	assert.True(t, apperr.Is(err, apperr.AlreadyExists))

	found, err := f.registry.FindOrCreateRoom("arena")
	require.NoError(t, err)
	assert.Same(t, r, found)
}

func TestCreateRoom_UsernameTaken(t *testing.T) {
	f := newFixture(t, PromoteOwner)
	f.seat(t, "r1", 1)

	_, err := f.registry.CreateRoom("r2", "u1")
	assert.True(t, apperr.Is(err, apperr.UsernameTaken))
}

func TestJoin_FirstMemberOwnsAndCapacityHolds(t *testing.T) {
	f := newFixture(t, PromoteOwner)

	res, err := f.registry.JoinOrCreate("r1", "c1", "u1")
	require.NoError(t, err)
	assert.True(t, res.IsOwner)
	assert.Equal(t, "c1", res.PlayerID)

	for i := 2; i <= 4; i++ {
		res, err := f.registry.Join("r1", fmt.Sprintf("c%d", i), fmt.Sprintf("u%d", i))
		require.NoError(t, err)
		assert.False(t, res.IsOwner)
	}

	r, _ := f.registry.Get("r1")
	assert.Equal(t, PhaseFull, r.Phase())

	_, err = f.registry.Join("r1", "c5", "u5")
	assert.True(t, apperr.Is(err, apperr.RoomFull))
	assert.Equal(t, 4, r.MemberCount())

	lobby := f.bc.to("c1", network.EventUpdateLobby)
	require.NotEmpty(t, lobby)
	view := lobby[len(lobby)-1].data.(LobbyView)
	assert.Len(t, view.Players, 4)
	assert.Equal(t, "c1", view.Owner)
}

func TestJoin_UnknownRoom(t *testing.T) {
	f := newFixture(t, PromoteOwner)

	_, err := f.registry.Join("nowhere", "c1", "u1")
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func TestJoin_UsernameUniqueAcrossRooms(t *testing.T) {
	f := newFixture(t, PromoteOwner)
	f.seat(t, "r1", 2)

	_, err := f.registry.JoinOrCreate("r2", "c9", "u1")
	assert.True(t, apperr.Is(err, apperr.UsernameTaken))
	_, exists := f.registry.Get("r2")
	assert.False(t, exists, "a failed join must not leave an empty room behind")

	require.NoError(t, f.registry.Leave("r1", "c1"))
	_, err = f.registry.JoinOrCreate("r2", "c9", "u1")
	assert.NoError(t, err, "a username is free again once its holder left")
}

func TestStartMatch_NonOwner(t *testing.T) {
	f := newFixture(t, PromoteOwner)
	f.seat(t, "r1", 2)
	require.NoError(t, f.registry.SetReady("r1", "c1", true))
	require.NoError(t, f.registry.SetReady("r1", "c2", true))

	_, err := f.registry.StartMatch(context.Background(), "r1", "c2")

	assert.True(t, apperr.Is(err, apperr.NotOwner))
	r, _ := f.registry.Get("r1")
	assert.False(t, r.Started())
	assert.Empty(t, f.factory.requests)
}

func TestStartMatch_ReadinessRules(t *testing.T) {
	f := newFixture(t, PromoteOwner)
	f.seat(t, "r1", 3)

	require.NoError(t, f.registry.SetReady("r1", "c2", true))
	require.NoError(t, f.registry.SetReady("r1", "c3", true))
	_, err := f.registry.StartMatch(context.Background(), "r1", "c1")
	assert.True(t, apperr.Is(err, apperr.OwnerNotReady))

	require.NoError(t, f.registry.SetReady("r1", "c2", false))
	require.NoError(t, f.registry.SetReady("r1", "c3", false))
	require.NoError(t, f.registry.SetReady("r1", "c1", true))
	_, err = f.registry.StartMatch(context.Background(), "r1", "c1")
	assert.True(t, apperr.Is(err, apperr.InsufficientReady))

	r, _ := f.registry.Get("r1")
	assert.Equal(t, PhaseOpen, r.Phase())
}

func TestStartMatch_ThreeReadyOneRedirected(t *testing.T) {
	f := newFixture(t, PromoteOwner)
	f.seat(t, "r1", 4)

	require.NoError(t, f.registry.SetReady("r1", "c1", true))
	require.NoError(t, f.registry.SetReady("r1", "c2", true))
	require.NoError(t, f.registry.SetReady("r1", "c3", true))

	gameID, err := f.registry.StartMatch(context.Background(), "r1", "c1")
	require.NoError(t, err)
	assert.Equal(t, "game-r1", gameID)

	require.Len(t, f.factory.requests, 1)
	assert.Len(t, f.factory.requests[0].Players, 3)

	for _, c := range []string{"c1", "c2", "c3"} {
		starts := f.bc.to(c, network.EventGameStart)
		require.Len(t, starts, 1, c)
		assert.Len(t, starts[0].data.(GameStart).Players, 3)
		assert.Empty(t, f.bc.to(c, network.EventRedirect))
	}
	assert.Empty(t, f.bc.to("c4", network.EventGameStart))
	redirect := f.bc.to("c4", network.EventRedirect)
	require.Len(t, redirect, 1)
	assert.Equal(t, OptionsRedirect, redirect[0].data.(Redirect).To)

	m, ok := f.matches.Get(gameID)
	require.True(t, ok)
	st, err := m.Snapshot()
	require.NoError(t, err)
	assert.Len(t, st.Players, 3)

	r, _ := f.registry.Get("r1")
	assert.True(t, r.Started())
	assert.Equal(t, PhaseClosed, r.Phase())
	assert.NotContains(t, f.bc.lastRoomsList(), "r1")
}

func TestStartMatch_InsufficientThenSucceeds(t *testing.T) {
	f := newFixture(t, PromoteOwner)
	f.seat(t, "r1", 4)
	require.NoError(t, f.registry.SetReady("r1", "c1", true))

	_, err := f.registry.StartMatch(context.Background(), "r1", "c1")
	assert.True(t, apperr.Is(err, apperr.InsufficientReady))

	require.NoError(t, f.registry.SetReady("r1", "c2", true))
	require.NoError(t, f.registry.SetReady("r1", "c3", true))
	_, err = f.registry.StartMatch(context.Background(), "r1", "c1")
	assert.NoError(t, err)
}

func TestJoin_AfterStartFails(t *testing.T) {
	f := newFixture(t, PromoteOwner)
	f.seat(t, "r1", 2)
	require.NoError(t, f.registry.SetReady("r1", "c1", true))
	require.NoError(t, f.registry.SetReady("r1", "c2", true))
	_, err := f.registry.StartMatch(context.Background(), "r1", "c1")
	require.NoError(t, err)

	_, err = f.registry.Join("r1", "c3", "u3")

	assert.True(t, apperr.Is(err, apperr.GameAlreadyStarted))
	r, _ := f.registry.Get("r1")
	assert.Equal(t, 2, r.MemberCount())

	_, err = f.registry.StartMatch(context.Background(), "r1", "c1")
	assert.True(t, apperr.Is(err, apperr.GameAlreadyStarted))
}

func TestStartMatch_RejectsLobbyChangesWhileStarting(t *testing.T) {
	f := newFixture(t, PromoteOwner)
	f.factory.gate = make(chan struct{})
	f.factory.called = make(chan struct{}, 1)
	f.seat(t, "r1", 2)
	require.NoError(t, f.registry.SetReady("r1", "c1", true))
	require.NoError(t, f.registry.SetReady("r1", "c2", true))

	done := make(chan error, 1)
	go func() {
		_, err := f.registry.StartMatch(context.Background(), "r1", "c1")
		done <- err
	}()
	<-f.factory.called

	r, _ := f.registry.Get("r1")
	assert.Equal(t, PhaseStarting, r.Phase())

	_, err := f.registry.Join("r1", "c3", "u3")
	assert.True(t, apperr.Is(err, apperr.StartInProgress))
	assert.True(t, apperr.Is(f.registry.SetReady("r1", "c2", false), apperr.StartInProgress))
	_, err = f.registry.SetConfig("r1", "c1", models.ConfigPatch{})
	assert.True(t, apperr.Is(err, apperr.StartInProgress))
	_, err = f.registry.StartMatch(context.Background(), "r1", "c1")
	assert.True(t, apperr.Is(err, apperr.StartInProgress))

	close(f.factory.gate)
	require.NoError(t, <-done)
	assert.Len(t, f.bc.to("c2", network.EventGameStart), 1)
}

func TestStartMatch_MemberLeavingWhileStartingIsDropped(t *testing.T) {
	f := newFixture(t, PromoteOwner)
	f.factory.gate = make(chan struct{})
	f.factory.called = make(chan struct{}, 1)
	f.seat(t, "r1", 3)
	for _, c := range []string{"c1", "c2", "c3"} {
		require.NoError(t, f.registry.SetReady("r1", c, true))
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.registry.StartMatch(context.Background(), "r1", "c1")
		done <- err
	}()
	<-f.factory.called

	f.registry.Disconnect("r1", "c3")
	close(f.factory.gate)
	require.NoError(t, <-done)

	assert.Empty(t, f.bc.to("c3", network.EventGameStart))
	starts := f.bc.to("c2", network.EventGameStart)
	require.Len(t, starts, 1)
	start := starts[0].data.(GameStart)
	assert.Len(t, start.Players, 2)
	layout := start.Board.(board.Layout)
	for _, c := range layout.Cells {
		assert.NotEqual(t, "c3", c.OccupantID)
	}

	m, ok := f.matches.Get("game-r1")
	require.True(t, ok)
	_, onRoster := m.Player("c3")
	assert.False(t, onRoster)

	// the two remaining players are the whole roster
	_, err := m.ConnectToGame("g1", "u1")
	require.NoError(t, err)
	p, err := m.ConnectToGame("g2", "u2")
	require.NoError(t, err)
	assert.Equal(t, "c2", p.ID)
	st, err := m.Snapshot()
	require.NoError(t, err)
	assert.Len(t, st.Players, 2)

	// the departed username is free and not on any roster
	_, err = f.registry.JoinOrCreate("r2", "c9", "u3")
	assert.NoError(t, err)
}

func TestStartMatch_TooFewLeftAfterStartingReverts(t *testing.T) {
	f := newFixture(t, PromoteOwner)
	f.factory.gate = make(chan struct{})
	f.factory.called = make(chan struct{}, 1)
	f.seat(t, "r1", 2)
	require.NoError(t, f.registry.SetReady("r1", "c1", true))
	require.NoError(t, f.registry.SetReady("r1", "c2", true))

	done := make(chan error, 1)
	go func() {
		_, err := f.registry.StartMatch(context.Background(), "r1", "c1")
		done <- err
	}()
	<-f.factory.called

	require.NoError(t, f.registry.Leave("r1", "c2"))
	close(f.factory.gate)

	assert.True(t, apperr.Is(<-done, apperr.InsufficientReady))
	assert.Zero(t, f.matches.Count())
	r, ok := f.registry.Get("r1")
	require.True(t, ok)
	assert.False(t, r.Started())
	assert.Equal(t, PhaseOpen, r.Phase())
	assert.Contains(t, f.bc.lastRoomsList(), "r1")
}

func TestStartMatch_FactoryErrorReverts(t *testing.T) {
	f := newFixture(t, PromoteOwner)
	f.factory.err = errors.New("factory down")
	f.seat(t, "r1", 4)
	require.NoError(t, f.registry.SetReady("r1", "c1", true))
	require.NoError(t, f.registry.SetReady("r1", "c2", true))
	before := f.bc.count()

	_, err := f.registry.StartMatch(context.Background(), "r1", "c1")

	assert.True(t, apperr.Is(err, apperr.FactoryError))
	assert.Equal(t, before, f.bc.count(), "a failed start is reported to the requester only")
	r, _ := f.registry.Get("r1")
	assert.Equal(t, PhaseFull, r.Phase())
	assert.False(t, r.Started())
	assert.Zero(t, f.matches.Count())

	// the room is usable again
	require.NoError(t, f.registry.SetReady("r1", "c3", true))
}

func TestStartMatch_RoomClosedWhileStarting(t *testing.T) {
	f := newFixture(t, CloseOnOwnerLeave)
	f.factory.gate = make(chan struct{})
	f.factory.called = make(chan struct{}, 1)
	f.seat(t, "r1", 2)
	require.NoError(t, f.registry.SetReady("r1", "c1", true))
	require.NoError(t, f.registry.SetReady("r1", "c2", true))

	done := make(chan error, 1)
	go func() {
		_, err := f.registry.StartMatch(context.Background(), "r1", "c1")
		done <- err
	}()
	<-f.factory.called

	require.NoError(t, f.registry.Leave("r1", "c1"))
	close(f.factory.gate)

	assert.True(t, apperr.Is(<-done, apperr.NotFound))
	assert.Zero(t, f.matches.Count())
}

func TestSetConfig_PartialAndOwnerOnly(t *testing.T) {
	f := newFixture(t, PromoteOwner)
	f.seat(t, "r1", 2)

	_, err := f.registry.SetConfig("r1", "c2", models.ConfigPatch{})
	assert.True(t, apperr.Is(err, apperr.NotOwner))

	minutes := 2
	cfg, err := f.registry.SetConfig("r1", "c1", models.ConfigPatch{Duration: &minutes})
	require.NoError(t, err)
	assert.Equal(t, models.GameConfig{Map: "default", Duration: 2, Items: 3}, cfg)

	zero := 0
	_, err = f.registry.SetConfig("r1", "c1", models.ConfigPatch{Duration: &zero})
	assert.True(t, apperr.Is(err, apperr.InvalidRequest))
}

func TestSelectCharacter(t *testing.T) {
	f := newFixture(t, PromoteOwner)
	f.seat(t, "r1", 1)

	require.NoError(t, f.registry.SelectCharacter("r1", "c1", "bomber-red"))

	r, _ := f.registry.Get("r1")
	assert.Equal(t, "bomber-red", r.View().Characters["c1"])
	assert.True(t, apperr.Is(f.registry.SelectCharacter("r1", "c9", "x"), apperr.NotMember))
}

func TestLeave_PromotesEarliestMember(t *testing.T) {
	f := newFixture(t, PromoteOwner)
	f.seat(t, "r1", 4)

	require.NoError(t, f.registry.Leave("r1", "c1"))

	r, _ := f.registry.Get("r1")
	assert.Equal(t, "c2", r.Owner())
	assert.Equal(t, PhaseOpen, r.Phase())
	assert.True(t, apperr.Is(f.registry.Leave("r1", "c1"), apperr.NotMember))
}

func TestLeave_ClosePolicy(t *testing.T) {
	f := newFixture(t, CloseOnOwnerLeave)
	f.seat(t, "r1", 3)

	require.NoError(t, f.registry.Leave("r1", "c1"))

	_, exists := f.registry.Get("r1")
	assert.False(t, exists)
	assert.Len(t, f.bc.to("c2", network.EventRoomClosed), 1)
	assert.Len(t, f.bc.to("c3", network.EventRoomClosed), 1)
	_, bound := f.directory.Lookup("c2")
	assert.False(t, bound)

	_, err := f.registry.JoinOrCreate("r2", "c5", "u2")
	assert.NoError(t, err, "usernames are released when a room closes")
}

func TestLeave_ClosePolicyIgnoredOnceStarted(t *testing.T) {
	f := newFixture(t, CloseOnOwnerLeave)
	f.seat(t, "r1", 3)
	require.NoError(t, f.registry.SetReady("r1", "c1", true))
	require.NoError(t, f.registry.SetReady("r1", "c2", true))
	_, err := f.registry.StartMatch(context.Background(), "r1", "c1")
	require.NoError(t, err)

	assert.True(t, f.registry.ForgetPlayer("r1", "u1"))

	r, exists := f.registry.Get("r1")
	require.True(t, exists)
	assert.Equal(t, 2, r.MemberCount())
	assert.Empty(t, f.bc.to("c2", network.EventRoomClosed))
	_, err = f.registry.JoinOrCreate("r2", "c9", "u2")
	assert.True(t, apperr.Is(err, apperr.UsernameTaken), "players still in the match keep their names")
}

func TestLeave_LastMemberDestroysRoom(t *testing.T) {
	f := newFixture(t, PromoteOwner)
	f.seat(t, "r1", 1)

	require.NoError(t, f.registry.Leave("r1", "c1"))

	assert.Zero(t, f.registry.Count())
	assert.Empty(t, f.bc.lastRoomsList())
	assert.True(t, apperr.Is(f.registry.Leave("r1", "c1"), apperr.NotFound))
}

func TestForgetPlayerAndDisconnect(t *testing.T) {
	f := newFixture(t, PromoteOwner)
	f.seat(t, "r1", 3)

	assert.True(t, f.registry.ForgetPlayer("r1", "u2"))
	assert.False(t, f.registry.ForgetPlayer("r1", "u2"))

	f.registry.Disconnect("r1", "c3")
	f.registry.Disconnect("r1", "c3")

	r, _ := f.registry.Get("r1")
	assert.Equal(t, 1, r.MemberCount())
}

func TestDestroyRoom(t *testing.T) {
	f := newFixture(t, PromoteOwner)
	f.seat(t, "r1", 2)

	require.NoError(t, f.registry.DestroyRoom("r1"))
	assert.True(t, apperr.Is(f.registry.DestroyRoom("r1"), apperr.NotFound))
	_, bound := f.directory.Lookup("c1")
	assert.False(t, bound)
	assert.Empty(t, f.registry.RoomIDs())
}

func TestCreateAndJoin(t *testing.T) {
	f := newFixture(t, PromoteOwner)

	res, err := f.registry.CreateAndJoin("r1", "c1", "u1")
	require.NoError(t, err)
	assert.True(t, res.IsOwner)

	_, err = f.registry.CreateAndJoin("r1", "c2", "u2")
	assert.True(t, apperr.Is(err, apperr.AlreadyExists))

	_, err = f.registry.CreateAndJoin("r2", "c3", "u1")
	assert.True(t, apperr.Is(err, apperr.UsernameTaken))
	_, exists := f.registry.Get("r2")
	assert.False(t, exists)
}

func TestCreateAndJoin_CreatorAlwaysOwns(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t, PromoteOwner)
		var wg sync.WaitGroup
		for j := 1; j <= 3; j++ {
			wg.Add(1)
			go func(j int) {
				defer wg.Done()
				f.registry.Join("r1", fmt.Sprintf("c%d", j), fmt.Sprintf("u%d", j))
			}(j)
		}
		_, err := f.registry.CreateAndJoin("r1", "c0", "u0")
		wg.Wait()

		require.NoError(t, err)
		r, _ := f.registry.Get("r1")
		assert.Equal(t, "c0", r.Owner())
	}
}

func TestConcurrentJoinsNeverOverfill(t *testing.T) {
	f := newFixture(t, PromoteOwner)
	_, err := f.registry.CreateRoom("r1", "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f.registry.Join("r1", fmt.Sprintf("c%d", i), fmt.Sprintf("u%d", i))
		}(i)
	}
	wg.Wait()

	r, _ := f.registry.Get("r1")
	assert.Equal(t, 4, r.MemberCount())
}

func TestRetireRoom(t *testing.T) {
	f := newFixture(t, PromoteOwner)
	f.seat(t, "r1", 2)

	assert.False(t, f.registry.RetireRoom("r1"), "unstarted rooms stay")

	require.NoError(t, f.registry.SetReady("r1", "c1", true))
	require.NoError(t, f.registry.SetReady("r1", "c2", true))
	_, err := f.registry.StartMatch(context.Background(), "r1", "c1")
	require.NoError(t, err)

	assert.True(t, f.registry.RetireRoom("r1"))
	assert.Zero(t, f.registry.Count())

	// usernames are free again
	_, err = f.registry.JoinOrCreate("r2", "c9", "u1")
	assert.NoError(t, err)
}
