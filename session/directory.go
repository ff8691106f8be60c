package session

import "sync"

// Membership is where a connection currently belongs. Ids are lookups only;
// the directory never owns the room or match they name.
type Membership struct {
	RoomID   string
	MatchID  string
	PlayerID string
}

func (m Membership) empty() bool {
	return m.RoomID == "" && m.MatchID == ""
}

// Directory maps connection ids to their room/match membership so
// disconnect handling never has to scan every room.
type Directory struct {
	entries map[string]Membership
	mutex   sync.RWMutex
}

func NewDirectory() *Directory {
	return &Directory{entries: make(map[string]Membership)}
}

func (d *Directory) BindRoom(connID, roomID string) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	m := d.entries[connID]
	m.RoomID = roomID
	d.entries[connID] = m
}

// UnbindRoom clears the room binding if it still names roomID.
func (d *Directory) UnbindRoom(connID, roomID string) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	m, ok := d.entries[connID]
	if !ok || m.RoomID != roomID {
		return
	}
	m.RoomID = ""
	d.store(connID, m)
}

func (d *Directory) BindMatch(connID, matchID, playerID string) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	m := d.entries[connID]
	m.MatchID = matchID
	m.PlayerID = playerID
	d.entries[connID] = m
}

// UnbindMatch clears the match binding if it still names matchID.
func (d *Directory) UnbindMatch(connID, matchID string) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	m, ok := d.entries[connID]
	if !ok || m.MatchID != matchID {
		return
	}
	m.MatchID = ""
	m.PlayerID = ""
	d.store(connID, m)
}

// Unbind forgets the connection and returns what it was bound to.
func (d *Directory) Unbind(connID string) (Membership, bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	m, ok := d.entries[connID]
	delete(d.entries, connID)
	return m, ok
}

func (d *Directory) Lookup(connID string) (Membership, bool) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	m, ok := d.entries[connID]
	return m, ok
}

func (d *Directory) store(connID string, m Membership) {
	if m.empty() {
		delete(d.entries, connID)
		return
	}
	d.entries[connID] = m
}
