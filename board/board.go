// Package board holds the match grid. A Board is owned by exactly one match
// and is not safe for concurrent use; the match serializes access to it.
package board

import (
	"encoding/json"
	"sort"
	"strings"
)

// CellType is the terrain/occupancy of a cell.
type CellType string

const (
	Empty  CellType = "EMPTY"
	Block  CellType = "BLOCK"
	Wall   CellType = "WALL"
	Player CellType = "PLAYER"
)

// UnmarshalJSON accepts any casing from the factory.
func (t *CellType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*t = CellType(strings.ToUpper(s))
	return nil
}

// Point is a cell coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Cell is a single grid square. OccupantID is set iff Type == Player.
type Cell struct {
	X          int      `json:"x"`
	Y          int      `json:"y"`
	Type       CellType `json:"type"`
	OccupantID string   `json:"occupantId,omitempty"`
}

// Layout is the wire shape of a board as produced by the factory.
type Layout struct {
	Cells []Cell `json:"cells"`
}

type Board struct {
	cells     map[Point]*Cell
	positions map[string]Point // occupant id -> cell
}

// New builds a board from a factory layout. A PLAYER cell without an
// occupant is treated as EMPTY, and if an occupant appears on several cells
// only the last one keeps it.
func New(layout Layout) *Board {
	b := &Board{
		cells:     make(map[Point]*Cell, len(layout.Cells)),
		positions: make(map[string]Point),
	}
	for _, c := range layout.Cells {
		cell := c
		p := Point{X: c.X, Y: c.Y}
		if cell.Type != Player {
			cell.OccupantID = ""
		} else if cell.OccupantID == "" {
			cell.Type = Empty
		}
		if cell.Type == Player {
			if prev, ok := b.positions[cell.OccupantID]; ok {
				b.cells[prev].Type = Empty
				b.cells[prev].OccupantID = ""
			}
			b.positions[cell.OccupantID] = p
		}
		b.cells[p] = &cell
	}
	return b
}

// Get returns a copy of the cell at p.
func (b *Board) Get(p Point) (Cell, bool) {
	c, ok := b.cells[p]
	if !ok {
		return Cell{}, false
	}
	return *c, true
}

// Position returns the cell currently occupied by id.
func (b *Board) Position(id string) (Point, bool) {
	p, ok := b.positions[id]
	return p, ok
}

// MoveTo places id on the cell at to if that cell is EMPTY, freeing the
// cell id occupied before. It reports whether the move happened.
func (b *Board) MoveTo(id string, to Point) bool {
	dst, ok := b.cells[to]
	if !ok || dst.Type != Empty {
		return false
	}
	b.Vacate(id)
	dst.Type = Player
	dst.OccupantID = id
	b.positions[id] = to
	return true
}

// Destroy turns a BLOCK at p into EMPTY and reports whether it did.
// A second call for the same point finds EMPTY and returns false.
func (b *Board) Destroy(p Point) bool {
	c, ok := b.cells[p]
	if !ok || c.Type != Block {
		return false
	}
	c.Type = Empty
	return true
}

// VacateAt empties the cell at p if id occupies it.
func (b *Board) VacateAt(p Point, id string) bool {
	c, ok := b.cells[p]
	if !ok || c.Type != Player || c.OccupantID != id {
		return false
	}
	c.Type = Empty
	c.OccupantID = ""
	delete(b.positions, id)
	return true
}

// Vacate empties whatever cell id occupies.
func (b *Board) Vacate(id string) (Point, bool) {
	p, ok := b.positions[id]
	if !ok {
		return Point{}, false
	}
	b.VacateAt(p, id)
	return p, true
}

// Cells returns a row-major snapshot of the grid.
func (b *Board) Cells() []Cell {
	out := make([]Cell, 0, len(b.cells))
	for _, c := range b.cells {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Y != out[j].Y {
			return out[i].Y < out[j].Y
		}
		return out[i].X < out[j].X
	})
	return out
}

func (b *Board) MarshalJSON() ([]byte, error) {
	return json.Marshal(Layout{Cells: b.Cells()})
}
