// Package grid owns the dense occupancy grid built up by the mapper.
//
// The grid is a fixed width*height array of binary cells stored row-major in
// a single slice (idx = row*width + col). Dimensions are set once by New and
// there is no resize API.
package grid

import (
	"fmt"
	"sync"

	"github.com/banshee-data/rangemap/internal/geom"
)

// CellState is the binary state of one grid cell.
type CellState uint8

const (
	Free     CellState = 0
	Occupied CellState = 1
)

func (s CellState) String() string {
	if s == Occupied {
		return "occupied"
	}
	return "free"
}

// MarshalJSON encodes the state as 0 or 1. Without it a []CellState would be
// encoded as a base64 byte string.
func (s CellState) MarshalJSON() ([]byte, error) {
	if s == Occupied {
		return []byte("1"), nil
	}
	return []byte("0"), nil
}

// OccupancyGrid is a width*height array of cell states addressed by
// (col, row). It is safe for concurrent use; writers are serialised.
type OccupancyGrid struct {
	width  int
	height int

	mu    sync.RWMutex
	cells []CellState // len = width * height
}

// New allocates a grid with every cell free. Negative dimensions panic.
func New(width, height int) *OccupancyGrid {
	if width < 0 || height < 0 {
		panic(fmt.Sprintf("grid: invalid dimensions %dx%d", width, height))
	}
	return &OccupancyGrid{
		width:  width,
		height: height,
		cells:  make([]CellState, width*height),
	}
}

// Width returns the number of columns.
func (g *OccupancyGrid) Width() int { return g.width }

// Height returns the number of rows.
func (g *OccupancyGrid) Height() int { return g.height }

// InBounds reports whether (col, row) addresses a cell of this grid.
func (g *OccupancyGrid) InBounds(col, row int) bool {
	return col >= 0 && col < g.width && row >= 0 && row < g.height
}

func (g *OccupancyGrid) idx(col, row int) int { return row*g.width + col }

// InsertPoint marks the cell containing p as occupied. Coordinates are
// truncated toward zero. Callers are expected to have checked bounds already;
// an out-of-range point is ignored rather than written. The return value
// reports whether the cell went from free to occupied.
func (g *OccupancyGrid) InsertPoint(p geom.Point) bool {
	col, row := p.Cell()
	if !g.InBounds(col, row) {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	i := g.idx(col, row)
	if g.cells[i] == Occupied {
		return false
	}
	g.cells[i] = Occupied
	return true
}

// CellState returns the state of (col, row). Indexing outside the grid is a
// programming error and panics.
func (g *OccupancyGrid) CellState(col, row int) CellState {
	if !g.InBounds(col, row) {
		panic(fmt.Sprintf("grid: cell (%d, %d) out of range for %dx%d grid", col, row, g.width, g.height))
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cells[g.idx(col, row)]
}

// Occupied is CellState(col, row) == Occupied.
func (g *OccupancyGrid) Occupied(col, row int) bool {
	return g.CellState(col, row) == Occupied
}

// OccupiedCount returns the number of occupied cells.
func (g *OccupancyGrid) OccupiedCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n := 0
	for _, c := range g.cells {
		if c == Occupied {
			n++
		}
	}
	return n
}

// Rows returns a copy of the grid as height rows of width states.
func (g *OccupancyGrid) Rows() [][]CellState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rows := make([][]CellState, g.height)
	for r := 0; r < g.height; r++ {
		row := make([]CellState, g.width)
		copy(row, g.cells[r*g.width:(r+1)*g.width])
		rows[r] = row
	}
	return rows
}

// Load replaces every cell with the given rows. The shape must match the
// grid exactly.
func (g *OccupancyGrid) Load(rows [][]CellState) error {
	if len(rows) != g.height {
		return fmt.Errorf("grid: got %d rows, want %d", len(rows), g.height)
	}
	for r, row := range rows {
		if len(row) != g.width {
			return fmt.Errorf("grid: row %d has %d cells, want %d", r, len(row), g.width)
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	for r, row := range rows {
		copy(g.cells[r*g.width:(r+1)*g.width], row)
	}
	return nil
}

// Clear marks every cell free. The dimensions are unchanged.
func (g *OccupancyGrid) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.cells {
		g.cells[i] = Free
	}
}
