package grid

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/banshee-data/rangemap/internal/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_AllCellsFree(t *testing.T) {
	g := New(4, 3)
	assert.Equal(t, 4, g.Width())
	assert.Equal(t, 3, g.Height())
	for row := 0; row < g.Height(); row++ {
		for col := 0; col < g.Width(); col++ {
			assert.Equal(t, Free, g.CellState(col, row), "cell (%d,%d)", col, row)
		}
	}
	assert.Equal(t, 0, g.OccupiedCount())
}

func TestNew_NegativeDimensionsPanic(t *testing.T) {
	assert.Panics(t, func() { New(-1, 2) })
	assert.Panics(t, func() { New(2, -1) })
	assert.NotPanics(t, func() { New(0, 0) })
}

func TestInsertPoint(t *testing.T) {
	g := New(10, 10)

	require.True(t, g.InsertPoint(geom.NewPoint(8, 5)))
	assert.Equal(t, Occupied, g.CellState(8, 5))
	assert.True(t, g.Occupied(8, 5))
	assert.False(t, g.Occupied(5, 8), "col/row must not be swapped")

	// Second insert of the same cell is a no-op.
	assert.False(t, g.InsertPoint(geom.NewPoint(8, 5)))
	assert.Equal(t, 1, g.OccupiedCount())
}

func TestInsertPoint_TruncatesCoordinates(t *testing.T) {
	g := New(3, 3)
	g.InsertPoint(geom.NewPoint(1.9, 2.2))
	assert.True(t, g.Occupied(1, 2))
}

func TestInsertPoint_OutOfRangeIgnored(t *testing.T) {
	g := New(3, 3)
	for _, p := range []geom.Point{
		geom.NewPoint(3, 0),
		geom.NewPoint(0, 3),
		geom.NewPoint(-1, 0),
		geom.NewPoint(100, 100),
	} {
		assert.False(t, g.InsertPoint(p), "point %v", p)
	}
	assert.Equal(t, 0, g.OccupiedCount())
}

func TestCellState_OutOfRangePanics(t *testing.T) {
	g := New(2, 2)
	for _, c := range [][2]int{{-1, 0}, {0, -1}, {2, 0}, {0, 2}} {
		assert.Panics(t, func() { g.CellState(c[0], c[1]) }, "cell %v", c)
	}
}

func TestRowsIsACopy(t *testing.T) {
	g := New(2, 2)
	g.InsertPoint(geom.NewPoint(1, 0))

	rows := g.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, []CellState{Free, Occupied}, rows[0])
	assert.Equal(t, []CellState{Free, Free}, rows[1])

	rows[1][1] = Occupied
	assert.False(t, g.Occupied(1, 1))
}

func TestLoad(t *testing.T) {
	g := New(2, 2)
	err := g.Load([][]CellState{{Occupied, Free}, {Free, Occupied}})
	require.NoError(t, err)
	assert.True(t, g.Occupied(0, 0))
	assert.True(t, g.Occupied(1, 1))
	assert.Equal(t, 2, g.OccupiedCount())

	assert.Error(t, g.Load([][]CellState{{Free, Free}}))
	assert.Error(t, g.Load([][]CellState{{Free}, {Free}}))
}

func TestClear(t *testing.T) {
	g := New(3, 2)
	g.InsertPoint(geom.NewPoint(0, 0))
	g.InsertPoint(geom.NewPoint(2, 1))
	g.Clear()
	assert.Equal(t, 0, g.OccupiedCount())
	assert.Equal(t, 3, g.Width())
	assert.Equal(t, 2, g.Height())
}

func TestConcurrentInsert(t *testing.T) {
	g := New(50, 50)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				g.InsertPoint(geom.NewPoint(float64(i), float64(i)))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, g.OccupiedCount())
}

func TestCellState_String(t *testing.T) {
	assert.Equal(t, "free", Free.String())
	assert.Equal(t, "occupied", Occupied.String())
}

func TestRows_JSON(t *testing.T) {
	g := New(2, 2)
	g.InsertPoint(geom.NewPoint(1, 0))
	data, err := json.Marshal(g.Rows())
	require.NoError(t, err)
	assert.JSONEq(t, `[[0,1],[0,0]]`, string(data))

	var back [][]CellState
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, g.Rows(), back)
}
