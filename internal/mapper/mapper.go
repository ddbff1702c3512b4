// Package mapper projects polar range readings onto an occupancy grid and
// persists or displays the result.
//
// Each reading (distance, bearing in degrees) is converted to grid
// coordinates relative to the mapper's origin:
//
//	x = originX + distance*cos(bearing*pi/180)
//	y = originY + distance*sin(bearing*pi/180)
//
// Both coordinates are truncated toward zero. Readings that land outside the
// grid are discarded. Cells are only ever marked occupied by an update; there
// is no decay and no free-space tracing.
package mapper

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"sync"

	"github.com/banshee-data/rangemap/internal/fsutil"
	"github.com/banshee-data/rangemap/internal/geom"
	"github.com/banshee-data/rangemap/internal/grid"
	"github.com/banshee-data/rangemap/internal/monitoring"
	"github.com/banshee-data/rangemap/internal/record"
	"github.com/banshee-data/rangemap/internal/sensor"
)

var (
	// ErrDimensionMismatch is returned by LoadMap when the file does not have
	// the mapper's width and height.
	ErrDimensionMismatch = errors.New("mapper: map dimensions do not match grid")
	// ErrMalformedMap is returned by LoadMap for a token other than 0 or 1.
	ErrMalformedMap = errors.New("mapper: malformed map file")
)

// Mapper owns one occupancy grid and the origin readings are projected from.
// A whole UpdateMap batch is applied under the mapper lock, so readers never
// see a partially applied sweep.
type Mapper struct {
	mu      sync.RWMutex
	grid    *grid.OccupancyGrid
	originX int
	originY int

	fs      fsutil.FileSystem
	out     io.Writer
	metrics *monitoring.MapperMetrics
}

// Option configures a Mapper.
type Option func(*Mapper)

// WithOrigin sets the initial projection origin. The default is (0, 0).
func WithOrigin(x, y int) Option {
	return func(m *Mapper) { m.originX, m.originY = x, y }
}

// WithFileSystem sets the filesystem used by RecordMap and LoadMap.
func WithFileSystem(fsys fsutil.FileSystem) Option {
	return func(m *Mapper) {
		if fsys != nil {
			m.fs = fsys
		}
	}
}

// WithOutput sets where ShowMap writes. The default is os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(m *Mapper) {
		if w != nil {
			m.out = w
		}
	}
}

// WithMetrics reports update outcomes to metrics.
func WithMetrics(metrics *monitoring.MapperMetrics) Option {
	return func(m *Mapper) { m.metrics = metrics }
}

// New returns a mapper over an all-free width*height grid.
func New(width, height int, opts ...Option) *Mapper {
	m := &Mapper{
		grid: grid.New(width, height),
		fs:   fsutil.OSFileSystem{},
		out:  os.Stdout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Width returns the grid width.
func (m *Mapper) Width() int { return m.grid.Width() }

// Height returns the grid height.
func (m *Mapper) Height() int { return m.grid.Height() }

// CellState returns the state of (col, row). It panics outside the grid.
func (m *Mapper) CellState(col, row int) grid.CellState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.grid.CellState(col, row)
}

// Origin returns the current projection origin.
func (m *Mapper) Origin() (x, y int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.originX, m.originY
}

// SetOrigin moves the projection origin. The origin is never changed by
// UpdateMap; integrating code decides when the agent has moved.
func (m *Mapper) SetOrigin(x, y int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.originX, m.originY = x, y
}

// Advance shifts the projection origin by (dx, dy).
func (m *Mapper) Advance(dx, dy int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.originX += dx
	m.originY += dy
}

// UpdateResult summarises one UpdateMap call.
type UpdateResult struct {
	// Inserted counts readings that landed inside the grid.
	Inserted int `json:"inserted"`
	// Changed counts cells that went from free to occupied.
	Changed int `json:"changed"`
	// Discarded counts readings that projected outside the grid.
	Discarded int `json:"discarded"`
}

// Project converts one reading to the grid cell it falls in, using the given
// origin. The result may lie outside the grid.
func Project(originX, originY int, r sensor.Reading) (col, row int) {
	rad := float64(r.Bearing) * math.Pi / 180.0
	x := float64(originX) + float64(r.Distance)*math.Cos(rad)
	y := float64(originY) + float64(r.Distance)*math.Sin(rad)
	return int(x), int(y)
}

// UpdateMap projects every reading and marks the in-bounds cells occupied.
// Out-of-bounds readings are dropped silently; they are not an error.
func (m *Mapper) UpdateMap(readings []sensor.Reading) UpdateResult {
	m.mu.Lock()
	var res UpdateResult
	for _, r := range readings {
		col, row := Project(m.originX, m.originY, r)
		if !m.grid.InBounds(col, row) {
			res.Discarded++
			continue
		}
		res.Inserted++
		if m.grid.InsertPoint(geom.NewPoint(float64(col), float64(row))) {
			res.Changed++
		}
	}
	occupied := m.grid.OccupiedCount()
	m.mu.Unlock()

	m.metrics.ObserveUpdate(res.Inserted, res.Discarded, occupied)
	return res
}

// Clear marks every cell free. The origin is unchanged.
func (m *Mapper) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grid.Clear()
	m.metrics.ObserveUpdate(0, 0, 0)
}

// Snapshot is a consistent copy of the mapper state.
type Snapshot struct {
	Width    int                `json:"width"`
	Height   int                `json:"height"`
	OriginX  int                `json:"origin_x"`
	OriginY  int                `json:"origin_y"`
	Occupied int                `json:"occupied"`
	Rows     [][]grid.CellState `json:"rows"`
}

// Snapshot copies the grid and origin under one read lock.
func (m *Mapper) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		Width:    m.grid.Width(),
		Height:   m.grid.Height(),
		OriginX:  m.originX,
		OriginY:  m.originY,
		Occupied: m.grid.OccupiedCount(),
		Rows:     m.grid.Rows(),
	}
}

// lines renders the grid row by row, row 0 first, each cell followed by a
// single space.
func (m *Mapper) lines(occupied, free string) []string {
	m.mu.RLock()
	rows := m.grid.Rows()
	m.mu.RUnlock()

	out := make([]string, len(rows))
	var sb strings.Builder
	for r, row := range rows {
		sb.Reset()
		for _, c := range row {
			if c == grid.Occupied {
				sb.WriteString(occupied)
			} else {
				sb.WriteString(free)
			}
			sb.WriteByte(' ')
		}
		out[r] = sb.String()
	}
	return out
}

// EncodeText returns exactly the bytes RecordMap writes.
func (m *Mapper) EncodeText() []byte {
	var buf bytes.Buffer
	for _, line := range m.lines("1", "0") {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// WriteMap writes the grid to path in the record format and returns any
// error.
func (m *Mapper) WriteMap(path string) error {
	rec := record.New(m.fs)
	if err := rec.Open(path, record.Write); err != nil {
		return err
	}
	for _, line := range m.lines("1", "0") {
		if err := rec.WriteLine(line); err != nil {
			rec.Close()
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return rec.Close()
}

// RecordMap writes the grid to path. Failures are logged and otherwise
// ignored; the grid is untouched either way.
func (m *Mapper) RecordMap(path string) {
	if err := m.WriteMap(path); err != nil {
		monitoring.Logf("mapper: unable to record map to %s: %v", path, err)
	}
}

// ShowMap writes the grid to the configured output using x for occupied and
// . for free cells.
func (m *Mapper) ShowMap() {
	m.ShowTo(m.out)
}

// ShowTo writes the ShowMap rendering to w.
func (m *Mapper) ShowTo(w io.Writer) {
	for _, line := range m.lines("x", ".") {
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			monitoring.Logf("mapper: show map: %v", err)
			return
		}
	}
}

// LoadMap replaces the grid with the contents of a file written by
// RecordMap.
func (m *Mapper) LoadMap(path string) error {
	lines, err := record.ReadAll(m.fs, path)
	if err != nil {
		return err
	}
	rows, err := parseRows(lines)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	if len(rows) != m.grid.Height() {
		return fmt.Errorf("load %s: %d rows for height %d: %w", path, len(rows), m.grid.Height(), ErrDimensionMismatch)
	}
	for r, row := range rows {
		if len(row) != m.grid.Width() {
			return fmt.Errorf("load %s: row %d has %d cells for width %d: %w", path, r, len(row), m.grid.Width(), ErrDimensionMismatch)
		}
	}

	m.mu.Lock()
	err = m.grid.Load(rows)
	occupied := m.grid.OccupiedCount()
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.metrics.ObserveUpdate(0, 0, occupied)
	return nil
}

func parseRows(lines []string) ([][]grid.CellState, error) {
	rows := make([][]grid.CellState, 0, len(lines))
	for i, line := range lines {
		fields := strings.Fields(line)
		row := make([]grid.CellState, len(fields))
		for j, f := range fields {
			switch f {
			case "0":
				row[j] = grid.Free
			case "1":
				row[j] = grid.Occupied
			default:
				return nil, fmt.Errorf("line %d token %d %q: %w", i+1, j+1, f, ErrMalformedMap)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
