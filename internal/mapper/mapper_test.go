package mapper

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/banshee-data/rangemap/internal/fsutil"
	"github.com/banshee-data/rangemap/internal/grid"
	"github.com/banshee-data/rangemap/internal/monitoring"
	"github.com/banshee-data/rangemap/internal/sensor"
	"github.com/banshee-data/rangemap/internal/testutil"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
)

func TestUpdateMap_ProjectsFromOrigin(t *testing.T) {
	m := New(10, 10, WithOrigin(5, 5))

	res := m.UpdateMap([]sensor.Reading{{Distance: 3, Bearing: 0}})
	if res != (UpdateResult{Inserted: 1, Changed: 1}) {
		t.Errorf("result = %+v", res)
	}
	if got := m.CellState(8, 5); got != grid.Occupied {
		t.Errorf("cell (8,5) = %v, want occupied", got)
	}
}

func TestUpdateMap_DiscardsOutOfBounds(t *testing.T) {
	m := New(10, 10, WithOrigin(5, 5))
	before := m.EncodeText()

	res := m.UpdateMap([]sensor.Reading{{Distance: 100, Bearing: 0}, {Distance: 6, Bearing: 180}})
	if res.Discarded != 2 || res.Inserted != 0 {
		t.Errorf("result = %+v, want 2 discarded", res)
	}
	if !bytes.Equal(before, m.EncodeText()) {
		t.Error("out-of-bounds readings changed the grid")
	}
}

func TestProject(t *testing.T) {
	tests := []struct {
		name     string
		reading  sensor.Reading
		col, row int
	}{
		{"east", sensor.Reading{Distance: 3, Bearing: 0}, 8, 5},
		{"south", sensor.Reading{Distance: 3, Bearing: 90}, 5, 8},
		{"west", sensor.Reading{Distance: 3, Bearing: 180}, 2, 5},
		{"zero distance", sensor.Reading{Distance: 0, Bearing: 45}, 5, 5},
		{"diagonal truncates", sensor.Reading{Distance: 2, Bearing: 45}, 6, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			col, row := Project(5, 5, tt.reading)
			if col != tt.col || row != tt.row {
				t.Errorf("Project(%+v) = (%d, %d), want (%d, %d)", tt.reading, col, row, tt.col, tt.row)
			}
		})
	}
}

func TestUpdateMap_TruncatesTowardZero(t *testing.T) {
	tests := []struct {
		name     string
		reading  sensor.Reading
		col, row int
		inserted bool
	}{
		{"negative fraction truncates into column 0", sensor.Reading{Distance: 1, Bearing: 135}, 0, 0, true},
		{"both axes negative fractions", sensor.Reading{Distance: 1, Bearing: 225}, 0, 0, true},
		{"whole negative step leaves the grid", sensor.Reading{Distance: 1, Bearing: 180}, -1, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			col, row := Project(0, 0, tt.reading)
			if col != tt.col || row != tt.row {
				t.Errorf("Project(0, 0, %+v) = (%d, %d), want (%d, %d)", tt.reading, col, row, tt.col, tt.row)
			}

			m := New(4, 4)
			res := m.UpdateMap([]sensor.Reading{tt.reading})
			if tt.inserted {
				if res != (UpdateResult{Inserted: 1, Changed: 1}) {
					t.Errorf("result = %+v, want one insert", res)
				}
				if m.CellState(0, 0) != grid.Occupied {
					t.Error("cell (0,0) not occupied")
				}
				return
			}
			if res != (UpdateResult{Discarded: 1}) {
				t.Errorf("result = %+v, want one discard", res)
			}
			if m.Snapshot().Occupied != 0 {
				t.Error("discarded reading marked a cell")
			}
		})
	}
}

func TestUpdateMap_Idempotent(t *testing.T) {
	m := New(10, 10, WithOrigin(5, 5))
	readings := []sensor.Reading{{Distance: 3, Bearing: 0}, {Distance: 3, Bearing: 90}, {Distance: 3, Bearing: 180}}

	first := m.UpdateMap(readings)
	snap := m.Snapshot()
	second := m.UpdateMap(readings)

	if first.Changed != 3 {
		t.Errorf("first update changed %d cells, want 3", first.Changed)
	}
	if second.Changed != 0 || second.Inserted != 3 {
		t.Errorf("second update = %+v, want 3 inserted 0 changed", second)
	}
	if diff := cmp.Diff(snap, m.Snapshot()); diff != "" {
		t.Errorf("repeated update changed the grid (-first +second):\n%s", diff)
	}
}

func TestUpdateMap_NeverClearsCells(t *testing.T) {
	m := New(10, 10, WithOrigin(5, 5))
	m.UpdateMap([]sensor.Reading{{Distance: 3, Bearing: 0}})
	m.UpdateMap([]sensor.Reading{{Distance: 100, Bearing: 0}, {Distance: 1, Bearing: 90}})
	if m.CellState(8, 5) != grid.Occupied {
		t.Error("earlier occupied cell was cleared")
	}
	if m.CellState(5, 6) != grid.Occupied {
		t.Error("new reading not inserted")
	}
}

func TestOriginControl(t *testing.T) {
	m := New(10, 10)
	if x, y := m.Origin(); x != 0 || y != 0 {
		t.Errorf("default origin = (%d, %d)", x, y)
	}
	m.SetOrigin(2, 3)
	m.Advance(1, -1)
	if x, y := m.Origin(); x != 3 || y != 2 {
		t.Errorf("origin = (%d, %d), want (3, 2)", x, y)
	}
	// UpdateMap does not move the origin.
	m.UpdateMap([]sensor.Reading{{Distance: 1, Bearing: 0}})
	if x, y := m.Origin(); x != 3 || y != 2 {
		t.Errorf("origin moved to (%d, %d) after update", x, y)
	}
	if m.CellState(4, 2) != grid.Occupied {
		t.Error("reading not projected from the new origin")
	}
}

func TestShowMap(t *testing.T) {
	var buf bytes.Buffer
	m := New(2, 2, WithOutput(&buf))

	m.ShowMap()
	if got, want := buf.String(), ". . \n. . \n"; got != want {
		t.Errorf("ShowMap = %q, want %q", got, want)
	}

	buf.Reset()
	m.UpdateMap([]sensor.Reading{{Distance: 0, Bearing: 0}})
	m.ShowMap()
	if got, want := buf.String(), "x . \n. . \n"; got != want {
		t.Errorf("ShowMap = %q, want %q", got, want)
	}
}

func TestRecordMap_RoundTrip(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	m := New(4, 3, WithOrigin(0, 0), WithFileSystem(mfs))
	m.UpdateMap([]sensor.Reading{{Distance: 0, Bearing: 0}, {Distance: 2, Bearing: 0}, {Distance: 1, Bearing: 90}})

	m.RecordMap("/maps/map.txt")
	data, err := mfs.ReadFile("/maps/map.txt")
	if err != nil {
		t.Fatalf("map not written: %v", err)
	}
	want := "1 0 1 0 \n1 0 0 0 \n0 0 0 0 \n"
	if string(data) != want {
		t.Errorf("recorded %q, want %q", data, want)
	}
	if !bytes.Equal(data, m.EncodeText()) {
		t.Error("EncodeText differs from the recorded file")
	}

	loaded := New(4, 3, WithFileSystem(mfs))
	if err := loaded.LoadMap("/maps/map.txt"); err != nil {
		t.Fatalf("LoadMap: %v", err)
	}
	if diff := cmp.Diff(m.Snapshot().Rows, loaded.Snapshot().Rows); diff != "" {
		t.Errorf("reloaded grid differs (-want +got):\n%s", diff)
	}
}

func TestRecordMap_FailureIsLogged(t *testing.T) {
	logs := testutil.CaptureLogs(t)
	mfs := fsutil.NewMemoryFileSystem()
	mfs.DenyWrites("/readonly")
	m := New(2, 2, WithFileSystem(mfs))
	m.UpdateMap([]sensor.Reading{{Distance: 0, Bearing: 0}})
	before := m.Snapshot()

	m.RecordMap("/readonly/map.txt")

	if !logs.Contains("/readonly/map.txt") {
		t.Errorf("expected failure to be logged, got %q", logs.Lines())
	}
	if mfs.Exists("/readonly/map.txt") {
		t.Error("file should not exist")
	}
	if diff := cmp.Diff(before, m.Snapshot()); diff != "" {
		t.Errorf("failed record changed the grid:\n%s", diff)
	}
	if err := m.WriteMap("/readonly/map.txt"); err == nil {
		t.Error("WriteMap should return the error")
	}
}

func TestLoadMap_Errors(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	mfs.WriteFile("/short.txt", []byte("0 0 \n"))
	mfs.WriteFile("/narrow.txt", []byte("0 \n0 \n"))
	mfs.WriteFile("/bad.txt", []byte("0 1 \n0 x \n"))

	m := New(2, 2, WithFileSystem(mfs))
	if err := m.LoadMap("/short.txt"); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("short file err = %v, want ErrDimensionMismatch", err)
	}
	if err := m.LoadMap("/narrow.txt"); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("narrow file err = %v, want ErrDimensionMismatch", err)
	}
	if err := m.LoadMap("/bad.txt"); !errors.Is(err, ErrMalformedMap) {
		t.Errorf("bad token err = %v, want ErrMalformedMap", err)
	}
	if err := m.LoadMap("/missing.txt"); err == nil {
		t.Error("missing file should fail")
	}
	if m.Snapshot().Occupied != 0 {
		t.Error("failed loads must leave the grid untouched")
	}
}

func TestClearAndSnapshot(t *testing.T) {
	m := New(3, 2, WithOrigin(1, 1))
	m.UpdateMap([]sensor.Reading{{Distance: 1, Bearing: 0}})
	snap := m.Snapshot()
	want := Snapshot{
		Width: 3, Height: 2, OriginX: 1, OriginY: 1, Occupied: 1,
		Rows: [][]grid.CellState{{0, 0, 0}, {0, 0, 1}},
	}
	if diff := cmp.Diff(want, snap); diff != "" {
		t.Errorf("Snapshot mismatch (-want +got):\n%s", diff)
	}

	m.Clear()
	if m.Snapshot().Occupied != 0 {
		t.Error("Clear left occupied cells")
	}
	if m.Width() != 3 || m.Height() != 2 {
		t.Error("Clear changed dimensions")
	}
}

func TestUpdateMap_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := monitoring.NewMapperMetrics(reg)
	if err != nil {
		t.Fatal(err)
	}
	m := New(5, 5, WithMetrics(metrics))
	m.UpdateMap([]sensor.Reading{{Distance: 1, Bearing: 0}, {Distance: 2, Bearing: 0}, {Distance: 50, Bearing: 0}})

	if got := promtest.ToFloat64(metrics.ReadingsInserted); got != 2 {
		t.Errorf("inserted = %v, want 2", got)
	}
	if got := promtest.ToFloat64(metrics.ReadingsDiscarded); got != 1 {
		t.Errorf("discarded = %v, want 1", got)
	}
	if got := promtest.ToFloat64(metrics.OccupiedCells); got != 2 {
		t.Errorf("occupied = %v, want 2", got)
	}
}

func TestConcurrentUpdateAndRead(t *testing.T) {
	m := New(20, 20, WithOrigin(10, 10))
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(b int) {
			defer wg.Done()
			for d := 0; d < 10; d++ {
				m.UpdateMap([]sensor.Reading{{Distance: d, Bearing: b * 90}})
			}
		}(i)
	}
	for i := 0; i < 10; i++ {
		_ = m.Snapshot()
		_ = m.EncodeText()
	}
	wg.Wait()
	if m.Snapshot().Occupied == 0 {
		t.Error("expected occupied cells")
	}
}
