// Package survey drives the mapping cycle: sweep the range sensor, project
// the readings onto the map, then persist and publish the result.
package survey

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/rangemap/internal/db"
	"github.com/banshee-data/rangemap/internal/mapper"
	"github.com/banshee-data/rangemap/internal/monitoring"
	"github.com/banshee-data/rangemap/internal/sensor"
	"github.com/banshee-data/rangemap/internal/timeutil"
	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "github.com/banshee-data/rangemap/internal/survey"

// Store persists cycle results. *db.DB satisfies it.
type Store interface {
	RecordScan(db.ScanRecord) error
	RecordMapSnapshot(db.MapSnapshot) error
}

// Publisher receives every completed cycle.
type Publisher interface {
	Publish(Result)
}

// Result is the outcome of one cycle.
type Result struct {
	Scan     db.ScanRecord   `json:"scan"`
	Snapshot mapper.Snapshot `json:"snapshot"`
}

// Surveyor runs mapping cycles. Lidar and Mapper are required; the rest are
// optional. Cycles never overlap.
type Surveyor struct {
	Lidar   *sensor.RangeSensor
	Mapper  *mapper.Mapper
	Store   Store
	Hub     Publisher
	Clock   timeutil.Clock
	Metrics *monitoring.MapperMetrics

	// SnapshotEvery stores a map snapshot after every n-th successful cycle,
	// skipping it when the map is unchanged since the last stored snapshot.
	// Zero disables snapshots.
	SnapshotEvery int

	mu       sync.Mutex
	cycles   int
	lastHash uint64
	stored   bool
}

func (s *Surveyor) clock() timeutil.Clock {
	if s.Clock == nil {
		return timeutil.RealClock{}
	}
	return s.Clock
}

// Once runs a single cycle. A sensor failure aborts the cycle and is
// returned; the map is left untouched. Storage failures are logged and do
// not fail the cycle.
func (s *Surveyor) Once(ctx context.Context) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "survey.cycle")
	defer span.End()

	clock := s.clock()
	start := clock.Now()
	if err := s.Lidar.Refresh(ctx); err != nil {
		s.Metrics.ObserveScan(0, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "lidar refresh failed")
		return Result{}, fmt.Errorf("survey: %w", err)
	}

	readings := s.Lidar.Readings()
	update := s.Mapper.UpdateMap(readings)
	summary, err := s.Lidar.Summary()
	if err != nil {
		summary = sensor.Summary{}
	}

	res := Result{
		Scan: db.ScanRecord{
			ID:        uuid.NewString(),
			TakenAt:   start,
			Summary:   summary,
			Inserted:  update.Inserted,
			Changed:   update.Changed,
			Discarded: update.Discarded,
			Readings:  readings,
		},
		Snapshot: s.Mapper.Snapshot(),
	}
	s.cycles++
	s.Metrics.ObserveScan(clock.Since(start), nil)
	span.SetAttributes(
		attribute.String("scan.id", res.Scan.ID),
		attribute.Int("scan.inserted", update.Inserted),
		attribute.Int("scan.discarded", update.Discarded),
		attribute.Int("map.occupied", res.Snapshot.Occupied),
	)

	if s.Store != nil {
		if err := s.Store.RecordScan(res.Scan); err != nil {
			monitoring.Logf("survey: failed to store scan %s: %v", res.Scan.ID, err)
		}
		if s.SnapshotEvery > 0 && s.cycles%s.SnapshotEvery == 0 {
			s.storeSnapshot(res.Snapshot, start)
		}
	}
	if s.Hub != nil {
		s.Hub.Publish(res)
	}
	return res, nil
}

// storeSnapshot records the map unless its text hashes the same as the last
// snapshot that was stored.
func (s *Surveyor) storeSnapshot(snap mapper.Snapshot, at time.Time) {
	text := s.Mapper.EncodeText()
	h := xxhash.Sum64(text)
	if s.stored && h == s.lastHash {
		return
	}
	if err := s.Store.RecordMapSnapshot(snapshotRecord(snap, at, text)); err != nil {
		monitoring.Logf("survey: failed to store map snapshot: %v", err)
		return
	}
	s.lastHash, s.stored = h, true
}

func snapshotRecord(snap mapper.Snapshot, at time.Time, text []byte) db.MapSnapshot {
	return db.MapSnapshot{
		ID:       uuid.NewString(),
		TakenAt:  at,
		Width:    snap.Width,
		Height:   snap.Height,
		OriginX:  snap.OriginX,
		OriginY:  snap.OriginY,
		Occupied: snap.Occupied,
		Text:     string(text),
	}
}

// Exclusive runs fn holding the cycle lock. Callers that refresh sensors
// outside a cycle use it so a cycle never sees its sweep replaced between
// Refresh and Readings.
func (s *Surveyor) Exclusive(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

// Cycles returns the number of successful cycles.
func (s *Surveyor) Cycles() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cycles
}

// Run calls Once on every tick of interval until ctx is cancelled. Cycle
// errors are logged and the loop continues.
func (s *Surveyor) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("survey: invalid interval %v", interval)
	}
	ticker := s.clock().NewTicker(interval)
	defer ticker.Stop()

	monitoring.Logf("survey: mapping every %v", interval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			res, err := s.Once(ctx)
			if err != nil {
				monitoring.Logf("survey: cycle failed: %v", err)
				continue
			}
			monitoring.Logf("survey: scan %s inserted %d (%d new) discarded %d, %d cells occupied",
				res.Scan.ID, res.Scan.Inserted, res.Scan.Changed, res.Scan.Discarded, res.Snapshot.Occupied)
		}
	}
}
