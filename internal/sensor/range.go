package sensor

import (
	"context"
	"fmt"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// RangeSensor stores one sweep of a rotating range sensor: N distance samples
// spanning 360 degrees, sample i taken at bearing i*(360/N).
type RangeSensor struct {
	src RangeSource
	n   int

	mu      sync.RWMutex
	samples []float64 // len = n, allocated once
}

// NewRangeSensor returns a sensor with n zeroed samples reading from src.
// src may be nil, in which case Refresh reports ErrSourceUnavailable.
func NewRangeSensor(src RangeSource, n int) *RangeSensor {
	if n < 0 {
		n = 0
	}
	return &RangeSensor{
		src:     src,
		n:       n,
		samples: make([]float64, n),
	}
}

// SensorType names the sensor for display and persistence.
func (s *RangeSensor) SensorType() string { return "lidar" }

// Len returns N, the number of bearing slots.
func (s *RangeSensor) Len() int { return s.n }

// Refresh pulls N fresh samples from the source in increasing bearing order,
// overwriting the stored sweep in place. The source is checked before the
// first pull, and a source implementing SweepResetter is rewound to bearing
// 0. If the source fails part way, samples already pulled are kept and the
// error is returned.
func (s *RangeSensor) Refresh(ctx context.Context) error {
	if !available(s.src) {
		return ErrSourceUnavailable
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.src.(SweepResetter); ok {
		if err := r.ResetSweep(ctx); err != nil {
			return fmt.Errorf("lidar sweep reset: %w", err)
		}
	}
	for i := 0; i < s.n; i++ {
		v, err := s.src.LidarRange(ctx)
		if err != nil {
			return fmt.Errorf("lidar sample %d/%d: %w", i, s.n, err)
		}
		s.samples[i] = v
	}
	return nil
}

// RangeAt returns sample i, or ErrIndexOutOfRange.
func (s *RangeSensor) RangeAt(i int) (float64, error) {
	if i < 0 || i >= s.n {
		return 0, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, i, s.n)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.samples[i], nil
}

// At is the indexed accessor; it behaves exactly like RangeAt.
func (s *RangeSensor) At(i int) (float64, error) {
	return s.RangeAt(i)
}

// BearingAt returns the bearing of slot i in degrees, or InvalidValue when i
// is outside [0, N). Unlike RangeAt this never fails.
func (s *RangeSensor) BearingAt(i int) float64 {
	if i < 0 || i >= s.n {
		return InvalidValue
	}
	return float64(i) * (360.0 / float64(s.n))
}

// Minimum returns the smallest sample and its index. Ties go to the lowest
// index.
func (s *RangeSensor) Minimum() (float64, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.n == 0 {
		return 0, -1, ErrEmptySensor
	}
	i := floats.MinIdx(s.samples)
	return s.samples[i], i, nil
}

// Maximum returns the largest sample and its index. Ties go to the lowest
// index.
func (s *RangeSensor) Maximum() (float64, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.n == 0 {
		return 0, -1, ErrEmptySensor
	}
	i := floats.MaxIdx(s.samples)
	return s.samples[i], i, nil
}

// Samples returns a copy of the current sweep.
func (s *RangeSensor) Samples() []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]float64, s.n)
	copy(out, s.samples)
	return out
}

// Readings converts the sweep into (distance, bearing) pairs for the mapper.
// Both values are truncated toward zero.
func (s *RangeSensor) Readings() []Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Reading, s.n)
	for i, d := range s.samples {
		out[i] = Reading{
			Distance: int(d),
			Bearing:  int(float64(i) * (360.0 / float64(s.n))),
		}
	}
	return out
}

// Summary describes one sweep.
type Summary struct {
	Samples  int     `json:"samples"`
	Min      float64 `json:"min"`
	MinIndex int     `json:"min_index"`
	Max      float64 `json:"max"`
	MaxIndex int     `json:"max_index"`
	Mean     float64 `json:"mean"`
	StdDev   float64 `json:"std_dev"`
}

// Summary returns extrema and spread of the current sweep. It fails with
// ErrEmptySensor when N is zero.
func (s *RangeSensor) Summary() (Summary, error) {
	minV, minI, err := s.Minimum()
	if err != nil {
		return Summary{}, err
	}
	maxV, maxI, err := s.Maximum()
	if err != nil {
		return Summary{}, err
	}
	samples := s.Samples()
	mean, std := stat.MeanStdDev(samples, nil)
	if len(samples) < 2 {
		std = 0
	}
	return Summary{
		Samples:  len(samples),
		Min:      minV,
		MinIndex: minI,
		Max:      maxV,
		MaxIndex: maxI,
		Mean:     mean,
		StdDev:   std,
	}, nil
}
