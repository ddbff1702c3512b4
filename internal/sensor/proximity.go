package sensor

import (
	"context"
	"fmt"
	"sync"
)

// ProximitySensor holds the nine fixed-bearing IR channels. Channel 0 faces
// forward and channel 1 faces backward; the rest ring the chassis.
type ProximitySensor struct {
	src ProximitySource

	mu       sync.RWMutex
	channels [ProximityChannels]float64
}

// NewProximitySensor returns a sensor with all channels at zero.
func NewProximitySensor(src ProximitySource) *ProximitySensor {
	return &ProximitySensor{src: src}
}

// SensorType names the sensor for display and persistence.
func (s *ProximitySensor) SensorType() string { return "ir" }

// Refresh reads every channel once, in channel order. Like RangeSensor it
// refuses to start without a connected source.
func (s *ProximitySensor) Refresh(ctx context.Context) error {
	if !available(s.src) {
		return ErrSourceUnavailable
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := 0; ch < ProximityChannels; ch++ {
		v, err := s.src.IRRange(ctx, ch)
		if err != nil {
			return fmt.Errorf("ir channel %d: %w", ch, err)
		}
		s.channels[ch] = v
	}
	return nil
}

// ChannelAt returns the last value read on channel i, or InvalidValue for an
// index outside [0, 9).
func (s *ProximitySensor) ChannelAt(i int) float64 {
	if i < 0 || i >= ProximityChannels {
		return InvalidValue
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.channels[i]
}

// At mirrors ChannelAt.
func (s *ProximitySensor) At(i int) float64 {
	return s.ChannelAt(i)
}

// Channels returns a copy of all channel values.
func (s *ProximitySensor) Channels() []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]float64, ProximityChannels)
	copy(out, s.channels[:])
	return out
}
