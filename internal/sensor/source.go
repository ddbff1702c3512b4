// Package sensor holds the two range-sensor models fed by the robot hardware:
// a rotating range sensor (LiDAR) sweeping N bearing slots, and a fixed
// array of nine proximity (IR) channels.
//
// The two sensors deliberately have different error contracts. RangeSensor
// returns ErrIndexOutOfRange for a bad index; ProximitySensor and
// RangeSensor.BearingAt return the InvalidValue sentinel instead. Callers in
// the menu and HTTP layers depend on both behaviours.
package sensor

import (
	"context"
	"errors"
)

var (
	// ErrIndexOutOfRange is returned by RangeSensor accessors for an index
	// outside [0, N).
	ErrIndexOutOfRange = errors.New("sensor: index out of range")
	// ErrSourceUnavailable is returned by Refresh when there is no connected
	// hardware source. It is checked before any sample is pulled.
	ErrSourceUnavailable = errors.New("sensor: hardware source unavailable")
	// ErrEmptySensor is returned by Minimum and Maximum on a sensor with no
	// samples.
	ErrEmptySensor = errors.New("sensor: no samples")
)

// InvalidValue is the sentinel returned for out-of-domain proximity channels
// and bearings.
const InvalidValue = -1.0

// ProximityChannels is the fixed number of IR channels on the robot.
const ProximityChannels = 9

// RangeSource reports the distance at the rotating sensor's current
// orientation. Each call advances the sensor by one bearing slot.
type RangeSource interface {
	Connected() bool
	LidarRange(ctx context.Context) (float64, error)
}

// SweepResetter is implemented by range sources that can restart their
// rotation at bearing slot 0. Commands abandoned on cancellation, or sent
// outside Refresh, still advance the hardware, so Refresh resets such sources
// before every sweep to keep slot i on bearing i*(360/N).
type SweepResetter interface {
	ResetSweep(ctx context.Context) error
}

// ProximitySource reports the distance seen by one fixed-bearing channel.
type ProximitySource interface {
	Connected() bool
	IRRange(ctx context.Context, channel int) (float64, error)
}

// Reading is one polar observation in whole units: distance and bearing in
// degrees, as consumed by the mapper.
type Reading struct {
	Distance int `json:"distance"`
	Bearing  int `json:"bearing"`
}

func available(c interface{ Connected() bool }) bool {
	if c == nil {
		return false
	}
	return c.Connected()
}
