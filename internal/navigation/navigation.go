// Package navigation gates robot motion on the proximity sensor.
package navigation

import (
	"context"
	"fmt"
	"sync"

	"github.com/banshee-data/rangemap/internal/monitoring"
	"github.com/banshee-data/rangemap/internal/sensor"
)

// DefaultSafeDistance is the clearance, in metres, required before moving.
const DefaultSafeDistance = 0.5

// Proximity channels used for each direction.
const (
	ForwardChannel  = 0
	BackwardChannel = 1
)

// State is the navigator's last motion decision.
type State int

const (
	Stopped State = iota
	Moving
)

func (s State) String() string {
	if s == Moving {
		return "MOVING"
	}
	return "STOP"
}

// MarshalText lets State appear by name in JSON.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Controller drives the robot.
type Controller interface {
	MoveForward(ctx context.Context) error
	MoveBackward(ctx context.Context) error
	Stop(ctx context.Context) error
}

// SafeNavigator moves the robot only when the proximity channel facing the
// direction of travel reports more than the safe distance.
type SafeNavigator struct {
	ir           *sensor.ProximitySensor
	ctrl         Controller
	safeDistance float64

	mu    sync.Mutex
	state State
}

// New returns a navigator. A non-positive safeDistance selects
// DefaultSafeDistance.
func New(ir *sensor.ProximitySensor, ctrl Controller, safeDistance float64) *SafeNavigator {
	if safeDistance <= 0 {
		safeDistance = DefaultSafeDistance
	}
	return &SafeNavigator{ir: ir, ctrl: ctrl, safeDistance: safeDistance}
}

// SafeDistance returns the configured clearance.
func (n *SafeNavigator) SafeDistance() float64 { return n.safeDistance }

// State returns the last decision.
func (n *SafeNavigator) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// MoveForwardSafe moves forward if channel 0 is clear, otherwise stops.
func (n *SafeNavigator) MoveForwardSafe(ctx context.Context) (State, error) {
	return n.move(ctx, ForwardChannel, "forward", n.ctrl.MoveForward)
}

// MoveBackwardSafe moves backward if channel 1 is clear, otherwise stops.
func (n *SafeNavigator) MoveBackwardSafe(ctx context.Context) (State, error) {
	return n.move(ctx, BackwardChannel, "backward", n.ctrl.MoveBackward)
}

func (n *SafeNavigator) move(ctx context.Context, channel int, dir string, drive func(context.Context) error) (State, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	// Readings are refreshed before every decision; a failed refresh stops
	// the robot.
	if err := n.ir.Refresh(ctx); err != nil {
		n.state = Stopped
		if stopErr := n.ctrl.Stop(ctx); stopErr != nil {
			monitoring.Logf("navigation: stop after sensor failure: %v", stopErr)
		}
		return n.state, fmt.Errorf("move %s: %w", dir, err)
	}

	clearance := n.ir.ChannelAt(channel)
	if clearance > n.safeDistance {
		if err := drive(ctx); err != nil {
			n.state = Stopped
			return n.state, fmt.Errorf("move %s: %w", dir, err)
		}
		n.state = Moving
		return n.state, nil
	}

	monitoring.Logf("navigation: obstacle %s at %.2f (safe distance %.2f), stopping", dir, clearance, n.safeDistance)
	n.state = Stopped
	if err := n.ctrl.Stop(ctx); err != nil {
		return n.state, fmt.Errorf("stop: %w", err)
	}
	return n.state, nil
}

// Stop halts the robot unconditionally.
func (n *SafeNavigator) Stop(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.state = Stopped
	return n.ctrl.Stop(ctx)
}
