package robotapi

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
)

// Room is an axis-aligned rectangle of walls, in grid units.
type Room struct {
	MinX, MinY float64
	MaxX, MaxY float64
}

// Contains reports whether (x, y) lies strictly inside the room.
func (r Room) Contains(x, y float64) bool {
	return x > r.MinX && x < r.MaxX && y > r.MinY && y < r.MaxY
}

// proximityBearings is the mounting bearing of each proximity channel,
// relative to the robot heading. Channel 0 faces forward and channel 1
// backward; channel 8 is a second forward-facing emitter.
var proximityBearings = [9]float64{0, 180, 45, 90, 135, 225, 270, 315, 0}

// SimulatorConfig describes a simulated robot.
type SimulatorConfig struct {
	Room Room
	// X and Y are the starting position, Heading the starting heading in
	// degrees.
	X, Y, Heading float64
	// LidarSamples is the number of beams per revolution.
	LidarSamples int
	// IRMaxRange caps proximity readings.
	IRMaxRange float64
	// Step is how far one FWD or BACK command moves the robot.
	Step float64
}

// Simulator is an in-process robot answering the line protocol. Lidar
// bearings are in the room frame; each LIDAR command returns the next beam
// of the revolution. Proximity bearings follow the robot heading.
type Simulator struct {
	mu   sync.Mutex
	cond *sync.Cond
	cfg  SimulatorConfig

	x, y, heading float64
	beam          int

	carry  string
	out    bytes.Buffer
	closed bool
}

// NewSimulator returns a simulator in the given configuration. Zero values
// for LidarSamples, IRMaxRange and Step get defaults of 360, 1.5 and 1.
func NewSimulator(cfg SimulatorConfig) *Simulator {
	if cfg.LidarSamples <= 0 {
		cfg.LidarSamples = 360
	}
	if cfg.IRMaxRange <= 0 {
		cfg.IRMaxRange = 1.5
	}
	if cfg.Step <= 0 {
		cfg.Step = 1
	}
	s := &Simulator{cfg: cfg, x: cfg.X, y: cfg.Y, heading: cfg.Heading}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Position returns the robot position and heading.
func (s *Simulator) Position() (x, y, heading float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.x, s.y, s.heading
}

// WallDistance returns the distance from (x, y) to the nearest wall along
// bearing degrees (room frame).
func (r Room) WallDistance(x, y, bearing float64) float64 {
	rad := bearing * math.Pi / 180
	dx, dy := math.Cos(rad), math.Sin(rad)
	best := math.Inf(1)
	const eps = 1e-12
	if dx > eps {
		best = math.Min(best, (r.MaxX-x)/dx)
	} else if dx < -eps {
		best = math.Min(best, (r.MinX-x)/dx)
	}
	if dy > eps {
		best = math.Min(best, (r.MaxY-y)/dy)
	} else if dy < -eps {
		best = math.Min(best, (r.MinY-y)/dy)
	}
	return math.Max(best, 0)
}

func (s *Simulator) lidar() string {
	bearing := float64(s.beam) * 360.0 / float64(s.cfg.LidarSamples)
	s.beam = (s.beam + 1) % s.cfg.LidarSamples
	return strconv.FormatFloat(s.cfg.Room.WallDistance(s.x, s.y, bearing), 'f', 4, 64)
}

func (s *Simulator) proximity(ch int) float64 {
	d := s.cfg.Room.WallDistance(s.x, s.y, s.heading+proximityBearings[ch])
	return math.Min(d, s.cfg.IRMaxRange)
}

func (s *Simulator) move(sign float64) string {
	rad := s.heading * math.Pi / 180
	nx := s.x + sign*s.cfg.Step*math.Cos(rad)
	ny := s.y + sign*s.cfg.Step*math.Sin(rad)
	if !s.cfg.Room.Contains(nx, ny) {
		return replyError + " blocked"
	}
	s.x, s.y = nx, ny
	return replyOK
}

func (s *Simulator) turn(deg float64) string {
	s.heading = math.Mod(s.heading+deg+360, 360)
	return replyOK
}

func (s *Simulator) handle(cmd string) string {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return replyError + " empty command"
	}
	switch fields[0] {
	case CmdLidar:
		if len(fields) == 2 && fields[1] == "RESET" {
			s.beam = 0
			return replyOK
		}
		if len(fields) != 1 {
			return replyError + " usage: LIDAR [RESET]"
		}
		return s.lidar()
	case CmdIR:
		if len(fields) != 2 {
			return replyError + " usage: IR <channel>"
		}
		ch, err := strconv.Atoi(fields[1])
		if err != nil || ch < 0 || ch >= len(proximityBearings) {
			return fmt.Sprintf("%s bad channel %q", replyError, fields[1])
		}
		return strconv.FormatFloat(s.proximity(ch), 'f', 4, 64)
	case CmdForward:
		return s.move(1)
	case CmdBackward:
		return s.move(-1)
	case CmdLeft:
		return s.turn(-90)
	case CmdRight:
		return s.turn(90)
	case CmdStop:
		return replyOK
	default:
		return fmt.Sprintf("%s unknown command %q", replyError, fields[0])
	}
}

func (s *Simulator) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errPortClosed
	}
	lines := strings.Split(s.carry+string(p), "\n")
	s.carry = lines[len(lines)-1]
	for _, cmd := range lines[:len(lines)-1] {
		s.out.WriteString(s.handle(strings.TrimSpace(cmd)) + "\n")
	}
	s.cond.Broadcast()
	return len(p), nil
}

func (s *Simulator) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for !s.closed && s.out.Len() == 0 {
		s.cond.Wait()
	}
	if s.out.Len() == 0 {
		return 0, errPortClosed
	}
	return s.out.Read(p)
}

func (s *Simulator) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cond.Broadcast()
	return nil
}
