// Package robotapi speaks the robot controller's line protocol over a serial
// port.
//
// Every exchange is one command line followed by one reply line:
//
//	LIDAR        -> <float>   next sample of the rotating range sensor
//	LIDAR RESET  -> OK        restart the rotation at beam 0
//	IR <ch>      -> <float>   proximity channel ch (0-8)
//	FWD | BACK   -> OK
//	LEFT | RIGHT -> OK
//	STOP         -> OK
//
// A reply beginning with ERR reports a device-side failure.
package robotapi

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

var (
	ErrNotConnected   = errors.New("robot link not connected")
	ErrWriteFailed    = errors.New("failed to write to serial port")
	ErrDeviceError    = errors.New("robot reported an error")
	ErrMalformedReply = errors.New("malformed reply from robot")
)

// Protocol commands.
const (
	CmdLidar    = "LIDAR"
	CmdReset    = "LIDAR RESET"
	CmdIR       = "IR"
	CmdForward  = "FWD"
	CmdBackward = "BACK"
	CmdLeft     = "LEFT"
	CmdRight    = "RIGHT"
	CmdStop     = "STOP"

	replyOK    = "OK"
	replyError = "ERR"
)

type reply struct {
	line string
	err  error
}

// Link is a request/response connection to the robot. Commands are
// serialised; only one is in flight at a time.
type Link struct {
	port   SerialPorter
	reader *bufio.Reader

	mu      sync.Mutex
	pending chan reply // reply abandoned by a cancelled command
	closed  atomic.Bool
}

// NewLink wraps an open port.
func NewLink(port SerialPorter) *Link {
	return &Link{
		port:   port,
		reader: bufio.NewReader(port),
	}
}

// Connected reports whether the link is usable.
func (l *Link) Connected() bool {
	return l != nil && l.port != nil && !l.closed.Load()
}

// Close closes the underlying port. Blocked commands fail once the port
// read returns.
func (l *Link) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	return l.port.Close()
}

// Command sends one raw command and returns the reply line. Cancelling ctx
// abandons the wait for the reply; the late reply is discarded before the
// next command is sent.
func (l *Link) Command(ctx context.Context, cmd string) (string, error) {
	if !l.Connected() {
		return "", ErrNotConnected
	}
	cmd = strings.TrimSpace(cmd)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pending != nil {
		select {
		case <-l.pending:
			l.pending = nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	line := cmd + "\n"
	n, err := l.port.Write([]byte(line))
	if err != nil {
		return "", fmt.Errorf("%s: %w: %v", cmd, ErrWriteFailed, err)
	}
	if n != len(line) {
		return "", fmt.Errorf("%s: %w: short write %d/%d", cmd, ErrWriteFailed, n, len(line))
	}

	ch := make(chan reply, 1)
	go func() {
		s, err := l.reader.ReadString('\n')
		if errors.Is(err, io.EOF) && s != "" {
			err = nil
		}
		ch <- reply{line: strings.TrimSpace(s), err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			if l.closed.Load() {
				return "", ErrNotConnected
			}
			return "", fmt.Errorf("%s: read reply: %w", cmd, r.err)
		}
		if strings.HasPrefix(r.line, replyError) {
			msg := strings.TrimSpace(strings.TrimPrefix(r.line, replyError))
			return "", fmt.Errorf("%s: %w: %s", cmd, ErrDeviceError, msg)
		}
		return r.line, nil
	case <-ctx.Done():
		l.pending = ch
		return "", ctx.Err()
	}
}

func (l *Link) float(ctx context.Context, cmd string) (float64, error) {
	s, err := l.Command(ctx, cmd)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%s: %w: %q", cmd, ErrMalformedReply, s)
	}
	return v, nil
}

func (l *Link) expectOK(ctx context.Context, cmd string) error {
	s, err := l.Command(ctx, cmd)
	if err != nil {
		return err
	}
	if s != replyOK {
		return fmt.Errorf("%s: %w: %q", cmd, ErrMalformedReply, s)
	}
	return nil
}

// LidarRange returns the next sample of the rotating range sensor.
func (l *Link) LidarRange(ctx context.Context) (float64, error) {
	return l.float(ctx, CmdLidar)
}

// IRRange returns the reading of one proximity channel.
func (l *Link) IRRange(ctx context.Context, channel int) (float64, error) {
	return l.float(ctx, fmt.Sprintf("%s %d", CmdIR, channel))
}

// ResetSweep rewinds the rotating range sensor so the next LIDAR reply is
// beam 0.
func (l *Link) ResetSweep(ctx context.Context) error { return l.expectOK(ctx, CmdReset) }

func (l *Link) MoveForward(ctx context.Context) error  { return l.expectOK(ctx, CmdForward) }
func (l *Link) MoveBackward(ctx context.Context) error { return l.expectOK(ctx, CmdBackward) }
func (l *Link) TurnLeft(ctx context.Context) error     { return l.expectOK(ctx, CmdLeft) }
func (l *Link) TurnRight(ctx context.Context) error    { return l.expectOK(ctx, CmdRight) }
func (l *Link) Stop(ctx context.Context) error         { return l.expectOK(ctx, CmdStop) }
