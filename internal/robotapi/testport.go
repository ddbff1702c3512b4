package robotapi

import (
	"bytes"
	"errors"
	"strings"
	"sync"
)

var errPortClosed = errors.New("serial port closed")

// TestablePort implements SerialPorter with scripted replies for tests.
// Each command written to the port is looked up in the script; the matching
// replies are queued in order. A command with no script entry gets no reply,
// so the next read blocks until Close or AddReadData.
type TestablePort struct {
	mu   sync.Mutex
	cond *sync.Cond

	script map[string][]string
	read   bytes.Buffer
	carry  string

	// Commands records every command line written, without its newline.
	Commands []string

	// WriteError is returned by the next Write call if set.
	WriteError error

	// ShortWrite makes Write report one byte fewer than it was given.
	ShortWrite bool

	// CloseError is returned by Close if set.
	CloseError error

	closed bool
}

// NewTestablePort returns an empty TestablePort.
func NewTestablePort() *TestablePort {
	p := &TestablePort{script: make(map[string][]string)}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Respond queues reply lines for cmd. Replies are consumed one per write of
// cmd; the last reply repeats once the queue is down to one.
func (p *TestablePort) Respond(cmd string, replies ...string) *TestablePort {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.script[cmd] = append(p.script[cmd], replies...)
	return p
}

// AddReadData makes data available to readers directly.
func (p *TestablePort) AddReadData(data string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.read.WriteString(data)
	p.cond.Broadcast()
}

func (p *TestablePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, errPortClosed
	}
	if p.WriteError != nil {
		err := p.WriteError
		p.WriteError = nil
		return 0, err
	}

	data := p.carry + string(b)
	lines := strings.Split(data, "\n")
	p.carry = lines[len(lines)-1]
	for _, cmd := range lines[:len(lines)-1] {
		cmd = strings.TrimSpace(cmd)
		p.Commands = append(p.Commands, cmd)
		replies := p.script[cmd]
		if len(replies) == 0 {
			continue
		}
		p.read.WriteString(replies[0] + "\n")
		if len(replies) > 1 {
			p.script[cmd] = replies[1:]
		}
	}
	p.cond.Broadcast()

	if p.ShortWrite && len(b) > 0 {
		return len(b) - 1, nil
	}
	return len(b), nil
}

func (p *TestablePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for !p.closed && p.read.Len() == 0 {
		p.cond.Wait()
	}
	if p.read.Len() == 0 {
		return 0, errPortClosed
	}
	return p.read.Read(b)
}

// Close marks the port closed and wakes blocked readers.
func (p *TestablePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.cond.Broadcast()
	return p.CloseError
}

// Closed reports whether Close was called.
func (p *TestablePort) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Written returns a copy of the recorded commands.
func (p *TestablePort) Written() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.Commands...)
}
