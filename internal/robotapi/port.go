package robotapi

import (
	"io"

	"go.bug.st/serial"
)

// SerialPorter is the minimal interface the link needs from a serial port.
// It lets the link run over real hardware, the simulator, or a test port.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// PortOpener opens a serial port. It matches serial.Open and can be replaced
// in tests.
type PortOpener func(path string, mode *serial.Mode) (serial.Port, error)

// Open opens the serial port at path and returns a Link speaking the robot
// protocol over it.
func Open(path string, opts PortOptions) (*Link, error) {
	return OpenWith(serial.Open, path, opts)
}

// OpenWith is Open with an explicit opener.
func OpenWith(open PortOpener, path string, opts PortOptions) (*Link, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := open(path, mode)
	if err != nil {
		return nil, err
	}
	return NewLink(port), nil
}
