// Package record provides line-oriented file access for map files and other
// plain-text artefacts.
package record

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/banshee-data/rangemap/internal/fsutil"
)

// Mode selects how a Record opens its file.
type Mode int

const (
	Read Mode = iota
	Write
	Append
)

func (m Mode) String() string {
	switch m {
	case Read:
		return "read"
	case Write:
		return "write"
	case Append:
		return "append"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

var (
	// ErrNotOpen is returned when reading or writing a Record with no file
	// open in a compatible mode.
	ErrNotOpen = errors.New("record: file not open")
)

// Record is a single open text file. The zero value is not usable; call New.
type Record struct {
	fs   fsutil.FileSystem
	name string
	mode Mode

	r      *bufio.Reader
	closer io.Closer
	w      *bufio.Writer
}

// New returns a Record backed by fsys. A nil fsys means the host filesystem.
func New(fsys fsutil.FileSystem) *Record {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	return &Record{fs: fsys}
}

// Name returns the path of the most recently opened file.
func (r *Record) Name() string { return r.name }

// IsOpen reports whether a file is currently open.
func (r *Record) IsOpen() bool { return r.closer != nil }

// Open opens name in the given mode, closing any file already open.
func (r *Record) Open(name string, mode Mode) error {
	if err := r.Close(); err != nil {
		return err
	}

	r.name = name
	r.mode = mode
	switch mode {
	case Read:
		f, err := r.fs.Open(name)
		if err != nil {
			return fmt.Errorf("open %s for %s: %w", name, mode, err)
		}
		r.r = bufio.NewReader(f)
		r.closer = f
	case Write, Append:
		var (
			wc  io.WriteCloser
			err error
		)
		if mode == Write {
			wc, err = r.fs.Create(name)
		} else {
			wc, err = r.fs.Append(name)
		}
		if err != nil {
			return fmt.Errorf("open %s for %s: %w", name, mode, err)
		}
		r.w = bufio.NewWriter(wc)
		r.closer = wc
	default:
		return fmt.Errorf("open %s: unsupported mode %v", name, mode)
	}
	return nil
}

// ReadLine returns the next line without its trailing newline (and carriage
// return). It returns io.EOF once the file is exhausted.
func (r *Record) ReadLine() (string, error) {
	if r.r == nil {
		return "", ErrNotOpen
	}
	line, err := r.r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimRight(line, "\r"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// WriteLine writes line followed by a newline.
func (r *Record) WriteLine(line string) error {
	if r.w == nil {
		return ErrNotOpen
	}
	if _, err := r.w.WriteString(line); err != nil {
		return err
	}
	return r.w.WriteByte('\n')
}

// Close flushes pending writes and closes the file. Closing a Record with
// nothing open is a no-op.
func (r *Record) Close() error {
	if r.closer == nil {
		return nil
	}
	var flushErr error
	if r.w != nil {
		flushErr = r.w.Flush()
	}
	closeErr := r.closer.Close()
	r.r, r.w, r.closer = nil, nil, nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// ReadAll returns every line of name.
func ReadAll(fsys fsutil.FileSystem, name string) ([]string, error) {
	rec := New(fsys)
	if err := rec.Open(name, Read); err != nil {
		return nil, err
	}
	defer rec.Close()

	var lines []string
	for {
		line, err := rec.ReadLine()
		if errors.Is(err, io.EOF) {
			return lines, nil
		}
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
}

// WriteAll replaces name with lines, one per line.
func WriteAll(fsys fsutil.FileSystem, name string, lines []string) error {
	rec := New(fsys)
	if err := rec.Open(name, Write); err != nil {
		return err
	}
	for _, line := range lines {
		if err := rec.WriteLine(line); err != nil {
			rec.Close()
			return err
		}
	}
	return rec.Close()
}
