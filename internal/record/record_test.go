package record

import (
	"errors"
	"io"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/banshee-data/rangemap/internal/fsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteThenReadLines(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	rec := New(mfs)

	require.NoError(t, rec.Open("/data/log.txt", Write))
	assert.True(t, rec.IsOpen())
	assert.Equal(t, "/data/log.txt", rec.Name())
	require.NoError(t, rec.WriteLine("first"))
	require.NoError(t, rec.WriteLine("second line"))
	require.NoError(t, rec.Close())
	assert.False(t, rec.IsOpen())

	require.NoError(t, rec.Open("/data/log.txt", Read))
	line, err := rec.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "first", line)
	line, err = rec.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "second line", line)
	_, err = rec.ReadLine()
	assert.ErrorIs(t, err, io.EOF)
	require.NoError(t, rec.Close())
}

func TestAppendMode(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, WriteAll(mfs, "/a.txt", []string{"one"}))

	rec := New(mfs)
	require.NoError(t, rec.Open("/a.txt", Append))
	require.NoError(t, rec.WriteLine("two"))
	require.NoError(t, rec.Close())

	lines, err := ReadAll(mfs, "/a.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, lines)
}

func TestReadLine_LastLineWithoutNewline(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	mfs.WriteFile("/x.txt", []byte("a\r\nb"))
	lines, err := ReadAll(mfs, "/x.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, lines)
}

func TestNotOpen(t *testing.T) {
	rec := New(fsutil.NewMemoryFileSystem())
	_, err := rec.ReadLine()
	assert.ErrorIs(t, err, ErrNotOpen)
	assert.ErrorIs(t, rec.WriteLine("x"), ErrNotOpen)
	assert.NoError(t, rec.Close())

	// A file opened for writing cannot be read and vice versa.
	require.NoError(t, rec.Open("/w.txt", Write))
	_, err = rec.ReadLine()
	assert.ErrorIs(t, err, ErrNotOpen)
	require.NoError(t, rec.Open("/w.txt", Read))
	assert.ErrorIs(t, rec.WriteLine("x"), ErrNotOpen)
}

func TestOpenFailures(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	mfs.DenyWrites("/locked")
	rec := New(mfs)

	err := rec.Open("/missing.txt", Read)
	assert.True(t, errors.Is(err, fs.ErrNotExist), "got %v", err)
	err = rec.Open("/locked/map.txt", Write)
	assert.True(t, errors.Is(err, fs.ErrPermission), "got %v", err)
	assert.Error(t, rec.Open("/a.txt", Mode(42)))
	assert.False(t, rec.IsOpen())
}

func TestOSBackedRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.txt")
	require.NoError(t, WriteAll(nil, path, []string{"1 0 ", "0 1 "}))
	lines, err := ReadAll(nil, path)
	require.NoError(t, err)
	assert.Equal(t, []string{"1 0 ", "0 1 "}, lines)
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "read", Read.String())
	assert.Equal(t, "write", Write.String())
	assert.Equal(t, "append", Append.String())
	assert.Equal(t, "Mode(7)", Mode(7).String())
}
