// Package artifact implements the pending/finalized file protocol.
//
// An artifact path is always in one of three states: absent, pending
// (a writer is producing it, or a prior run was interrupted) or finalized.
// Only the existence of the finalized file marks completion; pending files
// become finalized by an atomic rename within the same directory.
package artifact

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// State is the observable on-disk state of an artifact.
type State int

const (
	Absent State = iota
	Pending
	Finalized
)

func (s State) String() string {
	switch s {
	case Absent:
		return "absent"
	case Pending:
		return "pending"
	case Finalized:
		return "finalized"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Artifact pairs a finalized path with its transient pending path.
type Artifact struct {
	Final   string
	Pending string
}

// State reports the artifact's state. A finalized file wins over a leftover pending one.
func (a Artifact) State() (State, error) {
	ok, err := exists(a.Final)
	if err != nil {
		return Absent, err
	}
	if ok {
		return Finalized, nil
	}

	ok, err = exists(a.Pending)
	if err != nil {
		return Absent, err
	}
	if ok {
		return Pending, nil
	}
	return Absent, nil
}

// Finalized reports whether the finalized file exists.
// Stat errors other than not-exist are treated as not finalized.
func (a Artifact) Finalized() bool {
	ok, _ := exists(a.Final)
	return ok
}

// ClearPending removes a stale pending file, if any, and creates the parent directory.
func (a Artifact) ClearPending() error {
	if err := os.MkdirAll(filepath.Dir(a.Pending), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", a.Pending, err)
	}
	if err := os.Remove(a.Pending); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove stale %s: %w", a.Pending, err)
	}
	return nil
}

// Begin discards any stale pending file and opens a fresh one for writing.
func (a Artifact) Begin() (*Writer, error) {
	if err := a.ClearPending(); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(a.Pending, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", a.Pending, err)
	}
	return &Writer{artifact: a, f: f}, nil
}

// Commit atomically renames the pending file to the finalized name.
func (a Artifact) Commit() error {
	if err := os.Rename(a.Pending, a.Final); err != nil {
		return fmt.Errorf("finalize %s: %w", a.Final, err)
	}
	return syncDir(filepath.Dir(a.Final))
}

// Remove deletes the finalized file. A missing file is not an error.
func (a Artifact) Remove() error {
	if err := os.Remove(a.Final); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", a.Final, err)
	}
	return nil
}

// Writer streams content into an artifact's pending file.
// It is owned by a single goroutine.
type Writer struct {
	artifact Artifact
	f        *os.File
	closed   bool
	n        int64
}

func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.f.Write(p)
	w.n += int64(n)
	return n, err
}

// ReadFrom lets io.Copy use the file's fast path.
func (w *Writer) ReadFrom(r io.Reader) (int64, error) {
	n, err := w.f.ReadFrom(r)
	w.n += n
	return n, err
}

// Written returns the number of bytes written so far.
func (w *Writer) Written() int64 {
	return w.n
}

// Path returns the pending path being written.
func (w *Writer) Path() string {
	return w.artifact.Pending
}

// Close flushes the pending file to stable storage and closes it.
// Closing twice is a no-op.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.f.Sync(); err != nil {
		w.f.Close()
		return fmt.Errorf("sync %s: %w", w.artifact.Pending, err)
	}
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", w.artifact.Pending, err)
	}
	return nil
}

// Commit closes the writer if needed and finalizes the artifact.
func (w *Writer) Commit() error {
	if err := w.Close(); err != nil {
		return err
	}
	return w.artifact.Commit()
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open directory %s: %w", dir, err)
	}
	defer d.Close()

	// Best effort: not every filesystem supports fsync on a directory.
	_ = d.Sync()
	return nil
}
