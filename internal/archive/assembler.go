// Package archive assembles the output jar: generated stubs first, then the
// entries of supplementary archives, with at most one entry per name.
//
// The jar is written to a temporary file next to its destination and only
// renamed into place by Commit, so a failed run never leaves a partial
// archive behind.
package archive

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"stubgen/internal/generator"
)

var (
	// ErrStubsAfterMerge is returned by WriteStub once merging has started.
	ErrStubsAfterMerge = errors.New("archive: stub written after merge started")

	// ErrCommitted is returned by writes to an archive that was committed or closed.
	ErrCommitted = errors.New("archive: archive already committed or closed")
)

// EntryError reports an entry of a supplementary archive that could not be
// copied into the output.
type EntryError struct {
	Archive string
	Entry   string
	Err     error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("merging %s!%s: %v", e.Archive, e.Entry, e.Err)
}

func (e *EntryError) Unwrap() error { return e.Err }

// entryTime is the modification time of every entry, so that identical
// inputs produce identical archives.
var entryTime = time.Date(2008, time.January, 1, 0, 0, 0, 0, time.UTC)

// Option configures an Assembler.
type Option func(*Assembler)

// WithLogger sets the logger receiving skipped-entry and merge messages.
func WithLogger(l *slog.Logger) Option {
	return func(a *Assembler) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithMergeProgress registers fn to be called after each entry of a merged
// archive has been handled.
func WithMergeProgress(fn func(archive string, done, total int)) Option {
	return func(a *Assembler) { a.onMerge = fn }
}

// Assembler writes one output archive.
type Assembler struct {
	path    string
	tmp     *os.File
	zw      *zip.Writer
	names   *EntryNameSet
	stubs   hash.Hash
	logger  *slog.Logger
	onMerge func(archive string, done, total int)

	merging bool
	done    bool // committed or closed
}

// Create opens an assembler whose archive will be committed to path.
func Create(path string, opts ...Option) (*Assembler, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return nil, fmt.Errorf("creating temporary archive: %w", err)
	}
	a := &Assembler{
		path:   path,
		tmp:    tmp,
		zw:     zip.NewWriter(tmp),
		names:  NewEntryNameSet(),
		stubs:  sha256.New(),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Path returns the destination path of the archive.
func (a *Assembler) Path() string { return a.path }

// Names returns the entry names written so far, in write order.
func (a *Assembler) Names() []string { return a.names.Names() }

// WriteStub writes a generated class file. It reports false when an entry of
// the same name was already written.
func (a *Assembler) WriteStub(art generator.Artifact) (bool, error) {
	if a.merging {
		return false, ErrStubsAfterMerge
	}
	ok, err := a.WriteEntry(art.Name, bytes.NewReader(art.Data))
	if err != nil || !ok {
		return ok, err
	}
	a.stubs.Write([]byte(art.Name))
	a.stubs.Write([]byte{0})
	a.stubs.Write(art.Data)
	return true, nil
}

// WriteEntry copies r into a new entry called name unless that name was
// already written, in which case r is not read and false is returned.
func (a *Assembler) WriteEntry(name string, r io.Reader) (bool, error) {
	if a.done {
		return false, ErrCommitted
	}
	if !a.names.Claim(name) {
		a.logger.Debug("skipping duplicate entry", "entry", name)
		return false, nil
	}
	w, err := a.zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: entryTime,
	})
	if err != nil {
		return false, fmt.Errorf("creating entry %s: %w", name, err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return false, fmt.Errorf("writing entry %s: %w", name, err)
	}
	return true, nil
}

func (a *Assembler) writeDir(name string) (bool, error) {
	if a.done {
		return false, ErrCommitted
	}
	if !a.names.Claim(name) {
		return false, nil
	}
	_, err := a.zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Store,
		Modified: entryTime,
	})
	if err != nil {
		return false, fmt.Errorf("creating directory %s: %w", name, err)
	}
	return true, nil
}

// MergeArchive copies the entries of the zip archive at path that are not in
// the output yet. It returns the number of entries copied.
func (a *Assembler) MergeArchive(path string) (int, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer rc.Close()
	return a.MergeReader(&rc.Reader, path)
}

// MergeReader copies the entries of zr that are not in the output yet,
// streaming one entry at a time. name identifies the archive in errors.
func (a *Assembler) MergeReader(zr *zip.Reader, name string) (int, error) {
	if a.done {
		return 0, ErrCommitted
	}
	a.merging = true
	copied := 0
	for i, f := range zr.File {
		ok, err := a.mergeEntry(f, name)
		if err != nil {
			return copied, err
		}
		if ok {
			copied++
		}
		if a.onMerge != nil {
			a.onMerge(name, i+1, len(zr.File))
		}
	}
	a.logger.Debug("merged archive", "archive", name, "entries", len(zr.File), "copied", copied)
	return copied, nil
}

func (a *Assembler) mergeEntry(f *zip.File, archive string) (bool, error) {
	if a.names.Contains(f.Name) {
		a.logger.Debug("skipping duplicate entry", "archive", archive, "entry", f.Name)
		return false, nil
	}
	if strings.HasSuffix(f.Name, "/") {
		ok, err := a.writeDir(f.Name)
		if err != nil {
			return false, &EntryError{Archive: archive, Entry: f.Name, Err: err}
		}
		return ok, nil
	}
	rc, err := f.Open()
	if err != nil {
		return false, &EntryError{Archive: archive, Entry: f.Name, Err: err}
	}
	defer rc.Close()
	ok, err := a.WriteEntry(f.Name, rc)
	if err != nil {
		return false, &EntryError{Archive: archive, Entry: f.Name, Err: err}
	}
	return ok, nil
}

// Commit finishes the archive and moves it to its destination.
func (a *Assembler) Commit() error {
	if a.done {
		return ErrCommitted
	}
	a.done = true
	tmpName := a.tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = a.tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if err := a.zw.Close(); err != nil {
		return fmt.Errorf("finishing archive: %w", err)
	}
	if err := a.tmp.Chmod(0o644); err != nil {
		return err
	}
	if err := a.tmp.Sync(); err != nil {
		return err
	}
	if err := a.tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, a.path); err != nil {
		return fmt.Errorf("moving archive into place: %w", err)
	}
	committed = true
	// The archive is in place once renamed, so a sync failure is only logged.
	if err := syncDir(filepath.Dir(a.path)); err != nil {
		a.logger.Warn("syncing output directory", "path", a.path, "error", err)
	}
	return nil
}

// Close discards the archive unless it was committed. It is safe to call
// more than once and after Commit.
func (a *Assembler) Close() error {
	if a.done {
		return nil
	}
	a.done = true
	_ = a.tmp.Close()
	if err := os.Remove(a.tmp.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

var syncDir = fsyncDir

func fsyncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
