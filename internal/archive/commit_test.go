package archive

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCommitDirectorySyncFailure(t *testing.T) {
	orig := syncDir
	syncDir = func(string) error { return errors.New("sync not supported") }
	defer func() { syncDir = orig }()

	var log bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&log, nil))
	out := filepath.Join(t.TempDir(), "out.jar")
	asm, err := Create(out, WithLogger(logger))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := asm.WriteEntry("a.txt", strings.NewReader("a")); err != nil {
		t.Fatal(err)
	}
	if err := asm.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("archive not in place: %v", err)
	}
	if !strings.Contains(log.String(), "sync not supported") {
		t.Errorf("sync failure not logged: %q", log.String())
	}
}
