// Package convert drives a conversion run: dex inputs are turned into stubs,
// written to the output jar together with supplementary archives, and the
// AIDL interfaces found on the way are reconciled with a declaration file.
package convert

import (
	"fmt"

	"stubgen/internal/aidl"
	"stubgen/internal/archive"
	"stubgen/internal/generator"
	"stubgen/internal/model"
)

// ReconcileError reports a failure to update the AIDL declaration file. The
// output archive has already been committed when it is returned.
type ReconcileError struct {
	Path string
	Err  error
}

func (e *ReconcileError) Error() string {
	return fmt.Sprintf("reconciling %s: %v", e.Path, e.Err)
}

func (e *ReconcileError) Unwrap() error { return e.Err }

// Convert registers every class with gen, then emits and writes one stub per
// class. discover, when non-nil, is called for each emitted class. It returns
// the entry names that were written; duplicate class names are written once.
func Convert(classes []model.Class, gen *generator.Generator, asm *archive.Assembler, discover func(*model.Class), progress Progress) ([]string, error) {
	if progress == nil {
		progress = NopProgress{}
	}
	for i := range classes {
		if err := gen.Expect(classes[i]); err != nil {
			return nil, err
		}
	}

	progress.Start("Converting classes", len(classes))
	defer progress.Finish()

	var written []string
	for i := range classes {
		c := &classes[i]
		art, err := gen.Emit(*c)
		if err != nil {
			return written, err
		}
		ok, err := asm.WriteStub(art)
		if err != nil {
			return written, fmt.Errorf("writing stub for %s: %w", c.Name, err)
		}
		if ok {
			written = append(written, art.Name)
		}
		if discover != nil {
			discover(c)
		}
		progress.Update(i + 1)
	}
	return written, nil
}

// Merge copies the entries of each supplementary archive, in order, into the
// output. Entries whose names are already taken are skipped. It returns the
// number of entries copied.
func Merge(asm *archive.Assembler, archives []string) (int, error) {
	total := 0
	for _, path := range archives {
		n, err := asm.MergeArchive(path)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// ReconcileInterfaces appends declarations for the discovered interface
// names missing from the declaration file at path.
func ReconcileInterfaces(path string, names []string, keyword string) ([]string, error) {
	added, err := aidl.Reconcile(path, names, keyword)
	if err != nil {
		return nil, &ReconcileError{Path: path, Err: err}
	}
	return added, nil
}
