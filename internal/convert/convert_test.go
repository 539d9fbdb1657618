package convert_test

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/google/uuid"

	"stubgen/internal/archive"
	"stubgen/internal/classtest"
	"stubgen/internal/config"
	"stubgen/internal/convert"
	"stubgen/internal/dextest"
	"stubgen/internal/generator"
	"stubgen/internal/model"
)

var (
	outer = model.Class{
		Name:   "com/example/Outer",
		Access: model.AccPublic,
		Super:  "java/lang/Object",
		Methods: []model.Method{
			{Name: "<init>", Return: "V", Access: model.AccPublic | model.AccConstructor},
		},
	}
	inner = model.Class{
		Name:   "com/example/Outer$Inner",
		Access: model.AccPublic | model.AccStatic,
		Super:  "java/lang/Object",
		Inner:  &model.InnerInfo{Access: model.AccPublic | model.AccStatic, Name: "Inner"},
	}
	service = model.Class{
		Name:       "com/example/IService",
		Access:     model.AccPublic | model.AccInterface | model.AccAbstract,
		Super:      "java/lang/Object",
		Interfaces: []string{"android/os/IInterface"},
	}
	hidden = model.Class{
		Name:   "com/example/internal/Impl",
		Access: model.AccPublic,
		Super:  "java/lang/Object",
	}
)

func writeFile(t *testing.T, path string, data []byte) string {
	t.Helper()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func zipBytes(t *testing.T, pairs ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for i := 0; i+1 < len(pairs); i += 2 {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: pairs[i], Method: zip.Store})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := io.WriteString(w, pairs[i+1]); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func readJar(t *testing.T, path string) map[string][]byte {
	t.Helper()
	rc, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("opening %s: %v", path, err)
	}
	defer rc.Close()
	out := make(map[string][]byte)
	for _, f := range rc.File {
		r, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		b, err := io.ReadAll(r)
		r.Close()
		if err != nil {
			t.Fatal(err)
		}
		out[f.Name] = b
	}
	return out
}

func TestConvertNestedClasses(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.jar")
	asm, err := archive.Create(out)
	if err != nil {
		t.Fatal(err)
	}
	defer asm.Close()

	// The inner class comes first; nesting is still resolved.
	classes := []model.Class{inner, outer}
	var discovered []string
	written, err := convert.Convert(classes, generator.New(nil, nil), asm, func(c *model.Class) {
		discovered = append(discovered, c.Name)
	}, nil)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	want := []string{"com/example/Outer$Inner.class", "com/example/Outer.class"}
	if !reflect.DeepEqual(written, want) {
		t.Errorf("written = %v, want %v", written, want)
	}
	if len(discovered) != 2 {
		t.Errorf("discover called for %v", discovered)
	}
	if err := asm.Commit(); err != nil {
		t.Fatal(err)
	}

	entries := readJar(t, out)
	if len(entries) != 2 {
		t.Fatalf("output has %d entries", len(entries))
	}
	cf, err := classtest.Read(entries["com/example/Outer$Inner.class"])
	if err != nil {
		t.Fatal(err)
	}
	wantInner := []classtest.InnerEntry{{
		Inner: "com/example/Outer$Inner",
		Outer: "com/example/Outer",
		Name:  "Inner",
		Flags: uint16(model.AccPublic | model.AccStatic),
	}}
	if got := cf.InnerClasses(); !reflect.DeepEqual(got, wantInner) {
		t.Errorf("InnerClasses = %+v, want %+v", got, wantInner)
	}
}

func TestConvertDuplicateClassWrittenOnce(t *testing.T) {
	asm, err := archive.Create(filepath.Join(t.TempDir(), "out.jar"))
	if err != nil {
		t.Fatal(err)
	}
	defer asm.Close()
	written, err := convert.Convert([]model.Class{outer, outer}, generator.New(nil, nil), asm, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(written) != 1 {
		t.Errorf("written = %v", written)
	}
}

type recorder struct {
	labels []string
	done   int
}

func (r *recorder) Start(label string, total int) { r.labels = append(r.labels, label) }
func (r *recorder) Update(done int)               { r.done = done }
func (r *recorder) Finish()                       {}

func TestRunEndToEnd(t *testing.T) {
	dir := t.TempDir()
	apk := writeFile(t, filepath.Join(dir, "app.apk"), dextest.Container(
		[][]byte{dextest.Build(outer, service), dextest.Build(inner, hidden)},
		"AndroidManifest.xml", "<manifest/>",
	))
	prebuilt := writeFile(t, filepath.Join(dir, "prebuilt.jar"), zipBytes(t,
		"com/example/Outer.class", "prebuilt",
		"res/a.txt", "a",
	))
	declPrefix := "interface com.example.IExisting;\n"
	decl := writeFile(t, filepath.Join(dir, "framework.aidl"), []byte(declPrefix))
	out := filepath.Join(dir, "out", "stubs.jar")

	cfg := config.New()
	cfg.Options.ExcludePackages = []string{"com.example.internal"}
	progress := &recorder{}

	res, err := convert.Run(convert.Options{
		Inputs:   []string{apk},
		Archives: []string{prebuilt},
		Output:   out,
		Aidl:     decl,
		Config:   cfg,
		Progress: progress,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantStubs := []string{"com/example/Outer.class", "com/example/IService.class", "com/example/Outer$Inner.class"}
	if !reflect.DeepEqual(res.Stubs, wantStubs) {
		t.Errorf("Stubs = %v, want %v", res.Stubs, wantStubs)
	}
	// Outer.class from the prebuilt jar loses to the stub.
	if res.Merged != 1 || res.Entries != 4 {
		t.Errorf("Merged = %d, Entries = %d", res.Merged, res.Entries)
	}

	entries := readJar(t, out)
	if len(entries) != res.Entries {
		t.Errorf("output has %d entries, result says %d", len(entries), res.Entries)
	}
	cf, err := classtest.Read(entries["com/example/Outer.class"])
	if err != nil {
		t.Fatalf("Outer.class is not the stub: %v", err)
	}
	if cf.This != "com/example/Outer" {
		t.Errorf("Outer.class this = %s", cf.This)
	}
	if _, ok := entries["com/example/internal/Impl.class"]; ok {
		t.Error("excluded class was converted")
	}
	if _, ok := entries[archive.ManifestName]; ok || res.BuildID != uuid.Nil {
		t.Errorf("manifest written by default, build id %s", res.BuildID)
	}

	if want := []string{"com.example.IService"}; !reflect.DeepEqual(res.Declared, want) {
		t.Errorf("Declared = %v, want %v", res.Declared, want)
	}
	data, _ := os.ReadFile(decl)
	if want := declPrefix + "\n\ninterface com.example.IService;\n"; string(data) != want {
		t.Errorf("declaration file = %q, want %q", data, want)
	}

	wantLabels := []string{"Converting classes", "Merging " + prebuilt}
	if !reflect.DeepEqual(progress.labels, wantLabels) {
		t.Errorf("progress labels = %v, want %v", progress.labels, wantLabels)
	}
}

func TestRunIsRepeatable(t *testing.T) {
	dir := t.TempDir()
	dex := writeFile(t, filepath.Join(dir, "classes.dex"), dextest.Build(outer, service))
	decl := writeFile(t, filepath.Join(dir, "framework.aidl"), nil)
	out := filepath.Join(dir, "out.jar")
	on := true
	cfg := config.New()
	cfg.Options.Manifest = &on

	run := func() *convert.Result {
		t.Helper()
		res, err := convert.Run(convert.Options{Inputs: []string{dex}, Output: out, Aidl: decl, Config: cfg})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		return res
	}
	first := run()
	firstJar, _ := os.ReadFile(out)
	second := run()
	secondJar, _ := os.ReadFile(out)

	if len(first.Declared) != 1 || len(second.Declared) != 0 {
		t.Errorf("declared %v then %v", first.Declared, second.Declared)
	}
	if first.BuildID == uuid.Nil || first.BuildID != second.BuildID {
		t.Errorf("build id changed: %s vs %s", first.BuildID, second.BuildID)
	}
	if first.RunID == second.RunID {
		t.Error("runs share a run id")
	}
	if !bytes.Equal(firstJar, secondJar) {
		t.Error("identical runs produced different archives")
	}
}

func TestRunMergeFailureLeavesNoOutput(t *testing.T) {
	dir := t.TempDir()
	dex := writeFile(t, filepath.Join(dir, "classes.dex"), dextest.Build(outer))
	data := zipBytes(t, "bad.txt", "hello world")
	data[bytes.Index(data, []byte("hello world"))] = 'j'
	corrupt := writeFile(t, filepath.Join(dir, "corrupt.zip"), data)
	out := filepath.Join(dir, "out.jar")

	_, err := convert.Run(convert.Options{Inputs: []string{dex}, Archives: []string{corrupt}, Output: out})
	var ee *archive.EntryError
	if !errors.As(err, &ee) {
		t.Fatalf("got %v, want *archive.EntryError", err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("output exists after failed merge: %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Errorf("leftover files: %v", entries)
	}
}

func TestRunMalformedInput(t *testing.T) {
	dir := t.TempDir()
	bad := writeFile(t, filepath.Join(dir, "classes.dex"), []byte("dex\n035\x00 but nothing else"))
	out := filepath.Join(dir, "out.jar")
	if _, err := convert.Run(convert.Options{Inputs: []string{bad}, Output: out}); err == nil {
		t.Fatal("expected error")
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("output exists after failure: %v", err)
	}
}

func TestRunWithoutDeclarationFile(t *testing.T) {
	dir := t.TempDir()
	dex := writeFile(t, filepath.Join(dir, "classes.dex"), dextest.Build(service))
	res, err := convert.Run(convert.Options{
		Inputs: []string{dex},
		Output: filepath.Join(dir, "out.jar"),
		Aidl:   filepath.Join(dir, "missing.aidl"),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Interfaces) != 1 || res.Declared != nil {
		t.Errorf("Interfaces = %v, Declared = %v", res.Interfaces, res.Declared)
	}
}

func TestRunReconcileErrorAfterCommit(t *testing.T) {
	dir := t.TempDir()
	dex := writeFile(t, filepath.Join(dir, "classes.dex"), dextest.Build(service))
	out := filepath.Join(dir, "out.jar")
	declDir := filepath.Join(dir, "framework.aidl")
	if err := os.Mkdir(declDir, 0o755); err != nil {
		t.Fatal(err)
	}

	res, err := convert.Run(convert.Options{Inputs: []string{dex}, Output: out, Aidl: declDir})
	var re *convert.ReconcileError
	if !errors.As(err, &re) {
		t.Fatalf("got %v, want *ReconcileError", err)
	}
	if res == nil || len(res.Stubs) != 1 {
		t.Errorf("result = %+v", res)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("archive not committed: %v", err)
	}
}

func TestRunManifest(t *testing.T) {
	dir := t.TempDir()
	dex := writeFile(t, filepath.Join(dir, "classes.dex"), dextest.Build(outer))
	on := true
	cfg := config.New()
	cfg.Options.Manifest = &on

	tests := []struct {
		name        string
		archive     []string
		wantEntries int
		wantGen     bool
	}{
		{"generated", nil, 2, true},
		{"prebuilt wins", []string{archive.ManifestName, "Prebuilt: yes\r\n", "res/a.txt", "a"}, 3, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := filepath.Join(t.TempDir(), "out.jar")
			opts := convert.Options{Inputs: []string{dex}, Output: out, Config: cfg}
			if tt.archive != nil {
				opts.Archives = []string{writeFile(t, filepath.Join(t.TempDir(), "prebuilt.jar"), zipBytes(t, tt.archive...))}
			}
			res, err := convert.Run(opts)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			entries := readJar(t, out)
			if len(entries) != tt.wantEntries || res.Entries != tt.wantEntries {
				t.Errorf("entries = %d, result says %d, want %d", len(entries), res.Entries, tt.wantEntries)
			}
			manifest := string(entries[archive.ManifestName])
			if tt.wantGen {
				if !strings.Contains(manifest, "Stub-Build-Id: "+res.BuildID.String()) || res.BuildID == uuid.Nil {
					t.Errorf("manifest %q does not carry build id %s", manifest, res.BuildID)
				}
			} else if manifest != "Prebuilt: yes\r\n" || res.BuildID != uuid.Nil {
				t.Errorf("manifest = %q, build id %s", manifest, res.BuildID)
			}
		})
	}
}

func TestRunDefaultEntriesMatchSources(t *testing.T) {
	dir := t.TempDir()
	dex := writeFile(t, filepath.Join(dir, "classes.dex"), dextest.Build(outer))
	out := filepath.Join(dir, "out.jar")

	res, err := convert.Run(convert.Options{Inputs: []string{dex}, Output: out})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := readJar(t, out)[archive.ManifestName]; ok {
		t.Error("manifest written although not configured")
	}
	if res.Entries != 1 {
		t.Errorf("Entries = %d", res.Entries)
	}
}
