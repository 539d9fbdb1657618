package main

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"stubgen/internal/dextest"
	"stubgen/internal/model"
)

func TestParseCommaSeparated(t *testing.T) {
	got := parseCommaSeparated(" a, b ,,c ")
	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestListFlag(t *testing.T) {
	var l listFlag
	for _, v := range []string{"a.dex", "b.dex,c.dex"} {
		if err := l.Set(v); err != nil {
			t.Fatal(err)
		}
	}
	if want := []string{"a.dex", "b.dex", "c.dex"}; !reflect.DeepEqual([]string(l), want) {
		t.Errorf("got %v, want %v", l, want)
	}
	if l.String() != "a.dex,b.dex,c.dex" {
		t.Errorf("String() = %q", l.String())
	}
}

func TestRunValidation(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no input", []string{"-o", filepath.Join(dir, "out.jar")}, "dex input is required"},
		{"no output", []string{"-d", "x.dex"}, "output file is required"},
		{"missing input", []string{"-d", filepath.Join(dir, "none.dex"), "-o", filepath.Join(dir, "out.jar")}, "input file not found"},
		{"stray argument", []string{"-d", "x.dex", "-o", "out.jar", "extra"}, "unexpected argument"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := run(tt.args, &bytes.Buffer{})
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("run(%v) = %v, want error containing %q", tt.args, err, tt.want)
			}
		})
	}
}

func TestRunHelp(t *testing.T) {
	var stderr bytes.Buffer
	if err := run([]string{"-h"}, &stderr); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stderr.String(), "Usage:") {
		t.Errorf("help output = %q", stderr.String())
	}
}

func TestRunConverts(t *testing.T) {
	dir := t.TempDir()
	dex := filepath.Join(dir, "classes.dex")
	classes := []model.Class{
		{Name: "com/example/Api", Access: model.AccPublic, Super: "java/lang/Object"},
		{Name: "com/example/hidden/Impl", Access: model.AccPublic, Super: "java/lang/Object"},
	}
	if err := os.WriteFile(dex, dextest.Build(classes...), 0o644); err != nil {
		t.Fatal(err)
	}
	cfgPath := filepath.Join(dir, "stubgen.yaml")
	if err := os.WriteFile(cfgPath, []byte("options:\n  stubMessage: not here\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "out.jar")

	var stderr bytes.Buffer
	err := run([]string{"-d", dex, "-o", out, "-c", cfgPath, "-X", "com.example.hidden", "-p", "-v"}, &stderr)
	if err != nil {
		t.Fatalf("run: %v\n%s", err, stderr.String())
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("output missing: %v", err)
	}
	log := stderr.String()
	if !strings.Contains(log, "Generated 1 stubs") {
		t.Errorf("summary missing from output:\n%s", log)
	}
	if !strings.Contains(log, "Converting classes") {
		t.Errorf("progress missing from output:\n%s", log)
	}
}

func TestBarProgress(t *testing.T) {
	var buf bytes.Buffer
	p := newBarProgress(&buf)
	p.Start("Merging res.jar", 4)
	for i := 1; i <= 4; i++ {
		p.Update(i)
	}
	p.Finish()
	out := buf.String()
	if !strings.Contains(out, "Merging res.jar") || !strings.Contains(out, "100%") {
		t.Errorf("unexpected progress output %q", out)
	}
	if !strings.HasSuffix(out, "\n") {
		t.Error("Finish did not end the line")
	}
}
