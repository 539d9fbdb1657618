// Package parser reads class definitions from Dalvik executable containers.
package parser

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"

	"stubgen/internal/model"
)

// FormatError reports malformed container content. Class is empty when the
// failure is not tied to one class definition.
type FormatError struct {
	Dex   string
	Class string
	Msg   string
}

func (e *FormatError) Error() string {
	if e.Class != "" {
		return fmt.Sprintf("%s: class %s: %s", e.Dex, e.Class, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Dex, e.Msg)
}

// Parser reads dex images and dex containers.
type Parser struct{}

// New creates a new Parser.
func New() *Parser {
	return &Parser{}
}

// ParseFile parses a .dex file, or an .apk/.jar/.zip container holding
// classes.dex, classes2.dex, ... entries, and returns its class definitions
// in container order.
func (p *Parser) ParseFile(path string) ([]model.Class, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	switch {
	case isDex(data):
		return p.Parse(data, path)
	case bytes.HasPrefix(data, []byte("PK\x03\x04")):
		zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		return p.ParseContainer(zr, path)
	default:
		return nil, &FormatError{Dex: path, Msg: "neither a dex image nor a zip container"}
	}
}

// ParseContainer parses every classes*.dex entry of a zip container, in
// multidex order (classes.dex, classes2.dex, ...).
func (p *Parser) ParseContainer(zr *zip.Reader, name string) ([]model.Class, error) {
	type dexEntry struct {
		n    int
		file *zip.File
	}
	var entries []dexEntry
	for _, f := range zr.File {
		if n, ok := multidexIndex(f.Name); ok {
			entries = append(entries, dexEntry{n, f})
		}
	}
	if len(entries) == 0 {
		return nil, &FormatError{Dex: name, Msg: "container holds no classes.dex"}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].n < entries[j].n })

	var classes []model.Class
	for _, e := range entries {
		data, err := readZipFile(e.file)
		if err != nil {
			return nil, fmt.Errorf("reading %s!%s: %w", name, e.file.Name, err)
		}
		cs, err := p.Parse(data, name+"!"+e.file.Name)
		if err != nil {
			return nil, err
		}
		classes = append(classes, cs...)
	}
	return classes, nil
}

// Parse parses one dex image. name identifies the image in errors.
func (p *Parser) Parse(data []byte, name string) ([]model.Class, error) {
	d, err := openDex(name, data)
	if err != nil {
		return nil, err
	}
	classes := make([]model.Class, 0, d.classDefsSize)
	for i := 0; i < d.classDefsSize; i++ {
		c, err := d.class(i)
		if err != nil {
			return nil, &FormatError{Dex: name, Class: c.Name, Msg: err.Error()}
		}
		classes = append(classes, c)
	}
	return classes, nil
}

// multidexIndex returns the position of a top-level classes*.dex entry.
func multidexIndex(name string) (int, bool) {
	if path.Dir(name) != "." {
		return 0, false
	}
	if !strings.HasPrefix(name, "classes") || !strings.HasSuffix(name, ".dex") {
		return 0, false
	}
	num := strings.TrimSuffix(strings.TrimPrefix(name, "classes"), ".dex")
	if num == "" {
		return 1, true
	}
	n, err := strconv.Atoi(num)
	if err != nil || n < 2 {
		return 0, false
	}
	return n, true
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
