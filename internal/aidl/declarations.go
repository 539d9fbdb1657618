package aidl

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ParseDeclarations reads a declaration file and returns the declared names
// in file order. A declaration is a line of the form "<keyword> <name>;",
// optionally preceded by annotations. Blank lines, "//" and "/* */"
// comments and lines of any other shape are ignored.
func ParseDeclarations(r io.Reader) ([]string, error) {
	var names []string
	inComment := false
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		var line string
		line, inComment = stripComments(sc.Text(), inComment)
		line = strings.TrimSpace(line)
		if !strings.HasSuffix(line, ";") {
			continue
		}
		fields := strings.Fields(strings.TrimSuffix(line, ";"))
		if len(fields) < 2 {
			continue
		}
		names = append(names, fields[len(fields)-1])
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return names, nil
}

// stripComments removes comments from line. inComment reports whether line
// starts inside a block comment; the returned flag reports whether the next
// line does.
func stripComments(line string, inComment bool) (string, bool) {
	var sb strings.Builder
	for len(line) > 0 {
		if inComment {
			end := strings.Index(line, "*/")
			if end < 0 {
				return sb.String(), true
			}
			line = line[end+2:]
			inComment = false
			sb.WriteByte(' ')
			continue
		}
		i := strings.IndexByte(line, '/')
		if i < 0 || i == len(line)-1 {
			sb.WriteString(line)
			break
		}
		switch line[i+1] {
		case '/':
			sb.WriteString(line[:i])
			return sb.String(), false
		case '*':
			sb.WriteString(line[:i])
			line = line[i+2:]
			inComment = true
		default:
			sb.WriteString(line[:i+1])
			line = line[i+1:]
		}
	}
	return sb.String(), inComment
}

// Render produces one forward declaration per name.
func Render(names []string, keyword string) string {
	var sb strings.Builder
	for _, n := range names {
		sb.WriteString(keyword)
		sb.WriteByte(' ')
		sb.WriteString(n)
		sb.WriteString(";\n")
	}
	return sb.String()
}

// Reconcile appends a declaration to the file at path for every discovered
// name it does not declare yet, after a blank separator line. Existing
// content is left untouched. It returns the appended names; when nothing is
// missing the file is not modified.
func Reconcile(path string, discovered []string, keyword string) ([]string, error) {
	declared, err := readDeclarations(path)
	if err != nil {
		return nil, err
	}
	m := NewMerger()
	m.Load(declared)
	for _, n := range discovered {
		m.Discover(n)
	}
	missing := m.Missing()
	if len(missing) == 0 {
		return nil, nil
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return nil, fmt.Errorf("opening declaration file: %w", err)
	}
	_, werr := io.WriteString(f, "\n\n"+Render(missing, keyword))
	if err := errors.Join(werr, f.Close()); err != nil {
		return nil, fmt.Errorf("appending declarations: %w", err)
	}
	return missing, nil
}

func readDeclarations(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening declaration file: %w", err)
	}
	defer f.Close()
	names, err := ParseDeclarations(f)
	if err != nil {
		return nil, fmt.Errorf("reading declaration file: %w", err)
	}
	return names, nil
}
