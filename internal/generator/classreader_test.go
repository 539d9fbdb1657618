package generator_test

import (
	"testing"

	"stubgen/internal/classtest"
)

type classFile struct {
	*classtest.ClassFile
}

func readClass(t *testing.T, data []byte) classFile {
	t.Helper()
	cf, err := classtest.Read(data)
	if err != nil {
		t.Fatalf("reading class file: %v", err)
	}
	return classFile{cf}
}

func (cf classFile) method(t *testing.T, name string) classtest.Member {
	t.Helper()
	m, ok := cf.Method(name)
	if !ok {
		t.Fatalf("method %s not found in %s", name, cf.This)
	}
	return m
}

func (cf classFile) field(t *testing.T, name string) classtest.Member {
	t.Helper()
	f, ok := cf.Field(name)
	if !ok {
		t.Fatalf("field %s not found in %s", name, cf.This)
	}
	return f
}
