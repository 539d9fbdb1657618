package model

import "strings"

// InternalName converts a class type descriptor ("La/b/C;") to an internal
// name ("a/b/C"). Array descriptors and primitives are returned unchanged.
func InternalName(descriptor string) string {
	if len(descriptor) >= 2 && descriptor[0] == 'L' && descriptor[len(descriptor)-1] == ';' {
		return descriptor[1 : len(descriptor)-1]
	}
	return descriptor
}

// Descriptor converts an internal name to a class type descriptor.
func Descriptor(internal string) string {
	return "L" + internal + ";"
}

// BinaryName returns the binary name of a class ("a/b/C$D" -> "a.b.C$D").
func BinaryName(internal string) string {
	return strings.ReplaceAll(internal, "/", ".")
}

// SourceName returns the fully-qualified source name of a class
// ("a/b/C$D" -> "a.b.C.D").
func SourceName(internal string) string {
	return strings.NewReplacer("/", ".", "$", ".").Replace(internal)
}

// PackageOf returns the package part of an internal name ("a/b/C" -> "a/b").
// Classes in the default package return "".
func PackageOf(internal string) string {
	if i := strings.LastIndexByte(internal, '/'); i >= 0 {
		return internal[:i]
	}
	return ""
}

// EntryName returns the archive entry path of a class ("a/b/C" -> "a/b/C.class").
func EntryName(internal string) string {
	return internal + ".class"
}
