// Package classtest reads the parts of JVM class files that tests inspect.
package classtest

import (
	"encoding/binary"
	"fmt"
)

// Constant pool tags.
const (
	TagUtf8        = 1
	TagInteger     = 3
	TagFloat       = 4
	TagLong        = 5
	TagDouble      = 6
	TagClass       = 7
	TagString      = 8
	TagMethodref   = 10
	TagNameAndType = 12
)

// ClassFile is a parsed class file.
type ClassFile struct {
	Major      uint16
	Pool       []Constant
	Access     uint16
	This       string
	Super      string
	Interfaces []string
	Fields     []Member
	Methods    []Member
	Attrs      map[string][]byte
}

// Constant is one constant pool entry. A and B hold index operands, S the
// text of Utf8 entries and V the bits of numeric entries.
type Constant struct {
	Tag  byte
	A, B uint16
	S    string
	V    uint64
}

// Member is a field or method.
type Member struct {
	Access uint16
	Name   string
	Desc   string
	Attrs  map[string][]byte
}

// InnerEntry is one row of an InnerClasses attribute, with indices resolved.
type InnerEntry struct {
	Inner, Outer, Name string
	Flags              uint16
}

type reader struct {
	b   []byte
	off int
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return make([]byte, n)
	}
	if r.off+n > len(r.b) {
		r.err = fmt.Errorf("truncated at %d (+%d of %d)", r.off, n, len(r.b))
		return make([]byte, n)
	}
	s := r.b[r.off : r.off+n]
	r.off += n
	return s
}

func (r *reader) u1() byte   { return r.take(1)[0] }
func (r *reader) u2() uint16 { return binary.BigEndian.Uint16(r.take(2)) }
func (r *reader) u4() uint32 { return binary.BigEndian.Uint32(r.take(4)) }

// Read parses a class file.
func Read(data []byte) (*ClassFile, error) {
	r := &reader{b: data}
	if magic := r.u4(); r.err == nil && magic != 0xcafebabe {
		return nil, fmt.Errorf("bad magic %#x", magic)
	}
	r.u2()
	cf := &ClassFile{Major: r.u2()}

	n := int(r.u2())
	cf.Pool = make([]Constant, n)
	for i := 1; i < n && r.err == nil; i++ {
		c := Constant{Tag: r.u1()}
		switch c.Tag {
		case TagUtf8:
			c.S = string(r.take(int(r.u2())))
		case TagInteger, TagFloat:
			c.V = uint64(r.u4())
		case TagLong, TagDouble:
			c.V = uint64(r.u4())<<32 | uint64(r.u4())
		case TagClass, TagString:
			c.A = r.u2()
		case TagMethodref, TagNameAndType:
			c.A, c.B = r.u2(), r.u2()
		default:
			return nil, fmt.Errorf("unexpected constant tag %d at %d", c.Tag, i)
		}
		cf.Pool[i] = c
		if c.Tag == TagLong || c.Tag == TagDouble {
			i++
		}
	}
	if r.err != nil {
		return nil, r.err
	}

	cf.Access = r.u2()
	cf.This = cf.ClassName(r.u2())
	cf.Super = cf.ClassName(r.u2())
	for i, n := 0, int(r.u2()); i < n && r.err == nil; i++ {
		cf.Interfaces = append(cf.Interfaces, cf.ClassName(r.u2()))
	}
	cf.Fields = cf.readMembers(r)
	cf.Methods = cf.readMembers(r)
	cf.Attrs = cf.readAttrs(r)
	if r.err != nil {
		return nil, r.err
	}
	if r.off != len(data) {
		return nil, fmt.Errorf("%d trailing bytes", len(data)-r.off)
	}
	return cf, nil
}

func (cf *ClassFile) readMembers(r *reader) []Member {
	var out []Member
	for i, n := 0, int(r.u2()); i < n && r.err == nil; i++ {
		m := Member{Access: r.u2(), Name: cf.UTF8(r.u2()), Desc: cf.UTF8(r.u2())}
		m.Attrs = cf.readAttrs(r)
		out = append(out, m)
	}
	return out
}

func (cf *ClassFile) readAttrs(r *reader) map[string][]byte {
	attrs := make(map[string][]byte)
	for i, n := 0, int(r.u2()); i < n && r.err == nil; i++ {
		name := cf.UTF8(r.u2())
		attrs[name] = r.take(int(r.u4()))
	}
	return attrs
}

// UTF8 returns the text of a Utf8 constant; index 0 yields "".
func (cf *ClassFile) UTF8(idx uint16) string {
	if idx == 0 || int(idx) >= len(cf.Pool) {
		return ""
	}
	return cf.Pool[idx].S
}

// ClassName returns the name of a Class constant; index 0 yields "".
func (cf *ClassFile) ClassName(idx uint16) string {
	if idx == 0 || int(idx) >= len(cf.Pool) {
		return ""
	}
	return cf.UTF8(cf.Pool[idx].A)
}

// Method returns the first method called name.
func (cf *ClassFile) Method(name string) (Member, bool) {
	for _, m := range cf.Methods {
		if m.Name == name {
			return m, true
		}
	}
	return Member{}, false
}

// Field returns the field called name.
func (cf *ClassFile) Field(name string) (Member, bool) {
	for _, f := range cf.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Member{}, false
}

// InnerClasses decodes the InnerClasses attribute, or returns nil when the
// class has none.
func (cf *ClassFile) InnerClasses() []InnerEntry {
	raw, ok := cf.Attrs["InnerClasses"]
	if !ok || len(raw) < 2 {
		return nil
	}
	n := int(U2(raw, 0))
	out := make([]InnerEntry, 0, n)
	for i := 0; i < n && 2+8*i+8 <= len(raw); i++ {
		row := raw[2+8*i:]
		out = append(out, InnerEntry{
			Inner: cf.ClassName(U2(row, 0)),
			Outer: cf.ClassName(U2(row, 2)),
			Name:  cf.UTF8(U2(row, 4)),
			Flags: U2(row, 6),
		})
	}
	return out
}

// U2 reads a big-endian uint16 at off.
func U2(b []byte, off int) uint16 { return binary.BigEndian.Uint16(b[off:]) }
