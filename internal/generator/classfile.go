package generator

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf16"
)

// Constant pool tags.
const (
	tagUtf8        = 1
	tagInteger     = 3
	tagFloat       = 4
	tagLong        = 5
	tagDouble      = 6
	tagClass       = 7
	tagString      = 8
	tagMethodref   = 10
	tagNameAndType = 12
)

// constPool assigns constant pool indices in insertion order, so the same
// sequence of lookups always yields the same pool.
type constPool struct {
	buf     bytes.Buffer
	next    int
	index   map[string]uint16
	classes []string // Class constants in insertion order
}

func newConstPool() *constPool {
	return &constPool{next: 1, index: make(map[string]uint16)}
}

func (p *constPool) count() uint16 { return uint16(p.next) }

func (p *constPool) add(key string, slots int, write func(w *writer)) uint16 {
	if idx, ok := p.index[key]; ok {
		return idx
	}
	idx := uint16(p.next)
	w := &writer{buf: &p.buf}
	write(w)
	p.next += slots
	p.index[key] = idx
	return idx
}

func (p *constPool) utf8(s string) uint16 {
	return p.add("U"+s, 1, func(w *writer) {
		b := encodeMUTF8(s)
		w.u1(tagUtf8)
		w.u2(uint16(len(b)))
		w.bytes(b)
	})
}

func (p *constPool) class(internal string) uint16 {
	name := p.utf8(internal)
	return p.add("C"+internal, 1, func(w *writer) {
		w.u1(tagClass)
		w.u2(name)
		p.classes = append(p.classes, internal)
	})
}

func (p *constPool) str(s string) uint16 {
	v := p.utf8(s)
	return p.add("S"+s, 1, func(w *writer) {
		w.u1(tagString)
		w.u2(v)
	})
}

func (p *constPool) integer(v int32) uint16 {
	return p.add(fmt.Sprintf("I%d", v), 1, func(w *writer) {
		w.u1(tagInteger)
		w.u4(uint32(v))
	})
}

func (p *constPool) float(v float32) uint16 {
	bits := math.Float32bits(v)
	return p.add(fmt.Sprintf("F%08x", bits), 1, func(w *writer) {
		w.u1(tagFloat)
		w.u4(bits)
	})
}

func (p *constPool) long(v int64) uint16 {
	return p.add(fmt.Sprintf("J%d", v), 2, func(w *writer) {
		w.u1(tagLong)
		w.u8(uint64(v))
	})
}

func (p *constPool) double(v float64) uint16 {
	bits := math.Float64bits(v)
	return p.add(fmt.Sprintf("D%016x", bits), 2, func(w *writer) {
		w.u1(tagDouble)
		w.u8(bits)
	})
}

func (p *constPool) nameAndType(name, desc string) uint16 {
	n, d := p.utf8(name), p.utf8(desc)
	return p.add("N"+name+":"+desc, 1, func(w *writer) {
		w.u1(tagNameAndType)
		w.u2(n)
		w.u2(d)
	})
}

func (p *constPool) methodref(class, name, desc string) uint16 {
	c, nt := p.class(class), p.nameAndType(name, desc)
	return p.add("M"+class+"."+name+":"+desc, 1, func(w *writer) {
		w.u1(tagMethodref)
		w.u2(c)
		w.u2(nt)
	})
}

// writer appends big-endian class-file values.
type writer struct {
	buf *bytes.Buffer
}

func newWriter() *writer { return &writer{buf: &bytes.Buffer{}} }

func (w *writer) u1(v uint8)       { w.buf.WriteByte(v) }
func (w *writer) u2(v uint16)      { binary.Write(w.buf, binary.BigEndian, v) }
func (w *writer) u4(v uint32)      { binary.Write(w.buf, binary.BigEndian, v) }
func (w *writer) u8(v uint64)      { binary.Write(w.buf, binary.BigEndian, v) }
func (w *writer) bytes(b []byte)   { w.buf.Write(b) }
func (w *writer) len() int         { return w.buf.Len() }
func (w *writer) contents() []byte { return w.buf.Bytes() }

// attribute writes one attribute whose body is produced by fn.
func (w *writer) attribute(name uint16, fn func(body *writer)) {
	body := newWriter()
	fn(body)
	w.u2(name)
	w.u4(uint32(body.len()))
	w.bytes(body.contents())
}

// encodeMUTF8 encodes s in the class-file Modified UTF-8 form: NUL is two
// bytes and supplementary characters are encoded as surrogate pairs.
func encodeMUTF8(s string) []byte {
	ascii := true
	for i := 0; i < len(s); i++ {
		if s[i] == 0 || s[i] >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return []byte(s)
	}
	var out []byte
	for _, u := range utf16.Encode([]rune(s)) {
		switch {
		case u != 0 && u < 0x80:
			out = append(out, byte(u))
		case u < 0x800:
			out = append(out, 0xc0|byte(u>>6), 0x80|byte(u&0x3f))
		default:
			out = append(out, 0xe0|byte(u>>12), 0x80|byte((u>>6)&0x3f), 0x80|byte(u&0x3f))
		}
	}
	return out
}
