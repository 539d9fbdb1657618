// Package dextest builds dex images and dex containers from model classes
// for use in tests.
//
// The images carry everything the parser reads: ids tables, class data,
// static values and the Signature, Throws and InnerClass system annotations.
// Within each class, static fields must precede instance fields and direct
// methods (constructors, static and private methods) must precede virtual
// methods for a parse to reproduce the input order.
package dextest

import (
	"archive/zip"
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"hash/adler32"
	"math"
	"sort"
	"strings"
	"unicode/utf16"

	"stubgen/internal/model"
)

const (
	noIndex = 0xffffffff

	annotationSignature  = "Ldalvik/annotation/Signature;"
	annotationThrows     = "Ldalvik/annotation/Throws;"
	annotationInnerClass = "Ldalvik/annotation/InnerClass;"
)

type proto struct {
	shorty string
	ret    string
	params string // joined descriptors, used as key
	list   []string
}

type member struct {
	class string
	typ   string // field type descriptor or proto key
	name  string
}

type builder struct {
	classes []model.Class

	strings []string
	strIdx  map[string]uint32
	types   []string
	typeIdx map[string]uint32
	protos  []proto
	protoIx map[string]uint32
	fields  []member
	fieldIx map[member]uint32
	methods []member
	methIx  map[member]uint32
}

// Build encodes classes into one dex image.
func Build(classes ...model.Class) []byte {
	b := &builder{classes: classes}
	b.collect()
	return b.encode()
}

// Container wraps dex images into a zip container as classes.dex,
// classes2.dex, ... followed by the extra entries given as name/content pairs.
func Container(dexes [][]byte, extra ...string) []byte {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for i, d := range dexes {
		name := "classes.dex"
		if i > 0 {
			name = fmt.Sprintf("classes%d.dex", i+1)
		}
		w, err := zw.Create(name)
		if err != nil {
			panic(err)
		}
		w.Write(d)
	}
	for i := 0; i+1 < len(extra); i += 2 {
		w, err := zw.Create(extra[i])
		if err != nil {
			panic(err)
		}
		w.Write([]byte(extra[i+1]))
	}
	if err := zw.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func isDirect(m model.Method) bool {
	return m.Access.IsStatic() || m.Access.IsPrivate() || m.Name == "<init>" || m.Name == "<clinit>"
}

func shortyOf(desc string) string {
	if desc[0] == 'L' || desc[0] == '[' {
		return "L"
	}
	return desc[:1]
}

func signatureParts(sig string) []string {
	return strings.SplitAfter(sig, ";")
}

func (b *builder) collect() {
	strs := map[string]bool{}
	types := map[string]bool{}
	addType := func(desc string) {
		types[desc] = true
		strs[desc] = true
	}
	addSig := func(sig string) {
		if sig == "" {
			return
		}
		addType(annotationSignature)
		strs["value"] = true
		for _, p := range signatureParts(sig) {
			if p != "" {
				strs[p] = true
			}
		}
	}

	protoSet := map[string]proto{}
	var fieldList, methodList []member

	for _, c := range b.classes {
		addType(model.Descriptor(c.Name))
		if c.Super != "" {
			addType(model.Descriptor(c.Super))
		}
		for _, i := range c.Interfaces {
			addType(model.Descriptor(i))
		}
		if c.SourceFile != "" {
			strs[c.SourceFile] = true
		}
		addSig(c.Signature)
		if c.Inner != nil {
			addType(annotationInnerClass)
			strs["accessFlags"] = true
			strs["name"] = true
			if !c.Inner.Anonymous {
				strs[c.Inner.Name] = true
			}
		}
		for _, f := range c.Fields {
			strs[f.Name] = true
			addType(f.Descriptor)
			addSig(f.Signature)
			if s, ok := f.Constant.(string); ok {
				strs[s] = true
			}
			fieldList = append(fieldList, member{model.Descriptor(c.Name), f.Descriptor, f.Name})
		}
		for _, m := range c.Methods {
			strs[m.Name] = true
			addType(m.Return)
			shorty := shortyOf(m.Return)
			for _, p := range m.Params {
				addType(p)
				shorty += shortyOf(p)
			}
			strs[shorty] = true
			key := m.Return + "(" + strings.Join(m.Params, "") + ")"
			protoSet[key] = proto{shorty: shorty, ret: m.Return, params: key, list: m.Params}
			addSig(m.Signature)
			if len(m.Throws) > 0 {
				addType(annotationThrows)
				strs["value"] = true
				for _, t := range m.Throws {
					addType(model.Descriptor(t))
				}
			}
			methodList = append(methodList, member{model.Descriptor(c.Name), key, m.Name})
		}
	}

	b.strings = sortedKeys(strs)
	b.strIdx = make(map[string]uint32, len(b.strings))
	for i, s := range b.strings {
		b.strIdx[s] = uint32(i)
	}
	b.types = sortedKeys(types)
	b.typeIdx = make(map[string]uint32, len(b.types))
	for i, t := range b.types {
		b.typeIdx[t] = uint32(i)
	}
	keys := make([]string, 0, len(protoSet))
	for k := range protoSet {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b.protoIx = make(map[string]uint32, len(keys))
	for i, k := range keys {
		b.protos = append(b.protos, protoSet[k])
		b.protoIx[k] = uint32(i)
	}

	// Member ids are assigned in declaration order so that class_data
	// deltas stay non-negative.
	b.fieldIx = make(map[member]uint32)
	for _, f := range fieldList {
		if _, ok := b.fieldIx[f]; !ok {
			b.fieldIx[f] = uint32(len(b.fields))
			b.fields = append(b.fields, f)
		}
	}
	b.methIx = make(map[member]uint32)
	for _, m := range methodList {
		if _, ok := b.methIx[m]; !ok {
			b.methIx[m] = uint32(len(b.methods))
			b.methods = append(b.methods, m)
		}
	}
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// data accumulates the data section; offsets are absolute.
type data struct {
	base int
	buf  bytes.Buffer
}

func (d *data) off() uint32 { return uint32(d.base + d.buf.Len()) }

func (d *data) align4() {
	for (d.base+d.buf.Len())%4 != 0 {
		d.buf.WriteByte(0)
	}
}

func (d *data) u16(v uint16) { binary.Write(&d.buf, binary.LittleEndian, v) }
func (d *data) u32(v uint32) { binary.Write(&d.buf, binary.LittleEndian, v) }
func (d *data) uleb(v uint32) {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			d.buf.WriteByte(c | 0x80)
			continue
		}
		d.buf.WriteByte(c)
		return
	}
}

func (b *builder) encode() []byte {
	const headerSize = 0x70
	stringIDsOff := headerSize
	typeIDsOff := stringIDsOff + 4*len(b.strings)
	protoIDsOff := typeIDsOff + 4*len(b.types)
	fieldIDsOff := protoIDsOff + 12*len(b.protos)
	methodIDsOff := fieldIDsOff + 8*len(b.fields)
	classDefsOff := methodIDsOff + 8*len(b.methods)
	dataOff := classDefsOff + 32*len(b.classes)

	d := &data{base: dataOff}

	stringOffs := make([]uint32, len(b.strings))
	for i, s := range b.strings {
		stringOffs[i] = d.off()
		d.uleb(uint32(len(utf16.Encode([]rune(s)))))
		d.buf.Write(encodeMUTF8(s))
		d.buf.WriteByte(0)
	}

	typeList := func(descs []string) uint32 {
		if len(descs) == 0 {
			return 0
		}
		d.align4()
		off := d.off()
		d.u32(uint32(len(descs)))
		for _, t := range descs {
			d.u16(uint16(b.typeIdx[t]))
		}
		return off
	}

	protoParams := make([]uint32, len(b.protos))
	for i, p := range b.protos {
		protoParams[i] = typeList(p.list)
	}

	type classOffs struct {
		interfaces, annotations, classData, staticValues uint32
	}
	offs := make([]classOffs, len(b.classes))
	for i, c := range b.classes {
		var ifaces []string
		for _, n := range c.Interfaces {
			ifaces = append(ifaces, model.Descriptor(n))
		}
		offs[i].interfaces = typeList(ifaces)
		offs[i].annotations = b.annotationsDirectory(d, c)
		offs[i].classData = b.classData(d, c)
		offs[i].staticValues = b.staticValues(d, c)
	}

	out := &bytes.Buffer{}
	le := func(v any) { binary.Write(out, binary.LittleEndian, v) }

	out.Write([]byte("dex\n035\x00"))
	le(uint32(0))               // checksum, patched below
	out.Write(make([]byte, 20)) // signature, patched below
	le(uint32(0))               // file size, patched below
	le(uint32(headerSize))
	le(uint32(0x12345678))
	le(uint32(0)) // link size
	le(uint32(0)) // link off
	le(uint32(0)) // map off
	sect := func(n, off int) {
		le(uint32(n))
		if n == 0 {
			le(uint32(0))
		} else {
			le(uint32(off))
		}
	}
	sect(len(b.strings), stringIDsOff)
	sect(len(b.types), typeIDsOff)
	sect(len(b.protos), protoIDsOff)
	sect(len(b.fields), fieldIDsOff)
	sect(len(b.methods), methodIDsOff)
	sect(len(b.classes), classDefsOff)
	le(uint32(d.buf.Len()))
	le(uint32(dataOff))

	for _, o := range stringOffs {
		le(o)
	}
	for _, t := range b.types {
		le(b.strIdx[t])
	}
	for i, p := range b.protos {
		le(b.strIdx[p.shorty])
		le(b.typeIdx[p.ret])
		le(protoParams[i])
	}
	for _, f := range b.fields {
		le(uint16(b.typeIdx[f.class]))
		le(uint16(b.typeIdx[f.typ]))
		le(b.strIdx[f.name])
	}
	for _, m := range b.methods {
		le(uint16(b.typeIdx[m.class]))
		le(uint16(b.protoIx[m.typ]))
		le(b.strIdx[m.name])
	}
	for i, c := range b.classes {
		le(b.typeIdx[model.Descriptor(c.Name)])
		le(uint32(c.Access))
		if c.Super == "" {
			le(uint32(noIndex))
		} else {
			le(b.typeIdx[model.Descriptor(c.Super)])
		}
		le(offs[i].interfaces)
		if c.SourceFile == "" {
			le(uint32(noIndex))
		} else {
			le(b.strIdx[c.SourceFile])
		}
		le(offs[i].annotations)
		le(offs[i].classData)
		le(offs[i].staticValues)
	}
	out.Write(d.buf.Bytes())

	img := out.Bytes()
	binary.LittleEndian.PutUint32(img[0x20:], uint32(len(img)))
	sum := sha1.Sum(img[32:])
	copy(img[12:32], sum[:])
	binary.LittleEndian.PutUint32(img[8:], adler32.Checksum(img[12:]))
	return img
}

func (b *builder) classData(d *data, c model.Class) uint32 {
	if len(c.Fields) == 0 && len(c.Methods) == 0 {
		return 0
	}
	var static, instance []model.Field
	for _, f := range c.Fields {
		if f.Access.IsStatic() {
			static = append(static, f)
		} else {
			instance = append(instance, f)
		}
	}
	var direct, virtual []model.Method
	for _, m := range c.Methods {
		if isDirect(m) {
			direct = append(direct, m)
		} else {
			virtual = append(virtual, m)
		}
	}

	off := d.off()
	d.uleb(uint32(len(static)))
	d.uleb(uint32(len(instance)))
	d.uleb(uint32(len(direct)))
	d.uleb(uint32(len(virtual)))
	owner := model.Descriptor(c.Name)
	for _, list := range [][]model.Field{static, instance} {
		var prev uint32
		for _, f := range list {
			idx := b.fieldIx[member{owner, f.Descriptor, f.Name}]
			d.uleb(idx - prev)
			d.uleb(uint32(f.Access))
			prev = idx
		}
	}
	for _, list := range [][]model.Method{direct, virtual} {
		var prev uint32
		for _, m := range list {
			key := m.Return + "(" + strings.Join(m.Params, "") + ")"
			idx := b.methIx[member{owner, key, m.Name}]
			d.uleb(idx - prev)
			d.uleb(uint32(m.Access))
			d.uleb(0) // no code
			prev = idx
		}
	}
	return off
}

func (b *builder) staticValues(d *data, c model.Class) uint32 {
	var static []model.Field
	last := -1
	for _, f := range c.Fields {
		if !f.Access.IsStatic() {
			continue
		}
		if f.Constant != nil {
			last = len(static)
		}
		static = append(static, f)
	}
	if last < 0 {
		return 0
	}
	off := d.off()
	d.uleb(uint32(last + 1))
	for _, f := range static[:last+1] {
		b.writeConstant(d, f.Descriptor, f.Constant)
	}
	return off
}

func (b *builder) writeConstant(d *data, desc string, v any) {
	switch desc {
	case "Z":
		n, _ := v.(int32)
		d.buf.WriteByte(0x1f | byte(n&1)<<5)
	case "B":
		n, _ := v.(int32)
		d.buf.WriteByte(0x00)
		d.buf.WriteByte(byte(int8(n)))
	case "S":
		n, _ := v.(int32)
		writeSigned(d, 0x02, int64(n))
	case "C":
		n, _ := v.(int32)
		writeUnsigned(d, 0x03, uint64(uint16(n)))
	case "I":
		n, _ := v.(int32)
		writeSigned(d, 0x04, int64(n))
	case "J":
		n, _ := v.(int64)
		writeSigned(d, 0x06, n)
	case "F":
		n, _ := v.(float32)
		writeRightZeroExtended(d, 0x10, uint64(math.Float32bits(n)), 4)
	case "D":
		n, _ := v.(float64)
		writeRightZeroExtended(d, 0x11, math.Float64bits(n), 8)
	default:
		if s, ok := v.(string); ok {
			writeUnsigned(d, 0x17, uint64(b.strIdx[s]))
			return
		}
		d.buf.WriteByte(0x1e) // null
	}
}

func writeSigned(d *data, typ byte, v int64) {
	size := 1
	for size < 8 {
		shift := uint(64 - 8*size)
		if (v<<shift)>>shift == v {
			break
		}
		size++
	}
	d.buf.WriteByte(typ | byte(size-1)<<5)
	for i := 0; i < size; i++ {
		d.buf.WriteByte(byte(v >> (8 * i)))
	}
}

func writeUnsigned(d *data, typ byte, v uint64) {
	size := 1
	for size < 8 && v>>(8*size) != 0 {
		size++
	}
	d.buf.WriteByte(typ | byte(size-1)<<5)
	for i := 0; i < size; i++ {
		d.buf.WriteByte(byte(v >> (8 * i)))
	}
}

func writeRightZeroExtended(d *data, typ byte, bits uint64, width int) {
	size := width
	for size > 1 && byte(bits>>(8*(width-size))) == 0 {
		size--
	}
	v := bits >> (8 * (width - size))
	d.buf.WriteByte(typ | byte(size-1)<<5)
	for i := 0; i < size; i++ {
		d.buf.WriteByte(byte(v >> (8 * i)))
	}
}

// annotation writers

func (b *builder) signatureAnnotation(d *data, sig string) uint32 {
	off := d.off()
	d.buf.WriteByte(0x02) // VISIBILITY_SYSTEM
	d.uleb(b.typeIdx[annotationSignature])
	d.uleb(1)
	d.uleb(b.strIdx["value"])
	var parts []string
	for _, p := range signatureParts(sig) {
		if p != "" {
			parts = append(parts, p)
		}
	}
	d.buf.WriteByte(0x1c)
	d.uleb(uint32(len(parts)))
	for _, p := range parts {
		writeUnsigned(d, 0x17, uint64(b.strIdx[p]))
	}
	return off
}

func (b *builder) throwsAnnotation(d *data, throws []string) uint32 {
	off := d.off()
	d.buf.WriteByte(0x02)
	d.uleb(b.typeIdx[annotationThrows])
	d.uleb(1)
	d.uleb(b.strIdx["value"])
	d.buf.WriteByte(0x1c)
	d.uleb(uint32(len(throws)))
	for _, t := range throws {
		writeUnsigned(d, 0x18, uint64(b.typeIdx[model.Descriptor(t)]))
	}
	return off
}

func (b *builder) innerClassAnnotation(d *data, inner *model.InnerInfo) uint32 {
	off := d.off()
	d.buf.WriteByte(0x02)
	d.uleb(b.typeIdx[annotationInnerClass])
	d.uleb(2)
	d.uleb(b.strIdx["accessFlags"])
	writeSigned(d, 0x04, int64(int32(inner.Access)))
	d.uleb(b.strIdx["name"])
	if inner.Anonymous {
		d.buf.WriteByte(0x1e)
	} else {
		writeUnsigned(d, 0x17, uint64(b.strIdx[inner.Name]))
	}
	return off
}

func (d *data) set(items []uint32) uint32 {
	if len(items) == 0 {
		return 0
	}
	d.align4()
	off := d.off()
	d.u32(uint32(len(items)))
	for _, it := range items {
		d.u32(it)
	}
	return off
}

func (b *builder) annotationsDirectory(d *data, c model.Class) uint32 {
	var classItems []uint32
	if c.Signature != "" {
		classItems = append(classItems, b.signatureAnnotation(d, c.Signature))
	}
	if c.Inner != nil {
		classItems = append(classItems, b.innerClassAnnotation(d, c.Inner))
	}
	classSet := d.set(classItems)

	owner := model.Descriptor(c.Name)
	type entry struct{ idx, off uint32 }
	var fieldEntries []entry
	for _, f := range c.Fields {
		if f.Signature == "" {
			continue
		}
		set := d.set([]uint32{b.signatureAnnotation(d, f.Signature)})
		fieldEntries = append(fieldEntries, entry{b.fieldIx[member{owner, f.Descriptor, f.Name}], set})
	}
	var methodEntries []entry
	for _, m := range c.Methods {
		var items []uint32
		if m.Signature != "" {
			items = append(items, b.signatureAnnotation(d, m.Signature))
		}
		if len(m.Throws) > 0 {
			items = append(items, b.throwsAnnotation(d, m.Throws))
		}
		if len(items) == 0 {
			continue
		}
		key := m.Return + "(" + strings.Join(m.Params, "") + ")"
		methodEntries = append(methodEntries, entry{b.methIx[member{owner, key, m.Name}], d.set(items)})
	}
	if classSet == 0 && len(fieldEntries) == 0 && len(methodEntries) == 0 {
		return 0
	}

	d.align4()
	off := d.off()
	d.u32(classSet)
	d.u32(uint32(len(fieldEntries)))
	d.u32(uint32(len(methodEntries)))
	d.u32(0)
	for _, e := range fieldEntries {
		d.u32(e.idx)
		d.u32(e.off)
	}
	for _, e := range methodEntries {
		d.u32(e.idx)
		d.u32(e.off)
	}
	return off
}

func encodeMUTF8(s string) []byte {
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
