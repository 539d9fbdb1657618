package parser

import (
	"bytes"
	"fmt"

	"stubgen/internal/model"
)

const (
	headerSize = 0x70
	endianTag  = 0x12345678
	noIndex    = 0xffffffff
)

type protoID struct {
	ret    uint32
	params uint32 // type_list offset, 0 for none
}

type memberID struct {
	class uint16
	typ   uint16 // type index for fields, proto index for methods
	name  uint32
}

// dexFile is an indexed view over one dex image.
type dexFile struct {
	name string
	data []byte

	stringIDs []uint32
	typeIDs   []uint32
	protoIDs  []protoID
	fieldIDs  []memberID
	methodIDs []memberID

	classDefsOff  int
	classDefsSize int

	strings map[uint32]string
}

func isDex(data []byte) bool {
	return len(data) >= 8 && bytes.Equal(data[:4], []byte("dex\n")) && data[7] == 0
}

func openDex(name string, data []byte) (*dexFile, error) {
	if len(data) < headerSize || !isDex(data) {
		return nil, &FormatError{Dex: name, Msg: "not a dex image"}
	}
	for _, b := range data[4:7] {
		if b < '0' || b > '9' {
			return nil, &FormatError{Dex: name, Msg: fmt.Sprintf("bad dex version %q", data[4:7])}
		}
	}

	c := &cursor{b: data, off: 0x20}
	fileSize := c.u32()
	hdrSize := c.u32()
	tag := c.u32()
	if tag != endianTag {
		return nil, &FormatError{Dex: name, Msg: fmt.Sprintf("unsupported endian tag %#x", tag)}
	}
	if hdrSize != headerSize {
		return nil, &FormatError{Dex: name, Msg: fmt.Sprintf("unexpected header size %#x", hdrSize)}
	}
	if int(fileSize) > len(data) {
		return nil, &FormatError{Dex: name, Msg: fmt.Sprintf("truncated: header declares %d bytes, have %d", fileSize, len(data))}
	}
	data = data[:fileSize]

	d := &dexFile{name: name, data: data, strings: make(map[uint32]string)}

	c = &cursor{b: data, off: 0x38}
	stringsSize, stringsOff := c.u32(), c.u32()
	typesSize, typesOff := c.u32(), c.u32()
	protosSize, protosOff := c.u32(), c.u32()
	fieldsSize, fieldsOff := c.u32(), c.u32()
	methodsSize, methodsOff := c.u32(), c.u32()
	classesSize, classesOff := c.u32(), c.u32()
	if c.err != nil {
		return nil, &FormatError{Dex: name, Msg: c.err.Error()}
	}

	if err := d.section("string_ids", stringsOff, stringsSize, 4); err != nil {
		return nil, err
	}
	if err := d.section("type_ids", typesOff, typesSize, 4); err != nil {
		return nil, err
	}
	if err := d.section("proto_ids", protosOff, protosSize, 12); err != nil {
		return nil, err
	}
	if err := d.section("field_ids", fieldsOff, fieldsSize, 8); err != nil {
		return nil, err
	}
	if err := d.section("method_ids", methodsOff, methodsSize, 8); err != nil {
		return nil, err
	}
	if err := d.section("class_defs", classesOff, classesSize, 32); err != nil {
		return nil, err
	}

	c = &cursor{b: data, off: int(stringsOff)}
	d.stringIDs = make([]uint32, stringsSize)
	for i := range d.stringIDs {
		d.stringIDs[i] = c.u32()
	}
	c.off = int(typesOff)
	d.typeIDs = make([]uint32, typesSize)
	for i := range d.typeIDs {
		d.typeIDs[i] = c.u32()
	}
	c.off = int(protosOff)
	d.protoIDs = make([]protoID, protosSize)
	for i := range d.protoIDs {
		c.u32() // shorty
		d.protoIDs[i] = protoID{ret: c.u32(), params: c.u32()}
	}
	c.off = int(fieldsOff)
	d.fieldIDs = make([]memberID, fieldsSize)
	for i := range d.fieldIDs {
		d.fieldIDs[i] = memberID{class: c.u16(), typ: c.u16(), name: c.u32()}
	}
	c.off = int(methodsOff)
	d.methodIDs = make([]memberID, methodsSize)
	for i := range d.methodIDs {
		d.methodIDs[i] = memberID{class: c.u16(), typ: c.u16(), name: c.u32()}
	}
	if c.err != nil {
		return nil, &FormatError{Dex: name, Msg: c.err.Error()}
	}

	d.classDefsOff = int(classesOff)
	d.classDefsSize = int(classesSize)
	return d, nil
}

// section checks that a table of size entries of width bytes fits the image.
func (d *dexFile) section(what string, off, size uint32, width int) error {
	if size == 0 {
		return nil
	}
	end := uint64(off) + uint64(size)*uint64(width)
	if off < headerSize || end > uint64(len(d.data)) {
		return &FormatError{Dex: d.name, Msg: fmt.Sprintf("%s table [%#x, %#x) outside image", what, off, end)}
	}
	return nil
}

func (d *dexFile) at(off uint32) *cursor {
	return &cursor{b: d.data, off: int(off)}
}

func (d *dexFile) string(idx uint32) (string, error) {
	if s, ok := d.strings[idx]; ok {
		return s, nil
	}
	if int(idx) >= len(d.stringIDs) {
		return "", fmt.Errorf("string index %d out of range", idx)
	}
	c := d.at(d.stringIDs[idx])
	c.uleb() // utf16 length
	s := c.mutf8()
	if c.err != nil {
		return "", fmt.Errorf("string %d: %w", idx, c.err)
	}
	d.strings[idx] = s
	return s, nil
}

// typeDescriptor returns the descriptor of a type index, e.g. "Ljava/lang/String;".
func (d *dexFile) typeDescriptor(idx uint32) (string, error) {
	if int(idx) >= len(d.typeIDs) {
		return "", fmt.Errorf("type index %d out of range", idx)
	}
	return d.string(d.typeIDs[idx])
}

func (d *dexFile) typeName(idx uint32) (string, error) {
	desc, err := d.typeDescriptor(idx)
	if err != nil {
		return "", err
	}
	return model.InternalName(desc), nil
}

// typeList reads a type_list at off and returns its descriptors.
func (d *dexFile) typeList(off uint32) ([]string, error) {
	if off == 0 {
		return nil, nil
	}
	c := d.at(off)
	n := c.u32()
	if c.err == nil && uint64(n)*2 > uint64(len(d.data)) {
		return nil, fmt.Errorf("type_list at %#x declares %d entries", off, n)
	}
	idxs := make([]uint16, 0, n)
	for i := uint32(0); i < n; i++ {
		idxs = append(idxs, c.u16())
	}
	if c.err != nil {
		return nil, c.err
	}
	out := make([]string, len(idxs))
	for i, idx := range idxs {
		desc, err := d.typeDescriptor(uint32(idx))
		if err != nil {
			return nil, err
		}
		out[i] = desc
	}
	return out, nil
}
