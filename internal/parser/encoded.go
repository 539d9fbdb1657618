package parser

import (
	"fmt"
	"math"
)

// encoded_value type tags.
const (
	valueByte         = 0x00
	valueShort        = 0x02
	valueChar         = 0x03
	valueInt          = 0x04
	valueLong         = 0x06
	valueFloat        = 0x10
	valueDouble       = 0x11
	valueMethodType   = 0x15
	valueMethodHandle = 0x16
	valueString       = 0x17
	valueType         = 0x18
	valueField        = 0x19
	valueMethod       = 0x1a
	valueEnum         = 0x1b
	valueArray        = 0x1c
	valueAnnotation   = 0x1d
	valueNull         = 0x1e
	valueBoolean      = 0x1f
)

// typeRef is a decoded type-valued constant, kept apart from strings.
type typeRef string

// opaque stands for index-valued constants (fields, methods, enums, method
// handles) that stubs never need.
type opaque struct{}

// annotation is a decoded encoded_annotation.
type annotation struct {
	Type     string // descriptor
	Elements map[string]any
}

// readValue decodes one encoded_value. Integral types decode to int32 or
// int64, floating types to float32 or float64, booleans to bool.
func (d *dexFile) readValue(c *cursor) (any, error) {
	hdr := c.u8()
	if c.err != nil {
		return nil, c.err
	}
	typ, arg := hdr&0x1f, int(hdr>>5)
	size := arg + 1

	switch typ {
	case valueByte:
		if arg != 0 {
			return nil, fmt.Errorf("byte value with size %d", size)
		}
		return int32(int8(c.u8())), c.err
	case valueShort, valueInt:
		if (typ == valueShort && size > 2) || size > 4 {
			return nil, fmt.Errorf("value type %#x with size %d", typ, size)
		}
		return int32(signExtend(c.uintN(size), size)), c.err
	case valueChar:
		if size > 2 {
			return nil, fmt.Errorf("char value with size %d", size)
		}
		return int32(c.uintN(size)), c.err
	case valueLong:
		return signExtend(c.uintN(size), size), c.err
	case valueFloat:
		if size > 4 {
			return nil, fmt.Errorf("float value with size %d", size)
		}
		bits := uint32(c.uintN(size)) << (8 * (4 - size))
		return math.Float32frombits(bits), c.err
	case valueDouble:
		bits := c.uintN(size) << (8 * (8 - size))
		return math.Float64frombits(bits), c.err
	case valueString:
		idx := uint32(c.uintN(size))
		if c.err != nil {
			return nil, c.err
		}
		return d.string(idx)
	case valueType:
		idx := uint32(c.uintN(size))
		if c.err != nil {
			return nil, c.err
		}
		desc, err := d.typeDescriptor(idx)
		return typeRef(desc), err
	case valueMethodType, valueMethodHandle, valueField, valueMethod, valueEnum:
		c.uintN(size)
		return opaque{}, c.err
	case valueArray:
		return d.readArray(c)
	case valueAnnotation:
		return d.readAnnotation(c)
	case valueNull:
		return nil, nil
	case valueBoolean:
		return arg != 0, nil
	default:
		return nil, fmt.Errorf("unknown encoded value type %#x at offset %#x", typ, c.off-1)
	}
}

func signExtend(v uint64, size int) int64 {
	shift := uint(64 - 8*size)
	return int64(v<<shift) >> shift
}

func (d *dexFile) readArray(c *cursor) ([]any, error) {
	n := c.uleb()
	if c.err != nil {
		return nil, c.err
	}
	if int(n) > len(d.data) {
		return nil, fmt.Errorf("encoded array declares %d elements", n)
	}
	out := make([]any, 0, n)
	for i := uint32(0); i < n; i++ {
		v, err := d.readValue(c)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (d *dexFile) readAnnotation(c *cursor) (*annotation, error) {
	typeIdx := c.uleb()
	n := c.uleb()
	if c.err != nil {
		return nil, c.err
	}
	desc, err := d.typeDescriptor(typeIdx)
	if err != nil {
		return nil, err
	}
	a := &annotation{Type: desc, Elements: make(map[string]any, n)}
	for i := uint32(0); i < n; i++ {
		nameIdx := c.uleb()
		if c.err != nil {
			return nil, c.err
		}
		name, err := d.string(nameIdx)
		if err != nil {
			return nil, err
		}
		v, err := d.readValue(c)
		if err != nil {
			return nil, fmt.Errorf("annotation %s element %s: %w", desc, name, err)
		}
		a.Elements[name] = v
	}
	return a, nil
}

// annotationSet reads an annotation_set_item and returns its annotations
// keyed by type descriptor.
func (d *dexFile) annotationSet(off uint32) (map[string]*annotation, error) {
	if off == 0 {
		return nil, nil
	}
	c := d.at(off)
	n := c.u32()
	if c.err == nil && uint64(n)*4 > uint64(len(d.data)) {
		return nil, fmt.Errorf("annotation set at %#x declares %d entries", off, n)
	}
	offsets := make([]uint32, 0, n)
	for i := uint32(0); i < n; i++ {
		offsets = append(offsets, c.u32())
	}
	if c.err != nil {
		return nil, c.err
	}
	set := make(map[string]*annotation, n)
	for _, itemOff := range offsets {
		ic := d.at(itemOff)
		ic.u8() // visibility
		a, err := d.readAnnotation(ic)
		if err != nil {
			return nil, err
		}
		set[a.Type] = a
	}
	return set, nil
}
