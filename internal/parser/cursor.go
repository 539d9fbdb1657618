package parser

import (
	"encoding/binary"
	"fmt"
	"unicode/utf16"
)

// cursor reads little-endian values from a dex image. The first out-of-bounds
// or malformed read sets err; later reads return zero values.
type cursor struct {
	b   []byte
	off int
	err error
}

func (c *cursor) failf(format string, args ...any) {
	if c.err == nil {
		c.err = fmt.Errorf(format, args...)
	}
}

func (c *cursor) need(n int) bool {
	if c.err != nil {
		return false
	}
	if n < 0 || c.off < 0 || c.off+n > len(c.b) {
		c.failf("read of %d bytes at offset %#x exceeds image size %#x", n, c.off, len(c.b))
		return false
	}
	return true
}

func (c *cursor) u8() byte {
	if !c.need(1) {
		return 0
	}
	v := c.b[c.off]
	c.off++
	return v
}

func (c *cursor) u16() uint16 {
	if !c.need(2) {
		return 0
	}
	v := binary.LittleEndian.Uint16(c.b[c.off:])
	c.off += 2
	return v
}

func (c *cursor) u32() uint32 {
	if !c.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(c.b[c.off:])
	c.off += 4
	return v
}

// uleb reads an unsigned LEB128 value of at most five bytes.
func (c *cursor) uleb() uint32 {
	var v uint32
	for i := 0; i < 5; i++ {
		b := c.u8()
		if c.err != nil {
			return 0
		}
		v |= uint32(b&0x7f) << (7 * i)
		if b&0x80 == 0 {
			return v
		}
	}
	c.failf("uleb128 at offset %#x longer than 5 bytes", c.off)
	return 0
}

// uintN reads an n-byte little-endian unsigned value (1 <= n <= 8).
func (c *cursor) uintN(n int) uint64 {
	if !c.need(n) {
		return 0
	}
	var v uint64
	for i := 0; i < n; i++ {
		v |= uint64(c.b[c.off+i]) << (8 * i)
	}
	c.off += n
	return v
}

// mutf8 reads a NUL-terminated Modified UTF-8 string.
func (c *cursor) mutf8() string {
	var units []uint16
	ascii := true
	start := c.off
	for {
		b := c.u8()
		if c.err != nil {
			return ""
		}
		switch {
		case b == 0:
			if ascii {
				return string(c.b[start : c.off-1])
			}
			return string(utf16.Decode(units))
		case b < 0x80:
			units = append(units, uint16(b))
		case b&0xe0 == 0xc0:
			ascii = false
			b2 := c.u8()
			if b2&0xc0 != 0x80 {
				c.failf("bad MUTF-8 continuation byte at offset %#x", c.off-1)
				return ""
			}
			units = append(units, uint16(b&0x1f)<<6|uint16(b2&0x3f))
		case b&0xf0 == 0xe0:
			ascii = false
			b2, b3 := c.u8(), c.u8()
			if b2&0xc0 != 0x80 || b3&0xc0 != 0x80 {
				c.failf("bad MUTF-8 continuation byte at offset %#x", c.off-1)
				return ""
			}
			units = append(units, uint16(b&0x0f)<<12|uint16(b2&0x3f)<<6|uint16(b3&0x3f))
		default:
			c.failf("bad MUTF-8 lead byte %#x at offset %#x", b, c.off-1)
			return ""
		}
	}
}
