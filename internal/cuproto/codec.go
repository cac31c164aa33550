// Package cuproto implements the fixed-layout byte encoding used by the
// Control Unit serial protocol.
//
// Values are encoded as printable nibbles: a nibble n travels as the single
// byte '0'+n, multi-nibble fields travel least significant nibble first.
// Layout strings describe one field per format character, optionally prefixed
// with a decimal repeat count:
//
//	c  literal byte
//	Y  one nibble (0..15)
//	B  unsigned byte, two nibbles
//	I  unsigned 32-bit value, eight nibbles
//	s  raw byte string (count is the length, e.g. "4s")
//	C  trailing checksum nibble over all preceding encoded bytes
package cuproto

import (
	"errors"
	"fmt"
)

var (
	// ErrLayout reports a malformed layout string or a value that does not
	// match its format character.
	ErrLayout = errors.New("cuproto: invalid layout")

	// ErrShortBuffer reports a buffer that ends before its layout does.
	ErrShortBuffer = errors.New("cuproto: short buffer")

	// ErrRange reports a nibble byte outside the encodable '0'..'?' range.
	ErrRange = errors.New("cuproto: value out of range")

	// ErrChecksum reports a frame whose trailing checksum does not match its
	// contents.
	ErrChecksum = errors.New("cuproto: checksum mismatch")
)

// Checksum computes the protocol checksum over buf: the low nibble of the
// byte sum, encoded as a printable nibble.
func Checksum(buf []byte) byte {
	sum := 0
	for _, b := range buf {
		sum += int(b)
	}
	return nibbleByte(sum & 0x0f)
}

func nibbleByte(v int) byte {
	return byte('0' + v)
}

func nibbleValue(b byte) (int, error) {
	v := int(b) - '0'
	if v < 0 || v > 15 {
		return 0, fmt.Errorf("%w: byte %#x is not a nibble", ErrRange, b)
	}
	return v, nil
}

// Pack encodes values according to layout and returns the wire bytes. The
// number and types of values must match the layout: byte for 'c', int for 'Y'
// and 'B', uint32 for 'I', []byte for 's'. 'C' consumes no value.
func Pack(layout string, values ...interface{}) ([]byte, error) {
	buf := make([]byte, 0, len(layout)*2)
	vi := 0

	next := func() (interface{}, error) {
		if vi >= len(values) {
			return nil, fmt.Errorf("%w: layout %q needs more than %d values", ErrLayout, layout, len(values))
		}
		v := values[vi]
		vi++
		return v, nil
	}

	for _, f := range parseLayout(layout) {
		switch f.ch {
		case 'c':
			for i := 0; i < f.count; i++ {
				v, err := next()
				if err != nil {
					return nil, err
				}
				b, ok := v.(byte)
				if !ok {
					return nil, fmt.Errorf("%w: 'c' wants byte, got %T", ErrLayout, v)
				}
				buf = append(buf, b)
			}
		case 'Y':
			for i := 0; i < f.count; i++ {
				n, err := intValue(next)
				if err != nil {
					return nil, err
				}
				if n < 0 || n > 15 {
					return nil, fmt.Errorf("%w: nibble value %d", ErrRange, n)
				}
				buf = append(buf, nibbleByte(n))
			}
		case 'B':
			for i := 0; i < f.count; i++ {
				n, err := intValue(next)
				if err != nil {
					return nil, err
				}
				if n < 0 || n > 0xff {
					return nil, fmt.Errorf("%w: byte value %d", ErrRange, n)
				}
				buf = append(buf, nibbleByte(n&0x0f), nibbleByte(n>>4))
			}
		case 'I':
			for i := 0; i < f.count; i++ {
				v, err := next()
				if err != nil {
					return nil, err
				}
				u, ok := v.(uint32)
				if !ok {
					return nil, fmt.Errorf("%w: 'I' wants uint32, got %T", ErrLayout, v)
				}
				for shift := 0; shift < 32; shift += 4 {
					buf = append(buf, nibbleByte(int(u>>shift)&0x0f))
				}
			}
		case 's':
			v, err := next()
			if err != nil {
				return nil, err
			}
			s, ok := v.([]byte)
			if !ok {
				return nil, fmt.Errorf("%w: 's' wants []byte, got %T", ErrLayout, v)
			}
			if len(s) != f.count {
				return nil, fmt.Errorf("%w: 's' wants %d bytes, got %d", ErrLayout, f.count, len(s))
			}
			buf = append(buf, s...)
		case 'C':
			buf = append(buf, Checksum(buf))
		default:
			return nil, fmt.Errorf("%w: unknown format character %q", ErrLayout, f.ch)
		}
	}
	if vi != len(values) {
		return nil, fmt.Errorf("%w: layout %q consumed %d of %d values", ErrLayout, layout, vi, len(values))
	}
	return buf, nil
}

// Unpack decodes data according to layout. Decoded values are returned in
// layout order: byte for 'c', int for 'Y' and 'B', uint32 for 'I', []byte for
// 's'. A 'C' field validates the trailing checksum and yields no value. The
// buffer must match the layout length exactly.
func Unpack(layout string, data []byte) ([]interface{}, error) {
	values := make([]interface{}, 0, len(layout))
	pos := 0

	take := func(n int) ([]byte, error) {
		if pos+n > len(data) {
			return nil, fmt.Errorf("%w: layout %q needs %d bytes, have %d", ErrShortBuffer, layout, pos+n, len(data))
		}
		b := data[pos : pos+n]
		pos += n
		return b, nil
	}

	for _, f := range parseLayout(layout) {
		switch f.ch {
		case 'c':
			for i := 0; i < f.count; i++ {
				b, err := take(1)
				if err != nil {
					return nil, err
				}
				values = append(values, b[0])
			}
		case 'Y':
			for i := 0; i < f.count; i++ {
				b, err := take(1)
				if err != nil {
					return nil, err
				}
				n, err := nibbleValue(b[0])
				if err != nil {
					return nil, err
				}
				values = append(values, n)
			}
		case 'B':
			for i := 0; i < f.count; i++ {
				b, err := take(2)
				if err != nil {
					return nil, err
				}
				lo, err := nibbleValue(b[0])
				if err != nil {
					return nil, err
				}
				hi, err := nibbleValue(b[1])
				if err != nil {
					return nil, err
				}
				values = append(values, lo|hi<<4)
			}
		case 'I':
			for i := 0; i < f.count; i++ {
				b, err := take(8)
				if err != nil {
					return nil, err
				}
				var u uint32
				for j, nb := range b {
					n, err := nibbleValue(nb)
					if err != nil {
						return nil, err
					}
					u |= uint32(n) << (4 * j)
				}
				values = append(values, u)
			}
		case 's':
			b, err := take(f.count)
			if err != nil {
				return nil, err
			}
			s := make([]byte, f.count)
			copy(s, b)
			values = append(values, s)
		case 'C':
			b, err := take(1)
			if err != nil {
				return nil, err
			}
			if want := Checksum(data[:pos-1]); b[0] != want {
				return nil, fmt.Errorf("%w: got %#x, want %#x", ErrChecksum, b[0], want)
			}
		default:
			return nil, fmt.Errorf("%w: unknown format character %q", ErrLayout, f.ch)
		}
	}
	if pos != len(data) {
		return nil, fmt.Errorf("%w: layout %q leaves %d trailing bytes", ErrLayout, layout, len(data)-pos)
	}
	return values, nil
}

type field struct {
	count int
	ch    byte
}

func parseLayout(layout string) []field {
	fields := make([]field, 0, len(layout))
	count := 0
	for i := 0; i < len(layout); i++ {
		c := layout[i]
		if c >= '0' && c <= '9' {
			count = count*10 + int(c-'0')
			continue
		}
		if count == 0 {
			count = 1
		}
		fields = append(fields, field{count: count, ch: c})
		count = 0
	}
	return fields
}

func intValue(next func() (interface{}, error)) (int, error) {
	v, err := next()
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case byte:
		return int(n), nil
	default:
		return 0, fmt.Errorf("%w: numeric field wants int, got %T", ErrLayout, v)
	}
}
