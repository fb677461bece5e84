// Package hex implements the byte/nibble and number encodings used by the
// Onramp hex object format.
package hex

import "github.com/pkg/errors"

// EncodeByte writes the two-ASCII-nibble form of b into dst, which must have
// length 2.
func EncodeByte(dst []byte, b byte) {
	const digits = "0123456789ABCDEF"
	dst[0] = digits[b>>4]
	dst[1] = digits[b&0xF]
}

// AppendByte appends the two-ASCII-nibble form of b to dst.
func AppendByte(dst []byte, b byte) []byte {
	const digits = "0123456789ABCDEF"
	return append(dst, digits[b>>4], digits[b&0xF])
}

// DecodeNibble returns the value of a single hex digit, or an error if c is
// not one of [0-9A-Fa-f].
func DecodeNibble(c byte) (byte, error) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, nil
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, nil
	}
	return 0, errors.Errorf("invalid hex digit %q", c)
}

// DecodeByte decodes a two-character hex byte.
func DecodeByte(hi, lo byte) (byte, error) {
	h, err := DecodeNibble(hi)
	if err != nil {
		return 0, err
	}
	l, err := DecodeNibble(lo)
	if err != nil {
		return 0, err
	}
	return h<<4 | l, nil
}

// IsHexDigit reports whether c is a valid hex nibble character.
func IsHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'F') || (c >= 'a' && c <= 'f')
}

// PutUint16 encodes v as two little-endian bytes.
func PutUint16(dst []byte, v uint16) {
	dst[0] = byte(v)
	dst[1] = byte(v >> 8)
}

// PutUint32 encodes v as four little-endian bytes.
func PutUint32(dst []byte, v uint32) {
	dst[0] = byte(v)
	dst[1] = byte(v >> 8)
	dst[2] = byte(v >> 16)
	dst[3] = byte(v >> 24)
}

// Uint16 decodes two little-endian bytes.
func Uint16(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}

// Uint32 decodes four little-endian bytes.
func Uint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
