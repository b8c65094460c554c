// Package table provides table services: registration of typed
// configuration tables, loading and validating images, and controlled
// access to the active image.
package table

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// FieldType is the storage type of a table field
type FieldType uint8

const (
	U8 FieldType = iota + 1
	U16
	U32
)

// Size returns the packed width in bytes
func (t FieldType) Size() int {
	switch t {
	case U8:
		return 1
	case U16:
		return 2
	case U32:
		return 4
	default:
		return 0
	}
}

// Limit returns the largest value the type can hold
func (t FieldType) Limit() uint64 {
	switch t {
	case U8:
		return 0xFF
	case U16:
		return 0xFFFF
	case U32:
		return 0xFFFFFFFF
	default:
		return 0
	}
}

// String returns the string representation of FieldType
func (t FieldType) String() string {
	switch t {
	case U8:
		return "uint8"
	case U16:
		return "uint16"
	case U32:
		return "uint32"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Field describes one table field. A zero Max leaves the field bounded
// only by its type.
type Field struct {
	Name string
	Type FieldType
	Max  uint64
}

// Schema describes the ordered fields of a table
type Schema struct {
	Name   string
	Fields []Field
}

// Validate checks the schema itself
func (s *Schema) Validate() error {
	if s == nil || s.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidSchema)
	}
	if len(s.Fields) == 0 {
		return fmt.Errorf("%w: %s has no fields", ErrInvalidSchema, s.Name)
	}

	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if f.Name == "" {
			return fmt.Errorf("%w: %s has an unnamed field", ErrInvalidSchema, s.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("%w: %s repeats field %s", ErrInvalidSchema, s.Name, f.Name)
		}
		seen[f.Name] = true

		if f.Type.Size() == 0 {
			return fmt.Errorf("%w: field %s has type %s", ErrInvalidSchema, f.Name, f.Type)
		}
		if f.Max > f.Type.Limit() {
			return fmt.Errorf("%w: field %s max %d exceeds %s", ErrInvalidSchema, f.Name, f.Max, f.Type)
		}
	}
	return nil
}

// Size returns the packed image size in bytes
func (s *Schema) Size() int {
	n := 0
	for _, f := range s.Fields {
		n += f.Type.Size()
	}
	return n
}

func (s *Schema) index(name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// NewImage builds an image from named values. Every field must be present
// and fit its type; declared bounds are left to validation.
func (s *Schema) NewImage(values map[string]uint64) (*Image, error) {
	for name := range values {
		if s.index(name) < 0 {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownField, s.Name, name)
		}
	}

	img := &Image{schema: s, values: make([]uint64, len(s.Fields))}
	for i, f := range s.Fields {
		v, ok := values[f.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrMissingField, s.Name, f.Name)
		}
		if v > f.Type.Limit() {
			return nil, fmt.Errorf("%w: %s.%s = %d (%s)", ErrFieldOverflow, s.Name, f.Name, v, f.Type)
		}
		img.values[i] = v
	}
	return img, nil
}

// Decode builds an image from its packed big-endian form
func (s *Schema) Decode(data []byte) (*Image, error) {
	if len(data) != s.Size() {
		return nil, fmt.Errorf("%w: %s expects %d bytes, got %d", ErrImageSize, s.Name, s.Size(), len(data))
	}

	img := &Image{schema: s, values: make([]uint64, len(s.Fields))}
	off := 0
	for i, f := range s.Fields {
		switch f.Type {
		case U8:
			img.values[i] = uint64(data[off])
		case U16:
			img.values[i] = uint64(binary.BigEndian.Uint16(data[off:]))
		case U32:
			img.values[i] = uint64(binary.BigEndian.Uint32(data[off:]))
		}
		off += f.Type.Size()
	}
	return img, nil
}

// Image is an immutable table image
type Image struct {
	schema *Schema
	values []uint64
}

// Schema returns the schema the image was built for
func (img *Image) Schema() *Schema {
	return img.schema
}

// Value returns the named field
func (img *Image) Value(name string) (uint64, bool) {
	i := img.schema.index(name)
	if i < 0 {
		return 0, false
	}
	return img.values[i], true
}

// Values returns a copy of every field keyed by name
func (img *Image) Values() map[string]uint64 {
	out := make(map[string]uint64, len(img.values))
	for i, f := range img.schema.Fields {
		out[f.Name] = img.values[i]
	}
	return out
}

// Bytes returns the packed big-endian form
func (img *Image) Bytes() []byte {
	buf := make([]byte, img.schema.Size())
	off := 0
	for i, f := range img.schema.Fields {
		switch f.Type {
		case U8:
			buf[off] = uint8(img.values[i])
		case U16:
			binary.BigEndian.PutUint16(buf[off:], uint16(img.values[i]))
		case U32:
			binary.BigEndian.PutUint32(buf[off:], uint32(img.values[i]))
		}
		off += f.Type.Size()
	}
	return buf
}

// CRC returns the CRC-32 (IEEE) of the packed image
func (img *Image) CRC() uint32 {
	return crc32.ChecksumIEEE(img.Bytes())
}

// ValidateFunc decides whether a candidate image may become active
type ValidateFunc func(img *Image) error

// BoundsValidator rejects any field above its declared Max, reporting code
func BoundsValidator(code int32) ValidateFunc {
	return func(img *Image) error {
		for i, f := range img.schema.Fields {
			if f.Max != 0 && img.values[i] > f.Max {
				return &RangeError{Field: f.Name, Value: img.values[i], Max: f.Max, Code: code}
			}
		}
		return nil
	}
}
