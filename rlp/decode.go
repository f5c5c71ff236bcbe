package rlp

import (
	"bytes"
	"io"
	"math/big"
	"reflect"
)

// Kind classifies an RLP item's wire representation.
type Kind int

const (
	singleByte Kind = iota // one byte in [0x00, 0x7f], value is itself
	stringItem             // length-prefixed byte string
	listItem               // length-prefixed, recursively-encoded list
)

// DecodeBytes decodes the RLP encoding in b into the value pointed to
// by val, which must be a non-nil pointer.
func DecodeBytes(b []byte, val interface{}) error {
	v := reflect.ValueOf(val)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return ErrExpectedString
	}
	return newStream(b).into(v.Elem())
}

// Stream is a cursor over an RLP byte buffer, tracking the current
// list-nesting boundary so List/ListEnd can validate that a struct or
// slice decode consumed exactly its declared span.
type Stream struct {
	data  []byte
	pos   int
	stack []int // exclusive end offset of each enclosing list, innermost last
}

// NewStream drains r and returns a Stream over its contents.
func NewStream(r io.Reader) *Stream {
	data, _ := io.ReadAll(r)
	return newStream(data)
}

func newStream(data []byte) *Stream {
	return &Stream{data: data}
}

func (s *Stream) boundary() int {
	if n := len(s.stack); n > 0 {
		return s.stack[n-1]
	}
	return len(s.data)
}

// item describes one RLP item at the cursor without consuming it:
// its kind, payload span, and total byte length including its header.
func (s *Stream) item() (kind Kind, payload []byte, consumed int, err error) {
	lim := s.boundary()
	if s.pos >= lim {
		return 0, nil, 0, io.EOF
	}
	prefix := s.data[s.pos]

	switch {
	case prefix <= 0x7f:
		return singleByte, s.data[s.pos : s.pos+1], 1, nil

	case prefix <= 0xb7:
		size := int(prefix - 0x80)
		start := s.pos + 1
		end := start + size
		if end > lim {
			return 0, nil, 0, io.ErrUnexpectedEOF
		}
		if size == 1 && s.data[start] <= 0x7f {
			return 0, nil, 0, ErrCanonSize
		}
		return stringItem, s.data[start:end], 1 + size, nil

	case prefix <= 0xbf:
		lenOfLen := int(prefix - 0xb7)
		size, err := s.longLen(lenOfLen, lim)
		if err != nil {
			return 0, nil, 0, err
		}
		start := s.pos + 1 + lenOfLen
		end := start + size
		if end > lim {
			return 0, nil, 0, io.ErrUnexpectedEOF
		}
		return stringItem, s.data[start:end], 1 + lenOfLen + size, nil

	case prefix <= 0xf7:
		size := int(prefix - 0xc0)
		start := s.pos + 1
		end := start + size
		if end > lim {
			return 0, nil, 0, io.ErrUnexpectedEOF
		}
		return listItem, s.data[start:end], 1 + size, nil

	default:
		lenOfLen := int(prefix - 0xf7)
		size, err := s.longLen(lenOfLen, lim)
		if err != nil {
			return 0, nil, 0, err
		}
		start := s.pos + 1 + lenOfLen
		end := start + size
		if end > lim {
			return 0, nil, 0, io.ErrUnexpectedEOF
		}
		return listItem, s.data[start:end], 1 + lenOfLen + size, nil
	}
}

// longLen reads the multi-byte length field of a long string/list
// header and rejects non-canonical encodings (leading zero, or a
// length that would have fit in the short form).
func (s *Stream) longLen(lenOfLen, lim int) (int, error) {
	if s.pos+1+lenOfLen > lim {
		return 0, io.ErrUnexpectedEOF
	}
	raw := s.data[s.pos+1 : s.pos+1+lenOfLen]
	if len(raw) > 0 && raw[0] == 0 {
		return 0, ErrCanonInt
	}
	size := int(beUint64(raw))
	if size <= 55 {
		return 0, ErrNonCanonicalSize
	}
	return size, nil
}

// Bytes reads the next item as a byte string.
func (s *Stream) Bytes() ([]byte, error) {
	kind, payload, consumed, err := s.item()
	if err != nil {
		return nil, err
	}
	if kind == listItem {
		return nil, ErrExpectedString
	}
	s.pos += consumed
	return payload, nil
}

// List enters the next item as a list, returning its payload span in
// bytes; subsequent reads are scoped to that span until ListEnd.
func (s *Stream) List() (uint64, error) {
	kind, payload, consumed, err := s.item()
	if err != nil {
		return 0, err
	}
	if kind != listItem {
		return 0, ErrExpectedList
	}
	s.stack = append(s.stack, s.pos+consumed)
	s.pos += consumed - len(payload)
	return uint64(len(payload)), nil
}

// ListEnd closes the list scope opened by the matching List call,
// failing if the scope wasn't read to its declared end.
func (s *Stream) ListEnd() error {
	if len(s.stack) == 0 {
		return ErrExpectedList
	}
	end := s.stack[len(s.stack)-1]
	if s.pos != end {
		return ErrEOL
	}
	s.stack = s.stack[:len(s.stack)-1]
	return nil
}

// Uint64 reads the next item as an unsigned integer.
func (s *Stream) Uint64() (uint64, error) {
	b, err := s.Bytes()
	if err != nil {
		return 0, err
	}
	switch {
	case len(b) == 0:
		return 0, nil
	case len(b) > 8:
		return 0, ErrUint64Range
	case len(b) > 1 && b[0] == 0:
		return 0, ErrCanonInt
	}
	return beUint64(b), nil
}

// BigInt reads the next item as an arbitrary-precision unsigned integer.
func (s *Stream) BigInt() (*big.Int, error) {
	b, err := s.Bytes()
	if err != nil {
		return nil, err
	}
	if len(b) > 1 && b[0] == 0 {
		return nil, ErrCanonInt
	}
	return new(big.Int).SetBytes(b), nil
}

func beUint64(b []byte) uint64 {
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v
}

// into decodes the next RLP item into v, which must already be
// addressable (the caller has dereferenced any top-level pointer).
func (s *Stream) into(v reflect.Value) error {
	if v.Type() == reflect.TypeOf(big.Int{}) {
		bi, err := s.BigInt()
		if err != nil {
			return err
		}
		v.Set(reflect.ValueOf(*bi))
		return nil
	}

	if v.Kind() == reflect.Ptr {
		if v.Type() == reflect.TypeOf((*big.Int)(nil)) {
			bi, err := s.BigInt()
			if err != nil {
				return err
			}
			v.Set(reflect.ValueOf(bi))
			return nil
		}
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		return s.into(v.Elem())
	}

	switch v.Kind() {
	case reflect.Bool:
		return s.intoBool(v)
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uint:
		u, err := s.Uint64()
		if err != nil {
			return err
		}
		v.SetUint(u)
		return nil
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Int:
		u, err := s.Uint64()
		if err != nil {
			return err
		}
		v.SetInt(int64(u))
		return nil
	case reflect.String:
		b, err := s.Bytes()
		if err != nil {
			return err
		}
		v.SetString(string(b))
		return nil
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			b, err := s.Bytes()
			if err != nil {
				return err
			}
			v.SetBytes(bytes.Clone(b))
			return nil
		}
		return s.intoSequence(v, true)
	case reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			b, err := s.Bytes()
			if err != nil {
				return err
			}
			for i := 0; i < v.Len() && i < len(b); i++ {
				v.Index(i).SetUint(uint64(b[i]))
			}
			return nil
		}
		return s.intoSequence(v, false)
	case reflect.Struct:
		return s.intoStruct(v)
	default:
		return ErrExpectedString
	}
}

func (s *Stream) intoBool(v reflect.Value) error {
	b, err := s.Bytes()
	if err != nil {
		return err
	}
	switch {
	case len(b) == 0:
		v.SetBool(false)
	case len(b) == 1 && b[0] == 0x01:
		v.SetBool(true)
	case len(b) == 1 && b[0] == 0x00:
		v.SetBool(false)
	default:
		return ErrCanonInt
	}
	return nil
}

func (s *Stream) intoSequence(v reflect.Value, growable bool) error {
	if _, err := s.List(); err != nil {
		return err
	}
	end := s.stack[len(s.stack)-1]
	i := 0
	for s.pos < end {
		if growable && i >= v.Len() {
			v.Set(reflect.Append(v, reflect.New(v.Type().Elem()).Elem()))
		}
		if i < v.Len() {
			if err := s.into(v.Index(i)); err != nil {
				return err
			}
		}
		i++
	}
	return s.ListEnd()
}

func (s *Stream) intoStruct(v reflect.Value) error {
	if _, err := s.List(); err != nil {
		return err
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if !t.Field(i).IsExported() {
			continue
		}
		if err := s.into(v.Field(i)); err != nil {
			return err
		}
	}
	return s.ListEnd()
}
