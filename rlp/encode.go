// Package rlp implements Recursive Length Prefix encoding, the wire
// format the verifier's account, header, and transaction mirror
// structs (types.accountRLP, types.headerRLP, types.blockRLP,
// types.txDataRLP, …) encode to and decode from, and the format
// mpt's node hasher wraps its own child lists in via WrapList.
package rlp

import (
	"math/big"
	"reflect"
)

// EncodeToBytes returns the RLP encoding of val. val must be one of:
// bool, an unsigned or signed integer kind, *big.Int, []byte/[N]byte,
// string, a slice/array of supported types, or a struct whose exported
// fields are all of supported types.
func EncodeToBytes(val interface{}) ([]byte, error) {
	return encode(reflect.ValueOf(val))
}

// WrapList wraps an already RLP-encoded payload (the concatenation of
// one or more complete items) in a list header.
func WrapList(payload []byte) []byte {
	return listHeader(payload)
}

func encode(v reflect.Value) ([]byte, error) {
	for v.Kind() == reflect.Interface || v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return []byte{0x80}, nil
		}
		v = v.Elem()
	}

	if v.Type() == reflect.TypeOf(big.Int{}) {
		return encodeBigInt(v.Addr().Interface().(*big.Int)), nil
	}

	switch v.Kind() {
	case reflect.Bool:
		if v.Bool() {
			return []byte{0x01}, nil
		}
		return []byte{0x80}, nil

	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uint:
		return encodeUint(v.Uint()), nil

	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Int:
		return encodeUint(uint64(v.Int())), nil

	case reflect.String:
		return encodeBytes([]byte(v.String())), nil

	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return encodeBytes(v.Bytes()), nil
		}
		return encodeItems(v)

	case reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			buf := make([]byte, v.Len())
			for i := range buf {
				buf[i] = byte(v.Index(i).Uint())
			}
			return encodeBytes(buf), nil
		}
		return encodeItems(v)

	case reflect.Struct:
		return encodeFields(v)

	case reflect.Invalid:
		return []byte{0x80}, nil

	default:
		return nil, ErrValueTooLarge
	}
}

func encodeUint(u uint64) []byte {
	switch {
	case u == 0:
		return []byte{0x80}
	case u < 128:
		return []byte{byte(u)}
	default:
		return encodeBytes(bigEndian(u))
	}
}

func encodeBigInt(i *big.Int) []byte {
	if i.Sign() == 0 {
		return []byte{0x80}
	}
	return encodeBytes(i.Bytes())
}

// encodeBytes frames data as an RLP string: a single byte in [0x00,
// 0x7f] stands for itself, otherwise a length-prefixed string header
// precedes the payload.
func encodeBytes(data []byte) []byte {
	if len(data) == 1 && data[0] <= 0x7f {
		return data
	}
	return frame(data, 0x80, 0xb7)
}

func encodeItems(v reflect.Value) ([]byte, error) {
	var payload []byte
	for i := 0; i < v.Len(); i++ {
		item, err := encode(v.Index(i))
		if err != nil {
			return nil, err
		}
		payload = append(payload, item...)
	}
	return listHeader(payload), nil
}

func encodeFields(v reflect.Value) ([]byte, error) {
	var payload []byte
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if !t.Field(i).IsExported() {
			continue
		}
		item, err := encode(v.Field(i))
		if err != nil {
			return nil, err
		}
		payload = append(payload, item...)
	}
	return listHeader(payload), nil
}

func listHeader(payload []byte) []byte {
	return frame(payload, 0xc0, 0xf7)
}

// frame prepends a length header to payload. shortBase is the prefix
// byte for payloads of 0-55 bytes (shortBase+len); longBase is the
// prefix byte for longer payloads (longBase+lenOfLen, followed by the
// big-endian length and then the payload).
func frame(payload []byte, shortBase, longBase byte) []byte {
	n := len(payload)
	if n <= 55 {
		buf := make([]byte, 1+n)
		buf[0] = shortBase + byte(n)
		copy(buf[1:], payload)
		return buf
	}
	lenBytes := bigEndian(uint64(n))
	buf := make([]byte, 1+len(lenBytes)+n)
	buf[0] = longBase + byte(len(lenBytes))
	copy(buf[1:], lenBytes)
	copy(buf[1+len(lenBytes):], payload)
	return buf
}

// bigEndian returns u as big-endian bytes with no leading zero byte.
func bigEndian(u uint64) []byte {
	var buf [8]byte
	n := 0
	for shift := 56; shift >= 0; shift -= 8 {
		b := byte(u >> uint(shift))
		if n == 0 && b == 0 && shift != 0 {
			continue
		}
		buf[n] = b
		n++
	}
	if n == 0 {
		return []byte{0}
	}
	return buf[:n]
}
