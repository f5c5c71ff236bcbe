// Package types defines the primitive wire types shared across the
// verifier: hashes, addresses, accounts, transactions, headers and blocks.
package types

import (
	"encoding/hex"
	"fmt"
)

// HashLength is the byte length of a Keccak-256 digest.
const HashLength = 32

// AddressLength is the byte length of an Ethereum-style account address.
const AddressLength = 20

// Hash is a 256-bit digest.
type Hash [HashLength]byte

// BytesToHash right-aligns b into a Hash, truncating from the left if
// b is longer than HashLength.
func BytesToHash(b []byte) Hash {
	var h Hash
	if len(b) > HashLength {
		b = b[len(b)-HashLength:]
	}
	copy(h[HashLength-len(b):], b)
	return h
}

func (h Hash) Bytes() []byte { return h[:] }

func (h Hash) String() string { return "0x" + hex.EncodeToString(h[:]) }

func (h Hash) IsZero() bool { return h == Hash{} }

// HexToHash decodes a 0x-prefixed or bare hex string into a Hash.
func HexToHash(s string) (Hash, error) {
	b, err := decodeHex(s)
	if err != nil {
		return Hash{}, err
	}
	return BytesToHash(b), nil
}

// Address is a 160-bit account address.
type Address [AddressLength]byte

// BytesToAddress right-aligns b into an Address.
func BytesToAddress(b []byte) Address {
	var a Address
	if len(b) > AddressLength {
		b = b[len(b)-AddressLength:]
	}
	copy(a[AddressLength-len(b):], b)
	return a
}

func (a Address) Bytes() []byte { return a[:] }

func (a Address) String() string { return "0x" + hex.EncodeToString(a[:]) }

func (a Address) IsZero() bool { return a == Address{} }

// HexToAddress decodes a 0x-prefixed or bare hex string into an Address.
func HexToAddress(s string) (Address, error) {
	b, err := decodeHex(s)
	if err != nil {
		return Address{}, err
	}
	return BytesToAddress(b), nil
}

func decodeHex(s string) ([]byte, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("types: invalid hex string: %w", err)
	}
	return b, nil
}
