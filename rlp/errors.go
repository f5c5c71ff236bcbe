package rlp

import "errors"

// Decode-time errors. All are terminal for the item being decoded;
// callers that decode a transaction or witness node treat any of
// these as a structural failure (§7's DecodeError kind).
var (
	ErrExpectedString   = errors.New("rlp: expected a string, got a list")
	ErrExpectedList     = errors.New("rlp: expected a list, got a string")
	ErrCanonSize        = errors.New("rlp: single byte encoded with a string header")
	ErrCanonInt         = errors.New("rlp: integer has a leading zero byte")
	ErrNonCanonicalSize = errors.New("rlp: long-form length that fits in short form")
	ErrUint64Range      = errors.New("rlp: integer does not fit in uint64")
	ErrEOL              = errors.New("rlp: list was not fully consumed before ListEnd")
)

// ErrValueTooLarge is returned by EncodeToBytes for a Go value with no
// RLP representation (e.g. a float, channel, or function).
var ErrValueTooLarge = errors.New("rlp: unsupported value kind")
