package rlp

import (
	"bytes"
	"io"
	"math/big"
	"testing"
)

func TestDecodeStrings(t *testing.T) {
	cases := []struct {
		name string
		in   []byte
		want string
	}{
		{"empty", []byte{0x80}, ""},
		{"single char below 0x80", []byte{0x61}, "a"},
		{"short word", []byte{0x83, 0x64, 0x6f, 0x67}, "dog"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var got string
			if err := DecodeBytes(c.in, &got); err != nil {
				t.Fatal(err)
			}
			if got != c.want {
				t.Fatalf("got %q, want %q", got, c.want)
			}
		})
	}
}

func TestDecodeUints(t *testing.T) {
	cases := []struct {
		in   []byte
		want uint64
	}{
		{[]byte{0x80}, 0},
		{[]byte{0x01}, 1},
		{[]byte{0x7f}, 127},
		{[]byte{0x81, 0x80}, 128},
		{[]byte{0x82, 0x04, 0x00}, 1024},
	}
	for _, c := range cases {
		var got uint64
		if err := DecodeBytes(c.in, &got); err != nil {
			t.Fatal(err)
		}
		if got != c.want {
			t.Fatalf("DecodeBytes(%x) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestDecodeBigInt(t *testing.T) {
	var got big.Int
	if err := DecodeBytes([]byte{0x82, 0x04, 0x00}, &got); err != nil {
		t.Fatal(err)
	}
	if got.Cmp(big.NewInt(1024)) != 0 {
		t.Fatalf("got %s, want 1024", got.String())
	}
}

func TestDecodeBool(t *testing.T) {
	cases := []struct {
		in   []byte
		want bool
	}{
		{[]byte{0x80}, false},
		{[]byte{0x01}, true},
	}
	for _, c := range cases {
		var got bool
		if err := DecodeBytes(c.in, &got); err != nil {
			t.Fatal(err)
		}
		if got != c.want {
			t.Fatalf("got %v, want %v", got, c.want)
		}
	}
}

func TestDecodeRejectsNonCanonicalInt(t *testing.T) {
	var u uint64
	if err := DecodeBytes([]byte{0x82, 0x00, 0x01}, &u); err != ErrCanonInt {
		t.Fatalf("err = %v, want ErrCanonInt", err)
	}
}

func TestDecodeRejectsNonCanonicalSingleByteString(t *testing.T) {
	var s string
	if err := DecodeBytes([]byte{0x81, 0x61}, &s); err != ErrCanonSize {
		t.Fatalf("err = %v, want ErrCanonSize", err)
	}
}

func TestDecodeRejectsLongFormThatFitsShort(t *testing.T) {
	var s string
	if err := DecodeBytes([]byte{0xb8, 0x03, 0x64, 0x6f, 0x67}, &s); err != ErrNonCanonicalSize {
		t.Fatalf("err = %v, want ErrNonCanonicalSize", err)
	}
}

func TestDecodeListIntoSlice(t *testing.T) {
	var got []string
	in := []byte{0xc8, 0x83, 0x63, 0x61, 0x74, 0x83, 0x64, 0x6f, 0x67}
	if err := DecodeBytes(in, &got); err != nil {
		t.Fatal(err)
	}
	want := []string{"cat", "dog"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestDecodeStructRoundTripsThroughEncode(t *testing.T) {
	type pair struct {
		Name string
		Age  uint64
	}
	encoded, err := EncodeToBytes(pair{Name: "cat", Age: 5})
	if err != nil {
		t.Fatal(err)
	}
	var got pair
	if err := DecodeBytes(encoded, &got); err != nil {
		t.Fatal(err)
	}
	if got.Name != "cat" || got.Age != 5 {
		t.Fatalf("got %+v", got)
	}
}

func TestDecodeRejectsTruncatedInput(t *testing.T) {
	var s string
	if err := DecodeBytes([]byte{0x83, 0x64, 0x6f}, &s); err != io.ErrUnexpectedEOF {
		t.Fatalf("err = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestDecodeBytesRejectsNonPointer(t *testing.T) {
	var s string
	if err := DecodeBytes([]byte{0x80}, s); err != ErrExpectedString {
		t.Fatalf("err = %v, want ErrExpectedString", err)
	}
}

func TestStreamListEndRejectsUnderconsumedList(t *testing.T) {
	s := NewStream(bytes.NewReader([]byte{0xc8, 0x83, 0x63, 0x61, 0x74, 0x83, 0x64, 0x6f, 0x67}))
	if _, err := s.List(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Bytes(); err != nil {
		t.Fatal(err)
	}
	if err := s.ListEnd(); err != ErrEOL {
		t.Fatalf("err = %v, want ErrEOL (list has one item left)", err)
	}
}

func TestStreamBytesRejectsList(t *testing.T) {
	s := NewStream(bytes.NewReader([]byte{0xc0}))
	if _, err := s.Bytes(); err != ErrExpectedString {
		t.Fatalf("err = %v, want ErrExpectedString", err)
	}
}

func TestStreamListRejectsString(t *testing.T) {
	s := NewStream(bytes.NewReader([]byte{0x80}))
	if _, err := s.List(); err != ErrExpectedList {
		t.Fatalf("err = %v, want ErrExpectedList", err)
	}
}
