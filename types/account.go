package types

import (
	"bytes"

	"github.com/holiman/uint256"

	"github.com/rainblock/verifier/rlp"
)

// EmptyStringHash is Keccak-256 of the empty byte sequence, the codeHash
// of every externally-owned account.
var EmptyStringHash = Hash{
	0xc5, 0xd2, 0x46, 0x01, 0x86, 0xf7, 0x23, 0x3c, 0x92, 0x7e, 0x7d, 0xb2,
	0xdc, 0xc7, 0x03, 0xc0, 0xe5, 0x00, 0xb6, 0x53, 0xca, 0x82, 0x27, 0x3b,
	0x7b, 0xfa, 0xd8, 0x04, 0x5d, 0x85, 0xa4, 0x70,
}

// EmptyBufferHash is Keccak-256 of the RLP encoding of an empty MPT,
// the storageRoot of every account with no storage.
var EmptyBufferHash = Hash{
	0x56, 0xe8, 0x1f, 0x17, 0x1b, 0xcc, 0x55, 0xa6, 0xff, 0x83, 0x45, 0xe6,
	0x92, 0xc0, 0xf8, 0x6e, 0x5b, 0x48, 0xe0, 0x1b, 0x99, 0x6c, 0xad, 0xc0,
	0x01, 0x62, 0x2f, 0xb5, 0xe3, 0x63, 0xb4, 0x21,
}

// Account is the tuple stored at each leaf of the state MPT.
// It is a value object: execution always mutates a Copy(), never the
// instance held by the tree or the write-set, until that draft is
// itself installed as the new write-set entry.
type Account struct {
	Nonce       uint64
	Balance     *uint256.Int
	CodeHash    Hash
	StorageRoot Hash
}

// NewEmptyAccount returns a freshly-created, code-less, storage-less
// account with the given nonce and balance, as synthesized by
// get_account when generateFromAccounts is enabled.
func NewEmptyAccount(nonce uint64, balance *uint256.Int) *Account {
	return &Account{
		Nonce:       nonce,
		Balance:     balance.Clone(),
		CodeHash:    EmptyStringHash,
		StorageRoot: EmptyBufferHash,
	}
}

// Copy returns an independent mutable draft of the account.
func (a *Account) Copy() *Account {
	return &Account{
		Nonce:       a.Nonce,
		Balance:     a.Balance.Clone(),
		CodeHash:    a.CodeHash,
		StorageRoot: a.StorageRoot,
	}
}

// HasCode reports whether the account has contract code deployed.
func (a *Account) HasCode() bool {
	return a.CodeHash != EmptyStringHash
}

// Debit subtracts value from the balance, returning an error if the
// balance would underflow rather than silently wrapping.
func (a *Account) Debit(value *uint256.Int) error {
	var result uint256.Int
	if result.SubOverflow(a.Balance, value) {
		return ErrBalanceUnderflow
	}
	a.Balance = &result
	return nil
}

// Credit adds value to the balance, returning an error if the balance
// would overflow 256 bits.
func (a *Account) Credit(value *uint256.Int) error {
	var result uint256.Int
	if result.AddOverflow(a.Balance, value) {
		return ErrBalanceOverflow
	}
	a.Balance = &result
	return nil
}

// accountRLP is the on-the-wire 4-tuple: (nonce, balance, codeHash,
// storageRoot), in that fixed order.
type accountRLP struct {
	Nonce       uint64
	Balance     []byte
	CodeHash    []byte
	StorageRoot []byte
}

// EncodeRLP returns the canonical RLP 4-tuple encoding of the account.
func (a *Account) EncodeRLP() ([]byte, error) {
	return rlp.EncodeToBytes(&accountRLP{
		Nonce:       a.Nonce,
		Balance:     a.Balance.Bytes(),
		CodeHash:    a.CodeHash.Bytes(),
		StorageRoot: a.StorageRoot.Bytes(),
	})
}

// DecodeAccountRLP decodes the canonical RLP 4-tuple into an Account.
func DecodeAccountRLP(data []byte) (*Account, error) {
	s := rlp.NewStream(bytes.NewReader(data))
	if _, err := s.List(); err != nil {
		return nil, err
	}
	nonce, err := s.Uint64()
	if err != nil {
		return nil, err
	}
	balanceBytes, err := s.Bytes()
	if err != nil {
		return nil, err
	}
	codeHashBytes, err := s.Bytes()
	if err != nil {
		return nil, err
	}
	storageRootBytes, err := s.Bytes()
	if err != nil {
		return nil, err
	}
	if err := s.ListEnd(); err != nil {
		return nil, err
	}
	return &Account{
		Nonce:       nonce,
		Balance:     new(uint256.Int).SetBytes(balanceBytes),
		CodeHash:    BytesToHash(codeHashBytes),
		StorageRoot: BytesToHash(storageRootBytes),
	}, nil
}
