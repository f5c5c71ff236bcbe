// Package account implements the in-memory account model (C1): the
// Account value type lives in package types, while this package holds
// the write-set overlay and the get_account contract the execution
// engine reads and mutates accounts through.
package account

import (
	"errors"

	"github.com/holiman/uint256"

	"github.com/rainblock/verifier/crypto"
	"github.com/rainblock/verifier/mpt"
	"github.com/rainblock/verifier/types"
)

// ErrUnsupportedFeature is returned for behaviors the verifier
// deliberately does not implement (contract creation, code execution).
var ErrUnsupportedFeature = errors.New("account: unsupported feature")

// Entry is one write-set entry: the hashed tree key alongside the
// current draft account. Both the unhashed address (the map key) and
// the hashed address are kept to avoid rehashing in hot paths.
type Entry struct {
	HashedAddress types.Hash
	Account       *types.Account
}

// WriteSet is the in-flight overlay of draft account states,
// consulted before the tree (invariant I5: the tree is read-only
// until COW materialization). Keyed by the *unhashed* address.
type WriteSet map[types.Address]*Entry

// NewWriteSet returns an empty write-set.
func NewWriteSet() WriteSet { return make(WriteSet) }

// Clone returns a deep copy of the write-set so a failed transaction
// can be rolled back to a prior snapshot without touching other
// in-flight drafts.
func (ws WriteSet) Clone() WriteSet {
	cp := make(WriteSet, len(ws))
	for addr, e := range ws {
		cp[addr] = &Entry{HashedAddress: e.HashedAddress, Account: e.Account.Copy()}
	}
	return cp
}

// Puts converts the write-set into the mpt.PutOp list BatchCow
// expects, keyed by hashed address, valued by the RLP-encoded account.
func (ws WriteSet) Puts() ([]mpt.PutOp, error) {
	puts := make([]mpt.PutOp, 0, len(ws))
	for _, e := range ws {
		enc, err := e.Account.EncodeRLP()
		if err != nil {
			return nil, err
		}
		puts = append(puts, mpt.PutOp{Key: e.HashedAddress.Bytes(), Value: enc})
	}
	return puts, nil
}

// GetAccount implements get_account: look up addr in the write-set
// first, falling through to the tree on a miss. On KeyNotFound, if
// generate is set, synthesize a fresh account with the maximum u256
// balance and the given nonce (used only to let the verifier keep
// executing transactions from accounts the genesis dump omitted).
func GetAccount(
	ws WriteSet,
	tree *mpt.Tree,
	addr types.Address,
	addrHash types.Hash,
	primary, fallback mpt.NodeSource,
	usedNodes mpt.Bag,
	generate bool,
	generateNonce uint64,
) (*types.Account, error) {
	if e, ok := ws[addr]; ok {
		return e.Account, nil
	}

	data, err := tree.GetFromCache(addrHash.Bytes(), usedNodes, primary, fallback)
	switch {
	case err == nil:
		return types.DecodeAccountRLP(data)
	case err == mpt.ErrKeyNotFound:
		if generate {
			return types.NewEmptyAccount(generateNonce, MaxBalance()), nil
		}
		return nil, mpt.ErrKeyNotFound
	default:
		return nil, err
	}
}

// MaxBalance returns the maximum representable u256 balance, used to
// seed synthesized accounts (config.generateFromAccounts).
func MaxBalance() *uint256.Int {
	max := new(uint256.Int)
	return max.Not(max) // 0 negated is all-ones: 2^256 - 1.
}

// HashAddress returns Keccak(address), the tree key an account lives
// at.
func HashAddress(addr types.Address) types.Hash {
	return crypto.Keccak256Hash(addr.Bytes())
}
