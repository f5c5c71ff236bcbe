// Package genesis implements the one-shot genesis-state importer (C2):
// loading a JSON account dump into a fresh MPT and verifying it
// reproduces the genesis block's declared state root.
package genesis

import (
	"compress/gzip"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/holiman/uint256"

	"github.com/rainblock/verifier/account"
	"github.com/rainblock/verifier/crypto"
	"github.com/rainblock/verifier/mpt"
	"github.com/rainblock/verifier/types"
)

// ErrStorageUnsupported is returned for a genesis account that
// declares non-empty storage, which this verifier does not yet
// support.
var ErrStorageUnsupported = errors.New("genesis: accounts with non-empty storage are not supported")

// ErrCodeHashMismatch is returned when an account's code does not hash
// to its declared codeHash.
var ErrCodeHashMismatch = errors.New("genesis: code does not match declared codeHash")

// ErrStateRootMismatch is returned when the loaded tree's root hash
// does not match the genesis header's declared stateRoot.
var ErrStateRootMismatch = errors.New("genesis: computed state root does not match genesis header")

// dumpAccount is one entry of the JSON account dump.
type dumpAccount struct {
	Address  string `json:"address"`
	Nonce    uint64 `json:"nonce"`
	Balance  string `json:"balance"` // decimal string, parsed as u256
	Code     string `json:"code"`    // hex-encoded, "" for EOA
	CodeHash string `json:"codeHash"`
	Storage  map[string]string `json:"storage,omitempty"`
}

// Load reads the JSON (optionally gzip-compressed) account dump at
// path, inserts every account into a fresh tree, prunes the cache, and
// asserts the resulting root hash equals wantStateRoot.
func Load(path string, wantStateRoot types.Hash, pruneDepth int) (*mpt.Tree, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("genesis: open %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("genesis: gzip %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	var dump []dumpAccount
	if err := json.NewDecoder(r).Decode(&dump); err != nil {
		return nil, fmt.Errorf("genesis: decode %s: %w", path, err)
	}

	tree := mpt.New()
	puts := make([]mpt.PutOp, 0, len(dump))
	for _, d := range dump {
		put, err := toPutOp(d)
		if err != nil {
			return nil, fmt.Errorf("genesis: account %s: %w", d.Address, err)
		}
		puts = append(puts, put)
	}

	newTree, err := tree.BatchCow(puts, mpt.Bag{}, mpt.Bag{}, nil)
	if err != nil {
		return nil, fmt.Errorf("genesis: build tree: %w", err)
	}
	newTree.PruneStateCache(pruneDepth)

	if got := newTree.RootHash(); got != wantStateRoot {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrStateRootMismatch, got.String(), wantStateRoot.String())
	}
	return newTree, nil
}

func toPutOp(d dumpAccount) (mpt.PutOp, error) {
	if len(d.Storage) > 0 {
		return mpt.PutOp{}, ErrStorageUnsupported
	}

	addr, err := types.HexToAddress(d.Address)
	if err != nil {
		return mpt.PutOp{}, err
	}
	code, err := decodeHexOrEmpty(d.Code)
	if err != nil {
		return mpt.PutOp{}, err
	}
	codeHash := types.EmptyStringHash
	if len(code) > 0 {
		codeHash = crypto.Keccak256Hash(code)
	}
	if d.CodeHash != "" {
		declared, err := types.HexToHash(d.CodeHash)
		if err != nil {
			return mpt.PutOp{}, err
		}
		if declared != codeHash {
			return mpt.PutOp{}, ErrCodeHashMismatch
		}
	}

	balance, ok := new(uint256.Int).SetString(d.Balance, 10)
	if !ok {
		return mpt.PutOp{}, fmt.Errorf("genesis: invalid balance %q", d.Balance)
	}

	acc := &types.Account{
		Nonce:       d.Nonce,
		Balance:     balance,
		CodeHash:    codeHash,
		StorageRoot: types.EmptyBufferHash,
	}
	enc, err := acc.EncodeRLP()
	if err != nil {
		return mpt.PutOp{}, err
	}

	hashed := account.HashAddress(addr)
	return mpt.PutOp{Key: hashed.Bytes(), Value: enc}, nil
}

func decodeHexOrEmpty(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return nil, nil
	}
	return hex.DecodeString(s)
}
