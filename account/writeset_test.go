package account

import (
	"testing"

	"github.com/holiman/uint256"

	"github.com/rainblock/verifier/mpt"
	"github.com/rainblock/verifier/types"
)

func TestGetAccountPrefersWriteSet(t *testing.T) {
	addr := types.Address{1}
	ws := NewWriteSet()
	draft := types.NewEmptyAccount(3, uint256.NewInt(100))
	ws[addr] = &Entry{HashedAddress: HashAddress(addr), Account: draft}

	got, err := GetAccount(ws, mpt.New(), addr, HashAddress(addr), mpt.Bag{}, nil, mpt.Bag{}, false, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got != draft {
		t.Errorf("expected the exact write-set draft to be returned")
	}
}

func TestGetAccountFallsThroughToTree(t *testing.T) {
	addr := types.Address{2}
	hashed := HashAddress(addr)
	acc := types.NewEmptyAccount(1, uint256.NewInt(50))
	enc, err := acc.EncodeRLP()
	if err != nil {
		t.Fatal(err)
	}
	tree, err := mpt.New().BatchCow([]mpt.PutOp{{Key: hashed.Bytes(), Value: enc}}, mpt.Bag{}, mpt.Bag{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	got, err := GetAccount(NewWriteSet(), tree, addr, hashed, mpt.Bag{}, nil, mpt.Bag{}, false, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got.Nonce != 1 || got.Balance.Uint64() != 50 {
		t.Errorf("got %+v, want nonce=1 balance=50", got)
	}
}

func TestGetAccountGeneratesOnKeyNotFound(t *testing.T) {
	addr := types.Address{3}
	got, err := GetAccount(NewWriteSet(), mpt.New(), addr, HashAddress(addr), mpt.Bag{}, nil, mpt.Bag{}, true, 7)
	if err != nil {
		t.Fatal(err)
	}
	if got.Nonce != 7 {
		t.Errorf("generated nonce = %d, want 7", got.Nonce)
	}
	if got.Balance.Cmp(MaxBalance()) != 0 {
		t.Errorf("generated account should have the maximum u256 balance")
	}
}

func TestGetAccountFailsWithoutGenerate(t *testing.T) {
	addr := types.Address{4}
	_, err := GetAccount(NewWriteSet(), mpt.New(), addr, HashAddress(addr), mpt.Bag{}, nil, mpt.Bag{}, false, 0)
	if err != mpt.ErrKeyNotFound {
		t.Errorf("err = %v, want ErrKeyNotFound", err)
	}
}

func TestAccountDebitOverflowIsAnError(t *testing.T) {
	acc := types.NewEmptyAccount(0, uint256.NewInt(10))
	if err := acc.Debit(uint256.NewInt(20)); err != types.ErrBalanceUnderflow {
		t.Errorf("err = %v, want ErrBalanceUnderflow", err)
	}
}
