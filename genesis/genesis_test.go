package genesis

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rainblock/verifier/account"
	"github.com/rainblock/verifier/mpt"
	"github.com/rainblock/verifier/types"
)

func writeDump(t *testing.T, dir string, accounts []dumpAccount) string {
	t.Helper()
	path := filepath.Join(dir, "genesis.json")
	b, err := json.Marshal(accounts)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// expectedRoot replicates what Load should compute, for use as the
// wantStateRoot input in tests that aren't specifically about mismatch
// detection.
func expectedRoot(t *testing.T, accounts []dumpAccount) types.Hash {
	t.Helper()
	tree := mpt.New()
	var puts []mpt.PutOp
	for _, d := range accounts {
		put, err := toPutOp(d)
		if err != nil {
			t.Fatal(err)
		}
		puts = append(puts, put)
	}
	newTree, err := tree.BatchCow(puts, mpt.Bag{}, mpt.Bag{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return newTree.RootHash()
}

func TestLoadInsertsAccountsAndMatchesRoot(t *testing.T) {
	dir := t.TempDir()
	accounts := []dumpAccount{
		{Address: "0x00000000000000000000000000000000000001", Nonce: 0, Balance: "100"},
	}
	want := expectedRoot(t, accounts)
	path := writeDump(t, dir, accounts)

	tree, err := Load(path, want, 128)
	if err != nil {
		t.Fatal(err)
	}
	addr, _ := types.HexToAddress(accounts[0].Address)
	data, err := tree.GetFromCache(account.HashAddress(addr).Bytes(), mpt.Bag{}, mpt.Bag{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	acc, err := types.DecodeAccountRLP(data)
	if err != nil {
		t.Fatal(err)
	}
	if acc.Balance.Uint64() != 100 {
		t.Errorf("balance = %d, want 100", acc.Balance.Uint64())
	}
}

func TestLoadRejectsStateRootMismatch(t *testing.T) {
	dir := t.TempDir()
	accounts := []dumpAccount{
		{Address: "0x00000000000000000000000000000000000001", Nonce: 0, Balance: "100"},
	}
	path := writeDump(t, dir, accounts)

	_, err := Load(path, types.Hash{0xFF}, 128)
	if err == nil {
		t.Fatal("expected a state root mismatch error")
	}
}

func TestLoadRejectsNonEmptyStorage(t *testing.T) {
	dir := t.TempDir()
	accounts := []dumpAccount{
		{
			Address: "0x00000000000000000000000000000000000001",
			Balance: "0",
			Storage: map[string]string{"0x1": "0x2"},
		},
	}
	path := writeDump(t, dir, accounts)

	_, err := Load(path, types.Hash{}, 128)
	if err == nil {
		t.Fatal("expected ErrStorageUnsupported")
	}
}

func TestLoadRejectsCodeHashMismatch(t *testing.T) {
	dir := t.TempDir()
	accounts := []dumpAccount{
		{
			Address:  "0x00000000000000000000000000000000000001",
			Balance:  "0",
			Code:     "0x6001",
			CodeHash: "0x0000000000000000000000000000000000000000000000000000000000000000",
		},
	}
	path := writeDump(t, dir, accounts)

	_, err := Load(path, types.Hash{}, 128)
	if err == nil {
		t.Fatal("expected ErrCodeHashMismatch")
	}
}
