package mpt

import (
	"testing"

	"github.com/rainblock/verifier/types"
)

func hashKey(s string) []byte {
	return types.BytesToHash([]byte(s)).Bytes()
}

func TestBatchCowInsertAndGet(t *testing.T) {
	tree := New()
	used := Bag{}
	puts := []PutOp{
		{Key: hashKey("alice"), Value: []byte("alice-account")},
		{Key: hashKey("bob"), Value: []byte("bob-account")},
	}
	newTree, err := tree.BatchCow(puts, used, Bag{}, nil)
	if err != nil {
		t.Fatalf("BatchCow: %v", err)
	}

	got, err := newTree.GetFromCache(hashKey("alice"), Bag{}, Bag{}, nil)
	if err != nil {
		t.Fatalf("GetFromCache(alice): %v", err)
	}
	if string(got) != "alice-account" {
		t.Errorf("alice = %q, want alice-account", got)
	}

	if _, err := newTree.GetFromCache(hashKey("carol"), Bag{}, Bag{}, nil); err != ErrKeyNotFound {
		t.Errorf("GetFromCache(carol) = %v, want ErrKeyNotFound", err)
	}
}

func TestBatchCowLeavesOriginalUnchanged(t *testing.T) {
	tree := New()
	used := Bag{}
	base, err := tree.BatchCow([]PutOp{{Key: hashKey("a"), Value: []byte("1")}}, used, Bag{}, nil)
	if err != nil {
		t.Fatalf("BatchCow base: %v", err)
	}
	_, err = base.BatchCow([]PutOp{{Key: hashKey("a"), Value: []byte("2")}}, Bag{}, Bag{}, nil)
	if err != nil {
		t.Fatalf("BatchCow update: %v", err)
	}

	got, err := base.GetFromCache(hashKey("a"), Bag{}, Bag{}, nil)
	if err != nil {
		t.Fatalf("GetFromCache on base: %v", err)
	}
	if string(got) != "1" {
		t.Errorf("base tree mutated: got %q, want 1", got)
	}
}

func TestRootHashDeterministic(t *testing.T) {
	t1 := New()
	t2 := New()
	puts := []PutOp{{Key: hashKey("x"), Value: []byte("y")}}
	n1, err := t1.BatchCow(puts, Bag{}, Bag{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	n2, err := t2.BatchCow(puts, Bag{}, Bag{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if n1.RootHash() != n2.RootHash() {
		t.Errorf("identical puts produced different root hashes")
	}
	if n1.RootHash() == EmptyRootHash {
		t.Errorf("non-empty tree hashed to the empty root")
	}
}

func TestGetFromCacheResolvesHashOnlyStubViaPrimaryBag(t *testing.T) {
	tree := New()
	full, err := tree.BatchCow([]PutOp{{Key: hashKey("a"), Value: []byte("1")}}, Bag{}, Bag{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	root := full.RootHash()
	rootBytes, err := full.RootNode()
	if err != nil {
		t.Fatal(err)
	}

	stub := NewWithRoot(root)
	primary := Bag{root: rootBytes}
	used := Bag{}
	got, err := stub.GetFromCache(hashKey("a"), used, primary, nil)
	if err != nil {
		t.Fatalf("GetFromCache via bag: %v", err)
	}
	if string(got) != "1" {
		t.Errorf("got %q, want 1", got)
	}
	if len(used) == 0 {
		t.Errorf("expected usedNodes to record the resolved root node")
	}
}

func TestGetFromCacheStructuralMissWithEmptyBags(t *testing.T) {
	stub := NewWithRoot(types.Hash{1, 2, 3})
	_, err := stub.GetFromCache(hashKey("a"), Bag{}, Bag{}, nil)
	if err != ErrStructuralMiss {
		t.Errorf("err = %v, want ErrStructuralMiss", err)
	}
}

func TestChainedSourceFallsThrough(t *testing.T) {
	h := types.Hash{9}
	primary := Bag{}
	fallback := Bag{h: []byte("from-fallback")}
	chain := ChainedSource{primary, fallback}
	data, ok := chain.Node(h)
	if !ok || string(data) != "from-fallback" {
		t.Errorf("ChainedSource did not fall through to fallback bag")
	}
}

func TestPruneStateCacheCollapsesToHash(t *testing.T) {
	tree := New()
	full, err := tree.BatchCow([]PutOp{
		{Key: hashKey("a"), Value: []byte("1")},
		{Key: hashKey("b"), Value: []byte("2")},
	}, Bag{}, Bag{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	before := full.RootHash()
	full.PruneStateCache(0)
	after := full.RootHash()
	if before != after {
		t.Errorf("pruning changed the root hash: %v != %v", before, after)
	}
	if _, ok := full.root.(hashNode); !ok {
		t.Errorf("expected root to collapse to a hashNode at depth 0")
	}
}
