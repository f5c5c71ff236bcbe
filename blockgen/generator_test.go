package blockgen

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/holiman/uint256"

	"github.com/rainblock/verifier/account"
	"github.com/rainblock/verifier/execution"
	"github.com/rainblock/verifier/log"
	"github.com/rainblock/verifier/mpt"
	"github.com/rainblock/verifier/netlearner"
	"github.com/rainblock/verifier/shardclient"
	"github.com/rainblock/verifier/types"
)

func mustPutAccount(t *testing.T, tree *mpt.Tree, addr types.Address, nonce uint64, balance uint64) *mpt.Tree {
	t.Helper()
	acc := types.NewEmptyAccount(nonce, uint256.NewInt(balance))
	enc, err := acc.EncodeRLP()
	if err != nil {
		t.Fatal(err)
	}
	hashed := account.HashAddress(addr)
	newTree, err := tree.BatchCow([]mpt.PutOp{{Key: hashed.Bytes(), Value: enc}}, mpt.Bag{}, mpt.Bag{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return newTree
}

func transferRecord(t *testing.T, from types.Address, to types.Address, nonce uint64, value uint64) *types.TransactionRecord {
	t.Helper()
	toAddr := to
	tx := &types.TxData{Nonce: nonce, From: from, To: &toAddr, Value: uint256.NewInt(value)}
	bin, err := tx.EncodeRLP()
	if err != nil {
		t.Fatal(err)
	}
	return &types.TransactionRecord{
		Tx:       tx,
		TxBinary: bin,
		Proofs:   map[types.Hash][]byte{},
		FromHash: account.HashAddress(from),
		ToHash:   account.HashAddress(to),
	}
}

type fakeReply struct {
	mu   sync.Mutex
	got  bool
	code types.ErrorCode
	done chan struct{}
}

func newFakeReply() *fakeReply {
	return &fakeReply{done: make(chan struct{})}
}

func (f *fakeReply) Resolve(code types.ErrorCode) {
	f.mu.Lock()
	f.got = true
	f.code = code
	f.mu.Unlock()
	close(f.done)
}

func (f *fakeReply) wait(t *testing.T) types.ErrorCode {
	t.Helper()
	select {
	case <-f.done:
	case <-time.After(time.Second):
		t.Fatal("reply handle was never resolved")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.code
}

func allInMemoryShards() [shardclient.NumShards]shardclient.ShardClient {
	var shards [shardclient.NumShards]shardclient.ShardClient
	for i := range shards {
		shards[i] = &shardclient.InMemoryClient{}
	}
	return shards
}

func newTestGenerator(t *testing.T, tree *mpt.Tree, powMin, powMax time.Duration, shards [shardclient.NumShards]shardclient.ShardClient) (*Generator, *netlearner.Learner) {
	t.Helper()
	learner := netlearner.New()
	cfg := Config{
		Beneficiary: types.Address{0xEE},
		PowMin:      powMin,
		PowMax:      powMax,
		PruneDepth:  128,
		Exec:        execution.Config{},
	}
	return New(cfg, tree, learner, shards, nil), learner
}

func TestGeneratorProposesWhenTimerWins(t *testing.T) {
	a := types.Address{0xAA}
	b := types.Address{0xBB}
	tree := mustPutAccount(t, mpt.New(), a, 0, 100)
	tree = mustPutAccount(t, tree, b, 0, 0)

	shards := allInMemoryShards()
	gen, _ := newTestGenerator(t, tree, time.Millisecond, 2*time.Millisecond, shards)

	reply := newFakeReply()
	tx := transferRecord(t, a, b, 0, 40)
	tx.ReplyHandle = reply
	gen.Enqueue(tx)

	if err := gen.runOnce(context.Background(), log.Module("test")); err != nil {
		t.Fatal(err)
	}

	if gen.BlockNumber() != 1 {
		t.Errorf("blockNumber = %d, want 1", gen.BlockNumber())
	}
	if code := reply.wait(t); code != types.ErrorCodeSuccess {
		t.Errorf("reply code = %v, want SUCCESS", code)
	}

	shardIdx := shardclient.ShardIndex(account.HashAddress(b))
	mem := shards[shardIdx].(*shardclient.InMemoryClient)
	if len(mem.Updates) != 1 || len(mem.Updates[0].Operations) != 1 {
		t.Fatalf("shard %d updates = %+v, want exactly one op", shardIdx, mem.Updates)
	}

	for i, s := range shards {
		mem := s.(*shardclient.InMemoryClient)
		if len(mem.Updates) != 1 {
			t.Errorf("shard %d got %d updates, want exactly 1 (every shard sees every block)", i, len(mem.Updates))
		}
	}
}

func TestGeneratorAdoptsPeerBlockDuringRace(t *testing.T) {
	a := types.Address{0xAA}
	b := types.Address{0xBB}
	tree := mustPutAccount(t, mpt.New(), a, 0, 100)
	tree = mustPutAccount(t, tree, b, 0, 0)
	genesisRoot := tree.RootHash()

	shards := allInMemoryShards()
	// PoW window wide enough that the peer advertisement always wins.
	gen, learner := newTestGenerator(t, tree, 2*time.Second, 3*time.Second, shards)

	reply := newFakeReply()
	tx := transferRecord(t, a, b, 0, 40)
	tx.ReplyHandle = reply
	gen.Enqueue(tx)

	peerBlock := &types.Block{
		Header: &types.Header{
			BlockNumber: 0,
			StateRoot:   genesisRoot, // no transactions applied
			Difficulty:  uint256.NewInt(1),
		},
		Transactions: [][]byte{},
	}

	errCh := make(chan error, 1)
	go func() { errCh <- gen.runOnce(context.Background(), log.Module("test")) }()

	time.Sleep(50 * time.Millisecond)
	learner.LearnBlock(gen.BlockNumber(), peerBlock)

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("runOnce did not return after a peer block was learned")
	}

	if gen.BlockNumber() != 1 {
		t.Errorf("blockNumber = %d, want 1 (adopted peer block 0)", gen.BlockNumber())
	}

	gen.mu.Lock()
	requeued := len(gen.queue)
	gen.mu.Unlock()
	if requeued != 1 {
		t.Errorf("gathered batch should be re-queued at the head after losing the race, got %d queued", requeued)
	}
}

func TestGeneratorShortcutAdoptsAlreadyLearnedBlock(t *testing.T) {
	tree := mpt.New()
	genesisRoot := tree.RootHash()
	shards := allInMemoryShards()
	gen, learner := newTestGenerator(t, tree, time.Second, 2*time.Second, shards)

	peerBlock := &types.Block{
		Header: &types.Header{
			BlockNumber: 0,
			StateRoot:   genesisRoot,
			Difficulty:  uint256.NewInt(1),
		},
		Transactions: [][]byte{},
	}
	learner.LearnBlock(0, peerBlock)

	if err := gen.runOnce(context.Background(), log.Module("test")); err != nil {
		t.Fatal(err)
	}
	if gen.BlockNumber() != 1 {
		t.Errorf("blockNumber = %d, want 1", gen.BlockNumber())
	}
}

func TestGeneratorDropsRejectedTxFromTransactionsRoot(t *testing.T) {
	a := types.Address{0xAA}
	b := types.Address{0xBB}
	tree := mustPutAccount(t, mpt.New(), a, 0, 100)
	tree = mustPutAccount(t, tree, b, 0, 0)

	shards := allInMemoryShards()
	gen, _ := newTestGenerator(t, tree, time.Millisecond, 2*time.Millisecond, shards)

	reply := newFakeReply()
	tx := transferRecord(t, a, b, 5, 40) // stale nonce: account is at nonce 0
	tx.ReplyHandle = reply
	gen.Enqueue(tx)

	if err := gen.runOnce(context.Background(), log.Module("test")); err != nil {
		t.Fatal(err)
	}
	if code := reply.wait(t); code != types.ErrorCodeInvalid {
		t.Errorf("reply code = %v, want INVALID", code)
	}

	for i, s := range shards {
		mem := s.(*shardclient.InMemoryClient)
		if len(mem.Updates) != 1 {
			t.Fatalf("shard %d updates = %d, want 1", i, len(mem.Updates))
		}
		if len(mem.Updates[0].Operations) != 0 {
			t.Errorf("shard %d should see no operations for a rejected transaction", i)
		}
		var block types.Block
		decoded, err := types.DecodeBlockRLP(mem.Updates[0].RLPBlock)
		if err != nil {
			t.Fatal(err)
		}
		block = *decoded
		if len(block.Transactions) != 0 {
			t.Errorf("block should carry zero transactions when the only gathered tx was rejected, got %d", len(block.Transactions))
		}
		if block.Header.TransactionsRoot != mpt.EmptyRootHash {
			t.Errorf("transactionsRoot = %s, want the empty-sequence root", block.Header.TransactionsRoot)
		}
	}
}

func TestGeneratorRoutesWritesToCorrectShards(t *testing.T) {
	a := types.Address{0xAA}
	low := types.Address{0x30} // hashed top nibble is what matters, not this raw address
	high := types.Address{0xC0}
	tree := mustPutAccount(t, mpt.New(), a, 0, 100)
	tree = mustPutAccount(t, tree, low, 0, 0)
	tree = mustPutAccount(t, tree, high, 0, 0)

	shards := allInMemoryShards()
	gen, _ := newTestGenerator(t, tree, time.Millisecond, 2*time.Millisecond, shards)

	t1 := transferRecord(t, a, low, 0, 1)
	gen.Enqueue(t1)

	if err := gen.runOnce(context.Background(), log.Module("test")); err != nil {
		t.Fatal(err)
	}

	want := make(map[int]int)
	want[shardclient.ShardIndex(account.HashAddress(a))]++
	want[shardclient.ShardIndex(account.HashAddress(low))]++
	for i, s := range shards {
		mem := s.(*shardclient.InMemoryClient)
		if len(mem.Updates) != 1 {
			t.Fatalf("every shard must receive exactly one UpdateMsg per block")
		}
		if got := len(mem.Updates[0].Operations); got != want[i] {
			t.Errorf("shard %d got %d operations, want %d (top nibble of Keccak(address))", i, got, want[i])
		}
	}
}
