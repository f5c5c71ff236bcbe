// Package blockgen implements the block generator loop (C6): the
// per-height state machine that gathers queued transactions, executes
// them, races a simulated PoS timer against peer-block arrival, and
// either proposes the winning block to the storage shards or adopts a
// peer's.
package blockgen

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/rainblock/verifier/account"
	"github.com/rainblock/verifier/crypto"
	"github.com/rainblock/verifier/execution"
	"github.com/rainblock/verifier/log"
	"github.com/rainblock/verifier/metrics"
	"github.com/rainblock/verifier/mpt"
	"github.com/rainblock/verifier/netlearner"
	"github.com/rainblock/verifier/shardclient"
	"github.com/rainblock/verifier/types"
)

// Config is the subset of the verifier configuration the generator
// loop consults.
type Config struct {
	Beneficiary   types.Address
	PowMin        time.Duration
	PowMax        time.Duration
	MaxTxPerBlock int // 0 means unbounded
	PruneDepth    int
	GasLimit      uint64
	Exec          execution.Config
}

// Generator owns the per-height state machine state and drives it
// forward one height at a time.
type Generator struct {
	cfg Config

	mu          sync.Mutex
	blockNumber uint64
	parentHash  types.Hash
	tree        *mpt.Tree
	queue       []*types.TransactionRecord

	learner    *netlearner.Learner
	shards     [shardclient.NumShards]shardclient.ShardClient
	checkpoint *metrics.CheckpointWriter
	transport  netlearner.NeighborTransport

	rng *rand.Rand
}

// New returns a Generator seeded at genesis.
func New(cfg Config, genesisTree *mpt.Tree, learner *netlearner.Learner, shards [shardclient.NumShards]shardclient.ShardClient, checkpoint *metrics.CheckpointWriter) *Generator {
	if cfg.GasLimit == 0 {
		cfg.GasLimit = 8_000_000
	}
	return &Generator{
		cfg:        cfg,
		tree:       genesisTree,
		learner:    learner,
		shards:     shards,
		checkpoint: checkpoint,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetTransport wires the neighbor-advertisement transport used to
// fire-and-forget re-advertise proposed blocks and resolved witness
// nodes; nil leaves advertisement a no-op.
func (g *Generator) SetTransport(t netlearner.NeighborTransport) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.transport = t
}

// Enqueue implements rpcapi.TxQueue: append a transaction at the tail
// of the queue.
func (g *Generator) Enqueue(tx *types.TransactionRecord) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queue = append(g.queue, tx)
}

// requeueFront pushes txs back onto the head of the queue, ahead of
// whatever arrived while they were in flight (§8 scenario 4: "t1
// re-queued at head of next height's gathering").
func (g *Generator) requeueFront(txs []*types.TransactionRecord) {
	if len(txs) == 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queue = append(append([]*types.TransactionRecord{}, txs...), g.queue...)
}

func (g *Generator) gather() []*types.TransactionRecord {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := len(g.queue)
	if g.cfg.MaxTxPerBlock > 0 && g.cfg.MaxTxPerBlock < n {
		n = g.cfg.MaxTxPerBlock
	}
	batch := g.queue[:n]
	g.queue = g.queue[n:]
	return batch
}

// BlockNumber reports the current height.
func (g *Generator) BlockNumber() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.blockNumber
}

// Run drives the loop until ctx is cancelled. Cooperative shutdown: the
// in-flight height always finishes before the loop exits.
func (g *Generator) Run(ctx context.Context) error {
	logger := log.Module("blockgen")
	for {
		select {
		case <-ctx.Done():
			logger.Info("block generator stopping", zap.Uint64("blockNumber", g.BlockNumber()))
			return ctx.Err()
		default:
		}
		if err := g.runOnce(ctx, logger); err != nil {
			return err
		}
	}
}

func (g *Generator) runOnce(ctx context.Context, logger *log.Logger) error {
	height := g.BlockNumber()

	// Shortcut: a peer block for this height already arrived.
	if block, ok := g.learner.LearnedBlock(height); ok {
		return g.adopt(block, nil, logger)
	}

	batch := g.gather()

	result, err := execution.OrderAndExecute(g.tree, batch, g.learner.Current(), g.learner.Previous(), g.cfg.Exec, false)
	if err != nil {
		g.requeueFront(batch)
		return err
	}

	txRoot, txRlps, err := buildTransactionsRoot(batch)
	if err != nil {
		g.requeueFront(batch)
		return err
	}

	header := &types.Header{
		ParentHash:       g.parentHashSnapshot(),
		Beneficiary:      g.cfg.Beneficiary,
		StateRoot:        result.StateRoot,
		TransactionsRoot: txRoot,
		Difficulty:       defaultDifficulty(),
		BlockNumber:      height,
		GasLimit:         g.cfg.GasLimit,
		GasUsed:          result.GasUsed,
		Timestamp:        uint64(result.Timestamp / 1000),
		ExtraData:        []byte("rainblock"),
	}

	// Replies may complete before or after the race resolves below.
	for _, tx := range batch {
		if tx.ReplyHandle != nil {
			go tx.ReplyHandle.Resolve(tx.ErrorCode)
		}
	}

	timer := time.NewTimer(g.posDelay())
	defer timer.Stop()

	// Cancelling ctx does not abandon this height: the race and the
	// shard updates run to completion, and Run exits before the next one.
	proposeCtx := context.WithoutCancel(ctx)

	select {
	case <-timer.C:
		return g.propose(proposeCtx, header, txRlps, batch, result, logger)

	case <-g.learner.BlockSignal():
		if block, ok := g.learner.LearnedBlock(height); ok {
			return g.adopt(block, batch, logger)
		}
		// The signal was for a height we're not racing right now; let
		// the PoS timer decide instead of spinning on stale wakeups.
		<-timer.C
		return g.propose(proposeCtx, header, txRlps, batch, result, logger)
	}
}

func (g *Generator) parentHashSnapshot() types.Hash {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.parentHash
}

// posDelay returns a uniformly random duration in [powMin, powMax],
// simulating the PoS block-proposal timer.
func (g *Generator) posDelay() time.Duration {
	if g.cfg.PowMax <= g.cfg.PowMin {
		return g.cfg.PowMin
	}
	span := int64(g.cfg.PowMax - g.cfg.PowMin)
	return g.cfg.PowMin + time.Duration(g.rng.Int63n(span))
}

// propose is the outcome where this verifier wins the race.
func (g *Generator) propose(ctx context.Context, header *types.Header, txRlps [][]byte, batch []*types.TransactionRecord, result *execution.Result, logger *log.Logger) error {
	block := &types.Block{Header: header, Transactions: txRlps}
	rlpBlock, err := block.EncodeRLP()
	if err != nil {
		g.requeueFront(batch)
		return err
	}
	rootNode, err := result.NewTree.RootNode()
	if err != nil {
		g.requeueFront(batch)
		return err
	}

	msgs := shardclient.BuildUpdateMsgs(result.WriteSet, rlpBlock, rootNode)
	if err := shardclient.UpdateAll(ctx, g.shards, msgs); err != nil {
		// A block whose write-set can't be durably committed is not
		// adopted locally either: requeue the batch and retry the
		// height.
		logger.Error("shard update failed, block not committed", zap.Error(err))
		metrics.ShardUpdateFailures.WithLabelValues("all").Inc()
		g.requeueFront(batch)
		return nil
	}

	transport := g.currentTransport()
	go g.learner.AdvertiseNodesToNeighbors(transport, bagValues(result.UsedNodes))
	go g.learner.AdvertiseBlockToNeighbors(transport, rlpBlock)

	g.learner.Rotate()
	g.installBlock(header, result.NewTree)

	metrics.BlocksProposed.Inc()
	succeeded := countSuccess(batch)
	metrics.TransactionsExecuted.Add(float64(succeeded))
	metrics.TransactionsInvalid.Add(float64(len(batch) - succeeded))
	metrics.BatchExecutionSeconds.Observe(result.ExecutionTime.Seconds())
	if g.checkpoint != nil {
		if err := g.checkpoint.Record(len(batch), result.ExecutionTime); err != nil {
			logger.Warn("checkpoint write failed", zap.Error(err))
		}
	}

	g.tree.PruneStateCache(g.cfg.PruneDepth)
	return nil
}

// adopt re-executes a peer-advertised block in verify mode and, on a
// matching state root, installs it in place of a local proposal.
func (g *Generator) adopt(block *types.Block, requeue []*types.TransactionRecord, logger *log.Logger) error {
	syntheticTxs, err := syntheticRecordsFromBlock(block)
	if err != nil {
		g.requeueFront(requeue)
		return err
	}

	result, err := execution.OrderAndExecute(g.tree, syntheticTxs, g.learner.Current(), g.learner.Previous(), g.cfg.Exec, true)
	if err != nil {
		g.requeueFront(requeue)
		return err
	}
	if result.StateRoot != block.Header.StateRoot {
		logger.Error("peer block's declared stateRoot does not match re-execution",
			zap.String("declared", block.Header.StateRoot.String()),
			zap.String("computed", result.StateRoot.String()))
		g.requeueFront(requeue)
		return nil
	}

	g.learner.Rotate()
	g.installBlock(block.Header, result.NewTree)
	g.learner.DiscardBlocksThrough(block.Header.BlockNumber)
	g.requeueFront(requeue)

	metrics.BlocksAdopted.Inc()
	g.tree.PruneStateCache(g.cfg.PruneDepth)
	return nil
}

// installBlock advances the generator's state to the height just past
// header, using Keccak(RLP(header)) as the next block's parent hash.
func (g *Generator) installBlock(header *types.Header, tree *mpt.Tree) {
	enc, err := header.EncodeRLP()
	if err != nil {
		// header is always well-formed by construction; a failure here
		// is a programming error, not a runtime condition to recover
		// from.
		panic(err)
	}
	hash := crypto.Keccak256Hash(enc)

	g.mu.Lock()
	g.tree = tree
	g.parentHash = hash
	g.blockNumber = header.BlockNumber + 1
	g.mu.Unlock()

	metrics.BlockHeight.Set(float64(header.BlockNumber))
}

func (g *Generator) currentTransport() netlearner.NeighborTransport {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.transport
}

// buildTransactionsRoot builds the auxiliary MPT keyed by the ASCII
// decimal index of each successfully-applied transaction, returning
// its root hash alongside the raw RLP bytes in order. A transaction
// that errorCode=INVALID never happened as far as the chain is
// concerned: it carries no gas/revert semantics here, so it is
// dropped from the block entirely rather than occupying a slot.
func buildTransactionsRoot(batch []*types.TransactionRecord) (types.Hash, [][]byte, error) {
	tree := mpt.New()
	var rlps [][]byte
	var puts []mpt.PutOp
	for _, tx := range batch {
		if tx.ErrorCode != types.ErrorCodeSuccess {
			continue
		}
		puts = append(puts, mpt.PutOp{Key: []byte(strconv.Itoa(len(rlps))), Value: tx.TxBinary})
		rlps = append(rlps, tx.TxBinary)
	}
	newTree, err := tree.BatchCow(puts, mpt.Bag{}, nil, nil)
	if err != nil {
		return types.Hash{}, nil, err
	}
	return newTree.RootHash(), rlps, nil
}

// syntheticRecordsFromBlock decodes a peer block's raw transactions
// into TransactionRecords with empty proofs: verify mode ignores a
// transaction's own witnesses and consults only the learned-node
// tables, so no proof bag is needed here.
func syntheticRecordsFromBlock(block *types.Block) ([]*types.TransactionRecord, error) {
	records := make([]*types.TransactionRecord, 0, len(block.Transactions))
	for _, raw := range block.Transactions {
		tx, err := types.DecodeTxRLP(raw)
		if err != nil {
			return nil, err
		}
		rec := &types.TransactionRecord{
			TxHash:   crypto.Keccak256Hash(raw),
			Tx:       tx,
			TxBinary: raw,
			Proofs:   map[types.Hash][]byte{},
			FromHash: account.HashAddress(tx.From),
		}
		if tx.To != nil {
			rec.ToHash = account.HashAddress(*tx.To)
		}
		records = append(records, rec)
	}
	return records, nil
}

func defaultDifficulty() *uint256.Int {
	return uint256.NewInt(1)
}

func countSuccess(batch []*types.TransactionRecord) int {
	n := 0
	for _, tx := range batch {
		if tx.ErrorCode == types.ErrorCodeSuccess {
			n++
		}
	}
	return n
}

func bagValues(b mpt.Bag) [][]byte {
	out := make([][]byte, 0, len(b))
	for _, v := range b {
		out = append(out, v)
	}
	return out
}
