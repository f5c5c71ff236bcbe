// Package netlearner implements the network learner (C3): the index
// of peer-advertised MPT nodes and peer-advertised blocks that the
// execution engine consults as a fallback bag and the block generator
// races against.
package netlearner

import (
	"sync"

	"github.com/rainblock/verifier/log"
	"github.com/rainblock/verifier/mpt"
	"github.com/rainblock/verifier/types"
)

// Learner indexes peer-advertised nodes and blocks. It is safe for
// concurrent use: node/block ingestion (C3's RPC-driven side) and the
// block generator's consuming side run on different goroutines under
// the cooperative scheduling model described for C6's race.
type Learner struct {
	mu       sync.Mutex
	current  mpt.Bag
	previous mpt.Bag

	learnedBlocks map[uint64]*types.Block

	// blockSignal fires whenever LearnBlock admits a new block for a
	// height the generator hasn't yet seen, waking the select in the
	// generator's PoS-timer-vs-peer-block race. Buffered so LearnBlock
	// never blocks on a generator that isn't currently waiting.
	blockSignal chan uint64
}

// New returns an empty Learner.
func New() *Learner {
	return &Learner{
		current:       mpt.Bag{},
		previous:      mpt.Bag{},
		learnedBlocks: make(map[uint64]*types.Block),
		blockSignal:   make(chan uint64, 1),
	}
}

// LearnNode records an inbound MPT node, keyed by its own hash.
func (l *Learner) LearnNode(hash types.Hash, node []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.current[hash] = node
}

// LearnBlock admits a peer-advertised block, filtered to heights at or
// above currentHeight (the height the generator is currently racing
// to produce); blocks for an already-superseded height are dropped. On
// acceptance it signals BlockSignal() so a pending race wakes up.
func (l *Learner) LearnBlock(currentHeight uint64, block *types.Block) {
	if block.Header.BlockNumber < currentHeight {
		return
	}
	l.mu.Lock()
	l.learnedBlocks[block.Header.BlockNumber] = block
	l.mu.Unlock()

	select {
	case l.blockSignal <- block.Header.BlockNumber:
	default:
		// A signal is already pending; the generator will observe the
		// map entry once it wakes, so dropping a duplicate wake-up is
		// safe.
	}
}

// BlockSignal returns the channel the generator selects on while
// racing the PoS timer against peer-block arrival.
func (l *Learner) BlockSignal() <-chan uint64 {
	return l.blockSignal
}

// LearnedBlock returns the learned block for height, if any.
func (l *Learner) LearnedBlock(height uint64) (*types.Block, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.learnedBlocks[height]
	return b, ok
}

// DiscardBlocksThrough removes every learned block at or below height,
// called once the generator has moved past them.
func (l *Learner) DiscardBlocksThrough(height uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for h := range l.learnedBlocks {
		if h <= height {
			delete(l.learnedBlocks, h)
		}
	}
}

// Current returns a snapshot of the learned-node bag for this height.
// The snapshot is a defensive copy: LearnNode keeps writing to the live
// bag under l.mu from the RPC goroutine while the generator's execution
// pass reads the returned copy at leisure, so the two never touch the
// same map.
func (l *Learner) Current() mpt.Bag {
	l.mu.Lock()
	defer l.mu.Unlock()
	return cloneBag(l.current)
}

// Previous returns a snapshot of the learned-node bag rotated out at
// the last block boundary, consulted as the fallback bag during fork
// re-execution. See Current for why this is a copy, not the live map.
func (l *Learner) Previous() mpt.Bag {
	l.mu.Lock()
	defer l.mu.Unlock()
	return cloneBag(l.previous)
}

func cloneBag(b mpt.Bag) mpt.Bag {
	out := make(mpt.Bag, len(b))
	for hash, node := range b {
		out[hash] = node
	}
	return out
}

// Rotate moves current into previous and resets current to empty,
// called by the generator after installing a new block (§4.5 step 6).
func (l *Learner) Rotate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.previous = l.current
	l.current = mpt.Bag{}
}

// NeighborTransport is the external collaborator that actually puts
// bytes on the wire to neighbor verifiers; AdvertiseNodesToNeighbors
// and AdvertiseBlockToNeighbors are fire-and-forget from the
// generator's perspective, so failures here are logged, not returned.
type NeighborTransport interface {
	SendNodes(nodes [][]byte)
	SendBlock(block []byte)
}

// AdvertiseNodesToNeighbors re-advertises the given raw node bytes
// (typically an execution result's UsedNodes) to every neighbor via
// transport. Intended to be invoked in its own goroutine.
func (l *Learner) AdvertiseNodesToNeighbors(transport NeighborTransport, nodes [][]byte) {
	if transport == nil || len(nodes) == 0 {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Module("netlearner").Error("panic advertising nodes to neighbors")
		}
	}()
	transport.SendNodes(nodes)
}

// AdvertiseBlockToNeighbors re-advertises a proposed block's RLP
// encoding to every neighbor via transport.
func (l *Learner) AdvertiseBlockToNeighbors(transport NeighborTransport, block []byte) {
	if transport == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Module("netlearner").Error("panic advertising block to neighbors")
		}
	}()
	transport.SendBlock(block)
}
