package mpt

import (
	"errors"

	"github.com/rainblock/verifier/crypto"
	"github.com/rainblock/verifier/rlp"
	"github.com/rainblock/verifier/types"
)

var (
	// ErrKeyNotFound is returned when a key is absent from both the
	// cached tree and the supplied proof bags.
	ErrKeyNotFound = errors.New("mpt: key not found")

	// ErrStructuralMiss is returned when traversal reaches a hash-only
	// stub and neither proof bag contains the referenced node.
	ErrStructuralMiss = errors.New("mpt: structural miss (node not in any bag)")

	// ErrInternalInconsistency marks states that should be impossible
	// if the tree and bags are well-formed, e.g. a used-node hash with
	// no matching bytes when building an UpdateMsg subtree.
	ErrInternalInconsistency = errors.New("mpt: internal inconsistency")
)

// EmptyRootHash is Keccak256(RLP("")), the root hash of an empty trie.
var EmptyRootHash = crypto.Keccak256Hash(mustEncode([]byte{}))

func mustEncode(v interface{}) []byte {
	b, err := rlp.EncodeToBytes(v)
	if err != nil {
		panic(err)
	}
	return b
}

// NodeSource resolves a node by its hash. It models one layer of the
// "bag of proofs" overlay: a per-transaction witness set, a per-block
// shared bag, or the network learner's learned-node tables.
type NodeSource interface {
	Node(hash types.Hash) ([]byte, bool)
}

// Bag is a flat, in-memory NodeSource keyed by node hash, and is also
// used as the output parameter that records every node a traversal
// resolves off a hash-only stub (the `usedNodes` argument throughout
// this package); already-materialized nodes are not recorded.
type Bag map[types.Hash][]byte

func (b Bag) Node(hash types.Hash) ([]byte, bool) {
	v, ok := b[hash]
	return v, ok
}

func (b Bag) add(hash types.Hash, data []byte) {
	if _, ok := b[hash]; !ok {
		b[hash] = data
	}
}

// ChainedSource reads through a priority-ordered list of sources,
// stopping at the first hit: per-tx bag, then shared bag, then
// learnedNodes, then previous-learnedNodes, exactly the read-through
// composite view described for the network learner's fallback chain.
// A nil element is treated as an empty source.
type ChainedSource []NodeSource

func (c ChainedSource) Node(hash types.Hash) ([]byte, bool) {
	for _, s := range c {
		if s == nil {
			continue
		}
		if data, ok := s.Node(hash); ok {
			return data, true
		}
	}
	return nil, false
}

// Tree is the cached, partial Merkle-Patricia Trie the execution
// engine operates on. Nodes the tree has not (yet) materialized are
// held as hashNode stubs, resolved on demand from the primary/fallback
// bag chain supplied to each operation.
type Tree struct {
	root node
}

// New returns a new, empty tree.
func New() *Tree {
	return &Tree{}
}

// NewWithRoot returns a tree whose root is the given hash-only stub,
// to be resolved lazily from the bags supplied to later calls.
func NewWithRoot(root types.Hash) *Tree {
	if root.IsZero() || root == EmptyRootHash {
		return &Tree{}
	}
	return &Tree{root: hashNode(root.Bytes())}
}

// resolve dereferences a hashNode via the bag chain, recording the
// looked-up bytes into usedNodes. Non-hashNode nodes pass through
// unchanged.
func resolve(n node, usedNodes Bag, primary, fallback NodeSource) (node, error) {
	hn, ok := n.(hashNode)
	if !ok {
		return n, nil
	}
	key := types.BytesToHash(hn)
	if data, ok := primary.Node(key); ok {
		usedNodes.add(key, data)
		return decodeNode(hn, data)
	}
	if fallback != nil {
		if data, ok := fallback.Node(key); ok {
			usedNodes.add(key, data)
			return decodeNode(hn, data)
		}
	}
	return nil, ErrStructuralMiss
}

// GetFromCache reads a value for key, resolving hash-only stubs along
// the traversal path from primary then fallback. Only nodes resolved
// off a hash-only stub are recorded into usedNodes; nodes the tree
// already holds materialized are traversed but not recorded.
func (t *Tree) GetFromCache(key []byte, usedNodes Bag, primary, fallback NodeSource) ([]byte, error) {
	value, err := t.getFromCache(t.root, keybytesToHex(key), 0, usedNodes, primary, fallback)
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, ErrKeyNotFound
	}
	return value, nil
}

func (t *Tree) getFromCache(n node, key []byte, pos int, usedNodes Bag, primary, fallback NodeSource) ([]byte, error) {
	switch n := n.(type) {
	case nil:
		return nil, nil
	case valueNode:
		return []byte(n), nil
	case *shortNode:
		if len(key)-pos < len(n.Key) || !keysEqual(n.Key, key[pos:pos+len(n.Key)]) {
			return nil, nil
		}
		return t.getFromCache(n.Val, key, pos+len(n.Key), usedNodes, primary, fallback)
	case *fullNode:
		if pos >= len(key) {
			return t.getFromCache(n.Children[16], key, pos, usedNodes, primary, fallback)
		}
		return t.getFromCache(n.Children[key[pos]], key, pos+1, usedNodes, primary, fallback)
	case hashNode:
		resolved, err := resolve(n, usedNodes, primary, fallback)
		if err != nil {
			return nil, err
		}
		return t.getFromCache(resolved, key, pos, usedNodes, primary, fallback)
	default:
		return nil, nil
	}
}

// put is an internal, resolve-aware insert used by BatchCow. value is
// never nil: BatchCow always supplies a concrete valueNode.
func (t *Tree) put(n node, prefix, key []byte, value node, usedNodes Bag, primary, fallback NodeSource) (node, error) {
	if hn, ok := n.(hashNode); ok {
		resolved, err := resolve(hn, usedNodes, primary, fallback)
		if err != nil {
			return nil, err
		}
		n = resolved
	}

	if len(key) == 0 {
		if v, ok := n.(valueNode); ok {
			if keysEqual(v, value.(valueNode)) {
				return v, nil
			}
		}
		return value, nil
	}

	switch n := n.(type) {
	case nil:
		return &shortNode{Key: key, Val: value, flags: nodeFlag{dirty: true}}, nil

	case *shortNode:
		matchLen := prefixLen(key, n.Key)
		if matchLen == len(n.Key) {
			nn, err := t.put(n.Val, concat(prefix, key[:matchLen]), key[matchLen:], value, usedNodes, primary, fallback)
			if err != nil {
				return nil, err
			}
			return &shortNode{Key: n.Key, Val: nn, flags: nodeFlag{dirty: true}}, nil
		}
		branch := &fullNode{flags: nodeFlag{dirty: true}}
		existingChild, err := t.put(nil, concat(prefix, n.Key[:matchLen+1]), n.Key[matchLen+1:], n.Val, usedNodes, primary, fallback)
		if err != nil {
			return nil, err
		}
		branch.Children[n.Key[matchLen]] = existingChild
		newChild, err := t.put(nil, concat(prefix, key[:matchLen+1]), key[matchLen+1:], value, usedNodes, primary, fallback)
		if err != nil {
			return nil, err
		}
		branch.Children[key[matchLen]] = newChild
		if matchLen > 0 {
			return &shortNode{Key: key[:matchLen], Val: branch, flags: nodeFlag{dirty: true}}, nil
		}
		return branch, nil

	case *fullNode:
		nn := n.copy()
		nn.flags = nodeFlag{dirty: true}
		child, err := t.put(n.Children[key[0]], append(prefix, key[0]), key[1:], value, usedNodes, primary, fallback)
		if err != nil {
			return nil, err
		}
		nn.Children[key[0]] = child
		return nn, nil

	default:
		return nil, ErrInternalInconsistency
	}
}

// PutOp is one write-set entry applied by BatchCow: key is the
// hashed-address (or other tree key) and value is the RLP-encoded
// account (or other leaf value) to install.
type PutOp struct {
	Key   []byte
	Value []byte
}

// BatchCow returns a new tree reflecting all puts applied on top of
// the receiver, sharing unchanged subtrees with it (copy-on-write).
// The receiver itself is left untouched, per invariant I5 ("the tree
// is read-only until COW materialization").
func (t *Tree) BatchCow(puts []PutOp, usedNodes Bag, primary, fallback NodeSource) (*Tree, error) {
	root := t.root
	for _, op := range puts {
		nn, err := t.put(root, nil, keybytesToHex(op.Key), valueNode(op.Value), usedNodes, primary, fallback)
		if err != nil {
			return nil, err
		}
		root = nn
	}
	return &Tree{root: root}, nil
}

// RootHash computes (and caches) the Keccak-256 root hash of the tree.
func (t *Tree) RootHash() types.Hash {
	if t.root == nil {
		return EmptyRootHash
	}
	h := newHasher()
	hashed, cached := h.hash(t.root, true)
	t.root = cached
	switch n := hashed.(type) {
	case hashNode:
		return types.BytesToHash(n)
	default:
		enc, _ := encodeNode(hashed)
		return crypto.Keccak256Hash(enc)
	}
}

// RootNode returns the root node's RLP serialization ("root_node.serialize()").
// The returned bytes are suitable for shipping to peers so they can
// reanchor their own partial trees at this root.
func (t *Tree) RootNode() ([]byte, error) {
	if t.root == nil {
		return rlp.EncodeToBytes([]byte{})
	}
	// Ensure hashes (and any necessary collapsing) are up to date.
	t.RootHash()
	switch n := t.root.(type) {
	case hashNode:
		return []byte(n), nil
	default:
		return serialize(n)
	}
}

// PruneStateCache collapses every materialized node that sits depth
// or more levels below the root back into a bare hashNode stub,
// bounding the memory the cache retains between blocks. A negative or
// zero depth collapses the root itself into a stub.
func (t *Tree) PruneStateCache(depth int) {
	t.RootHash() // ensure every node has a valid cached hash first
	t.root = pruneAt(t.root, depth)
}

func pruneAt(n node, depth int) node {
	switch n := n.(type) {
	case *shortNode:
		if depth <= 0 {
			if hash, _ := n.cache(); hash != nil {
				return hash
			}
			return n
		}
		cp := n.copy()
		cp.Val = pruneAt(n.Val, depth-1)
		return cp
	case *fullNode:
		if depth <= 0 {
			if hash, _ := n.cache(); hash != nil {
				return hash
			}
			return n
		}
		cp := n.copy()
		for i := 0; i < 16; i++ {
			if cp.Children[i] != nil {
				cp.Children[i] = pruneAt(n.Children[i], depth-1)
			}
		}
		return cp
	default:
		return n
	}
}

// RlpToMerkleNode decodes RLP-encoded node bytes (as received from a
// peer's advertised subtree, or the storage shard's reanchor payload)
// into a tree node usable as a new root or grafted subtree.
func RlpToMerkleNode(data []byte) (interface{}, error) {
	return decodeNode(nil, data)
}

// NodeHash computes the hash a node would be referenced by, i.e. the
// Keccak-256 of its RLP encoding, for use by callers that advertise
// raw node bytes (the network learner, the shard update builder).
func NodeHash(data []byte) types.Hash {
	return crypto.Keccak256Hash(data)
}
