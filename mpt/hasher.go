package mpt

import (
	"github.com/rainblock/verifier/crypto"
	"github.com/rainblock/verifier/rlp"
)

// hasher computes the canonical hash of trie nodes, in the style of
// the Ethereum Yellow Paper's node-composition function.
type hasher struct{}

func newHasher() *hasher { return &hasher{} }

// hash computes the hash of a node. If the RLP encoding is shorter
// than 32 bytes, the node is embedded inline in its parent instead
// (unless force is set, which is used for the root node).
func (h *hasher) hash(n node, force bool) (node, node) {
	if cachedHash, dirty := n.cache(); cachedHash != nil && !dirty {
		return cachedHash, n
	}
	collapsed, cached := h.hashChildren(n)
	hashed, err := h.store(collapsed, force)
	if err != nil {
		panic("mpt: hasher: " + err.Error())
	}
	hn, _ := hashed.(hashNode)
	switch cn := cached.(type) {
	case *shortNode:
		cn.flags.hash = hn
		cn.flags.dirty = false
	case *fullNode:
		cn.flags.hash = hn
		cn.flags.dirty = false
	}
	return hashed, cached
}

func (h *hasher) hashChildren(original node) (node, node) {
	switch n := original.(type) {
	case *shortNode:
		collapsed, cached := n.copy(), n.copy()
		collapsed.Key = hexToCompact(n.Key)
		if _, ok := n.Val.(valueNode); !ok && n.Val != nil {
			childH, childC := h.hash(n.Val, false)
			collapsed.Val = childH
			cached.Val = childC
		}
		return collapsed, cached
	case *fullNode:
		collapsed, cached := n.copy(), n.copy()
		for i := 0; i < 16; i++ {
			if n.Children[i] != nil {
				childH, childC := h.hash(n.Children[i], false)
				collapsed.Children[i] = childH
				cached.Children[i] = childC
			}
		}
		return collapsed, cached
	default:
		return n, n
	}
}

func (h *hasher) store(n node, force bool) (node, error) {
	if _, ok := n.(hashNode); ok {
		return n, nil
	}
	if _, ok := n.(valueNode); ok {
		return n, nil
	}
	enc, err := encodeNode(n)
	if err != nil {
		return nil, err
	}
	if len(enc) < 32 && !force {
		return n, nil
	}
	return hashNode(crypto.Keccak256(enc)), nil
}

// encodeNode RLP-encodes a trie node for hashing/storage/serialization.
// shortNode => 2-element list [compactKey, val]
// fullNode  => 17-element list [child0..child15, value]
func encodeNode(n node) ([]byte, error) {
	switch n := n.(type) {
	case *shortNode:
		return encodeShortNode(n)
	case *fullNode:
		return encodeFullNode(n)
	case hashNode:
		return []byte(n), nil
	case valueNode:
		return rlp.EncodeToBytes([]byte(n))
	default:
		return []byte{0x80}, nil
	}
}

func encodeShortNode(n *shortNode) ([]byte, error) {
	keyEnc, err := rlp.EncodeToBytes(n.Key)
	if err != nil {
		return nil, err
	}
	valEnc, err := encodeNodeValue(n.Val)
	if err != nil {
		return nil, err
	}
	return rlp.WrapList(append(keyEnc, valEnc...)), nil
}

func encodeFullNode(n *fullNode) ([]byte, error) {
	var payload []byte
	for i := 0; i < 17; i++ {
		enc, err := encodeNodeValue(n.Children[i])
		if err != nil {
			return nil, err
		}
		payload = append(payload, enc...)
	}
	return rlp.WrapList(payload), nil
}

// encodeNodeValue encodes a node for inclusion in a parent's RLP list:
// nil => empty string; valueNode/hashNode => RLP string; shortNode/
// fullNode => inlined raw RLP (the "embedded node" case).
func encodeNodeValue(n node) ([]byte, error) {
	if n == nil {
		return []byte{0x80}, nil
	}
	switch n := n.(type) {
	case valueNode:
		return rlp.EncodeToBytes([]byte(n))
	case hashNode:
		return rlp.EncodeToBytes([]byte(n))
	case *shortNode:
		return encodeShortNode(n)
	case *fullNode:
		return encodeFullNode(n)
	default:
		return []byte{0x80}, nil
	}
}

// serialize encodes a node exactly like encodeNode, except it starts
// from the in-memory (hex-nibble keyed) node representation that
// Tree.root holds between operations, rather than the hasher's
// already-compacted "collapsed" copy. Used by RootNode to serialize
// the live root for peers without first re-running the hasher.
func serialize(n node) ([]byte, error) {
	switch n := n.(type) {
	case *shortNode:
		keyEnc, err := rlp.EncodeToBytes(hexToCompact(n.Key))
		if err != nil {
			return nil, err
		}
		valEnc, err := serializeValue(n.Val)
		if err != nil {
			return nil, err
		}
		return rlp.WrapList(append(keyEnc, valEnc...)), nil
	case *fullNode:
		var payload []byte
		for i := 0; i < 17; i++ {
			enc, err := serializeValue(n.Children[i])
			if err != nil {
				return nil, err
			}
			payload = append(payload, enc...)
		}
		return rlp.WrapList(payload), nil
	default:
		return encodeNode(n)
	}
}

func serializeValue(n node) ([]byte, error) {
	if n == nil {
		return []byte{0x80}, nil
	}
	switch n := n.(type) {
	case *shortNode, *fullNode:
		return serialize(n)
	default:
		return encodeNodeValue(n)
	}
}
