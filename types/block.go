package types

import (
	"github.com/holiman/uint256"

	"github.com/rainblock/verifier/rlp"
)

// Header is the classic Ethereum block header, trimmed to the fields
// the verifier actually populates (no post-merge/EIP-1559 extensions:
// this verifier never produces those fields, so the header carries a
// fixed list with no optional trailing elements).
type Header struct {
	ParentHash       Hash
	UncleHash        Hash
	Beneficiary      Address
	StateRoot        Hash
	TransactionsRoot Hash
	ReceiptsRoot     Hash
	LogsBloom        [256]byte
	Difficulty       *uint256.Int
	BlockNumber      uint64
	GasLimit         uint64
	GasUsed          uint64
	Timestamp        uint64
	ExtraData        []byte
	MixHash          Hash
	Nonce            uint64
}

// headerRLP mirrors Header field-for-field in canonical RLP order,
// using plain []byte for every fixed-width or big-integer field since
// the reflective codec only special-cases *big.Int.
type headerRLP struct {
	ParentHash       []byte
	UncleHash        []byte
	Beneficiary      []byte
	StateRoot        []byte
	TransactionsRoot []byte
	ReceiptsRoot     []byte
	LogsBloom        []byte
	Difficulty       []byte
	BlockNumber      uint64
	GasLimit         uint64
	GasUsed          uint64
	Timestamp        uint64
	ExtraData        []byte
	MixHash          []byte
	Nonce            uint64
}

func (h *Header) toRLP() *headerRLP {
	return &headerRLP{
		ParentHash:       h.ParentHash.Bytes(),
		UncleHash:        h.UncleHash.Bytes(),
		Beneficiary:      h.Beneficiary.Bytes(),
		StateRoot:        h.StateRoot.Bytes(),
		TransactionsRoot: h.TransactionsRoot.Bytes(),
		ReceiptsRoot:     h.ReceiptsRoot.Bytes(),
		LogsBloom:        h.LogsBloom[:],
		Difficulty:       h.Difficulty.Bytes(),
		BlockNumber:      h.BlockNumber,
		GasLimit:         h.GasLimit,
		GasUsed:          h.GasUsed,
		Timestamp:        h.Timestamp,
		ExtraData:        h.ExtraData,
		MixHash:          h.MixHash.Bytes(),
		Nonce:            h.Nonce,
	}
}

func headerFromRLP(r *headerRLP) *Header {
	h := &Header{
		ParentHash:       BytesToHash(r.ParentHash),
		UncleHash:        BytesToHash(r.UncleHash),
		Beneficiary:      BytesToAddress(r.Beneficiary),
		StateRoot:        BytesToHash(r.StateRoot),
		TransactionsRoot: BytesToHash(r.TransactionsRoot),
		ReceiptsRoot:     BytesToHash(r.ReceiptsRoot),
		Difficulty:       new(uint256.Int).SetBytes(r.Difficulty),
		BlockNumber:      r.BlockNumber,
		GasLimit:         r.GasLimit,
		GasUsed:          r.GasUsed,
		Timestamp:        r.Timestamp,
		ExtraData:        r.ExtraData,
		MixHash:          BytesToHash(r.MixHash),
		Nonce:            r.Nonce,
	}
	copy(h.LogsBloom[:], r.LogsBloom)
	return h
}

// EncodeRLP returns the canonical RLP encoding of the header.
func (h *Header) EncodeRLP() ([]byte, error) {
	return rlp.EncodeToBytes(h.toRLP())
}

// DecodeHeaderRLP decodes a canonical RLP-encoded header.
func DecodeHeaderRLP(data []byte) (*Header, error) {
	var r headerRLP
	if err := rlp.DecodeBytes(data, &r); err != nil {
		return nil, err
	}
	return headerFromRLP(&r), nil
}

// Block is RLP([header, transactions, uncles]); this verifier never
// produces uncles, but the list element is always present and empty
// to stay wire-compatible with canonical Ethereum blocks.
type Block struct {
	Header       *Header
	Transactions [][]byte // raw RLP-encoded transaction bytes, in order
}

type blockRLP struct {
	Header       headerRLP
	Transactions [][]byte
	Uncles       [][]byte
}

// EncodeRLP returns RLP([header, transactions, uncles=[]]).
func (b *Block) EncodeRLP() ([]byte, error) {
	txs := b.Transactions
	if txs == nil {
		txs = [][]byte{}
	}
	return rlp.EncodeToBytes(&blockRLP{
		Header:       *b.Header.toRLP(),
		Transactions: txs,
		Uncles:       [][]byte{},
	})
}

// DecodeBlockRLP decodes RLP([header, transactions, uncles]).
func DecodeBlockRLP(data []byte) (*Block, error) {
	var r blockRLP
	if err := rlp.DecodeBytes(data, &r); err != nil {
		return nil, err
	}
	return &Block{
		Header:       headerFromRLP(&r.Header),
		Transactions: r.Transactions,
	}, nil
}
