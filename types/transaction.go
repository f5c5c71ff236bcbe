package types

import (
	"github.com/holiman/uint256"

	"github.com/rainblock/verifier/rlp"
)

// TxData is the decoded transaction envelope this verifier consumes:
// [nonce, from, to, value, data]. Signature/nonce cryptographic
// validation is assumed to have happened upstream (out of scope), so
// From is carried as an already-resolved field rather than recovered
// from a signature.
type TxData struct {
	Nonce uint64
	From  Address
	To    *Address // nil means the CONTRACT_CREATION sentinel
	Value *uint256.Int
	Data  []byte
}

type txDataRLP struct {
	Nonce uint64
	From  []byte
	To    []byte // empty for contract creation
	Value []byte
	Data  []byte
}

// DecodeTxRLP decodes a raw RLP-encoded transaction.
func DecodeTxRLP(data []byte) (*TxData, error) {
	var r txDataRLP
	if err := rlp.DecodeBytes(data, &r); err != nil {
		return nil, err
	}
	td := &TxData{
		Nonce: r.Nonce,
		From:  BytesToAddress(r.From),
		Value: new(uint256.Int).SetBytes(r.Value),
		Data:  r.Data,
	}
	if len(r.To) > 0 {
		to := BytesToAddress(r.To)
		td.To = &to
	}
	return td, nil
}

// EncodeRLP returns the canonical RLP encoding of the transaction.
func (td *TxData) EncodeRLP() ([]byte, error) {
	var to []byte
	if td.To != nil {
		to = td.To.Bytes()
	}
	return rlp.EncodeToBytes(&txDataRLP{
		Nonce: td.Nonce,
		From:  td.From.Bytes(),
		To:    to,
		Value: td.Value.Bytes(),
		Data:  td.Data,
	})
}

// IsContractCreation reports whether this transaction targets the
// CONTRACT_CREATION sentinel (an absent `to` field).
func (td *TxData) IsContractCreation() bool {
	return td.To == nil
}

// TransactionRecord is the per-transaction bookkeeping struct the
// execution engine and RPC surface pass around: the decoded tx plus
// its witness bag and post-execution outcome.
type TransactionRecord struct {
	TxHash      Hash
	Tx          *TxData
	TxBinary    []byte          // raw RLP bytes, as submitted
	Proofs      map[Hash][]byte // witness-node hash -> RLP-encoded node bytes
	FromHash    Hash            // Keccak(tx.From)
	ToHash      Hash            // Keccak(tx.To); zero if contract creation
	ReplyHandle ReplyHandle
	ErrorCode   ErrorCode
}

// ErrorCode mirrors the wire-level TransactionReply.code.
type ErrorCode int

const (
	// ErrorCodeUnset marks a transaction that has not completed
	// execution yet.
	ErrorCodeUnset ErrorCode = iota
	ErrorCodeSuccess
	ErrorCodeInvalid
)

func (c ErrorCode) String() string {
	switch c {
	case ErrorCodeSuccess:
		return "SUCCESS"
	case ErrorCodeInvalid:
		return "INVALID"
	default:
		return "UNSET"
	}
}

// ReplyHandle is an opaque token the RPC surface uses to deliver the
// outcome of a submitted transaction back to its caller. The block
// generator calls Resolve once each time it executes the transaction
// in a height; a transaction requeued after that height (lost race,
// failed shard update, rejected peer block) is resolved again when it
// is executed in a later height.
type ReplyHandle interface {
	Resolve(code ErrorCode)
}
