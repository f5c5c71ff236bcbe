// Package rpcapi implements the verifier RPC surface (C4): decoding
// inbound transactions and witnesses, enqueueing them for the block
// generator, and forwarding peer advertisements to the network
// learner. The wire transport itself (framing, connection handling) is
// an external collaborator; this package is the request/response and
// streaming-message surface a transport adapter calls into.
package rpcapi

import (
	"errors"

	"go.uber.org/zap"

	"github.com/rainblock/verifier/crypto"
	"github.com/rainblock/verifier/log"
	"github.com/rainblock/verifier/mpt"
	"github.com/rainblock/verifier/netlearner"
	"github.com/rainblock/verifier/types"
)

// HandshakeRequest/HandshakeReply mirror
// VerifierVerifierHandshakeMessage, used for both directions of the
// handshake RPC.
type HandshakeRequest struct {
	ProtocolVersion uint32
	Version         string
	Beneficiary     types.Address
}

type HandshakeReply struct {
	ProtocolVersion uint32
	Version         string
	Beneficiary     types.Address
}

// TransactionRequest mirrors SubmitTransaction's input: the raw RLP
// transaction and its accompanying witness nodes.
type TransactionRequest struct {
	Transaction      []byte
	AccountWitnesses [][]byte
}

// TransactionReply mirrors SubmitTransaction's synchronous ack. The
// final outcome (SUCCESS/INVALID after execution) is delivered later
// through the tx's ReplyHandle; this reply only reports decode-time
// rejection (see §4.3: "on any decode or structural failure, reply
// synchronously with INVALID").
type TransactionReply struct {
	Code types.ErrorCode
}

// TxQueue is the consumed contract for C6's transaction queue: the
// only thing SubmitTransaction needs from the block generator.
type TxQueue interface {
	Enqueue(tx *types.TransactionRecord)
}

// Handler implements the RPC surface against a queue and a learner.
type Handler struct {
	Queue           TxQueue
	Learner         *netlearner.Learner
	Beneficiary     types.Address
	ProtocolVersion uint32
	Version         string

	// CurrentHeight reports the block generator's current height, used
	// to filter inbound block advertisements (§4.2).
	CurrentHeight func() uint64
}

// Handshake returns the protocol version, verifier version, and
// configured beneficiary.
func (h *Handler) Handshake(req HandshakeRequest) HandshakeReply {
	return HandshakeReply{
		ProtocolVersion: h.ProtocolVersion,
		Version:         h.Version,
		Beneficiary:     h.Beneficiary,
	}
}

var errMalformedTransaction = errors.New("rpcapi: malformed transaction")

// SubmitTransaction decodes the transaction and its witnesses, builds
// the per-tx proof map, and enqueues it with an opaque reply handle.
// On any decode or structural failure it replies INVALID synchronously
// instead of enqueueing (never mutate global state before a successful
// enqueue).
func (h *Handler) SubmitTransaction(req TransactionRequest, reply types.ReplyHandle) TransactionReply {
	logger := log.Module("rpcapi")

	tx, err := types.DecodeTxRLP(req.Transaction)
	if err != nil {
		logger.Warn("dropping malformed transaction", zap.Error(err))
		return TransactionReply{Code: types.ErrorCodeInvalid}
	}

	proofs := make(map[types.Hash][]byte, len(req.AccountWitnesses))
	for _, w := range req.AccountWitnesses {
		if _, err := mpt.RlpToMerkleNode(w); err != nil {
			logger.Warn("dropping transaction with malformed witness", zap.Error(err))
			return TransactionReply{Code: types.ErrorCodeInvalid}
		}
		proofs[mpt.NodeHash(w)] = w
	}

	record := &types.TransactionRecord{
		TxHash:      crypto.Keccak256Hash(req.Transaction),
		Tx:          tx,
		TxBinary:    req.Transaction,
		Proofs:      proofs,
		FromHash:    crypto.Keccak256Hash(tx.From.Bytes()),
		ReplyHandle: reply,
		ErrorCode:   types.ErrorCodeUnset,
	}
	if tx.To != nil {
		record.ToHash = crypto.Keccak256Hash(tx.To.Bytes())
	}

	h.Queue.Enqueue(record)
	return TransactionReply{Code: types.ErrorCodeUnset}
}

// AdvertiseNode handles one inbound node of the streaming
// AdvertiseNode RPC: compute its hash and hand it to the learner.
func (h *Handler) AdvertiseNode(node []byte) {
	h.Learner.LearnNode(mpt.NodeHash(node), node)
}

// AdvertiseBlock handles one inbound block of the streaming
// AdvertiseBlock RPC: decode and hand it to the learner.
func (h *Handler) AdvertiseBlock(blockBytes []byte) error {
	block, err := types.DecodeBlockRLP(blockBytes)
	if err != nil {
		log.Module("rpcapi").Warn("dropping malformed block advertisement", zap.Error(err))
		return err
	}
	h.Learner.LearnBlock(h.CurrentHeight(), block)
	return nil
}

// AdvertiseNeighbor is accepted but otherwise unspecified (§4.3).
func (h *Handler) AdvertiseNeighbor(_ []byte) {}
