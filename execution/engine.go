// Package execution implements the stateful execution engine (C5):
// ordered transaction application against a cached, partial MPT plus
// per-transaction witness proofs, producing a write-set and a new
// copy-on-write tree.
package execution

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/rainblock/verifier/account"
	"github.com/rainblock/verifier/log"
	"github.com/rainblock/verifier/mpt"
	"github.com/rainblock/verifier/types"
)

// Config holds the subset of the verifier configuration the engine
// consults while applying transactions.
type Config struct {
	// GenerateFromAccounts synthesizes an absent sender account rather
	// than failing the transaction (config.generateFromAccounts).
	GenerateFromAccounts bool
	// DisableNonceCheck skips the sender-nonce equality enforcement.
	DisableNonceCheck bool
	// ShareBag unifies all per-tx witness bags into one shared bag for
	// the height, so a later tx can reuse an earlier tx's proofs.
	ShareBag bool
}

// Result is everything OrderAndExecute produces for a height.
type Result struct {
	StateRoot     types.Hash
	GasUsed       uint64 // always 0: EVM execution is out of scope
	Timestamp     int64  // wall-clock millis
	Order         []*types.TransactionRecord
	WriteSet      account.WriteSet
	NewTree       *mpt.Tree
	ExecutionTime time.Duration
	// UsedNodes is every witness node resolved off a hash-only stub
	// during this pass, fit for re-advertisement to neighbors in
	// proposal mode.
	UsedNodes mpt.Bag
}

var (
	// ErrContractCreationUnsupported is the tx-scoped UnsupportedFeature
	// error for the disallowed CONTRACT_CREATION sentinel.
	ErrContractCreationUnsupported = errors.New("execution: contract creation not yet supported")
	// ErrNonceMismatch is returned when a sender's nonce does not match
	// the account's current nonce and DisableNonceCheck is unset.
	ErrNonceMismatch = errors.New("execution: sender nonce mismatch")
)

// OrderAndExecute is the engine's sole entry point. In proposal mode
// (verifyOnly=false) each transaction's proofs are its own witness bag
// (or, if cfg.ShareBag, the union of every witness bag submitted this
// height); resolved nodes are also recorded for later re-advertisement.
// In verify mode (verifyOnly=true, used to adopt a peer block) every
// transaction's own witnesses are ignored and only the learned-node
// tables are consulted.
func OrderAndExecute(
	tree *mpt.Tree,
	txs []*types.TransactionRecord,
	learnedCurrent, learnedPrevious mpt.Bag,
	cfg Config,
	verifyOnly bool,
) (*Result, error) {
	start := time.Now()
	logger := log.Module("execution")

	fallback := mpt.ChainedSource{learnedCurrent, learnedPrevious}

	var shareBag mpt.Bag
	if cfg.ShareBag && !verifyOnly {
		shareBag = mpt.Bag{}
		for _, tx := range txs {
			for h, n := range tx.Proofs {
				if _, ok := shareBag[h]; !ok {
					shareBag[h] = n
				}
			}
		}
	}

	ws := account.NewWriteSet()
	usedNodes := mpt.Bag{}
	order := make([]*types.TransactionRecord, 0, len(txs))

	for _, tx := range txs {
		primary := perTxPrimary(tx, shareBag, verifyOnly)
		if err := applyOne(tree, ws, tx, primary, fallback, usedNodes, cfg, logger); err != nil {
			tx.ErrorCode = types.ErrorCodeInvalid
			logger.Warn("transaction failed", zap.String("txHash", tx.TxHash.String()), zap.Error(err))
		} else {
			tx.ErrorCode = types.ErrorCodeSuccess
		}
		order = append(order, tx)
	}

	puts, err := ws.Puts()
	if err != nil {
		return nil, err
	}
	newTree, err := tree.BatchCow(puts, usedNodes, mpt.Bag{}, fallback)
	if err != nil {
		return nil, err
	}

	if !verifyOnly {
		if err := checkUsedNodesAccountedFor(usedNodes, shareBag, txs, learnedCurrent, learnedPrevious); err != nil {
			return nil, err
		}
	}

	return &Result{
		StateRoot:     newTree.RootHash(),
		GasUsed:       0,
		Timestamp:     time.Now().UnixMilli(),
		Order:         order,
		WriteSet:      ws,
		NewTree:       newTree,
		ExecutionTime: time.Since(start),
		UsedNodes:     usedNodes,
	}, nil
}

// perTxPrimary returns the proof source consulted before falling
// through to the learned-node chain, per §4.4's two modes.
func perTxPrimary(tx *types.TransactionRecord, shareBag mpt.Bag, verifyOnly bool) mpt.NodeSource {
	if verifyOnly {
		return mpt.Bag{}
	}
	if shareBag != nil {
		return shareBag
	}
	return mpt.Bag(tx.Proofs)
}

// applyOne runs steps 1-4 of §4.4 against local drafts, committing to
// the write-set only once every check has passed for this tx.
func applyOne(
	tree *mpt.Tree,
	ws account.WriteSet,
	tx *types.TransactionRecord,
	primary, fallback mpt.NodeSource,
	usedNodes mpt.Bag,
	cfg Config,
	logger *log.Logger,
) error {
	fromAcct, err := account.GetAccount(ws, tree, tx.From, tx.FromHash, primary, fallback, usedNodes, cfg.GenerateFromAccounts, tx.Tx.Nonce)
	if err != nil {
		return err
	}
	fromDraft := fromAcct.Copy()

	if !cfg.DisableNonceCheck && tx.Tx.Nonce != fromDraft.Nonce {
		return ErrNonceMismatch
	}

	if tx.Tx.IsContractCreation() {
		return ErrContractCreationUnsupported
	}
	to := *tx.Tx.To

	toAcct, err := account.GetAccount(ws, tree, to, tx.ToHash, primary, fallback, usedNodes, false, 0)
	switch {
	case err == nil:
		// TO exists: step 4, simple transfer (code or not, EVM is out
		// of scope).
		if toAcct.HasCode() {
			logger.Warn("recipient has code, applying simple transfer anyway",
				zap.String("to", to.String()))
		}
		toDraft := toAcct.Copy()
		if err := fromDraft.Debit(tx.Tx.Value); err != nil {
			return err
		}
		if err := toDraft.Credit(tx.Tx.Value); err != nil {
			return err
		}
		fromDraft.Nonce++
		ws[tx.From] = &account.Entry{HashedAddress: tx.FromHash, Account: fromDraft}
		ws[to] = &account.Entry{HashedAddress: tx.ToHash, Account: toDraft}
		return nil

	case errors.Is(err, mpt.ErrKeyNotFound):
		// TO absent: step 3, auto-create funded solely by tx.value.
		newTo := types.NewEmptyAccount(0, tx.Tx.Value)
		if err := fromDraft.Debit(tx.Tx.Value); err != nil {
			return err
		}
		fromDraft.Nonce++
		ws[tx.From] = &account.Entry{HashedAddress: tx.FromHash, Account: fromDraft}
		ws[to] = &account.Entry{HashedAddress: tx.ToHash, Account: newTo}
		return nil

	default:
		return err
	}
}

// checkUsedNodesAccountedFor is a defensive assertion: every node the
// tree resolved off a hash-only stub during this pass must be
// explainable either as a witness proof submitted this height (and
// therefore due for re-advertisement) or as a node already present in
// the learned-node tables (already known to neighbors). resolve() only
// ever adds to usedNodes after a successful primary/fallback lookup,
// so this should never trip; it exists to turn a future wiring mistake
// into ErrInternalInconsistency instead of a silently wrong bag.
func checkUsedNodesAccountedFor(
	usedNodes mpt.Bag,
	shareBag mpt.Bag,
	txs []*types.TransactionRecord,
	learnedCurrent, learnedPrevious mpt.Bag,
) error {
	for h := range usedNodes {
		if shareBag != nil {
			if _, ok := shareBag[h]; ok {
				continue
			}
		}
		found := false
		for _, tx := range txs {
			if _, ok := tx.Proofs[h]; ok {
				found = true
				break
			}
		}
		if found {
			continue
		}
		if _, ok := learnedCurrent[h]; ok {
			continue
		}
		if _, ok := learnedPrevious[h]; ok {
			continue
		}
		return mpt.ErrInternalInconsistency
	}
	return nil
}
