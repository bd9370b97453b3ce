package blockchain

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MaxFutureDrift is how far ahead of the local clock a peer block may be stamped.
const MaxFutureDrift = 2 * time.Hour

// LedgerMetrics receives observations about chain growth.
type LedgerMetrics interface {
	ObserveMine(err error, started time.Time)
	ObserveAccept(err error)
	ObserveChain(height uint64, difficulty int, circulating uint64)
}

// Ledger is the single owner of a chain and its UTXO index. A block is
// appended and applied to the index under one write lock, so readers never
// see the chain ahead of the balances.
type Ledger struct {
	mu      sync.RWMutex
	saveMu  sync.Mutex
	chain   *BlockChain
	utxo    *UTXOSet
	store   Store
	logger  *zap.Logger
	metrics LedgerMetrics
	now     func() time.Time
}

// NewLedger takes ownership of chain. store may be nil for an in-memory ledger.
func NewLedger(chain *BlockChain, store Store, logger *zap.Logger, metrics LedgerMetrics) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	l := &Ledger{
		chain:   chain,
		utxo:    FromChainSegment(chain.Chain),
		store:   store,
		logger:  logger.Named("ledger"),
		metrics: metrics,
		now:     time.Now,
	}
	l.metrics.ObserveChain(chain.Height(), chain.Difficulty, chain.TotalInCirculation)

	return l
}

// MineBlock assembles a block from txs under the lock, mines it without the
// lock and appends it only if the tip has not moved meanwhile. A block that
// arrives from a peer during the search does not stop it; the stale result
// is discarded with ErrStaleTip.
func (l *Ledger) MineBlock(txs []*Transaction, miner string) (*Block, error) {
	started := l.now()

	candidate, difficulty, err := l.prepare(txs, miner, started.Unix())
	if err != nil {
		l.metrics.ObserveMine(err, started)
		return nil, err
	}
	candidate.Mine(difficulty)

	return l.commit(candidate, difficulty, started)
}

func (l *Ledger) prepare(txs []*Transaction, miner string, now int64) (*Block, int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	candidate, err := l.chain.PrepareBlock(txs, miner, l.utxo.Clone(), now)
	if err != nil {
		return nil, 0, err
	}
	return candidate, l.chain.Difficulty, nil
}

func (l *Ledger) commit(candidate *Block, difficulty int, started time.Time) (*Block, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if candidate.PreviousHash != l.chain.LatestHash() {
		l.metrics.ObserveMine(ErrStaleTip, started)
		return nil, ErrStaleTip
	}
	if err := l.chain.Append(candidate); err != nil {
		l.metrics.ObserveMine(err, started)
		return nil, err
	}
	l.utxo.Apply(candidate)

	l.metrics.ObserveMine(nil, started)
	l.metrics.ObserveChain(l.chain.Height(), l.chain.Difficulty, l.chain.TotalInCirculation)
	l.logger.Info("block mined",
		zap.Uint64("index", candidate.Index),
		zap.String("hash", candidate.Hash),
		zap.Uint64("nonce", candidate.Nonce),
		zap.Int("difficulty", difficulty),
		zap.Duration("took", time.Since(started)),
	)

	return candidate, nil
}

// Send builds a transfer signed by from and mines it into a block paying
// the reward to from.
func (l *Ledger) Send(from Signer, to string, amount uint64) (*Transaction, *Block, error) {
	l.mu.RLock()
	now := l.now().Unix()
	if tip := l.chain.LastBlock().Timestamp; now < tip {
		now = tip
	}
	tx, err := NewUTXOTransaction(from, to, amount, l.utxo, now)
	l.mu.RUnlock()
	if err != nil {
		return nil, nil, err
	}

	block, err := l.MineBlock([]*Transaction{tx}, from.Address())
	if err != nil {
		return nil, nil, err
	}
	return tx, block, nil
}

// AcceptBlock validates a block received from a peer against the current
// tip and ledger state and appends it. Competing branches are rejected.
func (l *Ledger) AcceptBlock(b *Block) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.acceptBlock(b)
	l.metrics.ObserveAccept(err)
	if err != nil {
		l.logger.Warn("block rejected", zap.Uint64("index", b.Index), zap.String("hash", b.Hash), zap.Error(err))
		return err
	}

	l.metrics.ObserveChain(l.chain.Height(), l.chain.Difficulty, l.chain.TotalInCirculation)
	l.logger.Info("block accepted", zap.Uint64("index", b.Index), zap.String("hash", b.Hash))
	return nil
}

func (l *Ledger) acceptBlock(b *Block) error {
	last := l.chain.LastBlock()
	if b.PreviousHash != last.Hash {
		return ErrPrevHashMismatch
	}
	if limit := l.now().Add(MaxFutureDrift).Unix(); b.Timestamp > limit {
		return fmt.Errorf("%w: %d is more than %s ahead", ErrBadTimestamp, b.Timestamp, MaxFutureDrift)
	}
	err := verifyCandidate(b, l.chain.Height(), l.utxo, l.chain.Difficulty, l.chain.TotalInCirculation, last.Timestamp)
	if err != nil {
		return err
	}
	if err := l.chain.Append(b); err != nil {
		return err
	}
	l.utxo.Apply(b)
	return nil
}

// VerifyTransaction checks tx against the current ledger state.
func (l *Ledger) VerifyTransaction(tx *Transaction) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return verifyTransaction(tx, l.utxo)
}

func (l *Ledger) Balance(address string) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.utxo.Balance(address)
}

func (l *Ledger) FindByAddress(address string) []UTXO {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.utxo.FindByAddress(address)
}

// Snapshot returns a copy of the chain that is safe to read without the lock.
func (l *Ledger) Snapshot() *BlockChain {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.chain.Clone()
}

// UTXO returns a copy of the current unspent output index.
func (l *Ledger) UTXO() *UTXOSet {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.utxo.Clone()
}

func (l *Ledger) Height() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.chain.Height()
}

// Verify validates the whole chain.
func (l *Ledger) Verify() error {
	return l.Snapshot().Validate()
}

// Rebuild recomputes the index from genesis and returns the output count.
func (l *Ledger) Rebuild() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.utxo = FromBlockchain(l.chain.Chain)
	return l.utxo.Count()
}

// Save writes the chain through the store. Saves run one at a time and each
// takes its snapshot once it holds the turn, so the last write is never older
// than an earlier one. The in-memory ledger stays usable when it fails.
func (l *Ledger) Save() error {
	if l.store == nil {
		return nil
	}
	l.saveMu.Lock()
	defer l.saveMu.Unlock()

	snapshot := l.Snapshot()
	if err := l.store.Save(snapshot); err != nil {
		l.logger.Error("failed to save chain", zap.Uint64("height", snapshot.Height()), zap.Error(err))
		return fmt.Errorf("save chain: %w", err)
	}
	return nil
}

type nopMetrics struct{}

func (nopMetrics) ObserveMine(error, time.Time)     {}
func (nopMetrics) ObserveAccept(error)              {}
func (nopMetrics) ObserveChain(uint64, int, uint64) {}
