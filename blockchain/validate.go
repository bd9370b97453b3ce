package blockchain

import (
	"fmt"
	"math/bits"
)

// Validate replays the whole chain. Every block is checked against the
// ledger built from the blocks before it, so an input must reference an
// output that was unspent at that point in history. The first failure stops
// the sweep.
func (chain *BlockChain) Validate() error {
	if len(chain.Chain) == 0 {
		return &InvalidBlockError{Index: 0, Err: ErrNoChain}
	}
	if err := verifyGenesis(&chain.Chain[0]); err != nil {
		return &InvalidBlockError{Index: 0, Err: err}
	}

	var (
		utxo        = FromChainSegment(chain.Chain[:1])
		difficulty  = InitialDifficulty
		circulating uint64
	)
	for i := 1; i < len(chain.Chain); i++ {
		if err := chain.verifyBlock(i, utxo, difficulty, circulating); err != nil {
			return &InvalidBlockError{Index: uint64(i), Err: err}
		}

		block := &chain.Chain[i]
		utxo.Apply(block)
		circulating += BlockReward(block)
		difficulty = NextDifficulty(difficulty, chain.Chain[:i+1])
	}

	return nil
}

// VerifyChain reports whether Validate succeeds.
func (chain *BlockChain) VerifyChain() bool {
	return chain.Validate() == nil
}

// VerifyBlock checks block i against set, the ledger as of blocks [0, i).
func (chain *BlockChain) VerifyBlock(i int, set *UTXOSet) error {
	if i <= 0 || i >= len(chain.Chain) {
		return fmt.Errorf("%w: no block at %d", ErrIndexMismatch, i)
	}

	var circulating uint64
	for j := 1; j < i; j++ {
		circulating += BlockReward(&chain.Chain[j])
	}

	return chain.verifyBlock(i, set, DifficultyAt(chain.Chain, i), circulating)
}

func (chain *BlockChain) verifyBlock(i int, set *UTXOSet, difficulty int, circulating uint64) error {
	block := &chain.Chain[i]
	previous := &chain.Chain[i-1]

	if block.PreviousHash != previous.Hash {
		return ErrPrevHashMismatch
	}

	return verifyCandidate(block, uint64(i), set, difficulty, circulating, previous.Timestamp)
}

// verifyCandidate checks everything about a block that does not depend on
// its predecessor's hash. The block may not be older than its parent, stamped
// parentTime, and every output it creates must fall between the two. set is
// not modified.
func verifyCandidate(block *Block, height uint64, set *UTXOSet, difficulty int, circulating uint64, parentTime int64) error {
	if block.Index != height {
		return fmt.Errorf("%w: got %d, want %d", ErrIndexMismatch, block.Index, height)
	}
	if block.Hash != block.CalculateHash() {
		return ErrHashMismatch
	}
	if !MeetsTarget(block.Hash, difficulty) {
		return ErrTargetNotMet
	}
	if block.Timestamp < parentTime {
		return fmt.Errorf("%w: %d is before parent %d", ErrBadTimestamp, block.Timestamp, parentTime)
	}

	txs, err := block.Transactions()
	if err != nil {
		return err
	}
	if len(txs) == 0 || !txs[0].IsCoinbase() {
		return ErrMissingCoinbase
	}

	work := set.Clone()
	reclaimed := work.Reclaim(block.Timestamp)
	if block.ExtraReward != ExtraReward(reclaimed, circulating) {
		return fmt.Errorf("%w: got %d, reclaimed %d", ErrBadExtraReward, block.ExtraReward, reclaimed)
	}

	coinbase := txs[0]
	if !coinbase.HasValidID() {
		return fmt.Errorf("coinbase: %w", ErrTxIDMismatch)
	}
	if coinbase.Outputs[0].Value != BlockReward(block) {
		return fmt.Errorf("%w: got %d, want %d", ErrBadReward, coinbase.Outputs[0].Value, BlockReward(block))
	}
	if created := coinbase.Outputs[0].CreatedAt; created != block.Timestamp {
		return fmt.Errorf("coinbase: %w: %d, block %d", ErrBadOutputTime, created, block.Timestamp)
	}
	work.applyTransaction(coinbase)

	for _, tx := range txs[1:] {
		if err := verifyTransaction(tx, work); err != nil {
			return fmt.Errorf("transaction %s: %w", tx.ID, err)
		}
		if err := checkOutputTimes(tx, parentTime, block.Timestamp); err != nil {
			return fmt.Errorf("transaction %s: %w", tx.ID, err)
		}
		work.applyTransaction(tx)
	}

	return nil
}

func verifyGenesis(genesis *Block) error {
	if genesis.Index != 0 {
		return ErrIndexMismatch
	}
	if genesis.PreviousHash != genesisPrevHash {
		return ErrPrevHashMismatch
	}
	if genesis.Hash != genesis.CalculateHash() {
		return ErrHashMismatch
	}
	if !MeetsTarget(genesis.Hash, InitialDifficulty) {
		return ErrTargetNotMet
	}
	return nil
}

// checkOutputTimes requires every output of tx to be created within [from, to].
func checkOutputTimes(tx *Transaction, from, to int64) error {
	for i, out := range tx.Outputs {
		if out.CreatedAt < from || out.CreatedAt > to {
			return fmt.Errorf("%w: output %d at %d, want [%d, %d]", ErrBadOutputTime, i, out.CreatedAt, from, to)
		}
	}
	return nil
}

// VerifyTransaction checks a spend against the ledger state in set.
func (chain *BlockChain) VerifyTransaction(tx *Transaction, set *UTXOSet) error {
	return verifyTransaction(tx, set)
}

func verifyTransaction(tx *Transaction, set *UTXOSet) error {
	if len(tx.Inputs) == 0 || len(tx.Outputs) == 0 {
		return ErrEmptyTransaction
	}
	if tx.IsCoinbase() {
		return ErrUnexpectedCoinbase
	}
	if !tx.HasValidID() {
		return ErrTxIDMismatch
	}

	var inputValue uint64
	seen := make(map[string]struct{}, len(tx.Inputs))
	for i := range tx.Inputs {
		in := &tx.Inputs[i]

		outpoint := fmt.Sprintf("%s:%d", in.TxID, in.Index)
		if _, dup := seen[outpoint]; dup {
			return fmt.Errorf("%w: %s spent twice", ErrUnknownInput, outpoint)
		}
		seen[outpoint] = struct{}{}

		out, ok := set.Get(in.TxID, in.Index)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownInput, outpoint)
		}
		if !in.IsValid(out) {
			return fmt.Errorf("%w: %s", ErrBadSignature, outpoint)
		}
		inputValue += out.Value
	}

	var outputValue, carry uint64
	for _, out := range tx.Outputs {
		outputValue, carry = bits.Add64(outputValue, out.Value, 0)
		if carry != 0 {
			return fmt.Errorf("%w: output sum overflows", ErrOutputsExceed)
		}
	}
	if outputValue > inputValue {
		return fmt.Errorf("%w: %d > %d", ErrOutputsExceed, outputValue, inputValue)
	}
	return nil
}
