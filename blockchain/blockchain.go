package blockchain

import (
	"fmt"
	"time"
)

// BlockChain is the append-only chain together with the state derived while
// extending it.
type BlockChain struct {
	Chain              []Block `json:"chain"`
	Difficulty         int     `json:"difficulty"`
	TotalInCirculation uint64  `json:"total_in_circulation"`
}

// New starts a chain holding only the genesis block.
func New() *BlockChain {
	return &BlockChain{
		Chain:      []Block{*Genesis(time.Now().Unix())},
		Difficulty: InitialDifficulty,
	}
}

// Restore rebuilds difficulty and circulation from stored blocks.
func Restore(blocks []Block) *BlockChain {
	chain := &BlockChain{Difficulty: InitialDifficulty}
	for i := range blocks {
		chain.Chain = append(chain.Chain, blocks[i])
		if i > 0 {
			chain.TotalInCirculation += BlockReward(&blocks[i])
		}
		chain.AdjustDifficulty()
	}
	return chain
}

func (chain *BlockChain) LastBlock() *Block {
	return &chain.Chain[len(chain.Chain)-1]
}

func (chain *BlockChain) LatestHash() string {
	return chain.LastBlock().Hash
}

// Height is the number of blocks, genesis included.
func (chain *BlockChain) Height() uint64 {
	return uint64(len(chain.Chain))
}

// Blocks returns a copy of the chain.
func (chain *BlockChain) Blocks() []Block {
	return append([]Block(nil), chain.Chain...)
}

func (chain *BlockChain) Clone() *BlockChain {
	clone := *chain
	clone.Chain = chain.Blocks()
	return &clone
}

// AdjustDifficulty retargets after the chain has grown.
func (chain *BlockChain) AdjustDifficulty() {
	chain.Difficulty = NextDifficulty(chain.Difficulty, chain.Chain)
}

// PrepareBlock assembles the next, unmined block: inactive outputs are
// reclaimed from set, the reward is computed and a coinbase to miner is
// placed in front of txs. Every transaction must spend outputs that are
// still in set once the reclamation is done, and create its outputs between
// the parent's timestamp and now. A clock behind the parent stamps the block
// with the parent's time.
func (chain *BlockChain) PrepareBlock(txs []*Transaction, miner string, set *UTXOSet, now int64) (*Block, error) {
	last := chain.LastBlock()
	index := last.Index + 1
	if now < last.Timestamp {
		now = last.Timestamp
	}

	reclaimed := set.Reclaim(now)
	extraReward := ExtraReward(reclaimed, chain.TotalInCirculation)
	totalReward := BaseReward(index) + extraReward

	blockTxs := make([]*Transaction, 0, len(txs)+1)
	blockTxs = append(blockTxs, CoinbaseTx(miner, totalReward, index, now))
	for _, tx := range txs {
		if err := verifyTransaction(tx, set); err != nil {
			return nil, fmt.Errorf("transaction %s: %w", tx.ID, err)
		}
		if err := checkOutputTimes(tx, last.Timestamp, now); err != nil {
			return nil, fmt.Errorf("transaction %s: %w", tx.ID, err)
		}
		set.applyTransaction(tx)
		blockTxs = append(blockTxs, tx)
	}

	data, err := EncodeTransactions(blockTxs)
	if err != nil {
		return nil, err
	}

	return NewBlock(index, now, last.Hash, data, extraReward), nil
}

// Append links a mined block to the tip.
func (chain *BlockChain) Append(b *Block) error {
	last := chain.LastBlock()
	if b.Index != last.Index+1 {
		return fmt.Errorf("%w: got %d, want %d", ErrIndexMismatch, b.Index, last.Index+1)
	}
	if b.PreviousHash != last.Hash {
		return ErrPrevHashMismatch
	}
	if b.Hash != b.CalculateHash() {
		return ErrHashMismatch
	}
	if !MeetsTarget(b.Hash, chain.Difficulty) {
		return ErrTargetNotMet
	}

	chain.Chain = append(chain.Chain, *b)
	chain.TotalInCirculation += BlockReward(b)
	chain.AdjustDifficulty()

	return nil
}

// AddBlock mines a block carrying the transactions in data, paying the
// reward to miner, and applies it to set. A data blob that does not decode
// contributes no transactions.
func (chain *BlockChain) AddBlock(data string, miner string, set *UTXOSet) (*Block, error) {
	txs, err := DecodeTransactions(data)
	if err != nil {
		txs = nil
	}
	return chain.MineBlock(txs, miner, set)
}

// MineBlock is AddBlock for already decoded transactions.
func (chain *BlockChain) MineBlock(txs []*Transaction, miner string, set *UTXOSet) (*Block, error) {
	now := time.Now().Unix()

	block, err := chain.PrepareBlock(txs, miner, set.Clone(), now)
	if err != nil {
		return nil, err
	}
	block.Mine(chain.Difficulty)

	if err := chain.Append(block); err != nil {
		return nil, err
	}
	set.Apply(block)

	return block, nil
}

// IsValid only checks hashes and links; Validate also replays the ledger.
func (chain *BlockChain) IsValid() bool {
	for i := 1; i < len(chain.Chain); i++ {
		current := &chain.Chain[i]
		previous := &chain.Chain[i-1]

		if current.Hash != current.CalculateHash() {
			return false
		}
		if current.PreviousHash != previous.Hash {
			return false
		}
	}
	return true
}
