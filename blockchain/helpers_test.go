package blockchain

import (
	"testing"

	"github.com/TualatinX/vitabit/wallet"
	"github.com/stretchr/testify/require"
)

const testEpoch int64 = 1_700_000_000

func newWallet(t *testing.T) *wallet.Wallet {
	t.Helper()

	w, err := wallet.NewWallet()
	require.NoError(t, err)
	return w
}

func newTestChain() *BlockChain {
	return &BlockChain{
		Chain:      []Block{*Genesis(testEpoch)},
		Difficulty: InitialDifficulty,
	}
}

// mineAt appends a block stamped ts and applies it to set.
func mineAt(t *testing.T, chain *BlockChain, set *UTXOSet, txs []*Transaction, miner string, ts int64) *Block {
	t.Helper()

	block, err := chain.PrepareBlock(txs, miner, set.Clone(), ts)
	require.NoError(t, err)
	block.Mine(chain.Difficulty)
	require.NoError(t, chain.Append(block))
	set.Apply(block)

	return block
}

func transfer(t *testing.T, from *wallet.Wallet, to string, amount uint64, set *UTXOSet, ts int64) *Transaction {
	t.Helper()

	tx, err := NewUTXOTransaction(from, to, amount, set, ts)
	require.NoError(t, err)
	return tx
}

// remine replaces block i's data, re-mines it and relinks every later block
// so that only ledger rules can catch the change.
func remine(chain *BlockChain, i int, mutate func(b *Block)) {
	mutate(&chain.Chain[i])
	for j := i; j < len(chain.Chain); j++ {
		if j > 0 {
			chain.Chain[j].PreviousHash = chain.Chain[j-1].Hash
		}
		chain.Chain[j].Mine(DifficultyAt(chain.Chain, j))
	}
}

func encodeTxs(t *testing.T, txs ...*Transaction) string {
	t.Helper()

	data, err := EncodeTransactions(txs)
	require.NoError(t, err)
	return data
}
