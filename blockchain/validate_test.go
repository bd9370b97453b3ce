package blockchain

import (
	"errors"
	"testing"

	"github.com/TualatinX/vitabit/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndToEndTransfers(t *testing.T) {
	alice, bob, carol, miner := newWallet(t), newWallet(t), newWallet(t), newWallet(t)
	chain := newTestChain()
	set := FromChainSegment(chain.Chain)

	ts := testEpoch + 600
	mineAt(t, chain, set, nil, alice.Address(), ts)

	steps := []struct {
		from   *wallet.Wallet
		to     *wallet.Wallet
		amount uint64
	}{
		{alice, bob, 10 * Coin},
		{bob, carol, 4 * Coin},
		{alice, carol, 5 * Coin},
	}
	for i, step := range steps {
		at := ts + int64(i+1)*600
		tx := transfer(t, step.from, step.to.Address(), step.amount, set, at)
		mineAt(t, chain, set, []*Transaction{tx}, miner.Address(), at)
	}

	require.Len(t, chain.Chain, 5)
	assert.Equal(t, 35*Coin, set.Balance(alice.Address()))
	assert.Equal(t, 6*Coin, set.Balance(bob.Address()))
	assert.Equal(t, 9*Coin, set.Balance(carol.Address()))
	assert.Equal(t, 150*Coin, set.Balance(miner.Address()))
	assert.Equal(t, 200*Coin, chain.TotalInCirculation)
	assert.Equal(t, chain.TotalInCirculation, set.Total())

	require.NoError(t, chain.Validate())
	assert.True(t, chain.VerifyChain())
	assert.True(t, chain.IsValid())
	assert.Equal(t, set.All(), FromBlockchain(chain.Chain).All())

	chain.Chain[2].Nonce++
	assert.False(t, chain.VerifyChain())
	assert.False(t, chain.IsValid())

	var invalid *InvalidBlockError
	require.ErrorAs(t, chain.Validate(), &invalid)
	assert.Equal(t, uint64(2), invalid.Index)
	assert.ErrorIs(t, invalid, ErrHashMismatch)
}

// fundedChain is genesis, a block paying alice and a placeholder block 2.
func fundedChain(t *testing.T) (*BlockChain, *wallet.Wallet, *Transaction) {
	t.Helper()

	alice := newWallet(t)
	chain := newTestChain()
	set := FromChainSegment(chain.Chain)
	funding := mineAt(t, chain, set, nil, alice.Address(), testEpoch+600)
	mineAt(t, chain, set, nil, alice.Address(), testEpoch+1200)

	txs, err := funding.Transactions()
	require.NoError(t, err)
	return chain, alice, txs[0]
}

func signedInput(t *testing.T, signer *wallet.Wallet, txid string, index int) TxInput {
	t.Helper()

	sig, err := signer.Sign(InputMessage(txid, index))
	require.NoError(t, err)
	return TxInput{TxID: txid, Index: index, Signature: sig, PubKey: signer.PublicKey}
}

func TestValidateRejectsTamperedBlock(t *testing.T) {
	const ts = testEpoch + 1200
	mallory := newWallet(t)
	coinbase := CoinbaseTx(mallory.Address(), 50*Coin, 2, ts)

	tests := []struct {
		name  string
		block func(t *testing.T, alice *wallet.Wallet, funding *Transaction) (string, uint64)
		want  error
	}{
		{
			name: "spend with a foreign key",
			block: func(t *testing.T, _ *wallet.Wallet, funding *Transaction) (string, uint64) {
				tx := NewTransaction(
					[]TxInput{signedInput(t, mallory, funding.ID, 0)},
					[]TxOutput{NewTXOutput(50*Coin, mallory.Address(), ts)},
				)
				return encodeTxs(t, coinbase, tx), 0
			},
			want: ErrBadSignature,
		},
		{
			name: "duplicate input",
			block: func(t *testing.T, alice *wallet.Wallet, funding *Transaction) (string, uint64) {
				in := signedInput(t, alice, funding.ID, 0)
				tx := NewTransaction([]TxInput{in, in}, []TxOutput{NewTXOutput(100*Coin, mallory.Address(), ts)})
				return encodeTxs(t, coinbase, tx), 0
			},
			want: ErrUnknownInput,
		},
		{
			name: "outputs exceed inputs",
			block: func(t *testing.T, alice *wallet.Wallet, funding *Transaction) (string, uint64) {
				tx := NewTransaction(
					[]TxInput{signedInput(t, alice, funding.ID, 0)},
					[]TxOutput{NewTXOutput(50*Coin+1, mallory.Address(), ts)},
				)
				return encodeTxs(t, coinbase, tx), 0
			},
			want: ErrOutputsExceed,
		},
		{
			name: "unknown input",
			block: func(t *testing.T, alice *wallet.Wallet, _ *Transaction) (string, uint64) {
				tx := NewTransaction(
					[]TxInput{signedInput(t, alice, "ff", 0)},
					[]TxOutput{NewTXOutput(1, mallory.Address(), ts)},
				)
				return encodeTxs(t, coinbase, tx), 0
			},
			want: ErrUnknownInput,
		},
		{
			name: "tampered transaction id",
			block: func(t *testing.T, alice *wallet.Wallet, funding *Transaction) (string, uint64) {
				tx := NewTransaction(
					[]TxInput{signedInput(t, alice, funding.ID, 0)},
					[]TxOutput{NewTXOutput(1, mallory.Address(), ts)},
				)
				tx.Outputs[0].Value = 2
				return encodeTxs(t, coinbase, tx), 0
			},
			want: ErrTxIDMismatch,
		},
		{
			name: "coinbase pays too much",
			block: func(t *testing.T, _ *wallet.Wallet, _ *Transaction) (string, uint64) {
				return encodeTxs(t, CoinbaseTx(mallory.Address(), 50*Coin+1, 2, ts)), 0
			},
			want: ErrBadReward,
		},
		{
			name: "extra reward without reclamation",
			block: func(t *testing.T, _ *wallet.Wallet, _ *Transaction) (string, uint64) {
				return encodeTxs(t, CoinbaseTx(mallory.Address(), 55*Coin, 2, ts)), 5 * Coin
			},
			want: ErrBadExtraReward,
		},
		{
			name: "no coinbase",
			block: func(t *testing.T, _ *wallet.Wallet, _ *Transaction) (string, uint64) {
				return "[]", 0
			},
			want: ErrMissingCoinbase,
		},
		{
			name: "second coinbase",
			block: func(t *testing.T, _ *wallet.Wallet, _ *Transaction) (string, uint64) {
				return encodeTxs(t, coinbase, CoinbaseTx(mallory.Address(), 50*Coin, 3, ts)), 0
			},
			want: ErrUnexpectedCoinbase,
		},
		{
			name: "malformed data",
			block: func(t *testing.T, _ *wallet.Wallet, _ *Transaction) (string, uint64) {
				return "garbage", 0
			},
			want: ErrMalformedData,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain, alice, funding := fundedChain(t)
			data, extra := tt.block(t, alice, funding)
			remine(chain, 2, func(b *Block) {
				b.Data = data
				b.ExtraReward = extra
			})
			require.True(t, chain.IsValid(), "links and hashes stay intact")

			err := chain.Validate()
			var invalid *InvalidBlockError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, uint64(2), invalid.Index)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestValidateRejectsDoubleSpendAcrossBlocks(t *testing.T) {
	alice, bob := newWallet(t), newWallet(t)
	chain := newTestChain()
	set := FromChainSegment(chain.Chain)

	mineAt(t, chain, set, nil, alice.Address(), testEpoch+600)
	tx := transfer(t, alice, bob.Address(), 50*Coin, set, testEpoch+1200)
	mineAt(t, chain, set, []*Transaction{tx}, bob.Address(), testEpoch+1200)

	_, err := chain.PrepareBlock([]*Transaction{tx}, bob.Address(), set.Clone(), testEpoch+1800)
	assert.ErrorIs(t, err, ErrUnknownInput)

	replay := NewBlock(3, testEpoch+1800, chain.LatestHash(),
		encodeTxs(t, CoinbaseTx(bob.Address(), 50*Coin, 3, testEpoch+1800), tx), 0)
	replay.Mine(chain.Difficulty)
	require.NoError(t, chain.Append(replay))

	err = chain.Validate()
	var invalid *InvalidBlockError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, uint64(3), invalid.Index)
	assert.ErrorIs(t, err, ErrUnknownInput)
}

func TestValidateGenesis(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(b *Block)
		want   error
	}{
		{"previous hash", func(b *Block) { b.PreviousHash = "1"; b.Mine(InitialDifficulty) }, ErrPrevHashMismatch},
		{"index", func(b *Block) { b.Index = 1; b.Mine(InitialDifficulty) }, ErrIndexMismatch},
		{"hash", func(b *Block) { b.Timestamp++ }, ErrHashMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := newTestChain()
			tt.mutate(&chain.Chain[0])

			err := chain.Validate()
			assert.ErrorIs(t, err, tt.want)
			var invalid *InvalidBlockError
			require.True(t, errors.As(err, &invalid))
			assert.Zero(t, invalid.Index)
		})
	}

	assert.ErrorIs(t, (&BlockChain{}).Validate(), ErrNoChain)
}

func TestValidateRejectsBrokenLink(t *testing.T) {
	chain, _, _ := fundedChain(t)
	chain.Chain[2].PreviousHash = chain.Chain[0].Hash
	chain.Chain[2].Mine(InitialDifficulty)

	assert.ErrorIs(t, chain.Validate(), ErrPrevHashMismatch)
}

func TestValidateRejectsWeakProof(t *testing.T) {
	chain, _, _ := fundedChain(t)
	block := &chain.Chain[2]
	for block.Nonce = 0; ; block.Nonce++ {
		block.Hash = block.CalculateHash()
		if MeetsTarget(block.Hash, 1) && !MeetsTarget(block.Hash, InitialDifficulty) {
			break
		}
	}

	assert.ErrorIs(t, chain.Validate(), ErrTargetNotMet)
}

func TestVerifyBlock(t *testing.T) {
	chain, _, _ := fundedChain(t)

	assert.NoError(t, chain.VerifyBlock(2, FromChainSegment(chain.Chain[:2])))
	assert.ErrorIs(t, chain.VerifyBlock(0, NewUTXOSet()), ErrIndexMismatch)
	assert.ErrorIs(t, chain.VerifyBlock(3, NewUTXOSet()), ErrIndexMismatch)
}

func TestReclaimedValueIsReissued(t *testing.T) {
	alice, bob := newWallet(t), newWallet(t)
	chain := newTestChain()
	set := FromChainSegment(chain.Chain)

	mineAt(t, chain, set, nil, alice.Address(), testEpoch+600)
	almost := mineAt(t, chain, set, nil, bob.Address(), testEpoch+600+InactivityPeriod-1)
	assert.Zero(t, almost.ExtraReward)
	assert.Equal(t, 50*Coin, set.Balance(alice.Address()))

	reclaiming := mineAt(t, chain, set, nil, bob.Address(), testEpoch+600+InactivityPeriod)
	assert.Equal(t, 50*Coin, reclaiming.ExtraReward)
	assert.Zero(t, set.Balance(alice.Address()))
	assert.Equal(t, 150*Coin, set.Balance(bob.Address()))
	assert.Equal(t, 200*Coin, chain.TotalInCirculation)

	require.NoError(t, chain.Validate())
	assert.Equal(t, set.All(), FromBlockchain(chain.Chain).All())
}

func TestValidateRejectsBadTimes(t *testing.T) {
	const (
		parent = testEpoch + 600
		ts     = testEpoch + 1200
	)
	mallory := newWallet(t)

	spend := func(t *testing.T, alice *wallet.Wallet, funding *Transaction, created int64) string {
		tx := NewTransaction(
			[]TxInput{signedInput(t, alice, funding.ID, 0)},
			[]TxOutput{NewTXOutput(50*Coin, mallory.Address(), created)},
		)
		return encodeTxs(t, CoinbaseTx(mallory.Address(), 50*Coin, 2, ts), tx)
	}

	tests := []struct {
		name  string
		block func(t *testing.T, b *Block, alice *wallet.Wallet, funding *Transaction)
		want  error
	}{
		{
			name: "older than its parent",
			block: func(t *testing.T, b *Block, _ *wallet.Wallet, _ *Transaction) {
				b.Timestamp = parent - 1
				b.Data = encodeTxs(t, CoinbaseTx(mallory.Address(), 50*Coin, 2, parent-1))
			},
			want: ErrBadTimestamp,
		},
		{
			name: "coinbase stamped before the block",
			block: func(t *testing.T, b *Block, _ *wallet.Wallet, _ *Transaction) {
				b.Data = encodeTxs(t, CoinbaseTx(mallory.Address(), 50*Coin, 2, ts-1))
			},
			want: ErrBadOutputTime,
		},
		{
			name: "output created after the block",
			block: func(t *testing.T, b *Block, alice *wallet.Wallet, funding *Transaction) {
				b.Data = spend(t, alice, funding, ts+InactivityPeriod)
			},
			want: ErrBadOutputTime,
		},
		{
			name: "output created before the parent",
			block: func(t *testing.T, b *Block, alice *wallet.Wallet, funding *Transaction) {
				b.Data = spend(t, alice, funding, 0)
			},
			want: ErrBadOutputTime,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain, alice, funding := fundedChain(t)
			remine(chain, 2, func(b *Block) {
				tt.block(t, b, alice, funding)
			})

			err := chain.Validate()
			var invalid *InvalidBlockError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, uint64(2), invalid.Index)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestValidateAcceptsBoundaryTimes(t *testing.T) {
	const parent = testEpoch + 600
	chain, alice, funding := fundedChain(t)
	bob := newWallet(t)

	remine(chain, 2, func(b *Block) {
		tx := NewTransaction(
			[]TxInput{signedInput(t, alice, funding.ID, 0)},
			[]TxOutput{NewTXOutput(50*Coin, bob.Address(), parent)},
		)
		b.Timestamp = parent
		b.Data = encodeTxs(t, CoinbaseTx(bob.Address(), 50*Coin, 2, parent), tx)
	})

	assert.NoError(t, chain.Validate())
}

func TestPrepareBlockTimes(t *testing.T) {
	alice, bob := newWallet(t), newWallet(t)
	chain := newTestChain()
	set := FromChainSegment(chain.Chain)
	mineAt(t, chain, set, nil, alice.Address(), testEpoch+600)

	behind, err := chain.PrepareBlock(nil, bob.Address(), set.Clone(), testEpoch+1)
	require.NoError(t, err)
	assert.Equal(t, testEpoch+600, behind.Timestamp, "never older than the parent")
	txs, err := behind.Transactions()
	require.NoError(t, err)
	assert.Equal(t, behind.Timestamp, txs[0].Outputs[0].CreatedAt)

	future := transfer(t, alice, bob.Address(), Coin, set, testEpoch+1800)
	_, err = chain.PrepareBlock([]*Transaction{future}, bob.Address(), set.Clone(), testEpoch+1200)
	assert.ErrorIs(t, err, ErrBadOutputTime)

	stale := transfer(t, alice, bob.Address(), Coin, set, testEpoch)
	_, err = chain.PrepareBlock([]*Transaction{stale}, bob.Address(), set.Clone(), testEpoch+1200)
	assert.ErrorIs(t, err, ErrBadOutputTime)
}
