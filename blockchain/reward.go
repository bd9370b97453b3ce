package blockchain

const (
	// Coin is the number of base units in one coin.
	Coin uint64 = 100_000_000

	InitialReward   = 50 * Coin
	HalvingInterval = 210_000

	// MaxSupply caps circulation when reclaimed outputs are re-issued.
	MaxSupply = 21_000_000 * Coin
)

// BaseReward halves InitialReward every HalvingInterval blocks.
func BaseReward(height uint64) uint64 {
	halvings := height / HalvingInterval
	if halvings >= 64 {
		return 0
	}
	return InitialReward >> halvings
}

// ExtraReward re-issues reclaimed value unless doing so would push
// circulation past MaxSupply, in which case nothing is re-issued.
func ExtraReward(reclaimed, circulating uint64) uint64 {
	if circulating > MaxSupply || reclaimed > MaxSupply-circulating {
		return 0
	}
	return reclaimed
}

// BlockReward is what the coinbase of block b must pay.
func BlockReward(b *Block) uint64 {
	return BaseReward(b.Index) + b.ExtraReward
}
