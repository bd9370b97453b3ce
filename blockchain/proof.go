package blockchain

import "strings"

// InitialDifficulty is the number of leading zero hex digits required of the
// genesis block and of every block until the first retarget.
const InitialDifficulty = 4

// Mine searches nonces from zero until the hash meets difficulty. The search
// has no bound and cannot be interrupted.
func (b *Block) Mine(difficulty int) {
	b.Nonce = 0
	for {
		b.Hash = b.CalculateHash()
		if MeetsTarget(b.Hash, difficulty) {
			return
		}
		b.Nonce++
	}
}

// MeetsTarget reports whether hash starts with difficulty '0' characters.
func MeetsTarget(hash string, difficulty int) bool {
	if difficulty <= 0 {
		return true
	}
	if len(hash) < difficulty {
		return false
	}
	return strings.Count(hash[:difficulty], "0") == difficulty
}

// ValidProof checks that the stored hash is the hash of the block and meets difficulty.
func (b *Block) ValidProof(difficulty int) bool {
	return b.Hash == b.CalculateHash() && MeetsTarget(b.Hash, difficulty)
}
