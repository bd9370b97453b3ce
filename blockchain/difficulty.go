package blockchain

const (
	RetargetInterval = 2016

	// ExpectedTimespan is RetargetInterval blocks at 600 seconds each.
	ExpectedTimespan int64 = 1_209_600
)

// NextDifficulty returns the difficulty in force once blocks is the whole
// chain. Only heights that are a multiple of RetargetInterval above the first
// interval are checked; elsewhere current is returned unchanged.
func NextDifficulty(current int, blocks []Block) int {
	height := len(blocks)
	if height%RetargetInterval != 0 || height <= RetargetInterval {
		return current
	}

	last := blocks[height-1]
	first := blocks[height-RetargetInterval]
	actual := last.Timestamp - first.Timestamp

	switch {
	case actual < ExpectedTimespan/2:
		return current + 1
	case actual > ExpectedTimespan*2:
		if current == 0 {
			return 0
		}
		return current - 1
	default:
		return current
	}
}

// DifficultyAt is the difficulty a block at height had to meet, replaying
// every retarget of the blocks before it.
func DifficultyAt(blocks []Block, height int) int {
	difficulty := InitialDifficulty
	for h := RetargetInterval * 2; h <= height && h <= len(blocks); h += RetargetInterval {
		difficulty = NextDifficulty(difficulty, blocks[:h])
	}
	return difficulty
}
