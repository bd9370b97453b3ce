package blockchain

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// genesisPrevHash is the previous hash recorded by the genesis block.
	genesisPrevHash = "0"

	// This is the fixed payload of our genesis block
	genesisData = "No princípio era o Verbo, imutável como VitaBit. alea jacta est"
)

type Block struct {
	Index        uint64 `json:"index"`
	Timestamp    int64  `json:"timestamp"`
	PreviousHash string `json:"previous_hash"`
	Hash         string `json:"hash"`
	Nonce        uint64 `json:"nonce"`

	// Data is the JSON encoded transaction list the block commits to.
	Data        string `json:"data"`
	ExtraReward uint64 `json:"extra_reward"`
}

// NewBlock returns an unmined block; call Mine before appending it.
func NewBlock(index uint64, timestamp int64, previousHash, data string, extraReward uint64) *Block {
	return &Block{
		Index:        index,
		Timestamp:    timestamp,
		PreviousHash: previousHash,
		Data:         data,
		ExtraReward:  extraReward,
	}
}

// Genesis creates and mines the first block with the fixed message.
func Genesis(timestamp int64) *Block {
	block := NewBlock(0, timestamp, genesisPrevHash, genesisData, 0)
	block.Mine(InitialDifficulty)
	return block
}

// CalculateHash hashes the decimal and string forms of every header field
// and the data blob, concatenated without separators.
func (b *Block) CalculateHash() string {
	input := strconv.FormatUint(b.Index, 10) +
		strconv.FormatInt(b.Timestamp, 10) +
		b.PreviousHash +
		strconv.FormatUint(b.Nonce, 10) +
		b.Data +
		strconv.FormatUint(b.ExtraReward, 10)

	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])
}

// Transactions decodes the data blob.
func (b *Block) Transactions() ([]*Transaction, error) {
	return DecodeTransactions(b.Data)
}

func (b *Block) Serialize() ([]byte, error) {
	return json.Marshal(b)
}

func Deserialize(data []byte) (*Block, error) {
	var block Block
	if err := json.Unmarshal(data, &block); err != nil {
		return nil, err
	}
	return &block, nil
}
