package blockchain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/TualatinX/vitabit/wallet"
)

// HexBytes is a byte slice carried as a hex string on the wire.
type HexBytes []byte

func (h HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(h))
}

func (h *HexBytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*h = nil
		return nil
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("decode hex: %w", err)
	}
	*h = raw
	return nil
}

func (h HexBytes) String() string {
	return hex.EncodeToString(h)
}

type TxOutput struct {
	// Value is expressed in base units (10^-8 of a coin).
	Value uint64 `json:"value"`

	// Address is the base58-check address allowed to spend this output.
	Address string `json:"address"`

	// CreatedAt is the unix time the output was created; it drives reclamation.
	CreatedAt int64 `json:"timestamp"`
}

// TxInput is a reference to a previous TxOutput plus the proof that its
// owner authorised the spend.
type TxInput struct {
	// TxID is the transaction containing the referenced output.
	TxID string `json:"txid"`

	// Index is the position of the output inside that transaction.
	Index int `json:"index"`

	Signature HexBytes `json:"signature"`
	PubKey    HexBytes `json:"pubkey"`
}

func (out TxOutput) String() string {
	return fmt.Sprintf("TxOutput{value:%d address:%q timestamp:%d}", out.Value, out.Address, out.CreatedAt)
}

func (in TxInput) String() string {
	return fmt.Sprintf("TxInput{txid:%q index:%d signature:%q pubkey:%q}", in.TxID, in.Index, in.Signature, in.PubKey)
}

// InputMessage is the hash signed by the owner of output (txid, index).
func InputMessage(txid string, index int) []byte {
	hash := sha256.Sum256([]byte(txid + strconv.Itoa(index)))
	return hash[:]
}

// IsValid reports whether the input carries a public key that owns out and
// a signature by that key over the input's message. The key may be in either
// SEC1 encoding; ownership is decided on the compressed form.
func (in *TxInput) IsValid(out TxOutput) bool {
	if len(in.PubKey) == 0 || len(in.Signature) == 0 {
		return false
	}
	compressed, err := wallet.CompressPublicKey(in.PubKey)
	if err != nil || wallet.AddressFromPublicKey(compressed) != out.Address {
		return false
	}

	return wallet.Verify(in.PubKey, InputMessage(in.TxID, in.Index), in.Signature)
}

func NewTXOutput(value uint64, address string, createdAt int64) TxOutput {
	return TxOutput{Value: value, Address: address, CreatedAt: createdAt}
}

func (out *TxOutput) IsLockedWith(address string) bool {
	return out.Address == address
}
