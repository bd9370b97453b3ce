package blockchain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// coinbaseTxID is the sentinel txid of the synthetic coinbase input.
const coinbaseTxID = "0"

type Transaction struct {
	ID      string     `json:"id"`
	Inputs  []TxInput  `json:"inputs"`
	Outputs []TxOutput `json:"outputs"`
}

// Signer is the wallet capability consumed when spending outputs. Key
// storage stays with the implementation.
type Signer interface {
	Address() string
	PublicKeyBytes() []byte
	Sign(hash []byte) ([]byte, error)
}

func NewTransaction(inputs []TxInput, outputs []TxOutput) *Transaction {
	tx := &Transaction{Inputs: inputs, Outputs: outputs}
	tx.SetID()
	return tx
}

// CoinbaseTx pays reward to toAddress. The synthetic input carries the block
// height as its data so that two coinbases never share an id.
func CoinbaseTx(toAddress string, reward, height uint64, createdAt int64) *Transaction {
	txIn := TxInput{
		TxID:      coinbaseTxID,
		Index:     0,
		Signature: HexBytes(fmt.Sprintf("height:%d", height)),
	}
	txOut := NewTXOutput(reward, toAddress, createdAt)

	return NewTransaction([]TxInput{txIn}, []TxOutput{txOut})
}

// Hash is the sha256 of the textual form of the inputs followed by the outputs.
func (tx *Transaction) Hash() string {
	var b strings.Builder
	b.WriteString("[")
	for i, in := range tx.Inputs {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(in.String())
	}
	b.WriteString("][")
	for i, out := range tx.Outputs {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(out.String())
	}
	b.WriteString("]")

	hash := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(hash[:])
}

func (tx *Transaction) SetID() {
	tx.ID = tx.Hash()
}

func (tx *Transaction) HasValidID() bool {
	return tx.ID == tx.Hash()
}

func (tx *Transaction) IsCoinbase() bool {
	return len(tx.Inputs) == 1 && tx.Inputs[0].TxID == coinbaseTxID && tx.Inputs[0].Index == 0 &&
		len(tx.Outputs) == 1
}

func (tx *Transaction) OutputValue() uint64 {
	var total uint64
	for _, out := range tx.Outputs {
		total += out.Value
	}
	return total
}

// NewUTXOTransaction spends outputs of from, in the set's enumeration order,
// until amount is covered. Any surplus returns to from as change.
func NewUTXOTransaction(from Signer, to string, amount uint64, set *UTXOSet, now int64) (*Transaction, error) {
	if amount == 0 {
		return nil, ErrInvalidAmount
	}

	var (
		inputs      []TxInput
		accumulated uint64
		pubKey      = from.PublicKeyBytes()
	)
	for _, utxo := range set.FindByAddress(from.Address()) {
		sig, err := from.Sign(InputMessage(utxo.TxID, utxo.Index))
		if err != nil {
			return nil, fmt.Errorf("sign input %s:%d: %w", utxo.TxID, utxo.Index, err)
		}
		inputs = append(inputs, TxInput{
			TxID:      utxo.TxID,
			Index:     utxo.Index,
			Signature: sig,
			PubKey:    pubKey,
		})
		accumulated += utxo.Output.Value

		if accumulated >= amount {
			break
		}
	}
	if accumulated < amount {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, accumulated, amount)
	}

	outputs := []TxOutput{NewTXOutput(amount, to, now)}
	if accumulated > amount {
		outputs = append(outputs, NewTXOutput(accumulated-amount, from.Address(), now))
	}

	return NewTransaction(inputs, outputs), nil
}

// EncodeTransactions renders the block data blob.
func EncodeTransactions(txs []*Transaction) (string, error) {
	if txs == nil {
		txs = []*Transaction{}
	}
	data, err := json.Marshal(txs)
	if err != nil {
		return "", fmt.Errorf("encode transactions: %w", err)
	}
	return string(data), nil
}

func DecodeTransactions(data string) ([]*Transaction, error) {
	var txs []*Transaction
	if err := json.Unmarshal([]byte(data), &txs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedData, err)
	}
	for _, tx := range txs {
		if tx == nil {
			return nil, ErrMalformedData
		}
	}
	return txs, nil
}
