package wallet

import (
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// Wallet holds a secp256k1 key pair. It is the signing collaborator of the
// ledger: transactions only ever see its public key and signatures.
type Wallet struct {
	PrivateKey *secp256k1.PrivateKey

	// PublicKey is the compressed SEC1 encoding.
	PublicKey []byte
}

func NewKeyPair() (*secp256k1.PrivateKey, []byte, error) {
	private, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, nil, fmt.Errorf("generate key: %w", err)
	}

	return private, private.PubKey().SerializeCompressed(), nil
}

func NewWallet() (*Wallet, error) {
	private, public, err := NewKeyPair()
	if err != nil {
		return nil, err
	}

	return &Wallet{PrivateKey: private, PublicKey: public}, nil
}

// FromPrivateKey restores a wallet from a hex encoded 32 byte scalar.
func FromPrivateKey(hexKey string) (*Wallet, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("private key is not hex: %w", err)
	}
	if len(raw) != secp256k1.PrivKeyBytesLen {
		return nil, fmt.Errorf("private key must be %d bytes, got %d", secp256k1.PrivKeyBytesLen, len(raw))
	}
	private := secp256k1.PrivKeyFromBytes(raw)
	if private.Key.IsZero() {
		return nil, fmt.Errorf("private key is zero")
	}

	return &Wallet{PrivateKey: private, PublicKey: private.PubKey().SerializeCompressed()}, nil
}

func (w *Wallet) Address() string {
	return AddressFromPublicKey(w.PublicKey)
}

func (w *Wallet) PublicKeyBytes() []byte {
	return w.PublicKey
}

func (w *Wallet) PrivateKeyHex() string {
	return hex.EncodeToString(w.PrivateKey.Serialize())
}

// Sign returns the DER encoded ECDSA signature of a 32 byte message hash.
func (w *Wallet) Sign(hash []byte) ([]byte, error) {
	if len(hash) != 32 {
		return nil, fmt.Errorf("message hash must be 32 bytes, got %d", len(hash))
	}

	return ecdsa.Sign(w.PrivateKey, hash).Serialize(), nil
}

// CompressPublicKey parses a SEC1 public key in either encoding and returns
// the compressed form addresses are derived from.
func CompressPublicKey(pubKey []byte) ([]byte, error) {
	key, err := secp256k1.ParsePubKey(pubKey)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	return key.SerializeCompressed(), nil
}

// Verify checks a DER signature of hash against a serialized public key.
func Verify(pubKey, hash, signature []byte) bool {
	key, err := secp256k1.ParsePubKey(pubKey)
	if err != nil {
		return false
	}
	sig, err := ecdsa.ParseDERSignature(signature)
	if err != nil {
		return false
	}

	return sig.Verify(hash, key)
}
