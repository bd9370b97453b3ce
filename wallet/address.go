package wallet

import (
	"bytes"
	"crypto/sha256"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/ripemd160"
)

const (
	ChecksumLength = 4

	// hexadecimal representation of 0
	version = byte(0x00)
)

// PublicKeyHash returns RIPEMD160(SHA256(pubKey)).
func PublicKeyHash(pubKey []byte) []byte {
	pubHash := sha256.Sum256(pubKey)

	hasher := ripemd160.New()
	_, _ = hasher.Write(pubHash[:])

	return hasher.Sum(nil)
}

// Checksum is the first four bytes of a double SHA256 of the payload.
func Checksum(payload []byte) []byte {
	firstHash := sha256.Sum256(payload)
	secondHash := sha256.Sum256(firstHash[:])

	return secondHash[:ChecksumLength]
}

// AddressFromPublicKey derives the base58-check address owning pubKey.
func AddressFromPublicKey(pubKey []byte) string {
	versionedHash := append([]byte{version}, PublicKeyHash(pubKey)...)
	fullHash := append(versionedHash, Checksum(versionedHash)...)

	return Base58Encode(fullHash)
}

func Base58Encode(input []byte) string {
	return base58.Encode(input)
}

func Base58Decode(input string) ([]byte, error) {
	return base58.Decode(input)
}

// ValidateAddress checks the version byte and checksum of a base58-check address.
func ValidateAddress(address string) bool {
	fullHash, err := Base58Decode(address)
	if err != nil || len(fullHash) <= 1+ChecksumLength {
		return false
	}
	actualChecksum := fullHash[len(fullHash)-ChecksumLength:]
	payload := fullHash[:len(fullHash)-ChecksumLength]
	if payload[0] != version {
		return false
	}

	return bytes.Equal(actualChecksum, Checksum(payload))
}
