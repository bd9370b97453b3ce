package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/crypto/pbkdf2"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	kdfIterations = 100_000
	saltLength    = 16
	keyLength     = 32
)

var (
	ErrWrongPassword = errors.New("wrong wallet password or corrupted wallet file")
	ErrNoWallet      = errors.New("wallet not found")
)

// sealedFile is the on-disk form: the address -> private key map encrypted
// with AES-256-GCM under a PBKDF2-SHA256 key.
type sealedFile struct {
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// Wallets is the password protected key file of a node.
type Wallets struct {
	path     string
	password string
	Wallets  map[string]*Wallet
}

// LoadWallets opens the wallet file at path. A missing file yields an empty set.
func LoadWallets(path, password string) (*Wallets, error) {
	ws := &Wallets{path: path, password: password, Wallets: make(map[string]*Wallet)}

	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return ws, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read wallet file: %w", err)
	}

	var sealed sealedFile
	if err := json.Unmarshal(content, &sealed); err != nil {
		return nil, ErrWrongPassword
	}
	gcm, err := newGCM(password, sealed.Salt)
	if err != nil {
		return nil, err
	}
	if len(sealed.Nonce) != gcm.NonceSize() {
		return nil, ErrWrongPassword
	}
	plain, err := gcm.Open(nil, sealed.Nonce, sealed.Ciphertext, nil)
	if err != nil {
		return nil, ErrWrongPassword
	}

	keys := make(map[string]string)
	if err := json.Unmarshal(plain, &keys); err != nil {
		return nil, ErrWrongPassword
	}
	for address, key := range keys {
		w, err := FromPrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("wallet %s: %w", address, err)
		}
		ws.Wallets[w.Address()] = w
	}

	return ws, nil
}

// AddWallet creates a key pair and returns its address.
func (ws *Wallets) AddWallet() (string, error) {
	w, err := NewWallet()
	if err != nil {
		return "", err
	}
	address := w.Address()
	ws.Wallets[address] = w

	return address, nil
}

func (ws *Wallets) GetWallet(address string) (*Wallet, error) {
	w, ok := ws.Wallets[address]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoWallet, address)
	}
	return w, nil
}

func (ws *Wallets) GetAllAddresses() []string {
	addresses := make([]string, 0, len(ws.Wallets))
	for address := range ws.Wallets {
		addresses = append(addresses, address)
	}
	sort.Strings(addresses)

	return addresses
}

// SaveFile seals every key and replaces the wallet file.
func (ws *Wallets) SaveFile() error {
	keys := make(map[string]string, len(ws.Wallets))
	for address, w := range ws.Wallets {
		keys[address] = w.PrivateKeyHex()
	}
	plain, err := json.Marshal(keys)
	if err != nil {
		return fmt.Errorf("encode wallets: %w", err)
	}

	salt := make([]byte, saltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}
	gcm, err := newGCM(ws.password, salt)
	if err != nil {
		return err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}

	content, err := json.Marshal(sealedFile{
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: gcm.Seal(nil, nonce, plain, nil),
	})
	if err != nil {
		return fmt.Errorf("encode wallet file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(ws.path), 0o700); err != nil {
		return fmt.Errorf("create wallet dir: %w", err)
	}

	return os.WriteFile(ws.path, content, 0o600)
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, kdfIterations, keyLength, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
