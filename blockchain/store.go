package blockchain

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Store persists a whole chain. Save fully replaces what was stored before;
// the index and derived counters are rebuilt on Load.
type Store interface {
	Load() (*BlockChain, error)
	Save(chain *BlockChain) error
	Close() error
}

// FileStore keeps the chain as one JSON document.
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (s *FileStore) Exists() bool {
	_, err := os.Stat(s.Path)
	return err == nil
}

// Load accepts both the wrapping object written by Save and a bare array of blocks.
func (s *FileStore) Load() (*BlockChain, error) {
	content, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoChain
	}
	if err != nil {
		return nil, fmt.Errorf("read chain file: %w", err)
	}

	var blocks []Block
	if err := json.Unmarshal(content, &blocks); err != nil {
		var stored BlockChain
		if err := json.Unmarshal(content, &stored); err != nil {
			return nil, fmt.Errorf("decode chain file: %w", err)
		}
		blocks = stored.Chain
	}
	if len(blocks) == 0 {
		return nil, ErrNoChain
	}

	return Restore(blocks), nil
}

// Save writes to a temporary file first so a failed write leaves the
// previous chain in place.
func (s *FileStore) Save(chain *BlockChain) error {
	content, err := json.MarshalIndent(chain, "", "  ")
	if err != nil {
		return fmt.Errorf("encode chain: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return fmt.Errorf("create chain dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.Path), filepath.Base(s.Path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write chain file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close chain file: %w", err)
	}

	return os.Rename(tmp.Name(), s.Path)
}

func (s *FileStore) Close() error {
	return nil
}
