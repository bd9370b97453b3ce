package blockchain

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgraph-io/badger"
	"go.uber.org/zap"
)

var (
	lastHashKey = []byte("lh")
	metaKey     = []byte("meta")
	blockPrefix = []byte("block-")
)

type chainMeta struct {
	Height             uint64 `json:"height"`
	Difficulty         int    `json:"difficulty"`
	TotalInCirculation uint64 `json:"total_in_circulation"`
}

// BadgerStore keeps blocks keyed by height, with the tip hash under "lh".
type BadgerStore struct {
	Database *badger.DB
	logger   *zap.Logger
}

// DBExists checks to see if we've initialized a database
func DBExists(path string) bool {
	if _, err := os.Stat(filepath.Join(path, "MANIFEST")); os.IsNotExist(err) {
		return false
	}
	return true
}

func OpenBadgerStore(path string, logger *zap.Logger) (*BadgerStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("badger")

	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := openDB(path, opts, logger)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}

	return &BadgerStore{Database: db, logger: logger}, nil
}

func blockKey(height uint64) []byte {
	key := make([]byte, len(blockPrefix)+8)
	copy(key, blockPrefix)
	binary.BigEndian.PutUint64(key[len(blockPrefix):], height)
	return key
}

func (s *BadgerStore) Load() (*BlockChain, error) {
	var blocks []Block

	err := s.Database.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNoChain
		}
		if err != nil {
			return err
		}
		var meta chainMeta
		err = item.Value(func(val []byte) error {
			return json.Unmarshal(val, &meta)
		})
		if err != nil {
			return fmt.Errorf("decode meta: %w", err)
		}

		for height := uint64(0); height < meta.Height; height++ {
			item, err := txn.Get(blockKey(height))
			if err != nil {
				return fmt.Errorf("block %d: %w", height, err)
			}
			err = item.Value(func(val []byte) error {
				block, err := Deserialize(val)
				if err != nil {
					return err
				}
				blocks = append(blocks, *block)
				return nil
			})
			if err != nil {
				return fmt.Errorf("decode block %d: %w", height, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(blocks) == 0 {
		return nil, ErrNoChain
	}

	return Restore(blocks), nil
}

// Save rewrites every block, then the tip hash and meta record. Large chains
// are split over several transactions.
func (s *BadgerStore) Save(chain *BlockChain) error {
	meta, err := json.Marshal(chainMeta{
		Height:             chain.Height(),
		Difficulty:         chain.Difficulty,
		TotalInCirculation: chain.TotalInCirculation,
	})
	if err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}

	txn := s.Database.NewTransaction(true)
	defer func() { txn.Discard() }()

	set := func(key, value []byte) error {
		err := txn.Set(key, value)
		if !errors.Is(err, badger.ErrTxnTooBig) {
			return err
		}
		if err := txn.Commit(); err != nil {
			return err
		}
		txn = s.Database.NewTransaction(true)
		return txn.Set(key, value)
	}

	for i := range chain.Chain {
		data, err := chain.Chain[i].Serialize()
		if err != nil {
			return fmt.Errorf("encode block %d: %w", i, err)
		}
		if err := set(blockKey(uint64(i)), data); err != nil {
			return fmt.Errorf("write block %d: %w", i, err)
		}
	}
	if err := set(lastHashKey, []byte(chain.LatestHash())); err != nil {
		return fmt.Errorf("write last hash: %w", err)
	}
	if err := set(metaKey, meta); err != nil {
		return fmt.Errorf("write meta: %w", err)
	}

	return txn.Commit()
}

// LastHash returns the tip hash recorded by the last Save.
func (s *BadgerStore) LastHash() (string, error) {
	var lastHash string
	err := s.Database.View(func(txn *badger.Txn) error {
		item, err := txn.Get(lastHashKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNoChain
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			lastHash = string(val)
			return nil
		})
	})
	return lastHash, err
}

func (s *BadgerStore) Close() error {
	return s.Database.Close()
}

func retry(dir string, originalOpts badger.Options) (*badger.DB, error) {
	lockPath := filepath.Join(dir, "LOCK")
	if err := os.Remove(lockPath); err != nil {
		return nil, fmt.Errorf(`removing "LOCK": %s`, err)
	}
	retryOpts := originalOpts
	retryOpts.Truncate = true
	return badger.Open(retryOpts)
}

func openDB(dir string, opts badger.Options, logger *zap.Logger) (*badger.DB, error) {
	db, err := badger.Open(opts)
	if err == nil {
		return db, nil
	}
	if strings.Contains(err.Error(), "LOCK") {
		if db, err := retry(dir, opts); err == nil {
			logger.Warn("database unlocked, value log truncated", zap.String("dir", dir))
			return db, nil
		}
		logger.Error("could not unlock database", zap.String("dir", dir), zap.Error(err))
	}
	return nil, err
}
