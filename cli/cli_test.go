package cli

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/TualatinX/vitabit/blockchain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func run(t *testing.T, dataDir, store string, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	global := []string{"--data-dir", dataDir, "--store", store, "--password", "secret"}
	err := New(&out).Run(append(global, args...))
	return out.String(), err
}

func mustRun(t *testing.T, dataDir, store string, args ...string) string {
	t.Helper()

	out, err := run(t, dataDir, store, args...)
	require.NoError(t, err, "vitabit %s", strings.Join(args, " "))
	return out
}

func newAddress(t *testing.T, dataDir, store string) string {
	t.Helper()

	out := mustRun(t, dataDir, store, "createwallet")
	address := strings.TrimSpace(strings.TrimPrefix(out, "New address is:"))
	require.NotEmpty(t, address)
	return address
}

func TestCommandLineFlow(t *testing.T) {
	for _, store := range []string{storeFile, storeBadger} {
		t.Run(store, func(t *testing.T) {
			dir := t.TempDir()
			alice := newAddress(t, dir, store)
			bob := newAddress(t, dir, store)

			listed := mustRun(t, dir, store, "listaddresses")
			assert.ElementsMatch(t, []string{alice, bob}, strings.Fields(listed))

			_, err := run(t, dir, store, "getbalance", "--address", alice)
			assert.ErrorIs(t, err, blockchain.ErrNoChain)

			assert.Contains(t, mustRun(t, dir, store, "createblockchain", "--address", alice), "Finished creating chain")
			_, err = run(t, dir, store, "createblockchain", "--address", alice)
			assert.ErrorIs(t, err, blockchain.ErrChainExists)

			assert.Contains(t, mustRun(t, dir, store, "getbalance", "--address", alice), ": 5000000000")

			assert.Contains(t, mustRun(t, dir, store, "send", "--from", alice, "--to", bob, "--amount", "1500000000"), "Success!")
			assert.Contains(t, mustRun(t, dir, store, "getbalance", "--address", alice), ": 8500000000")
			assert.Contains(t, mustRun(t, dir, store, "getbalance", "--address", bob), ": 1500000000")

			_, err = run(t, dir, store, "send", "--from", bob, "--to", alice, "--amount", "1500000001")
			assert.ErrorIs(t, err, blockchain.ErrInsufficientFunds)

			assert.Contains(t, mustRun(t, dir, store, "verify"), "Chain of 3 blocks is valid")
			assert.Contains(t, mustRun(t, dir, store, "reindexutxo"), "There are 3 UTXOs")

			printed := mustRun(t, dir, store, "printchain")
			assert.Equal(t, 3, strings.Count(printed, "Pow: true"))
			assert.Contains(t, printed, "Coinbase height:2")
		})
	}
}

func TestCommandLineRejectsBadInput(t *testing.T) {
	dir := t.TempDir()

	_, err := run(t, dir, storeFile, "getbalance", "--address", "nope")
	assert.Error(t, err)

	_, err = run(t, dir, storeFile, "createblockchain")
	assert.Error(t, err, "address is required")

	_, err = run(t, dir, storeFile, "unknown")
	assert.Error(t, err)

	_, err = run(t, dir, "sqlite", "listaddresses")
	assert.Error(t, err)

	out, err := run(t, dir, storeFile, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "createblockchain")
}

func TestWrongWalletPassword(t *testing.T) {
	dir := t.TempDir()
	newAddress(t, dir, storeFile)

	var out bytes.Buffer
	err := New(&out).Run([]string{"--data-dir", dir, "--password", "other", "listaddresses"})
	assert.Error(t, err)
}

func TestNodeHandler(t *testing.T) {
	dir := t.TempDir()
	alice := newAddress(t, dir, storeFile)
	path := filepath.Join(dir, "follower.json")

	producer := blockchain.NewLedger(blockchain.New(), nil, nil, nil)
	chain := producer.Snapshot()

	follower := blockchain.NewLedger(chain, blockchain.NewFileStore(path), zaptest.NewLogger(t), nil)
	handler := newNodeHandler(follower, zaptest.NewLogger(t))

	block, err := producer.MineBlock(nil, alice)
	require.NoError(t, err)
	require.NoError(t, handler.HandleBlock(block))
	assert.Equal(t, uint64(2), follower.Height())

	stored, err := blockchain.NewFileStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stored.Height())

	assert.Error(t, handler.HandleBlock(block), "replayed block")
	assert.ErrorIs(t, handler.HandleTransaction(blockchain.CoinbaseTx(alice, 1, 9, 0)), blockchain.ErrUnexpectedCoinbase)
}

func TestTamperedChainIsRefused(t *testing.T) {
	dir := t.TempDir()
	alice := newAddress(t, dir, storeFile)
	mustRun(t, dir, storeFile, "createblockchain", "--address", alice)

	store := blockchain.NewFileStore(filepath.Join(dir, chainFileName))
	chain, err := store.Load()
	require.NoError(t, err)
	chain.Chain[1].Nonce++
	require.NoError(t, store.Save(chain))

	for _, args := range [][]string{
		{"getbalance", "--address", alice},
		{"send", "--from", alice, "--to", alice, "--amount", "1"},
		{"reindexutxo"},
		{"verify"},
	} {
		_, err := run(t, dir, storeFile, args...)
		var invalid *blockchain.InvalidBlockError
		require.ErrorAs(t, err, &invalid, "vitabit %s", strings.Join(args, " "))
		assert.Equal(t, uint64(1), invalid.Index)
		assert.ErrorIs(t, err, blockchain.ErrHashMismatch)
	}

	printed := mustRun(t, dir, storeFile, "printchain")
	assert.Contains(t, printed, "Pow: false")
}
