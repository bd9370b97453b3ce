package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/TualatinX/vitabit/blockchain"
	"github.com/TualatinX/vitabit/network"
	"go.uber.org/zap"
)

type createWalletCmd struct {
	cli *CommandLine
}

func (c *createWalletCmd) Execute([]string) error {
	wallets, err := c.cli.wallets()
	if err != nil {
		return err
	}
	address, err := wallets.AddWallet()
	if err != nil {
		return err
	}
	if err := wallets.SaveFile(); err != nil {
		return fmt.Errorf("save wallets: %w", err)
	}

	fmt.Fprintf(c.cli.out, "New address is: %s\n", address)
	return nil
}

type listAddressesCmd struct {
	cli *CommandLine
}

func (c *listAddressesCmd) Execute([]string) error {
	wallets, err := c.cli.wallets()
	if err != nil {
		return err
	}
	for _, address := range wallets.GetAllAddresses() {
		fmt.Fprintln(c.cli.out, address)
	}
	return nil
}

type createChainCmd struct {
	cli *CommandLine

	Address string `long:"address" description:"address receiving the first block reward" required:"true"`
}

// Execute mines the genesis block and a first block paying the reward to
// Address, so the new chain already has spendable coins.
func (c *createChainCmd) Execute([]string) error {
	if err := requireAddress(c.Address); err != nil {
		return err
	}
	if c.cli.chainExists() {
		return blockchain.ErrChainExists
	}

	store, err := c.cli.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ledger := blockchain.NewLedger(blockchain.New(), store, c.cli.logger, nil)
	if _, err := ledger.MineBlock(nil, c.Address); err != nil {
		return fmt.Errorf("mine first block: %w", err)
	}
	if err := ledger.Save(); err != nil {
		return err
	}

	fmt.Fprintln(c.cli.out, "Finished creating chain")
	return nil
}

type getBalanceCmd struct {
	cli *CommandLine

	Address string `long:"address" description:"address to report" required:"true"`
}

func (c *getBalanceCmd) Execute([]string) error {
	if err := requireAddress(c.Address); err != nil {
		return err
	}
	ledger, store, err := c.cli.openLedger(nil)
	if err != nil {
		return err
	}
	defer store.Close()

	fmt.Fprintf(c.cli.out, "Balance of %s: %d\n", c.Address, ledger.Balance(c.Address))
	return nil
}

type sendCmd struct {
	cli *CommandLine

	From   string   `long:"from" description:"source wallet address" required:"true"`
	To     string   `long:"to" description:"destination address" required:"true"`
	Amount uint64   `long:"amount" description:"amount in base units" required:"true"`
	Peers  []string `long:"peer" description:"peer to announce the mined block to (repeatable)"`
}

func (c *sendCmd) Execute([]string) error {
	if err := requireAddress(c.From); err != nil {
		return err
	}
	if err := requireAddress(c.To); err != nil {
		return err
	}
	if c.Amount == 0 {
		return blockchain.ErrInvalidAmount
	}

	wallets, err := c.cli.wallets()
	if err != nil {
		return err
	}
	from, err := wallets.GetWallet(c.From)
	if err != nil {
		return err
	}

	ledger, store, err := c.cli.openLedger(nil)
	if err != nil {
		return err
	}
	defer store.Close()

	tx, block, err := ledger.Send(from, c.To, c.Amount)
	if err != nil {
		return err
	}
	if err := ledger.Save(); err != nil {
		return err
	}

	if len(c.Peers) > 0 {
		server := network.NewServer(network.Config{}, nil, network.NewPeerSet(c.Peers...), c.cli.logger, nil)
		delivered := server.BroadcastBlock(context.Background(), block)
		c.cli.logger.Info("block announced", zap.Uint64("index", block.Index), zap.Int("peers", delivered))
	}

	fmt.Fprintf(c.cli.out, "Success! tx %s in block #%d\n", tx.ID, block.Index)
	return nil
}

type printChainCmd struct {
	cli *CommandLine
}

func (c *printChainCmd) Execute([]string) error {
	ledger, store, err := c.cli.loadLedger(nil)
	if err != nil {
		return err
	}
	defer store.Close()

	chain := ledger.Snapshot()
	for i := len(chain.Chain) - 1; i >= 0; i-- {
		block := &chain.Chain[i]
		difficulty := blockchain.DifficultyAt(chain.Chain, i)

		fmt.Fprintf(c.cli.out, "Block #%d at %d\n", block.Index, block.Timestamp)
		fmt.Fprintf(c.cli.out, "Previous hash: %s\n", block.PreviousHash)
		fmt.Fprintf(c.cli.out, "Hash: %s\n", block.Hash)
		fmt.Fprintf(c.cli.out, "Nonce: %d\n", block.Nonce)
		fmt.Fprintf(c.cli.out, "Pow: %s\n", strconv.FormatBool(block.ValidProof(difficulty)))
		if i == 0 {
			fmt.Fprintf(c.cli.out, "Data: %s\n\n", block.Data)
			continue
		}
		if block.ExtraReward > 0 {
			fmt.Fprintf(c.cli.out, "Extra reward: %d\n", block.ExtraReward)
		}
		txs, err := block.Transactions()
		if err != nil {
			fmt.Fprintf(c.cli.out, "Data: %s\n\n", block.Data)
			continue
		}
		for _, tx := range txs {
			c.printTransaction(tx)
		}
		fmt.Fprintln(c.cli.out)
	}
	return nil
}

type verifyCmd struct {
	cli *CommandLine
}

func (c *verifyCmd) Execute([]string) error {
	ledger, store, err := c.cli.loadLedger(nil)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := ledger.Verify(); err != nil {
		return err
	}
	fmt.Fprintf(c.cli.out, "Chain of %d blocks is valid\n", ledger.Height())
	return nil
}

type reindexCmd struct {
	cli *CommandLine
}

func (c *reindexCmd) Execute([]string) error {
	ledger, store, err := c.cli.openLedger(nil)
	if err != nil {
		return err
	}
	defer store.Close()

	count := ledger.Rebuild()
	fmt.Fprintf(c.cli.out, "Done! There are %d UTXOs in the set\n", count)
	return nil
}

func (c *printChainCmd) printTransaction(tx *blockchain.Transaction) {
	fmt.Fprintf(c.cli.out, "--- Transaction %s:\n", tx.ID)
	if tx.IsCoinbase() {
		fmt.Fprintf(c.cli.out, "     Coinbase %s\n", string(tx.Inputs[0].Signature))
	} else {
		for i, in := range tx.Inputs {
			fmt.Fprintf(c.cli.out, "     Input %d: %s:%d\n", i, in.TxID, in.Index)
		}
	}
	for i, out := range tx.Outputs {
		fmt.Fprintf(c.cli.out, "     Output %d: %d to %s\n", i, out.Value, out.Address)
	}
}
