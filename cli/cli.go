// Package cli is the command line surface of a vitabit node.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/TualatinX/vitabit/blockchain"
	"github.com/TualatinX/vitabit/wallet"
	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"
)

const (
	storeFile   = "file"
	storeBadger = "badger"

	chainFileName  = "chain.json"
	badgerDirName  = "blocks"
	walletFileName = "wallets.dat"
)

// Options are shared by every command.
type Options struct {
	DataDir  string `long:"data-dir" env:"VITABIT_DATA_DIR" description:"directory holding the chain and the wallet file" default:"./tmp"`
	Store    string `long:"store" env:"VITABIT_STORE" description:"chain storage backend" choice:"file" choice:"badger" default:"file"`
	Password string `long:"password" env:"VITABIT_WALLET_PASSWORD" description:"wallet file password"`
	Verbose  bool   `long:"verbose" short:"v" env:"VITABIT_VERBOSE" description:"development logging"`
}

type CommandLine struct {
	Options

	out    io.Writer
	logger *zap.Logger
}

func New(out io.Writer) *CommandLine {
	if out == nil {
		out = os.Stdout
	}
	return &CommandLine{out: out, logger: zap.NewNop()}
}

func (cli *CommandLine) parser() *flags.Parser {
	parser := flags.NewParser(&cli.Options, flags.HelpFlag|flags.PassDoubleDash)
	parser.Name = "vitabit"

	commands := []struct {
		name, short string
		data        interface{}
	}{
		{"createwallet", "Create a new wallet", &createWalletCmd{cli: cli}},
		{"listaddresses", "List the addresses in the wallet file", &listAddressesCmd{cli: cli}},
		{"createblockchain", "Create a chain and pay the first reward to an address", &createChainCmd{cli: cli}},
		{"getbalance", "Print the balance of an address", &getBalanceCmd{cli: cli}},
		{"send", "Send coins and mine the transfer into a block", &sendCmd{cli: cli}},
		{"printchain", "Print every block of the chain", &printChainCmd{cli: cli}},
		{"verify", "Validate the whole chain", &verifyCmd{cli: cli}},
		{"reindexutxo", "Rebuild the unspent output index", &reindexCmd{cli: cli}},
		{"startnode", "Run a node accepting blocks from peers", &startNodeCmd{cli: cli}},
	}
	for _, c := range commands {
		if _, err := parser.AddCommand(c.name, c.short, "", c.data); err != nil {
			panic(fmt.Sprintf("register command %s: %v", c.name, err))
		}
	}

	parser.CommandHandler = func(cmd flags.Commander, args []string) error {
		if cmd == nil {
			return nil
		}
		logger, err := newLogger(cli.Verbose)
		if err != nil {
			return err
		}
		cli.logger = logger
		defer func() {
			_ = logger.Sync()
		}()

		return cmd.Execute(args)
	}

	return parser
}

// Run parses args (without the program name) and executes the selected
// command. Asking for help is not an error.
func (cli *CommandLine) Run(args []string) error {
	parser := cli.parser()
	if _, err := parser.ParseArgs(args); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			fmt.Fprintln(cli.out, ferr.Message)
			return nil
		}
		return err
	}
	return nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger, nil
}

func (cli *CommandLine) walletPath() string {
	return filepath.Join(cli.DataDir, walletFileName)
}

func (cli *CommandLine) wallets() (*wallet.Wallets, error) {
	return wallet.LoadWallets(cli.walletPath(), cli.Password)
}

// openStore opens the configured backend. The badger directory is created
// on demand, so callers check existence first when a chain must be present.
func (cli *CommandLine) openStore() (blockchain.Store, error) {
	if err := os.MkdirAll(cli.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	switch cli.Store {
	case storeBadger:
		return blockchain.OpenBadgerStore(filepath.Join(cli.DataDir, badgerDirName), cli.logger)
	default:
		return blockchain.NewFileStore(filepath.Join(cli.DataDir, chainFileName)), nil
	}
}

func (cli *CommandLine) chainExists() bool {
	switch cli.Store {
	case storeBadger:
		return blockchain.DBExists(filepath.Join(cli.DataDir, badgerDirName))
	default:
		return blockchain.NewFileStore(filepath.Join(cli.DataDir, chainFileName)).Exists()
	}
}

// openLedger loads the stored chain into a ledger and refuses a chain that
// does not validate. The caller closes the returned store.
func (cli *CommandLine) openLedger(metrics blockchain.LedgerMetrics) (*blockchain.Ledger, blockchain.Store, error) {
	ledger, store, err := cli.loadLedger(metrics)
	if err != nil {
		return nil, nil, err
	}
	if err := ledger.Verify(); err != nil {
		_ = store.Close()
		cli.logger.Error("stored chain is invalid", zap.Error(err))
		return nil, nil, fmt.Errorf("stored chain: %w", err)
	}
	return ledger, store, nil
}

// loadLedger is openLedger without validation, for commands that inspect a
// chain as stored.
func (cli *CommandLine) loadLedger(metrics blockchain.LedgerMetrics) (*blockchain.Ledger, blockchain.Store, error) {
	if !cli.chainExists() {
		return nil, nil, fmt.Errorf("%w: run createblockchain first", blockchain.ErrNoChain)
	}
	store, err := cli.openStore()
	if err != nil {
		return nil, nil, err
	}
	chain, err := store.Load()
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	return blockchain.NewLedger(chain, store, cli.logger, metrics), store, nil
}

func requireAddress(address string) error {
	if !wallet.ValidateAddress(address) {
		return fmt.Errorf("address %q is not valid", address)
	}
	return nil
}
