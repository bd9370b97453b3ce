package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"syscall"
	"time"

	"github.com/TualatinX/vitabit/blockchain"
	"github.com/TualatinX/vitabit/metrics"
	"github.com/TualatinX/vitabit/network"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vrecan/death/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

type startNodeCmd struct {
	cli *CommandLine

	Listen      string   `long:"listen" env:"VITABIT_LISTEN" description:"address the node accepts peers on" default:"localhost:3000"`
	Peers       []string `long:"peer" env:"VITABIT_PEERS" env-delim:"," description:"known peer address (repeatable)"`
	MetricsAddr string   `long:"metrics-addr" env:"VITABIT_METRICS_ADDR" description:"address serving /metrics, empty to disable" default:"localhost:9100"`
}

// Execute serves peers until SIGINT or SIGTERM, then closes the store.
func (c *startNodeCmd) Execute([]string) error {
	logger := c.cli.logger.With(zap.String("node", c.Listen))

	ledger, store, err := c.cli.openLedger(metrics.NewLedger())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := death.NewDeath(syscall.SIGINT, syscall.SIGTERM)
	go d.WaitForDeathWithFunc(func() {
		logger.Info("shutting down")
		cancel()
	})

	peers := network.NewPeerSet(c.Peers...)
	netMetrics := metrics.NewNetwork()
	netMetrics.ObservePeers(peers.Len())
	server := network.NewServer(
		network.Config{Address: c.Listen},
		newNodeHandler(ledger, logger),
		peers,
		logger,
		netMetrics,
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.ListenAndServe(gCtx)
	})
	if c.MetricsAddr != "" {
		g.Go(func() error {
			return serveMetrics(gCtx, c.MetricsAddr, logger)
		})
	}

	logger.Info("node started",
		zap.Uint64("height", ledger.Height()),
		zap.Strings("peers", peers.List()),
	)
	err = g.Wait()

	if saveErr := ledger.Save(); saveErr != nil {
		err = errors.Join(err, saveErr)
	}
	if closeErr := store.Close(); closeErr != nil {
		err = errors.Join(err, fmt.Errorf("close store: %w", closeErr))
	}
	return err
}

func serveMetrics(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// nodeHandler applies what peers send to the local ledger.
type nodeHandler struct {
	ledger *blockchain.Ledger
	logger *zap.Logger
}

func newNodeHandler(ledger *blockchain.Ledger, logger *zap.Logger) *nodeHandler {
	return &nodeHandler{ledger: ledger, logger: logger}
}

func (h *nodeHandler) HandleBlock(b *blockchain.Block) error {
	if err := h.ledger.AcceptBlock(b); err != nil {
		return err
	}
	return h.ledger.Save()
}

// HandleTransaction only checks the transaction; there is no pool to keep it in.
func (h *nodeHandler) HandleTransaction(tx *blockchain.Transaction) error {
	if err := h.ledger.VerifyTransaction(tx); err != nil {
		return err
	}
	h.logger.Info("valid transaction received", zap.String("txid", tx.ID), zap.Uint64("value", tx.OutputValue()))
	return nil
}
