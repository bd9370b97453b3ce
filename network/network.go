package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/TualatinX/vitabit/blockchain"
	"go.uber.org/ratelimit"
	"go.uber.org/zap"
)

const (
	protocol = "tcp"

	defaultDialTimeout   = 5 * time.Second
	defaultIOTimeout     = 30 * time.Second
	defaultBroadcastRate = 100 // sends per second
)

// Handler receives decoded messages. A returned error only rejects the
// message; the connection keeps being served.
type Handler interface {
	HandleBlock(b *blockchain.Block) error
	HandleTransaction(tx *blockchain.Transaction) error
}

type Metrics interface {
	ObserveReceived(kind string, err error)
	ObserveSent(kind string, err error)
	ObservePeers(count int)
}

type Config struct {
	// Address is the host:port the server listens on and announces.
	Address string

	DialTimeout time.Duration
	IOTimeout   time.Duration

	// BroadcastRate limits outbound sends per second across all peers.
	BroadcastRate int
}

// Server accepts framed messages from peers and sends blocks and
// transactions to them.
type Server struct {
	cfg     Config
	handler Handler
	peers   *PeerSet
	logger  *zap.Logger
	metrics Metrics
	limiter ratelimit.Limiter
}

func NewServer(cfg Config, handler Handler, peers *PeerSet, logger *zap.Logger, metrics Metrics) *Server {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.IOTimeout <= 0 {
		cfg.IOTimeout = defaultIOTimeout
	}
	if cfg.BroadcastRate <= 0 {
		cfg.BroadcastRate = defaultBroadcastRate
	}
	if peers == nil {
		peers = NewPeerSet()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}

	return &Server{
		cfg:     cfg,
		handler: handler,
		peers:   peers,
		logger:  logger.Named("p2p").With(zap.String("node", cfg.Address)),
		metrics: metrics,
		limiter: ratelimit.New(cfg.BroadcastRate),
	}
}

func (s *Server) Peers() *PeerSet {
	return s.peers
}

// ListenAndServe listens on the configured address until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, protocol, s.cfg.Address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Address, err)
	}
	return s.Serve(ctx, ln)
}

// Serve handles every accepted connection on its own goroutine. It returns
// nil once ctx is done and all connections have finished.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	s.logger.Info("listening", zap.String("addr", ln.Addr().String()))

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.HandleConnection(ctx, conn)
		}()
	}
}

// HandleConnection reads frames until the peer closes the stream. Messages
// that fail to decode are logged and dropped.
func (s *Server) HandleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	logger := s.logger.With(zap.String("remote", conn.RemoteAddr().String()))
	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.IOTimeout))

		payload, err := ReadFrame(conn)
		if errors.Is(err, io.EOF) || ctx.Err() != nil {
			return
		}
		if err != nil {
			s.metrics.ObserveReceived("", err)
			logger.Warn("dropping connection after bad frame", zap.Error(err))
			return
		}

		s.dispatch(logger, payload)
	}
}

func (s *Server) dispatch(logger *zap.Logger, payload []byte) {
	msg, err := DecodeMessage(payload)
	if err != nil {
		s.metrics.ObserveReceived("", err)
		logger.Warn("rejected malformed message", zap.Error(err))
		return
	}

	switch msg.Kind {
	case KindBlock:
		err = s.handler.HandleBlock(msg.Block)
		logger.Debug("received block", zap.Uint64("index", msg.Block.Index), zap.String("hash", msg.Block.Hash))
	case KindTransaction:
		err = s.handler.HandleTransaction(msg.Transaction)
		logger.Debug("received transaction", zap.String("txid", msg.Transaction.ID))
	}
	s.metrics.ObserveReceived(string(msg.Kind), err)
	if err != nil {
		logger.Info("message rejected", zap.String("kind", string(msg.Kind)), zap.Error(err))
	}
}

// SendData delivers one payload to addr. A peer that cannot be reached is
// dropped from the peer set.
func (s *Server) SendData(ctx context.Context, addr string, payload []byte) error {
	dialer := net.Dialer{Timeout: s.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, protocol, addr)
	if err != nil {
		if s.peers.Remove(addr) {
			s.metrics.ObservePeers(s.peers.Len())
			s.logger.Warn("peer is not available, removed", zap.String("peer", addr), zap.Error(err))
		}
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.IOTimeout))
	if err := WriteFrame(conn, payload); err != nil {
		return fmt.Errorf("send to %s: %w", addr, err)
	}
	return nil
}

func (s *Server) SendBlock(ctx context.Context, addr string, b *blockchain.Block) error {
	payload, err := EncodeBlock(b)
	if err != nil {
		return err
	}
	err = s.SendData(ctx, addr, payload)
	s.metrics.ObserveSent(string(KindBlock), err)
	return err
}

func (s *Server) SendTransaction(ctx context.Context, addr string, tx *blockchain.Transaction) error {
	payload, err := EncodeTransaction(tx)
	if err != nil {
		return err
	}
	err = s.SendData(ctx, addr, payload)
	s.metrics.ObserveSent(string(KindTransaction), err)
	return err
}

// BroadcastBlock sends b to every known peer and returns how many received it.
func (s *Server) BroadcastBlock(ctx context.Context, b *blockchain.Block) int {
	payload, err := EncodeBlock(b)
	if err != nil {
		s.logger.Error("encode block for broadcast", zap.Error(err))
		return 0
	}
	return s.broadcast(ctx, KindBlock, payload)
}

func (s *Server) BroadcastTransaction(ctx context.Context, tx *blockchain.Transaction) int {
	payload, err := EncodeTransaction(tx)
	if err != nil {
		s.logger.Error("encode transaction for broadcast", zap.Error(err))
		return 0
	}
	return s.broadcast(ctx, KindTransaction, payload)
}

func (s *Server) broadcast(ctx context.Context, kind Kind, payload []byte) int {
	delivered := 0
	for _, addr := range s.peers.List() {
		if ctx.Err() != nil {
			break
		}
		if addr == s.cfg.Address {
			continue
		}
		s.limiter.Take()

		err := s.SendData(ctx, addr, payload)
		s.metrics.ObserveSent(string(kind), err)
		if err != nil {
			continue
		}
		delivered++
	}
	s.logger.Debug("broadcast", zap.String("kind", string(kind)), zap.Int("delivered", delivered))
	return delivered
}

type nopMetrics struct{}

func (nopMetrics) ObserveReceived(string, error) {}
func (nopMetrics) ObserveSent(string, error)     {}
func (nopMetrics) ObservePeers(int)              {}
