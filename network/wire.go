package network

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/TualatinX/vitabit/blockchain"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	ProtocolVersion byte = 1

	// MaxFrameSize bounds a single message so a peer cannot make us allocate
	// arbitrary memory.
	MaxFrameSize = 32 << 20

	lengthPrefix = 4
)

// Kind is the text tag in front of every payload.
type Kind string

const (
	KindBlock       Kind = "BLOCK"
	KindTransaction Kind = "TRANSACTION"
)

var (
	ErrFrameTooLarge      = errors.New("frame exceeds maximum size")
	ErrEmptyFrame         = errors.New("empty frame")
	ErrUnsupportedVersion = errors.New("unsupported protocol version")
	ErrUnknownKind        = errors.New("unknown message kind")
)

// Message is a decoded payload; exactly one of Block and Transaction is set.
type Message struct {
	Kind        Kind
	Block       *blockchain.Block
	Transaction *blockchain.Transaction
}

// EncodeBlock renders "BLOCK:" followed by the block's JSON.
func EncodeBlock(b *blockchain.Block) ([]byte, error) {
	return encode(KindBlock, b)
}

// EncodeTransaction renders "TRANSACTION:" followed by the transaction's JSON.
func EncodeTransaction(tx *blockchain.Transaction) ([]byte, error) {
	return encode(KindTransaction, tx)
}

func encode(kind Kind, v interface{}) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", kind, err)
	}
	payload := make([]byte, 0, len(kind)+1+len(body))
	payload = append(payload, string(kind)...)
	payload = append(payload, ':')
	return append(payload, body...), nil
}

// DecodeMessage parses a "KIND:json" payload.
func DecodeMessage(payload []byte) (*Message, error) {
	tag, body, found := bytes.Cut(payload, []byte(":"))
	if !found {
		return nil, ErrUnknownKind
	}
	body = bytes.TrimSpace(body)

	msg := &Message{Kind: Kind(bytes.TrimSpace(tag))}
	switch msg.Kind {
	case KindBlock:
		msg.Block = new(blockchain.Block)
		if err := json.Unmarshal(body, msg.Block); err != nil {
			return nil, fmt.Errorf("decode block: %w", err)
		}
	case KindTransaction:
		msg.Transaction = new(blockchain.Transaction)
		if err := json.Unmarshal(body, msg.Transaction); err != nil {
			return nil, fmt.Errorf("decode transaction: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, tag)
	}
	return msg, nil
}

// WriteFrame writes a big-endian length prefix, the protocol version and the payload.
func WriteFrame(w io.Writer, payload []byte) error {
	size := len(payload) + 1
	if size > MaxFrameSize {
		return ErrFrameTooLarge
	}

	frame := make([]byte, lengthPrefix+size)
	binary.BigEndian.PutUint32(frame, uint32(size))
	frame[lengthPrefix] = ProtocolVersion
	copy(frame[lengthPrefix+1:], payload)

	_, err := w.Write(frame)
	return err
}

// ReadFrame reads exactly one frame. io.EOF is returned untouched when the
// stream ends cleanly between frames.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [lengthPrefix]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	size := binary.BigEndian.Uint32(header[:])
	if size == 0 {
		return nil, ErrEmptyFrame
	}
	if size > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	frame := make([]byte, size)
	if _, err := io.ReadFull(r, frame); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	if frame[0] != ProtocolVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, frame[0])
	}

	return frame[1:], nil
}
