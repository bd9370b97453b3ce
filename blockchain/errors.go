package blockchain

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrStaleTip          = errors.New("chain tip moved while mining")
	ErrNoChain           = errors.New("no blockchain found")
	ErrChainExists       = errors.New("blockchain already exists")

	ErrPrevHashMismatch   = errors.New("previous hash does not match")
	ErrHashMismatch       = errors.New("hash does not match block contents")
	ErrTargetNotMet       = errors.New("hash does not meet difficulty target")
	ErrBadTimestamp       = errors.New("block timestamp out of range")
	ErrBadOutputTime      = errors.New("output creation time outside its block")
	ErrIndexMismatch      = errors.New("block index does not match height")
	ErrMalformedData      = errors.New("block data is not a transaction list")
	ErrMissingCoinbase    = errors.New("first transaction is not a coinbase")
	ErrBadReward          = errors.New("coinbase does not pay the block reward")
	ErrBadExtraReward     = errors.New("extra reward does not match reclaimed outputs")
	ErrTxIDMismatch       = errors.New("transaction id does not match contents")
	ErrUnknownInput       = errors.New("input references a spent or unknown output")
	ErrBadSignature       = errors.New("input is not authorised by the output owner")
	ErrOutputsExceed      = errors.New("outputs exceed inputs")
	ErrEmptyTransaction   = errors.New("transaction has no inputs or outputs")
	ErrUnexpectedCoinbase = errors.New("coinbase outside the first position")
)

// InvalidBlockError reports the first block that failed chain validation.
type InvalidBlockError struct {
	Index uint64
	Err   error
}

func (e *InvalidBlockError) Error() string {
	return fmt.Sprintf("block #%d invalid: %v", e.Index, e.Err)
}

func (e *InvalidBlockError) Unwrap() error {
	return e.Err
}
