package dex

import "errors"

var (
	ErrInsufficientLiquidity = errors.New("dex: insufficient liquidity")
	ErrInsufficientBalance   = errors.New("dex: insufficient balance")
	ErrPoolNotFound          = errors.New("dex: pool not found")
	ErrPoolExists            = errors.New("dex: pool already exists")
	ErrUnauthorized          = errors.New("dex: unauthorized")
	ErrNothingReady          = errors.New("dex: nothing ready to claim")
	ErrInvalidAsset          = errors.New("dex: invalid asset")
	ErrInvalidAmount         = errors.New("dex: invalid amount")
	ErrSlippage              = errors.New("dex: output below minimum received")
	ErrPaused                = errors.New("dex: engine paused")
	ErrOrderNotFound         = errors.New("dex: order not found")
	ErrPendingActionNotFound = errors.New("dex: pending action not found")
	ErrNotInitialized        = errors.New("dex: engine state not initialized")
	ErrInvalidParams         = errors.New("dex: invalid params")
)
