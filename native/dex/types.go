package dex

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Side identifies the direction of a trade relative to the pool's non-hub
// asset. A taker on SideBuy pays the hub asset and receives the pool asset; a
// resting SideBuy order is a maker paying hub for the asset.
type Side uint8

const (
	SideBuy Side = iota + 1
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return fmt.Sprintf("side(%d)", uint8(s))
	}
}

// Valid reports whether s names a known side.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Opposite returns the side a taker on s matches against.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Pool is the ledger record for one asset paired against the hub asset.
type Pool struct {
	Asset           string
	Symbol          string
	LPToken         string
	HubReserve      uint256.Int
	AssetReserve    uint256.Int
	TotalShares     uint256.Int
	TotalStaked     uint256.Int
	UnbondingShares uint256.Int
	// RewardPerShare is scaled by fixed.ScalingFactor and never decreases.
	RewardPerShare uint256.Int
	Volumes        Window
	Rewards        Window
	LastUpdatedDay uint64
}

// reserves returns the (input, output) reserves for a taker on side.
func (p *Pool) reserves(side Side) (uint256.Int, uint256.Int) {
	if side == SideBuy {
		return p.HubReserve, p.AssetReserve
	}
	return p.AssetReserve, p.HubReserve
}

// Liquid reports whether both reserves are non-zero.
func (p *Pool) Liquid() bool {
	return !p.HubReserve.IsZero() && !p.AssetReserve.IsZero()
}

// UserStake tracks one user's staked LP shares in a pool.
type UserStake struct {
	User       string
	Pool       string
	Staked     uint256.Int
	RewardDebt uint256.Int
	Pending    uint256.Int
}

// Empty reports whether the record carries neither stake nor rewards.
func (s *UserStake) Empty() bool {
	return s.Staked.IsZero() && s.Pending.IsZero()
}

// UnbondRecord is a delayed withdrawal of Amount shares requested at Start
// (unix seconds).
type UnbondRecord struct {
	Amount uint256.Int
	Start  uint64
}

// UnbondStatus classifies a record relative to a point in time.
type UnbondStatus uint8

const (
	UnbondPending UnbondStatus = iota
	UnbondClaimable
	UnbondExpired
)

func (s UnbondStatus) String() string {
	switch s {
	case UnbondClaimable:
		return "claimable"
	case UnbondExpired:
		return "expired"
	default:
		return "pending"
	}
}

// Order is resting liquidity at a price level. An empty Maker marks a
// protocol-owned buyback order whose proceeds are burned.
type Order struct {
	ID        uint64
	Maker     string
	Remaining uint256.Int
}

// ProtocolOwned reports whether fills of the order settle to a burn.
func (o *Order) ProtocolOwned() bool {
	return o.Maker == ""
}

// OrderLevel groups orders on one side of a pool at the same scaled price,
// oldest first.
type OrderLevel struct {
	Pool   string
	Side   Side
	Price  uint256.Int
	Orders []Order
}

// ProtocolState holds the engine-wide counters.
type ProtocolState struct {
	HubBurned       uint256.Int
	SecondaryBurned uint256.Int
	PendingReward   uint256.Int
	// Undistributed accumulates reward assigned to pools without stakers plus
	// rounding remainders.
	Undistributed      uint256.Int
	Volumes            Window
	Rewards            Window
	LastUpdatedDay     uint64
	LastDistributedDay uint64
	NextOrderID        uint64
	ActionNonce        uint64
}

// PendingAction awaits an external confirmation keyed by ID.
type PendingAction struct {
	ID        string
	Kind      string
	Pool      string
	CreatedAt uint64
}

const pendingKindLPToken = "lp_token"
