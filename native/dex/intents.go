package dex

import "github.com/holiman/uint256"

// Intent is the closed set of requests the engine accepts.
type Intent interface {
	Name() string
	isIntent()
}

// AddPool lists Asset against the hub asset. Manager only.
type AddPool struct {
	Sender string
	Asset  string
	Symbol string
}

// UpdateParams replaces the engine parameters. Manager only; the hub asset
// cannot change.
type UpdateParams struct {
	Sender string
	Params Params
}

// ConfirmAction resolves a PendingAction with the value reported by the
// external collaborator, such as a freshly created LP token address.
type ConfirmAction struct {
	CorrelationID string
	Value         string
}

// UpdatePool replaces the symbol or LP token of a listed pool. Empty fields
// are left unchanged. Manager only.
type UpdatePool struct {
	Sender  string
	Pool    string
	Symbol  string
	LPToken string
}

// AddLiquidity deposits both assets. The unused part of the deposit is
// refunded; when Stake is set the minted shares start earning immediately.
type AddLiquidity struct {
	User        string
	Pool        string
	HubAmount   uint256.Int
	AssetAmount uint256.Int
	Stake       bool
}

// DepositShares stakes LP shares the user already holds.
type DepositShares struct {
	User   string
	Pool   string
	Shares uint256.Int
}

// Withdraw unstakes Shares and pays out pending rewards. With Unbond set the
// shares enter the unbonding queue instead of being returned.
type Withdraw struct {
	User   string
	Pool   string
	Shares uint256.Int
	Unbond bool
}

type RequestUnbond struct {
	User   string
	Pool   string
	Shares uint256.Int
}

// UnbondShares queues LP shares the user holds but never staked, as when the
// shares are sent straight to the exchange.
type UnbondShares struct {
	User   string
	Pool   string
	Shares uint256.Int
}

type ClaimUnbond struct {
	User string
	Pool string
}

type ClaimRewards struct {
	User  string
	Pools []string
}

// FundRewards credits hub asset received from the allocation stream to the
// pending reward pool.
type FundRewards struct {
	Asset  string
	Amount uint256.Int
}

type DistributePendingRewards struct{}

// Swap trades Amount of InputAsset for OutputAsset. Recipient defaults to
// Sender.
type Swap struct {
	Sender      string
	InputAsset  string
	Amount      uint256.Int
	OutputAsset string
	MinReceived uint256.Int
	Recipient   string
}

// SwapAndBurn converts Amount of Asset to the hub asset without fees and burns
// the proceeds.
type SwapAndBurn struct {
	Asset  string
	Amount uint256.Int
}

// BuybackSwap spends hub asset on the buyback asset without fees and burns
// the result.
type BuybackSwap struct {
	Amount uint256.Int
}

// PlaceOrder rests Amount at Price. A SideBuy order escrows hub asset, a
// SideSell order escrows the pool asset.
type PlaceOrder struct {
	Maker  string
	Pool   string
	Side   Side
	Price  uint256.Int
	Amount uint256.Int
}

type CancelOrder struct {
	Sender  string
	Pool    string
	Side    Side
	Price   uint256.Int
	OrderID uint64
}

// PlaceBuyback rests a protocol-owned buy order for the buyback asset at the
// pool's spot price. Manager only.
type PlaceBuyback struct {
	Sender string
	Amount uint256.Int
}

func (AddPool) Name() string                  { return "add_pool" }
func (UpdateParams) Name() string             { return "update_params" }
func (ConfirmAction) Name() string            { return "confirm_action" }
func (UpdatePool) Name() string               { return "update_pool" }
func (AddLiquidity) Name() string             { return "add_liquidity" }
func (DepositShares) Name() string            { return "deposit_shares" }
func (Withdraw) Name() string                 { return "withdraw" }
func (RequestUnbond) Name() string            { return "request_unbond" }
func (UnbondShares) Name() string             { return "unbond_shares" }
func (ClaimUnbond) Name() string              { return "claim_unbond" }
func (ClaimRewards) Name() string             { return "claim_rewards" }
func (FundRewards) Name() string              { return "fund_rewards" }
func (DistributePendingRewards) Name() string { return "distribute_pending_rewards" }
func (Swap) Name() string                     { return "swap" }
func (SwapAndBurn) Name() string              { return "swap_and_burn" }
func (BuybackSwap) Name() string              { return "buyback_swap" }
func (PlaceOrder) Name() string               { return "place_order" }
func (CancelOrder) Name() string              { return "cancel_order" }
func (PlaceBuyback) Name() string             { return "place_buyback" }

func (AddPool) isIntent()                  {}
func (UpdateParams) isIntent()             {}
func (ConfirmAction) isIntent()            {}
func (UpdatePool) isIntent()               {}
func (AddLiquidity) isIntent()             {}
func (DepositShares) isIntent()            {}
func (Withdraw) isIntent()                 {}
func (RequestUnbond) isIntent()            {}
func (UnbondShares) isIntent()             {}
func (ClaimUnbond) isIntent()              {}
func (ClaimRewards) isIntent()             {}
func (FundRewards) isIntent()              {}
func (DistributePendingRewards) isIntent() {}
func (Swap) isIntent()                     {}
func (SwapAndBurn) isIntent()              {}
func (BuybackSwap) isIntent()              {}
func (PlaceOrder) isIntent()               {}
func (CancelOrder) isIntent()              {}
func (PlaceBuyback) isIntent()             {}
