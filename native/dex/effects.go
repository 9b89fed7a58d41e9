package dex

import (
	"github.com/holiman/uint256"

	"earthexchange/native/fixed"
)

// Effect is a settlement instruction the caller executes after a successful
// invocation.
type Effect interface {
	effectKey() string
}

// Transfer moves Amount of Asset from engine custody to Recipient.
type Transfer struct {
	Asset     string
	Recipient string
	Amount    uint256.Int
}

// Burn destroys Amount of Asset held by the engine.
type Burn struct {
	Asset  string
	Amount uint256.Int
}

// Mint issues Amount of an LP share token to Recipient.
type Mint struct {
	Asset     string
	Recipient string
	Amount    uint256.Int
}

// InstantiateLPToken requests creation of a pool's LP share token. The
// resulting address is reported back through Engine.Resolve with
// CorrelationID.
type InstantiateLPToken struct {
	CorrelationID string
	Pool          string
	Name          string
	Symbol        string
}

func (t Transfer) effectKey() string           { return "transfer/" + t.Asset + "/" + t.Recipient }
func (b Burn) effectKey() string               { return "burn/" + b.Asset }
func (m Mint) effectKey() string               { return "mint/" + m.Asset + "/" + m.Recipient }
func (i InstantiateLPToken) effectKey() string { return "instantiate/" + i.CorrelationID }

// settlement aggregates effects per (kind, asset, recipient) in first-seen
// order so an invocation emits one instruction per destination.
type settlement struct {
	order   []string
	entries map[string]Effect
}

func newSettlement() *settlement {
	return &settlement{entries: make(map[string]Effect)}
}

func (s *settlement) add(e Effect, merge func(existing Effect) (Effect, error)) error {
	key := e.effectKey()
	existing, ok := s.entries[key]
	if !ok {
		s.order = append(s.order, key)
		s.entries[key] = e
		return nil
	}
	merged, err := merge(existing)
	if err != nil {
		return err
	}
	s.entries[key] = merged
	return nil
}

func (s *settlement) transfer(asset, recipient string, amount uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	t := Transfer{Asset: asset, Recipient: recipient, Amount: amount}
	return s.add(t, func(existing Effect) (Effect, error) {
		prev := existing.(Transfer)
		sum, err := fixed.Add(prev.Amount, amount)
		prev.Amount = sum
		return prev, err
	})
}

func (s *settlement) burn(asset string, amount uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	return s.add(Burn{Asset: asset, Amount: amount}, func(existing Effect) (Effect, error) {
		prev := existing.(Burn)
		sum, err := fixed.Add(prev.Amount, amount)
		prev.Amount = sum
		return prev, err
	})
}

func (s *settlement) mint(asset, recipient string, amount uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	return s.add(Mint{Asset: asset, Recipient: recipient, Amount: amount}, func(existing Effect) (Effect, error) {
		prev := existing.(Mint)
		sum, err := fixed.Add(prev.Amount, amount)
		prev.Amount = sum
		return prev, err
	})
}

func (s *settlement) instantiate(req InstantiateLPToken) error {
	return s.add(req, func(existing Effect) (Effect, error) { return existing, nil })
}

func (s *settlement) effects() []Effect {
	out := make([]Effect, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.entries[key])
	}
	return out
}

// Event is a typed record of a state transition.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

const (
	EventPoolAdded          = "dex.poolAdded"
	EventLPTokenConfirmed   = "dex.lpTokenConfirmed"
	EventPoolUpdated        = "dex.poolUpdated"
	EventParamsUpdated      = "dex.paramsUpdated"
	EventLiquidityAdded     = "dex.liquidityAdded"
	EventSharesStaked       = "dex.sharesStaked"
	EventWithdrawn          = "dex.withdrawn"
	EventUnbondRequested    = "dex.unbondRequested"
	EventUnbondClaimed      = "dex.unbondClaimed"
	EventUnbondRestaked     = "dex.unbondRestaked"
	EventRewardsClaimed     = "dex.rewardsClaimed"
	EventRewardsFunded      = "dex.rewardsFunded"
	EventRewardsDistributed = "dex.rewardsDistributed"
	EventSwap               = "dex.swap"
	EventBurnSwap           = "dex.burnSwap"
	EventBuybackSwap        = "dex.buybackSwap"
	EventOrderPlaced        = "dex.orderPlaced"
	EventOrderCancelled     = "dex.orderCancelled"
	EventBuybackPlaced      = "dex.buybackPlaced"
	EventBurned             = "dex.burned"
)

// Outcome is everything an invocation produced besides the new state.
type Outcome struct {
	Intent  string
	Effects []Effect
	Events  []Event
}
