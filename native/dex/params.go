package dex

import (
	"fmt"
	"strings"

	"earthexchange/native/fixed"
)

const (
	// DefaultProtocolFeeBps is the taker fee charged on AMM fills.
	DefaultProtocolFeeBps = 50
	// DefaultTakerFeeBps is deducted from the taker's gross output on book fills.
	DefaultTakerFeeBps = 50
	// DefaultMakerFeeBps is deducted from the maker's gross proceeds on book fills.
	DefaultMakerFeeBps = 25
	// DefaultUnbondingSeconds is the delay between an unbond request and the
	// start of its claim window.
	DefaultUnbondingSeconds = 7 * 24 * 60 * 60
	// DefaultClaimWindowSeconds bounds how long a matured unbond stays
	// claimable before it is restaked.
	DefaultClaimWindowSeconds = 7 * 24 * 60 * 60
	// MaxLockSeconds caps both the unbonding period and the claim window.
	MaxLockSeconds = 365 * secondsPerDay

	secondsPerDay = 24 * 60 * 60
)

// Params captures the engine configuration persisted alongside the ledger.
type Params struct {
	HubAsset           string
	BuybackAsset       string
	Manager            string
	Custody            string
	ProtocolFeeBps     uint64
	TakerFeeBps        uint64
	MakerFeeBps        uint64
	UnbondingSeconds   uint64
	ClaimWindowSeconds uint64
	AutoDistribute     bool
	Paused             bool
}

// DefaultParams returns the baseline configuration. Identity fields are left
// empty and must be supplied by the operator.
func DefaultParams() Params {
	return Params{
		ProtocolFeeBps:     DefaultProtocolFeeBps,
		TakerFeeBps:        DefaultTakerFeeBps,
		MakerFeeBps:        DefaultMakerFeeBps,
		UnbondingSeconds:   DefaultUnbondingSeconds,
		ClaimWindowSeconds: DefaultClaimWindowSeconds,
		AutoDistribute:     true,
	}
}

// Validate ensures the parameters are internally consistent.
func (p Params) Validate() error {
	if err := validateAsset(p.HubAsset); err != nil {
		return fmt.Errorf("%w: hub asset: %v", ErrInvalidParams, err)
	}
	if strings.TrimSpace(p.Manager) == "" {
		return fmt.Errorf("%w: manager required", ErrInvalidParams)
	}
	if strings.TrimSpace(p.Custody) == "" {
		return fmt.Errorf("%w: custody address required", ErrInvalidParams)
	}
	if p.BuybackAsset != "" {
		if err := validateAsset(p.BuybackAsset); err != nil {
			return fmt.Errorf("%w: buyback asset: %v", ErrInvalidParams, err)
		}
		if p.BuybackAsset == p.HubAsset {
			return fmt.Errorf("%w: buyback asset must differ from hub asset", ErrInvalidParams)
		}
	}
	for name, value := range map[string]uint64{
		"protocol fee": p.ProtocolFeeBps,
		"taker fee":    p.TakerFeeBps,
		"maker fee":    p.MakerFeeBps,
	} {
		if value >= fixed.BasisPoints {
			return fmt.Errorf("%w: %s must be below %d bps", ErrInvalidParams, name, fixed.BasisPoints)
		}
	}
	if p.ClaimWindowSeconds == 0 {
		return fmt.Errorf("%w: claim window must be positive", ErrInvalidParams)
	}
	if p.UnbondingSeconds > MaxLockSeconds || p.ClaimWindowSeconds > MaxLockSeconds {
		return fmt.Errorf("%w: unbonding period and claim window must not exceed %d seconds", ErrInvalidParams, MaxLockSeconds)
	}
	return nil
}

func validateAsset(asset string) error {
	if strings.TrimSpace(asset) == "" {
		return fmt.Errorf("%w: empty identifier", ErrInvalidAsset)
	}
	if strings.ContainsRune(asset, '/') {
		return fmt.Errorf("%w: identifier %q contains '/'", ErrInvalidAsset, asset)
	}
	return nil
}
