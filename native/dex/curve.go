package dex

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"earthexchange/native/fixed"
)

// errUnpriced marks a pool with an empty reserve side that cannot quote.
var errUnpriced = errors.New("dex: pool cannot price trade")

// SwapQuote is an AMM fill computed against a pool without mutating it.
type SwapQuote struct {
	Input  uint256.Int
	Fee    uint256.Int
	Net    uint256.Int
	Output uint256.Int
	// Volume is the trade size expressed in the hub asset.
	Volume uint256.Int
}

// Quote prices input on the constant-product curve after deducting feeBps
// from the input. The output must stay strictly below the output reserve.
func (p *Pool) Quote(input uint256.Int, side Side, feeBps uint64) (SwapQuote, error) {
	if !side.Valid() {
		return SwapQuote{}, fmt.Errorf("%w: side %s", ErrInvalidAmount, side)
	}
	inRes, outRes := p.reserves(side)
	if inRes.IsZero() || outRes.IsZero() {
		return SwapQuote{}, fmt.Errorf("%w: pool %s has an empty reserve", ErrInsufficientLiquidity, p.Asset)
	}
	fee, err := fixed.ApplyBps(input, feeBps)
	if err != nil {
		return SwapQuote{}, err
	}
	net, err := fixed.Sub(input, fee)
	if err != nil {
		return SwapQuote{}, err
	}
	denominator, err := fixed.Add(inRes, net)
	if err != nil {
		return SwapQuote{}, err
	}
	output, err := fixed.MulDiv(net, outRes, denominator)
	if err != nil {
		return SwapQuote{}, err
	}
	if !output.Lt(&outRes) {
		return SwapQuote{}, fmt.Errorf("%w: output %s exhausts reserve %s", ErrInsufficientLiquidity, output.Dec(), outRes.Dec())
	}
	volume := input
	if side == SideSell {
		if volume, err = fixed.MulDiv(input, p.HubReserve, p.AssetReserve); err != nil {
			return SwapQuote{}, err
		}
	}
	return SwapQuote{Input: input, Fee: fee, Net: net, Output: output, Volume: volume}, nil
}

// ApplySwap moves net into the input reserve and output out of the other.
func (p *Pool) ApplySwap(net, output uint256.Int, side Side) error {
	inRes, outRes := p.reserves(side)
	newIn, err := fixed.Add(inRes, net)
	if err != nil {
		return err
	}
	newOut, err := fixed.Sub(outRes, output)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInsufficientLiquidity, err)
	}
	if side == SideBuy {
		p.HubReserve, p.AssetReserve = newIn, newOut
	} else {
		p.AssetReserve, p.HubReserve = newIn, newOut
	}
	return nil
}

// absorbFee folds an asset-denominated fee into the pool through a feeless
// sell and returns the hub amount released for burning. It must run after the
// trade that produced the fee has been applied.
func (p *Pool) absorbFee(fee uint256.Int) (uint256.Int, error) {
	if fee.IsZero() {
		return uint256.Int{}, nil
	}
	if !p.Liquid() {
		return uint256.Int{}, errUnpriced
	}
	q, err := p.Quote(fee, SideSell, 0)
	if err != nil {
		return uint256.Int{}, err
	}
	if err := p.ApplySwap(q.Net, q.Output, SideSell); err != nil {
		return uint256.Int{}, err
	}
	return q.Output, nil
}

// SpotOutput is the fee-free, zero-slippage output implied by the current
// reserve ratio. It returns zero for an unpriced pool.
func (p *Pool) SpotOutput(input uint256.Int, side Side) (uint256.Int, error) {
	inRes, outRes := p.reserves(side)
	if inRes.IsZero() || outRes.IsZero() {
		return uint256.Int{}, nil
	}
	return fixed.MulDiv(input, outRes, inRes)
}

// SpotPrice returns hub per unit of asset scaled by fixed.ScalingFactor.
func (p *Pool) SpotPrice() (uint256.Int, error) {
	if !p.Liquid() {
		return uint256.Int{}, fmt.Errorf("%w: pool %s", ErrInsufficientLiquidity, p.Asset)
	}
	return fixed.ScaleUp(p.HubReserve, p.AssetReserve)
}

// PriceImpactBps compares a realised output against the nominal one.
func PriceImpactBps(ideal, actual uint256.Int) uint64 {
	if ideal.IsZero() || !actual.Lt(&ideal) {
		return 0
	}
	diff := new(uint256.Int).Sub(&ideal, &actual)
	impact, err := fixed.MulDiv(*diff, fixed.New(fixed.BasisPoints), ideal)
	if err != nil {
		return fixed.BasisPoints
	}
	return impact.Uint64()
}
