package dex

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/holiman/uint256"

	"earthexchange/native/fixed"
)

// legResult is one pass of input through a pool: book first, curve second.
type legResult struct {
	pool      string
	side      Side
	input     uint256.Int
	output    uint256.Int
	feeHub    uint256.Int
	volume    uint256.Int
	bookFills int
}

type legOptions struct {
	feeBps  uint64
	useBook bool
}

// executeLeg routes input through p. Asset-denominated fees gathered along the
// way are converted to hub once, after the leg's trades have been applied to
// the reserves.
func (tx *txn) executeLeg(p *Pool, side Side, input uint256.Int, opts legOptions) (legResult, error) {
	res := legResult{pool: p.Asset, side: side, input: input}
	remaining := input
	var feeAsset uint256.Int
	var err error

	if opts.useBook {
		book, err := tx.fillOrders(p, side, input)
		if err != nil {
			return res, err
		}
		if remaining, err = fixed.Sub(remaining, book.spent); err != nil {
			return res, err
		}
		res.output, res.feeHub, res.volume, res.bookFills = book.received, book.feeHub, book.volume, book.fills
		feeAsset = book.feeAsset
	}

	if !remaining.IsZero() {
		q, err := p.Quote(remaining, side, opts.feeBps)
		if err != nil {
			return res, err
		}
		if err := p.ApplySwap(q.Net, q.Output, side); err != nil {
			return res, err
		}
		if res.output, err = fixed.Add(res.output, q.Output); err != nil {
			return res, err
		}
		if side == SideBuy {
			res.feeHub, err = fixed.Add(res.feeHub, q.Fee)
		} else {
			feeAsset, err = fixed.Add(feeAsset, q.Fee)
		}
		if err != nil {
			return res, err
		}
		if res.volume, err = fixed.Add(res.volume, q.Volume); err != nil {
			return res, err
		}
	}

	if !feeAsset.IsZero() {
		hubFee, err := p.absorbFee(feeAsset)
		switch {
		case errors.Is(err, errUnpriced):
			if err := tx.burn(p.Asset, feeAsset); err != nil {
				return res, err
			}
		case err != nil:
			return res, err
		default:
			if res.feeHub, err = fixed.Add(res.feeHub, hubFee); err != nil {
				return res, err
			}
		}
	}
	err = tx.recordVolume(p, res.volume)
	return res, err
}

// route resolves the legs a trade of input for output must take.
func (tx *txn) route(input, output string) ([]*Pool, []Side, error) {
	hub := tx.params.HubAsset
	if input == output {
		return nil, nil, fmt.Errorf("%w: cannot swap %s for itself", ErrInvalidAsset, input)
	}
	if err := validateAsset(input); err != nil {
		return nil, nil, err
	}
	if err := validateAsset(output); err != nil {
		return nil, nil, err
	}
	switch {
	case input == hub:
		p, err := tx.pool(output)
		if err != nil {
			return nil, nil, err
		}
		return []*Pool{p}, []Side{SideBuy}, nil
	case output == hub:
		p, err := tx.pool(input)
		if err != nil {
			return nil, nil, err
		}
		return []*Pool{p}, []Side{SideSell}, nil
	default:
		src, err := tx.pool(input)
		if err != nil {
			return nil, nil, err
		}
		dst, err := tx.pool(output)
		if err != nil {
			return nil, nil, err
		}
		return []*Pool{src, dst}, []Side{SideSell, SideBuy}, nil
	}
}

// swapResult aggregates every leg of a routed trade.
type swapResult struct {
	legs         []legResult
	output       uint256.Int
	intermediate uint256.Int
	totalFee     uint256.Int
	ideal        uint256.Int
}

func (tx *txn) routeSwap(input, output string, amount uint256.Int, opts legOptions) (*swapResult, error) {
	pools, sides, err := tx.route(input, output)
	if err != nil {
		return nil, err
	}
	res := &swapResult{}
	ideal := amount
	for i, p := range pools {
		if ideal, err = p.SpotOutput(ideal, sides[i]); err != nil {
			return nil, err
		}
	}
	res.ideal = ideal

	next := amount
	for i, p := range pools {
		if next.IsZero() {
			return nil, fmt.Errorf("%w: leg %d input rounds to zero", ErrInvalidAmount, i+1)
		}
		leg, err := tx.executeLeg(p, sides[i], next, opts)
		if err != nil {
			return nil, fmt.Errorf("leg %d (%s): %w", i+1, p.Asset, err)
		}
		if res.totalFee, err = fixed.Add(res.totalFee, leg.feeHub); err != nil {
			return nil, err
		}
		if i == 0 && len(pools) > 1 {
			res.intermediate = leg.output
		}
		res.legs = append(res.legs, leg)
		next = leg.output
	}
	res.output = next
	if res.output.IsZero() {
		return nil, fmt.Errorf("%w: output rounds to zero", ErrInvalidAmount)
	}
	return res, nil
}

func (tx *txn) swap(in Swap) error {
	if err := requireUser(in.Sender); err != nil {
		return err
	}
	if err := requirePositive("amount", in.Amount); err != nil {
		return err
	}
	res, err := tx.routeSwap(in.InputAsset, in.OutputAsset, in.Amount, legOptions{feeBps: tx.params.ProtocolFeeBps, useBook: true})
	if err != nil {
		return err
	}
	if res.output.Lt(&in.MinReceived) {
		return fmt.Errorf("%w: got %s want at least %s", ErrSlippage, res.output.Dec(), in.MinReceived.Dec())
	}
	if err := tx.burn(tx.params.HubAsset, res.totalFee); err != nil {
		return err
	}
	recipient := in.Recipient
	if recipient == "" {
		recipient = in.Sender
	}
	if err := tx.out.transfer(in.OutputAsset, recipient, res.output); err != nil {
		return err
	}
	attrs := swapAttributes(res)
	attrs["sender"] = in.Sender
	attrs["recipient"] = recipient
	attrs["inputAsset"] = in.InputAsset
	attrs["outputAsset"] = in.OutputAsset
	attrs["input"] = in.Amount.Dec()
	tx.emit(EventSwap, attrs)
	return nil
}

// swapAndBurn converts an asset to hub without fees and burns the hub.
func (tx *txn) swapAndBurn(in SwapAndBurn) error {
	if err := requirePositive("amount", in.Amount); err != nil {
		return err
	}
	hub := tx.params.HubAsset
	if in.Asset == hub {
		if err := tx.burn(hub, in.Amount); err != nil {
			return err
		}
		tx.emit(EventBurnSwap, map[string]string{"inputAsset": hub, "input": in.Amount.Dec(), "burned": in.Amount.Dec()})
		return nil
	}
	res, err := tx.routeSwap(in.Asset, hub, in.Amount, legOptions{})
	if err != nil {
		return err
	}
	if err := tx.burn(hub, res.output); err != nil {
		return err
	}
	attrs := swapAttributes(res)
	attrs["inputAsset"] = in.Asset
	attrs["input"] = in.Amount.Dec()
	attrs["burned"] = res.output.Dec()
	tx.emit(EventBurnSwap, attrs)
	return nil
}

// buybackSwap spends hub on the buyback asset without fees and burns it.
func (tx *txn) buybackSwap(in BuybackSwap) error {
	if err := requirePositive("amount", in.Amount); err != nil {
		return err
	}
	asset := tx.params.BuybackAsset
	if asset == "" {
		return fmt.Errorf("%w: no buyback asset configured", ErrInvalidAsset)
	}
	res, err := tx.routeSwap(tx.params.HubAsset, asset, in.Amount, legOptions{})
	if err != nil {
		return err
	}
	if err := tx.burn(asset, res.output); err != nil {
		return err
	}
	attrs := swapAttributes(res)
	attrs["input"] = in.Amount.Dec()
	attrs["burned"] = res.output.Dec()
	tx.emit(EventBuybackSwap, attrs)
	return nil
}

func swapAttributes(res *swapResult) map[string]string {
	pools := make([]string, 0, len(res.legs))
	attrs := map[string]string{
		"output":         res.output.Dec(),
		"fee":            res.totalFee.Dec(),
		"priceImpactBps": strconv.FormatUint(PriceImpactBps(res.ideal, res.output), 10),
	}
	for _, leg := range res.legs {
		pools = append(pools, leg.pool)
		attrs["volume."+leg.pool] = leg.volume.Dec()
		attrs["bookFills."+leg.pool] = strconv.Itoa(leg.bookFills)
	}
	attrs["pools"] = strings.Join(pools, ",")
	if !res.intermediate.IsZero() {
		attrs["intermediate"] = res.intermediate.Dec()
	}
	return attrs
}
