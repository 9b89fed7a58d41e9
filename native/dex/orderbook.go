package dex

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/holiman/uint256"

	"earthexchange/native/fixed"
)

// bookFill totals a taker's pass over the resting orders of one pool.
type bookFill struct {
	spent    uint256.Int // taker input consumed
	received uint256.Int // taker output net of taker fees
	feeHub   uint256.Int
	feeAsset uint256.Int
	volume   uint256.Int // hub-denominated
	fills    int
}

// ammThreshold returns the effective AMM price for input on side, scaled by
// fixed.ScalingFactor. bounded is false when the curve cannot quote the input
// at all, in which case every resting order beats it.
func ammThreshold(p *Pool, input uint256.Int, side Side) (price uint256.Int, bounded bool, err error) {
	q, err := p.Quote(input, side, 0)
	if errors.Is(err, ErrInsufficientLiquidity) {
		return uint256.Int{}, false, nil
	}
	if err != nil {
		return uint256.Int{}, false, err
	}
	if q.Output.IsZero() {
		return uint256.Int{}, false, nil
	}
	if side == SideBuy {
		price, err = fixed.ScaleUp(input, q.Output)
	} else {
		price, err = fixed.ScaleUp(q.Output, input)
	}
	return price, err == nil, err
}

func eligible(side Side, level, threshold uint256.Int, bounded bool) bool {
	if !bounded {
		return true
	}
	if side == SideBuy {
		return !level.Gt(&threshold)
	}
	return !level.Lt(&threshold)
}

// fillOrders matches a taker on side against the opposite side of the book,
// best price first, until input is exhausted or the next level is no better
// than the curve.
func (tx *txn) fillOrders(p *Pool, side Side, input uint256.Int) (bookFill, error) {
	var result bookFill
	threshold, bounded, err := ammThreshold(p, input, side)
	if err != nil {
		return result, err
	}
	levels, err := tx.ledger.levels(p.Asset, side.Opposite())
	if err != nil {
		return result, err
	}
	if side == SideSell {
		for i, j := 0, len(levels)-1; i < j; i, j = i+1, j-1 {
			levels[i], levels[j] = levels[j], levels[i]
		}
	}
	remaining := input
	for _, level := range levels {
		if remaining.IsZero() || !eligible(side, level.Price, threshold, bounded) {
			break
		}
		stalled := false
		for i := range level.Orders {
			if remaining.IsZero() {
				break
			}
			order := &level.Orders[i]
			if order.Remaining.IsZero() {
				continue
			}
			spent, err := tx.fillOrder(p, side, level.Price, order, remaining, &result)
			if err != nil {
				return result, err
			}
			if spent.IsZero() {
				stalled = true
				break
			}
			if remaining, err = fixed.Sub(remaining, spent); err != nil {
				return result, err
			}
		}
		if err := tx.ledger.putLevel(level); err != nil {
			return result, err
		}
		if stalled {
			break
		}
	}
	result.spent, err = fixed.Sub(input, remaining)
	return result, err
}

// fillOrder executes one fill and settles the maker. It returns the taker
// input consumed; zero means the remaining input is too small to buy a unit.
func (tx *txn) fillOrder(p *Pool, side Side, price uint256.Int, order *Order, remaining uint256.Int, acc *bookFill) (uint256.Int, error) {
	scale := fixed.Scale()
	var implied uint256.Int
	var err error
	if side == SideBuy {
		implied, err = fixed.MulDiv(remaining, scale, price)
	} else {
		implied, err = fixed.MulDiv(remaining, price, scale)
	}
	if err != nil {
		return uint256.Int{}, err
	}
	fill := fixed.Min(implied, order.Remaining)
	if fill.IsZero() {
		return uint256.Int{}, nil
	}
	spent := remaining
	if !fill.Eq(&implied) {
		if side == SideBuy {
			spent, err = fixed.MulDivCeil(fill, price, scale)
		} else {
			spent, err = fixed.MulDivCeil(fill, scale, price)
		}
		if err != nil {
			return uint256.Int{}, err
		}
		spent = fixed.Min(spent, remaining)
	}

	takerFee, err := fixed.ApplyBps(fill, tx.params.TakerFeeBps)
	if err != nil {
		return uint256.Int{}, err
	}
	takerNet, err := fixed.Sub(fill, takerFee)
	if err != nil {
		return uint256.Int{}, err
	}
	makerFee, err := fixed.ApplyBps(spent, tx.params.MakerFeeBps)
	if err != nil {
		return uint256.Int{}, err
	}
	makerNet, err := fixed.Sub(spent, makerFee)
	if err != nil {
		return uint256.Int{}, err
	}
	if order.Remaining, err = fixed.Sub(order.Remaining, fill); err != nil {
		return uint256.Int{}, err
	}

	// The taker's output asset is the maker's escrow; the taker's input is the
	// maker's proceeds.
	proceedsAsset := tx.params.HubAsset
	volume := spent
	hubFee, assetFee := &makerFee, &takerFee
	if side == SideSell {
		proceedsAsset = p.Asset
		volume = fill
		hubFee, assetFee = &takerFee, &makerFee
	}
	if acc.received, err = fixed.Add(acc.received, takerNet); err != nil {
		return uint256.Int{}, err
	}
	if acc.feeHub, err = fixed.Add(acc.feeHub, *hubFee); err != nil {
		return uint256.Int{}, err
	}
	if acc.feeAsset, err = fixed.Add(acc.feeAsset, *assetFee); err != nil {
		return uint256.Int{}, err
	}
	if acc.volume, err = fixed.Add(acc.volume, volume); err != nil {
		return uint256.Int{}, err
	}
	acc.fills++

	if order.ProtocolOwned() {
		err = tx.burn(proceedsAsset, makerNet)
	} else {
		err = tx.out.transfer(proceedsAsset, order.Maker, makerNet)
	}
	return spent, err
}

func (tx *txn) nextOrderID() uint64 {
	tx.protocol.NextOrderID++
	return tx.protocol.NextOrderID
}

func (tx *txn) placeOrder(in PlaceOrder) error {
	if err := requireUser(in.Maker); err != nil {
		return err
	}
	if !in.Side.Valid() {
		return fmt.Errorf("%w: unknown side %d", ErrInvalidAmount, in.Side)
	}
	if err := requirePositive("price", in.Price); err != nil {
		return err
	}
	if err := requirePositive("amount", in.Amount); err != nil {
		return err
	}
	if _, err := tx.pool(in.Pool); err != nil {
		return err
	}
	level, err := tx.ledger.level(in.Pool, in.Side, in.Price)
	if err != nil {
		return err
	}
	id := tx.nextOrderID()
	level.Orders = append(level.Orders, Order{ID: id, Maker: in.Maker, Remaining: in.Amount})
	if err := tx.ledger.putLevel(level); err != nil {
		return err
	}
	tx.emit(EventOrderPlaced, map[string]string{
		"pool":   in.Pool,
		"side":   in.Side.String(),
		"price":  in.Price.Dec(),
		"amount": in.Amount.Dec(),
		"maker":  in.Maker,
		"id":     strconv.FormatUint(id, 10),
	})
	return nil
}

// cancelOrder refunds the unfilled escrow. Protocol-owned orders may only be
// cancelled by the manager, who receives the refund.
func (tx *txn) cancelOrder(in CancelOrder) error {
	if err := requireUser(in.Sender); err != nil {
		return err
	}
	if _, err := tx.pool(in.Pool); err != nil {
		return err
	}
	level, err := tx.ledger.level(in.Pool, in.Side, in.Price)
	if err != nil {
		return err
	}
	idx := -1
	for i := range level.Orders {
		if level.Orders[i].ID == in.OrderID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %d", ErrOrderNotFound, in.OrderID)
	}
	order := level.Orders[idx]
	if order.ProtocolOwned() {
		if err := tx.requireManager(in.Sender); err != nil {
			return err
		}
	} else if order.Maker != in.Sender {
		return fmt.Errorf("%w: order %d belongs to %s", ErrUnauthorized, order.ID, order.Maker)
	}
	level.Orders = append(level.Orders[:idx], level.Orders[idx+1:]...)
	if err := tx.ledger.putLevel(level); err != nil {
		return err
	}
	refundAsset := tx.params.HubAsset
	if in.Side == SideSell {
		refundAsset = in.Pool
	}
	if err := tx.out.transfer(refundAsset, in.Sender, order.Remaining); err != nil {
		return err
	}
	tx.emit(EventOrderCancelled, map[string]string{
		"pool":     in.Pool,
		"side":     in.Side.String(),
		"price":    in.Price.Dec(),
		"id":       strconv.FormatUint(order.ID, 10),
		"refunded": order.Remaining.Dec(),
	})
	return nil
}

// placeBuyback rests hub asset as a protocol-owned bid on the buyback pool at
// the current spot price, topping up an existing protocol bid at that price.
func (tx *txn) placeBuyback(in PlaceBuyback) error {
	if err := tx.requireManager(in.Sender); err != nil {
		return err
	}
	if err := requirePositive("amount", in.Amount); err != nil {
		return err
	}
	if tx.params.BuybackAsset == "" {
		return fmt.Errorf("%w: no buyback asset configured", ErrInvalidAsset)
	}
	p, err := tx.pool(tx.params.BuybackAsset)
	if err != nil {
		return err
	}
	price, err := p.SpotPrice()
	if err != nil {
		return err
	}
	if price.IsZero() {
		return fmt.Errorf("%w: spot price rounds to zero", ErrInvalidAmount)
	}
	level, err := tx.ledger.level(p.Asset, SideBuy, price)
	if err != nil {
		return err
	}
	merged := false
	for i := range level.Orders {
		if level.Orders[i].ProtocolOwned() {
			sum, err := fixed.Add(level.Orders[i].Remaining, in.Amount)
			if err != nil {
				return err
			}
			level.Orders[i].Remaining = sum
			merged = true
			break
		}
	}
	if !merged {
		level.Orders = append(level.Orders, Order{ID: tx.nextOrderID(), Remaining: in.Amount})
	}
	if err := tx.ledger.putLevel(level); err != nil {
		return err
	}
	tx.emit(EventBuybackPlaced, map[string]string{
		"pool":   p.Asset,
		"price":  price.Dec(),
		"amount": in.Amount.Dec(),
		"merged": strconv.FormatBool(merged),
	})
	return nil
}
