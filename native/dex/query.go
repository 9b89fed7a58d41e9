package dex

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"earthexchange/storage"
)

func (e *Engine) Params(store storage.Store) (Params, error) {
	return newLedger(store).params()
}

// Protocol returns the engine-wide counters with the daily windows rolled to
// now. Nothing is written.
func (e *Engine) Protocol(store storage.Store, now time.Time) (*ProtocolState, error) {
	state, err := newLedger(store).protocol()
	if err != nil {
		return nil, err
	}
	rollForward(&state.LastUpdatedDay, dayIndex(now.Unix()), &state.Volumes, &state.Rewards)
	return state, nil
}

func (e *Engine) Pool(store storage.Store, asset string, now time.Time) (*Pool, error) {
	p, err := newLedger(store).pool(asset)
	if err != nil {
		return nil, err
	}
	rollForward(&p.LastUpdatedDay, dayIndex(now.Unix()), &p.Volumes, &p.Rewards)
	return p, nil
}

// Pools lists every pool in identifier order, windows rolled to now.
func (e *Engine) Pools(store storage.Store, now time.Time) ([]*Pool, error) {
	pools, err := newLedger(store).pools()
	if err != nil {
		return nil, err
	}
	day := dayIndex(now.Unix())
	for _, p := range pools {
		rollForward(&p.LastUpdatedDay, day, &p.Volumes, &p.Rewards)
	}
	return pools, nil
}

// Stake returns the user's record with rewards settled up to the pool's
// current accumulator. Nothing is written.
func (e *Engine) Stake(store storage.Store, pool, user string) (*UserStake, error) {
	l := newLedger(store)
	p, err := l.pool(pool)
	if err != nil {
		return nil, err
	}
	s, err := l.stake(pool, user)
	if err != nil {
		return nil, err
	}
	if err := settle(p, s); err != nil {
		return nil, err
	}
	return s, nil
}

// UnbondView is an unbond record annotated with its status at query time.
type UnbondView struct {
	UnbondRecord
	Status      UnbondStatus
	ClaimableAt uint64
	ExpiresAt   uint64
}

func (e *Engine) Unbonds(store storage.Store, pool, user string, now time.Time) ([]UnbondView, error) {
	l := newLedger(store)
	params, err := l.params()
	if err != nil {
		return nil, err
	}
	if _, err := l.pool(pool); err != nil {
		return nil, err
	}
	records, err := l.unbonds(pool, user)
	if err != nil {
		return nil, err
	}
	at := uint64(0)
	if now.Unix() > 0 {
		at = uint64(now.Unix())
	}
	out := make([]UnbondView, 0, len(records))
	for _, rec := range records {
		out = append(out, UnbondView{
			UnbondRecord: rec,
			Status:       rec.Classify(at, params.UnbondingSeconds, params.ClaimWindowSeconds),
			ClaimableAt:  rec.Start + params.UnbondingSeconds,
			ExpiresAt:    rec.Start + params.UnbondingSeconds + params.ClaimWindowSeconds,
		})
	}
	return out, nil
}

// OrderLevels lists one side of a pool's book in ascending price order.
func (e *Engine) OrderLevels(store storage.Store, pool string, side Side) ([]*OrderLevel, error) {
	if !side.Valid() {
		return nil, fmt.Errorf("%w: unknown side %d", ErrInvalidAmount, side)
	}
	return newLedger(store).levels(pool, side)
}

func (e *Engine) PendingAction(store storage.Store, id string) (*PendingAction, error) {
	return newLedger(store).pendingAction(id)
}

// SimulateSwap is the read-only preview of a Swap.
type SimulateSwap struct {
	InputAsset  string
	Amount      uint256.Int
	OutputAsset string
}

type SimulateResult struct {
	Output         uint256.Int
	Intermediate   uint256.Int
	TotalFee       uint256.Int
	PriceImpactBps uint64
	BookFills      int
}

// Simulate runs the swap against a discarded copy of store.
func (e *Engine) Simulate(store storage.Store, now time.Time, req SimulateSwap) (*SimulateResult, error) {
	if err := requirePositive("amount", req.Amount); err != nil {
		return nil, err
	}
	scratch := storage.NewOverlay(store)
	defer scratch.Discard()
	tx, err := e.begin(scratch, now)
	if err != nil {
		return nil, err
	}
	res, err := tx.routeSwap(req.InputAsset, req.OutputAsset, req.Amount, legOptions{feeBps: tx.params.ProtocolFeeBps, useBook: true})
	if err != nil {
		return nil, err
	}
	out := &SimulateResult{
		Output:         res.output,
		Intermediate:   res.intermediate,
		TotalFee:       res.totalFee,
		PriceImpactBps: PriceImpactBps(res.ideal, res.output),
	}
	for _, leg := range res.legs {
		out.BookFills += leg.bookFills
	}
	return out, nil
}
