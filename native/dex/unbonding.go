package dex

import (
	"fmt"
	"strconv"

	"github.com/holiman/uint256"

	"earthexchange/native/fixed"
)

// Classify places a record relative to now given unbonding period T and claim
// window W: claimable in [start+T, start+T+W), expired from start+T+W.
func (r UnbondRecord) Classify(now, period, window uint64) UnbondStatus {
	matured := r.Start + period
	if now < matured {
		return UnbondPending
	}
	if now-matured < window {
		return UnbondClaimable
	}
	return UnbondExpired
}

// beginUnbond moves shares already removed from the stake into the pool's
// unbonding total and appends a record.
func (tx *txn) beginUnbond(p *Pool, user string, shares uint256.Int) error {
	var err error
	if p.UnbondingShares, err = fixed.Add(p.UnbondingShares, shares); err != nil {
		return err
	}
	records, err := tx.ledger.unbonds(p.Asset, user)
	if err != nil {
		return err
	}
	records = append(records, UnbondRecord{Amount: shares, Start: tx.nowUnix()})
	if err := tx.ledger.putUnbonds(p.Asset, user, records); err != nil {
		return err
	}
	tx.emit(EventUnbondRequested, map[string]string{
		"pool":   p.Asset,
		"user":   user,
		"shares": shares.Dec(),
		"start":  strconv.FormatUint(tx.nowUnix(), 10),
	})
	return nil
}

func (tx *txn) requestUnbond(in RequestUnbond) error {
	if err := requireUser(in.User); err != nil {
		return err
	}
	if err := requirePositive("shares", in.Shares); err != nil {
		return err
	}
	p, err := tx.pool(in.Pool)
	if err != nil {
		return err
	}
	s, err := tx.ledger.stake(p.Asset, in.User)
	if err != nil {
		return err
	}
	if err := tx.unstakeShares(p, s, in.Shares); err != nil {
		return err
	}
	if err := tx.ledger.putStake(s); err != nil {
		return err
	}
	return tx.beginUnbond(p, in.User, in.Shares)
}

// unbondShares starts unbonding shares that were held outside the stake, so
// no reward settlement is involved.
func (tx *txn) unbondShares(in UnbondShares) error {
	if err := requireUser(in.User); err != nil {
		return err
	}
	if err := requirePositive("shares", in.Shares); err != nil {
		return err
	}
	p, err := tx.pool(in.Pool)
	if err != nil {
		return err
	}
	if p.LPToken == "" {
		return fmt.Errorf("%w: pool %s LP token not confirmed", ErrInvalidAsset, p.Asset)
	}
	queued, err := fixed.Add(p.TotalStaked, p.UnbondingShares)
	if err != nil {
		return err
	}
	if queued, err = fixed.Add(queued, in.Shares); err != nil {
		return err
	}
	if queued.Gt(&p.TotalShares) {
		return fmt.Errorf("%w: %s shares exceed the unstaked supply", ErrInsufficientBalance, in.Shares.Dec())
	}
	return tx.beginUnbond(p, in.User, in.Shares)
}

// claimUnbond pays out every claimable record at current reserves and
// restakes every expired one. Records still inside the unbonding period stay.
func (tx *txn) claimUnbond(in ClaimUnbond) error {
	if err := requireUser(in.User); err != nil {
		return err
	}
	p, err := tx.pool(in.Pool)
	if err != nil {
		return err
	}
	records, err := tx.ledger.unbonds(p.Asset, in.User)
	if err != nil {
		return err
	}
	now := tx.nowUnix()
	var claimable, expired uint256.Int
	kept := make([]UnbondRecord, 0, len(records))
	for _, rec := range records {
		switch rec.Classify(now, tx.params.UnbondingSeconds, tx.params.ClaimWindowSeconds) {
		case UnbondClaimable:
			if claimable, err = fixed.Add(claimable, rec.Amount); err != nil {
				return err
			}
		case UnbondExpired:
			if expired, err = fixed.Add(expired, rec.Amount); err != nil {
				return err
			}
		default:
			kept = append(kept, rec)
		}
	}
	if claimable.IsZero() && expired.IsZero() {
		return ErrNothingReady
	}

	if !claimable.IsZero() {
		hubOut, err := fixed.MulDiv(claimable, p.HubReserve, p.TotalShares)
		if err != nil {
			return err
		}
		assetOut, err := fixed.MulDiv(claimable, p.AssetReserve, p.TotalShares)
		if err != nil {
			return err
		}
		if p.HubReserve, err = fixed.Sub(p.HubReserve, hubOut); err != nil {
			return err
		}
		if p.AssetReserve, err = fixed.Sub(p.AssetReserve, assetOut); err != nil {
			return err
		}
		if p.TotalShares, err = fixed.Sub(p.TotalShares, claimable); err != nil {
			return err
		}
		if p.UnbondingShares, err = fixed.Sub(p.UnbondingShares, claimable); err != nil {
			return err
		}
		if err := tx.out.transfer(tx.params.HubAsset, in.User, hubOut); err != nil {
			return err
		}
		if err := tx.out.transfer(p.Asset, in.User, assetOut); err != nil {
			return err
		}
		if err := tx.out.burn(p.LPToken, claimable); err != nil {
			return err
		}
		tx.emit(EventUnbondClaimed, map[string]string{
			"pool":   p.Asset,
			"user":   in.User,
			"shares": claimable.Dec(),
			"hub":    hubOut.Dec(),
			"asset":  assetOut.Dec(),
		})
	}

	if !expired.IsZero() {
		s, err := tx.ledger.stake(p.Asset, in.User)
		if err != nil {
			return err
		}
		if p.UnbondingShares, err = fixed.Sub(p.UnbondingShares, expired); err != nil {
			return err
		}
		if err := tx.stakeShares(p, s, expired); err != nil {
			return err
		}
		if err := tx.ledger.putStake(s); err != nil {
			return err
		}
		tx.emit(EventUnbondRestaked, map[string]string{
			"pool":   p.Asset,
			"user":   in.User,
			"shares": expired.Dec(),
		})
	}
	return tx.ledger.putUnbonds(p.Asset, in.User, kept)
}
