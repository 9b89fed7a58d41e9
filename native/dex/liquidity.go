package dex

import (
	"fmt"

	"github.com/holiman/uint256"

	"earthexchange/native/fixed"
)

// mintShares computes the shares minted for a deposit and the part of each
// amount actually used. The first deposit mints sqrt(hub*asset); later
// deposits mint at the smaller of the two reserve ratios and round the used
// amounts up so existing holders are never diluted.
func mintShares(p *Pool, hub, asset uint256.Int) (shares, usedHub, usedAsset uint256.Int, err error) {
	if p.TotalShares.IsZero() {
		shares, err = fixed.SqrtMul(hub, asset)
		return shares, hub, asset, err
	}
	if !p.Liquid() {
		return shares, usedHub, usedAsset, fmt.Errorf("%w: pool %s has shares but an empty reserve", ErrInsufficientLiquidity, p.Asset)
	}
	byHub, err := fixed.MulDiv(hub, p.TotalShares, p.HubReserve)
	if err != nil {
		return
	}
	byAsset, err := fixed.MulDiv(asset, p.TotalShares, p.AssetReserve)
	if err != nil {
		return
	}
	shares = fixed.Min(byHub, byAsset)
	if usedHub, err = fixed.MulDivCeil(shares, p.HubReserve, p.TotalShares); err != nil {
		return
	}
	if usedAsset, err = fixed.MulDivCeil(shares, p.AssetReserve, p.TotalShares); err != nil {
		return
	}
	return shares, fixed.Min(usedHub, hub), fixed.Min(usedAsset, asset), nil
}

func (tx *txn) addLiquidity(in AddLiquidity) error {
	if err := requireUser(in.User); err != nil {
		return err
	}
	if err := requirePositive("hub amount", in.HubAmount); err != nil {
		return err
	}
	if err := requirePositive("asset amount", in.AssetAmount); err != nil {
		return err
	}
	p, err := tx.pool(in.Pool)
	if err != nil {
		return err
	}
	if p.LPToken == "" {
		return fmt.Errorf("%w: pool %s LP token not confirmed", ErrInvalidAsset, p.Asset)
	}
	shares, usedHub, usedAsset, err := mintShares(p, in.HubAmount, in.AssetAmount)
	if err != nil {
		return err
	}
	if shares.IsZero() {
		return fmt.Errorf("%w: deposit too small to mint shares", ErrInvalidAmount)
	}

	if p.HubReserve, err = fixed.Add(p.HubReserve, usedHub); err != nil {
		return err
	}
	if p.AssetReserve, err = fixed.Add(p.AssetReserve, usedAsset); err != nil {
		return err
	}
	if p.TotalShares, err = fixed.Add(p.TotalShares, shares); err != nil {
		return err
	}

	recipient := in.User
	if in.Stake {
		s, err := tx.ledger.stake(p.Asset, in.User)
		if err != nil {
			return err
		}
		if err := tx.stakeShares(p, s, shares); err != nil {
			return err
		}
		if err := tx.ledger.putStake(s); err != nil {
			return err
		}
		recipient = tx.params.Custody
	}
	if err := tx.out.mint(p.LPToken, recipient, shares); err != nil {
		return err
	}
	refundHub, err := fixed.Sub(in.HubAmount, usedHub)
	if err != nil {
		return err
	}
	refundAsset, err := fixed.Sub(in.AssetAmount, usedAsset)
	if err != nil {
		return err
	}
	if err := tx.out.transfer(tx.params.HubAsset, in.User, refundHub); err != nil {
		return err
	}
	if err := tx.out.transfer(p.Asset, in.User, refundAsset); err != nil {
		return err
	}
	tx.emit(EventLiquidityAdded, map[string]string{
		"pool":   p.Asset,
		"user":   in.User,
		"hub":    usedHub.Dec(),
		"asset":  usedAsset.Dec(),
		"shares": shares.Dec(),
		"staked": fmt.Sprintf("%t", in.Stake),
	})
	return nil
}

// withdraw unstakes shares, pays out pending rewards and either returns the
// LP shares or queues them for unbonding.
func (tx *txn) withdraw(in Withdraw) error {
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
	rewards := s.Pending
	s.Pending = uint256.Int{}
	if err := tx.ledger.putStake(s); err != nil {
		return err
	}
	if err := tx.out.transfer(tx.params.HubAsset, in.User, rewards); err != nil {
		return err
	}
	if in.Unbond {
		if err := tx.beginUnbond(p, in.User, in.Shares); err != nil {
			return err
		}
	} else if err := tx.out.transfer(p.LPToken, in.User, in.Shares); err != nil {
		return err
	}
	tx.emit(EventWithdrawn, map[string]string{
		"pool":    p.Asset,
		"user":    in.User,
		"shares":  in.Shares.Dec(),
		"rewards": rewards.Dec(),
		"unbond":  fmt.Sprintf("%t", in.Unbond),
	})
	return nil
}
