package dex

import (
	"fmt"

	"github.com/holiman/uint256"

	"earthexchange/native/fixed"
)

// accrued returns the stake's lifetime entitlement at the pool's current
// reward-per-share.
func accrued(p *Pool, staked uint256.Int) (uint256.Int, error) {
	return fixed.ScaleDown(staked, p.RewardPerShare)
}

// settle moves rewards earned since the last settlement into Pending. Calling
// it twice without an intervening accrual leaves Pending unchanged.
func settle(p *Pool, s *UserStake) error {
	entitled, err := accrued(p, s.Staked)
	if err != nil {
		return err
	}
	delta, err := fixed.Sub(entitled, s.RewardDebt)
	if err != nil {
		return fmt.Errorf("reward debt ahead of accumulator: %w", err)
	}
	if s.Pending, err = fixed.Add(s.Pending, delta); err != nil {
		return err
	}
	s.RewardDebt = entitled
	return nil
}

// resetDebt realigns the debt after Staked changed. settle must have run at
// the old stake first.
func resetDebt(p *Pool, s *UserStake) error {
	debt, err := accrued(p, s.Staked)
	if err != nil {
		return err
	}
	s.RewardDebt = debt
	return nil
}

// stakeShares settles and adds shares to the user's stake.
func (tx *txn) stakeShares(p *Pool, s *UserStake, shares uint256.Int) error {
	if err := settle(p, s); err != nil {
		return err
	}
	var err error
	if s.Staked, err = fixed.Add(s.Staked, shares); err != nil {
		return err
	}
	if p.TotalStaked, err = fixed.Add(p.TotalStaked, shares); err != nil {
		return err
	}
	if p.TotalStaked.Gt(&p.TotalShares) {
		return fmt.Errorf("%w: staked shares exceed supply", ErrInsufficientBalance)
	}
	return resetDebt(p, s)
}

// unstakeShares settles and removes shares from the user's stake.
func (tx *txn) unstakeShares(p *Pool, s *UserStake, shares uint256.Int) error {
	if err := settle(p, s); err != nil {
		return err
	}
	if s.Staked.Lt(&shares) {
		return fmt.Errorf("%w: staked %s, requested %s", ErrInsufficientBalance, s.Staked.Dec(), shares.Dec())
	}
	var err error
	if s.Staked, err = fixed.Sub(s.Staked, shares); err != nil {
		return err
	}
	if p.TotalStaked, err = fixed.Sub(p.TotalStaked, shares); err != nil {
		return err
	}
	return resetDebt(p, s)
}

func (tx *txn) depositShares(in DepositShares) error {
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
	if err := tx.stakeShares(p, s, in.Shares); err != nil {
		return err
	}
	if err := tx.ledger.putStake(s); err != nil {
		return err
	}
	tx.emit(EventSharesStaked, map[string]string{"pool": p.Asset, "user": in.User, "shares": in.Shares.Dec()})
	return nil
}

func (tx *txn) claimRewards(in ClaimRewards) error {
	if err := requireUser(in.User); err != nil {
		return err
	}
	if len(in.Pools) == 0 {
		return fmt.Errorf("%w: no pools given", ErrInvalidAsset)
	}
	seen := make(map[string]struct{}, len(in.Pools))
	var total uint256.Int
	for _, asset := range in.Pools {
		if _, dup := seen[asset]; dup {
			continue
		}
		seen[asset] = struct{}{}
		p, err := tx.pool(asset)
		if err != nil {
			return err
		}
		s, err := tx.ledger.stake(p.Asset, in.User)
		if err != nil {
			return err
		}
		if err := settle(p, s); err != nil {
			return err
		}
		if total, err = fixed.Add(total, s.Pending); err != nil {
			return err
		}
		s.Pending = uint256.Int{}
		if err := tx.ledger.putStake(s); err != nil {
			return err
		}
	}
	if total.IsZero() {
		return nil
	}
	if err := tx.out.transfer(tx.params.HubAsset, in.User, total); err != nil {
		return err
	}
	tx.emit(EventRewardsClaimed, map[string]string{"user": in.User, "amount": total.Dec()})
	return nil
}

func (tx *txn) fundRewards(in FundRewards) error {
	if in.Asset != tx.params.HubAsset {
		return fmt.Errorf("%w: rewards must be funded in %s", ErrInvalidAsset, tx.params.HubAsset)
	}
	if err := requirePositive("amount", in.Amount); err != nil {
		return err
	}
	pending, err := fixed.Add(tx.protocol.PendingReward, in.Amount)
	if err != nil {
		return err
	}
	tx.protocol.PendingReward = pending
	tx.emit(EventRewardsFunded, map[string]string{"amount": in.Amount.Dec(), "pending": pending.Dec()})
	return nil
}
