package dex

import (
	"log/slog"
	"strconv"

	"github.com/holiman/uint256"

	"earthexchange/native/fixed"
)

type poolCharge struct {
	pool      *Pool
	share     uint256.Int
	increment uint256.Int
}

// distribute apportions the pending reward across pools by their share of
// the trailing completed-day volume. Every pool is read and charged before
// any is written.
func (tx *txn) distribute() error {
	proto := tx.protocol
	proto.LastDistributedDay = tx.day
	pending := proto.PendingReward
	if pending.IsZero() {
		return nil
	}
	total, err := proto.Volumes.Trailing()
	if err != nil {
		return err
	}
	if total.IsZero() {
		tx.engine.log().Info("dex reward distribution deferred: no trailing volume",
			slog.String("pending", pending.Dec()))
		return nil
	}
	pools, err := tx.allPools()
	if err != nil {
		return err
	}

	charges := make([]poolCharge, 0, len(pools))
	var distributed uint256.Int
	for _, p := range pools {
		volume, err := p.Volumes.Trailing()
		if err != nil {
			return err
		}
		if volume.IsZero() || p.TotalStaked.IsZero() {
			continue
		}
		share, err := fixed.MulDiv(volume, pending, total)
		if err != nil {
			return err
		}
		if share.IsZero() {
			continue
		}
		increment, err := fixed.ScaleUp(share, p.TotalStaked)
		if err != nil {
			return err
		}
		charges = append(charges, poolCharge{pool: p, share: share, increment: increment})
		if distributed, err = fixed.Add(distributed, share); err != nil {
			return err
		}
	}
	leftover, err := fixed.Sub(pending, distributed)
	if err != nil {
		return err
	}
	undistributed, err := fixed.Add(proto.Undistributed, leftover)
	if err != nil {
		return err
	}

	for _, c := range charges {
		rps, err := fixed.Add(c.pool.RewardPerShare, c.increment)
		if err != nil {
			return err
		}
		c.pool.RewardPerShare = rps
		if err := c.pool.Rewards.Record(c.share); err != nil {
			return err
		}
	}
	if err := proto.Rewards.Record(distributed); err != nil {
		return err
	}
	proto.Undistributed = undistributed
	proto.PendingReward = uint256.Int{}

	tx.emit(EventRewardsDistributed, map[string]string{
		"day":           strconv.FormatUint(tx.day, 10),
		"pending":       pending.Dec(),
		"distributed":   distributed.Dec(),
		"undistributed": leftover.Dec(),
		"pools":         strconv.Itoa(len(charges)),
	})
	tx.engine.log().Info("dex rewards distributed",
		slog.Uint64("day", tx.day),
		slog.String("distributed", distributed.Dec()),
		slog.String("undistributed", leftover.Dec()),
		slog.Int("pools", len(charges)))
	return nil
}
