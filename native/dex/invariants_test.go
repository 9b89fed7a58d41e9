package dex

import (
	"testing"
	"time"

	"github.com/holiman/uint256"
	"pgregory.net/rapid"

	"earthexchange/native/fixed"
	"earthexchange/storage"
)

func drawAmount(t *rapid.T, label string, lo, hi uint64) uint64 {
	return rapid.Uint64Range(lo, hi).Draw(t, label)
}

func TestCurveProductNeverDecreases(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := &Pool{
			Asset:        "x",
			HubReserve:   amt(drawAmount(t, "hub", 1_000, 1_000_000_000_000)),
			AssetReserve: amt(drawAmount(t, "asset", 1_000, 1_000_000_000_000)),
		}
		side := rapid.SampledFrom([]Side{SideBuy, SideSell}).Draw(t, "side")
		input := amt(drawAmount(t, "input", 1, 1_000_000_000))
		feeBps := drawAmount(t, "fee", 0, 300)

		before := product(p)
		q, err := p.Quote(input, side, feeBps)
		if err != nil {
			t.Skip("unquotable trade")
		}
		if err := p.ApplySwap(q.Net, q.Output, side); err != nil {
			t.Fatalf("apply: %v", err)
		}
		afterSwap := product(p)
		if afterSwap.Lt(&before) {
			t.Fatalf("swap shrank k: %s -> %s", before.Dec(), afterSwap.Dec())
		}
		if side == SideSell && !q.Fee.IsZero() {
			if _, err := p.absorbFee(q.Fee); err != nil {
				t.Fatalf("absorb: %v", err)
			}
			afterFee := product(p)
			if afterFee.Lt(&afterSwap) {
				t.Fatalf("fee conversion shrank k: %s -> %s", afterSwap.Dec(), afterFee.Dec())
			}
		}
	})
}

func TestDepositNeverDilutesHolders(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := &Pool{
			Asset:        "x",
			HubReserve:   amt(drawAmount(t, "hub", 1_000, 1_000_000_000_000)),
			AssetReserve: amt(drawAmount(t, "asset", 1_000, 1_000_000_000_000)),
		}
		shares, err := fixed.SqrtMul(p.HubReserve, p.AssetReserve)
		if err != nil || shares.IsZero() {
			t.Skip("degenerate pool")
		}
		p.TotalShares = shares

		minted, usedHub, usedAsset, err := mintShares(p,
			amt(drawAmount(t, "depositHub", 1, 1_000_000_000)),
			amt(drawAmount(t, "depositAsset", 1, 1_000_000_000)))
		if err != nil {
			t.Fatalf("mint: %v", err)
		}
		// (reserve+used)/(shares+minted) must not fall below reserve/shares.
		total, err := fixed.Add(p.TotalShares, minted)
		if err != nil {
			t.Fatalf("total: %v", err)
		}
		for _, side := range []struct{ reserve, used uint256.Int }{
			{p.HubReserve, usedHub},
			{p.AssetReserve, usedAsset},
		} {
			grown, _ := fixed.Add(side.reserve, side.used)
			lhs, err := fixed.Mul(grown, p.TotalShares)
			if err != nil {
				t.Fatalf("mul: %v", err)
			}
			rhs, err := fixed.Mul(side.reserve, total)
			if err != nil {
				t.Fatalf("mul: %v", err)
			}
			if lhs.Lt(&rhs) {
				t.Fatalf("deposit diluted holders: used %s for %s shares", side.used.Dec(), minted.Dec())
			}
		}
	})
}

func TestSettleIdempotentProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := &Pool{RewardPerShare: amt(drawAmount(t, "rps", 0, 1_000_000_000_000))}
		s := &UserStake{Staked: amt(drawAmount(t, "staked", 0, 1_000_000_000_000))}
		if err := resetDebt(p, s); err != nil {
			t.Fatalf("reset: %v", err)
		}
		bump := amt(drawAmount(t, "bump", 0, 1_000_000_000))
		p.RewardPerShare.Add(&p.RewardPerShare, &bump)

		if err := settle(p, s); err != nil {
			t.Fatalf("settle: %v", err)
		}
		first := s.Pending
		if err := settle(p, s); err != nil {
			t.Fatalf("settle again: %v", err)
		}
		if !first.Eq(&s.Pending) {
			t.Fatalf("second settle changed pending %s -> %s", first.Dec(), s.Pending.Dec())
		}
	})
}

// TestRandomHistoryKeepsLedgerConsistent drives the engine with arbitrary
// liquidity and trading intents and audits the ledger after every step.
func TestRandomHistoryKeepsLedgerConsistent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		engine := NewEngine()
		store := storage.NewMemDB()
		now := genesis
		if err := engine.Init(store, testParams()); err != nil {
			t.Fatalf("init: %v", err)
		}
		outcome, err := engine.Apply(store, now, AddPool{Sender: managerID, Asset: usdcAsset, Symbol: "usdc"})
		if err != nil {
			t.Fatalf("add pool: %v", err)
		}
		id := outcome.Effects[0].(InstantiateLPToken).CorrelationID
		if _, err := engine.Resolve(store, now, id, "usdc-lp"); err != nil {
			t.Fatalf("resolve: %v", err)
		}

		users := []string{"alice", "bob"}
		steps := rapid.IntRange(1, 30).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			user := rapid.SampledFrom(users).Draw(t, "user")
			size := amt(drawAmount(t, "size", 1, 5_000_000))
			var intent Intent
			switch rapid.IntRange(0, 7).Draw(t, "op") {
			case 0:
				intent = AddLiquidity{User: user, Pool: usdcAsset, HubAmount: size, AssetAmount: amt(drawAmount(t, "other", 1, 5_000_000)), Stake: rapid.Bool().Draw(t, "stake")}
			case 1:
				intent = Withdraw{User: user, Pool: usdcAsset, Shares: size, Unbond: rapid.Bool().Draw(t, "unbond")}
			case 2:
				intent = RequestUnbond{User: user, Pool: usdcAsset, Shares: size}
			case 3:
				intent = ClaimUnbond{User: user, Pool: usdcAsset}
			case 4:
				in, out := hubAsset, usdcAsset
				if rapid.Bool().Draw(t, "sell") {
					in, out = out, in
				}
				intent = Swap{Sender: user, InputAsset: in, Amount: size, OutputAsset: out}
			case 5:
				intent = FundRewards{Asset: hubAsset, Amount: size}
			case 6:
				intent = ClaimRewards{User: user, Pools: []string{usdcAsset}}
			default:
				now = now.Add(time.Duration(drawAmount(t, "hours", 1, 240)) * time.Hour)
				continue
			}
			// Rejected intents are expected; they must simply leave no trace.
			_, _ = engine.Apply(store, now, intent)

			report, err := Audit(store)
			if err != nil {
				t.Fatalf("audit: %v", err)
			}
			if !report.Healthy() {
				t.Fatalf("after %s: %v", intent.Name(), report.Violations)
			}
		}
	})
}
