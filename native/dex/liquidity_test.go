package dex

import (
	"testing"
)

func minted(effects []Effect, asset, recipient string) (out Mint, ok bool) {
	for _, eff := range effects {
		if m, match := eff.(Mint); match && m.Asset == asset && m.Recipient == recipient {
			return m, true
		}
	}
	return Mint{}, false
}

func TestBootstrapDepositMintsGeometricMean(t *testing.T) {
	f := newFixture(t, nil)
	f.list(usdcAsset)

	outcome := f.apply(AddLiquidity{User: providerID, Pool: usdcAsset, HubAmount: amt(1_000_000), AssetAmount: amt(4_000_000)})

	m, ok := minted(outcome.Effects, "usdc-lp", providerID)
	if !ok {
		t.Fatalf("no LP mint to the provider: %+v", outcome.Effects)
	}
	assertAmount(t, "bootstrap shares", m.Amount, 2_000_000)
	if n := countEffects(outcome.Effects, func(e Effect) bool { _, ok := e.(Transfer); return ok }); n != 0 {
		t.Fatalf("bootstrap deposit should refund nothing, got %d transfers", n)
	}
	p := f.pool(usdcAsset)
	assertAmount(t, "hub reserve", p.HubReserve, 1_000_000)
	assertAmount(t, "asset reserve", p.AssetReserve, 4_000_000)
	assertAmount(t, "total shares", p.TotalShares, 2_000_000)
}

func TestProportionalDepositRefundsExcess(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(usdcAsset, 1_000_000, 4_000_000, false)

	outcome := f.apply(AddLiquidity{User: "alice", Pool: usdcAsset, HubAmount: amt(1_000), AssetAmount: amt(10_000)})

	m, ok := minted(outcome.Effects, "usdc-lp", "alice")
	if !ok {
		t.Fatalf("no LP mint to alice")
	}
	assertAmount(t, "shares", m.Amount, 2_000)
	assertAmount(t, "asset refund", transferred(outcome.Effects, usdcAsset, "alice"), 6_000)
	assertAmount(t, "hub refund", transferred(outcome.Effects, hubAsset, "alice"), 0)

	p := f.pool(usdcAsset)
	assertAmount(t, "hub reserve", p.HubReserve, 1_001_000)
	assertAmount(t, "asset reserve", p.AssetReserve, 4_004_000)
	assertAmount(t, "total shares", p.TotalShares, 2_002_000)
}

func TestDepositRequiresConfirmedLPToken(t *testing.T) {
	f := newFixture(t, nil)
	f.apply(AddPool{Sender: managerID, Asset: usdcAsset, Symbol: "usdc"})
	f.expectErr(AddLiquidity{User: providerID, Pool: usdcAsset, HubAmount: amt(10), AssetAmount: amt(10)}, ErrInvalidAsset)
	f.expectErr(AddLiquidity{User: providerID, Pool: anmlAsset, HubAmount: amt(10), AssetAmount: amt(10)}, ErrPoolNotFound)
	f.expectErr(AddLiquidity{User: providerID, Pool: usdcAsset, HubAmount: amt(0), AssetAmount: amt(10)}, ErrInvalidAmount)
}

func TestStakedDepositMintsToCustody(t *testing.T) {
	f := newFixture(t, nil)
	f.list(usdcAsset)

	outcome := f.apply(AddLiquidity{User: providerID, Pool: usdcAsset, HubAmount: amt(1_000_000), AssetAmount: amt(1_000_000), Stake: true})

	if _, ok := minted(outcome.Effects, "usdc-lp", custodyID); !ok {
		t.Fatalf("staked shares must be minted to custody")
	}
	if _, ok := minted(outcome.Effects, "usdc-lp", providerID); ok {
		t.Fatalf("staked shares minted to the provider")
	}
	assertAmount(t, "staked", f.stake(usdcAsset, providerID).Staked, 1_000_000)
	assertAmount(t, "pool staked", f.pool(usdcAsset).TotalStaked, 1_000_000)
}

func TestWithdrawReturnsShares(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(usdcAsset, 1_000_000, 1_000_000, true)

	f.expectErr(Withdraw{User: providerID, Pool: usdcAsset, Shares: amt(1_000_001)}, ErrInsufficientBalance)
	f.expectErr(Withdraw{User: "alice", Pool: usdcAsset, Shares: amt(1)}, ErrInsufficientBalance)

	outcome := f.apply(Withdraw{User: providerID, Pool: usdcAsset, Shares: amt(400_000)})
	assertAmount(t, "returned shares", transferred(outcome.Effects, "usdc-lp", providerID), 400_000)
	assertAmount(t, "remaining stake", f.stake(usdcAsset, providerID).Staked, 600_000)
	p := f.pool(usdcAsset)
	assertAmount(t, "pool staked", p.TotalStaked, 600_000)
	assertAmount(t, "supply unchanged", p.TotalShares, 1_000_000)
}

func TestDepositSharesStakesExistingShares(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(usdcAsset, 1_000_000, 1_000_000, false)

	f.apply(DepositShares{User: providerID, Pool: usdcAsset, Shares: amt(250_000)})
	assertAmount(t, "staked", f.stake(usdcAsset, providerID).Staked, 250_000)
	f.expectErr(DepositShares{User: providerID, Pool: usdcAsset, Shares: amt(800_000)}, ErrInsufficientBalance)
}
