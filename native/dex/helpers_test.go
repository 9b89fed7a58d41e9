package dex

import (
	"errors"
	"testing"
	"time"

	"github.com/holiman/uint256"

	"earthexchange/native/fixed"
	"earthexchange/storage"
)

const (
	hubAsset   = "erth"
	anmlAsset  = "anml"
	usdcAsset  = "usdc"
	managerID  = "manager"
	custodyID  = "exchange"
	providerID = "lp"
	traderID   = "trader"
)

var genesis = time.Unix(1_700_006_400, 0).UTC() // start of a UTC day

func amt(v uint64) uint256.Int {
	return fixed.New(v)
}

func testParams() Params {
	p := DefaultParams()
	p.HubAsset = hubAsset
	p.BuybackAsset = anmlAsset
	p.Manager = managerID
	p.Custody = custodyID
	return p
}

type fixture struct {
	t      *testing.T
	engine *Engine
	store  *storage.MemDB
	now    time.Time
}

func newFixture(t *testing.T, mutate func(*Params)) *fixture {
	t.Helper()
	params := testParams()
	if mutate != nil {
		mutate(&params)
	}
	f := &fixture{t: t, engine: NewEngine(), store: storage.NewMemDB(), now: genesis}
	if err := f.engine.Init(f.store, params); err != nil {
		t.Fatalf("init: %v", err)
	}
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *fixture) apply(intent Intent) *Outcome {
	f.t.Helper()
	outcome, err := f.engine.Apply(f.store, f.now, intent)
	if err != nil {
		f.t.Fatalf("%s: %v", intent.Name(), err)
	}
	return outcome
}

func (f *fixture) expectErr(intent Intent, target error) {
	f.t.Helper()
	_, err := f.engine.Apply(f.store, f.now, intent)
	if !errors.Is(err, target) {
		f.t.Fatalf("%s: expected %v, got %v", intent.Name(), target, err)
	}
}

// list adds a pool and confirms its LP token.
func (f *fixture) list(asset string) {
	f.t.Helper()
	outcome := f.apply(AddPool{Sender: managerID, Asset: asset, Symbol: asset})
	var id string
	for _, eff := range outcome.Effects {
		if req, ok := eff.(InstantiateLPToken); ok {
			id = req.CorrelationID
		}
	}
	if id == "" {
		f.t.Fatalf("no LP token instantiation for %s", asset)
	}
	if _, err := f.engine.Resolve(f.store, f.now, id, asset+"-lp"); err != nil {
		f.t.Fatalf("resolve %s: %v", asset, err)
	}
}

// seed lists asset and deposits the given reserves, optionally staking.
func (f *fixture) seed(asset string, hub, other uint64, stake bool) {
	f.t.Helper()
	f.list(asset)
	f.apply(AddLiquidity{User: providerID, Pool: asset, HubAmount: amt(hub), AssetAmount: amt(other), Stake: stake})
}

func (f *fixture) pool(asset string) *Pool {
	f.t.Helper()
	p, err := f.engine.Pool(f.store, asset, f.now)
	if err != nil {
		f.t.Fatalf("pool %s: %v", asset, err)
	}
	return p
}

func (f *fixture) protocol() *ProtocolState {
	f.t.Helper()
	state, err := f.engine.Protocol(f.store, f.now)
	if err != nil {
		f.t.Fatalf("protocol: %v", err)
	}
	return state
}

func (f *fixture) stake(asset, user string) *UserStake {
	f.t.Helper()
	s, err := f.engine.Stake(f.store, asset, user)
	if err != nil {
		f.t.Fatalf("stake: %v", err)
	}
	return s
}

func transferred(effects []Effect, asset, recipient string) uint256.Int {
	for _, eff := range effects {
		if t, ok := eff.(Transfer); ok && t.Asset == asset && t.Recipient == recipient {
			return t.Amount
		}
	}
	return uint256.Int{}
}

func burned(effects []Effect, asset string) uint256.Int {
	for _, eff := range effects {
		if b, ok := eff.(Burn); ok && b.Asset == asset {
			return b.Amount
		}
	}
	return uint256.Int{}
}

func countEffects(effects []Effect, match func(Effect) bool) int {
	n := 0
	for _, eff := range effects {
		if match(eff) {
			n++
		}
	}
	return n
}

func product(p *Pool) uint256.Int {
	var z uint256.Int
	z.Mul(&p.HubReserve, &p.AssetReserve)
	return z
}

func assertAmount(t *testing.T, label string, got uint256.Int, want uint64) {
	t.Helper()
	if !got.IsUint64() || got.Uint64() != want {
		t.Fatalf("%s: got %s want %d", label, got.Dec(), want)
	}
}
