package dex

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"earthexchange/observability/metrics"
	"earthexchange/storage"
)

func TestExecuteRollsBackWhenSettlementFails(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(usdcAsset, 1_000_000, 1_000_000, false)
	before := f.pool(usdcAsset)

	boom := errors.New("bank unavailable")
	swap := Swap{Sender: traderID, InputAsset: usdcAsset, Amount: amt(10_000), OutputAsset: hubAsset}
	_, err := f.engine.Execute(context.Background(), f.store, f.now, swap, func(context.Context, *Outcome) error {
		return boom
	})
	require.ErrorIs(t, err, boom)

	after := f.pool(usdcAsset)
	require.True(t, before.HubReserve.Eq(&after.HubReserve))
	require.True(t, before.AssetReserve.Eq(&after.AssetReserve))
	assertAmount(t, "protocol volume", f.protocol().Volumes.Day(0), 0)

	var settled *Outcome
	outcome, err := f.engine.Execute(context.Background(), f.store, f.now, swap, func(_ context.Context, o *Outcome) error {
		settled = o
		return nil
	})
	require.NoError(t, err)
	require.Same(t, outcome, settled)
	assertAmount(t, "committed output", transferred(outcome.Effects, hubAsset, traderID), 9_851)
	assertAmount(t, "committed reserve", f.pool(usdcAsset).AssetReserve, 1_010_000)
}

func TestExecuteTracesAndMeters(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	f := newFixture(t, nil)
	f.engine.SetTracer(provider.Tracer("dex-test"))
	f.engine.SetMetrics(metrics.Dex())
	f.seed(usdcAsset, 1_000_000, 1_000_000, false)

	_, err := f.engine.Execute(context.Background(), f.store, f.now,
		Swap{Sender: traderID, InputAsset: usdcAsset, Amount: amt(10_000), OutputAsset: hubAsset}, nil)
	require.NoError(t, err)
	_, err = f.engine.Execute(context.Background(), f.store, f.now,
		Swap{Sender: traderID, InputAsset: usdcAsset, Amount: amt(0), OutputAsset: hubAsset}, nil)
	require.ErrorIs(t, err, ErrInvalidAmount)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	require.Equal(t, "dex.execute", spans[0].Name())
	found := false
	for _, attr := range spans[0].Attributes() {
		if attr.Key == "dex.intent" && attr.Value.AsString() == "swap" {
			found = true
		}
	}
	require.True(t, found, "intent attribute missing")
	require.NotEmpty(t, spans[1].Events(), "rejected intent should record its error")
}

func TestInitGuards(t *testing.T) {
	engine := NewEngine()
	store := storage.NewMemDB()

	_, err := engine.Apply(store, genesis, FundRewards{Asset: hubAsset, Amount: amt(1)})
	require.ErrorIs(t, err, ErrNotInitialized)

	bad := testParams()
	bad.HubAsset = ""
	require.ErrorIs(t, engine.Init(store, bad), ErrInvalidParams)

	require.NoError(t, engine.Init(store, testParams()))
	require.ErrorIs(t, engine.Init(store, testParams()), ErrInvalidParams)

	_, err = engine.Apply(store, genesis, nil)
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestAddPoolLifecycle(t *testing.T) {
	f := newFixture(t, nil)
	f.expectErr(AddPool{Sender: traderID, Asset: usdcAsset, Symbol: "usdc"}, ErrUnauthorized)
	f.expectErr(AddPool{Sender: managerID, Asset: hubAsset, Symbol: "erth"}, ErrInvalidAsset)
	f.expectErr(AddPool{Sender: managerID, Asset: "a/b", Symbol: "ab"}, ErrInvalidAsset)
	f.expectErr(AddPool{Sender: managerID, Asset: usdcAsset, Symbol: " "}, ErrInvalidAsset)

	outcome := f.apply(AddPool{Sender: managerID, Asset: usdcAsset, Symbol: "usdc"})
	require.Len(t, outcome.Effects, 1)
	req, ok := outcome.Effects[0].(InstantiateLPToken)
	require.True(t, ok)
	require.Equal(t, "USDCLP", req.Symbol)
	require.Equal(t, usdcAsset, req.Pool)

	again := newFixture(t, nil)
	replay := again.apply(AddPool{Sender: managerID, Asset: usdcAsset, Symbol: "usdc"})
	require.Equal(t, req.CorrelationID, replay.Effects[0].(InstantiateLPToken).CorrelationID,
		"correlation ids must be deterministic")

	action, err := f.engine.PendingAction(f.store, req.CorrelationID)
	require.NoError(t, err)
	require.Equal(t, usdcAsset, action.Pool)

	f.expectErr(AddPool{Sender: managerID, Asset: usdcAsset, Symbol: "usdc"}, ErrPoolExists)
	_, err = f.engine.Resolve(f.store, f.now, "missing", "x")
	require.ErrorIs(t, err, ErrPendingActionNotFound)

	_, err = f.engine.Resolve(f.store, f.now, req.CorrelationID, "usdc-lp")
	require.NoError(t, err)
	require.Equal(t, "usdc-lp", f.pool(usdcAsset).LPToken)
	_, err = f.engine.Resolve(f.store, f.now, req.CorrelationID, "usdc-lp")
	require.ErrorIs(t, err, ErrPendingActionNotFound)
	_, err = f.engine.PendingAction(f.store, req.CorrelationID)
	require.ErrorIs(t, err, ErrPendingActionNotFound)
}

func TestUpdatePoolReplacesTokenConfig(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(usdcAsset, 1_000_000, 1_000_000, true)
	before := f.pool(usdcAsset)

	f.expectErr(UpdatePool{Sender: traderID, Pool: usdcAsset, LPToken: "usdc-lp-v2"}, ErrUnauthorized)
	f.expectErr(UpdatePool{Sender: managerID, Pool: usdcAsset}, ErrInvalidAsset)
	f.expectErr(UpdatePool{Sender: managerID, Pool: usdcAsset, LPToken: hubAsset}, ErrInvalidAsset)
	f.expectErr(UpdatePool{Sender: managerID, Pool: usdcAsset, LPToken: "bad/token"}, ErrInvalidAsset)
	f.expectErr(UpdatePool{Sender: managerID, Pool: "doge", Symbol: "doge"}, ErrPoolNotFound)

	outcome := f.apply(UpdatePool{Sender: managerID, Pool: usdcAsset, LPToken: "usdc-lp-v2"})
	require.Empty(t, outcome.Effects)
	require.Equal(t, EventPoolUpdated, outcome.Events[len(outcome.Events)-1].Type)

	after := f.pool(usdcAsset)
	require.Equal(t, "usdc-lp-v2", after.LPToken)
	require.Equal(t, before.Symbol, after.Symbol)
	require.True(t, before.TotalShares.Eq(&after.TotalShares))
	require.True(t, before.TotalStaked.Eq(&after.TotalStaked))

	f.apply(UpdatePool{Sender: managerID, Pool: usdcAsset, Symbol: "USDC"})
	require.Equal(t, "USDC", f.pool(usdcAsset).Symbol)
	require.Equal(t, "usdc-lp-v2", f.pool(usdcAsset).LPToken)

	f.apply(RequestUnbond{User: providerID, Pool: usdcAsset, Shares: amt(1_000)})
	f.advance(7 * oneDay)
	claimed := f.apply(ClaimUnbond{User: providerID, Pool: usdcAsset})
	assertAmount(t, "burned under new token", burned(claimed.Effects, "usdc-lp-v2"), 1_000)
}

func TestPauseBlocksTrading(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(usdcAsset, 1_000_000, 1_000_000, false)

	paused := testParams()
	paused.Paused = true
	f.expectErr(UpdateParams{Sender: traderID, Params: paused}, ErrUnauthorized)
	f.apply(UpdateParams{Sender: managerID, Params: paused})

	f.expectErr(Swap{Sender: traderID, InputAsset: usdcAsset, Amount: amt(100), OutputAsset: hubAsset}, ErrPaused)
	f.expectErr(AddLiquidity{User: providerID, Pool: usdcAsset, HubAmount: amt(1), AssetAmount: amt(1)}, ErrPaused)

	rehomed := testParams()
	rehomed.HubAsset = "other"
	f.expectErr(UpdateParams{Sender: managerID, Params: rehomed}, ErrInvalidParams)

	f.apply(UpdateParams{Sender: managerID, Params: testParams()})
	f.apply(Swap{Sender: traderID, InputAsset: usdcAsset, Amount: amt(100), OutputAsset: hubAsset})
}

func TestFailedIntentLeavesStoreUntouched(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(usdcAsset, 1_000_000, 1_000_000, false)
	before := f.store.Len()
	f.expectErr(Swap{Sender: traderID, InputAsset: usdcAsset, Amount: amt(100), OutputAsset: hubAsset, MinReceived: amt(1_000)}, ErrSlippage)
	require.Equal(t, before, f.store.Len())
	assertAmount(t, "protocol volume", f.protocol().Volumes.Day(0), 0)
}
