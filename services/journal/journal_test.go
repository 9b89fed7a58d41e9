package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"earthexchange/native/dex"
	"earthexchange/storage"
)

func setupJournal(t *testing.T) *Journal {
	t.Helper()
	db, err := Open("sqlite", filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	return New(db)
}

func TestRecordAndCount(t *testing.T) {
	j := setupJournal(t)
	at := time.Date(2024, 12, 1, 12, 0, 0, 0, time.UTC)
	outcome := &dex.Outcome{
		Intent: "swap",
		Events: []dex.Event{
			{Type: dex.EventSwap, Attributes: map[string]string{"pools": "usdc"}},
			{Type: dex.EventBurned, Attributes: map[string]string{"class": "hub", "amount": "49"}},
		},
	}
	require.NoError(t, j.Record(context.Background(), at, outcome))
	require.NoError(t, j.Record(context.Background(), at.Add(time.Hour), &dex.Outcome{
		Intent: "swap",
		Events: []dex.Event{{Type: dex.EventSwap}},
	}))
	require.NoError(t, j.Record(context.Background(), at, &dex.Outcome{Intent: "fundRewards"}))

	counts, err := j.Counts(context.Background(), at)
	require.NoError(t, err)
	require.Equal(t, []EventCount{{Type: dex.EventBurned, Count: 1}, {Type: dex.EventSwap, Count: 2}}, counts)

	later, err := j.Counts(context.Background(), at.Add(30*time.Minute))
	require.NoError(t, err)
	require.Equal(t, []EventCount{{Type: dex.EventSwap, Count: 1}}, later)

	recent, err := j.Recent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.True(t, at.Add(time.Hour).Equal(recent[0].RecordedAt))
	attrs, err := recent[1].Decode()
	require.NoError(t, err)
	require.Equal(t, "hub", attrs["class"])
}

func TestSettleJournalsCommittedOutcomes(t *testing.T) {
	j := setupJournal(t)
	engine := dex.NewEngine()
	store := storage.NewMemDB()
	now := time.Unix(1_700_006_400, 0).UTC()
	params := dex.DefaultParams()
	params.HubAsset = "erth"
	params.Manager = "gov"
	params.Custody = "vault"
	require.NoError(t, engine.Init(store, params))

	var fund uint256.Int
	fund.SetUint64(500)
	boom := errors.New("bank down")
	_, err := engine.Execute(context.Background(), store, now, dex.FundRewards{Asset: "erth", Amount: fund},
		j.Settle(now, func(context.Context, *dex.Outcome) error { return boom }))
	require.ErrorIs(t, err, boom)
	counts, err := j.Counts(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Empty(t, counts)

	_, err = engine.Execute(context.Background(), store, now, dex.FundRewards{Asset: "erth", Amount: fund}, j.Settle(now, nil))
	require.NoError(t, err)
	counts, err = j.Counts(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Equal(t, []EventCount{{Type: dex.EventRewardsFunded, Count: 1}}, counts)

	state, err := engine.Protocol(store, now)
	require.NoError(t, err)
	require.Equal(t, uint64(500), state.PendingReward.Uint64())
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "dsn")
	require.Error(t, err)
}
