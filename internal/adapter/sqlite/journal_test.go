package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/weather-hedge-service/internal/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open("  ")
	require.Error(t, err)
}

func TestJournal_AppendAndList(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	at := time.Date(2021, time.April, 16, 12, 0, 0, 0, time.UTC)

	events := []domain.Event{
		domain.FundsUpdated(decimal.NewFromInt(1), at),
		domain.PaidInsurance("0xa", "p-1", decimal.RequireFromString("0.8"), at),
		domain.FundsUpdated(decimal.RequireFromString("0.2"), at),
	}
	require.NoError(t, j.LoadBatch(ctx, events))
	require.NoError(t, j.LoadBatch(ctx, nil))

	entries, err := j.List(ctx, 0, 10, "")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	got := make([]domain.Event, len(entries))
	for i, e := range entries {
		got[i] = e.Event
		if i > 0 {
			assert.Greater(t, e.Seq, entries[i-1].Seq)
		}
	}
	if diff := cmp.Diff(events, got); diff != "" {
		t.Fatalf("journal round trip (-want +got):\n%s", diff)
	}

	after, err := j.List(ctx, entries[0].Seq, 10, "")
	require.NoError(t, err)
	assert.Len(t, after, 2)

	paid, err := j.List(ctx, 0, 10, domain.EventPaidInsurance)
	require.NoError(t, err)
	require.Len(t, paid, 1)
	assert.Equal(t, "0xa", paid[0].Event.Beneficiary)

	limited, err := j.List(ctx, 0, 1, "")
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	_, err = j.List(ctx, 0, 0, "")
	require.Error(t, err)
	require.NoError(t, j.CheckReadiness(ctx))
}

func TestJournal_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	ctx := context.Background()

	j, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j.LoadBatch(ctx, []domain.Event{domain.FundsUpdated(decimal.NewFromInt(5), time.Now())}))
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()

	entries, err := j.List(ctx, 0, 10, "")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Event.Balance.Equal(decimal.NewFromInt(5)))
}
