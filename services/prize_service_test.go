package services

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrizeService_FirstPrizeSticks(t *testing.T) {
	store := newFakeStore()
	svc := NewPrizeService(store, "origin-1")
	ctx := context.Background()

	// First correct answer wins a mug.
	first, err := svc.RecordPlay(ctx, "part-1", "sess-1", "q-1", true, "Mug", decimal.NewFromInt(10), nil)
	require.NoError(t, err)
	assert.Equal(t, "Mug", first.Play.PrizeWon)
	assert.False(t, first.AlreadyWonPrize)

	// A later correct answer cannot award a second prize; the play is
	// still recorded with its score.
	second, err := svc.RecordPlay(ctx, "part-1", "sess-1", "q-2", true, "Cap", decimal.NewFromInt(15), nil)
	require.NoError(t, err)
	assert.Empty(t, second.Play.PrizeWon)
	assert.True(t, second.AlreadyWonPrize)

	plays, err := store.ListPlays(ctx, "part-1")
	require.NoError(t, err)
	require.Len(t, plays, 2)

	count, err := store.CountAwardedPrizes(ctx, "part-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPrizeService_NoCandidateSkipsCheck(t *testing.T) {
	store := newFakeStore()
	svc := NewPrizeService(store, "origin-1")
	ctx := context.Background()

	result, err := svc.RecordPlay(ctx, "part-1", "sess-1", "q-1", false, "", decimal.NewFromInt(0), nil)
	require.NoError(t, err)
	assert.Empty(t, result.Play.PrizeWon)
	assert.False(t, result.AlreadyWonPrize)
}

func TestPrizeService_DifferentParticipantsWinIndependently(t *testing.T) {
	store := newFakeStore()
	svc := NewPrizeService(store, "origin-1")
	ctx := context.Background()

	first, err := svc.RecordPlay(ctx, "part-1", "sess-1", "q-1", true, "Mug", decimal.NewFromInt(10), nil)
	require.NoError(t, err)
	assert.Equal(t, "Mug", first.Play.PrizeWon)

	other, err := svc.RecordPlay(ctx, "part-2", "sess-1", "q-1", true, "Cap", decimal.NewFromInt(10), nil)
	require.NoError(t, err)
	assert.Equal(t, "Cap", other.Play.PrizeWon)
	assert.False(t, other.AlreadyWonPrize)
}

func TestPrizeService_RecordsOriginAndDetails(t *testing.T) {
	store := newFakeStore()
	svc := NewPrizeService(store, "kiosk-abc")
	ctx := context.Background()

	details := map[string]any{"choices": []string{"a", "b"}, "picked": "b"}
	result, err := svc.RecordPlay(ctx, "part-1", "sess-1", "q-1", true, "", decimal.NewFromInt(5), details)
	require.NoError(t, err)
	assert.Equal(t, "kiosk-abc", result.Play.Origin)
	assert.Equal(t, details, result.Play.GameDetails)
}

func TestPrizeService_TotalScore(t *testing.T) {
	store := newFakeStore()
	svc := NewPrizeService(store, "origin-1")
	ctx := context.Background()

	_, err := svc.RecordPlay(ctx, "part-1", "sess-1", "q-1", true, "", decimal.RequireFromString("10.5"), nil)
	require.NoError(t, err)
	_, err = svc.RecordPlay(ctx, "part-1", "sess-1", "q-2", false, "", decimal.RequireFromString("2.25"), nil)
	require.NoError(t, err)
	_, err = svc.RecordPlay(ctx, "part-2", "sess-1", "q-1", true, "", decimal.NewFromInt(100), nil)
	require.NoError(t, err)

	total, err := svc.TotalScore(ctx, "part-1")
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.RequireFromString("12.75")), "got %s", total)
}
