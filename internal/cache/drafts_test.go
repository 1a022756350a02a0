package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fertility-cds-server/internal/domain"
)

func createTestCache(t *testing.T) *DraftCache {
	t.Helper()

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		t.Skip("REDIS_URL not set, skipping Redis tests")
	}

	c, err := NewDraftCache(context.Background(), domain.CacheConfig{RedisURL: redisURL, DraftTTL: time.Minute})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestDraftKey(t *testing.T) {
	assert.Equal(t, "fertility-cds:draft:abc", draftKey("abc"))
}

func TestNewDraftCache_InvalidURL(t *testing.T) {
	_, err := NewDraftCache(context.Background(), domain.CacheConfig{RedisURL: "not-a-url://"})
	assert.Error(t, err)
}

func TestDraftCache_RoundTrip(t *testing.T) {
	c := createTestCache(t)
	ctx := context.Background()

	draft := domain.DraftSnapshot{
		SessionID:   uuid.NewString(),
		Observation: domain.Observation{AMHNgMl: domain.Float(0.8)},
		Navigator:   domain.NavigatorState{CurrentID: "maleEvaluation", History: []string{"start", "maleEvaluation"}},
		Prescription: domain.Prescription{Lines: []domain.PrescriptionLine{
			{TradeName: "DHEA", Dosage: "25 mg TDS", Quantity: 2},
		}},
		UpdatedAt: time.Now().UTC().Truncate(time.Second),
	}

	require.NoError(t, c.SaveDraft(ctx, draft))

	loaded, found, err := c.LoadDraft(ctx, draft.SessionID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, draft.Navigator, loaded.Navigator)
	assert.Equal(t, draft.Prescription, loaded.Prescription)
	assert.InDelta(t, 0.8, *loaded.Observation.AMHNgMl, 1e-9)

	require.NoError(t, c.DeleteDraft(ctx, draft.SessionID))
	_, found, err = c.LoadDraft(ctx, draft.SessionID)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDraftCache_Miss(t *testing.T) {
	c := createTestCache(t)

	draft, found, err := c.LoadDraft(context.Background(), uuid.NewString())
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, draft)
}
