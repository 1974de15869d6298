package offline

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oesperto/comparador/internal/database"
	"github.com/oesperto/comparador/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteQueue(t *testing.T, maxRecords int) *Queue {
	t.Helper()
	db, err := database.OpenLocalDB(":memory:")
	require.NoError(t, err, "Failed to open local db")
	t.Cleanup(func() { db.Close() })
	return NewQueue(NewSQLiteKV(db), maxRecords)
}

func sampleComparison() models.ComparisonInput {
	return models.ComparisonInput{
		Products: []models.ComparisonProduct{
			{Name: "Arroz", Quantity: 2, Unit: "kg", Prices: map[string]float64{"a": 5, "b": 4}},
		},
		Stores: []models.Store{{ID: "a", Name: "Mercado A"}, {ID: "b", Name: "Mercado B"}},
	}
}

func sampleContribution() models.ContributionInput {
	return models.ContributionInput{
		ProductName: "Feijão", Price: 7.49, StoreName: "Mercado A",
		City: "Recife", State: "PE", Quantity: 1, Unit: "kg",
	}
}

// TestQueue_SaveComparison tests a queued comparison lands unsynced and bumps the counter
func TestQueue_SaveComparison(t *testing.T) {
	q := newSQLiteQueue(t, 0)
	userID := uuid.New()

	before, err := q.ComparisonCount()
	require.NoError(t, err)

	// ACT
	record, err := q.SaveOfflineComparison(userID, sampleComparison())

	// ASSERT
	require.NoError(t, err)
	assert.True(t, models.IsOfflineID(record.ID), "ID should carry the offline prefix")
	assert.False(t, record.Synced)

	unsynced, err := q.GetUnsyncedComparisons()
	require.NoError(t, err)
	require.Len(t, unsynced, 1)
	assert.Equal(t, record.ID, unsynced[0].ID)
	assert.Equal(t, userID, unsynced[0].UserID)
	assert.Equal(t, 4.0, unsynced[0].Products[0].Prices["b"])

	after, err := q.ComparisonCount()
	require.NoError(t, err)
	assert.Equal(t, before+1, after, "Counter should increment by exactly one")
}

func TestQueue_MarkSyncedAndClear(t *testing.T) {
	q := newSQLiteQueue(t, 0)
	userID := uuid.New()

	first, err := q.SaveOfflineComparison(userID, sampleComparison())
	require.NoError(t, err)
	_, err = q.SaveOfflineComparison(userID, sampleComparison())
	require.NoError(t, err)
	contrib, err := q.SaveOfflineContribution(userID, "Ana", sampleContribution())
	require.NoError(t, err)

	require.NoError(t, q.MarkComparisonSynced(first.ID))
	require.NoError(t, q.MarkContributionSynced(contrib.ID))
	assert.ErrorIs(t, q.MarkComparisonSynced("offline_missing"), ErrRecordNotFound)

	unsynced, err := q.GetUnsyncedComparisons()
	require.NoError(t, err)
	assert.Len(t, unsynced, 1)

	removed, err := q.ClearSyncedData()
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	all, err := q.GetOfflineComparisons()
	require.NoError(t, err)
	assert.Len(t, all, 1)
	contributions, err := q.GetOfflineContributions()
	require.NoError(t, err)
	assert.Empty(t, contributions)

	// counter survives the synced sweep
	count, err := q.ComparisonCount()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestQueue_ClearAllOfflineData(t *testing.T) {
	q := newSQLiteQueue(t, 0)
	_, err := q.SaveOfflineComparison(uuid.New(), sampleComparison())
	require.NoError(t, err)
	require.NoError(t, q.SetLastSync(time.Now()))

	require.NoError(t, q.ClearAllOfflineData())

	stats, err := q.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.PendingComparisons)
	assert.Equal(t, 0, stats.ComparisonCount)
	assert.Nil(t, stats.LastSync)
}

// TestQueue_CapEvictsSyncedFirst tests the quota policy keeps unsynced writes
func TestQueue_CapEvictsSyncedFirst(t *testing.T) {
	q := NewQueue(NewMemoryKV(), 2)
	userID := uuid.New()

	first, err := q.SaveOfflineContribution(userID, "Ana", sampleContribution())
	require.NoError(t, err)
	second, err := q.SaveOfflineContribution(userID, "Ana", sampleContribution())
	require.NoError(t, err)
	require.NoError(t, q.MarkContributionSynced(first.ID))

	// ACT: third write evicts the synced one
	third, err := q.SaveOfflineContribution(userID, "Ana", sampleContribution())
	require.NoError(t, err)

	all, err := q.GetOfflineContributions()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID)
	assert.Equal(t, third.ID, all[1].ID)

	// ACT: everything left is unsynced, so the next write is refused
	_, err = q.SaveOfflineContribution(userID, "Ana", sampleContribution())
	assert.ErrorIs(t, err, ErrQueueFull)

	all, err = q.GetOfflineContributions()
	require.NoError(t, err)
	assert.Len(t, all, 2, "Refused write must not touch stored records")
}

// counterFailKV refuses writes to the comparison counter only.
type counterFailKV struct {
	*MemoryKV
}

func (kv counterFailKV) SetItem(key, value string) error {
	if key == comparisonCountKey {
		return errors.New("disk full")
	}
	return kv.MemoryKV.SetItem(key, value)
}

// TestQueue_CounterFailureKeepsSave tests a stored record is reported as saved
// even when the counter cannot be bumped, so a retry does not queue it twice
func TestQueue_CounterFailureKeepsSave(t *testing.T) {
	q := NewQueue(counterFailKV{NewMemoryKV()}, 0)

	// ACT
	record, err := q.SaveOfflineComparison(uuid.New(), sampleComparison())

	// ASSERT
	require.NoError(t, err)
	assert.True(t, models.IsOfflineID(record.ID))

	unsynced, err := q.GetUnsyncedComparisons()
	require.NoError(t, err)
	require.Len(t, unsynced, 1)
	assert.Equal(t, record.ID, unsynced[0].ID)

	count, err := q.ComparisonCount()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestQueue_DeleteOfflineComparison(t *testing.T) {
	q := NewQueue(NewMemoryKV(), 0)
	record, err := q.SaveOfflineComparison(uuid.New(), sampleComparison())
	require.NoError(t, err)

	require.NoError(t, q.DeleteOfflineComparison(record.ID))
	assert.ErrorIs(t, q.DeleteOfflineComparison(record.ID), ErrRecordNotFound)
}

func TestSQLiteKV_RoundTrip(t *testing.T) {
	db, err := database.OpenLocalDB(":memory:")
	require.NoError(t, err)
	defer db.Close()
	kv := NewSQLiteKV(db)

	_, ok, err := kv.GetItem("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.SetItem("k", "v1"))
	require.NoError(t, kv.SetItem("k", "v2"))
	v, ok, err := kv.GetItem("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v2", v)

	require.NoError(t, kv.RemoveItem("k"))
	_, ok, err = kv.GetItem("k")
	require.NoError(t, err)
	assert.False(t, ok)
}
