package offline

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oesperto/comparador/internal/models"
)

const (
	comparisonsKey     = "offline_comparisons"
	contributionsKey   = "offline_price_contributions"
	comparisonCountKey = "offline_comparison_count"
	lastSyncKey        = "offline_last_sync"
)

var (
	// ErrQueueFull is returned when a collection is at capacity and holds only
	// unsynced records. Nothing is evicted in that case.
	ErrQueueFull      = errors.New("offline storage is full: sync pending data before saving more")
	ErrRecordNotFound = errors.New("offline record not found")
)

type Stats struct {
	PendingComparisons   int        `json:"pending_comparisons"`
	PendingContributions int        `json:"pending_contributions"`
	ComparisonCount      int        `json:"comparison_count"`
	LastSync             *time.Time `json:"last_sync,omitempty"`
}

// Queue is the local durable queue of comparisons and price contributions.
// Each collection is stored as one JSON blob and rewritten whole; mu keeps the
// read-modify-write atomic within this process. Two processes sharing the same
// KV still race with last write wins.
type Queue struct {
	kv         KV
	maxRecords int
	now        func() time.Time
	logger     *slog.Logger
	mu         sync.Mutex
}

// NewQueue returns a queue over kv. maxRecords <= 0 disables the per-collection cap.
func NewQueue(kv KV, maxRecords int) *Queue {
	return &Queue{kv: kv, maxRecords: maxRecords, now: time.Now, logger: slog.Default()}
}

func (q *Queue) WithLogger(logger *slog.Logger) *Queue {
	q.logger = logger.With("component", "offline-queue")
	return q
}

func (q *Queue) SaveOfflineComparison(userID uuid.UUID, input models.ComparisonInput) (models.QueuedComparison, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	records, err := loadCollection[models.QueuedComparison](q.kv, comparisonsKey)
	if err != nil {
		return models.QueuedComparison{}, err
	}

	record := models.QueuedComparison{
		ID:        models.OfflineComparisonPrefix + uuid.NewString(),
		UserID:    userID,
		Products:  input.Products,
		Stores:    input.Stores,
		CreatedAt: q.now().UTC(),
		Synced:    false,
	}

	records, err = enforceCap(append(records, record), q.maxRecords, func(r models.QueuedComparison) bool { return r.Synced })
	if err != nil {
		return models.QueuedComparison{}, err
	}
	if err := storeCollection(q.kv, comparisonsKey, records); err != nil {
		return models.QueuedComparison{}, err
	}
	// the record is stored; a counter failure must not fail the save
	if err := q.incrementCount(); err != nil {
		q.logger.Warn("failed to bump offline comparison count", "id", record.ID, "error", err)
	}
	return record, nil
}

func (q *Queue) GetOfflineComparisons() ([]models.QueuedComparison, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return loadCollection[models.QueuedComparison](q.kv, comparisonsKey)
}

func (q *Queue) GetUnsyncedComparisons() ([]models.QueuedComparison, error) {
	all, err := q.GetOfflineComparisons()
	if err != nil {
		return nil, err
	}
	return filter(all, func(r models.QueuedComparison) bool { return !r.Synced }), nil
}

func (q *Queue) MarkComparisonSynced(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	records, err := loadCollection[models.QueuedComparison](q.kv, comparisonsKey)
	if err != nil {
		return err
	}
	for i := range records {
		if records[i].ID == id {
			records[i].Synced = true
			return storeCollection(q.kv, comparisonsKey, records)
		}
	}
	return ErrRecordNotFound
}

func (q *Queue) DeleteOfflineComparison(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	records, err := loadCollection[models.QueuedComparison](q.kv, comparisonsKey)
	if err != nil {
		return err
	}
	kept := filter(records, func(r models.QueuedComparison) bool { return r.ID != id })
	if len(kept) == len(records) {
		return ErrRecordNotFound
	}
	return storeCollection(q.kv, comparisonsKey, kept)
}

func (q *Queue) SaveOfflineContribution(userID uuid.UUID, userName string, input models.ContributionInput) (models.QueuedContribution, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	records, err := loadCollection[models.QueuedContribution](q.kv, contributionsKey)
	if err != nil {
		return models.QueuedContribution{}, err
	}

	record := models.QueuedContribution{
		ID:          models.OfflineContributionPrefix + uuid.NewString(),
		UserID:      userID,
		UserName:    userName,
		ProductName: input.ProductName,
		Price:       input.Price,
		StoreName:   input.StoreName,
		City:        input.City,
		State:       input.State,
		Quantity:    input.Quantity,
		Unit:        input.Unit,
		CreatedAt:   q.now().UTC(),
	}

	records, err = enforceCap(append(records, record), q.maxRecords, func(r models.QueuedContribution) bool { return r.Synced })
	if err != nil {
		return models.QueuedContribution{}, err
	}
	if err := storeCollection(q.kv, contributionsKey, records); err != nil {
		return models.QueuedContribution{}, err
	}
	return record, nil
}

func (q *Queue) GetOfflineContributions() ([]models.QueuedContribution, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return loadCollection[models.QueuedContribution](q.kv, contributionsKey)
}

func (q *Queue) GetUnsyncedContributions() ([]models.QueuedContribution, error) {
	all, err := q.GetOfflineContributions()
	if err != nil {
		return nil, err
	}
	return filter(all, func(r models.QueuedContribution) bool { return !r.Synced }), nil
}

func (q *Queue) MarkContributionSynced(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	records, err := loadCollection[models.QueuedContribution](q.kv, contributionsKey)
	if err != nil {
		return err
	}
	for i := range records {
		if records[i].ID == id {
			records[i].Synced = true
			return storeCollection(q.kv, contributionsKey, records)
		}
	}
	return ErrRecordNotFound
}

// ClearSyncedData removes every record already replayed and reports how many
// were removed.
func (q *Queue) ClearSyncedData() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	comparisons, err := loadCollection[models.QueuedComparison](q.kv, comparisonsKey)
	if err != nil {
		return 0, err
	}
	contributions, err := loadCollection[models.QueuedContribution](q.kv, contributionsKey)
	if err != nil {
		return 0, err
	}

	keptComparisons := filter(comparisons, func(r models.QueuedComparison) bool { return !r.Synced })
	keptContributions := filter(contributions, func(r models.QueuedContribution) bool { return !r.Synced })

	if err := storeCollection(q.kv, comparisonsKey, keptComparisons); err != nil {
		return 0, err
	}
	if err := storeCollection(q.kv, contributionsKey, keptContributions); err != nil {
		return 0, err
	}
	removed := len(comparisons) - len(keptComparisons) + len(contributions) - len(keptContributions)
	return removed, nil
}

func (q *Queue) ClearAllOfflineData() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, key := range []string{comparisonsKey, contributionsKey, comparisonCountKey, lastSyncKey} {
		if err := q.kv.RemoveItem(key); err != nil {
			return err
		}
	}
	return nil
}

// ComparisonCount is the number of comparisons ever saved offline since the
// last full wipe. Plan limits are enforced against it.
func (q *Queue) ComparisonCount() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count()
}

func (q *Queue) LastSync() (time.Time, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	raw, ok, err := q.kv.GetItem(lastSyncKey)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to parse last sync: %w", err)
	}
	return t, true, nil
}

func (q *Queue) SetLastSync(t time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.kv.SetItem(lastSyncKey, t.UTC().Format(time.RFC3339Nano))
}

func (q *Queue) Stats() (Stats, error) {
	comparisons, err := q.GetUnsyncedComparisons()
	if err != nil {
		return Stats{}, err
	}
	contributions, err := q.GetUnsyncedContributions()
	if err != nil {
		return Stats{}, err
	}
	count, err := q.ComparisonCount()
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{
		PendingComparisons:   len(comparisons),
		PendingContributions: len(contributions),
		ComparisonCount:      count,
	}
	last, ok, err := q.LastSync()
	if err != nil {
		return Stats{}, err
	}
	if ok {
		stats.LastSync = &last
	}
	return stats, nil
}

func (q *Queue) count() (int, error) {
	raw, ok, err := q.kv.GetItem(comparisonCountKey)
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("failed to parse comparison count: %w", err)
	}
	return n, nil
}

func (q *Queue) incrementCount() error {
	n, err := q.count()
	if err != nil {
		return err
	}
	return q.kv.SetItem(comparisonCountKey, strconv.Itoa(n+1))
}

func loadCollection[T any](kv KV, key string) ([]T, error) {
	raw, ok, err := kv.GetItem(key)
	if err != nil {
		return nil, err
	}
	if !ok || raw == "" {
		return []T{}, nil
	}
	var items []T
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return items, nil
}

func storeCollection[T any](kv KV, key string, items []T) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return kv.SetItem(key, string(data))
}

// enforceCap drops the oldest synced records until records fits in max.
func enforceCap[T any](records []T, max int, synced func(T) bool) ([]T, error) {
	if max <= 0 || len(records) <= max {
		return records, nil
	}
	excess := len(records) - max
	kept := make([]T, 0, len(records))
	for _, r := range records {
		if excess > 0 && synced(r) {
			excess--
			continue
		}
		kept = append(kept, r)
	}
	if excess > 0 {
		return nil, ErrQueueFull
	}
	return kept, nil
}

func filter[T any](items []T, keep func(T) bool) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if keep(it) {
			out = append(out, it)
		}
	}
	return out
}
