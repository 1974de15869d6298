package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// OfflineComparisonPrefix marks comparisons that only exist in the local queue.
const OfflineComparisonPrefix = "offline_"

type Store struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ComparisonProduct is one line of a comparison. Prices maps store ID to the
// unit price at that store; a missing key means the store does not price it.
type ComparisonProduct struct {
	Name     string             `json:"name"`
	Quantity float64            `json:"quantity"`
	Unit     string             `json:"unit"`
	Prices   map[string]float64 `json:"prices"`
}

type ComparisonInput struct {
	Products []ComparisonProduct `json:"products"`
	Stores   []Store             `json:"stores"`
}

type Comparison struct {
	ID        string              `json:"id"`
	UserID    uuid.UUID           `json:"user_id"`
	Products  []ComparisonProduct `json:"products"`
	Stores    []Store             `json:"stores"`
	CreatedAt time.Time           `json:"created_at"`
	Offline   bool                `json:"offline"`
}

type QueuedComparison struct {
	ID        string              `json:"id"`
	UserID    uuid.UUID           `json:"user_id"`
	Products  []ComparisonProduct `json:"products"`
	Stores    []Store             `json:"stores"`
	CreatedAt time.Time           `json:"created_at"`
	Synced    bool                `json:"synced"`
}

func (q QueuedComparison) Input() ComparisonInput {
	return ComparisonInput{Products: q.Products, Stores: q.Stores}
}

func (q QueuedComparison) Comparison() Comparison {
	return Comparison{
		ID:        q.ID,
		UserID:    q.UserID,
		Products:  q.Products,
		Stores:    q.Stores,
		CreatedAt: q.CreatedAt,
		Offline:   true,
	}
}

func IsOfflineID(id string) bool {
	return strings.HasPrefix(id, OfflineComparisonPrefix)
}
