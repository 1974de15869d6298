package models

import (
	"time"

	"github.com/google/uuid"
)

// OfflineContributionPrefix marks contributions that only exist in the local queue.
const OfflineContributionPrefix = "offline_contrib_"

type ContributionInput struct {
	ProductName string  `json:"product_name"`
	Price       float64 `json:"price"`
	StoreName   string  `json:"store_name"`
	City        string  `json:"city"`
	State       string  `json:"state"`
	Quantity    float64 `json:"quantity"`
	Unit        string  `json:"unit"`
}

type PriceContribution struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	UserName    string     `json:"user_name"`
	ProductName string     `json:"product_name"`
	Price       float64    `json:"price"`
	StoreName   string     `json:"store_name"`
	City        string     `json:"city"`
	State       string     `json:"state"`
	Quantity    float64    `json:"quantity"`
	Unit        string     `json:"unit"`
	Verified    bool       `json:"verified"`
	VerifiedBy  *uuid.UUID `json:"verified_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

type QueuedContribution struct {
	ID          string    `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	UserName    string    `json:"user_name"`
	ProductName string    `json:"product_name"`
	Price       float64   `json:"price"`
	StoreName   string    `json:"store_name"`
	City        string    `json:"city"`
	State       string    `json:"state"`
	Quantity    float64   `json:"quantity"`
	Unit        string    `json:"unit"`
	CreatedAt   time.Time `json:"created_at"`
	Synced      bool      `json:"synced"`
}

func (q QueuedContribution) Input() ContributionInput {
	return ContributionInput{
		ProductName: q.ProductName,
		Price:       q.Price,
		StoreName:   q.StoreName,
		City:        q.City,
		State:       q.State,
		Quantity:    q.Quantity,
		Unit:        q.Unit,
	}
}
