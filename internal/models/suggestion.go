package models

import (
	"time"

	"github.com/google/uuid"
)

type SuggestionStatus string

const (
	SuggestionPending     SuggestionStatus = "pending"
	SuggestionApproved    SuggestionStatus = "approved"
	SuggestionRejected    SuggestionStatus = "rejected"
	SuggestionImplemented SuggestionStatus = "implemented"
)

func (s SuggestionStatus) Valid() bool {
	switch s {
	case SuggestionPending, SuggestionApproved, SuggestionRejected, SuggestionImplemented:
		return true
	}
	return false
}

type Suggestion struct {
	ID          uuid.UUID        `json:"id"`
	UserID      uuid.UUID        `json:"user_id"`
	UserName    string           `json:"user_name"`
	Type        string           `json:"type"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Status      SuggestionStatus `json:"status"`
	AdminNotes  string           `json:"admin_notes,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   *time.Time       `json:"updated_at,omitempty"`
}

type SuggestionInput struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description"`
}
