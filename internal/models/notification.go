package models

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationInfo    NotificationType = "info"
	NotificationSuccess NotificationType = "success"
	NotificationWarning NotificationType = "warning"
	NotificationError   NotificationType = "error"
)

type Notification struct {
	ID        string           `json:"id"`
	UserID    uuid.UUID        `json:"user_id"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Type      NotificationType `json:"type"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"created_at"`
}

// NotificationPermission mirrors the host desktop-notification permission.
type NotificationPermission string

const (
	PermissionGranted NotificationPermission = "granted"
	PermissionDenied  NotificationPermission = "denied"
	PermissionDefault NotificationPermission = "default"
)

type ConnectionStatus struct {
	Connected     bool       `json:"connected"`
	Connecting    bool       `json:"connecting"`
	LastConnected *time.Time `json:"last_connected,omitempty"`
	RetryCount    int        `json:"retry_count"`
	UsingFallback bool       `json:"using_fallback"`
}
