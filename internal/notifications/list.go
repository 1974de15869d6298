package notifications

import (
	"sync"

	"github.com/oesperto/comparador/internal/models"
)

// List holds the most recent notifications, newest first, unique by ID.
type List struct {
	mu    sync.RWMutex
	cap   int
	items []models.Notification
}

func NewList(capacity int) *List {
	if capacity <= 0 {
		capacity = 10
	}
	return &List{cap: capacity}
}

// Add puts n at the front. It reports false and changes nothing when an entry
// with the same ID is already held.
func (l *List) Add(n models.Notification) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.indexOf(n.ID) >= 0 {
		return false
	}
	l.items = append([]models.Notification{n}, l.items...)
	if len(l.items) > l.cap {
		l.items = l.items[:l.cap]
	}
	return true
}

// Seed appends older notifications behind the current ones, e.g. history
// loaded from the backend.
func (l *List) Seed(older []models.Notification) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, n := range older {
		if len(l.items) >= l.cap {
			return
		}
		if l.indexOf(n.ID) < 0 {
			l.items = append(l.items, n)
		}
	}
}

func (l *List) Items() []models.Notification {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]models.Notification(nil), l.items...)
}

func (l *List) UnreadCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	count := 0
	for _, n := range l.items {
		if !n.Read {
			count++
		}
	}
	return count
}

func (l *List) MarkRead(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.indexOf(id)
	if i < 0 {
		return false
	}
	l.items[i].Read = true
	return true
}

func (l *List) MarkAllRead() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.items {
		l.items[i].Read = true
	}
}

func (l *List) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = nil
}

func (l *List) indexOf(id string) int {
	for i, n := range l.items {
		if n.ID == id {
			return i
		}
	}
	return -1
}
