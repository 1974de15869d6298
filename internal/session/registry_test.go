package session

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oesperto/comparador/internal/models"
	"github.com/oesperto/comparador/internal/notifications"
	"github.com/oesperto/comparador/internal/realtime"
	"github.com/oesperto/comparador/internal/repositories/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newRegistry(t *testing.T) (*Registry, *realtime.MemoryBroker) {
	t.Helper()
	ctrl := gomock.NewController(t)
	store := mocks.NewMockNotificationRepository(ctrl)
	permissions := mocks.NewMockPermissionRepository(ctrl)
	store.EXPECT().ListByUser(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()
	permissions.EXPECT().Get(gomock.Any(), gomock.Any()).Return(models.PermissionDefault, nil).AnyTimes()

	broker := realtime.NewMemoryBroker()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	factory := func() *notifications.Manager {
		return notifications.NewManager(broker, nil, store, permissions, nil, notifications.DefaultConfig(), logger)
	}
	r := NewRegistry(factory, time.Minute, logger)
	t.Cleanup(r.CloseAll)
	return r, broker
}

func TestRegistry_OpenIsIdempotent(t *testing.T) {
	r, broker := newRegistry(t)
	user := notifications.User{ID: uuid.New(), Name: "Ana"}

	first := r.Open(context.Background(), user)
	second := r.Open(context.Background(), user)

	assert.Same(t, first, second)
	assert.Equal(t, 2, broker.Active())
	assert.Equal(t, 2, broker.Subscribes())

	got, ok := r.Get(user.ID)
	require.True(t, ok)
	assert.Same(t, first, got)
}

func TestRegistry_AdminChangeRebuildsChannels(t *testing.T) {
	r, broker := newRegistry(t)
	user := notifications.User{ID: uuid.New(), Name: "Ana"}
	r.Open(context.Background(), user)

	user.IsAdmin = true
	s := r.Open(context.Background(), user)

	assert.True(t, s.User.IsAdmin)
	assert.Equal(t, 4, broker.Active())
}

func TestRegistry_Close(t *testing.T) {
	r, broker := newRegistry(t)
	user := notifications.User{ID: uuid.New()}
	r.Open(context.Background(), user)

	r.Close(user.ID)
	r.Close(user.ID)

	_, ok := r.Get(user.ID)
	assert.False(t, ok)
	assert.Equal(t, 0, broker.Active())
}
