package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/oesperto/comparador/internal/models"
	"github.com/oesperto/comparador/internal/realtime"
)

type switchConn struct {
	online atomic.Bool
}

func newConn(online bool) *switchConn {
	c := &switchConn{}
	c.online.Store(online)
	return c
}

func (c *switchConn) Online() bool {
	return c.online.Load()
}

type recordingToaster struct {
	mu     sync.Mutex
	toasts []models.Notification
}

func (r *recordingToaster) Toast(_ uuid.UUID, n models.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toasts = append(r.toasts, n)
}

func (r *recordingToaster) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.toasts)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []realtime.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e realtime.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) published() []realtime.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]realtime.Event(nil), p.events...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleComparison() models.ComparisonInput {
	return models.ComparisonInput{
		Products: []models.ComparisonProduct{
			{Name: "Arroz", Quantity: 2, Unit: "kg", Prices: map[string]float64{"a": 5, "b": 4}},
			{Name: "Feijão", Quantity: 1, Unit: "kg", Prices: map[string]float64{"a": 3}},
		},
		Stores: []models.Store{{ID: "a", Name: "Atacadão"}, {ID: "b", Name: "Extra"}},
	}
}

func sampleContribution() models.ContributionInput {
	return models.ContributionInput{
		ProductName: "Café Pilão 500g",
		Price:       18.9,
		StoreName:   "Assaí",
		City:        "Recife",
		State:       "pe",
	}
}
