// Package realtime carries backend change events to subscribers and models
// the retry-then-poll lifecycle of a subscription group.
package realtime

import (
	"context"
	"fmt"
)

type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
	EventAll    EventType = "*"
)

// Event is a row change on a backend table. New and Old hold column values;
// Old is empty for inserts.
type Event struct {
	Table string         `json:"table"`
	Type  EventType      `json:"type"`
	New   map[string]any `json:"new"`
	Old   map[string]any `json:"old,omitempty"`
}

// Filter restricts a subscription to rows where Column equals Value.
type Filter struct {
	Column string
	Value  string
}

type EventSpec struct {
	Table  string
	Type   EventType
	Filter *Filter
}

func (s EventSpec) Matches(e Event) bool {
	if s.Table != e.Table {
		return false
	}
	if s.Type != EventAll && s.Type != e.Type {
		return false
	}
	if s.Filter != nil {
		v, ok := e.New[s.Filter.Column]
		if !ok || fmt.Sprint(v) != s.Filter.Value {
			return false
		}
	}
	return true
}

type Handler func(Event)

type StatusFunc func(status Status, err error)

// Channel is one subscription. Bindings are added with On before Subscribe;
// Subscribe returns immediately and reports progress through the StatusFunc.
type Channel interface {
	Name() string
	On(spec EventSpec, handler Handler) Channel
	Subscribe(onStatus StatusFunc)
	Unsubscribe() error
}

type Client interface {
	Channel(name string) Channel
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// topic is the pub/sub topic events of a table travel on.
func topic(table string) string {
	return "realtime:" + table
}
