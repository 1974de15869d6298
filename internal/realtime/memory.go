package realtime

import (
	"context"
	"errors"
	"strings"
	"sync"
)

var ErrInjected = errors.New("injected channel failure")

// MemoryBroker is an in-process Client and Publisher. Subscriptions report
// their status synchronously from Subscribe. FailSubscriptions makes the next
// n Subscribe calls report StatusChannelError; FailChannels does the same for
// every channel whose name starts with a prefix, indefinitely.
type MemoryBroker struct {
	mu         sync.Mutex
	channels   map[*memoryChannel]struct{}
	failures   int
	broken     []string
	subscribes int
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{channels: make(map[*memoryChannel]struct{})}
}

func (b *MemoryBroker) FailSubscriptions(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = n
}

func (b *MemoryBroker) FailChannels(prefix string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.broken = append(b.broken, prefix)
}

func (b *MemoryBroker) isBroken(name string) bool {
	for _, prefix := range b.broken {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// Subscribes counts every Subscribe call made on the broker's channels.
func (b *MemoryBroker) Subscribes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subscribes
}

// Active counts subscribed channels.
func (b *MemoryBroker) Active() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.channels)
}

func (b *MemoryBroker) Channel(name string) Channel {
	return &memoryChannel{name: name, broker: b}
}

func (b *MemoryBroker) Publish(_ context.Context, event Event) error {
	b.mu.Lock()
	var targets []binding
	for ch := range b.channels {
		ch.mu.Lock()
		for _, bd := range ch.bindings {
			if bd.spec.Matches(event) {
				targets = append(targets, bd)
			}
		}
		ch.mu.Unlock()
	}
	b.mu.Unlock()

	for _, bd := range targets {
		bd.handler(event)
	}
	return nil
}

type memoryChannel struct {
	name     string
	broker   *MemoryBroker
	mu       sync.Mutex
	bindings []binding
}

func (ch *memoryChannel) Name() string {
	return ch.name
}

func (ch *memoryChannel) On(spec EventSpec, handler Handler) Channel {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.bindings = append(ch.bindings, binding{spec: spec, handler: handler})
	return ch
}

func (ch *memoryChannel) Subscribe(onStatus StatusFunc) {
	b := ch.broker
	b.mu.Lock()
	b.subscribes++
	if b.isBroken(ch.name) {
		b.mu.Unlock()
		onStatus(StatusChannelError, ErrInjected)
		return
	}
	if b.failures > 0 {
		b.failures--
		b.mu.Unlock()
		onStatus(StatusChannelError, ErrInjected)
		return
	}
	b.channels[ch] = struct{}{}
	b.mu.Unlock()
	onStatus(StatusSubscribed, nil)
}

func (ch *memoryChannel) Unsubscribe() error {
	b := ch.broker
	b.mu.Lock()
	delete(b.channels, ch)
	b.mu.Unlock()
	return nil
}
