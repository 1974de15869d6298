package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type flakyPinger struct {
	down atomic.Bool
}

func (p *flakyPinger) Ping(context.Context) error {
	if p.down.Load() {
		return errors.New("dial tcp: connection refused")
	}
	return nil
}

func TestConnectivityProbe_ReconnectHook(t *testing.T) {
	pinger := &flakyPinger{}
	pinger.down.Store(true)
	probe := NewConnectivityProbe(pinger, time.Second, testLogger())

	var reconnects atomic.Int32
	probe.OnReconnect(func(context.Context) { reconnects.Add(1) })

	assert.False(t, probe.Check(context.Background()))
	assert.False(t, probe.Online())
	assert.Equal(t, int32(0), reconnects.Load())

	pinger.down.Store(false)
	assert.True(t, probe.Check(context.Background()))
	assert.True(t, probe.Check(context.Background()))
	assert.Equal(t, int32(1), reconnects.Load(), "Only the offline to online edge should fire")

	pinger.down.Store(true)
	probe.Check(context.Background())
	pinger.down.Store(false)
	probe.Check(context.Background())
	assert.Equal(t, int32(2), reconnects.Load())
}
