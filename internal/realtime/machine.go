package realtime

import "time"

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateSubscribed
	StateRetrying
	// StateDegrading means the retry budget is spent and the fallback window
	// is running. A late success still wins.
	StateDegrading
	StateFallbackPolling
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateRetrying:
		return "retrying"
	case StateDegrading:
		return "degrading"
	case StateFallbackPolling:
		return "fallback_polling"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type Input int

const (
	InputSetup Input = iota
	InputSubscribed
	InputFailed
	InputRetryTimer
	InputFallbackTimer
	InputTeardown
)

type EffectKind int

const (
	EffectSubscribe EffectKind = iota
	EffectScheduleRetry
	EffectScheduleFallback
	EffectCancelTimers
	EffectStartPolling
	EffectStopPolling
	EffectCloseChannels
)

type Effect struct {
	Kind  EffectKind
	Delay time.Duration
}

type Policy struct {
	MaxRetries    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	FallbackDelay time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:    3,
		BaseDelay:     time.Second,
		MaxDelay:      30 * time.Second,
		FallbackDelay: 5 * time.Second,
	}
}

// Backoff is the wait before retry attempt n: BaseDelay*2^n capped at MaxDelay.
func (p Policy) Backoff(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return d
}

// Machine is the lifecycle of one subscription group. It is a value; callers
// keep the Machine returned by Transition.
type Machine struct {
	Policy  Policy
	State   State
	Attempt int
}

func NewMachine(p Policy) Machine {
	return Machine{Policy: p, State: StateIdle}
}

func (m Machine) Transition(in Input) (Machine, []Effect) {
	if in == InputTeardown {
		if m.State == StateClosed {
			return m, nil
		}
		m.State = StateClosed
		return m, []Effect{{Kind: EffectCancelTimers}, {Kind: EffectStopPolling}, {Kind: EffectCloseChannels}}
	}

	switch m.State {
	case StateIdle:
		if in == InputSetup {
			m.State = StateConnecting
			m.Attempt = 0
			return m, []Effect{{Kind: EffectSubscribe}}
		}

	case StateConnecting:
		switch in {
		case InputSubscribed:
			m.State = StateSubscribed
			m.Attempt = 0
			return m, nil
		case InputFailed:
			return m.fail()
		}

	case StateSubscribed:
		if in == InputFailed {
			return m.fail()
		}

	case StateRetrying:
		if in == InputRetryTimer {
			m.State = StateConnecting
			return m, []Effect{{Kind: EffectSubscribe}}
		}

	case StateDegrading:
		switch in {
		case InputSubscribed:
			m.State = StateSubscribed
			m.Attempt = 0
			return m, []Effect{{Kind: EffectCancelTimers}}
		case InputFallbackTimer:
			m.State = StateFallbackPolling
			return m, []Effect{{Kind: EffectStartPolling}}
		}

	case StateFallbackPolling:
		if in == InputSubscribed {
			m.State = StateSubscribed
			m.Attempt = 0
			return m, []Effect{{Kind: EffectStopPolling}}
		}
	}
	return m, nil
}

func (m Machine) fail() (Machine, []Effect) {
	if m.Attempt >= m.Policy.MaxRetries {
		m.State = StateDegrading
		return m, []Effect{{Kind: EffectScheduleFallback, Delay: m.Policy.FallbackDelay}}
	}
	m.Attempt++
	m.State = StateRetrying
	return m, []Effect{{Kind: EffectScheduleRetry, Delay: m.Policy.Backoff(m.Attempt)}}
}
