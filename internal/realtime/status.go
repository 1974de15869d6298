package realtime

// Status is the closed set of channel states reported to a StatusFunc.
// Anything the transport reports outside the known set maps to StatusUnknown.
type Status int

const (
	StatusUnknown Status = iota
	StatusSubscribed
	StatusChannelError
	StatusTimedOut
	StatusClosed
)

func ParseStatus(s string) Status {
	switch s {
	case "SUBSCRIBED":
		return StatusSubscribed
	case "CHANNEL_ERROR":
		return StatusChannelError
	case "TIMED_OUT":
		return StatusTimedOut
	case "CLOSED":
		return StatusClosed
	default:
		return StatusUnknown
	}
}

func (s Status) String() string {
	switch s {
	case StatusSubscribed:
		return "SUBSCRIBED"
	case StatusChannelError:
		return "CHANNEL_ERROR"
	case StatusTimedOut:
		return "TIMED_OUT"
	case StatusClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Failed reports whether the status means the subscription is not delivering.
func (s Status) Failed() bool {
	return s == StatusChannelError || s == StatusTimedOut || s == StatusClosed
}
