package realtime

// State is the phase of the poll cycle.
type State int32

const (
	StateIdle State = iota
	StateFetching
	StateDecoding
	StateJoining
	StatePublished
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateDecoding:
		return "decoding"
	case StateJoining:
		return "joining"
	case StatePublished:
		return "published"
	default:
		return "unknown"
	}
}
