package transport

// RequestState represents the state of the request's assembling.
type RequestState uint8

const (
	// Incomplete means more data is required.
	Incomplete RequestState = iota + 1
	// Complete means the request is fully received.
	Complete
	// Invalid means the request line is malformed. No response can be produced for such
	// requests, so the connection must be closed.
	Invalid
)

func (r RequestState) String() string {
	switch r {
	case Incomplete:
		return "incomplete"
	case Complete:
		return "complete"
	case Invalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Assembler accumulates raw data of a single request until it's either complete or definitely
// malformed.
type Assembler interface {
	Feed(data []byte) (RequestState, error)
	// Abort discards everything accumulated so far, including partially uploaded files.
	Abort() error
}
