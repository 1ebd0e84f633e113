package search

// cursorState is where a rule's pagination stands
type cursorState int

const (
	notStarted cursorState = iota
	continuing
	done
)

// cursor is the pagination state machine: notStarted, then continuing with
// a token for as long as the server returns one, then done.
type cursor struct {
	state cursorState
	token string
}

func resumeAt(token string) cursor {
	if token == "" {
		return cursor{state: notStarted}
	}
	return cursor{state: continuing, token: token}
}

// next returns the token to send, empty for the first request
func (c cursor) next() string {
	if c.state == continuing {
		return c.token
	}
	return ""
}

func (c cursor) finished() bool {
	return c.state == done
}

// advance moves past a dispatched page
func (c cursor) advance(next string) cursor {
	if next == "" {
		return cursor{state: done}
	}
	return cursor{state: continuing, token: next}
}

func (c cursor) halt() cursor {
	return cursor{state: done}
}

func (s cursorState) String() string {
	switch s {
	case notStarted:
		return "not_started"
	case continuing:
		return "continuing"
	default:
		return "done"
	}
}
