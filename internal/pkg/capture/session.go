package capture

import (
	"slices"

	"github.com/fredbi/docsnap/internal/pkg/model"
)

// State of a capture session.
type State int

// Capture session states.
const (
	StateAwaitingHeight State = iota
	StateCapturingPage
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAwaitingHeight:
		return "awaiting-height"
	case StateCapturingPage:
		return "capturing-page"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transition may happen from this state.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

// Stats counts what happened to every visited page offset.
type Stats struct {
	Visited          int `json:"visited"`
	Accepted         int `json:"accepted"`
	Blank            int `json:"blank"`
	Duplicate        int `json:"duplicate"`
	SnapshotFailures int `json:"snapshot_failures"`
	Retries          int `json:"retries"`
	EncodeFailures   int `json:"encode_failures"`
}

// session is the mutable state of a capture run, owned by a single [Driver].
type session struct {
	id          string
	state       State
	currentPage int
	totalPages  int
	pageHeight  float64
	err         error
	stats       Stats
	pages       []model.Page
	seen        map[string]struct{}
}

func newSession(id string) *session {
	return &session{
		id:    id,
		state: StateAwaitingHeight,
		seen:  make(map[string]struct{}),
	}
}

// record registers a fingerprint, and reports false if it was already seen.
func (s *session) record(fingerprint string) bool {
	if _, seen := s.seen[fingerprint]; seen {
		return false
	}

	s.seen[fingerprint] = struct{}{}

	return true
}

// snapshot returns a copy of the accepted pages, safe to hand over to observers.
func (s *session) snapshot() []model.Page {
	return slices.Clone(s.pages)
}
