package backend

// DefaultRefreshEvery is how many reads an event-driven backend may serve
// from its cache before it queries the platform anyway.
const DefaultRefreshEvery = 30

type refreshState int

const (
	stateUninitialized refreshState = iota
	stateEventDriven
	statePollFallback
)

func (s refreshState) String() string {
	switch s {
	case stateEventDriven:
		return "eventDriven"
	case statePollFallback:
		return "pollFallback"
	default:
		return "uninitialized"
	}
}

// refresher decides whether a read of a hybrid backend must query the
// platform. While events are flowing, the cache is trusted for at most
// every-1 reads in a row. Without an event channel every read queries.
type refresher struct {
	state refreshState
	every int
	reads int
	stale bool
}

func newRefresher(every int) *refresher {
	if every < 1 {
		every = 1
	}
	return &refresher{every: every, stale: true}
}

// eventDriven is entered when the event channel is (re)opened. The next
// read always queries.
func (r *refresher) eventDriven() {
	r.state = stateEventDriven
	r.reads = 0
	r.stale = true
}

func (r *refresher) pollFallback() {
	r.state = statePollFallback
	r.stale = true
}

// invalidate forces the next read to query.
func (r *refresher) invalidate() {
	r.stale = true
}

// due reports whether this read must query the platform, and counts it.
func (r *refresher) due() bool {
	if r.state != stateEventDriven {
		return true
	}

	r.reads++
	if r.stale || r.reads >= r.every {
		r.reads = 0
		r.stale = false
		return true
	}

	return false
}
