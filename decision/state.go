package decision

// State is a step of a single Suggest invocation.
type State string

const (
	StateValidating State = "validating"
	StateGenerating State = "generating"
	StateParsing    State = "parsing"
	StateEnriching  State = "enriching"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// StateObserver is notified of every transition of every invocation.
type StateObserver func(requestID string, from, to State)

// tracker records the transitions of one invocation.
type tracker struct {
	requestID string
	current   State
	observer  StateObserver
	log       func(msg string, args ...any)
}

func (t *tracker) to(next State) {
	prev := t.current
	t.current = next
	t.log("decision state", "request_id", t.requestID, "from", string(prev), "to", string(next))
	if t.observer != nil {
		t.observer(t.requestID, prev, next)
	}
}
