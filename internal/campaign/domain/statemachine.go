package domain

// Every state-changing write on campaigns carries its precondition in the
// WHERE clause and the caller reads the affected row count: one row means the
// transition won, zero means the campaign was no longer in a source state.
// The sets below are those preconditions.

// SelectableStatuses may move to producer_selected.
var SelectableStatuses = []Status{StatusOpen, StatusWaitingProducerConfirmation}

// CancellableStatuses may move to cancelled or expired. A campaign already
// committed to a producer cannot be cancelled or expired.
var CancellableStatuses = []Status{StatusOpen, StatusWaitingProducerConfirmation}

// CompletableStatuses accept a completion mark. completed itself is included
// so the second party can still record its side.
var CompletableStatuses = []Status{StatusProducerSelected, StatusContactShared, StatusInProgress, StatusCompleted}

// ReleasableStatuses return to open when the selected producer stays silent.
var ReleasableStatuses = []Status{StatusProducerSelected, StatusContactShared}

var transitions = map[Status][]Status{
	StatusOpen:                        {StatusProducerSelected, StatusCancelled, StatusExpired},
	StatusWaitingProducerConfirmation: {StatusProducerSelected, StatusCancelled, StatusExpired},
	StatusProducerSelected:            {StatusContactShared, StatusCompleted, StatusOpen},
	StatusContactShared:               {StatusInProgress, StatusCompleted, StatusOpen},
	StatusInProgress:                  {StatusCompleted},
}

func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s Status) In(set []Status) bool {
	for _, candidate := range set {
		if s == candidate {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusWaitingProducerConfirmation, StatusProducerSelected, StatusContactShared,
		StatusInProgress, StatusCompleted, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// StatusArgs flattens a status set for use with db.Placeholders.
func StatusArgs(set []Status) []any {
	out := make([]any, len(set))
	for i, s := range set {
		out[i] = string(s)
	}
	return out
}
