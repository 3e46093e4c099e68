package domain

// Job lifecycle states. Transitions are forward only:
// PENDING -> VALIDATING -> RUNNING -> COMPLETED | FAILED.
// A job that fails validation or is cancelled goes to FAILED without
// ever reaching RUNNING. Terminal states are immutable.
const (
	JobStatePending    = "PENDING"
	JobStateValidating = "VALIDATING"
	JobStateRunning    = "RUNNING"
	JobStateCompleted  = "COMPLETED"
	JobStateFailed     = "FAILED"
)

// Job kinds.
const (
	JobKindSingle      = "single"
	JobKindBatchMember = "batch_member"
)

// Job is one backtest request tracked through its lifecycle.
// Corresponds to the jobs table in Postgres.
type Job struct {
	ID       string // uuid
	Kind     string // "single" | "batch_member"
	ParentID string // batch parent id, empty for single jobs

	StrategyID string // strategy to simulate
	Ticker     string // instrument
	Timeframe  string // timeframe token
	StartMs    int64  // range start, Unix ms, inclusive
	EndMs      int64  // range end, Unix ms, exclusive

	State  string // lifecycle state
	Reason string // failure reason, empty unless FAILED

	// CountsTowardsLimit is carried through unchanged for upstream
	// quota accounting. The engine never interprets it.
	CountsTowardsLimit bool

	CreatedAtMs  int64 // submission timestamp, Unix ms
	StartedAtMs  int64 // when the job left PENDING, 0 if never
	FinishedAtMs int64 // when the job reached a terminal state, 0 if running
}

// IsTerminal reports whether a state admits no further transitions.
func IsTerminal(state string) bool {
	return state == JobStateCompleted || state == JobStateFailed
}

// ValidTransition reports whether a job may move from one state to
// another. Self transitions are not valid.
func ValidTransition(from, to string) bool {
	switch from {
	case JobStatePending:
		return to == JobStateValidating || to == JobStateFailed
	case JobStateValidating:
		return to == JobStateRunning || to == JobStateFailed
	case JobStateRunning:
		return to == JobStateCompleted || to == JobStateFailed
	default:
		return false
	}
}
