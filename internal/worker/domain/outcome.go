package domain

// OutcomeKind tells the pool harness how to settle a job
type OutcomeKind int

const (
	// OutcomeCompleted means the job ran and produced its side effect
	OutcomeCompleted OutcomeKind = iota
	// OutcomeSkipped means the job finished successfully without a side effect
	OutcomeSkipped
	// OutcomeRetry asks the broker to apply the queue's retry policy
	OutcomeRetry
	// OutcomeDiscard fails the job permanently without further attempts
	OutcomeDiscard
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCompleted:
		return "completed"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeRetry:
		return "retry"
	case OutcomeDiscard:
		return "discard"
	default:
		return "unknown"
	}
}

// Outcome is the result of running a processor on one job
type Outcome struct {
	Kind   OutcomeKind
	Reason string
	Err    error
}

// Completed reports a job that produced its side effect
func Completed() Outcome {
	return Outcome{Kind: OutcomeCompleted}
}

// Skipped reports a successful no-op
func Skipped(reason string) Outcome {
	return Outcome{Kind: OutcomeSkipped, Reason: reason}
}

// Retry reports a failure the queue policy may retry
func Retry(err error) Outcome {
	return Outcome{Kind: OutcomeRetry, Err: err}
}

// Discard reports a failure that no retry can fix
func Discard(err error) Outcome {
	return Outcome{Kind: OutcomeDiscard, Err: err}
}

// Succeeded reports whether the job should be settled as completed
func (o Outcome) Succeeded() bool {
	return o.Kind == OutcomeCompleted || o.Kind == OutcomeSkipped
}
