package broker

// Option customizes a single enqueue call
type Option func(*enqueueOptions)

type enqueueOptions struct {
	attempts int
	jobID    string
}

// WithAttempts lowers the attempts limit of one job. Values above the queue
// limit are clamped since no delay tier exists for them.
func WithAttempts(attempts int) Option {
	return func(o *enqueueOptions) {
		o.attempts = attempts
	}
}

// WithJobID sets the job id instead of generating one
func WithJobID(id string) Option {
	return func(o *enqueueOptions) {
		o.jobID = id
	}
}
