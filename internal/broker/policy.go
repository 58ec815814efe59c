package broker

import (
	"time"

	"github.com/cuongbtq/helpdesk-be/internal/config"
	"github.com/cuongbtq/helpdesk-be/internal/worker/domain"
	"github.com/cuongbtq/helpdesk-be/shared/rabbitmq"
)

// Policy is the default retry and retention behavior of one queue
type Policy struct {
	Attempts         int
	BackoffDelay     time.Duration
	RemoveOnComplete bool
	RemoveOnFail     bool
}

// Delay returns how long a job waits before its next run once it has made
// the given number of attempts: BackoffDelay * 2^(attempts-1).
func (p Policy) Delay(attempts int) time.Duration {
	return backoff(p.BackoffDelay, attempts)
}

// Topology returns the queue and the delay tiers that feed it, one tier per
// possible retry
func (p Policy) Topology(queue string) rabbitmq.QueueTopology {
	tiers := make([]time.Duration, 0, max(p.Attempts-1, 0))
	for attempts := 1; attempts < p.Attempts; attempts++ {
		tiers = append(tiers, p.Delay(attempts))
	}
	return rabbitmq.QueueTopology{Name: queue, DelayTiers: tiers}
}

func backoff(base time.Duration, attempts int) time.Duration {
	if attempts < 1 {
		return 0
	}
	return base << (attempts - 1)
}

// PoliciesFromConfig builds the policy of every known queue
func PoliciesFromConfig(cfg *config.Config) map[string]Policy {
	policies := make(map[string]Policy, len(domain.Queues))
	for _, name := range domain.Queues {
		q, _ := cfg.Queue(name)
		policies[name] = Policy{
			Attempts:         q.Attempts,
			BackoffDelay:     q.BackoffDelay,
			RemoveOnComplete: q.RemoveOnComplete,
			RemoveOnFail:     q.RemoveOnFail,
		}
	}
	return policies
}
