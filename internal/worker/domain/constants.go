package domain

// Queue names
const (
	QueueNotifications    = "notifications"
	QueueGeoEnrichment    = "geo-enrichment"
	QueueSemanticIndexing = "semantic-indexing"
)

// Queues lists every queue a worker service consumes
var Queues = []string{QueueNotifications, QueueGeoEnrichment, QueueSemanticIndexing}

// Job type names
const (
	JobTypeSendNotification   = "send-slack-notification"
	JobTypeEnrichUserLocation = "enrich-user-location"
	JobTypeGenerateEmbedding  = "generate-embedding"
)

// Job state constants
const (
	JobStateWaiting   = "waiting"
	JobStateActive    = "active"
	JobStateCompleted = "completed"
	JobStateFailed    = "failed"
)

// Entity types that carry an embedding
const (
	EntityTicket  = "ticket"
	EntityMessage = "message"
)

// IsTerminalState reports whether a job in this state will not run again
func IsTerminalState(state string) bool {
	return state == JobStateCompleted || state == JobStateFailed
}
