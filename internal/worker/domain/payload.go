package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Payload is implemented by every job payload variant. A variant belongs to
// exactly one queue and one job type.
type Payload interface {
	Queue() string
	JobType() string
	Validate() error
}

// NotificationJob announces a newly created ticket on the webhook
type NotificationJob struct {
	TicketID    string `json:"ticketId"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (NotificationJob) Queue() string   { return QueueNotifications }
func (NotificationJob) JobType() string { return JobTypeSendNotification }

func (p NotificationJob) Validate() error {
	if p.TicketID == "" {
		return fmt.Errorf("%w: ticketId is required", ErrInvalidPayload)
	}
	return nil
}

// GeoJob resolves the country of a user from the IP address they last used
type GeoJob struct {
	UserID    string `json:"userId"`
	IPAddress string `json:"ipAddress"`
}

func (GeoJob) Queue() string   { return QueueGeoEnrichment }
func (GeoJob) JobType() string { return JobTypeEnrichUserLocation }

func (p GeoJob) Validate() error {
	if p.UserID == "" {
		return fmt.Errorf("%w: userId is required", ErrInvalidPayload)
	}
	return nil
}

// SemanticJob computes and stores the embedding of a ticket or message
type SemanticJob struct {
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`
	Text       string `json:"text"`
}

func (SemanticJob) Queue() string   { return QueueSemanticIndexing }
func (SemanticJob) JobType() string { return JobTypeGenerateEmbedding }

func (p SemanticJob) Validate() error {
	if p.EntityType != EntityTicket && p.EntityType != EntityMessage {
		return fmt.Errorf("%w: unknown entityType %q", ErrInvalidPayload, p.EntityType)
	}
	if p.EntityID == "" {
		return fmt.Errorf("%w: entityId is required", ErrInvalidPayload)
	}
	return nil
}

// TicketText is the text indexed for a ticket
func TicketText(title, description string) string {
	return fmt.Sprintf("Title: %s. Content: %s", strings.TrimSpace(title), strings.TrimSpace(description))
}

// DecodePayload decodes the payload of a job by its queue. The job type must
// match the one the queue carries.
func DecodePayload(queue, jobType string, raw json.RawMessage) (Payload, error) {
	var payload Payload
	switch queue {
	case QueueNotifications:
		var p NotificationJob
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		payload = p
	case QueueGeoEnrichment:
		var p GeoJob
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		payload = p
	case QueueSemanticIndexing:
		var p SemanticJob
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		payload = p
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownQueue, queue)
	}

	if payload.JobType() != jobType {
		return nil, fmt.Errorf("%w: job type %q does not belong to queue %s", ErrInvalidPayload, jobType, queue)
	}

	if err := payload.Validate(); err != nil {
		return nil, err
	}

	return payload, nil
}
