package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/helpdesk-be/internal/worker/domain"
)

const maxErrorBody = 4 << 10

// slackMessage is a Slack block kit message
type slackMessage struct {
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type   string      `json:"type"`
	Text   *slackText  `json:"text,omitempty"`
	Fields []slackText `json:"fields,omitempty"`
}

type slackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

func ticketCreatedMessage(n domain.NotificationJob) slackMessage {
	return slackMessage{
		Blocks: []slackBlock{
			{
				Type: "header",
				Text: &slackText{Type: "plain_text", Text: "🎫 New Ticket Created", Emoji: true},
			},
			{
				Type:   "section",
				Fields: []slackText{{Type: "mrkdwn", Text: "*Ticket ID:*\n" + n.TicketID}},
			},
			{
				Type: "section",
				Text: &slackText{Type: "mrkdwn", Text: "*Title:*\n" + n.Title},
			},
			{
				Type: "section",
				Text: &slackText{Type: "mrkdwn", Text: "*Description:*\n" + n.Description},
			},
		},
	}
}

// NotificationProcessor posts new tickets to a Slack incoming webhook.
//
// Each attempt makes exactly one POST. A webhook that accepted the message
// but still answered with an error is retried, so a ticket may be announced
// more than once.
type NotificationProcessor struct {
	client     *http.Client
	webhookURL string
	logger     *slog.Logger
}

// NewNotificationProcessor creates the processor. A zero timeout leaves
// the request bounded only by the transport defaults.
func NewNotificationProcessor(webhookURL string, timeout time.Duration, logger *slog.Logger) *NotificationProcessor {
	return &NotificationProcessor{
		client:     &http.Client{Timeout: timeout},
		webhookURL: webhookURL,
		logger:     logger,
	}
}

func (p *NotificationProcessor) Process(ctx context.Context, job *domain.Job, payload domain.Payload) domain.Outcome {
	n, ok := payload.(domain.NotificationJob)
	if !ok {
		return domain.Discard(fmt.Errorf("%w: expected notification payload, got %T", domain.ErrInvalidPayload, payload))
	}

	p.logger.Info("Sending ticket notification",
		slog.String("job_id", job.ID),
		slog.String("ticket_id", n.TicketID),
		slog.Int("attempt", job.AttemptsMade+1),
	)

	if err := p.Send(ctx, n); err != nil {
		return domain.Retry(err)
	}

	return domain.Completed()
}

// Send posts one notification
func (p *NotificationProcessor) Send(ctx context.Context, n domain.NotificationJob) error {
	body, err := json.Marshal(ticketCreatedMessage(n))
	if err != nil {
		return fmt.Errorf("failed to marshal slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return domain.NewTransportError("slack webhook", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return domain.NewStatusError("slack webhook", resp.StatusCode, string(text))
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
