package dto

type CreateTicketRequest struct {
	UserID      string `json:"user_id" binding:"required,uuid"`
	Title       string `json:"title" binding:"required,max=255"`
	Description string `json:"description" binding:"required"`
}

type TicketDTO struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
}

type CreateMessageRequest struct {
	SenderType string `json:"sender_type" binding:"required,oneof=USER SUPPORT_AGENT"`
	Content    string `json:"content" binding:"required"`
}

type MessageDTO struct {
	ID         string `json:"id"`
	TicketID   string `json:"ticket_id"`
	SenderType string `json:"sender_type"`
	Content    string `json:"content"`
	CreatedAt  string `json:"created_at"`
}

// CreatedResponse wraps a created entity with the id of its indexing job
type CreatedResponse[T any] struct {
	Data       T      `json:"data"`
	IndexJobID string `json:"index_job_id"`
}
