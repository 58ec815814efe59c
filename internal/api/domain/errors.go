package domain

import (
	"errors"
)

const (
	TicketStatusOpen     = "OPEN"
	TicketStatusPending  = "PENDING"
	TicketStatusResolved = "RESOLVED"

	SenderUser         = "USER"
	SenderSupportAgent = "SUPPORT_AGENT"
)

var (
	ErrTicketNotFound = errors.New("ticket not found")
	ErrUserNotFound   = errors.New("user not found")
	ErrEmailTaken     = errors.New("email already in use")
)
