package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	apidomain "github.com/cuongbtq/helpdesk-be/internal/api/domain"
	"github.com/cuongbtq/helpdesk-be/internal/api/model"
	"github.com/cuongbtq/helpdesk-be/internal/worker/domain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeStore struct {
	mu       sync.Mutex
	users    map[string]*model.User
	tickets  map[string]*model.Ticket
	messages []*model.Message
	err      error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:   map[string]*model.User{},
		tickets: map[string]*model.Ticket{},
	}
}

func (s *fakeStore) CreateUser(_ context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if _, ok := s.users[user.Email]; ok {
		return apidomain.ErrEmailTaken
	}
	s.users[user.Email] = user
	return nil
}

func (s *fakeStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	user, ok := s.users[email]
	if !ok {
		return nil, apidomain.ErrUserNotFound
	}
	return user, nil
}

func (s *fakeStore) CreateTicket(_ context.Context, ticket *model.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.tickets[ticket.ID] = ticket
	return nil
}

func (s *fakeStore) GetTicket(_ context.Context, ticketID string) (*model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[ticketID]
	if !ok || ticket.DeletedAt != nil {
		return nil, apidomain.ErrTicketNotFound
	}
	return ticket, nil
}

func (s *fakeStore) SoftDeleteTicket(_ context.Context, ticketID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[ticketID]
	if !ok || ticket.DeletedAt != nil {
		return apidomain.ErrTicketNotFound
	}
	now := ticket.CreatedAt
	ticket.DeletedAt = &now
	return nil
}

func (s *fakeStore) CreateMessage(_ context.Context, message *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.messages = append(s.messages, message)
	return nil
}

type producerCall struct {
	op   string
	args []string
}

type fakeProducer struct {
	mu       sync.Mutex
	calls    []producerCall
	indexErr error
}

func (p *fakeProducer) record(op string, args ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, producerCall{op: op, args: args})
}

func (p *fakeProducer) ops() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ops := make([]string, len(p.calls))
	for i, c := range p.calls {
		ops[i] = c.op
	}
	return ops
}

func (p *fakeProducer) call(op string) (producerCall, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.calls {
		if c.op == op {
			return c, true
		}
	}
	return producerCall{}, false
}

func (p *fakeProducer) IndexTicket(_ context.Context, ticketID, title, description string) (string, error) {
	p.record("index-ticket", ticketID, title, description)
	if p.indexErr != nil {
		return "", p.indexErr
	}
	return "job-" + ticketID, nil
}

func (p *fakeProducer) IndexMessage(_ context.Context, messageID, content string) (string, error) {
	p.record("index-message", messageID, content)
	if p.indexErr != nil {
		return "", p.indexErr
	}
	return "job-" + messageID, nil
}

func (p *fakeProducer) EnrichUserLocation(_ context.Context, userID, ipAddress string) {
	p.record("enrich-location", userID, ipAddress)
}

func (p *fakeProducer) NotifyTicketCreated(_ context.Context, ticketID, title, description string) {
	p.record("notify", ticketID, title, description)
}

var errBrokerDown = fmt.Errorf("%w: dial tcp: connection refused", domain.ErrBrokerUnavailable)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}
