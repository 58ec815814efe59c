package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/helpdesk-be/internal/api/model"
)

func newTicketRouter(store *fakeStore, producer *fakeProducer) *gin.Engine {
	h := NewTicketHandler(&Dependencies{Logger: discardLogger(), Store: store, Producer: producer})
	r := gin.New()
	r.POST("/tickets", h.CreateTicket)
	r.DELETE("/tickets/:ticket_id", h.DeleteTicket)
	r.POST("/tickets/:ticket_id/messages", h.CreateMessage)
	return r
}

func seedTicket(store *fakeStore) string {
	id := uuid.NewString()
	store.tickets[id] = &model.Ticket{ID: id, Title: "VPN", Description: "down", CreatedAt: time.Now()}
	return id
}

func TestCreateTicket(t *testing.T) {
	store := newFakeStore()
	producer := &fakeProducer{}
	r := newTicketRouter(store, producer)

	w := doJSON(t, r, http.MethodPost, "/tickets", map[string]string{
		"user_id":     uuid.NewString(),
		"title":       "Printer on fire",
		"description": "Third floor",
	})

	require.Equal(t, http.StatusCreated, w.Code)
	body := decodeBody(t, w)
	data := body["data"].(map[string]any)
	ticketID := data["id"].(string)

	assert.Equal(t, "OPEN", data["status"])
	assert.Equal(t, "job-"+ticketID, body["index_job_id"])
	assert.Contains(t, store.tickets, ticketID)
	assert.Equal(t, []string{"index-ticket", "notify"}, producer.ops())

	index, _ := producer.call("index-ticket")
	assert.Equal(t, []string{ticketID, "Printer on fire", "Third floor"}, index.args)
}

func TestCreateTicket_BrokerUnavailable(t *testing.T) {
	store := newFakeStore()
	producer := &fakeProducer{indexErr: errBrokerDown}
	r := newTicketRouter(store, producer)

	w := doJSON(t, r, http.MethodPost, "/tickets", map[string]string{
		"user_id":     uuid.NewString(),
		"title":       "VPN",
		"description": "down",
	})

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, []string{"index-ticket"}, producer.ops())
}

func TestCreateTicket_InvalidBody(t *testing.T) {
	tests := []struct {
		name string
		body map[string]string
	}{
		{"missing title", map[string]string{"user_id": uuid.NewString(), "description": "x"}},
		{"bad user id", map[string]string{"user_id": "42", "title": "x", "description": "x"}},
		{"empty", map[string]string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			producer := &fakeProducer{}
			r := newTicketRouter(newFakeStore(), producer)

			w := doJSON(t, r, http.MethodPost, "/tickets", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Empty(t, producer.ops())
		})
	}
}

func TestDeleteTicket(t *testing.T) {
	store := newFakeStore()
	r := newTicketRouter(store, &fakeProducer{})
	id := seedTicket(store)

	w := doJSON(t, r, http.MethodDelete, "/tickets/"+id, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.NotNil(t, store.tickets[id].DeletedAt)

	w = doJSON(t, r, http.MethodDelete, "/tickets/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, r, http.MethodDelete, "/tickets/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateMessage(t *testing.T) {
	store := newFakeStore()
	producer := &fakeProducer{}
	r := newTicketRouter(store, producer)
	ticketID := seedTicket(store)

	w := doJSON(t, r, http.MethodPost, "/tickets/"+ticketID+"/messages", map[string]string{
		"sender_type": "SUPPORT_AGENT",
		"content":     "Have you tried turning it off and on again?",
	})

	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, store.messages, 1)
	msg := store.messages[0]
	assert.Equal(t, ticketID, msg.TicketID)

	index, ok := producer.call("index-message")
	require.True(t, ok)
	assert.Equal(t, []string{msg.ID, "Have you tried turning it off and on again?"}, index.args)
}

func TestCreateMessage_Errors(t *testing.T) {
	t.Run("unknown ticket", func(t *testing.T) {
		producer := &fakeProducer{}
		r := newTicketRouter(newFakeStore(), producer)

		w := doJSON(t, r, http.MethodPost, "/tickets/"+uuid.NewString()+"/messages", map[string]string{
			"sender_type": "USER",
			"content":     "hello",
		})
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Empty(t, producer.ops())
	})

	t.Run("bad sender type", func(t *testing.T) {
		store := newFakeStore()
		r := newTicketRouter(store, &fakeProducer{})

		w := doJSON(t, r, http.MethodPost, "/tickets/"+seedTicket(store)+"/messages", map[string]string{
			"sender_type": "ROBOT",
			"content":     "hello",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("broker unavailable", func(t *testing.T) {
		store := newFakeStore()
		r := newTicketRouter(store, &fakeProducer{indexErr: errBrokerDown})

		w := doJSON(t, r, http.MethodPost, "/tickets/"+seedTicket(store)+"/messages", map[string]string{
			"sender_type": "USER",
			"content":     "hello",
		})
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}
