package handler

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newUserRouter(store *fakeStore, producer *fakeProducer) *gin.Engine {
	h := NewUserHandler(&Dependencies{Logger: discardLogger(), Store: store, Producer: producer})
	r := gin.New()
	r.POST("/register", h.Register)
	r.POST("/login", h.Login)
	return r
}

func TestRegister(t *testing.T) {
	store := newFakeStore()
	producer := &fakeProducer{}
	r := newUserRouter(store, producer)

	w := doJSON(t, r, http.MethodPost, "/register", map[string]string{
		"email":    "Agent@Example.com",
		"password": "correct horse",
	})

	require.Equal(t, http.StatusCreated, w.Code)
	user, ok := store.users["agent@example.com"]
	require.True(t, ok)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("correct horse")))

	enrich, ok := producer.call("enrich-location")
	require.True(t, ok)
	assert.Equal(t, []string{user.ID, "192.0.2.1"}, enrich.args)
}

func TestRegister_Errors(t *testing.T) {
	store := newFakeStore()
	producer := &fakeProducer{}
	r := newUserRouter(store, producer)

	creds := map[string]string{"email": "agent@example.com", "password": "correct horse"}
	require.Equal(t, http.StatusCreated, doJSON(t, r, http.MethodPost, "/register", creds).Code)

	w := doJSON(t, r, http.MethodPost, "/register", creds)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, r, http.MethodPost, "/register", map[string]string{"email": "not-an-email", "password": "correct horse"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPost, "/register", map[string]string{"email": "b@example.com", "password": "short"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Len(t, producer.ops(), 1)
}

func TestLogin(t *testing.T) {
	store := newFakeStore()
	producer := &fakeProducer{}
	r := newUserRouter(store, producer)

	creds := map[string]string{"email": "agent@example.com", "password": "correct horse"}
	require.Equal(t, http.StatusCreated, doJSON(t, r, http.MethodPost, "/register", creds).Code)

	t.Run("valid credentials", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/login", creds)
		require.Equal(t, http.StatusOK, w.Code)
		data := decodeBody(t, w)["data"].(map[string]any)
		assert.Equal(t, "agent@example.com", data["email"])
		assert.Equal(t, []string{"enrich-location", "enrich-location"}, producer.ops())
	})

	t.Run("wrong password", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/login", map[string]string{"email": "agent@example.com", "password": "battery staple"})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("unknown user", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/login", map[string]string{"email": "who@example.com", "password": "correct horse"})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("missing fields", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/login", map[string]string{"email": "agent@example.com"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	assert.Len(t, producer.ops(), 2)
}
