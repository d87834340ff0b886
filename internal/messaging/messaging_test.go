package messaging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatpay/chatpay/internal/logging"
)

func TestTwilioSenderPostsForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2010-04-01/Accounts/AC123/Messages.json", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC123", user)
		assert.Equal(t, "secret", pass)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "whatsapp:+15550000009", r.PostForm.Get("From"))
		assert.Equal(t, "whatsapp:+15550000001", r.PostForm.Get("To"))
		assert.Equal(t, "hello", r.PostForm.Get("Body"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM42"}`))
	}))
	defer srv.Close()

	s := NewTwilioSender(TwilioConfig{AccountSID: "AC123", AuthToken: "secret", From: "+15550000009", BaseURL: srv.URL})
	id, err := s.Send(context.Background(), "+15550000001", "hello")
	require.NoError(t, err)
	assert.Equal(t, "SM42", id)
}

func TestTwilioSenderSurfacesErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"invalid To number"}`))
	}))
	defer srv.Close()

	s := NewTwilioSender(TwilioConfig{AccountSID: "AC123", From: "whatsapp:+15550000009", BaseURL: srv.URL})
	_, err := s.Send(context.Background(), "+15550000001", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid To number")
}

func TestLoggerSenderReturnsID(t *testing.T) {
	id, err := NewLoggerSender(logging.Discard()).Send(context.Background(), "+15550000001", "hi")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}
