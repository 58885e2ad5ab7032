package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"subscriber/internal/models"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, baseURL string) *EmailClient {
	t.Helper()
	client, err := NewEmailClient(models.EmailConfig{
		BaseURL:   baseURL,
		Sender:    "newsletter@example.com",
		AuthToken: "server-token",
		Timeout:   time.Second,
	})
	require.NoError(t, err)
	return client
}

func TestEmailClient_SendEmail(t *testing.T) {
	var got sendEmailRequest
	var gotToken, gotPath, gotMethod string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotToken = r.Header.Get("X-Postmark-Server-Token")
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL+"/")
	err := client.SendEmail(context.Background(), "reader@example.com", "Welcome", "<p>Hi</p>", "Hi")
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/email", gotPath)
	assert.Equal(t, "server-token", gotToken)
	assert.Equal(t, sendEmailRequest{
		From:     "newsletter@example.com",
		To:       "reader@example.com",
		Subject:  "Welcome",
		HtmlBody: "<p>Hi</p>",
		TextBody: "Hi",
	}, got)
}

func TestEmailClient_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	err := newTestClient(t, server.URL).SendEmail(context.Background(), "reader@example.com", "s", "h", "t")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestEmailClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer server.Close()

	client, err := NewEmailClient(models.EmailConfig{
		BaseURL: server.URL,
		Sender:  "newsletter@example.com",
		Timeout: 50 * time.Millisecond,
	})
	require.NoError(t, err)

	err = client.SendEmail(context.Background(), "reader@example.com", "s", "h", "t")
	assert.Error(t, err)
}

func TestEmailClient_CancelledWhileThrottled(t *testing.T) {
	client, err := NewEmailClient(models.EmailConfig{
		BaseURL:           "http://127.0.0.1:1",
		Sender:            "newsletter@example.com",
		RequestsPerSecond: 0.001,
	})
	require.NoError(t, err)
	// spend the single token
	client.limiter.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = client.SendEmail(ctx, "reader@example.com", "s", "h", "t")
	assert.ErrorContains(t, err, "throttled")
}

func TestNewEmailClient_InvalidSender(t *testing.T) {
	_, err := NewEmailClient(models.EmailConfig{BaseURL: "http://localhost", Sender: "not-an-email"})
	assert.Error(t, err)
}

func TestNewSender(t *testing.T) {
	s, err := NewSender(models.EmailConfig{})
	require.NoError(t, err)
	assert.IsType(t, LogSender{}, s)
	assert.NoError(t, s.SendEmail(context.Background(), "reader@example.com", "s", "h", "t"))

	s, err = NewSender(models.EmailConfig{BaseURL: "http://localhost", Sender: "newsletter@example.com"})
	require.NoError(t, err)
	assert.IsType(t, &EmailClient{}, s)
}
