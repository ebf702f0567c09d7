package email

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CyberITEX/cms-commerce/pkg/config"
)

func TestClientSendPostsPayload(t *testing.T) {
	var got map[string]any
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	mailer := New(config.EmailConfig{
		APIKey:      "test-key",
		BaseURL:     srv.URL,
		FromAddress: "orders@example.com",
		FromName:    "Orders",
	}, nil)

	err := mailer.Send(context.Background(), Message{
		To:       "buyer@example.com",
		Subject:  "Order confirmation",
		Template: "order_confirmation",
		Vars:     map[string]string{"order_number": "100001"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer test-key", auth)
	assert.Equal(t, "buyer@example.com", got["to"])
	assert.Equal(t, "order_confirmation", got["template"])
	assert.Equal(t, "orders@example.com", got["from"])
}

func TestClientSendRejectsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	mailer := New(config.EmailConfig{APIKey: "k", BaseURL: srv.URL}, nil)
	err := mailer.Send(context.Background(), Message{To: "buyer@example.com"})
	assert.Error(t, err)
}

func TestSendRequiresRecipient(t *testing.T) {
	mailer := New(config.EmailConfig{}, nil)
	err := mailer.Send(context.Background(), Message{Subject: "no recipient"})
	assert.Error(t, err)
}

func TestNewFallsBackToLogMailer(t *testing.T) {
	mailer := New(config.EmailConfig{}, nil)
	_, ok := mailer.(*logMailer)
	assert.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, mailer.Send(ctx, Message{To: "buyer@example.com"}))
}
