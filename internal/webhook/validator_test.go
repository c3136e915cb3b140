package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaymirror/internal/config"
	"relaymirror/internal/constants"
	"relaymirror/internal/logger"
)

func newTestValidator(timeout time.Duration) *Validator {
	return NewValidator(config.WebhookConfig{
		URLPrefix:    constants.WebhookURLPrefix,
		ProbeTimeout: timeout,
	}, logger.NopLogger())
}

func TestValidate_AcceptedProbe(t *testing.T) {
	var got map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	result := newTestValidator(time.Second).Validate(context.Background(), server.URL)

	assert.True(t, result.Valid)
	assert.GreaterOrEqual(t, result.LatencyMs, int64(0))
	assert.Equal(t, constants.ProbeMessage, got["content"])
	assert.Equal(t, constants.ProbeUsername, got["username"])
}

func TestValidate_RejectedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message": "Unknown Webhook", "code": 10015}`))
	}))
	defer server.Close()

	result := newTestValidator(time.Second).Validate(context.Background(), server.URL)

	assert.False(t, result.Valid)
	assert.Contains(t, result.Message, "unexpected status 404")
	assert.Contains(t, result.Message, "Unknown Webhook")
}

func TestValidate_OKIsNotAccepted(t *testing.T) {
	// Text posts must come back 204; a 200 means the endpoint is not a
	// webhook that behaves the way delivery expects.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	result := newTestValidator(time.Second).Validate(context.Background(), server.URL)

	assert.False(t, result.Valid)
	assert.Contains(t, result.Message, "unexpected status 200")
}

func TestValidate_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	result := newTestValidator(50 * time.Millisecond).Validate(context.Background(), server.URL)

	assert.False(t, result.Valid)
	assert.Contains(t, result.Message, "probe request failed")
}

func TestProbe_AdaptsValidateResult(t *testing.T) {
	accepted := true
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if accepted {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	validator := newTestValidator(time.Second)

	require.NoError(t, validator.Probe(context.Background(), server.URL))

	accepted = false
	err := validator.Probe(context.Background(), server.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 403")
}
