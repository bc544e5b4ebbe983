package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()

	c, err := NewClient(Config{
		Token:         "test-token",
		PhoneNumberID: "987654321",
		VerifyToken:   "verify-me",
		BaseURL:       baseURL,
	})
	require.NoError(t, err)
	return c
}

func TestVerifyWebhook(t *testing.T) {
	c := newTestClient(t, DefaultBaseURL)

	challenge, err := c.VerifyWebhook("subscribe", "verify-me", "12345")
	require.NoError(t, err)
	assert.Equal(t, "12345", challenge)

	_, err = c.VerifyWebhook("subscribe", "wrong-token", "12345")
	assert.ErrorIs(t, err, ErrVerificationFailed)

	_, err = c.VerifyWebhook("unsubscribe", "verify-me", "12345")
	assert.ErrorIs(t, err, ErrVerificationFailed)

	_, err = c.VerifyWebhook("subscribe", "", "12345")
	assert.ErrorIs(t, err, ErrVerificationFailed)
}

func TestCallActionPayload(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"success": true}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	err := c.PreAcceptCall(context.Background(), "wacid.42", "v=0\r\n")
	require.NoError(t, err)

	assert.Equal(t, "/v18.0/987654321/calls", gotPath)
	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Equal(t, "whatsapp", gotBody["messaging_product"])
	assert.Equal(t, "wacid.42", gotBody["call_id"])
	assert.Equal(t, ActionPreAccept, gotBody["action"])

	session, ok := gotBody["session"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "answer", session["sdp_type"])
	assert.Equal(t, "v=0\r\n", session["sdp"])
}

func TestTerminateCallOmitsSession(t *testing.T) {
	var gotBody map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"success": true}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	require.NoError(t, c.TerminateCall(context.Background(), "wacid.42"))
	assert.Equal(t, ActionTerminate, gotBody["action"])
	_, hasSession := gotBody["session"]
	assert.False(t, hasSession)
}

func TestCallActionAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": {"message": "bad call id"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	err := c.AcceptCall(context.Background(), "wacid.42", "v=0\r\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accept")
}

func TestCallActionRequiresCredentials(t *testing.T) {
	c, err := NewClient(Config{})
	require.NoError(t, err)

	err = c.AcceptCall(context.Background(), "wacid.42", "v=0\r\n")
	assert.Error(t, err)
}

func TestHandleWebhookIgnoresMessages(t *testing.T) {
	c := newTestClient(t, DefaultBaseURL)

	body := `{
		"object": "whatsapp_business_account",
		"entry": [{
			"id": "1",
			"changes": [{
				"field": "messages",
				"value": {
					"messaging_product": "whatsapp",
					"metadata": {"display_phone_number": "1", "phone_number_id": "2"},
					"messages": [{"from": "14155552671", "id": "wamid.1", "type": "text"}]
				}
			}]
		}]
	}`

	assert.NoError(t, c.HandleWebhook(context.Background(), []byte(body)))
	assert.Equal(t, 0, c.ActiveCallCount())
}

func TestHandleWebhookInvalidObject(t *testing.T) {
	c := newTestClient(t, DefaultBaseURL)
	err := c.HandleWebhook(context.Background(), []byte(`{"object": "page"}`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{Token: "t", PhoneNumberID: "p", VerifyToken: "v"}
	assert.NoError(t, cfg.Validate())

	assert.Error(t, Config{PhoneNumberID: "p", VerifyToken: "v"}.Validate())
	assert.Error(t, Config{Token: "t", VerifyToken: "v"}.Validate())
	assert.Error(t, Config{Token: "t", PhoneNumberID: "p"}.Validate())
}

func TestTerminateAllCallsHangsUpEveryTrackedCall(t *testing.T) {
	var mu sync.Mutex
	terminated := map[string]int{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, ActionTerminate, body["action"])

		mu.Lock()
		terminated[body["call_id"].(string)]++
		mu.Unlock()

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	c.mu.Lock()
	c.activeCalls["wacid.1"] = &Call{ID: "wacid.1", StartTime: time.Now()}
	c.activeCalls["wacid.2"] = &Call{ID: "wacid.2", StartTime: time.Now()}
	c.mu.Unlock()

	c.TerminateAllCalls(context.Background())

	mu.Lock()
	assert.Equal(t, 1, terminated["wacid.1"])
	assert.Equal(t, 1, terminated["wacid.2"])
	mu.Unlock()
	assert.Equal(t, 0, c.ActiveCallCount())

	// The tracked set is empty now, so a second shutdown pass is a no-op.
	c.TerminateAllCalls(context.Background())
	mu.Lock()
	assert.Len(t, terminated, 2)
	assert.Equal(t, 1, terminated["wacid.1"])
	assert.Equal(t, 1, terminated["wacid.2"])
	mu.Unlock()
}

func TestTerminateAllCallsNoActiveCalls(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	c.TerminateAllCalls(context.Background())
	assert.Zero(t, requests)
}
