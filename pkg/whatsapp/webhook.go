// Package whatsapp implements the WhatsApp Business Calling API: webhook
// payload parsing, the Graph API call actions, and the WebRTC session
// bring-up for incoming voice calls.
package whatsapp

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// BusinessObject is the webhook object type for WhatsApp Business accounts.
const BusinessObject = "whatsapp_business_account"

// Call lifecycle events delivered on the webhook.
const (
	CallEventConnect   = "connect"
	CallEventTerminate = "terminate"
	CallEventRinging   = "ringing"
	CallEventAnswered  = "answered"
)

// DirectionUserInitiated marks calls placed by the WhatsApp user.
const DirectionUserInitiated = "USER_INITIATED"

// ErrInvalidPayload indicates a webhook body that is not a WhatsApp Business
// account event. Handlers map it to a 400 response.
var ErrInvalidPayload = errors.New("invalid webhook payload")

// CallSession carries the SDP exchanged over the webhook and calling API.
type CallSession struct {
	SDPType string `json:"sdp_type"`
	SDP     string `json:"sdp"`
}

// CallEvent is one call lifecycle event from the webhook.
type CallEvent struct {
	ID        string       `json:"id"`
	Event     string       `json:"event"`
	Direction string       `json:"direction"`
	From      string       `json:"from"`
	To        string       `json:"to"`
	Timestamp string       `json:"timestamp"`
	Status    string       `json:"status,omitempty"`
	Session   *CallSession `json:"session,omitempty"`
}

// WebhookMetadata identifies the business phone number the event belongs to.
type WebhookMetadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

// WebhookStatus is a delivery status event. Only call statuses are of
// interest here; everything else is logged and dropped.
type WebhookStatus struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// WebhookValue is the payload of one change.
type WebhookValue struct {
	MessagingProduct string            `json:"messaging_product"`
	Metadata         WebhookMetadata   `json:"metadata"`
	Calls            []CallEvent       `json:"calls,omitempty"`
	Messages         []json.RawMessage `json:"messages,omitempty"`
	Statuses         []WebhookStatus   `json:"statuses,omitempty"`
}

// WebhookChange is one change within an entry.
type WebhookChange struct {
	Value WebhookValue `json:"value"`
	Field string       `json:"field"`
}

// WebhookEntry is one entry in the webhook payload.
type WebhookEntry struct {
	ID      string          `json:"id"`
	Changes []WebhookChange `json:"changes"`
}

// WebhookPayload is the complete webhook body.
type WebhookPayload struct {
	Object string         `json:"object"`
	Entry  []WebhookEntry `json:"entry"`
}

// ParseWebhook decodes and validates a webhook body. A body that is valid
// JSON but not a WhatsApp Business account event returns ErrInvalidPayload.
func ParseWebhook(body []byte) (*WebhookPayload, error) {
	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	if payload.Object != BusinessObject {
		return nil, fmt.Errorf("%w: unexpected object %q", ErrInvalidPayload, payload.Object)
	}

	return &payload, nil
}

// CleanSDP normalizes SDP delivered over the webhook: escaped line endings
// become real ones and a trailing newline is guaranteed, since some payloads
// arrive with JSON-escaped CRLFs that the SDP parser rejects.
func CleanSDP(sdp string) string {
	sdp = strings.TrimSpace(sdp)
	sdp = strings.ReplaceAll(sdp, "\\r\\n", "\r\n")
	sdp = strings.ReplaceAll(sdp, "\\n", "\n")

	if !strings.HasSuffix(sdp, "\n") {
		sdp += "\r\n"
	}

	return sdp
}
