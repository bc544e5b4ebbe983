package whatsapp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCallWebhook = `{
	"object": "whatsapp_business_account",
	"entry": [{
		"id": "123456789",
		"changes": [{
			"field": "calls",
			"value": {
				"messaging_product": "whatsapp",
				"metadata": {
					"display_phone_number": "15550001111",
					"phone_number_id": "987654321"
				},
				"calls": [{
					"id": "wacid.test123",
					"event": "connect",
					"direction": "USER_INITIATED",
					"from": "14155552671",
					"to": "15550001111",
					"timestamp": "1700000000",
					"session": {
						"sdp_type": "offer",
						"sdp": "v=0\r\no=- 0 0 IN IP4 0.0.0.0\r\n"
					}
				}]
			}
		}]
	}]
}`

func TestParseWebhookCallEvent(t *testing.T) {
	payload, err := ParseWebhook([]byte(sampleCallWebhook))
	require.NoError(t, err)

	require.Len(t, payload.Entry, 1)
	require.Len(t, payload.Entry[0].Changes, 1)

	value := payload.Entry[0].Changes[0].Value
	assert.Equal(t, "987654321", value.Metadata.PhoneNumberID)
	require.Len(t, value.Calls, 1)

	call := value.Calls[0]
	assert.Equal(t, "wacid.test123", call.ID)
	assert.Equal(t, CallEventConnect, call.Event)
	assert.Equal(t, DirectionUserInitiated, call.Direction)
	assert.Equal(t, "14155552671", call.From)
	require.NotNil(t, call.Session)
	assert.Equal(t, "offer", call.Session.SDPType)
	assert.True(t, strings.HasPrefix(call.Session.SDP, "v=0"))
}

func TestParseWebhookWrongObject(t *testing.T) {
	_, err := ParseWebhook([]byte(`{"object": "page", "entry": []}`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestParseWebhookBadJSON(t *testing.T) {
	_, err := ParseWebhook([]byte(`{not json`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestCleanSDPEscapedLineEndings(t *testing.T) {
	raw := `v=0\r\no=- 0 0 IN IP4 0.0.0.0\r\nm=audio 9 UDP/TLS/RTP/SAVPF 111`
	cleaned := CleanSDP(raw)

	assert.True(t, strings.HasPrefix(cleaned, "v=0\r\n"))
	assert.NotContains(t, cleaned, `\r\n`)
	assert.True(t, strings.HasSuffix(cleaned, "\n"))
}

func TestCleanSDPKeepsWellFormedSDP(t *testing.T) {
	raw := "v=0\r\no=- 0 0 IN IP4 0.0.0.0\r\n"
	assert.Equal(t, raw, CleanSDP(raw))
}

func TestFormatCallerNumber(t *testing.T) {
	assert.Equal(t, "+1 415-555-2671", FormatCallerNumber("14155552671"))
	assert.Equal(t, "", FormatCallerNumber(""))
	// unparseable numbers fall back to raw with a plus
	assert.Equal(t, "+0", FormatCallerNumber("0"))
}
