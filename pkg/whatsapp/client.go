package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/voicebridge/voicebridge/pkg/connection"
	"github.com/voicebridge/voicebridge/pkg/trace"
)

const (
	// DefaultAPIVersion is the Graph API version used for call actions.
	DefaultAPIVersion = "v18.0"
	// DefaultBaseURL is the Graph API endpoint. Tests point it elsewhere.
	DefaultBaseURL = "https://graph.facebook.com"
)

// Call actions accepted by the calling API.
const (
	ActionPreAccept = "pre_accept"
	ActionAccept    = "accept"
	ActionReject    = "reject"
	ActionTerminate = "terminate"
)

// ErrVerificationFailed indicates a webhook verification request with a bad
// mode or token. Handlers map it to a 403 response.
var ErrVerificationFailed = errors.New("webhook verification failed")

// Config holds WhatsApp Business API credentials and endpoints.
type Config struct {
	// Token is the Graph API bearer token (WHATSAPP_TOKEN).
	Token string
	// PhoneNumberID is the business phone number ID (WHATSAPP_PHONE_NUMBER_ID).
	PhoneNumberID string
	// VerifyToken is matched against hub.verify_token on webhook verification
	// (WHATSAPP_WEBHOOK_VERIFICATION_TOKEN).
	VerifyToken string
	// APIVersion is the Graph API version (default: v18.0).
	APIVersion string
	// BaseURL is the Graph API base URL (default: https://graph.facebook.com).
	BaseURL string
}

// Validate reports the first missing required credential. Servers call it
// before binding so misconfiguration fails fast.
func (c Config) Validate() error {
	if c.Token == "" {
		return errors.New("WHATSAPP_TOKEN is not set")
	}
	if c.PhoneNumberID == "" {
		return errors.New("WHATSAPP_PHONE_NUMBER_ID is not set")
	}
	if c.VerifyToken == "" {
		return errors.New("WHATSAPP_WEBHOOK_VERIFICATION_TOKEN is not set")
	}
	return nil
}

// ConfigFromEnv builds a Config from environment variables.
func ConfigFromEnv() Config {
	return Config{
		Token:         os.Getenv("WHATSAPP_TOKEN"),
		PhoneNumberID: os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
		VerifyToken:   os.Getenv("WHATSAPP_WEBHOOK_VERIFICATION_TOKEN"),
	}
}

// Call is one active WhatsApp call session.
type Call struct {
	ID         string
	From       string
	StartTime  time.Time
	Connection connection.Connection

	pc *webrtc.PeerConnection
}

// ConnectedHandler is invoked once a call's media session is accepted and
// the WebRTC connection is ready for the pipeline.
type ConnectedHandler func(call *Call)

// Client handles WhatsApp Business Calling: webhook events in, Graph API
// call actions out, and the WebRTC session per call.
type Client struct {
	cfg        Config
	api        *webrtc.API
	rtcConfig  webrtc.Configuration
	httpClient *http.Client

	onConnected ConnectedHandler

	activeCalls map[string]*Call
	mu          sync.Mutex
}

// NewClient creates a calling client. The WebRTC API it builds carries
// WhatsApp's codec and transport requirements.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	api, err := newCallAPI()
	if err != nil {
		return nil, fmt.Errorf("create webrtc api: %w", err)
	}

	return &Client{
		cfg:       cfg,
		api:       api,
		rtcConfig: callRTCConfiguration(),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		activeCalls: make(map[string]*Call),
	}, nil
}

// OnCallConnected registers the handler invoked for each accepted call.
func (c *Client) OnCallConnected(handler ConnectedHandler) {
	c.onConnected = handler
}

// ActiveCallCount returns the number of calls currently tracked.
func (c *Client) ActiveCallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.activeCalls)
}

// VerifyWebhook checks a webhook verification request and returns the
// challenge to echo back. Mode must be "subscribe" and the token must match.
func (c *Client) VerifyWebhook(mode, token, challenge string) (string, error) {
	if mode == "subscribe" && token != "" && token == c.cfg.VerifyToken {
		log.Println("[whatsapp] webhook verified")
		return challenge, nil
	}

	return "", ErrVerificationFailed
}

// HandleWebhook parses and processes one webhook body. Call events are
// dispatched; message and status events are logged and dropped.
func (c *Client) HandleWebhook(ctx context.Context, body []byte) error {
	payload, err := ParseWebhook(body)
	if err != nil {
		return err
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			value := change.Value

			if len(value.Calls) > 0 {
				for i := range value.Calls {
					c.handleCallEvent(ctx, value.Calls[i])
				}
				continue
			}

			if len(value.Messages) > 0 {
				log.Printf("[whatsapp] ignoring %d message events", len(value.Messages))
			}
			for _, status := range value.Statuses {
				if status.Type == "call" {
					log.Printf("[whatsapp] call status event: %s", status.ID)
				}
			}
		}
	}

	return nil
}

// handleCallEvent dispatches one call lifecycle event.
func (c *Client) handleCallEvent(ctx context.Context, ev CallEvent) {
	_, span := trace.InstrumentCallEvent(ctx, ev.ID, ev.Direction, ev.From, ev.Event)
	defer span.End()

	log.Printf("[whatsapp] call event: %s (id: %s, direction: %s, from: %s)",
		ev.Event, ev.ID, ev.Direction, FormatCallerNumber(ev.From))

	switch ev.Event {
	case CallEventConnect:
		if ev.Direction != DirectionUserInitiated {
			log.Printf("[whatsapp] ignoring connect for direction %s", ev.Direction)
			return
		}
		if ev.Session == nil || ev.Session.SDPType != "offer" || ev.Session.SDP == "" {
			log.Printf("[whatsapp] connect event for call %s has no usable offer", ev.ID)
			return
		}
		go c.acceptIncomingCall(context.WithoutCancel(ctx), ev)

	case CallEventTerminate:
		c.closeCall(ev.ID)

	case CallEventRinging:
		log.Printf("[whatsapp] call ringing: %s", ev.ID)

	case CallEventAnswered:
		log.Printf("[whatsapp] call answered: %s", ev.ID)

	default:
		log.Printf("[whatsapp] unhandled call event: %s", ev.Event)
	}
}

// acceptIncomingCall runs the full bring-up for one incoming call:
// peer connection, SDP answer, pre_accept, ICE, accept, then the connected
// handler.
func (c *Client) acceptIncomingCall(ctx context.Context, ev CallEvent) {
	callID := ev.ID

	c.mu.Lock()
	if _, exists := c.activeCalls[callID]; exists {
		c.mu.Unlock()
		log.Printf("[whatsapp] call %s already being processed, ignoring duplicate", callID)
		return
	}
	// Reserve the call ID before any slow work so duplicate webhook
	// deliveries cannot race.
	call := &Call{ID: callID, From: ev.From, StartTime: time.Now()}
	c.activeCalls[callID] = call
	c.mu.Unlock()

	fail := func(stage string, err error) {
		log.Printf("[whatsapp] call %s failed at %s: %v", callID, stage, err)
		c.closeCall(callID)
	}

	pc, err := c.api.NewPeerConnection(c.rtcConfig)
	if err != nil {
		fail("peer connection", err)
		return
	}

	iceConnected := make(chan struct{}, 1)
	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		log.Printf("[whatsapp] call %s ICE state: %s", callID, state.String())
		if state == webrtc.ICEConnectionStateConnected || state == webrtc.ICEConnectionStateCompleted {
			select {
			case iceConnected <- struct{}{}:
			default:
			}
		}
	})

	// The connection wraps the peer connection: transceiver, opus codec,
	// remote track reader.
	conn := connection.NewWebRTCConnection(callID, pc)

	c.mu.Lock()
	call.pc = pc
	call.Connection = conn
	c.mu.Unlock()

	offer := webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  CleanSDP(ev.Session.SDP),
	}
	if err := pc.SetRemoteDescription(offer); err != nil {
		fail("set remote description", err)
		return
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		fail("create answer", err)
		return
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		fail("set local description", err)
		return
	}

	// Gather candidates before answering; WhatsApp is ice-lite and will not
	// trickle.
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	select {
	case <-gatherComplete:
	case <-time.After(3 * time.Second):
		log.Printf("[whatsapp] call %s ICE gathering timeout", callID)
	}

	answerSDP := answer.SDP
	if localDesc := pc.LocalDescription(); localDesc != nil {
		answerSDP = localDesc.SDP
	}

	if err := c.PreAcceptCall(ctx, callID, answerSDP); err != nil {
		fail("pre_accept", err)
		return
	}

	select {
	case <-iceConnected:
		log.Printf("[whatsapp] call %s ICE connected", callID)
	case <-time.After(5 * time.Second):
		log.Printf("[whatsapp] call %s ICE connection timeout, proceeding anyway", callID)
	}

	if err := c.AcceptCall(ctx, callID, answerSDP); err != nil {
		fail("accept", err)
		return
	}

	log.Printf("[whatsapp] call accepted: %s from %s", callID, FormatCallerNumber(ev.From))

	if c.onConnected != nil {
		go c.onConnected(call)
	}
}

// closeCall tears down and forgets one call.
func (c *Client) closeCall(callID string) {
	c.mu.Lock()
	call, exists := c.activeCalls[callID]
	if exists {
		delete(c.activeCalls, callID)
	}
	c.mu.Unlock()

	if !exists {
		log.Printf("[whatsapp] close for unknown call: %s", callID)
		return
	}

	if call.Connection != nil {
		call.Connection.Close()
	} else if call.pc != nil {
		call.pc.Close()
	}
	log.Printf("[whatsapp] call closed: %s", callID)
}

// PreAcceptCall signals WhatsApp to set up the media path before accept.
func (c *Client) PreAcceptCall(ctx context.Context, callID, sdpAnswer string) error {
	return c.callAction(ctx, ActionPreAccept, callID, sdpAnswer)
}

// AcceptCall answers the call and starts media flow.
func (c *Client) AcceptCall(ctx context.Context, callID, sdpAnswer string) error {
	return c.callAction(ctx, ActionAccept, callID, sdpAnswer)
}

// RejectCall declines an incoming call.
func (c *Client) RejectCall(ctx context.Context, callID string) error {
	return c.callAction(ctx, ActionReject, callID, "")
}

// TerminateCall hangs up an active call and releases its resources.
func (c *Client) TerminateCall(ctx context.Context, callID string) error {
	err := c.callAction(ctx, ActionTerminate, callID, "")
	c.closeCall(callID)
	return err
}

// TerminateAllCalls hangs up every active call. Used on shutdown.
func (c *Client) TerminateAllCalls(ctx context.Context) {
	c.mu.Lock()
	ids := make([]string, 0, len(c.activeCalls))
	for id := range c.activeCalls {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	if len(ids) == 0 {
		return
	}

	log.Printf("[whatsapp] terminating %d active calls", len(ids))
	for _, id := range ids {
		if err := c.TerminateCall(ctx, id); err != nil {
			log.Printf("[whatsapp] terminate call %s: %v", id, err)
		}
	}
}

// callAction posts one action to the calling API.
func (c *Client) callAction(ctx context.Context, action, callID, sdpAnswer string) error {
	if c.cfg.Token == "" || c.cfg.PhoneNumberID == "" {
		return fmt.Errorf("whatsapp credentials not configured")
	}

	ctx, span := trace.InstrumentCallAction(ctx, callID, action)
	defer span.End()

	url := fmt.Sprintf("%s/%s/%s/calls", c.cfg.BaseURL, c.cfg.APIVersion, c.cfg.PhoneNumberID)

	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"call_id":           callID,
		"action":            action,
	}
	if sdpAnswer != "" {
		payload["session"] = map[string]string{
			"sdp_type": "answer",
			"sdp":      sdpAnswer,
		}
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("create %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		trace.RecordError(span, err)
		return fmt.Errorf("%s request: %w", action, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("calling API %s: %s - %s", action, resp.Status, string(body))
		trace.RecordError(span, err)
		return err
	}

	log.Printf("[whatsapp] %s successful for call %s", action, callID)
	return nil
}
