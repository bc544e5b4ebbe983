package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/voicebridge/voicebridge/pkg/whatsapp"
)

// WhatsAppHandler exposes the WhatsApp Business webhook over HTTP: GET for
// verification, POST for call and message events.
type WhatsAppHandler struct {
	client *whatsapp.Client
}

// NewWhatsAppHandler creates a handler backed by the given calling client.
func NewWhatsAppHandler(client *whatsapp.Client) *WhatsAppHandler {
	return &WhatsAppHandler{client: client}
}

// Router builds the webhook router: verification and events on /, plus
// health and status endpoints.
func (h *WhatsAppHandler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(loggingMiddleware)

	r.HandleFunc("/", h.HandleVerify).Methods(http.MethodGet)
	r.HandleFunc("/", h.HandleWebhook).Methods(http.MethodPost)
	r.HandleFunc("/health", h.HandleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", h.HandleStatus).Methods(http.MethodGet)

	return r
}

// loggingMiddleware logs every incoming request.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[http] %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}

// HandleVerify answers the webhook verification handshake. A matching
// subscribe request echoes hub.challenge; anything else gets 403.
func (h *WhatsAppHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	echo, err := h.client.VerifyWebhook(mode, token, challenge)
	if err != nil {
		log.Printf("[http] webhook verification failed: %v", err)
		writeJSONError(w, http.StatusForbidden, "verification failed")
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(echo))
}

// HandleWebhook processes one webhook delivery. Malformed or non-WhatsApp
// payloads get 400, processing failures 500.
func (h *WhatsAppHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	if err := h.client.HandleWebhook(r.Context(), body); err != nil {
		if errors.Is(err, whatsapp.ErrInvalidPayload) {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("[http] webhook processing error: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "success"})
}

// HandleHealth is a liveness probe.
func (h *WhatsAppHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

// HandleStatus reports call and configuration state.
func (h *WhatsAppHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":       "running",
		"active_calls": h.client.ActiveCallCount(),
		"timestamp":    time.Now().Format(time.RFC3339),
	})
}
