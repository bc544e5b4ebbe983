// Package server exposes the two HTTP surfaces of the bridge: the local
// WebRTC offer endpoint for browser testing and the WhatsApp webhook.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/voicebridge/voicebridge/pkg/connection"
	"github.com/voicebridge/voicebridge/pkg/trace"
)

// WebRTCConfig holds configuration for WebRTCServer.
type WebRTCConfig struct {
	// RTCUDPPort is the UDP port all peer connections are muxed onto.
	RTCUDPPort int

	// ICELite enables ICE lite mode (default: false)
	ICELite bool

	// Endpoint is the list of 1:1 NAT candidate addresses
	Endpoint []string

	// STUNServers are the STUN URLs offered to peers
	STUNServers []string
}

// DefaultWebRTCConfig returns the default server configuration.
func DefaultWebRTCConfig() *WebRTCConfig {
	return &WebRTCConfig{
		RTCUDPPort:  9000,
		STUNServers: []string{"stun:stun.l.google.com:19302"},
	}
}

// offerRequest is the POST /api/offer body.
type offerRequest struct {
	SDP  string `json:"sdp"`
	Type string `json:"type"`
}

// offerResponse is the POST /api/offer reply.
type offerResponse struct {
	SDP  string `json:"sdp"`
	Type string `json:"type"`
	PCID string `json:"pc_id"`
}

// WebRTCServer accepts browser offers over HTTP and hands each established
// peer to the connection-created callback.
type WebRTCServer struct {
	sync.RWMutex

	config *WebRTCConfig
	peers  map[string]connection.Connection
	api    *webrtc.API

	onConnectionCreated func(ctx context.Context, conn connection.Connection)
	onConnectionError   func(ctx context.Context, conn connection.Connection, err error)
}

// NewWebRTCServer creates a WebRTCServer with the given configuration.
func NewWebRTCServer(cfg *WebRTCConfig) *WebRTCServer {
	if cfg == nil {
		cfg = DefaultWebRTCConfig()
	}
	return &WebRTCServer{
		config:              cfg,
		peers:               make(map[string]connection.Connection),
		onConnectionCreated: func(ctx context.Context, conn connection.Connection) {},
		onConnectionError:   func(ctx context.Context, conn connection.Connection, err error) {},
	}
}

// OnConnectionCreated registers the callback invoked for each new peer.
func (s *WebRTCServer) OnConnectionCreated(f func(ctx context.Context, conn connection.Connection)) {
	s.onConnectionCreated = f
}

// OnConnectionError registers the callback invoked on negotiation errors.
func (s *WebRTCServer) OnConnectionError(f func(ctx context.Context, conn connection.Connection, err error)) {
	s.onConnectionError = f
}

// Start binds the shared UDP port and builds the WebRTC API.
func (s *WebRTCServer) Start() error {
	settingEngine := webrtc.SettingEngine{}
	if s.config.ICELite {
		settingEngine.SetLite(true)
	}

	if len(s.config.Endpoint) > 0 {
		settingEngine.SetNAT1To1IPs(s.config.Endpoint, webrtc.ICECandidateTypeHost)
	}

	settingEngine.SetFireOnTrackBeforeFirstRTP(true)

	settingEngine.SetNetworkTypes([]webrtc.NetworkType{
		webrtc.NetworkTypeUDP4,
		webrtc.NetworkTypeTCP4,
	})

	udpListener, err := net.ListenUDP("udp", &net.UDPAddr{
		IP:   net.ParseIP("0.0.0.0"),
		Port: s.config.RTCUDPPort,
	})
	if err != nil {
		return fmt.Errorf("listen on UDP port %d: %w", s.config.RTCUDPPort, err)
	}

	udpMux := webrtc.NewICEUDPMux(nil, udpListener)
	settingEngine.SetICEUDPMux(udpMux)

	s.api = webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine))

	return nil
}

// PeerCount returns the number of tracked peers.
func (s *WebRTCServer) PeerCount() int {
	s.RLock()
	defer s.RUnlock()
	return len(s.peers)
}

// RemovePeer forgets a peer after its connection closed.
func (s *WebRTCServer) RemovePeer(peerID string) {
	s.Lock()
	defer s.Unlock()
	delete(s.peers, peerID)
}

// Close tears down all active peers.
func (s *WebRTCServer) Close() {
	s.Lock()
	peers := s.peers
	s.peers = make(map[string]connection.Connection)
	s.Unlock()

	for id, conn := range peers {
		if err := conn.Close(); err != nil {
			log.Printf("[server] close peer %s: %v", id, err)
		}
	}
}

// HandleOffer answers a browser SDP offer on POST /api/offer. The body is
// {"sdp": ..., "type": ...}; the reply adds a pc_id for the session.
func (s *WebRTCServer) HandleOffer(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req offerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SDP == "" || req.Type == "" {
		writeJSONError(w, http.StatusBadRequest, "missing sdp or type")
		return
	}

	ctx := r.Context()

	pc, err := s.api.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: s.config.STUNServers},
		},
	})
	if err != nil {
		s.onConnectionError(ctx, nil, err)
		writeJSONError(w, http.StatusInternalServerError, "failed to create peer connection")
		return
	}

	peerID := uuid.New().String()
	webrtcConn := connection.NewWebRTCConnection(peerID, pc)

	_, span := trace.InstrumentConnectionCreated(ctx, peerID, "webrtc")
	span.End()

	s.Lock()
	s.peers[peerID] = webrtcConn
	s.Unlock()

	s.onConnectionCreated(ctx, webrtcConn)

	// On negotiation failure the peer connection must be released and the
	// tracking entry dropped, otherwise every bad offer leaks a peer.
	failNegotiation := func(err error, msg string) {
		s.onConnectionError(ctx, webrtcConn, err)
		if closeErr := webrtcConn.Close(); closeErr != nil {
			log.Printf("[server] close peer %s after failed negotiation: %v", peerID, closeErr)
		}
		s.RemovePeer(peerID)
		writeJSONError(w, http.StatusInternalServerError, msg)
	}

	offer := webrtc.SessionDescription{
		Type: webrtc.NewSDPType(req.Type),
		SDP:  req.SDP,
	}
	if err := pc.SetRemoteDescription(offer); err != nil {
		failNegotiation(err, "failed to set remote description")
		return
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		failNegotiation(err, "failed to create answer")
		return
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		failNegotiation(err, "failed to set local description")
		return
	}

	// Wait for ICE gathering so the answer carries all candidates
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	<-gatherComplete

	localDesc := pc.LocalDescription()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(offerResponse{
		SDP:  localDesc.SDP,
		Type: localDesc.Type.String(),
		PCID: peerID,
	})
}

// writeJSONError writes {"error": msg} with the given status code.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
