package whatsapp

import (
	"fmt"

	"github.com/pion/webrtc/v4"
)

// newCallAPI builds a webrtc.API tuned for WhatsApp's media stack. WhatsApp
// offers ice-lite with Opus on payload type 111 and DTMF on 126, uses UDP
// only, and expects us to take the DTLS client role.
func newCallAPI() (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}

	opusCodec := webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeOpus,
			ClockRate:   48000,
			Channels:    2,
			SDPFmtpLine: "minptime=10;useinbandfec=1", // must match WhatsApp's fmtp exactly
			RTCPFeedback: []webrtc.RTCPFeedback{
				{Type: "transport-cc"},
			},
		},
		PayloadType: 111,
	}
	if err := m.RegisterCodec(opusCodec, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("register opus codec: %w", err)
	}

	telephoneEvent := webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:  "audio/telephone-event",
			ClockRate: 8000,
		},
		PayloadType: 126,
	}
	if err := m.RegisterCodec(telephoneEvent, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("register telephone-event codec: %w", err)
	}

	// Header extensions present in WhatsApp's offer; registering them is
	// required for the SDP to parse.
	extensions := []string{
		"urn:ietf:params:rtp-hdrext:ssrc-audio-level",
		"http://www.webrtc.org/experiments/rtp-hdrext/abs-send-time",
		"http://www.ietf.org/id/draft-holmer-rmcat-transport-wide-cc-extensions-01",
	}
	for _, uri := range extensions {
		ext := webrtc.RTPHeaderExtensionCapability{URI: uri}
		if err := m.RegisterHeaderExtension(ext, webrtc.RTPCodecTypeAudio); err != nil {
			return nil, fmt.Errorf("register header extension %s: %w", uri, err)
		}
	}

	s := webrtc.SettingEngine{}
	// WhatsApp offers actpass; answer as the active/client side.
	s.SetAnsweringDTLSRole(webrtc.DTLSRoleClient)
	// WhatsApp media is UDP only.
	s.SetNetworkTypes([]webrtc.NetworkType{
		webrtc.NetworkTypeUDP4,
		webrtc.NetworkTypeUDP6,
	})

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithSettingEngine(s),
	), nil
}

// callRTCConfiguration returns the peer connection configuration for calls.
// WhatsApp is ice-lite, so we answer as a full agent and need STUN.
func callRTCConfiguration() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
	}
}
