package connection

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnectionStateString(t *testing.T) {
	cases := []struct {
		state ConnectionState
		want  string
	}{
		{ConnectionStateNew, "new"},
		{ConnectionStateConnecting, "connecting"},
		{ConnectionStateConnected, "connected"},
		{ConnectionStateDisconnected, "disconnected"},
		{ConnectionStateFailed, "failed"},
		{ConnectionStateClosed, "closed"},
		{ConnectionState(99), "unknown"},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, c.state.String())
	}
}

func TestMapWebRTCStateCoversFailureDefault(t *testing.T) {
	// unknown states are treated as failed
	assert.Equal(t, ConnectionStateFailed, mapWebRTCState(255))
}
