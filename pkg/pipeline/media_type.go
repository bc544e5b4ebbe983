package pipeline

// AudioMediaType identifies the encoding of AudioData payloads.
type AudioMediaType string

const (
	// Raw PCM audio, 16-bit little-endian
	AudioMediaTypeRaw AudioMediaType = "audio/x-raw"
	// Opus encoded audio
	AudioMediaTypeOpus AudioMediaType = "audio/x-opus"
	// PCM audio format (wire label used by the model API)
	AudioMediaTypePCM AudioMediaType = "audio/pcm"
)

func (amt AudioMediaType) String() string {
	return string(amt)
}
