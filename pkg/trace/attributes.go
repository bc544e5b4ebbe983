package trace

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys used throughout the application
const (
	// Pipeline attributes
	AttrPipelineName    = "pipeline.name"
	AttrPipelineElement = "pipeline.element"
	AttrSessionID       = "session.id"
	AttrMessageType     = "message.type"

	// Audio attributes
	AttrAudioSampleRate = "audio.sample_rate"
	AttrAudioChannels   = "audio.channels"
	AttrAudioMediaType  = "audio.media_type"
	AttrAudioDataSize   = "audio.data_size"

	// Connection attributes
	AttrConnectionID    = "connection.id"
	AttrConnectionType  = "connection.type"
	AttrConnectionState = "connection.state"

	// Call attributes (WhatsApp calling)
	AttrCallID        = "call.id"
	AttrCallDirection = "call.direction"
	AttrCallFrom      = "call.from"
	AttrCallEvent     = "call.event"

	// Model attributes
	AttrLLMProvider = "llm.provider"
	AttrLLMModel    = "llm.model"

	// Error attributes
	AttrErrorType    = "error.type"
	AttrErrorMessage = "error.message"
)

// PipelineAttrs creates attributes for pipeline operations
func PipelineAttrs(pipelineName, elementName string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrPipelineName, pipelineName),
		attribute.String(AttrPipelineElement, elementName),
	}
}

// SessionAttrs creates attributes for session information
func SessionAttrs(sessionID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrSessionID, sessionID),
	}
}

// AudioAttrs creates attributes for audio data
func AudioAttrs(sampleRate, channels, dataSize int, mediaType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrAudioSampleRate, sampleRate),
		attribute.Int(AttrAudioChannels, channels),
		attribute.Int(AttrAudioDataSize, dataSize),
		attribute.String(AttrAudioMediaType, mediaType),
	}
}

// ConnectionAttrs creates attributes for connection information
func ConnectionAttrs(connID, connType, state string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrConnectionID, connID),
		attribute.String(AttrConnectionType, connType),
		attribute.String(AttrConnectionState, state),
	}
}

// CallAttrs creates attributes for WhatsApp call events
func CallAttrs(callID, direction, from string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrCallID, callID),
		attribute.String(AttrCallDirection, direction),
		attribute.String(AttrCallFrom, from),
	}
}

// LLMAttrs creates attributes for model operations
func LLMAttrs(provider, model string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrLLMProvider, provider),
		attribute.String(AttrLLMModel, model),
	}
}

// ErrorAttrs creates attributes for errors
func ErrorAttrs(errType, errMsg string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrErrorType, errType),
		attribute.String(AttrErrorMessage, errMsg),
	}
}
