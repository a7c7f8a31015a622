// Package protocol defines the JSON envelope exchanged with the browser
// client over the bidirectional session transport.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies a websocket payload variant.
type MessageType string

const (
	// Inbound (client -> server).
	TypePing            MessageType = "ping"
	TypeAudioChunk      MessageType = "audio_chunk"
	TypeEndOfAudio      MessageType = "end_of_audio"
	TypeTextInput       MessageType = "text_input"
	TypeBargeIn         MessageType = "barge_in"
	TypeTTSPlaybackDone MessageType = "tts_playback_done"
	TypeWebRTCOffer     MessageType = "webrtc_offer"
	TypeICECandidate    MessageType = "ice_candidate"

	// Outbound (server -> client).
	TypeConnected         MessageType = "connected"
	TypePong              MessageType = "pong"
	TypeSTTProcessing     MessageType = "stt_processing"
	TypePartialTranscript MessageType = "partial_transcript"
	TypeFinalTranscript   MessageType = "final_transcript"
	TypeLLMToken          MessageType = "llm_token"
	TypeTTSChunk          MessageType = "tts_chunk"
	TypeTTSDone           MessageType = "tts_done"
	TypeAgentChange       MessageType = "agent_change"
	TypeBargeInAck        MessageType = "barge_in_ack"
	TypeCheckpointSaved   MessageType = "checkpoint_saved"
	TypeGuardrailBlocked  MessageType = "guardrail_blocked"
	TypeStateUpdate       MessageType = "state_update"
	TypeErrorEvent        MessageType = "error"
	TypeWebRTCAnswer      MessageType = "webrtc_answer"
)

var ErrUnsupportedType = errors.New("unsupported message type")

// ErrMalformedEnvelope marks a frame that failed to parse as JSON at all,
// as opposed to a recognized-but-invalid message (ErrUnsupportedType, or a
// validation error on a known type). Callers close the session on this
// error and only log-and-ignore the others.
var ErrMalformedEnvelope = errors.New("malformed envelope")

// Envelope is the minimal shape every message shares.
type Envelope struct {
	Type   MessageType `json:"type"`
	TurnID string      `json:"turn_id,omitempty"`
	TSMs   int64       `json:"ts,omitempty"`
}

// Inbound message shapes.

type Ping struct {
	Type MessageType `json:"type"`
}

type AudioChunk struct {
	Type   MessageType `json:"type"`
	Data   string      `json:"data"`
	TurnID string      `json:"turn_id"`
}

type EndOfAudio struct {
	Type   MessageType `json:"type"`
	TurnID string      `json:"turn_id"`
}

type TextInput struct {
	Type   MessageType `json:"type"`
	Text   string      `json:"text"`
	TurnID string      `json:"turn_id"`
}

type BargeIn struct {
	Type   MessageType `json:"type"`
	TurnID string      `json:"turn_id"`
}

type TTSPlaybackDone struct {
	Type MessageType `json:"type"`
}

type WebRTCOffer struct {
	Type MessageType `json:"type"`
	SDP  string      `json:"sdp"`
}

type ICECandidate struct {
	Type      MessageType `json:"type"`
	Candidate string      `json:"candidate"`
}

// Outbound message shapes.

type Connected struct {
	Type               MessageType `json:"type"`
	Agent              string      `json:"agent"`
	VADSpeechThreshold float64     `json:"vad_speech_threshold,omitempty"`
	VADSilenceMS       int         `json:"vad_silence_ms,omitempty"`
}

type Pong struct {
	Type MessageType `json:"type"`
}

type STTProcessing struct {
	Type   MessageType `json:"type"`
	TurnID string      `json:"turn_id"`
}

type PartialTranscript struct {
	Type   MessageType `json:"type"`
	TurnID string      `json:"turn_id"`
	Text   string      `json:"text"`
}

type FinalTranscript struct {
	Type      MessageType `json:"type"`
	TurnID    string      `json:"turn_id"`
	Text      string      `json:"text"`
	LatencyMS int64       `json:"latency_ms"`
}

type LLMToken struct {
	Type   MessageType `json:"type"`
	TurnID string      `json:"turn_id"`
	Token  string      `json:"token"`
}

type TTSChunk struct {
	Type   MessageType `json:"type"`
	TurnID string      `json:"turn_id"`
	Audio  string      `json:"audio"`
}

type TTSDone struct {
	Type   MessageType `json:"type"`
	TurnID string      `json:"turn_id"`
}

type AgentChange struct {
	Type  MessageType `json:"type"`
	Agent string      `json:"agent"`
}

type BargeInAck struct {
	Type   MessageType `json:"type"`
	TurnID string      `json:"turn_id"`
}

type CheckpointSaved struct {
	Type    MessageType `json:"type"`
	Partial string      `json:"partial"`
}

type GuardrailBlocked struct {
	Type   MessageType `json:"type"`
	Reason string      `json:"reason"`
}

type StateUpdate struct {
	Type  MessageType `json:"type"`
	State any         `json:"state"`
}

type ErrorEvent struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

type WebRTCAnswer struct {
	Type MessageType `json:"type"`
	SDP  string      `json:"sdp"`
}

// clientInbound is the loosely-typed wire shape used to sniff the `type`
// field before decoding into one of the concrete inbound structs above.
type clientInbound struct {
	Type      MessageType `json:"type"`
	Data      string      `json:"data"`
	TurnID    string      `json:"turn_id"`
	Text      string      `json:"text"`
	SDP       string      `json:"sdp"`
	Candidate string      `json:"candidate"`
}

// ParseClientMessage decodes a raw inbound frame into one of the typed
// inbound structs. Unknown types return ErrUnsupportedType so the caller
// can log and ignore per the session's event demultiplexer contract.
func ParseClientMessage(raw []byte) (any, error) {
	var inbound clientInbound
	if err := json.Unmarshal(raw, &inbound); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	switch inbound.Type {
	case TypePing:
		return Ping{Type: TypePing}, nil
	case TypeAudioChunk:
		if inbound.Data == "" {
			return nil, errors.New("invalid audio_chunk: missing data")
		}
		return AudioChunk{Type: TypeAudioChunk, Data: inbound.Data, TurnID: inbound.TurnID}, nil
	case TypeEndOfAudio:
		return EndOfAudio{Type: TypeEndOfAudio, TurnID: inbound.TurnID}, nil
	case TypeTextInput:
		if inbound.Text == "" {
			return nil, errors.New("invalid text_input: missing text")
		}
		return TextInput{Type: TypeTextInput, Text: inbound.Text, TurnID: inbound.TurnID}, nil
	case TypeBargeIn:
		return BargeIn{Type: TypeBargeIn, TurnID: inbound.TurnID}, nil
	case TypeTTSPlaybackDone:
		return TTSPlaybackDone{Type: TypeTTSPlaybackDone}, nil
	case TypeWebRTCOffer:
		if inbound.SDP == "" {
			return nil, errors.New("invalid webrtc_offer: missing sdp")
		}
		return WebRTCOffer{Type: TypeWebRTCOffer, SDP: inbound.SDP}, nil
	case TypeICECandidate:
		if inbound.Candidate == "" {
			return nil, errors.New("invalid ice_candidate: missing candidate")
		}
		return ICECandidate{Type: TypeICECandidate, Candidate: inbound.Candidate}, nil
	default:
		return nil, ErrUnsupportedType
	}
}

// TypeOf returns the wire type string for any inbound or outbound message
// struct, for metrics labeling. It returns "unknown" for anything else.
func TypeOf(event any) string {
	switch e := event.(type) {
	case Ping:
		return string(e.Type)
	case AudioChunk:
		return string(e.Type)
	case EndOfAudio:
		return string(e.Type)
	case TextInput:
		return string(e.Type)
	case BargeIn:
		return string(e.Type)
	case TTSPlaybackDone:
		return string(e.Type)
	case WebRTCOffer:
		return string(e.Type)
	case ICECandidate:
		return string(e.Type)
	case Connected:
		return string(e.Type)
	case Pong:
		return string(e.Type)
	case STTProcessing:
		return string(e.Type)
	case PartialTranscript:
		return string(e.Type)
	case FinalTranscript:
		return string(e.Type)
	case LLMToken:
		return string(e.Type)
	case TTSChunk:
		return string(e.Type)
	case TTSDone:
		return string(e.Type)
	case AgentChange:
		return string(e.Type)
	case BargeInAck:
		return string(e.Type)
	case CheckpointSaved:
		return string(e.Type)
	case GuardrailBlocked:
		return string(e.Type)
	case StateUpdate:
		return string(e.Type)
	case ErrorEvent:
		return string(e.Type)
	case WebRTCAnswer:
		return string(e.Type)
	default:
		return "unknown"
	}
}
