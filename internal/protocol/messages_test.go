package protocol

import (
	"errors"
	"testing"
)

func TestParseClientMessageAudioChunk(t *testing.T) {
	raw := []byte(`{"type":"audio_chunk","data":"AQID","turn_id":"t1"}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}

	audio, ok := msg.(AudioChunk)
	if !ok {
		t.Fatalf("message type = %T, want AudioChunk", msg)
	}
	if audio.Data != "AQID" || audio.TurnID != "t1" {
		t.Fatalf("unexpected audio chunk: %+v", audio)
	}
}

func TestParseClientMessageRejectsUnknownType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"wat"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseClientMessageRejectsMalformedJSON(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":`))
	if !errors.Is(err, ErrMalformedEnvelope) {
		t.Fatalf("error = %v, want ErrMalformedEnvelope", err)
	}
}

func TestParseClientMessageTextInput(t *testing.T) {
	raw := []byte(`{"type":"text_input","text":"how much will a kitchen remodel cost","turn_id":"t2"}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}

	input, ok := msg.(TextInput)
	if !ok {
		t.Fatalf("message type = %T, want TextInput", msg)
	}
	if input.Text != "how much will a kitchen remodel cost" || input.TurnID != "t2" {
		t.Fatalf("unexpected text input: %+v", input)
	}
}

func TestParseClientMessageBargeIn(t *testing.T) {
	raw := []byte(`{"type":"barge_in","turn_id":"t3"}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}

	bargeIn, ok := msg.(BargeIn)
	if !ok {
		t.Fatalf("message type = %T, want BargeIn", msg)
	}
	if bargeIn.TurnID != "t3" {
		t.Fatalf("TurnID = %q, want %q", bargeIn.TurnID, "t3")
	}
}

func TestParseClientMessageWebRTCOffer(t *testing.T) {
	raw := []byte(`{"type":"webrtc_offer","sdp":"v=0..."}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}

	offer, ok := msg.(WebRTCOffer)
	if !ok {
		t.Fatalf("message type = %T, want WebRTCOffer", msg)
	}
	if offer.SDP != "v=0..." {
		t.Fatalf("SDP = %q, want %q", offer.SDP, "v=0...")
	}
}

func TestParseClientMessageRejectsInvalidAudioChunk(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"audio_chunk","data":"","turn_id":""}`))
	if err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestParseClientMessageRejectsInvalidTextInput(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"text_input","text":""}`))
	if err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestParseClientMessageRejectsInvalidWebRTCOffer(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"webrtc_offer","sdp":""}`))
	if err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestParseClientMessageRejectsInvalidICECandidate(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"ice_candidate","candidate":""}`))
	if err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestTypeOf(t *testing.T) {
	cases := []struct {
		event any
		want  string
	}{
		{AudioChunk{Type: TypeAudioChunk}, "audio_chunk"},
		{WebRTCOffer{Type: TypeWebRTCOffer}, "webrtc_offer"},
		{WebRTCAnswer{Type: TypeWebRTCAnswer}, "webrtc_answer"},
		{ErrorEvent{Type: TypeErrorEvent}, "error"},
		{struct{}{}, "unknown"},
	}
	for _, c := range cases {
		if got := TypeOf(c.event); got != c.want {
			t.Errorf("TypeOf(%#v) = %q, want %q", c.event, got, c.want)
		}
	}
}

func BenchmarkParseClientMessageAudioChunk(b *testing.B) {
	raw := []byte(`{"type":"audio_chunk","data":"AQIDBAUGBwgJCgsMDQ4P","turn_id":"t1"}`)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		msg, err := ParseClientMessage(raw)
		if err != nil {
			b.Fatalf("ParseClientMessage() error = %v", err)
		}
		if _, ok := msg.(AudioChunk); !ok {
			b.Fatalf("message type = %T, want AudioChunk", msg)
		}
	}
}
