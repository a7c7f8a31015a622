package adapter

import (
	"context"
	"errors"
	"testing"
)

func TestMockSTTTranscribesNonEmptyAudio(t *testing.T) {
	m := NewMockSTT()
	text, err := m.Transcribe(context.Background(), TranscribeRequest{Audio: []byte{1, 2, 3}})
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if text == "" {
		t.Fatalf("expected non-empty transcript")
	}
}

func TestMockSTTEmptyAudioReturnsEmpty(t *testing.T) {
	m := NewMockSTT()
	text, err := m.Transcribe(context.Background(), TranscribeRequest{})
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if text != "" {
		t.Fatalf("text = %q, want empty", text)
	}
}

func TestMockLLMStreamTerminatesWithErrStreamComplete(t *testing.T) {
	m := NewMockLLM()
	ch, err := m.Stream(context.Background(), []Message{{Role: "user", Text: "hello there"}}, "gpt-4o-mini", 0)
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	var tokens []string
	var terminal error
	for ev := range ch {
		if ev.Err != nil {
			terminal = ev.Err
			break
		}
		tokens = append(tokens, ev.Text)
	}
	if !errors.Is(terminal, ErrStreamComplete) {
		t.Fatalf("terminal error = %v, want ErrStreamComplete", terminal)
	}
	if len(tokens) == 0 {
		t.Fatalf("expected at least one token")
	}
}

func TestMockTTSSynthesizeEmptyText(t *testing.T) {
	m := NewMockTTS()
	ch, err := m.Synthesize(context.Background(), "", "alloy")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	ev := <-ch
	if !errors.Is(ev.Err, ErrStreamComplete) {
		t.Fatalf("err = %v, want ErrStreamComplete", ev.Err)
	}
}

func TestMockModerationNeverBlocks(t *testing.T) {
	m := NewMockModeration()
	blocked, _, err := m.Check(context.Background(), "anything at all")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if blocked {
		t.Fatalf("MockModeration should never block")
	}
}
