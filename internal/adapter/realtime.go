package adapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/duetvoice/bridge/internal/audio"
	"github.com/duetvoice/bridge/internal/reliability"
)

// OpenAISTT transcribes buffered utterances with the Whisper endpoint.
// Grounded on the teacher's provider-plugin shape (one struct per
// capability, a thin client wrapper) as seen across the retrieved
// go-openai integrations.
type OpenAISTT struct {
	client *openai.Client
	model  string
}

func NewOpenAISTT(apiKey, model string) *OpenAISTT {
	if model == "" {
		model = openai.Whisper1
	}
	return &OpenAISTT{client: openai.NewClient(apiKey), model: model}
}

// pcmSampleRateHz matches the client's fixed capture rate (spec: PCM16LE,
// 16 kHz mono).
const pcmSampleRateHz = 16000

func (s *OpenAISTT) Transcribe(ctx context.Context, req TranscribeRequest) (string, error) {
	if len(req.Audio) == 0 {
		return "", nil
	}

	payload := req.Audio
	ext := formatExtension(req.Format)
	if req.Format == "pcm16le" || req.Format == "" {
		wav, err := audio.EncodeWAVPCM16LE(req.Audio, pcmSampleRateHz)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrPermanentInput, err)
		}
		payload = wav
		ext = "wav"
	}

	resp, err := s.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    s.model,
		Language: req.Language,
		Format:   openai.AudioResponseFormatJSON,
		Reader:   bytes.NewReader(payload),
		FilePath: "audio." + ext,
	})
	if err != nil {
		return "", classifyTranscriptionError(err)
	}
	return resp.Text, nil
}

// classifyTranscriptionError marks a Whisper API failure as permanent
// (malformed audio, unsupported format, rejected request) when its HTTP
// status is not one of the retryable codes, so the caller does not burn
// retry attempts on input the provider will reject every time.
func classifyTranscriptionError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && !reliability.IsRetryableHTTPStatus(apiErr.HTTPStatusCode) {
		return fmt.Errorf("%w: %v", ErrPermanentInput, err)
	}
	return err
}

func formatExtension(format string) string {
	if format == "" {
		return "wav"
	}
	return format
}

// OpenAILLM streams a chat completion and forwards deltas as TokenEvents.
type OpenAILLM struct {
	client *openai.Client
}

func NewOpenAILLM(apiKey string) *OpenAILLM {
	return &OpenAILLM{client: openai.NewClient(apiKey)}
}

func (l *OpenAILLM) Stream(ctx context.Context, messages []Message, model string, maxTokens int) (<-chan TokenEvent, error) {
	chatMessages := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		chatMessages = append(chatMessages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Text,
		})
	}

	stream, err := l.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:     model,
		Messages:  chatMessages,
		MaxTokens: maxTokens,
		Stream:    true,
	})
	if err != nil {
		return nil, err
	}

	out := make(chan TokenEvent, 16)
	go func() {
		defer close(out)
		defer stream.Close()
		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				out <- TokenEvent{Err: ErrStreamComplete}
				return
			}
			if err != nil {
				out <- TokenEvent{Err: err}
				return
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			token := chunk.Choices[0].Delta.Content
			if token == "" {
				continue
			}
			select {
			case <-ctx.Done():
				out <- TokenEvent{Err: ctx.Err()}
				return
			case out <- TokenEvent{Text: token}:
			}
		}
	}()
	return out, nil
}

// OpenAITTS synthesizes speech with the OpenAI speech endpoint, chunking
// the raw response stream into audio frames of at most 4096 bytes as it
// arrives.
type OpenAITTS struct {
	client *openai.Client
	model  string
}

func NewOpenAITTS(apiKey, model string) *OpenAITTS {
	if model == "" {
		model = string(openai.TTSModel1)
	}
	return &OpenAITTS{client: openai.NewClient(apiKey), model: model}
}

func (t *OpenAITTS) Synthesize(ctx context.Context, text, voice string) (<-chan AudioChunkEvent, error) {
	resp, err := t.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model: openai.SpeechModel(t.model),
		Input: text,
		Voice: openai.SpeechVoice(voice),
	})
	if err != nil {
		return nil, err
	}

	out := make(chan AudioChunkEvent, 8)
	go func() {
		defer close(out)
		defer resp.Close()
		const chunkSize = 4096
		buf := make([]byte, chunkSize)
		for {
			n, readErr := resp.Read(buf)
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				select {
				case <-ctx.Done():
					out <- AudioChunkEvent{Err: ctx.Err()}
					return
				case out <- AudioChunkEvent{Data: data}:
				}
			}
			if readErr != nil {
				if errors.Is(readErr, io.EOF) {
					out <- AudioChunkEvent{Err: ErrStreamComplete}
					return
				}
				out <- AudioChunkEvent{Err: readErr}
				return
			}
		}
	}()
	return out, nil
}
