// Package turn drives one user utterance through transcription, transfer
// routing, moderation, generation and synthesis: the state machine at the
// center of a session.
package turn

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/duetvoice/bridge/internal/adapter"
	"github.com/duetvoice/bridge/internal/agent"
	"github.com/duetvoice/bridge/internal/protocol"
	"github.com/duetvoice/bridge/internal/router"
	"github.com/duetvoice/bridge/internal/state"
	"github.com/duetvoice/bridge/internal/turnerr"
)

// Phase is one state of the per-turn state machine.
type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhaseTranscribing  Phase = "transcribing"
	PhaseRouting       Phase = "routing"
	PhaseModeratingIn  Phase = "moderating_in"
	PhaseGenerating    Phase = "generating"
	PhaseSpeaking      Phase = "speaking"
	PhaseDone          Phase = "done"
	PhaseCancelled     Phase = "cancelled"
	PhaseBlocked       Phase = "blocked"
	PhaseFailed        Phase = "failed"
)

// DefaultMinSpeechMS is the minimum buffered audio duration (in
// milliseconds of 16kHz mono PCM16LE) an utterance must carry before STT
// is attempted, used when Deps.MinSpeechMS is unset. Below it the turn
// ends silently in Done. The check is on buffer length only: silent
// samples count toward the duration the same as speech.
const DefaultMinSpeechMS = 300

// pcmSampleRateHz assumes 16kHz mono 16-bit PCM: 32000 bytes/sec.
const pcmSampleRateHz = 16000

func minSpeechBytes(ms int) int {
	if ms <= 0 {
		ms = DefaultMinSpeechMS
	}
	return pcmSampleRateHz * 2 * ms / 1000
}

// Input is what starts a turn: either buffered audio or a text shortcut
// that skips STT.
type Input struct {
	Audio    []byte
	Text     string
	IsText   bool
	Format   string
	Language string
}

// Deps bundles everything a turn needs from its owning session.
type Deps struct {
	Adapters    adapter.Set
	Breaker     *adapter.Breaker
	RetryPolicy adapter.RetryPolicy
	Agents      *agent.Manager
	State       *state.ConversationState
	Emit        func(event any)
	TTSVoiceOf  func(router.AgentID) string
	MinSpeechMS int
}

// Turn is one short-lived pass through the pipeline.
type Turn struct {
	ID    int64
	Phase Phase

	// UserText, ReplyText, Blocked and BlockReason describe the turn's
	// outcome once Run returns, for the owning session's audit trail.
	UserText    string
	ReplyText   string
	Blocked     bool
	BlockReason string

	mu        sync.Mutex
	cancel    context.CancelFunc
	replyText strings.Builder
	deps      Deps
}

// New creates a turn bound to a cancellable child context of ctx.
func New(ctx context.Context, id int64, deps Deps) (*Turn, context.Context) {
	turnCtx, cancel := context.WithCancel(ctx)
	return &Turn{ID: id, Phase: PhaseIdle, cancel: cancel, deps: deps}, turnCtx
}

// Cancel aborts the turn; used for barge-in and superseding new turns.
func (t *Turn) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
	}
}

func (t *Turn) setPhase(p Phase) {
	t.mu.Lock()
	t.Phase = p
	t.mu.Unlock()
}

func (t *Turn) turnIDStr() string {
	return fmt.Sprintf("%d", t.ID)
}

func (t *Turn) emit(event any) {
	if t.deps.Emit != nil {
		t.deps.Emit(event)
	}
}

// partialReply returns what has been generated so far, for checkpointing
// on cancellation.
func (t *Turn) partialReply() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.replyText.String()
}

// Run drives the turn from Idle to a terminal phase. The caller is
// responsible for calling Cancel from a concurrent barge_in handler; Run
// observes ctx cancellation at every suspension point.
func (t *Turn) Run(ctx context.Context, in Input, currentAgent router.AgentID) (finalAgent router.AgentID, err error) {
	finalAgent = currentAgent

	if ctxCancelled(ctx) {
		return finalAgent, t.cancelled()
	}

	var userText string
	if in.IsText {
		userText = strings.TrimSpace(in.Text)
		t.setPhase(PhaseRouting)
	} else {
		t.setPhase(PhaseTranscribing)
		t.emit(protocol.STTProcessing{Type: protocol.TypeSTTProcessing, TurnID: t.turnIDStr()})

		if len(in.Audio) < minSpeechBytes(t.deps.MinSpeechMS) {
			t.setPhase(PhaseDone)
			return finalAgent, nil
		}

		start := time.Now()
		text, sttErr := t.transcribe(ctx, in)
		if sttErr != nil {
			if turnerr.Is(sttErr, turnerr.KindPermanentInput) {
				t.setPhase(PhaseDone)
				return finalAgent, nil
			}
			return finalAgent, t.fail(sttErr)
		}
		userText = strings.TrimSpace(text)
		if userText == "" {
			t.setPhase(PhaseDone)
			return finalAgent, nil
		}

		t.emit(protocol.FinalTranscript{
			Type:      protocol.TypeFinalTranscript,
			TurnID:    t.turnIDStr(),
			Text:      userText,
			LatencyMS: time.Since(start).Milliseconds(),
		})
		t.setPhase(PhaseRouting)
	}

	target := router.Route(userText, currentAgent)
	var handoffNote *agent.HandoffNote
	if target != currentAgent {
		if err := t.handoffAck(ctx, currentAgent, target); err != nil {
			return finalAgent, t.fail(err)
		}
		snap := t.deps.State.RenderContext()
		note := agent.BuildHandoffNote(snap, userText, target)
		handoffNote = &note

		t.deps.Agents.Switch(target)
		finalAgent = target
		t.emit(protocol.AgentChange{Type: protocol.TypeAgentChange, Agent: string(target)})
	} else {
		t.setPhase(PhaseModeratingIn)
		blocked, reason, modErr := t.moderate(ctx, userText)
		if modErr != nil {
			return finalAgent, t.fail(modErr)
		}
		if blocked {
			t.setPhase(PhaseBlocked)
			t.UserText, t.Blocked, t.BlockReason = userText, true, reason
			t.emit(protocol.GuardrailBlocked{Type: protocol.TypeGuardrailBlocked, Reason: reason})
			t.deps.State.AppendTurn(state.SpeakerUser, userText)
			t.setPhase(PhaseDone)
			return finalAgent, nil
		}
	}

	t.setPhase(PhaseGenerating)
	replyText, genErr := t.generate(ctx, finalAgent, userText, handoffNote)
	if genErr != nil {
		if turnerr.Is(genErr, turnerr.KindCancelledByUser) {
			return finalAgent, t.cancelled()
		}
		return finalAgent, t.fail(genErr)
	}

	blocked, reason, modErr := t.moderate(ctx, replyText)
	if modErr != nil {
		return finalAgent, t.fail(modErr)
	}
	if blocked {
		t.setPhase(PhaseBlocked)
		t.UserText, t.Blocked, t.BlockReason = userText, true, reason
		t.emit(protocol.GuardrailBlocked{Type: protocol.TypeGuardrailBlocked, Reason: reason})
		t.deps.State.AppendTurn(state.SpeakerUser, userText)
		t.setPhase(PhaseDone)
		return finalAgent, nil
	}

	t.setPhase(PhaseSpeaking)
	t.emit(protocol.TTSDone{Type: protocol.TypeTTSDone, TurnID: t.turnIDStr()})

	t.commit(userText, replyText, finalAgent)
	t.setPhase(PhaseDone)
	return finalAgent, nil
}

func (t *Turn) transcribe(ctx context.Context, in Input) (string, error) {
	const adapterName = "stt"
	if t.deps.Breaker != nil && !t.deps.Breaker.Allow(adapterName) {
		return "", turnerr.CircuitOpen(adapterName)
	}

	var text string
	err := adapter.Retry(ctx, t.deps.RetryPolicy, sttIsTransient, func() error {
		var callErr error
		text, callErr = t.deps.Adapters.STT.Transcribe(ctx, adapter.TranscribeRequest{
			Audio: in.Audio, Format: in.Format, Language: in.Language,
			OnPartial: func(partial string) {
				t.emit(protocol.PartialTranscript{Type: protocol.TypePartialTranscript, TurnID: t.turnIDStr(), Text: partial})
			},
		})
		return callErr
	})
	permanent := errors.Is(err, adapter.ErrPermanentInput)
	if t.deps.Breaker != nil {
		switch {
		case err == nil:
			t.deps.Breaker.RecordSuccess(adapterName)
		case !permanent:
			// A permanent input error is the caller's fault, not the
			// provider's availability, so it does not count toward the
			// breaker trip threshold.
			t.deps.Breaker.RecordFailure(adapterName)
		}
	}
	if err != nil {
		if permanent {
			return "", turnerr.Permanent(adapterName, err.Error())
		}
		return "", turnerr.Transient(adapterName, err)
	}
	return text, nil
}

func (t *Turn) moderate(ctx context.Context, text string) (blocked bool, reason string, err error) {
	if strings.TrimSpace(text) == "" {
		return false, "", nil
	}
	blocked, reason, callErr := t.deps.Adapters.Moderation.Check(ctx, text)
	if callErr != nil {
		return false, "", turnerr.Transient("moderation", callErr)
	}
	return blocked, reason, nil
}

// handoffAck synthesizes the acknowledgement sentence in the outgoing
// persona's voice before the switch, so the user hears continuity across
// the handoff.
func (t *Turn) handoffAck(ctx context.Context, from, to router.AgentID) error {
	ack := handoffAckText(from, to)
	voice := ""
	if t.deps.TTSVoiceOf != nil {
		voice = t.deps.TTSVoiceOf(from)
	}

	chunks, err := t.deps.Adapters.TTS.Synthesize(ctx, ack, voice)
	if err != nil {
		return turnerr.Transient("tts", err)
	}
	for evt := range chunks {
		if evt.Err != nil {
			if evt.Err == adapter.ErrStreamComplete {
				break
			}
			return turnerr.Transient("tts", evt.Err)
		}
		t.emit(protocol.TTSChunk{Type: protocol.TypeTTSChunk, TurnID: t.turnIDStr(), Audio: base64.StdEncoding.EncodeToString(evt.Data)})
	}
	return nil
}

func handoffAckText(from, to router.AgentID) string {
	if to == router.Alice {
		return "Bringing Alice in — she can help with the technical details."
	}
	return "Bringing Bob back in to keep things moving."
}

// generate streams the LLM reply, submitting completed sentences to TTS as
// they become available, and returns the full reply text once the stream
// ends (or a CancelledByUser turnerr if ctx is cancelled mid-stream).
func (t *Turn) generate(ctx context.Context, agentID router.AgentID, userText string, note *agent.HandoffNote) (string, error) {
	persona := t.deps.Agents.Persona(agentID)
	snap := t.deps.State.RenderContext()
	alreadySeen := false
	for _, seen := range snap.AgentSeen {
		if seen == string(agentID) {
			alreadySeen = true
			break
		}
	}

	messages, err := agent.BuildMessages(persona, alreadySeen, snap, userText, note)
	if err != nil {
		return "", turnerr.Permanent("agent", err.Error())
	}

	const adapterName = "llm"
	if t.deps.Breaker != nil && !t.deps.Breaker.Allow(adapterName) {
		return "", turnerr.CircuitOpen(adapterName)
	}

	tokens, err := t.deps.Adapters.LLM.Stream(ctx, messages, "", 0)
	if err != nil {
		if t.deps.Breaker != nil {
			t.deps.Breaker.RecordFailure(adapterName)
		}
		return "", turnerr.Transient(adapterName, err)
	}

	voice := ""
	if t.deps.TTSVoiceOf != nil {
		voice = t.deps.TTSVoiceOf(agentID)
	}

	sb := newSentenceBuffer()
	for {
		if ctxCancelled(ctx) {
			if t.deps.Breaker != nil {
				t.deps.Breaker.RecordFailure(adapterName)
			}
			return t.replyText.String(), turnerr.Cancelled()
		}
		select {
		case <-ctx.Done():
			if t.deps.Breaker != nil {
				t.deps.Breaker.RecordFailure(adapterName)
			}
			return t.replyText.String(), turnerr.Cancelled()
		case evt, ok := <-tokens:
			if !ok {
				if t.deps.Breaker != nil {
					t.deps.Breaker.RecordSuccess(adapterName)
				}
				if span := sb.Flush(); span != "" {
					t.submitSentence(ctx, span, voice)
				}
				return t.replyText.String(), nil
			}
			if evt.Err != nil {
				if evt.Err == adapter.ErrStreamComplete {
					if t.deps.Breaker != nil {
						t.deps.Breaker.RecordSuccess(adapterName)
					}
					if span := sb.Flush(); span != "" {
						t.submitSentence(ctx, span, voice)
					}
					return t.replyText.String(), nil
				}
				if t.deps.Breaker != nil {
					t.deps.Breaker.RecordFailure(adapterName)
				}
				return t.replyText.String(), turnerr.Transient(adapterName, evt.Err)
			}

			t.mu.Lock()
			t.replyText.WriteString(evt.Text)
			t.mu.Unlock()
			t.emit(protocol.LLMToken{Type: protocol.TypeLLMToken, TurnID: t.turnIDStr(), Token: evt.Text})

			for _, span := range sb.Push(evt.Text) {
				t.submitSentence(ctx, span, voice)
			}
		}
	}
}

func (t *Turn) submitSentence(ctx context.Context, span, voice string) {
	chunks, err := t.deps.Adapters.TTS.Synthesize(ctx, span, voice)
	if err != nil {
		return
	}
	for evt := range chunks {
		if evt.Err != nil {
			return
		}
		t.emit(protocol.TTSChunk{Type: protocol.TypeTTSChunk, TurnID: t.turnIDStr(), Audio: base64.StdEncoding.EncodeToString(evt.Data)})
	}
}

// commit appends the transcript entries, runs the extraction heuristics and
// emits the resulting state snapshot.
func (t *Turn) commit(userText, replyText string, agentID router.AgentID) {
	t.UserText, t.ReplyText = userText, replyText
	t.deps.State.AppendTurn(state.SpeakerUser, userText)
	t.deps.State.UpdateFromUser(userText)

	if replyText != "" {
		speaker := state.SpeakerBob
		if agentID == router.Alice {
			speaker = state.SpeakerAlice
		}
		t.deps.State.AppendTurn(speaker, replyText)
		t.deps.State.UpdateFromAgent(replyText)
		t.deps.Agents.Switch(agentID)
	}
	t.deps.State.MarkAgentSeen(string(agentID))

	t.emit(protocol.StateUpdate{Type: protocol.TypeStateUpdate, State: t.deps.State.RenderContext()})
}

func (t *Turn) fail(err error) error {
	t.setPhase(PhaseFailed)
	t.emit(protocol.ErrorEvent{Type: protocol.TypeErrorEvent, Message: errMessage(err)})
	return err
}

func (t *Turn) cancelled() error {
	t.setPhase(PhaseCancelled)
	partial := t.partialReply()
	t.emit(protocol.BargeInAck{Type: protocol.TypeBargeInAck, TurnID: t.turnIDStr()})
	t.emit(protocol.CheckpointSaved{Type: protocol.TypeCheckpointSaved, Partial: partial})
	return turnerr.Cancelled()
}

func errMessage(err error) string {
	if turnerr.Is(err, turnerr.KindCircuitOpen) {
		return "temporary difficulty"
	}
	return "something went wrong processing that"
}

// sttIsTransient reports whether an STT failure is worth retrying.
// adapter.ErrPermanentInput marks input the provider will reject on every
// attempt (malformed audio, unsupported format); everything else is
// assumed to be a transient provider condition.
func sttIsTransient(err error) bool {
	return !errors.Is(err, adapter.ErrPermanentInput)
}

// ctxCancelled reports ctx cancellation without blocking, so a turn that is
// already superseded before reaching a suspension point is caught
// deterministically instead of racing a channel read.
func ctxCancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
