package session

import (
	"context"
	"encoding/base64"
	"errors"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/duetvoice/bridge/internal/adapter"
	"github.com/duetvoice/bridge/internal/agent"
	"github.com/duetvoice/bridge/internal/observability"
	"github.com/duetvoice/bridge/internal/protocol"
	"github.com/duetvoice/bridge/internal/router"
	"github.com/duetvoice/bridge/internal/state"
	"github.com/duetvoice/bridge/internal/state/audit"
	"github.com/duetvoice/bridge/internal/turn"
	"github.com/duetvoice/bridge/internal/turnerr"
	"github.com/duetvoice/bridge/internal/webrtcrelay"
)

// Config bundles everything the connection actor needs beyond the
// lightweight record the Manager tracks.
type Config struct {
	Adapters           adapter.Set
	VoiceBob           string
	VoiceAlice         string
	Audit              audit.Sink
	Metrics            *observability.Metrics
	WebRTC             *webrtcrelay.Relay
	RetryPolicy        adapter.RetryPolicy
	BreakerThreshold   int
	BreakerCooldown    time.Duration
	InactivityNudge    time.Duration
	DeafnessWindow     time.Duration
	MinSpeechMS        int
	VADSpeechThreshold float64
	VADSilenceMS       int
}

// ErrOutboundQueueOverflow is returned by RunConnection when the outbound
// queue is full at the moment of a send, so that event is dropped; the caller
// must tear the transport down, since the client is no longer draining
// events fast enough to keep the session meaningful.
var ErrOutboundQueueOverflow = errors.New("session: outbound queue overflow")

const greetingText = "Hi, I'm Bob — tell me a bit about the space you're looking to renovate."

// RunConnection drives one browser connection from greeting to close: it
// demultiplexes inbound client events, spawns a turn for every committed
// utterance or text shortcut, enforces the post-TTS deafness window and
// the inactivity nudge, and serializes everything onto outbound. It
// returns once ctx is cancelled or inbound is closed by the caller.
func RunConnection(ctx context.Context, mgr *Manager, sessID string, inbound <-chan any, outbound chan<- any, cfg Config) error {
	sessCtx, sessCancel := context.WithCancel(ctx)
	defer sessCancel()

	st := state.New()
	agents := agent.NewManager(cfg.VoiceBob, cfg.VoiceAlice)
	breaker := adapter.NewBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown)

	if cfg.WebRTC != nil {
		defer cfg.WebRTC.Close(sessID)
	}

	if cfg.Metrics != nil {
		cfg.Metrics.ActiveSessions.Inc()
		cfg.Metrics.SessionEvents.WithLabelValues("started").Inc()
		defer cfg.Metrics.ActiveSessions.Dec()
		defer cfg.Metrics.SessionEvents.WithLabelValues("ended").Inc()
	}

	var overflowed atomic.Bool

	send := func(event any) {
		select {
		case outbound <- event:
			if cfg.Metrics != nil {
				cfg.Metrics.ObserveOutboundMessage(protocol.TypeOf(event), "sent")
			}
		default:
			log.Printf("session %s: outbound queue full, closing session", sessID)
			if cfg.Metrics != nil {
				cfg.Metrics.ObserveOutboundMessage(protocol.TypeOf(event), "dropped")
			}
			overflowed.Store(true)
			sessCancel()
		}
	}

	turnDeps := func() turn.Deps {
		return turn.Deps{
			Adapters:    cfg.Adapters,
			Breaker:     breaker,
			RetryPolicy: cfg.RetryPolicy,
			Agents:      agents,
			State:       st,
			Emit:        send,
			TTSVoiceOf:  func(id router.AgentID) string { return agents.Persona(id).VoiceID },
			MinSpeechMS: cfg.MinSpeechMS,
		}
	}

	if err := greet(sessCtx, st, agents, cfg.Adapters.TTS, send, cfg.VADSpeechThreshold, cfg.VADSilenceMS); err != nil {
		send(protocol.ErrorEvent{Type: protocol.TypeErrorEvent, Message: "failed to start session"})
	}
	_ = mgr.Touch(sessID)

	var (
		turnMu     sync.Mutex
		activeTurn *turn.Turn
		audioBuf   []byte
	)

	cancelActiveTurn := func() {
		turnMu.Lock()
		tr := activeTurn
		turnMu.Unlock()
		if tr != nil {
			tr.Cancel()
		}
	}

	runTurn := func(in turn.Input) {
		cancelActiveTurn()

		turnID, err := mgr.NextTurnID(sessID)
		if err != nil {
			return
		}
		sess, err := mgr.Get(sessID)
		if err != nil {
			return
		}

		tr, turnCtx := turn.New(sessCtx, turnID, turnDeps())
		turnMu.Lock()
		activeTurn = tr
		turnMu.Unlock()

		go func() {
			finalAgent, runErr := tr.Run(turnCtx, in, sess.AgentID)

			turnMu.Lock()
			if activeTurn == tr {
				activeTurn = nil
			}
			turnMu.Unlock()

			if finalAgent != sess.AgentID && cfg.Metrics != nil {
				cfg.Metrics.ObserveAgentHandoff(string(finalAgent))
			}
			_ = mgr.SetAgent(sessID, finalAgent)
			_ = mgr.Touch(sessID)

			switch {
			case tr.Blocked:
				if cfg.Metrics != nil {
					cfg.Metrics.ObserveGuardrailBlocked(tr.BlockReason)
				}
				recordAudit(sessCtx, cfg.Audit, sessID, finalAgent, tr.UserText, "", true)
			case runErr != nil:
				if cfg.Metrics != nil && turnerr.Is(runErr, turnerr.KindCircuitOpen) {
					var te *turnerr.Error
					if errors.As(runErr, &te) {
						cfg.Metrics.ObserveCircuitBreakerOpen(te.Adapter)
					}
				}
			case runErr == nil:
				recordAudit(sessCtx, cfg.Audit, sessID, finalAgent, tr.UserText, tr.ReplyText, false)
				_ = mgr.SetDeafUntil(sessID, time.Now().Add(cfg.DeafnessWindow))
			}
		}()
	}

	inactivity := time.NewTimer(cfg.InactivityNudge)
	defer inactivity.Stop()

	resetInactivity := func() {
		if !inactivity.Stop() {
			select {
			case <-inactivity.C:
			default:
			}
		}
		inactivity.Reset(cfg.InactivityNudge)
	}

	for {
		select {
		case <-sessCtx.Done():
			cancelActiveTurn()
			if overflowed.Load() {
				return ErrOutboundQueueOverflow
			}
			return nil

		case <-inactivity.C:
			turnMu.Lock()
			busy := activeTurn != nil
			turnMu.Unlock()
			if busy {
				// A turn is mid-flight; its own events are proof of life,
				// so the nudge only fires once the session goes idle.
				inactivity.Reset(cfg.InactivityNudge)
				continue
			}
			nudge(sessCtx, st, agents, cfg.Adapters.TTS, send)
			inactivity.Reset(cfg.InactivityNudge)

		case msg, ok := <-inbound:
			if !ok {
				cancelActiveTurn()
				return nil
			}
			resetInactivity()
			_ = mgr.Touch(sessID)

			switch m := msg.(type) {
			case protocol.Ping:
				send(protocol.Pong{Type: protocol.TypePong})

			case protocol.AudioChunk:
				if isDeaf(mgr, sessID) {
					continue
				}
				data, decErr := base64.StdEncoding.DecodeString(m.Data)
				if decErr != nil {
					send(protocol.ErrorEvent{Type: protocol.TypeErrorEvent, Message: "invalid audio encoding"})
					continue
				}
				audioBuf = append(audioBuf, data...)

			case protocol.EndOfAudio:
				buf := audioBuf
				audioBuf = nil
				runTurn(turn.Input{Audio: buf, Format: "pcm16le"})

			case protocol.TextInput:
				text := strings.TrimSpace(m.Text)
				if text == "" {
					continue
				}
				runTurn(turn.Input{Text: text, IsText: true})

			case protocol.BargeIn:
				cancelActiveTurn()
				audioBuf = nil
				_ = mgr.SetDeafUntil(sessID, time.Now().Add(cfg.DeafnessWindow))

			case protocol.TTSPlaybackDone:
				// The client's audio queue has drained; end the deafness
				// window early instead of waiting out the fallback pad.
				_ = mgr.SetDeafUntil(sessID, time.Now())

			case protocol.WebRTCOffer:
				if cfg.WebRTC == nil {
					continue
				}
				answer, err := cfg.WebRTC.Offer(sessID, m.SDP)
				if err != nil {
					send(protocol.ErrorEvent{Type: protocol.TypeErrorEvent, Message: "webrtc negotiation failed"})
					continue
				}
				send(protocol.WebRTCAnswer{Type: protocol.TypeWebRTCAnswer, SDP: answer})

			case protocol.ICECandidate:
				if cfg.WebRTC == nil {
					continue
				}
				if err := cfg.WebRTC.AddICECandidate(sessID, m.Candidate); err != nil {
					send(protocol.ErrorEvent{Type: protocol.TypeErrorEvent, Message: "invalid ice candidate"})
				}

			default:
				log.Printf("session %s: ignoring unrecognized inbound message %T", sessID, msg)
			}
		}
	}
}

func isDeaf(mgr *Manager, sessID string) bool {
	sess, err := mgr.Get(sessID)
	if err != nil {
		return false
	}
	return time.Now().Before(sess.DeafUntil)
}

// greet speaks Bob's opening line, before the first inbound message
// arrives, and marks Bob as already introduced. The connected event also
// carries the server's VAD tuning so the client's voice-activity detector
// stays centrally configured instead of hardcoding thresholds.
func greet(ctx context.Context, st *state.ConversationState, agents *agent.Manager, tts adapter.TTS, send func(event any), vadSpeechThreshold float64, vadSilenceMS int) error {
	send(protocol.Connected{
		Type:               protocol.TypeConnected,
		Agent:              string(router.Bob),
		VADSpeechThreshold: vadSpeechThreshold,
		VADSilenceMS:       vadSilenceMS,
	})

	if err := speak(ctx, tts, agents.Persona(router.Bob).VoiceID, greetingText, send); err != nil {
		return err
	}
	st.AppendTurn(state.SpeakerBob, greetingText)
	st.MarkAgentSeen(string(router.Bob))
	return nil
}

// nudge speaks a short canned check-in in the current persona's voice
// after a stretch of silence from the user.
func nudge(ctx context.Context, st *state.ConversationState, agents *agent.Manager, tts adapter.TTS, send func(event any)) {
	current := agents.Current()
	text := nudgeText(current.ID)
	if err := speak(ctx, tts, current.VoiceID, text, send); err != nil {
		return
	}
	st.AppendTurn(speakerFor(current.ID), text)
}

func nudgeText(id router.AgentID) string {
	if id == router.Alice {
		return "Still there? Let me know if you'd like to keep going on the technical details."
	}
	return "Still there? Whenever you're ready, tell me more about the project."
}

func speakerFor(id router.AgentID) state.Speaker {
	if id == router.Alice {
		return state.SpeakerAlice
	}
	return state.SpeakerBob
}

func speak(ctx context.Context, tts adapter.TTS, voice, text string, send func(event any)) error {
	chunks, err := tts.Synthesize(ctx, text, voice)
	if err != nil {
		return err
	}
	for evt := range chunks {
		if evt.Err != nil {
			if evt.Err == adapter.ErrStreamComplete {
				return nil
			}
			return evt.Err
		}
		send(protocol.TTSChunk{Type: protocol.TypeTTSChunk, Audio: base64.StdEncoding.EncodeToString(evt.Data)})
	}
	return nil
}

func recordAudit(ctx context.Context, sink audit.Sink, sessID string, agentID router.AgentID, userText, replyText string, blocked bool) {
	if sink == nil {
		return
	}
	_ = sink.Record(ctx, audit.TurnRecord{
		SessionID: sessID,
		AgentID:   string(agentID),
		UserText:  userText,
		ReplyText: replyText,
		Blocked:   blocked,
	})
}
