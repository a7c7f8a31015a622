// Package webrtcrelay is a narrow SDP offer/answer and ICE candidate relay
// for sessions that negotiate a WebRTC media transport instead of plain
// websocket audio framing. It does not terminate or touch media: it
// completes the signaling handshake pion/webrtc requires and hands back an
// SDP answer, leaving track and RTP handling out of scope.
package webrtcrelay

import (
	"errors"
	"sync"

	"github.com/pion/webrtc/v3"
)

var ErrUnknownSession = errors.New("webrtcrelay: no peer connection for session")

// Relay tracks one pion PeerConnection per session id that has begun
// WebRTC signaling, mirroring the session package's own per-id registry
// shape.
type Relay struct {
	mu    sync.Mutex
	conns map[string]*webrtc.PeerConnection
	api   *webrtc.API
}

func New() *Relay {
	return &Relay{
		conns: make(map[string]*webrtc.PeerConnection),
		api:   webrtc.NewAPI(),
	}
}

// Offer answers a client's SDP offer for the given session, creating a new
// PeerConnection on every call and closing any previous one the session
// had. It waits for ICE gathering to
// complete so the returned answer is self-contained (no trickle).
func (r *Relay) Offer(sessionID, sdp string) (string, error) {
	pc, err := r.api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return "", err
	}

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
	if err := pc.SetRemoteDescription(offer); err != nil {
		_ = pc.Close()
		return "", err
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		_ = pc.Close()
		return "", err
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		_ = pc.Close()
		return "", err
	}
	<-gatherComplete

	r.mu.Lock()
	if old, ok := r.conns[sessionID]; ok {
		_ = old.Close()
	}
	r.conns[sessionID] = pc
	r.mu.Unlock()

	return pc.LocalDescription().SDP, nil
}

// AddICECandidate applies a trickled remote candidate to the session's
// already-negotiated PeerConnection.
func (r *Relay) AddICECandidate(sessionID, candidate string) error {
	r.mu.Lock()
	pc, ok := r.conns[sessionID]
	r.mu.Unlock()
	if !ok {
		return ErrUnknownSession
	}
	return pc.AddICECandidate(webrtc.ICECandidateInit{Candidate: candidate})
}

// Close tears down and forgets the session's PeerConnection, if any.
func (r *Relay) Close(sessionID string) {
	r.mu.Lock()
	pc, ok := r.conns[sessionID]
	delete(r.conns, sessionID)
	r.mu.Unlock()
	if ok {
		_ = pc.Close()
	}
}
