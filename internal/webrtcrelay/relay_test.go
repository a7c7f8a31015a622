package webrtcrelay

import (
	"testing"

	"github.com/pion/webrtc/v3"
)

// localOffer spins up a throwaway client-side PeerConnection and returns a
// real SDP offer for the relay to answer, mirroring what a browser would
// send over webrtc_offer.
func localOffer(t *testing.T) (string, func()) {
	t.Helper()
	client, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatalf("NewPeerConnection: %v", err)
	}
	if _, err := client.CreateDataChannel("audio", nil); err != nil {
		t.Fatalf("CreateDataChannel: %v", err)
	}
	offer, err := client.CreateOffer(nil)
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(client)
	if err := client.SetLocalDescription(offer); err != nil {
		t.Fatalf("SetLocalDescription: %v", err)
	}
	<-gatherComplete
	return client.LocalDescription().SDP, func() { _ = client.Close() }
}

func TestRelayOfferProducesAnswer(t *testing.T) {
	offerSDP, cleanup := localOffer(t)
	defer cleanup()

	r := New()
	defer r.Close("sess-1")

	answer, err := r.Offer("sess-1", offerSDP)
	if err != nil {
		t.Fatalf("Offer: %v", err)
	}
	if answer == "" {
		t.Fatalf("expected non-empty SDP answer")
	}
}

func TestRelayAddICECandidateUnknownSession(t *testing.T) {
	r := New()
	err := r.AddICECandidate("no-such-session", "candidate:0 1 UDP 2 0.0.0.0 0 typ host")
	if err != ErrUnknownSession {
		t.Fatalf("err = %v, want ErrUnknownSession", err)
	}
}

func TestRelayCloseIsIdempotent(t *testing.T) {
	offerSDP, cleanup := localOffer(t)
	defer cleanup()

	r := New()
	if _, err := r.Offer("sess-2", offerSDP); err != nil {
		t.Fatalf("Offer: %v", err)
	}
	r.Close("sess-2")
	r.Close("sess-2")
}
