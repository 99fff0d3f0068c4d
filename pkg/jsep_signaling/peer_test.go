package jsep_signaling

import (
	"context"
	"crypto/sha256"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/jsep_engine/pkg/jsep"
	"github.com/arzzra/jsep_engine/pkg/jsep_sdp"
)

const testTimeout = 5 * time.Second

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newSession(t *testing.T, name string, types ...jsep_sdp.MediaType) *jsep.Session {
	t.Helper()

	config := jsep.DefaultConfig()
	config.Name = name
	config.Logger = quietLogger
	session, err := jsep.NewSession(config)
	require.NoError(t, err)

	digest := sha256.Sum256([]byte(name))
	require.NoError(t, session.AddDtlsFingerprint("sha-256", digest[:]))

	for i, mediaType := range types {
		track := jsep.NewTrack(mediaType, name, mediaType.String()+"_"+string(rune('a'+i)))
		require.NoError(t, session.AddTrack(track))
	}
	return session
}

// connectedPeers соединяет две сессии через httptest сервер и запускает чтение
func connectedPeers(t *testing.T, offererSession, answererSession *jsep.Session) (*Peer, *Peer, context.CancelFunc) {
	t.Helper()

	accepted := make(chan *websocket.Conn, 1)
	server := httptest.NewServer(Handler(func(conn *websocket.Conn) {
		accepted <- conn
	}))
	t.Cleanup(server.Close)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	t.Cleanup(cancel)

	clientConn, err := Connect(ctx, "ws"+strings.TrimPrefix(server.URL, "http"))
	require.NoError(t, err)

	var serverConn *websocket.Conn
	select {
	case serverConn = <-accepted:
	case <-ctx.Done():
		t.Fatal("server did not accept connection")
	}

	offerer := NewPeer(offererSession, clientConn, quietLogger)
	answerer := NewPeer(answererSession, serverConn, quietLogger)
	go func() { _ = offerer.Run(ctx) }()
	go func() { _ = answerer.Run(ctx) }()
	return offerer, answerer, cancel
}

func waitNegotiated(t *testing.T, peers ...*Peer) {
	t.Helper()
	for _, peer := range peers {
		select {
		case <-peer.Negotiated():
		case <-time.After(testTimeout):
			t.Fatalf("%s: negotiation timeout", peer.Session().Name())
		}
	}
}

func TestOfferAnswerOverWebSocket(t *testing.T) {
	offerer, answerer, _ := connectedPeers(t,
		newSession(t, "alice", jsep_sdp.MediaTypeAudio, jsep_sdp.MediaTypeVideo),
		newSession(t, "bob", jsep_sdp.MediaTypeAudio))

	require.NoError(t, offerer.SendOffer(jsep.OfferOptions{}))
	waitNegotiated(t, answerer, offerer)

	for _, peer := range []*Peer{offerer, answerer} {
		session := peer.Session()
		assert.Equal(t, jsep.StateStable, session.State())
		assert.Len(t, session.NegotiatedTrackPairs(), 2, session.Name())
	}
	assert.Len(t, answerer.Session().RemoteTracks(), 2)
	assert.Len(t, offerer.Session().RemoteTracks(), 1)
}

func TestRenegotiationAndCandidates(t *testing.T) {
	offerer, answerer, _ := connectedPeers(t,
		newSession(t, "alice", jsep_sdp.MediaTypeAudio),
		newSession(t, "bob"))

	require.NoError(t, offerer.SendOffer(jsep.OfferOptions{}))
	waitNegotiated(t, answerer, offerer)

	const candidate = "candidate:0 1 UDP 2122252543 192.168.1.10 49203 typ host"
	require.NoError(t, offerer.SendCandidate(candidate, 0))
	require.NoError(t, offerer.SendEndOfCandidates(0))

	require.Eventually(t, func() bool {
		return strings.Contains(answerer.Session().RemoteDescription(jsep.DescriptionCurrent), "a="+candidate)
	}, testTimeout, 10*time.Millisecond)
	assert.Contains(t, offerer.Session().LocalDescription(jsep.DescriptionCurrent), "a=end-of-candidates")

	// собеседник инициирует повторное согласование
	require.NoError(t, answerer.Session().AddTrack(jsep.NewTrack(jsep_sdp.MediaTypeVideo, "bob", "camera")))
	require.NoError(t, answerer.SendOffer(jsep.OfferOptions{}))
	waitNegotiated(t, offerer, answerer)

	assert.Len(t, offerer.Session().RemoteTracks(), 1)
	assert.Equal(t, "camera", offerer.Session().RemoteTracks()[0].TrackID())
}

func TestRejectedMessageKeepsConnection(t *testing.T) {
	offerer, answerer, _ := connectedPeers(t,
		newSession(t, "alice", jsep_sdp.MediaTypeAudio),
		newSession(t, "bob"))

	require.NoError(t, offerer.send(Message{Type: MsgTypeOffer, SDP: "garbage"}))
	require.NoError(t, offerer.send(Message{Type: "bogus"}))

	require.NoError(t, offerer.SendOffer(jsep.OfferOptions{}))
	waitNegotiated(t, answerer, offerer)
	assert.Len(t, answerer.Session().NegotiatedTrackPairs(), 1)
}

func TestRollbackMessage(t *testing.T) {
	offerer, answerer, _ := connectedPeers(t,
		newSession(t, "alice", jsep_sdp.MediaTypeAudio),
		newSession(t, "bob", jsep_sdp.MediaTypeAudio))

	offer, err := offerer.Session().CreateOffer(jsep.OfferOptions{})
	require.NoError(t, err)
	require.NoError(t, offerer.Session().SetLocalDescription(jsep.SdpTypeOffer, offer))
	require.NoError(t, answerer.Session().SetRemoteDescription(jsep.SdpTypeOffer, offer))

	require.NoError(t, offerer.Rollback())
	assert.Equal(t, jsep.StateStable, offerer.Session().State())

	require.Eventually(t, func() bool {
		return answerer.Session().State() == jsep.StateStable
	}, testTimeout, 10*time.Millisecond)
	assert.Empty(t, answerer.Session().RemoteTracks())
}

func TestHandleMessage(t *testing.T) {
	peer := NewPeer(newSession(t, "alice"), nil, nil)

	err := peer.HandleMessage(Message{Type: "bogus"})
	assert.Error(t, err)

	// откат без ожидающего offer игнорируется
	assert.NoError(t, peer.HandleMessage(Message{Type: MsgTypeRollback}))
	assert.NoError(t, peer.HandleMessage(Message{Type: MsgTypeEndOfCandidates}))

	err = peer.HandleMessage(Message{Type: MsgTypeCandidate, Candidate: "candidate:0 1 UDP 1 10.0.0.1 9 typ host", Mid: "0"})
	assert.True(t, jsep.IsJsepError(err, jsep.ErrorCodeInvalidState))

	err = peer.HandleMessage(Message{Type: MsgTypeAnswer, SDP: "v=0"})
	assert.True(t, jsep.IsJsepError(err, jsep.ErrorCodeInvalidState))
}

func TestRunStopsOnCancel(t *testing.T) {
	accepted := make(chan *websocket.Conn, 1)
	server := httptest.NewServer(Handler(func(conn *websocket.Conn) { accepted <- conn }))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	conn, err := Connect(ctx, "ws"+strings.TrimPrefix(server.URL, "http"))
	require.NoError(t, err)
	serverConn := <-accepted
	defer serverConn.Close()

	peer := NewPeer(newSession(t, "alice"), conn, quietLogger)
	done := make(chan error, 1)
	go func() { done <- peer.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(testTimeout):
		t.Fatal("Run did not stop after cancel")
	}
	assert.NoError(t, peer.Close(), "повторное закрытие не возвращает ошибку")
}

func TestFailedAnswerRollsBackOffer(t *testing.T) {
	offer, err := newSession(t, "alice", jsep_sdp.MediaTypeAudio).CreateOffer(jsep.OfferOptions{})
	require.NoError(t, err)

	config := jsep.DefaultConfig()
	config.Name = "bob"
	config.Logger = quietLogger
	unsigned, err := jsep.NewSession(config)
	require.NoError(t, err)

	peer := NewPeer(unsigned, nil, quietLogger)
	err = peer.HandleMessage(Message{Type: MsgTypeOffer, SDP: offer})
	assert.True(t, jsep.IsJsepError(err, jsep.ErrorCodeInvalidState))
	assert.Equal(t, jsep.StateStable, unsigned.State())
	assert.Empty(t, unsigned.RemoteTracks())
}
