package jsep

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	hostCandidate  = "candidate:0 1 UDP 2122252543 192.168.1.10 49203 typ host"
	relayCandidate = "candidate:1 1 UDP 41885439 203.0.113.7 61000 typ relay raddr 192.168.1.10 rport 49203"
)

func TestLocalCandidateWithoutDescription(t *testing.T) {
	session := newTestSession(t, "offerer")

	_, _, err := session.AddLocalIceCandidate(hostCandidate, 0)
	require.Error(t, err)
	assert.True(t, IsJsepError(err, ErrorCodeInvalidState))

	err = session.EndOfLocalCandidates(0)
	assert.True(t, IsJsepError(err, ErrorCodeInvalidState))

	err = session.UpdateDefaultCandidate("192.168.1.10", 49203, "", 0, 0)
	assert.True(t, IsJsepError(err, ErrorCodeInvalidState))

	err = session.AddRemoteIceCandidate(hostCandidate, "0", 0)
	assert.True(t, IsJsepError(err, ErrorCodeInvalidState))
}

func TestAddLocalIceCandidate(t *testing.T) {
	session := newTestSession(t, "offerer")
	addTracks(t, session, audio, video)
	offer, err := session.CreateOffer(OfferOptions{})
	require.NoError(t, err)
	require.NoError(t, session.SetLocalDescription(SdpTypeOffer, offer))

	tests := []struct {
		name      string
		candidate string
		level     int
		code      JsepErrorCode
		wantErr   bool
	}{
		{name: "garbage", candidate: "garbage", level: 0, code: ErrorCodeInvalidArgument, wantErr: true},
		{name: "empty", candidate: "candidate:", level: 0, code: ErrorCodeInvalidArgument, wantErr: true},
		{name: "level out of range", candidate: hostCandidate, level: 5, code: ErrorCodeInvalidArgument, wantErr: true},
		{name: "negative level", candidate: hostCandidate, level: -1, code: ErrorCodeInvalidArgument, wantErr: true},
		{name: "host", candidate: hostCandidate, level: 0},
		{name: "with attribute prefix", candidate: "a=" + relayCandidate, level: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mid, skipped, err := session.AddLocalIceCandidate(tt.candidate, tt.level)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsJsepError(err, tt.code), err.Error())
				return
			}
			require.NoError(t, err)
			assert.False(t, skipped, "до согласования BUNDLE кандидаты нужны на всех уровнях")
			assert.NotEmpty(t, mid)
		})
	}

	local := session.LocalDescription(DescriptionPending)
	assert.Contains(t, local, "a="+hostCandidate)
	assert.Contains(t, local, "a="+relayCandidate)
	assert.Equal(t, 2, countLines(local, "a=candidate:"))

	// повтор не дублирует строку
	_, _, err = session.AddLocalIceCandidate(hostCandidate, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, countLines(session.LocalDescription(DescriptionPending), "a=candidate:"))
}

func TestLocalCandidatesAfterBundle(t *testing.T) {
	offerer := newTestSession(t, "offerer")
	answerer := newTestSession(t, "answerer")
	addTracks(t, offerer, audio, video)
	offerAnswer(t, offerer, answerer)

	mid, skipped, err := offerer.AddLocalIceCandidate(hostCandidate, 1)
	require.NoError(t, err)
	assert.True(t, skipped)
	assert.Equal(t, "1", mid)

	mid, skipped, err = offerer.AddLocalIceCandidate(hostCandidate, 0)
	require.NoError(t, err)
	assert.False(t, skipped)
	assert.Equal(t, "0", mid)
	require.NoError(t, offerer.EndOfLocalCandidates(0))
	require.NoError(t, offerer.EndOfLocalCandidates(1))

	local := offerer.LocalDescription(DescriptionCurrent)
	assert.Equal(t, 1, countLines(local, "a=candidate:"))
	assert.Equal(t, 1, countLines(local, "a=end-of-candidates"))

	// кандидаты переносятся в следующий offer, пока транспорт уровня жив
	reoffer, err := offerer.CreateOffer(OfferOptions{})
	require.NoError(t, err)
	assert.Contains(t, reoffer, "a="+hostCandidate)
	assert.Contains(t, reoffer, "a=end-of-candidates")
}

func TestAddRemoteIceCandidate(t *testing.T) {
	offerer := newTestSession(t, "offerer")
	answerer := newTestSession(t, "answerer")
	addTracks(t, offerer, audio, video)
	offerAnswer(t, offerer, answerer)

	transport := offerer.Transports()[0]
	require.Empty(t, transport.Ice.Candidates)

	tests := []struct {
		name      string
		candidate string
		mid       string
		level     int
		code      JsepErrorCode
		wantErr   bool
	}{
		{name: "unknown mid", candidate: hostCandidate, mid: "nope", code: ErrorCodeInvalidArgument, wantErr: true},
		{name: "bad level", candidate: hostCandidate, level: 7, code: ErrorCodeInvalidArgument, wantErr: true},
		{name: "garbage", candidate: "1 2 3", mid: "0", code: ErrorCodeInvalidArgument, wantErr: true},
		{name: "by mid", candidate: hostCandidate, mid: "0"},
		{name: "by level", candidate: relayCandidate, level: 0},
		{name: "bundled away", candidate: hostCandidate, mid: "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := offerer.AddRemoteIceCandidate(tt.candidate, tt.mid, tt.level)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsJsepError(err, tt.code), err.Error())
				return
			}
			require.NoError(t, err)
		})
	}

	trimmedHost := hostCandidate[len("candidate:"):]
	trimmedRelay := relayCandidate[len("candidate:"):]
	assert.Equal(t, []string{trimmedHost, trimmedRelay}, transport.Ice.Candidates)
	assert.Same(t, transport, offerer.Transports()[0])

	assert.Equal(t, 2, countLines(offerer.RemoteDescription(DescriptionCurrent), "a=candidate:"))

	// при повторном согласовании кандидаты сохраняются в переиспользованном транспорте
	offerAnswer(t, offerer, answerer)
	assert.Same(t, transport, offerer.Transports()[0])
	assert.Equal(t, []string{trimmedHost, trimmedRelay}, transport.Ice.Candidates)
}

func TestUpdateDefaultCandidate(t *testing.T) {
	tests := []struct {
		name     string
		munge    []func(string) string
		wantRtcp bool
	}{
		{name: "rtcp-mux negotiated", wantRtcp: false},
		{name: "without rtcp-mux", munge: []func(string) string{removeLines("a=rtcp-mux")}, wantRtcp: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			offerer := newTestSession(t, "offerer")
			answerer := newTestSession(t, "answerer")
			addTracks(t, offerer, audio, audio)
			offerAnswer(t, offerer, answerer, tt.munge...)

			require.NoError(t, offerer.UpdateDefaultCandidate("192.168.1.10", 49203, "192.168.1.10", 49204, 0))
			require.NoError(t, offerer.UpdateDefaultCandidate("192.168.1.10", 50000, "", 0, 1))

			local := offerer.LocalDescription(DescriptionCurrent)
			assert.Contains(t, local, "m=audio 49203 ")
			assert.Contains(t, local, "c=IN IP4 192.168.1.10")
			assert.NotContains(t, local, "m=audio 50000 ")
			if tt.wantRtcp {
				assert.Contains(t, local, "a=rtcp:49204 IN IP4 192.168.1.10")
			} else {
				assert.NotContains(t, local, "a=rtcp:")
			}

			// следующий offer сохраняет кандидат по умолчанию
			reoffer, err := offerer.CreateOffer(OfferOptions{})
			require.NoError(t, err)
			assert.Contains(t, reoffer, "m=audio 49203 ")
		})
	}
}

func TestUpdateDefaultCandidateErrors(t *testing.T) {
	session := newTestSession(t, "offerer")
	addTracks(t, session, audio)
	offer, err := session.CreateOffer(OfferOptions{})
	require.NoError(t, err)
	require.NoError(t, session.SetLocalDescription(SdpTypeOffer, offer))

	tests := []struct {
		name  string
		addr  string
		port  int
		level int
	}{
		{"empty address", "", 5000, 0},
		{"zero port", "10.0.0.1", 0, 0},
		{"port too large", "10.0.0.1", 70000, 0},
		{"bad level", "10.0.0.1", 5000, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := session.UpdateDefaultCandidate(tt.addr, tt.port, "", 0, tt.level)
			require.Error(t, err)
			assert.True(t, IsJsepError(err, ErrorCodeInvalidArgument), err.Error())
		})
	}

	require.NoError(t, session.UpdateDefaultCandidate("2001:db8::1", 5000, "", 0, 0))
	assert.Contains(t, session.LocalDescription(DescriptionPending), "c=IN IP6 2001:db8::1")
}
