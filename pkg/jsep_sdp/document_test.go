package jsep_sdp

import (
	"strings"
	"testing"

	"github.com/pion/sdp/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOffer = "v=0\r\n" +
	"o=- 4294967296 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"a=fingerprint:sha-256 DF:2E:AC:8A:FD:0A:8E:99:BF:5D:E8:3C:E7:FA:FB:08:3B:3C:54:1D:D7:D4:05:77:A0:72:9B:14:08:6D:0F:4C\r\n" +
	"a=group:BUNDLE audio video\r\n" +
	"a=ice-options:trickle renomination\r\n" +
	"a=msid-semantic:WMS stream1\r\n" +
	"m=audio 9 UDP/TLS/RTP/SAVPF 109 9 0 8 101\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=mid:audio\r\n" +
	"a=sendrecv\r\n" +
	"a=setup:actpass\r\n" +
	"a=ice-ufrag:4a799b2e\r\n" +
	"a=ice-pwd:e4cc12a910f106a0a744719425510e17\r\n" +
	"a=msid:stream1 audio_track\r\n" +
	"a=rtpmap:109 opus/48000/2\r\n" +
	"a=fmtp:109 maxplaybackrate=48000;stereo=1\r\n" +
	"a=rtpmap:9 G722/8000\r\n" +
	"a=rtpmap:101 telephone-event/8000\r\n" +
	"a=fmtp:101 0-15\r\n" +
	"a=extmap:1/sendonly urn:ietf:params:rtp-hdrext:ssrc-audio-level\r\n" +
	"a=ssrc:5150 cname:{b4fe1da2}\r\n" +
	"a=ssrc:5150 msid:stream1 audio_track\r\n" +
	"a=rtcp-mux\r\n" +
	"a=candidate:0 1 UDP 2130379007 10.0.0.4 58101 typ host\r\n" +
	"m=video 0 UDP/TLS/RTP/SAVPF 120 126 122\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=mid:video\r\n" +
	"a=bundle-only\r\n" +
	"a=recvonly\r\n" +
	"a=rtpmap:120 VP8/90000\r\n" +
	"a=fmtp:120 max-fs=12288;max-fr=60\r\n" +
	"a=rtcp-fb:120 nack\r\n" +
	"a=rtcp-fb:* ccm fir\r\n" +
	"a=rtpmap:126 H264/90000\r\n" +
	"a=fmtp:126 profile-level-id=42e01f;packetization-mode=1\r\n" +
	"a=rtpmap:122 red/90000\r\n" +
	"a=fmtp:122 120/126\r\n" +
	"a=rid:hi send\r\n" +
	"a=rid:lo send\r\n" +
	"a=simulcast:send hi;~lo\r\n" +
	"a=rtcp:9 IN IP4 0.0.0.0\r\n" +
	"m=application 0 DTLS/SCTP 5000\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=mid:data\r\n" +
	"a=sctpmap:5000 webrtc-datachannel 256\r\n"

func parseTestOffer(t *testing.T) *sdp.SessionDescription {
	t.Helper()
	doc, err := Parse(testOffer)
	require.NoError(t, err, "Test offer should parse")
	require.Len(t, doc.MediaDescriptions, 3)
	return doc
}

// TestParseErrors проверяет ошибки разбора
func TestParseErrors(t *testing.T) {
	_, err := Parse("")
	assert.ErrorIs(t, err, ErrEmptyDescription)

	_, err = Parse("   \r\n")
	assert.ErrorIs(t, err, ErrEmptyDescription)

	_, err = Parse("Foobajooba")
	assert.ErrorIs(t, err, ErrMalformedDescription)

	_, err = Serialize(nil)
	assert.ErrorIs(t, err, ErrEmptyDescription)
}

// TestCloneIsIndependent проверяет что копия не разделяет атрибуты с оригиналом
func TestCloneIsIndependent(t *testing.T) {
	doc := parseTestOffer(t)

	clone, err := Clone(doc)
	require.NoError(t, err)

	SetDirection(clone.MediaDescriptions[0], DirectionInactive)
	SetPort(clone.MediaDescriptions[1], 5000)

	assert.Equal(t, DirectionSendRecv, GetDirection(doc.MediaDescriptions[0]))
	assert.Equal(t, 0, Port(doc.MediaDescriptions[1]))
	assert.Equal(t, DirectionInactive, GetDirection(clone.MediaDescriptions[0]))
}

// TestNewDocumentSerializes проверяет пустой документ
func TestNewDocumentSerializes(t *testing.T) {
	doc := NewDocument(42, 0)
	doc.MediaDescriptions = append(doc.MediaDescriptions,
		NewMediaSection(MediaTypeAudio, DefaultRtpProtos, "0"))

	text, err := Serialize(doc)
	require.NoError(t, err)
	assert.Contains(t, text, "o=- 42 0 IN IP4 0.0.0.0\r\n")
	assert.Contains(t, text, "m=audio 9 UDP/TLS/RTP/SAVPF\r\n")
	assert.Contains(t, text, "a=mid:0\r\n")

	reparsed, err := Parse(text)
	require.NoError(t, err)
	assert.Equal(t, "0", Mid(reparsed.MediaDescriptions[0]))
}

// TestMediaLookups проверяет поиск секций и чтение основных атрибутов
func TestMediaLookups(t *testing.T) {
	doc := parseTestOffer(t)

	level, ok := FindLevelByMid(doc, "video")
	require.True(t, ok)
	assert.Equal(t, 1, level)

	_, ok = FindLevelByMid(doc, "missing")
	assert.False(t, ok)

	_, err := MediaSection(doc, 3)
	assert.ErrorIs(t, err, ErrNoMediaSection)

	audio, err := MediaSection(doc, 0)
	require.NoError(t, err)

	mediaType, err := MediaTypeOf(audio)
	require.NoError(t, err)
	assert.Equal(t, MediaTypeAudio, mediaType)

	streamID, trackID, ok := Msid(audio)
	require.True(t, ok)
	assert.Equal(t, "stream1", streamID)
	assert.Equal(t, "audio_track", trackID)
	assert.Equal(t, []uint32{5150}, Ssrcs(audio))
	assert.True(t, HasRtcpMux(audio))

	video := doc.MediaDescriptions[1]
	assert.True(t, IsBundleOnly(video))
	assert.False(t, IsDisabled(video), "bundle-only section with port 0 is not disabled")
	assert.Equal(t, DirectionRecvOnly, GetDirection(video))

	_, err = ParseMediaType("message")
	assert.ErrorIs(t, err, ErrUnknownMediaType)
}

// TestDirection проверяет операции над направлением
func TestDirection(t *testing.T) {
	tests := []struct {
		send, recv bool
		expected   Direction
		reversed   Direction
	}{
		{true, true, DirectionSendRecv, DirectionSendRecv},
		{true, false, DirectionSendOnly, DirectionRecvOnly},
		{false, true, DirectionRecvOnly, DirectionSendOnly},
		{false, false, DirectionInactive, DirectionInactive},
	}

	for _, tt := range tests {
		t.Run(tt.expected.String(), func(t *testing.T) {
			d := NewDirection(tt.send, tt.recv)
			assert.Equal(t, tt.expected, d)
			assert.Equal(t, tt.reversed, d.Reverse())
			assert.Equal(t, tt.send, d.Sending())
			assert.Equal(t, tt.recv, d.Receiving())
		})
	}

	md := NewMediaSection(MediaTypeVideo, DefaultRtpProtos, "v")
	assert.Equal(t, DirectionSendRecv, GetDirection(md), "missing direction means sendrecv")
	SetDirection(md, DirectionSendOnly)
	SetDirection(md, DirectionRecvOnly)
	assert.Equal(t, []string{""}, AttributeValues(md.Attributes, sdp.AttrKeyRecvOnly))
	assert.False(t, HasMediaAttribute(md, sdp.AttrKeySendOnly))
}

// TestDisableMediaSection проверяет формирование отклоненной секции
func TestDisableMediaSection(t *testing.T) {
	doc := parseTestOffer(t)

	for _, md := range doc.MediaDescriptions {
		DisableMediaSection(md)
		assert.True(t, IsDisabled(md))
		assert.Equal(t, DirectionInactive, GetDirection(md))
		assert.Len(t, md.MediaName.Formats, 1)
	}
	assert.Equal(t, "audio", Mid(doc.MediaDescriptions[0]))

	text, err := Serialize(doc)
	require.NoError(t, err)
	assert.Contains(t, text, "m=audio 0 UDP/TLS/RTP/SAVPF 0\r\n")
	assert.Contains(t, text, "m=video 0 UDP/TLS/RTP/SAVPF 120\r\n")
	assert.Contains(t, text, "a=sctpmap:0 rejected 0\r\n")
	assert.NotContains(t, text, "a=candidate")
}

// TestCodecAttributes проверяет rtpmap, fmtp, rtcp-fb и sctpmap
func TestCodecAttributes(t *testing.T) {
	doc := parseTestOffer(t)
	audio, video, data := doc.MediaDescriptions[0], doc.MediaDescriptions[1], doc.MediaDescriptions[2]

	opus, ok := GetRtpmap(audio, "109")
	require.True(t, ok)
	assert.Equal(t, Rtpmap{PayloadType: "109", Name: "opus", ClockRate: 48000, Channels: 2}, opus)
	assert.Equal(t, "109 opus/48000/2", opus.String())

	pcmu, ok := GetRtpmap(audio, "0")
	require.True(t, ok, "static payload type without rtpmap")
	assert.Equal(t, "PCMU", pcmu.Name)

	_, ok = GetRtpmap(audio, "110")
	assert.False(t, ok)

	fmtp, ok := GetFmtp(audio, "109")
	require.True(t, ok)
	params := ParseFmtpParameters(fmtp)
	assert.Equal(t, "48000", params["maxplaybackrate"])
	assert.Equal(t, "1", params["stereo"])

	red, ok := GetFmtp(video, "122")
	require.True(t, ok)
	assert.Equal(t, "120/126", ParseFmtpParameters(red)[""])

	assert.Equal(t, []string{"nack", "ccm fir"}, GetRtcpFbs(video, "120"))
	assert.Equal(t, []string{"ccm fir"}, GetRtcpFbs(video, "126"))

	sctpmap, ok := GetSctpmap(data, "5000")
	require.True(t, ok)
	assert.Equal(t, Sctpmap{Port: "5000", Protocol: "webrtc-datachannel", Streams: 256}, sctpmap)

	_, err := ParseRtpmap("109")
	assert.ErrorIs(t, err, ErrMalformedAttribute)
	_, err = ParseRtpmap("109 opus/abc")
	assert.ErrorIs(t, err, ErrMalformedAttribute)
}

// TestTransportAttributes проверяет setup, fingerprint, ICE и кандидаты
func TestTransportAttributes(t *testing.T) {
	doc := parseTestOffer(t)
	audio := doc.MediaDescriptions[0]

	role, ok, err := GetSetup(doc, audio)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sdp.ConnectionRoleActpass, role)

	_, ok, err = GetSetup(doc, doc.MediaDescriptions[2])
	require.NoError(t, err)
	assert.False(t, ok)

	SetMediaAttribute(audio, sdp.AttrKeyConnectionSetup, "bogus")
	_, _, err = GetSetup(doc, audio)
	assert.ErrorIs(t, err, ErrMalformedAttribute)

	fingerprints, err := GetFingerprints(doc, audio)
	require.NoError(t, err)
	require.Len(t, fingerprints, 1, "session level fingerprint applies to the section")
	assert.Equal(t, "sha-256", fingerprints[0].Algorithm)
	assert.Len(t, fingerprints[0].Digest, 32)
	assert.True(t, strings.HasPrefix(fingerprints[0].String(), "sha-256 DF:2E:AC"))

	_, err = ParseFingerprint("sha-256 ZZ:11")
	assert.ErrorIs(t, err, ErrMalformedAttribute)

	ufrag, pwd := GetIceCredentials(doc, audio)
	assert.Equal(t, "4a799b2e", ufrag)
	assert.Equal(t, "e4cc12a910f106a0a744719425510e17", pwd)
	assert.Equal(t, []string{"trickle", "renomination"}, IceOptions(doc))
	assert.False(t, IsIceLite(doc))

	assert.False(t, AddCandidate(audio, "a=candidate:0 1 UDP 2130379007 10.0.0.4 58101 typ host"),
		"duplicate candidate is ignored")
	assert.True(t, AddCandidate(audio, "candidate:1 1 UDP 1694236671 24.6.134.204 62453 typ srflx raddr 10.0.0.4 rport 58101"))
	assert.Len(t, Candidates(audio), 2)

	assert.False(t, HasEndOfCandidates(audio))
	SetEndOfCandidates(audio)
	SetEndOfCandidates(audio)
	assert.Len(t, AttributeValues(audio.Attributes, sdp.AttrKeyEndOfCandidates), 1)

	SetDefaultCandidate(audio, "24.6.134.204", 62453)
	assert.Equal(t, 62453, Port(audio))
	assert.Equal(t, "24.6.134.204", DefaultAddress(audio))

	SetRtcpAddress(audio, "2001:db8::1", 62454)
	addr, port, ok := RtcpAddress(audio)
	require.True(t, ok)
	assert.Equal(t, "2001:db8::1", addr)
	assert.Equal(t, 62454, port)
	value, _ := audio.Attribute(AttrKeyRtcp)
	assert.Equal(t, "62454 IN IP6 2001:db8::1", value)
}

// TestGroupsAndExtensions проверяет BUNDLE, extmap, rid и simulcast
func TestGroupsAndExtensions(t *testing.T) {
	doc := parseTestOffer(t)

	assert.Equal(t, [][]string{{"audio", "video"}}, BundleGroups(doc))
	SetBundleGroup(doc, []string{"video"})
	assert.Equal(t, [][]string{{"video"}}, BundleGroups(doc))
	SetBundleGroup(doc, nil)
	assert.Empty(t, BundleGroups(doc))

	extmaps, err := Extmaps(doc.MediaDescriptions[0])
	require.NoError(t, err)
	require.Len(t, extmaps, 1)
	assert.Equal(t, Extmap{ID: 1, Direction: "sendonly", URI: "urn:ietf:params:rtp-hdrext:ssrc-audio-level"}, extmaps[0])
	assert.Equal(t, "1/sendonly urn:ietf:params:rtp-hdrext:ssrc-audio-level", extmaps[0].String())

	video := doc.MediaDescriptions[1]
	assert.Equal(t, []Rid{{ID: "hi", Direction: "send"}, {ID: "lo", Direction: "send"}}, Rids(video))

	direction, rids, ok := Simulcast(video)
	require.True(t, ok)
	assert.Equal(t, "send", direction)
	assert.Equal(t, []string{"hi", "lo"}, rids)

	data := doc.MediaDescriptions[2]
	_, _, ok = Simulcast(data)
	assert.False(t, ok)
	AddRid(data, Rid{ID: "a", Direction: "recv"})
	SetSimulcast(data, "recv", []string{"a"})
	value, _ := data.Attribute(AttrKeySimulcast)
	assert.Equal(t, "recv a", value)
}
