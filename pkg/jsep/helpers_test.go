package jsep

import (
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/pion/sdp/v3"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/jsep_engine/pkg/jsep_sdp"
)

// sequentialUUIDs детерминированный генератор для тестов
func sequentialUUIDs(prefix string) UUIDGenerator {
	var counter atomic.Int64
	return UUIDGeneratorFunc(func() (string, error) {
		return fmt.Sprintf("{%s-%d}", prefix, counter.Add(1)), nil
	})
}

func testDigest(seed string) []byte {
	sum := sha256.Sum256([]byte(seed))
	return sum[:]
}

// newTestSession создает сессию с отпечатком и тихим логгером
func newTestSession(t *testing.T, name string, configure ...func(*Config)) *Session {
	t.Helper()

	config := DefaultConfig()
	config.Name = name
	config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	config.UUIDGenerator = sequentialUUIDs(name)
	for _, fn := range configure {
		fn(&config)
	}

	session, err := NewSession(config)
	require.NoError(t, err)
	require.NoError(t, session.AddDtlsFingerprint("sha-256", testDigest(name)))
	return session
}

func withBundlePolicy(policy BundlePolicy) func(*Config) {
	return func(c *Config) { c.BundlePolicy = policy }
}

// addTracks добавляет по одному треку каждого типа из списка
func addTracks(t *testing.T, session *Session, types ...jsep_sdp.MediaType) []*Track {
	t.Helper()

	var tracks []*Track
	for _, mediaType := range types {
		id := fmt.Sprintf("%s_%d", mediaType, len(session.LocalTracks()))
		track := NewTrack(mediaType, "stream_"+session.Name(), id)
		require.NoError(t, session.AddTrack(track))
		tracks = append(tracks, track)
	}
	return tracks
}

// offerAnswer выполняет полный обмен; munge изменяет offer до применения обеими сторонами
func offerAnswer(t *testing.T, offerer, answerer *Session, munge ...func(string) string) (string, string) {
	t.Helper()

	offer, err := offerer.CreateOffer(OfferOptions{})
	require.NoError(t, err)
	for _, fn := range munge {
		offer = fn(offer)
	}

	require.NoError(t, offerer.SetLocalDescription(SdpTypeOffer, offer))
	require.NoError(t, answerer.SetRemoteDescription(SdpTypeOffer, offer))

	answer, err := answerer.CreateAnswer(AnswerOptions{})
	require.NoError(t, err)
	require.NoError(t, answerer.SetLocalDescription(SdpTypeAnswer, answer))
	require.NoError(t, offerer.SetRemoteDescription(SdpTypeAnswer, answer))

	require.Equal(t, StateStable, offerer.State())
	require.Equal(t, StateStable, answerer.State())
	return offer, answer
}

// disableMsection отклоняет секцию: порт 0, без bundle-only, mid убирается из BUNDLE
func disableMsection(t *testing.T, level int) func(string) string {
	return func(text string) string {
		t.Helper()

		doc, err := jsep_sdp.Parse(text)
		require.NoError(t, err)
		md := doc.MediaDescriptions[level]
		mid := jsep_sdp.Mid(md)

		jsep_sdp.SetPort(md, 0)
		jsep_sdp.RemoveMediaAttributes(md, jsep_sdp.AttrKeyBundleOnly)

		if groups := jsep_sdp.BundleGroups(doc); len(groups) > 0 {
			var mids []string
			for _, other := range groups[0] {
				if other != mid {
					mids = append(mids, other)
				}
			}
			jsep_sdp.SetBundleGroup(doc, mids)
		}

		out, err := jsep_sdp.Serialize(doc)
		require.NoError(t, err)
		return out
	}
}

// removeLines удаляет строки SDP с указанным префиксом
func removeLines(prefix string) func(string) string {
	return func(text string) string {
		lines := strings.Split(text, "\r\n")
		kept := lines[:0]
		for _, line := range lines {
			if !strings.HasPrefix(line, prefix) {
				kept = append(kept, line)
			}
		}
		return strings.Join(kept, "\r\n")
	}
}

func countLines(text, prefix string) int {
	count := 0
	for _, line := range strings.Split(text, "\r\n") {
		if strings.HasPrefix(line, prefix) {
			count++
		}
	}
	return count
}

func parseSdp(t *testing.T, text string) *sdp.SessionDescription {
	t.Helper()
	doc, err := jsep_sdp.Parse(text)
	require.NoError(t, err)
	return doc
}

func activeTransports(transports []*Transport) int {
	count := 0
	for _, transport := range transports {
		if !transport.Closed() {
			count++
		}
	}
	return count
}
