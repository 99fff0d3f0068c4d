package jsep

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"

	"github.com/arzzra/jsep_engine/pkg/jsep_codec"
	"github.com/arzzra/jsep_engine/pkg/jsep_sdp"
)

// offerSlot план одной медиа секции будущего offer
type offerSlot struct {
	mediaType jsep_sdp.MediaType
	mid       string
	protos    []string
	disabled  bool
	track     *Track
	// recv секция предлагается на прием
	recv bool

	// base секция текущего локального описания на этом уровне
	base *sdp.MediaDescription
}

// CreateOffer формирует offer из локальных треков и предыдущего согласования.
// Допустим в состояниях stable и have-local-offer.
func (s *Session) CreateOffer(options OfferOptions) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.signaling.State()
	if state != StateStable && state != StateHaveLocalOffer {
		return "", s.fail(NewJsepError(ErrorCodeInvalidState, "CreateOffer недопустим в состоянии %s", state))
	}
	if count, ok := options.receiveCount(jsep_sdp.MediaTypeAudio); ok && count < 0 {
		return "", s.fail(NewJsepError(ErrorCodeInvalidArgument, "отрицательное число секций на прием"))
	}
	if count, ok := options.receiveCount(jsep_sdp.MediaTypeVideo); ok && count < 0 {
		return "", s.fail(NewJsepError(ErrorCodeInvalidArgument, "отрицательное число секций на прием"))
	}
	if len(s.fingerprints) == 0 {
		return "", s.fail(NewJsepError(ErrorCodeInvalidState, "не задан ни один DTLS отпечаток"))
	}

	codecs := jsep_codec.CloneCodecs(s.codecs)
	if err := jsep_codec.ValidatePayloadTypes(codecs); err != nil {
		return "", s.fail(WrapJsepError(ErrorCodeInvalidArgument, err, "неверная таблица кодеков"))
	}
	if err := jsep_codec.EnsureUniquePayloadTypes(codecs, s.pinnedCodec); err != nil {
		return "", s.fail(WrapJsepError(ErrorCodeInvalidArgument, err, "не удалось назначить payload types"))
	}

	slots := s.planOffer(options)
	if len(slots) == 0 {
		return "", s.fail(NewJsepError(ErrorCodeInvalidState, "offer без медиа секций: нет треков и секций на прием"))
	}

	doc := s.newLocalDocument()
	for level, slot := range slots {
		md, err := s.buildOfferSection(level, slot, codecs)
		if err != nil {
			return "", s.fail(err)
		}
		doc.MediaDescriptions = append(doc.MediaDescriptions, md)
	}
	s.applyOfferBundle(doc, slots)

	text, err := jsep_sdp.Serialize(doc)
	if err != nil {
		return "", s.fail(WrapJsepError(ErrorCodeInvalidState, err, "не удалось сериализовать offer"))
	}

	// элементы таблицы сохраняются: вызывающая сторона могла получить их через Codecs
	for i, codec := range codecs {
		s.codecs[i].PayloadType = codec.PayloadType
	}
	s.sessionVersion++
	s.metrics.offerCreated()
	s.logger.Debug("offer created",
		slog.Int("sections", len(slots)),
		slog.Uint64("version", doc.Origin.SessionVersion))
	return text, nil
}

// pinnedCodec сообщает, что кодек уже объявлен в текущем локальном описании
// под своим payload type; такие номера не меняются при переговорах
func (s *Session) pinnedCodec(codec *jsep_codec.Codec) bool {
	if s.currentLocal == nil {
		return false
	}
	for _, md := range s.currentLocal.MediaDescriptions {
		mediaType, err := jsep_sdp.MediaTypeOf(md)
		if err != nil || mediaType != codec.MediaType() || jsep_sdp.IsDisabled(md) {
			continue
		}
		rtpmap, ok := jsep_sdp.GetRtpmap(md, codec.PayloadType)
		if ok && strings.EqualFold(rtpmap.Name, codec.Name) && rtpmap.ClockRate == codec.ClockRate {
			return true
		}
	}
	return false
}

// planOffer раскладывает треки по уровням: существующие секции сохраняют
// свои уровни и mid, новые треки занимают свободные секции своего типа с
// наименьшим уровнем, остальные добавляются в конец
func (s *Session) planOffer(options OfferOptions) []*offerSlot {
	var slots []*offerSlot
	usedMids := make(map[string]bool)
	placed := make(map[*Track]bool)

	if s.currentLocal != nil {
		for level, md := range s.currentLocal.MediaDescriptions {
			slot := &offerSlot{
				mid:    jsep_sdp.Mid(md),
				protos: md.MediaName.Protos,
				base:   md,
			}
			mediaType, err := jsep_sdp.MediaTypeOf(md)
			slot.mediaType = mediaType
			slot.disabled = err != nil || jsep_sdp.IsDisabled(md) || s.remoteDisabled(level)
			if !slot.disabled && mediaType != jsep_sdp.MediaTypeApplication {
				if track := s.localTrackByMsid(md, mediaType); track != nil && !placed[track] {
					slot.track = track
					placed[track] = true
				}
			}
			usedMids[slot.mid] = true
			slots = append(slots, slot)
		}
	}

	for _, track := range s.localTracks {
		if placed[track] {
			continue
		}
		placed[track] = true

		if slot := freeSlot(slots, track.mediaType); slot != nil {
			slot.track = track
			continue
		}
		slots = append(slots, &offerSlot{
			mediaType: track.mediaType,
			mid:       nextMid(usedMids, len(slots)),
			protos:    jsep_sdp.DefaultProtos(track.mediaType),
			track:     track,
		})
	}

	for _, mediaType := range []jsep_sdp.MediaType{jsep_sdp.MediaTypeAudio, jsep_sdp.MediaTypeVideo} {
		wanted, limited := options.receiveCount(mediaType)
		count := 0
		for _, slot := range slots {
			if slot.disabled || slot.mediaType != mediaType {
				continue
			}
			slot.recv = !limited || count < wanted
			count++
		}
		for ; count < wanted; count++ {
			slots = append(slots, &offerSlot{
				mediaType: mediaType,
				mid:       nextMid(usedMids, len(slots)),
				protos:    jsep_sdp.DefaultProtos(mediaType),
				recv:      true,
			})
		}
	}
	return slots
}

func freeSlot(slots []*offerSlot, mediaType jsep_sdp.MediaType) *offerSlot {
	for _, slot := range slots {
		if !slot.disabled && slot.track == nil && slot.mediaType == mediaType {
			return slot
		}
	}
	return nil
}

func nextMid(used map[string]bool, level int) string {
	for n := level; ; n++ {
		mid := strconv.Itoa(n)
		if !used[mid] {
			used[mid] = true
			return mid
		}
	}
}

// remoteDisabled сообщает, что собеседник отклонил секцию в зафиксированном описании
func (s *Session) remoteDisabled(level int) bool {
	if s.currentRemote == nil || level >= len(s.currentRemote.MediaDescriptions) {
		return false
	}
	return jsep_sdp.IsDisabled(s.currentRemote.MediaDescriptions[level])
}

// localTrackByMsid ищет локальный трек по a=msid нашей секции
func (s *Session) localTrackByMsid(md *sdp.MediaDescription, mediaType jsep_sdp.MediaType) *Track {
	streamID, trackID, ok := jsep_sdp.Msid(md)
	if !ok {
		return nil
	}
	for _, track := range s.localTracks {
		if track.mediaType == mediaType && track.streamID == streamID && track.trackID == trackID {
			return track
		}
	}
	return nil
}

// localTrackAt возвращает локальный трек уровня нашего описания. Секции
// application не несут msid, поэтому k-я активная секция application
// соответствует k-му локальному треку application.
func (s *Session) localTrackAt(doc *sdp.SessionDescription, level int) *Track {
	md := doc.MediaDescriptions[level]
	mediaType, err := jsep_sdp.MediaTypeOf(md)
	if err != nil || jsep_sdp.IsDisabled(md) {
		return nil
	}
	if mediaType != jsep_sdp.MediaTypeApplication {
		return s.localTrackByMsid(md, mediaType)
	}

	ordinal := 0
	for i := 0; i < level; i++ {
		other := doc.MediaDescriptions[i]
		if otherType, err := jsep_sdp.MediaTypeOf(other); err == nil &&
			otherType == jsep_sdp.MediaTypeApplication && !jsep_sdp.IsDisabled(other) {
			ordinal++
		}
	}
	for _, track := range s.localTracks {
		if track.mediaType != jsep_sdp.MediaTypeApplication {
			continue
		}
		if ordinal == 0 {
			return track
		}
		ordinal--
	}
	return nil
}

// newLocalDocument создает документ с атрибутами уровня сессии
func (s *Session) newLocalDocument() *sdp.SessionDescription {
	doc := jsep_sdp.NewDocument(s.sessionID, s.sessionVersion)
	for _, fp := range s.fingerprints {
		doc.Attributes = append(doc.Attributes, sdp.NewAttribute(jsep_sdp.AttrKeyFingerprint, fp.String()))
	}
	if s.iceLite {
		jsep_sdp.SetSessionFlag(doc, sdp.AttrKeyICELite)
	}
	if len(s.iceOptions) > 0 {
		jsep_sdp.SetSessionAttribute(doc, jsep_sdp.AttrKeyIceOptions, strings.Join(s.iceOptions, " "))
	}
	jsep_sdp.SetSessionAttribute(doc, sdp.AttrKeyMsidSemantic, "WMS *")
	return doc
}

func (s *Session) buildOfferSection(level int, slot *offerSlot, codecs []*jsep_codec.Codec) (*sdp.MediaDescription, error) {
	if slot.disabled {
		md := jsep_sdp.CloneMediaSection(slot.base)
		jsep_sdp.DisableMediaSection(md)
		return md, nil
	}

	md := jsep_sdp.NewMediaSection(slot.mediaType, slot.protos, slot.mid)
	offered := jsep_codec.OfferCodecs(codecs, slot.mediaType)
	if len(offered) == 0 {
		s.logger.Warn("no enabled codecs, media section disabled",
			slog.Int("level", level),
			slog.String("type", slot.mediaType.String()))
		jsep_sdp.DisableMediaSection(md)
		slot.disabled = true
		return md, nil
	}
	jsep_codec.AddCodecsToMediaSection(md, offered)

	jsep_sdp.SetIceCredentials(md, s.iceUfrag, s.icePwd)
	jsep_sdp.SetSetup(md, sdp.ConnectionRoleActpass)
	s.copyLocalCandidates(md, level, slot.base)

	if slot.mediaType == jsep_sdp.MediaTypeApplication {
		return md, nil
	}

	jsep_sdp.SetDirection(md, jsep_sdp.NewDirection(slot.track != nil, slot.recv))
	for _, extmap := range s.extensionsFor(slot.mediaType) {
		jsep_sdp.AddExtmap(md, extmap)
	}
	jsep_sdp.SetMediaFlag(md, sdp.AttrKeyRTCPMux)

	if err := s.addSsrcAttributes(md, slot.track); err != nil {
		return nil, err
	}
	if slot.track != nil && len(slot.track.rids) > 0 {
		for _, rid := range slot.track.rids {
			jsep_sdp.AddRid(md, jsep_sdp.Rid{ID: rid, Direction: "send"})
		}
		jsep_sdp.SetSimulcast(md, "send", slot.track.rids)
	}
	return md, nil
}

// addSsrcAttributes пишет a=msid и a=ssrc отправляющего трека; секция только
// на прием получает случайный SSRC для RTCP отчетов
func (s *Session) addSsrcAttributes(md *sdp.MediaDescription, track *Track) error {
	if track == nil {
		ssrc, err := generateSsrc()
		if err != nil {
			return WrapJsepError(ErrorCodeInvalidState, err, "не удалось сгенерировать SSRC")
		}
		jsep_sdp.AddSsrc(md, ssrc, s.cname)
		return nil
	}

	jsep_sdp.SetMsid(md, track.streamID, track.trackID)
	for _, ssrc := range track.ssrcs {
		jsep_sdp.AddSsrc(md, ssrc, s.cname)
	}
	return nil
}

// copyLocalCandidates переносит собранные кандидаты, если транспорт уровня сохраняется
func (s *Session) copyLocalCandidates(md *sdp.MediaDescription, level int, base *sdp.MediaDescription) {
	if base == nil || level >= len(s.transports) || s.transports[level].Closed() {
		return
	}
	for _, candidate := range jsep_sdp.Candidates(base) {
		jsep_sdp.AddCandidate(md, candidate)
	}
	if port := jsep_sdp.Port(base); port != 0 && port != 9 {
		jsep_sdp.SetDefaultCandidate(md, jsep_sdp.DefaultAddress(base), port)
		if addr, rtcpPort, ok := jsep_sdp.RtcpAddress(base); ok {
			jsep_sdp.SetRtcpAddress(md, addr, rtcpPort)
		}
	}
	if jsep_sdp.HasEndOfCandidates(base) {
		jsep_sdp.SetEndOfCandidates(md)
	}
}

// applyOfferBundle записывает a=group:BUNDLE со всеми активными mid и
// помечает секции bundle-only согласно политике
func (s *Session) applyOfferBundle(doc *sdp.SessionDescription, slots []*offerSlot) {
	var mids []string
	seenType := make(map[jsep_sdp.MediaType]bool)

	for level, md := range doc.MediaDescriptions {
		slot := slots[level]
		if slot.disabled {
			continue
		}
		mids = append(mids, slot.mid)

		bundleOnly := false
		switch s.bundlePolicy {
		case BundlePolicyMaxBundle:
			bundleOnly = len(mids) > 1
		case BundlePolicyBalanced:
			bundleOnly = seenType[slot.mediaType]
		}
		seenType[slot.mediaType] = true

		if bundleOnly {
			jsep_sdp.SetPort(md, 0)
			jsep_sdp.SetMediaFlag(md, jsep_sdp.AttrKeyBundleOnly)
		}
	}
	jsep_sdp.SetBundleGroup(doc, mids)
}
