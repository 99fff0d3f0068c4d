package jsep

import (
	"log/slog"

	"github.com/pion/sdp/v3"

	"github.com/arzzra/jsep_engine/pkg/jsep_codec"
	"github.com/arzzra/jsep_engine/pkg/jsep_sdp"
)

// CreateAnswer формирует answer на ожидающий удаленный offer.
// Секции, для которых нет общих кодеков или тип медиа неизвестен, отклоняются.
func (s *Session) CreateAnswer(options AnswerOptions) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state := s.signaling.State(); state != StateHaveRemoteOffer {
		return "", s.fail(NewJsepError(ErrorCodeInvalidState, "CreateAnswer недопустим в состоянии %s", state))
	}
	if len(s.fingerprints) == 0 {
		return "", s.fail(NewJsepError(ErrorCodeInvalidState, "не задан ни один DTLS отпечаток"))
	}

	offer := s.pendingRemote
	acceptable := s.acceptableSections(offer)
	assignments := s.assignAnswerTracks(offer, acceptable)

	doc := s.newLocalDocument()
	accepted := make(map[int]bool)
	for level, remoteMd := range offer.MediaDescriptions {
		if !acceptable[level] {
			doc.MediaDescriptions = append(doc.MediaDescriptions, rejectedSection(remoteMd))
			continue
		}
		md, err := s.buildAnswerSection(offer, level, remoteMd, assignments[level])
		if err != nil {
			return "", s.fail(err)
		}
		doc.MediaDescriptions = append(doc.MediaDescriptions, md)
		accepted[level] = true
	}
	applyAnswerBundle(doc, offer, accepted)

	text, err := jsep_sdp.Serialize(doc)
	if err != nil {
		return "", s.fail(WrapJsepError(ErrorCodeInvalidState, err, "не удалось сериализовать answer"))
	}

	s.sessionVersion++
	s.metrics.answerCreated()
	s.logger.Debug("answer created",
		slog.Int("sections", len(doc.MediaDescriptions)),
		slog.Int("accepted", len(accepted)))
	return text, nil
}

// acceptableSections отмечает секции offer, которые можно принять
func (s *Session) acceptableSections(offer *sdp.SessionDescription) map[int]bool {
	result := make(map[int]bool)
	for level, md := range offer.MediaDescriptions {
		mediaType, err := jsep_sdp.MediaTypeOf(md)
		if err != nil || jsep_sdp.IsDisabled(md) {
			continue
		}
		if len(jsep_codec.NegotiateCodecs(s.codecs, md)) == 0 {
			s.logger.Warn("no common codecs, media section rejected",
				slog.Int("level", level),
				slog.String("type", mediaType.String()))
			continue
		}
		result[level] = true
	}
	return result
}

// assignAnswerTracks выбирает локальные треки для отправки в принятых секциях.
// Трек, уже согласованный на уровне, остается на нем; остальные секции
// получают самый старый свободный трек своего типа.
func (s *Session) assignAnswerTracks(offer *sdp.SessionDescription, acceptable map[int]bool) map[int]*Track {
	assignments := make(map[int]*Track)
	taken := make(map[*Track]bool)

	wantsTrack := func(md *sdp.MediaDescription) (jsep_sdp.MediaType, bool) {
		mediaType, _ := jsep_sdp.MediaTypeOf(md)
		if mediaType == jsep_sdp.MediaTypeApplication {
			return mediaType, true
		}
		return mediaType, jsep_sdp.GetDirection(md).Receiving()
	}

	if s.currentLocal != nil {
		for level, md := range offer.MediaDescriptions {
			if !acceptable[level] || level >= len(s.currentLocal.MediaDescriptions) {
				continue
			}
			mediaType, ok := wantsTrack(md)
			if !ok || mediaType == jsep_sdp.MediaTypeApplication {
				continue
			}
			track := s.localTrackByMsid(s.currentLocal.MediaDescriptions[level], mediaType)
			if track != nil && !taken[track] {
				assignments[level] = track
				taken[track] = true
			}
		}
	}

	for level, md := range offer.MediaDescriptions {
		if !acceptable[level] || assignments[level] != nil {
			continue
		}
		mediaType, ok := wantsTrack(md)
		if !ok {
			continue
		}
		for _, track := range s.localTracks {
			if !taken[track] && track.mediaType == mediaType {
				assignments[level] = track
				taken[track] = true
				break
			}
		}
	}
	return assignments
}

// answerSetup выбирает роль a=setup для answer по роли offer
func answerSetup(offer *sdp.SessionDescription, md *sdp.MediaDescription) (sdp.ConnectionRole, error) {
	role, ok, err := jsep_sdp.GetSetup(offer, md)
	if err != nil {
		return 0, WrapJsepError(ErrorCodeNegotiation, err, "неверный a=setup в offer")
	}
	if !ok {
		if jsep_sdp.IsBundleOnly(md) {
			return sdp.ConnectionRoleActive, nil
		}
		return 0, NewJsepError(ErrorCodeNegotiation, "секция %q offer без a=setup", jsep_sdp.Mid(md))
	}

	switch role {
	case sdp.ConnectionRoleActpass, sdp.ConnectionRolePassive:
		return sdp.ConnectionRoleActive, nil
	case sdp.ConnectionRoleActive:
		return sdp.ConnectionRolePassive, nil
	default:
		return 0, NewJsepError(ErrorCodeNegotiation, "a=setup:%s недопустим в offer", role)
	}
}

func (s *Session) buildAnswerSection(offer *sdp.SessionDescription, level int, remoteMd *sdp.MediaDescription, track *Track) (*sdp.MediaDescription, error) {
	mediaType, _ := jsep_sdp.MediaTypeOf(remoteMd)

	role, err := answerSetup(offer, remoteMd)
	if err != nil {
		return nil, err
	}

	md := jsep_sdp.NewMediaSection(mediaType, remoteMd.MediaName.Protos, jsep_sdp.Mid(remoteMd))
	jsep_codec.AddCodecsToMediaSection(md, jsep_codec.NegotiateCodecs(s.codecs, remoteMd))
	jsep_sdp.SetIceCredentials(md, s.iceUfrag, s.icePwd)
	jsep_sdp.SetSetup(md, role)

	var base *sdp.MediaDescription
	if s.currentLocal != nil && level < len(s.currentLocal.MediaDescriptions) {
		base = s.currentLocal.MediaDescriptions[level]
	}
	s.copyLocalCandidates(md, level, base)

	if mediaType == jsep_sdp.MediaTypeApplication {
		return md, nil
	}

	offerDirection := jsep_sdp.GetDirection(remoteMd)
	send := track != nil && offerDirection.Receiving()
	jsep_sdp.SetDirection(md, jsep_sdp.NewDirection(send, offerDirection.Sending()))

	if extmaps, err := jsep_sdp.Extmaps(remoteMd); err == nil {
		for _, extmap := range extmaps {
			if s.supportsExtension(mediaType, extmap.URI) {
				jsep_sdp.AddExtmap(md, jsep_sdp.Extmap{ID: extmap.ID, URI: extmap.URI})
			}
		}
	}
	if jsep_sdp.HasRtcpMux(remoteMd) {
		jsep_sdp.SetMediaFlag(md, sdp.AttrKeyRTCPMux)
	}

	if !send {
		track = nil
	}
	if err := s.addSsrcAttributes(md, track); err != nil {
		return nil, err
	}

	simulcastDirection, remoteRids, hasSimulcast := jsep_sdp.Simulcast(remoteMd)
	switch {
	case !hasSimulcast:
	case simulcastDirection == "recv" && send:
		if rids := intersectRids(remoteRids, track.rids); len(rids) > 0 {
			for _, rid := range rids {
				jsep_sdp.AddRid(md, jsep_sdp.Rid{ID: rid, Direction: "send"})
			}
			jsep_sdp.SetSimulcast(md, "send", rids)
		}
	case simulcastDirection == "send" && offerDirection.Sending():
		for _, rid := range remoteRids {
			jsep_sdp.AddRid(md, jsep_sdp.Rid{ID: rid, Direction: "recv"})
		}
		jsep_sdp.SetSimulcast(md, "recv", remoteRids)
	}
	return md, nil
}

// intersectRids оставляет rid из order, присутствующие в allowed
func intersectRids(order, allowed []string) []string {
	var result []string
	for _, rid := range order {
		for _, candidate := range allowed {
			if rid == candidate {
				result = append(result, rid)
				break
			}
		}
	}
	return result
}

// rejectedSection копирует m= строку offer с портом 0 и сохраняет a=mid
func rejectedSection(remoteMd *sdp.MediaDescription) *sdp.MediaDescription {
	md := jsep_sdp.CloneMediaSection(remoteMd)
	md.ConnectionInformation = &sdp.ConnectionInformation{
		NetworkType: "IN",
		AddressType: "IP4",
		Address:     &sdp.Address{Address: "0.0.0.0"},
	}
	jsep_sdp.DisableMediaSection(md)
	return md
}

// applyAnswerBundle принимает первую группу BUNDLE offer в пределах принятых
// секций. Первая принятая секция группы становится якорем, остальные
// получают порт 0 и a=bundle-only.
func applyAnswerBundle(doc, offer *sdp.SessionDescription, accepted map[int]bool) {
	groups := jsep_sdp.BundleGroups(offer)
	if len(groups) == 0 {
		return
	}

	var mids []string
	var members []int
	for _, mid := range groups[0] {
		level, ok := jsep_sdp.FindLevelByMid(offer, mid)
		if !ok || !accepted[level] {
			continue
		}
		mids = append(mids, mid)
		members = append(members, level)
	}
	if len(members) == 0 {
		return
	}

	for _, level := range members[1:] {
		md := doc.MediaDescriptions[level]
		jsep_sdp.SetPort(md, 0)
		jsep_sdp.SetMediaFlag(md, jsep_sdp.AttrKeyBundleOnly)
	}
	jsep_sdp.SetBundleGroup(doc, mids)
}
