package jsep

import (
	"log/slog"

	"github.com/pion/sdp/v3"

	"github.com/arzzra/jsep_engine/pkg/jsep_sdp"
)

const (
	sideLocal  = "local"
	sideRemote = "remote"
)

// SetLocalDescription применяет локальное описание. Текст разбирается заново,
// поэтому допускается измененный вызывающей стороной SDP.
func (s *Session) SetLocalDescription(sdpType SdpType, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.signaling.next(sdpType, false); err != nil {
		return s.fail(err)
	}

	if sdpType == SdpTypeRollback {
		if err := s.signaling.commit(sdpType, false); err != nil {
			return s.fail(WrapJsepError(ErrorCodeInvalidState, err, "переход не выполнен"))
		}
		s.pendingLocal = nil
		s.metrics.descriptionApplied(sideLocal, sdpType)
		s.logger.Debug("local offer rolled back")
		return nil
	}

	doc, err := parseDescription(text)
	if err != nil {
		return s.fail(err)
	}

	switch sdpType {
	case SdpTypeOffer:
		if len(doc.MediaDescriptions) == 0 {
			return s.fail(NewJsepError(ErrorCodeInvalidState, "offer без медиа секций"))
		}
		if err := s.signaling.commit(sdpType, false); err != nil {
			return s.fail(WrapJsepError(ErrorCodeInvalidState, err, "переход не выполнен"))
		}
		s.pendingLocal = doc

	case SdpTypeAnswer:
		if err := checkAnswerShape(s.pendingRemote, doc); err != nil {
			return s.fail(err)
		}
		result, err := s.negotiate(s.pendingRemote, doc, false, s.remote)
		if err != nil {
			return s.fail(err)
		}
		if err := s.signaling.commit(sdpType, false); err != nil {
			return s.fail(WrapJsepError(ErrorCodeInvalidState, err, "переход не выполнен"))
		}
		s.apply(result)
		s.currentLocal = doc
		s.currentRemote = s.pendingRemote
		s.pendingLocal = nil
		s.pendingRemote = nil
		s.currentRemoteSet = s.remote
	}

	s.metrics.descriptionApplied(sideLocal, sdpType)
	s.logger.Debug("local description applied",
		slog.String("type", sdpType.String()),
		slog.Int("sections", len(doc.MediaDescriptions)))
	return nil
}

// SetRemoteDescription применяет удаленное описание
func (s *Session) SetRemoteDescription(sdpType SdpType, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.signaling.next(sdpType, true); err != nil {
		return s.fail(err)
	}

	if sdpType == SdpTypeRollback {
		if err := s.signaling.commit(sdpType, true); err != nil {
			return s.fail(WrapJsepError(ErrorCodeInvalidState, err, "переход не выполнен"))
		}
		// удаленные треки отката считаются удаленными, восстановленные добавленными
		s.remoteTracksRemoved = trackDifference(s.remote.tracks, s.currentRemoteSet.tracks)
		s.remoteTracksAdded = trackDifference(s.currentRemoteSet.tracks, s.remote.tracks)
		s.remote = s.currentRemoteSet
		s.pendingRemote = nil
		s.metrics.descriptionApplied(sideRemote, sdpType)
		s.logger.Debug("remote offer rolled back")
		return nil
	}

	doc, err := parseDescription(text)
	if err != nil {
		return s.fail(err)
	}
	if err := validateRemoteDescription(doc); err != nil {
		return s.fail(err)
	}

	discovered, err := s.discoverRemoteTracks(doc)
	if err != nil {
		return s.fail(err)
	}

	switch sdpType {
	case SdpTypeOffer:
		if len(doc.MediaDescriptions) == 0 {
			return s.fail(NewJsepError(ErrorCodeInvalidArgument, "offer без медиа секций"))
		}
		if err := validateOfferSetup(doc); err != nil {
			return s.fail(err)
		}
		if err := s.signaling.commit(sdpType, true); err != nil {
			return s.fail(WrapJsepError(ErrorCodeInvalidState, err, "переход не выполнен"))
		}
		s.pendingRemote = doc
		s.commitRemoteTracks(discovered)

	case SdpTypeAnswer:
		if err := checkAnswerShape(s.pendingLocal, doc); err != nil {
			return s.fail(err)
		}
		result, err := s.negotiate(s.pendingLocal, doc, true, discovered.set)
		if err != nil {
			return s.fail(err)
		}
		if err := s.signaling.commit(sdpType, true); err != nil {
			return s.fail(WrapJsepError(ErrorCodeInvalidState, err, "переход не выполнен"))
		}
		s.commitRemoteTracks(discovered)
		s.apply(result)
		s.currentLocal = s.pendingLocal
		s.currentRemote = doc
		s.pendingLocal = nil
		s.pendingRemote = nil
		s.currentRemoteSet = s.remote
	}

	s.remoteIceLite = jsep_sdp.IsIceLite(doc)
	s.remoteIceOptions = jsep_sdp.IceOptions(doc)

	s.metrics.descriptionApplied(sideRemote, sdpType)
	s.logger.Debug("remote description applied",
		slog.String("type", sdpType.String()),
		slog.Int("sections", len(doc.MediaDescriptions)),
		slog.Int("tracks_added", len(s.remoteTracksAdded)),
		slog.Int("tracks_removed", len(s.remoteTracksRemoved)))
	return nil
}

func parseDescription(text string) (*sdp.SessionDescription, error) {
	doc, err := jsep_sdp.Parse(text)
	if err != nil {
		return nil, WrapJsepError(ErrorCodeParse, err, "не удалось разобрать SDP")
	}

	mids := make(map[string]bool)
	for level, md := range doc.MediaDescriptions {
		mid := jsep_sdp.Mid(md)
		if mid == "" {
			continue
		}
		if mids[mid] {
			return nil, NewJsepError(ErrorCodeParse, "повторный a=mid:%s на уровне %d", mid, level)
		}
		mids[mid] = true
	}
	return doc, nil
}

// validateRemoteDescription проверяет транспортные атрибуты активных секций
func validateRemoteDescription(doc *sdp.SessionDescription) error {
	for level, md := range doc.MediaDescriptions {
		if _, err := jsep_sdp.MediaTypeOf(md); err != nil || jsep_sdp.IsDisabled(md) {
			continue
		}

		fingerprints, err := jsep_sdp.GetFingerprints(doc, md)
		if err != nil {
			return WrapJsepError(ErrorCodeNegotiation, err, "неверный a=fingerprint на уровне %d", level)
		}
		for _, fp := range fingerprints {
			if err := validateFingerprintAlgorithm(fp.Algorithm); err != nil {
				return err
			}
		}
		if _, _, err := jsep_sdp.GetSetup(doc, md); err != nil {
			return WrapJsepError(ErrorCodeNegotiation, err, "неверный a=setup на уровне %d", level)
		}

		if jsep_sdp.IsBundleOnly(md) {
			continue
		}
		ufrag, pwd := jsep_sdp.GetIceCredentials(doc, md)
		if ufrag == "" || pwd == "" {
			return NewJsepError(ErrorCodeNegotiation, "нет ICE учетных данных на уровне %d", level)
		}
		if len(fingerprints) == 0 {
			return NewJsepError(ErrorCodeNegotiation, "нет DTLS отпечатка на уровне %d", level)
		}
	}
	return nil
}

// validateOfferSetup требует в offer a=setup со значением actpass, active или
// passive в каждой активной секции, кроме bundle-only
func validateOfferSetup(doc *sdp.SessionDescription) error {
	for level, md := range doc.MediaDescriptions {
		if _, err := jsep_sdp.MediaTypeOf(md); err != nil || jsep_sdp.IsDisabled(md) || jsep_sdp.IsBundleOnly(md) {
			continue
		}
		role, ok, err := jsep_sdp.GetSetup(doc, md)
		if err != nil {
			return WrapJsepError(ErrorCodeNegotiation, err, "неверный a=setup на уровне %d", level)
		}
		if !ok {
			return NewJsepError(ErrorCodeNegotiation, "нет a=setup в offer на уровне %d", level)
		}
		switch role {
		case sdp.ConnectionRoleActpass, sdp.ConnectionRoleActive, sdp.ConnectionRolePassive:
		default:
			return NewJsepError(ErrorCodeNegotiation, "a=setup:%s недопустим в offer на уровне %d", role, level)
		}
	}
	return nil
}

// checkAnswerShape проверяет, что answer повторяет секции offer
func checkAnswerShape(offer, answer *sdp.SessionDescription) error {
	if offer == nil {
		return NewJsepError(ErrorCodeInvalidState, "нет ожидающего offer")
	}
	if len(offer.MediaDescriptions) != len(answer.MediaDescriptions) {
		return NewJsepError(ErrorCodeInvalidArgument,
			"answer содержит %d секций, offer %d",
			len(answer.MediaDescriptions), len(offer.MediaDescriptions))
	}
	for level, md := range answer.MediaDescriptions {
		offered := offer.MediaDescriptions[level]
		if md.MediaName.Media != offered.MediaName.Media {
			return NewJsepError(ErrorCodeInvalidArgument,
				"тип секции %d в answer %q не совпадает с offer %q",
				level, md.MediaName.Media, offered.MediaName.Media)
		}
		if mid := jsep_sdp.Mid(md); mid != "" && mid != jsep_sdp.Mid(offered) {
			return NewJsepError(ErrorCodeInvalidArgument,
				"mid секции %d в answer %q не совпадает с offer %q", level, mid, jsep_sdp.Mid(offered))
		}
	}
	return nil
}

// discoveredTracks удаленные треки описания вместе с новыми идентификаторами по умолчанию
type discoveredTracks struct {
	set             remoteTrackSet
	defaultStreamID string
	defaultTrackIDs map[int]string
}

// discoverRemoteTracks находит удаленные треки: секция несет трек, если
// собеседник отправляет или указал a=msid. Без a=msid используются
// сгенерированные идентификаторы, стабильные между переговорами.
func (s *Session) discoverRemoteTracks(doc *sdp.SessionDescription) (discoveredTracks, error) {
	result := discoveredTracks{
		set:             newRemoteTrackSet(),
		defaultStreamID: s.defaultRemoteStreamID,
		defaultTrackIDs: make(map[int]string),
	}

	for level, md := range doc.MediaDescriptions {
		mediaType, err := jsep_sdp.MediaTypeOf(md)
		if err != nil || jsep_sdp.IsDisabled(md) {
			continue
		}

		streamID, trackID, hasMsid := jsep_sdp.Msid(md)
		if !hasMsid && mediaType != jsep_sdp.MediaTypeApplication && !jsep_sdp.GetDirection(md).Sending() {
			continue
		}

		if streamID == "" {
			if result.defaultStreamID == "" {
				if result.defaultStreamID, err = s.uuidGenerator.Generate(); err != nil {
					return result, WrapJsepError(ErrorCodeInvalidState, err, "не удалось сгенерировать id потока")
				}
			}
			streamID = result.defaultStreamID
		}
		if trackID == "" {
			trackID = s.defaultRemoteTrackIDs[level]
			if trackID == "" {
				if trackID, err = s.uuidGenerator.Generate(); err != nil {
					return result, WrapJsepError(ErrorCodeInvalidState, err, "не удалось сгенерировать id трека")
				}
				result.defaultTrackIDs[level] = trackID
			}
		}

		candidate := NewTrack(mediaType, streamID, trackID)
		if result.set.find(candidate) != nil {
			s.logger.Warn("duplicate remote track ignored",
				slog.Int("level", level),
				slog.String("stream", streamID),
				slog.String("track", trackID))
			continue
		}

		track := s.remote.find(candidate)
		if track == nil {
			track = s.currentRemoteSet.find(candidate)
		}
		if track == nil {
			track = candidate
		}

		result.set.tracks = append(result.set.tracks, track)
		result.set.byLevel[level] = track
		result.set.ssrcs[track] = jsep_sdp.Ssrcs(md)
		if direction, rids, ok := jsep_sdp.Simulcast(md); ok && direction == "send" {
			result.set.rids[track] = rids
		}
	}
	return result, nil
}

// commitRemoteTracks фиксирует найденные треки и пересчитывает изменения
// относительно зафиксированного удаленного описания
func (s *Session) commitRemoteTracks(discovered discoveredTracks) {
	for track, ssrcs := range discovered.set.ssrcs {
		track.ssrcs = ssrcs
		track.rids = discovered.set.rids[track]
	}
	s.defaultRemoteStreamID = discovered.defaultStreamID
	for level, trackID := range discovered.defaultTrackIDs {
		s.defaultRemoteTrackIDs[level] = trackID
	}

	s.remoteTracksAdded = trackDifference(discovered.set.tracks, s.currentRemoteSet.tracks)
	s.remoteTracksRemoved = trackDifference(s.currentRemoteSet.tracks, discovered.set.tracks)
	s.remote = discovered.set
}

// trackDifference возвращает треки from, которых нет в other
func trackDifference(from, other []*Track) []*Track {
	var result []*Track
	for _, track := range from {
		found := false
		for _, candidate := range other {
			if candidate.sameIdentity(track) {
				found = true
				break
			}
		}
		if !found {
			result = append(result, track)
		}
	}
	return result
}
