package jsep

import (
	"log/slog"

	"github.com/pion/sdp/v3"

	"github.com/arzzra/jsep_engine/pkg/jsep_codec"
	"github.com/arzzra/jsep_engine/pkg/jsep_sdp"
)

// negotiation результат согласования, применяемый к сессии целиком
type negotiation struct {
	transports []*Transport
	// updates новые значения переиспользуемых транспортов; указатели сохраняются
	updates     map[*Transport]*Transport
	pairs       []*TrackPair
	details     map[*Track]*NegotiatedDetails
	bundleLevel map[int]int
}

// negotiate сводит offer и answer в пары треков и транспорты. Состояние
// сессии не меняется; результат применяется через apply.
func (s *Session) negotiate(offer, answer *sdp.SessionDescription, offerer bool, remoteTracks remoteTrackSet) (*negotiation, error) {
	local, remote := answer, offer
	if offerer {
		local, remote = offer, answer
	}

	result := &negotiation{
		updates:     make(map[*Transport]*Transport),
		details:     make(map[*Track]*NegotiatedDetails),
		bundleLevel: make(map[int]int),
	}

	active := make(map[int]bool)
	codecs := make(map[int][]*jsep_codec.Codec)
	rejected := 0
	for level, md := range answer.MediaDescriptions {
		_, err := jsep_sdp.MediaTypeOf(md)
		active[level] = err == nil && !jsep_sdp.IsDisabled(md) && !jsep_sdp.IsDisabled(offer.MediaDescriptions[level])
		if !active[level] {
			continue
		}
		// секция без общих кодеков отклоняется, остальные согласуются
		codecs[level] = filterByFormats(jsep_codec.NegotiateCodecs(s.codecs, remote.MediaDescriptions[level]),
			local.MediaDescriptions[level].MediaName.Formats)
		if len(codecs[level]) == 0 {
			active[level] = false
			rejected++
			s.logger.Warn("media section rejected: no common codecs",
				slog.Int("level", level),
				slog.String("mid", jsep_sdp.Mid(md)))
		}
	}
	if rejected > 0 && !anyActive(active) {
		return nil, NewJsepError(ErrorCodeNegotiation, "нет общих кодеков ни в одной секции")
	}

	if groups := jsep_sdp.BundleGroups(answer); len(groups) > 0 {
		anchor := -1
		for _, mid := range groups[0] {
			level, ok := jsep_sdp.FindLevelByMid(answer, mid)
			if !ok || !active[level] {
				continue
			}
			if anchor < 0 {
				anchor = level
			}
			result.bundleLevel[level] = anchor
		}
	}

	for level := range answer.MediaDescriptions {
		transport, err := s.negotiateTransport(result, level, active[level], offer, answer, local, remote, offerer)
		if err != nil {
			return nil, err
		}
		result.transports = append(result.transports, transport)
	}

	for level := range answer.MediaDescriptions {
		if !active[level] {
			continue
		}
		if pair := s.negotiatePair(result, level, codecs[level], local, remote, answer, offerer, remoteTracks); pair != nil {
			result.pairs = append(result.pairs, pair)
		}
	}

	assignUniquePayloadTypes(result)
	return result, nil
}

// negotiateTransport строит транспорт уровня. Транспорт переиспользуется, если
// на уровне уже был активный транспорт с теми же удаленными ICE учетными данными.
func (s *Session) negotiateTransport(result *negotiation, level int, active bool,
	offer, answer, local, remote *sdp.SessionDescription, offerer bool) (*Transport, error) {

	var prev *Transport
	if level < len(s.transports) {
		prev = s.transports[level]
	}

	anchor, bundled := result.bundleLevel[level]
	if !active || (bundled && anchor != level) {
		if prev != nil && prev.Closed() {
			return prev, nil
		}
		id, err := s.uuidGenerator.Generate()
		if err != nil {
			return nil, WrapJsepError(ErrorCodeInvalidState, err, "не удалось сгенерировать id транспорта")
		}
		return &Transport{ID: id, Level: level}, nil
	}

	remoteMd := remote.MediaDescriptions[level]
	ufrag, pwd := jsep_sdp.GetIceCredentials(remote, remoteMd)
	fingerprints, err := jsep_sdp.GetFingerprints(remote, remoteMd)
	if err != nil {
		return nil, WrapJsepError(ErrorCodeNegotiation, err, "неверный a=fingerprint на уровне %d", level)
	}

	role, err := dtlsRole(answer, answer.MediaDescriptions[level], offerer)
	if err != nil {
		return nil, err
	}

	components := 2
	mediaType, _ := jsep_sdp.MediaTypeOf(local.MediaDescriptions[level])
	if mediaType == jsep_sdp.MediaTypeApplication ||
		(jsep_sdp.HasRtcpMux(offer.MediaDescriptions[level]) && jsep_sdp.HasRtcpMux(answer.MediaDescriptions[level])) {
		components = 1
	}

	value := &Transport{
		Level:      level,
		Components: components,
		Ice: IceTransport{
			Ufrag:      ufrag,
			Pwd:        pwd,
			Candidates: jsep_sdp.Candidates(remoteMd),
		},
		Dtls: DtlsTransport{
			Role:         role,
			Fingerprints: fingerprints,
		},
	}

	if prev != nil && !prev.Closed() && prev.Ice.Ufrag == ufrag {
		value.ID = prev.ID
		for _, candidate := range prev.Ice.Candidates {
			value.addRemoteCandidate(candidate)
		}
		result.updates[prev] = value
		return prev, nil
	}

	if value.ID, err = s.uuidGenerator.Generate(); err != nil {
		return nil, WrapJsepError(ErrorCodeInvalidState, err, "не удалось сгенерировать id транспорта")
	}
	return value, nil
}

// dtlsRole определяет нашу роль DTLS по a=setup в answer
func dtlsRole(answer *sdp.SessionDescription, md *sdp.MediaDescription, offerer bool) (DtlsRole, error) {
	role, ok, err := jsep_sdp.GetSetup(answer, md)
	if err != nil {
		return DtlsRoleClient, WrapJsepError(ErrorCodeNegotiation, err, "неверный a=setup в answer")
	}
	if !ok {
		// RFC 4145: отсутствие a=setup в answer означает active
		role = sdp.ConnectionRoleActive
	}

	switch role {
	case sdp.ConnectionRoleActive:
		if offerer {
			return DtlsRoleServer, nil
		}
		return DtlsRoleClient, nil
	case sdp.ConnectionRolePassive:
		if offerer {
			return DtlsRoleClient, nil
		}
		return DtlsRoleServer, nil
	default:
		return DtlsRoleClient, NewJsepError(ErrorCodeNegotiation, "a=setup:%s недопустим в answer", role)
	}
}

func (s *Session) negotiatePair(result *negotiation, level int, codecs []*jsep_codec.Codec,
	local, remote, answer *sdp.SessionDescription, offerer bool, remoteTracks remoteTrackSet) *TrackPair {

	localMd := local.MediaDescriptions[level]
	remoteMd := remote.MediaDescriptions[level]

	sending := s.localTrackAt(local, level)
	receiving := remoteTracks.byLevel[level]
	if sending == nil && receiving == nil {
		return nil
	}

	direction := jsep_sdp.GetDirection(answer.MediaDescriptions[level])
	if offerer {
		direction = direction.Reverse()
	}
	mediaType, _ := jsep_sdp.MediaTypeOf(localMd)
	if mediaType == jsep_sdp.MediaTypeApplication {
		direction = jsep_sdp.DirectionSendRecv
	}

	pair := &TrackPair{
		Level:     level,
		Sending:   sending,
		Receiving: receiving,
		Direction: direction,
	}

	anchor, bundled := result.bundleLevel[level]
	if !bundled {
		anchor = level
	}
	pair.RtpTransport = result.transports[anchor]
	pair.Bundled = bundled
	pair.BundleLevel = anchor
	if components := transportComponents(result, pair.RtpTransport); components == 2 {
		pair.RtcpTransport = pair.RtpTransport
	}

	extmaps := commonExtmaps(localMd, remoteMd)

	if sending != nil {
		var rids []string
		if dir, remoteRids, ok := jsep_sdp.Simulcast(remoteMd); ok && dir == "recv" {
			rids = intersectRids(remoteRids, sending.rids)
		}
		sendCodecs := make([]*jsep_codec.Codec, 0, len(codecs))
		for _, codec := range codecs {
			sendCodecs = append(sendCodecs, codec.ForSending())
		}
		result.details[sending] = &NegotiatedDetails{
			Encodings: buildEncodings(rids, sendCodecs),
			Extmaps:   extmaps,
			Active:    direction.Sending(),
		}
	}

	if receiving != nil {
		var rids []string
		if dir, remoteRids, ok := jsep_sdp.Simulcast(remoteMd); ok && dir == "send" {
			if localDir, localRids, ok := jsep_sdp.Simulcast(localMd); ok && localDir == "recv" {
				rids = intersectRids(remoteRids, localRids)
			}
		}
		result.details[receiving] = &NegotiatedDetails{
			Encodings: buildEncodings(rids, codecs),
			Extmaps:   extmaps,
			Active:    direction.Receiving(),
		}
	}

	s.logger.Debug("track pair negotiated",
		slog.Int("level", level),
		slog.String("direction", direction.String()),
		slog.Bool("bundled", bundled))
	return pair
}

func anyActive(active map[int]bool) bool {
	for _, ok := range active {
		if ok {
			return true
		}
	}
	return false
}

// transportComponents учитывает ожидающее обновление переиспользуемого транспорта
func transportComponents(result *negotiation, transport *Transport) int {
	if update, ok := result.updates[transport]; ok {
		return update.Components
	}
	return transport.Components
}

func buildEncodings(rids []string, codecs []*jsep_codec.Codec) []*TrackEncoding {
	if len(rids) == 0 {
		return []*TrackEncoding{{Codecs: codecs}}
	}
	encodings := make([]*TrackEncoding, 0, len(rids))
	for _, rid := range rids {
		encodings = append(encodings, &TrackEncoding{Rid: rid, Codecs: codecs})
	}
	return encodings
}

// filterByFormats оставляет кодеки, payload type которых объявлен в нашей секции
func filterByFormats(codecs []*jsep_codec.Codec, formats []string) []*jsep_codec.Codec {
	allowed := make(map[string]bool, len(formats))
	for _, format := range formats {
		allowed[format] = true
	}
	var result []*jsep_codec.Codec
	for _, codec := range codecs {
		if allowed[codec.PayloadType] {
			result = append(result, codec)
		}
	}
	return result
}

// commonExtmaps возвращает расширения, объявленные обеими сторонами, с id нашей секции
func commonExtmaps(localMd, remoteMd *sdp.MediaDescription) []jsep_sdp.Extmap {
	localExtmaps, err := jsep_sdp.Extmaps(localMd)
	if err != nil {
		return nil
	}
	remoteExtmaps, err := jsep_sdp.Extmaps(remoteMd)
	if err != nil {
		return nil
	}

	var result []jsep_sdp.Extmap
	for _, ext := range localExtmaps {
		for _, other := range remoteExtmaps {
			if ext.URI == other.URI {
				result = append(result, jsep_sdp.Extmap{ID: ext.ID, URI: ext.URI})
				break
			}
		}
	}
	return result
}

// assignUniquePayloadTypes находит payload types, встречающиеся ровно в одной
// секции среди пар одного транспорта
func assignUniquePayloadTypes(result *negotiation) {
	counts := make(map[*Transport]map[string]int)
	sectionPTs := make(map[*TrackPair][]string)

	for _, pair := range result.pairs {
		seen := make(map[string]bool)
		for _, track := range []*Track{pair.Sending, pair.Receiving} {
			if track == nil {
				continue
			}
			for _, codec := range result.details[track].Codecs() {
				if !seen[codec.PayloadType] {
					seen[codec.PayloadType] = true
					sectionPTs[pair] = append(sectionPTs[pair], codec.PayloadType)
				}
			}
		}

		if counts[pair.RtpTransport] == nil {
			counts[pair.RtpTransport] = make(map[string]int)
		}
		for pt := range seen {
			counts[pair.RtpTransport][pt]++
		}
	}

	for _, pair := range result.pairs {
		var unique []string
		for _, pt := range sectionPTs[pair] {
			if counts[pair.RtpTransport][pt] == 1 {
				unique = append(unique, pt)
			}
		}
		for _, track := range []*Track{pair.Sending, pair.Receiving} {
			if track != nil {
				result.details[track].UniquePayloadTypes = unique
			}
		}
	}
}

// apply фиксирует результат согласования
func (s *Session) apply(result *negotiation) {
	for transport, value := range result.updates {
		*transport = *value
	}
	s.transports = result.transports
	s.pairs = result.pairs
	s.bundleLevel = result.bundleLevel
	for track, details := range result.details {
		track.negotiated = details
	}
	s.metrics.negotiated(len(result.pairs))
	s.logger.Info("negotiation completed",
		slog.Int("pairs", len(result.pairs)),
		slog.Int("transports", len(result.transports)))
}
