package jsep_codec

import (
	"strings"

	"github.com/pion/sdp/v3"

	"github.com/arzzra/jsep_engine/pkg/jsep_sdp"
)

// Matches проверяет, описывает ли формат pt удаленной секции этот кодек
func (c *Codec) Matches(pt string, remote *sdp.MediaDescription) bool {
	switch params := c.Params.(type) {
	case *ApplicationParams:
		sctpmap, ok := jsep_sdp.GetSctpmap(remote, pt)
		return ok && strings.EqualFold(sctpmap.Protocol, c.Name)
	case *VideoParams:
		if !c.matchesRtpmap(pt, remote) {
			return false
		}
		if c.Is(NameH264) {
			profileLevelID, packetizationMode, _ := parseH264(remoteFmtp(remote, pt))
			if packetizationMode != params.PacketizationMode {
				return false
			}
			return H264Subprofile(profileLevelID) == H264Subprofile(params.ProfileLevelID)
		}
		return true
	default:
		return c.matchesRtpmap(pt, remote)
	}
}

func (c *Codec) matchesRtpmap(pt string, remote *sdp.MediaDescription) bool {
	rtpmap, ok := jsep_sdp.GetRtpmap(remote, pt)
	if !ok {
		return false
	}
	if !strings.EqualFold(rtpmap.Name, c.Name) || rtpmap.ClockRate != c.ClockRate {
		return false
	}
	return channelsOrMono(rtpmap.Channels) == channelsOrMono(c.Channels)
}

func channelsOrMono(channels uint16) uint16 {
	if channels == 0 {
		return 1
	}
	return channels
}

// Negotiate возвращает копию кодека, принявшую payload type удаленной стороны,
// с параметрами, пересеченными с fmtp и rtcp-fb удаленной секции.
// Отсутствующий или неразборчивый fmtp дает параметры по умолчанию.
func (c *Codec) Negotiate(pt string, remote *sdp.MediaDescription) *Codec {
	negotiated := c.Clone()
	negotiated.PayloadType = pt
	fmtp := remoteFmtp(remote, pt)

	switch params := negotiated.Params.(type) {
	case *AudioParams:
		if negotiated.Is(NameOpus) {
			if rate := parseUint(fmtp, "maxplaybackrate", 0); rate != 0 && rate < params.MaxPlaybackRate {
				params.MaxPlaybackRate = rate
			}
			params.UseInBandFec = params.UseInBandFec && fmtp["useinbandfec"] == "1"
		}
	case *VideoParams:
		params.RtcpFbTypes = intersectFeedback(params.RtcpFbTypes, jsep_sdp.GetRtcpFbs(remote, pt))

		switch {
		case negotiated.Is(NameH264):
			remoteProfileLevelID, _, remoteAsymmetry := parseH264(fmtp)
			params.RemoteProfileLevelID = remoteProfileLevelID
			params.LevelAsymmetryAllowed = params.LevelAsymmetryAllowed && remoteAsymmetry
			if !params.LevelAsymmetryAllowed {
				level := minH264Level(params.ProfileLevelID, remoteProfileLevelID)
				params.ProfileLevelID = SetSaneH264Level(level, params.ProfileLevelID)
				params.RemoteProfileLevelID = SetSaneH264Level(level, remoteProfileLevelID)
			}
		case negotiated.Is(NameVP8), negotiated.Is(NameVP9):
			params.MaxFs = minNonZero(params.MaxFs, parseUint(fmtp, "max-fs", 0))
			params.MaxFr = minNonZero(params.MaxFr, parseUint(fmtp, "max-fr", 0))
		case negotiated.Is(NameRed):
			if list := fmtp[""]; list != "" {
				params.RedundantEncodings = strings.Split(list, "/")
			}
		}
	}
	return negotiated
}

// ForSending возвращает вариант согласованного кодека для направления отправки:
// для H264 profile-level-id берется у собеседника
func (c *Codec) ForSending() *Codec {
	clone := c.Clone()
	if video := clone.Video(); video != nil && clone.Is(NameH264) && video.RemoteProfileLevelID != 0 {
		video.ProfileLevelID = video.RemoteProfileLevelID
	}
	return clone
}

func minNonZero(local, remote uint32) uint32 {
	if remote == 0 {
		return local
	}
	if local == 0 || remote < local {
		return remote
	}
	return local
}

func intersectFeedback(local, remote []string) []string {
	var result []string
	for _, fb := range local {
		for _, other := range remote {
			if strings.EqualFold(fb, other) {
				result = append(result, fb)
				break
			}
		}
	}
	return result
}

// NegotiateCodecs сопоставляет форматы удаленной секции с включенными локальными кодеками.
// Каждый локальный кодек используется не более одного раза. Порядок берется из
// удаленной секции, строго предпочтительные кодеки переносятся в начало.
func NegotiateCodecs(local []*Codec, remote *sdp.MediaDescription) []*Codec {
	mediaType, err := jsep_sdp.MediaTypeOf(remote)
	if err != nil {
		return nil
	}

	used := make(map[*Codec]bool)
	var preferred, others []*Codec
	for _, pt := range remote.MediaName.Formats {
		for _, codec := range local {
			if used[codec] || !codec.Enabled || codec.MediaType() != mediaType {
				continue
			}
			if !codec.Matches(pt, remote) {
				continue
			}
			used[codec] = true
			if codec.StronglyPreferred {
				preferred = append(preferred, codec.Negotiate(pt, remote))
			} else {
				others = append(others, codec.Negotiate(pt, remote))
			}
			break
		}
	}

	return filterRedundancy(append(preferred, others...))
}

// filterRedundancy оставляет в red только выжившие payload types и убирает red без кодировок
func filterRedundancy(codecs []*Codec) []*Codec {
	present := make(map[string]bool, len(codecs))
	for _, codec := range codecs {
		present[codec.PayloadType] = true
	}

	result := codecs[:0]
	for _, codec := range codecs {
		if codec.Is(NameRed) {
			video := codec.Video()
			var kept []string
			for _, pt := range video.RedundantEncodings {
				if pt != codec.PayloadType && present[pt] {
					kept = append(kept, pt)
				}
			}
			if len(kept) == 0 {
				continue
			}
			video.RedundantEncodings = kept
		}
		result = append(result, codec)
	}
	return result
}

// OfferCodecs возвращает копии включенных кодеков вида медиа в порядке предпочтения.
// Если включен хотя бы один строго предпочтительный кодек, остаются только такие.
// Для red список кодировок заполняется payload types остальных кодеков.
func OfferCodecs(codecs []*Codec, mediaType jsep_sdp.MediaType) []*Codec {
	var enabled, strong []*Codec
	for _, codec := range codecs {
		if !codec.Enabled || codec.MediaType() != mediaType {
			continue
		}
		enabled = append(enabled, codec.Clone())
		if codec.StronglyPreferred {
			strong = append(strong, codec.Clone())
		}
	}

	result := enabled
	if len(strong) > 0 {
		result = strong
	}

	for _, codec := range result {
		if !codec.Is(NameRed) {
			continue
		}
		var encodings []string
		for _, other := range result {
			if !other.Is(NameRed) {
				encodings = append(encodings, other.PayloadType)
			}
		}
		codec.Video().RedundantEncodings = encodings
	}
	return filterRedundancy(result)
}

// AddCodecsToMediaSection добавляет кодеки в секцию в указанном порядке
func AddCodecsToMediaSection(md *sdp.MediaDescription, codecs []*Codec) {
	for _, codec := range codecs {
		codec.AddToMediaSection(md)
	}
}
