package jsep_codec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"

	"github.com/arzzra/jsep_engine/pkg/jsep_sdp"
)

// Fmtp формирует параметры a=fmtp кодека (без payload type); пустая строка означает отсутствие строки
func (c *Codec) Fmtp() string {
	switch params := c.Params.(type) {
	case *AudioParams:
		switch {
		case c.Is(NameOpus):
			var parts []string
			if params.MaxPlaybackRate != 0 {
				parts = append(parts, fmt.Sprintf("maxplaybackrate=%d", params.MaxPlaybackRate))
			}
			if params.Stereo {
				parts = append(parts, "stereo=1")
			}
			if params.UseInBandFec {
				parts = append(parts, "useinbandfec=1")
			}
			return strings.Join(parts, ";")
		case c.Is(NameTelephoneEvent):
			return params.DtmfTones
		}
	case *VideoParams:
		switch {
		case c.Is(NameH264):
			asymmetry := 0
			if params.LevelAsymmetryAllowed {
				asymmetry = 1
			}
			return fmt.Sprintf("profile-level-id=%06x;level-asymmetry-allowed=%d;packetization-mode=%d",
				params.ProfileLevelID, asymmetry, params.PacketizationMode)
		case c.Is(NameVP8), c.Is(NameVP9):
			var parts []string
			if params.MaxFs != 0 {
				parts = append(parts, fmt.Sprintf("max-fs=%d", params.MaxFs))
			}
			if params.MaxFr != 0 {
				parts = append(parts, fmt.Sprintf("max-fr=%d", params.MaxFr))
			}
			return strings.Join(parts, ";")
		case c.Is(NameRed):
			return strings.Join(params.RedundantEncodings, "/")
		}
	}
	return ""
}

// AddToMediaSection добавляет кодек в m= строку секции
func (c *Codec) AddToMediaSection(md *sdp.MediaDescription) {
	switch params := c.Params.(type) {
	case *ApplicationParams:
		jsep_sdp.AddSctpmap(md, jsep_sdp.Sctpmap{
			Port:     c.PayloadType,
			Protocol: c.Name,
			Streams:  params.Streams,
		})
	case *VideoParams:
		jsep_sdp.AddFormat(md, c.Rtpmap(), c.Fmtp(), params.RtcpFbTypes)
	default:
		jsep_sdp.AddFormat(md, c.Rtpmap(), c.Fmtp(), nil)
	}
}

// parseUint разбирает число; при ошибке возвращает значение по умолчанию
func parseUint(params map[string]string, key string, fallback uint32) uint32 {
	value, ok := params[key]
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return fallback
	}
	return uint32(parsed)
}

// parseH264 читает параметры H264 удаленной стороны с умолчаниями RFC 6184
func parseH264(params map[string]string) (profileLevelID, packetizationMode uint32, asymmetry bool) {
	profileLevelID = DefaultH264ProfileLevelID
	if value, ok := params["profile-level-id"]; ok {
		if parsed, err := strconv.ParseUint(value, 16, 32); err == nil && len(value) == 6 {
			profileLevelID = uint32(parsed)
		}
	}
	packetizationMode = parseUint(params, "packetization-mode", 0)
	asymmetry = params["level-asymmetry-allowed"] == "1"
	return profileLevelID, packetizationMode, asymmetry
}

// remoteFmtp возвращает разобранные параметры fmtp удаленной секции для payload type
func remoteFmtp(remote *sdp.MediaDescription, pt string) map[string]string {
	value, ok := jsep_sdp.GetFmtp(remote, pt)
	if !ok {
		return map[string]string{}
	}
	return jsep_sdp.ParseFmtpParameters(value)
}
