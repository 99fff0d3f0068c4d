package jsep_sdp

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"
)

// Rtpmap содержит разобранную строку a=rtpmap
type Rtpmap struct {
	PayloadType string
	Name        string
	ClockRate   uint32
	Channels    uint16
}

// String формирует значение атрибута: "<pt> <name>/<rate>[/<channels>]"
func (r Rtpmap) String() string {
	value := fmt.Sprintf("%s %s/%d", r.PayloadType, r.Name, r.ClockRate)
	if r.Channels > 1 {
		value += fmt.Sprintf("/%d", r.Channels)
	}
	return value
}

// staticRtpmaps статические payload types RFC 3551, которые могут идти без rtpmap
var staticRtpmaps = map[string]Rtpmap{
	"0": {PayloadType: "0", Name: "PCMU", ClockRate: 8000, Channels: 1},
	"8": {PayloadType: "8", Name: "PCMA", ClockRate: 8000, Channels: 1},
	"9": {PayloadType: "9", Name: "G722", ClockRate: 8000, Channels: 1},
}

// ParseRtpmap разбирает значение a=rtpmap
func ParseRtpmap(value string) (Rtpmap, error) {
	parts := strings.SplitN(strings.TrimSpace(value), " ", 2)
	if len(parts) != 2 {
		return Rtpmap{}, fmt.Errorf("%w: rtpmap %q", ErrMalformedAttribute, value)
	}

	encoding := strings.Split(strings.TrimSpace(parts[1]), "/")
	if len(encoding) < 2 {
		return Rtpmap{}, fmt.Errorf("%w: rtpmap %q", ErrMalformedAttribute, value)
	}

	clockRate, err := strconv.ParseUint(encoding[1], 10, 32)
	if err != nil {
		return Rtpmap{}, fmt.Errorf("%w: rtpmap clock rate %q", ErrMalformedAttribute, value)
	}

	rtpmap := Rtpmap{
		PayloadType: parts[0],
		Name:        encoding[0],
		ClockRate:   uint32(clockRate),
		Channels:    1,
	}
	if len(encoding) >= 3 {
		channels, err := strconv.ParseUint(encoding[2], 10, 16)
		if err != nil {
			return Rtpmap{}, fmt.Errorf("%w: rtpmap channels %q", ErrMalformedAttribute, value)
		}
		rtpmap.Channels = uint16(channels)
	}
	return rtpmap, nil
}

// GetRtpmap ищет rtpmap для payload type, для статических типов допускается отсутствие строки
func GetRtpmap(md *sdp.MediaDescription, pt string) (Rtpmap, bool) {
	for _, value := range AttributeValues(md.Attributes, AttrKeyRtpmap) {
		if !strings.HasPrefix(value, pt+" ") {
			continue
		}
		rtpmap, err := ParseRtpmap(value)
		if err != nil {
			return Rtpmap{}, false
		}
		return rtpmap, true
	}

	if static, ok := staticRtpmaps[pt]; ok {
		return static, true
	}
	return Rtpmap{}, false
}

// GetFmtp возвращает параметры a=fmtp для payload type
func GetFmtp(md *sdp.MediaDescription, pt string) (string, bool) {
	for _, value := range AttributeValues(md.Attributes, AttrKeyFmtp) {
		if strings.HasPrefix(value, pt+" ") {
			return strings.TrimSpace(value[len(pt)+1:]), true
		}
	}
	return "", false
}

// ParseFmtpParameters разбирает "key=value;key2=value2" в словарь с ключами в нижнем регистре.
// Фрагменты без "=" (например список red "120/121") попадают под пустой ключ.
func ParseFmtpParameters(params string) map[string]string {
	result := make(map[string]string)
	for _, part := range strings.Split(params, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, found := strings.Cut(part, "=")
		if !found {
			result[""] = part
			continue
		}
		result[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}
	return result
}

// GetRtcpFbs возвращает типы a=rtcp-fb для payload type, включая записи "*"
func GetRtcpFbs(md *sdp.MediaDescription, pt string) []string {
	var result []string
	for _, value := range AttributeValues(md.Attributes, AttrKeyRtcpFb) {
		target, feedback, found := strings.Cut(value, " ")
		if !found {
			continue
		}
		if target == pt || target == "*" {
			result = append(result, strings.TrimSpace(feedback))
		}
	}
	return result
}

// AddFormat добавляет формат в m= строку вместе с rtpmap, fmtp и rtcp-fb
func AddFormat(md *sdp.MediaDescription, rtpmap Rtpmap, fmtp string, rtcpFbs []string) {
	md.MediaName.Formats = append(md.MediaName.Formats, rtpmap.PayloadType)
	md.Attributes = append(md.Attributes, sdp.NewAttribute(AttrKeyRtpmap, rtpmap.String()))
	if fmtp != "" {
		md.Attributes = append(md.Attributes,
			sdp.NewAttribute(AttrKeyFmtp, rtpmap.PayloadType+" "+fmtp))
	}
	for _, fb := range rtcpFbs {
		md.Attributes = append(md.Attributes,
			sdp.NewAttribute(AttrKeyRtcpFb, rtpmap.PayloadType+" "+fb))
	}
}

// Sctpmap содержит разобранную строку a=sctpmap
type Sctpmap struct {
	Port     string
	Protocol string
	Streams  uint32
}

// GetSctpmap ищет a=sctpmap для формата
func GetSctpmap(md *sdp.MediaDescription, format string) (Sctpmap, bool) {
	for _, value := range AttributeValues(md.Attributes, AttrKeySctpmap) {
		fields := strings.Fields(value)
		if len(fields) < 2 || fields[0] != format {
			continue
		}
		sctpmap := Sctpmap{Port: fields[0], Protocol: fields[1]}
		if len(fields) >= 3 {
			if streams, err := strconv.ParseUint(fields[2], 10, 32); err == nil {
				sctpmap.Streams = uint32(streams)
			}
		}
		return sctpmap, true
	}
	return Sctpmap{}, false
}

// AddSctpmap добавляет формат data channel в m= строку вместе с a=sctpmap
func AddSctpmap(md *sdp.MediaDescription, sctpmap Sctpmap) {
	md.MediaName.Formats = append(md.MediaName.Formats, sctpmap.Port)
	md.Attributes = append(md.Attributes, sdp.NewAttribute(AttrKeySctpmap,
		fmt.Sprintf("%s %s %d", sctpmap.Port, sctpmap.Protocol, sctpmap.Streams)))
}
