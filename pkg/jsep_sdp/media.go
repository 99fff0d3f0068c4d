package jsep_sdp

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"
)

// MediaType тип медиа секции
type MediaType int

const (
	MediaTypeAudio MediaType = iota
	MediaTypeVideo
	MediaTypeApplication
)

// MediaTypes перечисляет типы в порядке размещения новых секций в offer
var MediaTypes = []MediaType{MediaTypeAudio, MediaTypeVideo, MediaTypeApplication}

func (t MediaType) String() string {
	switch t {
	case MediaTypeAudio:
		return "audio"
	case MediaTypeVideo:
		return "video"
	case MediaTypeApplication:
		return "application"
	default:
		return fmt.Sprintf("MediaType(%d)", int(t))
	}
}

// ParseMediaType разбирает значение <media> из m= строки
func ParseMediaType(value string) (MediaType, error) {
	switch value {
	case "audio":
		return MediaTypeAudio, nil
	case "video":
		return MediaTypeVideo, nil
	case "application":
		return MediaTypeApplication, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMediaType, value)
	}
}

// MediaTypeOf возвращает тип медиа секции
func MediaTypeOf(md *sdp.MediaDescription) (MediaType, error) {
	return ParseMediaType(md.MediaName.Media)
}

// Протоколы m= строки по умолчанию
var (
	DefaultRtpProtos  = []string{"UDP", "TLS", "RTP", "SAVPF"}
	DefaultSctpProtos = []string{"DTLS", "SCTP"}
)

// DefaultProtos возвращает протокол по умолчанию для типа медиа
func DefaultProtos(mediaType MediaType) []string {
	if mediaType == MediaTypeApplication {
		return append([]string(nil), DefaultSctpProtos...)
	}
	return append([]string(nil), DefaultRtpProtos...)
}

// NewMediaSection создает медиа секцию с портом 9 и c=IN IP4 0.0.0.0
func NewMediaSection(mediaType MediaType, protos []string, mid string) *sdp.MediaDescription {
	md := &sdp.MediaDescription{
		MediaName: sdp.MediaName{
			Media:   mediaType.String(),
			Port:    sdp.RangedPort{Value: 9},
			Protos:  append([]string(nil), protos...),
			Formats: []string{},
		},
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: "0.0.0.0"},
		},
	}
	if mid != "" {
		md.Attributes = append(md.Attributes, sdp.NewAttribute(sdp.AttrKeyMID, mid))
	}
	return md
}

// Mid возвращает значение a=mid или пустую строку
func Mid(md *sdp.MediaDescription) string {
	value, _ := md.Attribute(sdp.AttrKeyMID)
	return value
}

// Port возвращает порт m= строки
func Port(md *sdp.MediaDescription) int {
	return md.MediaName.Port.Value
}

// SetPort устанавливает порт m= строки
func SetPort(md *sdp.MediaDescription, port int) {
	md.MediaName.Port = sdp.RangedPort{Value: port}
}

// IsBundleOnly проверяет наличие a=bundle-only
func IsBundleOnly(md *sdp.MediaDescription) bool {
	return HasAttribute(md.Attributes, AttrKeyBundleOnly)
}

// IsDisabled проверяет, отклонена ли секция: порт 0 без bundle-only
func IsDisabled(md *sdp.MediaDescription) bool {
	return Port(md) == 0 && !IsBundleOnly(md)
}

// HasRtcpMux проверяет наличие a=rtcp-mux
func HasRtcpMux(md *sdp.MediaDescription) bool {
	return HasAttribute(md.Attributes, sdp.AttrKeyRTCPMux)
}

// DisableMediaSection превращает секцию в отклоненную: порт 0, один формат-заглушка,
// из атрибутов остаются только a=mid и a=inactive
func DisableMediaSection(md *sdp.MediaDescription) {
	mid := Mid(md)
	mediaType, err := MediaTypeOf(md)
	if err != nil {
		// неизвестный тип: форматы остаются как есть
		mediaType = -1
	}

	SetPort(md, 0)
	md.Bandwidth = nil
	md.Attributes = nil
	if mid != "" {
		md.Attributes = append(md.Attributes, sdp.NewAttribute(sdp.AttrKeyMID, mid))
	}
	md.Attributes = append(md.Attributes, sdp.NewPropertyAttribute(sdp.AttrKeyInactive))

	switch mediaType {
	case MediaTypeAudio:
		md.MediaName.Formats = []string{"0"}
		md.Attributes = append(md.Attributes, sdp.NewAttribute(AttrKeyRtpmap, "0 PCMU/8000"))
	case MediaTypeVideo:
		md.MediaName.Formats = []string{"120"}
		md.Attributes = append(md.Attributes, sdp.NewAttribute(AttrKeyRtpmap, "120 VP8/90000"))
	case MediaTypeApplication:
		md.MediaName.Formats = []string{"0"}
		md.Attributes = append(md.Attributes, sdp.NewAttribute(AttrKeySctpmap, "0 rejected 0"))
	}
}

// CloneMediaSection возвращает копию секции, не разделяющую срезы с исходной
func CloneMediaSection(md *sdp.MediaDescription) *sdp.MediaDescription {
	clone := *md
	clone.MediaName.Protos = append([]string(nil), md.MediaName.Protos...)
	clone.MediaName.Formats = append([]string{}, md.MediaName.Formats...)
	clone.Attributes = append([]sdp.Attribute(nil), md.Attributes...)
	clone.Bandwidth = append([]sdp.Bandwidth(nil), md.Bandwidth...)
	if md.ConnectionInformation != nil {
		info := *md.ConnectionInformation
		if info.Address != nil {
			address := *info.Address
			info.Address = &address
		}
		clone.ConnectionInformation = &info
	}
	return &clone
}

// Msid возвращает stream и track из a=msid
func Msid(md *sdp.MediaDescription) (streamID, trackID string, ok bool) {
	value, found := md.Attribute(sdp.AttrKeyMsid)
	if !found {
		return "", "", false
	}
	fields := strings.Fields(value)
	switch len(fields) {
	case 0:
		return "", "", false
	case 1:
		return fields[0], "", true
	default:
		return fields[0], fields[1], true
	}
}

// SetMsid записывает a=msid:<stream> <track>
func SetMsid(md *sdp.MediaDescription, streamID, trackID string) {
	SetMediaAttribute(md, sdp.AttrKeyMsid, streamID+" "+trackID)
}

// Ssrcs возвращает уникальные SSRC из a=ssrc в порядке появления
func Ssrcs(md *sdp.MediaDescription) []uint32 {
	var result []uint32
	seen := make(map[uint32]bool)
	for _, value := range AttributeValues(md.Attributes, sdp.AttrKeySSRC) {
		fields := strings.Fields(value)
		if len(fields) == 0 {
			continue
		}
		ssrc, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil || seen[uint32(ssrc)] {
			continue
		}
		seen[uint32(ssrc)] = true
		result = append(result, uint32(ssrc))
	}
	return result
}

// AddSsrc добавляет a=ssrc:<ssrc> cname:<cname>
func AddSsrc(md *sdp.MediaDescription, ssrc uint32, cname string) {
	md.Attributes = append(md.Attributes,
		sdp.NewAttribute(sdp.AttrKeySSRC, fmt.Sprintf("%d cname:%s", ssrc, cname)))
}
