// Package jsep_sdp предоставляет сервис разбора и сериализации SDP поверх
// pion/sdp/v3 и типизированный доступ к атрибутам медиа секций по уровню.
//
// Движок JSEP никогда не работает с SDP текстом напрямую: он получает
// *sdp.SessionDescription через Parse, изменяет его функциями этого пакета и
// возвращает текст через Serialize.
package jsep_sdp

import (
	"fmt"
	"strings"

	"github.com/pion/sdp/v3"
)

// Атрибуты, для которых в pion/sdp нет констант
const (
	AttrKeyFingerprint = "fingerprint"
	AttrKeyIceUfrag    = "ice-ufrag"
	AttrKeyIcePwd      = "ice-pwd"
	AttrKeyIceOptions  = "ice-options"
	AttrKeyRtpmap      = "rtpmap"
	AttrKeyFmtp        = "fmtp"
	AttrKeyRtcpFb      = "rtcp-fb"
	AttrKeyRtcp        = "rtcp"
	AttrKeyBundleOnly  = "bundle-only"
	AttrKeySctpmap     = "sctpmap"
	AttrKeyRid         = "rid"
	AttrKeySimulcast   = "simulcast"
)

// Parse разбирает SDP текст в структурированный документ
func Parse(text string) (*sdp.SessionDescription, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyDescription
	}

	doc := &sdp.SessionDescription{}
	if err := doc.Unmarshal([]byte(text)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDescription, err)
	}
	return doc, nil
}

// Serialize превращает документ обратно в SDP текст
func Serialize(doc *sdp.SessionDescription) (string, error) {
	if doc == nil {
		return "", ErrEmptyDescription
	}

	raw, err := doc.Marshal()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedDescription, err)
	}
	return string(raw), nil
}

// Clone возвращает независимую копию документа.
// Копия строится через сериализацию, поэтому не разделяет срезы атрибутов.
func Clone(doc *sdp.SessionDescription) (*sdp.SessionDescription, error) {
	text, err := Serialize(doc)
	if err != nil {
		return nil, err
	}
	return Parse(text)
}

// NewDocument создает пустой документ с o=, s= и t= строками
func NewDocument(sessionID, sessionVersion uint64) *sdp.SessionDescription {
	return &sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      sessionID,
			SessionVersion: sessionVersion,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: "0.0.0.0",
		},
		SessionName: "-",
		TimeDescriptions: []sdp.TimeDescription{
			{Timing: sdp.Timing{StartTime: 0, StopTime: 0}},
		},
	}
}

// MediaSection возвращает медиа секцию на указанном уровне
func MediaSection(doc *sdp.SessionDescription, level int) (*sdp.MediaDescription, error) {
	if doc == nil {
		return nil, ErrEmptyDescription
	}
	if level < 0 || level >= len(doc.MediaDescriptions) {
		return nil, fmt.Errorf("%w: %d", ErrNoMediaSection, level)
	}
	return doc.MediaDescriptions[level], nil
}

// FindLevelByMid ищет уровень медиа секции по значению a=mid
func FindLevelByMid(doc *sdp.SessionDescription, mid string) (int, bool) {
	if doc == nil || mid == "" {
		return 0, false
	}
	for level, md := range doc.MediaDescriptions {
		if Mid(md) == mid {
			return level, true
		}
	}
	return 0, false
}

// SessionAttribute ищет атрибут сначала в медиа секции, затем на уровне сессии
func SessionAttribute(doc *sdp.SessionDescription, md *sdp.MediaDescription, key string) (string, bool) {
	if md != nil {
		if value, ok := md.Attribute(key); ok {
			return value, true
		}
	}
	if doc != nil {
		return doc.Attribute(key)
	}
	return "", false
}

// IsIceLite проверяет наличие a=ice-lite на уровне сессии
func IsIceLite(doc *sdp.SessionDescription) bool {
	return HasAttribute(doc.Attributes, sdp.AttrKeyICELite)
}

// IceOptions возвращает токены a=ice-options уровня сессии
func IceOptions(doc *sdp.SessionDescription) []string {
	var options []string
	for _, value := range AttributeValues(doc.Attributes, AttrKeyIceOptions) {
		options = append(options, strings.Fields(value)...)
	}
	return options
}
