package jsep

import (
	"github.com/arzzra/jsep_engine/pkg/jsep_sdp"
)

// TrackPair результат согласования одной медиа секции.
// Не владеет треками и транспортами: это ссылки на объекты сессии.
type TrackPair struct {
	Level int

	// Sending локальный трек секции, Receiving удаленный; любой может быть nil
	Sending   *Track
	Receiving *Track

	RtpTransport *Transport
	// RtcpTransport nil при rtcp-mux
	RtcpTransport *Transport

	// BundleLevel уровень якоря группы BUNDLE, действителен при Bundled
	BundleLevel int
	Bundled     bool

	// Direction согласованное направление с нашей стороны
	Direction jsep_sdp.Direction
}

// IsSending сообщает, согласована ли отправка
func (p *TrackPair) IsSending() bool {
	return p.Sending != nil && p.Direction.Sending()
}

// IsReceiving сообщает, согласован ли прием
func (p *TrackPair) IsReceiving() bool {
	return p.Receiving != nil && p.Direction.Receiving()
}
