// Package jsep_codec описывает кодеки сессии JSEP и правила их согласования.
//
// Codec хранит общие поля (payload type, имя, частота, каналы, флаги) и
// параметры конкретного вида медиа в Params. Params является закрытой суммой
// типов: *AudioParams, *VideoParams или *ApplicationParams. Логика согласования
// выбирает ветку через type switch.
package jsep_codec

import (
	"strings"

	"github.com/arzzra/jsep_engine/pkg/jsep_sdp"
)

// Имена кодеков, для которых есть специальные правила
const (
	NameOpus           = "opus"
	NameTelephoneEvent = "telephone-event"
	NameVP8            = "VP8"
	NameVP9            = "VP9"
	NameH264           = "H264"
	NameRed            = "red"
	NameUlpfec         = "ulpfec"
	NameDataChannel    = "webrtc-datachannel"
)

// Типы RTCP feedback для видео
const (
	RtcpFbNack    = "nack"
	RtcpFbNackPli = "nack pli"
	RtcpFbCcmFir  = "ccm fir"
	RtcpFbRemb    = "goog-remb"
)

// Params параметры конкретного вида медиа
type Params interface {
	MediaType() jsep_sdp.MediaType
	cloneParams() Params
}

// AudioParams параметры аудио кодеков
type AudioParams struct {
	// Opus
	MaxPlaybackRate uint32
	Stereo          bool
	UseInBandFec    bool

	// telephone-event, например "0-15"
	DtmfTones string
}

// MediaType реализует Params
func (p *AudioParams) MediaType() jsep_sdp.MediaType { return jsep_sdp.MediaTypeAudio }

func (p *AudioParams) cloneParams() Params {
	clone := *p
	return &clone
}

// VideoParams параметры видео кодеков
type VideoParams struct {
	RtcpFbTypes []string

	// VP8/VP9
	MaxFs uint32
	MaxFr uint32

	// H264. ProfileLevelID описывает то, что мы принимаем;
	// RemoteProfileLevelID заполняется при согласовании и описывает то, что принимает собеседник.
	ProfileLevelID        uint32
	RemoteProfileLevelID  uint32
	PacketizationMode     uint32
	LevelAsymmetryAllowed bool

	// red: payload types избыточных кодировок
	RedundantEncodings []string
}

// MediaType реализует Params
func (p *VideoParams) MediaType() jsep_sdp.MediaType { return jsep_sdp.MediaTypeVideo }

func (p *VideoParams) cloneParams() Params {
	clone := *p
	clone.RtcpFbTypes = append([]string(nil), p.RtcpFbTypes...)
	clone.RedundantEncodings = append([]string(nil), p.RedundantEncodings...)
	return &clone
}

// ApplicationParams параметры data channel
type ApplicationParams struct {
	Streams uint32
}

// MediaType реализует Params
func (p *ApplicationParams) MediaType() jsep_sdp.MediaType {
	return jsep_sdp.MediaTypeApplication
}

func (p *ApplicationParams) cloneParams() Params {
	clone := *p
	return &clone
}

// Codec описание кодека в таблице предпочтений сессии или в результате согласования
type Codec struct {
	PayloadType       string
	Name              string
	ClockRate         uint32
	Channels          uint16
	Enabled           bool
	StronglyPreferred bool
	Params            Params
}

// MediaType возвращает вид медиа кодека
func (c *Codec) MediaType() jsep_sdp.MediaType {
	return c.Params.MediaType()
}

// Clone возвращает глубокую копию
func (c *Codec) Clone() *Codec {
	clone := *c
	if c.Params != nil {
		clone.Params = c.Params.cloneParams()
	}
	return &clone
}

// Video возвращает видео параметры или nil
func (c *Codec) Video() *VideoParams {
	video, _ := c.Params.(*VideoParams)
	return video
}

// Audio возвращает аудио параметры или nil
func (c *Codec) Audio() *AudioParams {
	audio, _ := c.Params.(*AudioParams)
	return audio
}

// Is сравнивает имя кодека без учета регистра
func (c *Codec) Is(name string) bool {
	return strings.EqualFold(c.Name, name)
}

// SameCodec сообщает, описывают ли два значения один и тот же кодек
// (без учета payload type и согласованных параметров)
func (c *Codec) SameCodec(other *Codec) bool {
	if !c.Is(other.Name) || c.ClockRate != other.ClockRate || c.Channels != other.Channels {
		return false
	}
	if c.MediaType() != other.MediaType() {
		return false
	}
	if c.Is(NameH264) {
		return c.Video().PacketizationMode == other.Video().PacketizationMode
	}
	return true
}

// Rtpmap возвращает строку rtpmap кодека
func (c *Codec) Rtpmap() jsep_sdp.Rtpmap {
	return jsep_sdp.Rtpmap{
		PayloadType: c.PayloadType,
		Name:        c.Name,
		ClockRate:   c.ClockRate,
		Channels:    c.Channels,
	}
}

// DefaultCodecs возвращает таблицу кодеков по умолчанию в порядке предпочтения
func DefaultCodecs() []*Codec {
	videoFeedback := func() []string {
		return []string{RtcpFbNack, RtcpFbNackPli, RtcpFbCcmFir}
	}

	return []*Codec{
		{PayloadType: "109", Name: NameOpus, ClockRate: 48000, Channels: 2, Enabled: true,
			Params: &AudioParams{MaxPlaybackRate: 48000, Stereo: true}},
		{PayloadType: "9", Name: "G722", ClockRate: 8000, Channels: 1, Enabled: true,
			Params: &AudioParams{}},
		{PayloadType: "0", Name: "PCMU", ClockRate: 8000, Channels: 1, Enabled: true,
			Params: &AudioParams{}},
		{PayloadType: "8", Name: "PCMA", ClockRate: 8000, Channels: 1, Enabled: true,
			Params: &AudioParams{}},
		{PayloadType: "101", Name: NameTelephoneEvent, ClockRate: 8000, Channels: 1, Enabled: true,
			Params: &AudioParams{DtmfTones: "0-15"}},

		{PayloadType: "120", Name: NameVP8, ClockRate: 90000, Channels: 1, Enabled: true,
			Params: &VideoParams{RtcpFbTypes: videoFeedback(), MaxFs: 12288, MaxFr: 60}},
		{PayloadType: "121", Name: NameVP9, ClockRate: 90000, Channels: 1, Enabled: true,
			Params: &VideoParams{RtcpFbTypes: videoFeedback(), MaxFs: 12288, MaxFr: 60}},
		{PayloadType: "126", Name: NameH264, ClockRate: 90000, Channels: 1, Enabled: true,
			Params: &VideoParams{RtcpFbTypes: videoFeedback(), ProfileLevelID: 0x42e00d,
				PacketizationMode: 1, LevelAsymmetryAllowed: true}},
		{PayloadType: "97", Name: NameH264, ClockRate: 90000, Channels: 1, Enabled: true,
			Params: &VideoParams{RtcpFbTypes: videoFeedback(), ProfileLevelID: 0x42e00d,
				PacketizationMode: 0, LevelAsymmetryAllowed: true}},
		{PayloadType: "122", Name: NameRed, ClockRate: 90000, Channels: 1, Enabled: true,
			Params: &VideoParams{}},
		{PayloadType: "123", Name: NameUlpfec, ClockRate: 90000, Channels: 1, Enabled: true,
			Params: &VideoParams{}},

		{PayloadType: "5000", Name: NameDataChannel, Enabled: true,
			Params: &ApplicationParams{Streams: 256}},
	}
}

// CloneCodecs копирует список кодеков
func CloneCodecs(codecs []*Codec) []*Codec {
	result := make([]*Codec, len(codecs))
	for i, codec := range codecs {
		result[i] = codec.Clone()
	}
	return result
}

// FindCodec ищет кодек по имени (первое совпадение)
func FindCodec(codecs []*Codec, name string) *Codec {
	for _, codec := range codecs {
		if codec.Is(name) {
			return codec
		}
	}
	return nil
}
