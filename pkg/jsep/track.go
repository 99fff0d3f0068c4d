package jsep

import (
	"github.com/pion/rtp"

	"github.com/arzzra/jsep_engine/pkg/jsep_codec"
	"github.com/arzzra/jsep_engine/pkg/jsep_sdp"
)

// maxOneByteExtensionID максимальный id расширения для профиля RFC 8285 one-byte
const maxOneByteExtensionID = 14

// Track локальный или удаленный медиа трек.
//
// Локальные треки создаются вызывающей стороной и передаются в AddTrack,
// удаленные создаются сессией при разборе удаленного описания. Сессия владеет
// треками; TrackPair только ссылается на них.
type Track struct {
	mediaType jsep_sdp.MediaType
	streamID  string
	trackID   string

	rids  []string
	ssrcs []uint32

	negotiated *NegotiatedDetails
}

// NewTrack создает трек
func NewTrack(mediaType jsep_sdp.MediaType, streamID, trackID string) *Track {
	return &Track{
		mediaType: mediaType,
		streamID:  streamID,
		trackID:   trackID,
	}
}

// MediaType возвращает тип медиа
func (t *Track) MediaType() jsep_sdp.MediaType { return t.mediaType }

// StreamID возвращает идентификатор потока (первое поле a=msid)
func (t *Track) StreamID() string { return t.streamID }

// TrackID возвращает идентификатор трека (второе поле a=msid)
func (t *Track) TrackID() string { return t.trackID }

// SetRids задает rid для simulcast отправки. Вызывается до AddTrack.
func (t *Track) SetRids(rids []string) {
	t.rids = append([]string(nil), rids...)
}

// Rids возвращает rid трека
func (t *Track) Rids() []string {
	return append([]string(nil), t.rids...)
}

// Ssrcs возвращает SSRC трека: назначенные сессией для локального трека
// или прочитанные из a=ssrc для удаленного
func (t *Track) Ssrcs() []uint32 {
	return append([]uint32(nil), t.ssrcs...)
}

// Negotiated возвращает результат последнего согласования или nil
func (t *Track) Negotiated() *NegotiatedDetails {
	return t.negotiated
}

func (t *Track) sameIdentity(other *Track) bool {
	return t.mediaType == other.mediaType && t.streamID == other.streamID && t.trackID == other.trackID
}

// TrackEncoding одна кодировка согласованного трека
type TrackEncoding struct {
	// Rid пустой, если simulcast не согласован
	Rid    string
	Codecs []*jsep_codec.Codec
}

// NegotiatedDetails параметры трека после согласования
type NegotiatedDetails struct {
	Encodings []*TrackEncoding
	Extmaps   []jsep_sdp.Extmap

	// UniquePayloadTypes payload types, встречающиеся только в секции этого трека
	// среди секций одного транспорта; по ним демультиплексируется RTP без SSRC
	UniquePayloadTypes []string

	// Active false для треков, направление которых согласовано как неактивное
	Active bool
}

// Extmap ищет согласованное расширение по URI
func (d *NegotiatedDetails) Extmap(uri string) (jsep_sdp.Extmap, bool) {
	for _, extmap := range d.Extmaps {
		if extmap.URI == uri {
			return extmap, true
		}
	}
	return jsep_sdp.Extmap{}, false
}

// HeaderExtensionProfile возвращает профиль заголовочных расширений RTP:
// one-byte, если все id помещаются в 1-14, иначе two-byte
func (d *NegotiatedDetails) HeaderExtensionProfile() uint16 {
	for _, extmap := range d.Extmaps {
		if extmap.ID > maxOneByteExtensionID {
			return rtp.ExtensionProfileTwoByte
		}
	}
	return rtp.ExtensionProfileOneByte
}

// Codecs возвращает кодеки первой кодировки
func (d *NegotiatedDetails) Codecs() []*jsep_codec.Codec {
	if len(d.Encodings) == 0 {
		return nil
	}
	return d.Encodings[0].Codecs
}
