// Package jsep реализует движок согласования offer/answer (JSEP, RFC 8829).
//
// Session превращает набор локальных треков, удаленные offer/answer и ICE
// кандидаты в согласованный набор TrackPair и Transport. Сессия не выполняет
// сетевых операций: она только формирует и разбирает SDP через пакет
// jsep_sdp и ведет учет треков, транспортов и кодеков.
//
// Каждый публичный вызов атомарен: работа ведется над копиями, а состояние
// сессии меняется только после успешного завершения.
package jsep

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/pion/sdp/v3"

	"github.com/arzzra/jsep_engine/pkg/jsep_codec"
	"github.com/arzzra/jsep_engine/pkg/jsep_sdp"
)

// OfferOptions параметры CreateOffer
type OfferOptions struct {
	// Число секций на прием для каждого типа медиа. nil: принимать во всех
	// секциях. Недостающие секции добавляются только на прием, в секциях
	// сверх числа прием выключается (0: секции с треком sendonly, без трека inactive).
	OfferToReceiveAudio *int
	OfferToReceiveVideo *int
}

// ReceiveCount возвращает указатель на число секций для OfferOptions
func ReceiveCount(n int) *int {
	return &n
}

func (o OfferOptions) receiveCount(mediaType jsep_sdp.MediaType) (int, bool) {
	var count *int
	switch mediaType {
	case jsep_sdp.MediaTypeAudio:
		count = o.OfferToReceiveAudio
	case jsep_sdp.MediaTypeVideo:
		count = o.OfferToReceiveVideo
	}
	if count == nil {
		return 0, false
	}
	return *count, true
}

// AnswerOptions параметры CreateAnswer
type AnswerOptions struct{}

// DescriptionVariant выбирает одно из хранимых описаний
type DescriptionVariant int

const (
	DescriptionCurrent DescriptionVariant = iota
	DescriptionPending
	DescriptionPendingOrCurrent
)

// rtpExtension заголовочное расширение RTP с id, общим для всей сессии
type rtpExtension struct {
	mediaType jsep_sdp.MediaType
	extmap    jsep_sdp.Extmap
}

// remoteTrackSet удаленные треки одного описания с привязкой к уровням
type remoteTrackSet struct {
	tracks  []*Track
	byLevel map[int]*Track
	ssrcs   map[*Track][]uint32
	rids    map[*Track][]string
}

func newRemoteTrackSet() remoteTrackSet {
	return remoteTrackSet{
		byLevel: make(map[int]*Track),
		ssrcs:   make(map[*Track][]uint32),
		rids:    make(map[*Track][]string),
	}
}

func (set remoteTrackSet) find(track *Track) *Track {
	for _, existing := range set.tracks {
		if existing.sameIdentity(track) {
			return existing
		}
	}
	return nil
}

// Session движок согласования одной стороны соединения
type Session struct {
	mu sync.Mutex

	name          string
	logger        *slog.Logger
	metrics       *Metrics
	uuidGenerator UUIDGenerator
	bundlePolicy  BundlePolicy
	signaling     *signalingMachine

	iceUfrag     string
	icePwd       string
	iceOptions   []string
	iceLite      bool
	fingerprints []jsep_sdp.Fingerprint
	cname        string

	sessionID      uint64
	sessionVersion uint64

	codecs     []*jsep_codec.Codec
	extensions []rtpExtension

	localTracks []*Track

	// remote отражает последнее примененное удаленное описание,
	// currentRemoteSet зафиксированное
	remote              remoteTrackSet
	currentRemoteSet    remoteTrackSet
	remoteTracksAdded   []*Track
	remoteTracksRemoved []*Track

	defaultRemoteStreamID string
	defaultRemoteTrackIDs map[int]string

	transports  []*Transport
	pairs       []*TrackPair
	bundleLevel map[int]int

	currentLocal  *sdp.SessionDescription
	pendingLocal  *sdp.SessionDescription
	currentRemote *sdp.SessionDescription
	pendingRemote *sdp.SessionDescription

	remoteIceLite    bool
	remoteIceOptions []string

	lastError string
}

// NewSession создает сессию в состоянии stable
func NewSession(config Config) (*Session, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(
		slog.String("component", "jsep_session"),
		slog.String("session", config.Name),
	)

	generator := config.UUIDGenerator
	if generator == nil {
		generator = NewUUIDGenerator()
	}

	s := &Session{
		name:                  config.Name,
		logger:                logger,
		metrics:               config.Metrics,
		uuidGenerator:         generator,
		bundlePolicy:          config.BundlePolicy,
		iceUfrag:              config.IceUfrag,
		icePwd:                config.IcePwd,
		iceOptions:            append([]string(nil), config.IceOptions...),
		iceLite:               config.IceLite,
		remote:                newRemoteTrackSet(),
		currentRemoteSet:      newRemoteTrackSet(),
		defaultRemoteTrackIDs: make(map[int]string),
		bundleLevel:           make(map[int]int),
	}

	var err error
	if s.iceUfrag == "" {
		if s.iceUfrag, err = generateIceUfrag(); err != nil {
			return nil, WrapJsepError(ErrorCodeInvalidConfig, err, "не удалось сгенерировать ice-ufrag")
		}
	}
	if s.icePwd == "" {
		if s.icePwd, err = generateIcePwd(); err != nil {
			return nil, WrapJsepError(ErrorCodeInvalidConfig, err, "не удалось сгенерировать ice-pwd")
		}
	}
	if s.sessionID, err = generateSessionID(); err != nil {
		return nil, WrapJsepError(ErrorCodeInvalidConfig, err, "не удалось сгенерировать id сессии")
	}
	if s.cname, err = generator.Generate(); err != nil {
		return nil, WrapJsepError(ErrorCodeInvalidConfig, err, "не удалось сгенерировать cname")
	}

	if config.Codecs != nil {
		s.codecs = jsep_codec.CloneCodecs(config.Codecs)
	} else {
		s.codecs = jsep_codec.DefaultCodecs()
	}

	for _, uri := range config.AudioExtensions {
		s.addRtpExtension(jsep_sdp.MediaTypeAudio, uri)
	}
	for _, uri := range config.VideoExtensions {
		s.addRtpExtension(jsep_sdp.MediaTypeVideo, uri)
	}

	s.signaling = newSignalingMachine(func(from, to SignalingState) {
		s.logger.Debug("signaling state changed",
			slog.String("from", from.String()),
			slog.String("to", to.String()))
		s.metrics.stateChanged(from, to)
	})
	s.metrics.sessionCreated(StateStable)

	return s, nil
}

// fail записывает текст ошибки в LastError и возвращает ее
func (s *Session) fail(err error) error {
	var jsepErr *JsepError
	if !errors.As(err, &jsepErr) {
		jsepErr = WrapJsepError(ErrorCodeInvalidState, err, "внутренняя ошибка")
		err = jsepErr
	}
	if jsepErr.Session == "" {
		jsepErr.Session = s.name
	}

	s.lastError = err.Error()
	s.metrics.errorOccurred(jsepErr.Code)
	s.logger.Warn("jsep operation failed",
		slog.String("code", jsepErr.Code.String()),
		slog.String("state", s.signaling.State().String()),
		slog.String("error", jsepErr.Message))
	return err
}

// Name возвращает имя сессии
func (s *Session) Name() string {
	return s.name
}

// Close снимает сессию с учета в метриках
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.sessionClosed(s.signaling.State())
}

// AddTrack добавляет локальный трек; описание меняется только при следующем CreateOffer
func (s *Session) AddTrack(track *Track) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if track == nil {
		return s.fail(NewJsepError(ErrorCodeInvalidArgument, "трек не может быть nil"))
	}
	if track.streamID == "" || track.trackID == "" {
		return s.fail(NewJsepError(ErrorCodeInvalidArgument, "трек без streamID или trackID"))
	}
	for _, existing := range s.localTracks {
		if existing == track || (existing.streamID == track.streamID && existing.trackID == track.trackID) {
			return s.fail(NewJsepError(ErrorCodeInvalidArgument,
				"трек %s/%s уже добавлен", track.streamID, track.trackID))
		}
	}

	var ssrcs []uint32
	if track.mediaType != jsep_sdp.MediaTypeApplication {
		count := len(track.rids)
		if count == 0 {
			count = 1
		}
		for i := 0; i < count; i++ {
			ssrc, err := generateSsrc()
			if err != nil {
				return s.fail(WrapJsepError(ErrorCodeInvalidState, err, "не удалось сгенерировать SSRC"))
			}
			ssrcs = append(ssrcs, ssrc)
		}
	}

	track.ssrcs = ssrcs
	s.localTracks = append(s.localTracks, track)
	s.logger.Debug("local track added",
		slog.String("type", track.mediaType.String()),
		slog.String("stream", track.streamID),
		slog.String("track", track.trackID))
	return nil
}

// RemoveTrack удаляет локальный трек
func (s *Session) RemoveTrack(streamID, trackID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, track := range s.localTracks {
		if track.streamID == streamID && track.trackID == trackID {
			s.localTracks = append(s.localTracks[:i:i], s.localTracks[i+1:]...)
			s.logger.Debug("local track removed",
				slog.String("stream", streamID),
				slog.String("track", trackID))
			return nil
		}
	}
	return s.fail(NewJsepError(ErrorCodeInvalidArgument, "трек %s/%s не найден", streamID, trackID))
}

// SetIceCredentials задает локальные ICE учетные данные для следующих описаний
func (s *Session) SetIceCredentials(ufrag, pwd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(ufrag) < minIceUfragLength || len(pwd) < minIcePwdLength {
		return s.fail(NewJsepError(ErrorCodeInvalidArgument,
			"ice-ufrag должен содержать не меньше %d символов, ice-pwd не меньше %d",
			minIceUfragLength, minIcePwdLength))
	}
	s.iceUfrag = ufrag
	s.icePwd = pwd
	return nil
}

// IceCredentials возвращает локальные ICE учетные данные
func (s *Session) IceCredentials() (ufrag, pwd string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.iceUfrag, s.icePwd
}

// AddAudioRtpExtension добавляет заголовочное расширение для аудио; повтор игнорируется
func (s *Session) AddAudioRtpExtension(uri string) error {
	return s.addExtension(jsep_sdp.MediaTypeAudio, uri)
}

// AddVideoRtpExtension добавляет заголовочное расширение для видео; повтор игнорируется
func (s *Session) AddVideoRtpExtension(uri string) error {
	return s.addExtension(jsep_sdp.MediaTypeVideo, uri)
}

func (s *Session) addExtension(mediaType jsep_sdp.MediaType, uri string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if uri == "" {
		return s.fail(NewJsepError(ErrorCodeInvalidArgument, "пустой URI расширения"))
	}
	s.addRtpExtension(mediaType, uri)
	return nil
}

// addRtpExtension назначает id, общий для всей сессии: одинаковый URI разных
// типов медиа получает один id
func (s *Session) addRtpExtension(mediaType jsep_sdp.MediaType, uri string) {
	if s.supportsExtension(mediaType, uri) {
		return
	}

	maxID := 0
	for _, ext := range s.extensions {
		if ext.extmap.URI == uri {
			s.extensions = append(s.extensions, rtpExtension{mediaType: mediaType, extmap: ext.extmap})
			return
		}
		if ext.extmap.ID > maxID {
			maxID = ext.extmap.ID
		}
	}
	s.extensions = append(s.extensions, rtpExtension{
		mediaType: mediaType,
		extmap:    jsep_sdp.Extmap{ID: maxID + 1, URI: uri},
	})
}

func (s *Session) extensionsFor(mediaType jsep_sdp.MediaType) []jsep_sdp.Extmap {
	var result []jsep_sdp.Extmap
	for _, ext := range s.extensions {
		if ext.mediaType == mediaType {
			result = append(result, ext.extmap)
		}
	}
	return result
}

func (s *Session) supportsExtension(mediaType jsep_sdp.MediaType, uri string) bool {
	for _, ext := range s.extensions {
		if ext.mediaType == mediaType && ext.extmap.URI == uri {
			return true
		}
	}
	return false
}

// Codecs возвращает таблицу кодеков сессии. Элементы можно менять
// (Enabled, StronglyPreferred, параметры) до следующего CreateOffer или CreateAnswer.
func (s *Session) Codecs() []*jsep_codec.Codec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codecs
}

// SetCodecs заменяет таблицу кодеков, например для смены порядка предпочтения
func (s *Session) SetCodecs(codecs []*jsep_codec.Codec) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, codec := range codecs {
		if codec == nil || codec.Params == nil {
			return s.fail(NewJsepError(ErrorCodeInvalidArgument, "кодек без параметров"))
		}
	}
	if err := jsep_codec.ValidatePayloadTypes(codecs); err != nil {
		return s.fail(WrapJsepError(ErrorCodeInvalidArgument, err, "неверная таблица кодеков"))
	}
	s.codecs = codecs
	return nil
}

// LocalTracks возвращает локальные треки в порядке добавления
func (s *Session) LocalTracks() []*Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Track(nil), s.localTracks...)
}

// RemoteTracks возвращает треки последнего примененного удаленного описания
func (s *Session) RemoteTracks() []*Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Track(nil), s.remote.tracks...)
}

// RemoteTracksAdded возвращает треки, появившиеся относительно зафиксированного удаленного описания
func (s *Session) RemoteTracksAdded() []*Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Track(nil), s.remoteTracksAdded...)
}

// RemoteTracksRemoved возвращает треки, исчезнувшие относительно зафиксированного удаленного описания
func (s *Session) RemoteTracksRemoved() []*Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Track(nil), s.remoteTracksRemoved...)
}

// NegotiatedTrackPairs возвращает пары последнего завершенного согласования
func (s *Session) NegotiatedTrackPairs() []TrackPair {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]TrackPair, 0, len(s.pairs))
	for _, pair := range s.pairs {
		result = append(result, *pair)
	}
	return result
}

// Transports возвращает транспорты по уровням медиа секций
func (s *Session) Transports() []*Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Transport(nil), s.transports...)
}

// LocalDescription возвращает локальное описание; пустая строка если его нет
func (s *Session) LocalDescription(variant DescriptionVariant) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return serializeOrEmpty(pickDescription(variant, s.currentLocal, s.pendingLocal))
}

// RemoteDescription возвращает удаленное описание; пустая строка если его нет
func (s *Session) RemoteDescription(variant DescriptionVariant) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return serializeOrEmpty(pickDescription(variant, s.currentRemote, s.pendingRemote))
}

func pickDescription(variant DescriptionVariant, current, pending *sdp.SessionDescription) *sdp.SessionDescription {
	switch variant {
	case DescriptionCurrent:
		return current
	case DescriptionPending:
		return pending
	default:
		if pending != nil {
			return pending
		}
		return current
	}
}

func serializeOrEmpty(doc *sdp.SessionDescription) string {
	if doc == nil {
		return ""
	}
	text, err := jsep_sdp.Serialize(doc)
	if err != nil {
		return ""
	}
	return text
}

// State возвращает состояние сигнализации
func (s *Session) State() SignalingState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signaling.State()
}

// LastError возвращает текст последней ошибки
func (s *Session) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// RemoteIsIceLite сообщает, объявил ли собеседник a=ice-lite
func (s *Session) RemoteIsIceLite() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteIceLite
}

// IceOptions возвращает токены a=ice-options собеседника
func (s *Session) IceOptions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.remoteIceOptions...)
}
