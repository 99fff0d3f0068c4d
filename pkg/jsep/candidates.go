package jsep

import (
	"log/slog"

	"github.com/pion/ice/v4"
	"github.com/pion/sdp/v3"

	"github.com/arzzra/jsep_engine/pkg/jsep_sdp"
)

const maxPort = 65535

// parseCandidate убирает префикс и проверяет синтаксис кандидата через pion/ice
func parseCandidate(candidate string) (string, error) {
	trimmed := jsep_sdp.TrimCandidatePrefix(candidate)
	if trimmed == "" {
		return "", NewJsepError(ErrorCodeInvalidArgument, "пустой ICE кандидат")
	}
	if _, err := ice.UnmarshalCandidate(trimmed); err != nil {
		return "", WrapJsepError(ErrorCodeInvalidArgument, err, "неверный ICE кандидат %q", trimmed)
	}
	return trimmed, nil
}

// localSection возвращает секцию ожидающего или текущего локального описания
func (s *Session) localSection(level int) (*sdp.MediaDescription, error) {
	doc := pickDescription(DescriptionPendingOrCurrent, s.currentLocal, s.pendingLocal)
	if doc == nil {
		return nil, NewJsepError(ErrorCodeInvalidState, "локальное описание не задано")
	}
	if level < 0 || level >= len(doc.MediaDescriptions) {
		return nil, NewJsepError(ErrorCodeInvalidArgument, "нет медиа секции на уровне %d", level)
	}
	return doc.MediaDescriptions[level], nil
}

// bundledAway сообщает, что после согласования уровень передается через чужой транспорт
func (s *Session) bundledAway(level int) bool {
	if s.signaling.State() != StateStable {
		return false
	}
	anchor, ok := s.bundleLevel[level]
	return ok && anchor != level
}

// AddLocalIceCandidate добавляет собранный локальный кандидат в описание.
// Возвращает mid секции; skipped равен true, если уровень объединен в чужой
// BUNDLE и кандидат не нужен.
func (s *Session) AddLocalIceCandidate(candidate string, level int) (mid string, skipped bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	md, err := s.localSection(level)
	if err != nil {
		return "", false, s.fail(err)
	}
	trimmed, err := parseCandidate(candidate)
	if err != nil {
		return "", false, s.fail(err)
	}

	mid = jsep_sdp.Mid(md)
	if s.bundledAway(level) || jsep_sdp.IsDisabled(md) {
		s.logger.Debug("local candidate skipped", slog.Int("level", level))
		return mid, true, nil
	}

	jsep_sdp.AddCandidate(md, trimmed)
	return mid, false, nil
}

// AddRemoteIceCandidate добавляет кандидат собеседника. Секция ищется по mid,
// а при пустом mid по уровню.
func (s *Session) AddRemoteIceCandidate(candidate, mid string, level int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := pickDescription(DescriptionPendingOrCurrent, s.currentRemote, s.pendingRemote)
	if doc == nil {
		return s.fail(NewJsepError(ErrorCodeInvalidState, "удаленное описание не задано"))
	}
	trimmed, err := parseCandidate(candidate)
	if err != nil {
		return s.fail(err)
	}

	if mid != "" {
		found, ok := jsep_sdp.FindLevelByMid(doc, mid)
		if !ok {
			return s.fail(NewJsepError(ErrorCodeInvalidArgument, "нет медиа секции с mid %q", mid))
		}
		level = found
	}
	if level < 0 || level >= len(doc.MediaDescriptions) {
		return s.fail(NewJsepError(ErrorCodeInvalidArgument, "нет медиа секции на уровне %d", level))
	}

	if s.bundledAway(level) {
		s.logger.Debug("remote candidate skipped", slog.Int("level", level))
		return nil
	}

	jsep_sdp.AddCandidate(doc.MediaDescriptions[level], trimmed)
	if s.signaling.State() == StateStable && level < len(s.transports) {
		if transport := s.transports[level]; !transport.Closed() {
			transport.addRemoteCandidate(trimmed)
		}
	}
	return nil
}

// UpdateDefaultCandidate записывает адрес и порт кандидата по умолчанию.
// a=rtcp пишется, пока rtcp-mux не согласован.
func (s *Session) UpdateDefaultCandidate(addr string, port int, rtcpAddr string, rtcpPort int, level int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	md, err := s.localSection(level)
	if err != nil {
		return s.fail(err)
	}
	if addr == "" || port <= 0 || port > maxPort {
		return s.fail(NewJsepError(ErrorCodeInvalidArgument, "неверный кандидат по умолчанию %s:%d", addr, port))
	}
	if s.bundledAway(level) || jsep_sdp.IsDisabled(md) || jsep_sdp.IsBundleOnly(md) {
		return nil
	}

	jsep_sdp.SetDefaultCandidate(md, addr, port)
	if rtcpAddr != "" && rtcpPort > 0 && rtcpPort <= maxPort && !s.rtcpMuxNegotiated(level, md) {
		jsep_sdp.SetRtcpAddress(md, rtcpAddr, rtcpPort)
	}
	return nil
}

func (s *Session) rtcpMuxNegotiated(level int, md *sdp.MediaDescription) bool {
	if !jsep_sdp.HasRtcpMux(md) || s.signaling.State() != StateStable || level >= len(s.transports) {
		return false
	}
	return s.transports[level].Components == 1
}

// EndOfLocalCandidates отмечает завершение сбора кандидатов уровня
func (s *Session) EndOfLocalCandidates(level int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	md, err := s.localSection(level)
	if err != nil {
		return s.fail(err)
	}
	if s.bundledAway(level) || jsep_sdp.IsDisabled(md) {
		return nil
	}
	jsep_sdp.SetEndOfCandidates(md)
	return nil
}
