package jsep_signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/arzzra/jsep_engine/pkg/jsep"
)

// Peer связывает сессию jsep с WebSocket соединением.
//
// Входящий offer применяется и сразу получает answer; входящий answer
// завершает согласование. После каждого возврата в stable сигнализируется
// канал Negotiated.
type Peer struct {
	session *jsep.Session
	conn    *websocket.Conn
	logger  *slog.Logger

	writeMu    sync.Mutex
	negotiated chan struct{}
	closeOnce  sync.Once
}

// NewPeer создает участника обмена
func NewPeer(session *jsep.Session, conn *websocket.Conn, logger *slog.Logger) *Peer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Peer{
		session:    session,
		conn:       conn,
		logger:     logger.With(slog.String("component", "jsep_signaling"), slog.String("session", session.Name())),
		negotiated: make(chan struct{}, 1),
	}
}

// Session возвращает сессию участника
func (p *Peer) Session() *jsep.Session {
	return p.session
}

// Negotiated сигнализирует о завершенном согласовании
func (p *Peer) Negotiated() <-chan struct{} {
	return p.negotiated
}

func (p *Peer) send(msg Message) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if err := p.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to send %s: %w", msg.Type, err)
	}
	return nil
}

func (p *Peer) notifyNegotiated() {
	select {
	case p.negotiated <- struct{}{}:
	default:
	}
}

// SendOffer создает offer, применяет его локально и отправляет собеседнику
func (p *Peer) SendOffer(options jsep.OfferOptions) error {
	offer, err := p.session.CreateOffer(options)
	if err != nil {
		return err
	}
	if err := p.session.SetLocalDescription(jsep.SdpTypeOffer, offer); err != nil {
		return err
	}
	return p.send(Message{Type: MsgTypeOffer, SDP: offer})
}

// SendCandidate добавляет локальный кандидат и отправляет его, если он нужен
func (p *Peer) SendCandidate(candidate string, level int) error {
	mid, skipped, err := p.session.AddLocalIceCandidate(candidate, level)
	if err != nil {
		return err
	}
	if skipped {
		return nil
	}
	return p.send(Message{Type: MsgTypeCandidate, Candidate: candidate, Mid: mid, Level: level})
}

// SendEndOfCandidates отмечает и передает завершение сбора кандидатов уровня
func (p *Peer) SendEndOfCandidates(level int) error {
	if err := p.session.EndOfLocalCandidates(level); err != nil {
		return err
	}
	return p.send(Message{Type: MsgTypeEndOfCandidates, Level: level})
}

// Rollback откатывает локальный offer и уведомляет собеседника
func (p *Peer) Rollback() error {
	if err := p.session.SetLocalDescription(jsep.SdpTypeRollback, ""); err != nil {
		return err
	}
	return p.send(Message{Type: MsgTypeRollback})
}

// HandleMessage применяет входящее сообщение к сессии
func (p *Peer) HandleMessage(msg Message) error {
	switch msg.Type {
	case MsgTypeOffer:
		if err := p.session.SetRemoteDescription(jsep.SdpTypeOffer, msg.SDP); err != nil {
			return err
		}
		answer, err := p.session.CreateAnswer(jsep.AnswerOptions{})
		if err != nil {
			return p.rollbackRemoteOffer(err)
		}
		if err := p.session.SetLocalDescription(jsep.SdpTypeAnswer, answer); err != nil {
			return p.rollbackRemoteOffer(err)
		}
		if err := p.send(Message{Type: MsgTypeAnswer, SDP: answer}); err != nil {
			return err
		}
		p.notifyNegotiated()

	case MsgTypeAnswer:
		if err := p.session.SetRemoteDescription(jsep.SdpTypeAnswer, msg.SDP); err != nil {
			return err
		}
		p.notifyNegotiated()

	case MsgTypeCandidate:
		return p.session.AddRemoteIceCandidate(msg.Candidate, msg.Mid, msg.Level)

	case MsgTypeEndOfCandidates:
		p.logger.Debug("remote end of candidates", slog.Int("level", msg.Level))

	case MsgTypeRollback:
		if p.session.State() == jsep.StateHaveRemoteOffer {
			return p.session.SetRemoteDescription(jsep.SdpTypeRollback, "")
		}

	default:
		return fmt.Errorf("unknown signaling message type %q", msg.Type)
	}
	return nil
}

// rollbackRemoteOffer возвращает сессию в stable, если ответ на offer не удался
func (p *Peer) rollbackRemoteOffer(cause error) error {
	if err := p.session.SetRemoteDescription(jsep.SdpTypeRollback, ""); err != nil {
		p.logger.Error("failed to roll back remote offer", slog.String("error", err.Error()))
	}
	return cause
}

// Run читает сообщения до закрытия соединения или отмены контекста.
// Ошибки применения сообщений логируются и не прерывают цикл.
func (p *Peer) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			p.Close()
		case <-done:
		}
	}()

	for {
		var msg Message
		if err := p.conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("signaling read failed: %w", err)
		}

		if err := p.HandleMessage(msg); err != nil {
			var jsepErr *jsep.JsepError
			if errors.As(err, &jsepErr) {
				p.logger.Warn("signaling message rejected",
					slog.String("type", string(msg.Type)),
					slog.String("code", jsepErr.Code.String()),
					slog.String("error", jsepErr.Message))
				continue
			}
			p.logger.Warn("signaling message failed",
				slog.String("type", string(msg.Type)),
				slog.String("error", err.Error()))
		}
	}
}

// Close закрывает соединение
func (p *Peer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.writeMu.Lock()
		_ = p.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		p.writeMu.Unlock()
		err = p.conn.Close()
	})
	return err
}
