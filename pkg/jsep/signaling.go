package jsep

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"
)

// SdpType тип описания сессии
type SdpType int

const (
	SdpTypeOffer SdpType = iota
	SdpTypeAnswer
	SdpTypeRollback
)

func (t SdpType) String() string {
	switch t {
	case SdpTypeOffer:
		return "offer"
	case SdpTypeAnswer:
		return "answer"
	case SdpTypeRollback:
		return "rollback"
	default:
		return fmt.Sprintf("SdpType(%d)", int(t))
	}
}

// ParseSdpType разбирает строковое представление типа описания
func ParseSdpType(value string) (SdpType, error) {
	switch value {
	case "offer":
		return SdpTypeOffer, nil
	case "answer":
		return SdpTypeAnswer, nil
	case "rollback":
		return SdpTypeRollback, nil
	default:
		return 0, NewJsepError(ErrorCodeInvalidArgument, "неизвестный тип описания %q", value)
	}
}

// SignalingState состояние сигнализации сессии
type SignalingState int

const (
	StateStable SignalingState = iota
	StateHaveLocalOffer
	StateHaveRemoteOffer
)

func (s SignalingState) String() string {
	switch s {
	case StateStable:
		return "stable"
	case StateHaveLocalOffer:
		return "have-local-offer"
	case StateHaveRemoteOffer:
		return "have-remote-offer"
	default:
		return fmt.Sprintf("SignalingState(%d)", int(s))
	}
}

func parseSignalingState(value string) SignalingState {
	switch value {
	case "have-local-offer":
		return StateHaveLocalOffer
	case "have-remote-offer":
		return StateHaveRemoteOffer
	default:
		return StateStable
	}
}

// signalingEvents единственная таблица допустимых переходов
var signalingEvents = fsm.Events{
	{Name: "set-local-offer", Src: []string{"stable"}, Dst: "have-local-offer"},
	{Name: "set-remote-offer", Src: []string{"stable"}, Dst: "have-remote-offer"},
	{Name: "set-remote-answer", Src: []string{"have-local-offer"}, Dst: "stable"},
	{Name: "set-local-answer", Src: []string{"have-remote-offer"}, Dst: "stable"},
	{Name: "set-local-rollback", Src: []string{"have-local-offer"}, Dst: "stable"},
	{Name: "set-remote-rollback", Src: []string{"have-remote-offer"}, Dst: "stable"},
}

func signalingEvent(sdpType SdpType, remote bool) string {
	side := "local"
	if remote {
		side = "remote"
	}
	return "set-" + side + "-" + sdpType.String()
}

// signalingMachine оборачивает looplab/fsm: переход сначала проверяется через next,
// а применяется через commit только после успешной обработки описания
type signalingMachine struct {
	machine *fsm.FSM
}

func newSignalingMachine(onTransition func(from, to SignalingState)) *signalingMachine {
	return &signalingMachine{
		machine: fsm.NewFSM(
			StateStable.String(),
			signalingEvents,
			fsm.Callbacks{
				"enter_state": func(_ context.Context, e *fsm.Event) {
					if onTransition != nil {
						onTransition(parseSignalingState(e.Src), parseSignalingState(e.Dst))
					}
				},
			},
		),
	}
}

// State возвращает текущее состояние
func (m *signalingMachine) State() SignalingState {
	return parseSignalingState(m.machine.Current())
}

// next проверяет переход и возвращает целевое состояние, не меняя автомат
func (m *signalingMachine) next(sdpType SdpType, remote bool) (SignalingState, error) {
	event := signalingEvent(sdpType, remote)
	if !m.machine.Can(event) {
		side := "локальный"
		if remote {
			side = "удаленный"
		}
		return m.State(), NewJsepError(ErrorCodeInvalidState,
			"нельзя применить %s %s в состоянии %s", side, sdpType, m.State())
	}

	for _, desc := range signalingEvents {
		if desc.Name == event {
			return parseSignalingState(desc.Dst), nil
		}
	}
	return m.State(), NewJsepError(ErrorCodeInvalidState, "переход %s не описан", event)
}

// commit применяет переход, ранее проверенный через next
func (m *signalingMachine) commit(sdpType SdpType, remote bool) error {
	return m.machine.Event(context.Background(), signalingEvent(sdpType, remote))
}
