package jsep_sdp

import (
	"github.com/pion/sdp/v3"
)

// Direction направление медиа в виде битовой маски send|recv
type Direction uint8

const (
	DirectionInactive Direction = 0
	DirectionSendOnly Direction = 1
	DirectionRecvOnly Direction = 2
	DirectionSendRecv Direction = DirectionSendOnly | DirectionRecvOnly
)

// Sending сообщает, включена ли отправка
func (d Direction) Sending() bool {
	return d&DirectionSendOnly != 0
}

// Receiving сообщает, включен ли прием
func (d Direction) Receiving() bool {
	return d&DirectionRecvOnly != 0
}

// Reverse возвращает направление с точки зрения другой стороны
func (d Direction) Reverse() Direction {
	var reversed Direction
	if d.Sending() {
		reversed |= DirectionRecvOnly
	}
	if d.Receiving() {
		reversed |= DirectionSendOnly
	}
	return reversed
}

func (d Direction) String() string {
	switch d {
	case DirectionSendOnly:
		return sdp.AttrKeySendOnly
	case DirectionRecvOnly:
		return sdp.AttrKeyRecvOnly
	case DirectionSendRecv:
		return sdp.AttrKeySendRecv
	default:
		return sdp.AttrKeyInactive
	}
}

// NewDirection собирает направление из двух флагов
func NewDirection(send, recv bool) Direction {
	var d Direction
	if send {
		d |= DirectionSendOnly
	}
	if recv {
		d |= DirectionRecvOnly
	}
	return d
}

// GetDirection читает направление секции, по умолчанию sendrecv
func GetDirection(md *sdp.MediaDescription) Direction {
	for _, attr := range md.Attributes {
		switch attr.Key {
		case sdp.AttrKeySendRecv:
			return DirectionSendRecv
		case sdp.AttrKeySendOnly:
			return DirectionSendOnly
		case sdp.AttrKeyRecvOnly:
			return DirectionRecvOnly
		case sdp.AttrKeyInactive:
			return DirectionInactive
		}
	}
	return DirectionSendRecv
}

// SetDirection заменяет атрибут направления секции
func SetDirection(md *sdp.MediaDescription, d Direction) {
	md.Attributes = WithoutAttributes(md.Attributes,
		sdp.AttrKeySendRecv, sdp.AttrKeySendOnly, sdp.AttrKeyRecvOnly, sdp.AttrKeyInactive)
	md.Attributes = append(md.Attributes, sdp.NewPropertyAttribute(d.String()))
}
