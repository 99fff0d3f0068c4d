package jsep_codec

import "errors"

var (
	// ErrInvalidPayloadType возвращается для payload type, который не является числом 0-127
	ErrInvalidPayloadType = errors.New("invalid payload type")

	// ErrNoFreePayloadType возвращается когда динамический диапазон 96-127 исчерпан
	ErrNoFreePayloadType = errors.New("no free dynamic payload type")
)
