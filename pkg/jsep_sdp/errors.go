package jsep_sdp

import "errors"

// Ошибки разбора и доступа к SDP документу
var (
	// ErrEmptyDescription возвращается для пустого SDP текста или nil документа
	ErrEmptyDescription = errors.New("empty session description")

	// ErrMalformedDescription возвращается когда pion/sdp не смог разобрать текст
	ErrMalformedDescription = errors.New("malformed session description")

	// ErrNoMediaSection возвращается при обращении к несуществующему уровню
	ErrNoMediaSection = errors.New("no media section at level")

	// ErrMalformedAttribute возвращается для атрибута с неверным синтаксисом
	ErrMalformedAttribute = errors.New("malformed attribute")

	// ErrUnknownMediaType возвращается для m= строки с неподдерживаемым типом
	ErrUnknownMediaType = errors.New("unknown media type")
)
