package jsep_codec

import (
	"fmt"
	"strconv"

	"github.com/arzzra/jsep_engine/pkg/jsep_sdp"
)

// Диапазон динамических payload types RFC 3551
const (
	DynamicPayloadTypeMin = 96
	DynamicPayloadTypeMax = 127
)

// ValidatePayloadType проверяет, что payload type является числом 0-127
func ValidatePayloadType(pt string) error {
	value, err := strconv.Atoi(pt)
	if err != nil || value < 0 || value > DynamicPayloadTypeMax {
		return fmt.Errorf("%w: %q", ErrInvalidPayloadType, pt)
	}
	return nil
}

// ValidatePayloadTypes проверяет payload types всех RTP кодеков таблицы
func ValidatePayloadTypes(codecs []*Codec) error {
	for _, codec := range codecs {
		if codec.MediaType() == jsep_sdp.MediaTypeApplication {
			continue
		}
		if err := ValidatePayloadType(codec.PayloadType); err != nil {
			return fmt.Errorf("codec %s: %w", codec.Name, err)
		}
	}
	return nil
}

// EnsureUniquePayloadTypes перенумеровывает включенные RTP кодеки с повторяющимися
// payload types в наименьший свободный номер диапазона 96-127. Закрепленные кодеки
// (согласованные ранее) не перенумеровываются, а их номера считаются занятыми в
// первую очередь. Выключенные кодеки номеров не занимают.
func EnsureUniquePayloadTypes(codecs []*Codec, pinned func(*Codec) bool) error {
	if err := ValidatePayloadTypes(codecs); err != nil {
		return err
	}

	used := make(map[string]*Codec)
	isPinned := func(codec *Codec) bool {
		return pinned != nil && pinned(codec)
	}

	for _, codec := range codecs {
		if !codec.Enabled || codec.MediaType() == jsep_sdp.MediaTypeApplication || !isPinned(codec) {
			continue
		}
		if _, taken := used[codec.PayloadType]; !taken {
			used[codec.PayloadType] = codec
		}
	}

	var clashing []*Codec
	for _, codec := range codecs {
		if !codec.Enabled || codec.MediaType() == jsep_sdp.MediaTypeApplication || isPinned(codec) {
			continue
		}
		if _, taken := used[codec.PayloadType]; taken {
			clashing = append(clashing, codec)
			continue
		}
		used[codec.PayloadType] = codec
	}

	for _, codec := range clashing {
		pt, err := lowestFreePayloadType(used)
		if err != nil {
			return err
		}
		codec.PayloadType = pt
		used[pt] = codec
	}
	return nil
}

func lowestFreePayloadType(used map[string]*Codec) (string, error) {
	for value := DynamicPayloadTypeMin; value <= DynamicPayloadTypeMax; value++ {
		pt := strconv.Itoa(value)
		if _, taken := used[pt]; !taken {
			return pt, nil
		}
	}
	return "", ErrNoFreePayloadType
}
