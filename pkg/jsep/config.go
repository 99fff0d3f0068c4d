package jsep

import (
	"fmt"
	"log/slog"

	"github.com/pion/sdp/v3"

	"github.com/arzzra/jsep_engine/pkg/jsep_codec"
)

// BundlePolicy политика объединения медиа секций в BUNDLE
type BundlePolicy int

const (
	// BundlePolicyBalanced первая секция каждого типа медиа предлагается без bundle-only
	BundlePolicyBalanced BundlePolicy = iota
	// BundlePolicyMaxCompat ни одна секция не получает bundle-only
	BundlePolicyMaxCompat
	// BundlePolicyMaxBundle только первая секция предлагается без bundle-only
	BundlePolicyMaxBundle
)

func (p BundlePolicy) String() string {
	switch p {
	case BundlePolicyBalanced:
		return "balanced"
	case BundlePolicyMaxCompat:
		return "max-compat"
	case BundlePolicyMaxBundle:
		return "max-bundle"
	default:
		return fmt.Sprintf("BundlePolicy(%d)", int(p))
	}
}

// Config содержит конфигурацию сессии
type Config struct {
	// Name имя сессии для логов и ошибок
	Name string

	BundlePolicy BundlePolicy

	// ICE учетные данные; пустые значения генерируются случайно
	IceUfrag string
	IcePwd   string

	// IceOptions токены a=ice-options уровня сессии
	IceOptions []string
	IceLite    bool

	// Codecs таблица предпочтений; nil означает jsep_codec.DefaultCodecs()
	Codecs []*jsep_codec.Codec

	// URI заголовочных расширений RTP (a=extmap)
	AudioExtensions []string
	VideoExtensions []string

	Logger        *slog.Logger
	Metrics       *Metrics
	UUIDGenerator UUIDGenerator
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		Name:            "jsep",
		BundlePolicy:    BundlePolicyBalanced,
		IceOptions:      []string{"trickle"},
		AudioExtensions: []string{sdp.AudioLevelURI},
	}
}

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	if c.Name == "" {
		return NewJsepError(ErrorCodeInvalidConfig, "Name не может быть пустым")
	}

	switch c.BundlePolicy {
	case BundlePolicyBalanced, BundlePolicyMaxCompat, BundlePolicyMaxBundle:
	default:
		return NewJsepError(ErrorCodeInvalidConfig, "неизвестная политика bundle: %s", c.BundlePolicy)
	}

	if c.IceUfrag != "" && len(c.IceUfrag) < minIceUfragLength {
		return NewJsepError(ErrorCodeInvalidConfig,
			"IceUfrag должен содержать не меньше %d символов", minIceUfragLength)
	}
	if c.IcePwd != "" && len(c.IcePwd) < minIcePwdLength {
		return NewJsepError(ErrorCodeInvalidConfig,
			"IcePwd должен содержать не меньше %d символов", minIcePwdLength)
	}

	for _, codec := range c.Codecs {
		if codec == nil || codec.Params == nil {
			return NewJsepError(ErrorCodeInvalidConfig, "кодек без параметров в таблице Codecs")
		}
	}
	if err := jsep_codec.ValidatePayloadTypes(c.Codecs); err != nil {
		return WrapJsepError(ErrorCodeInvalidConfig, err, "неверная таблица кодеков")
	}

	return nil
}
