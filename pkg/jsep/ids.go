package jsep

import (
	"github.com/google/uuid"
	"github.com/pion/randutil"
)

// UUIDGenerator выдает идентификаторы для транспортов и удаленных потоков без msid.
// Передается в сессию через Config, тесты подставляют детерминированную реализацию.
type UUIDGenerator interface {
	Generate() (string, error)
}

// UUIDGeneratorFunc адаптер функции к UUIDGenerator
type UUIDGeneratorFunc func() (string, error)

// Generate реализует UUIDGenerator
func (f UUIDGeneratorFunc) Generate() (string, error) {
	return f()
}

type randomUUIDGenerator struct{}

func (randomUUIDGenerator) Generate() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return "{" + id.String() + "}", nil
}

// NewUUIDGenerator возвращает генератор случайных UUID (RFC 4122 v4)
func NewUUIDGenerator() UUIDGenerator {
	return randomUUIDGenerator{}
}

const (
	iceRunes = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	iceUfragLength = 8
	icePwdLength   = 32

	// минимальные длины RFC 8839
	minIceUfragLength = 4
	minIcePwdLength   = 22
)

func generateIceUfrag() (string, error) {
	return randutil.GenerateCryptoRandomString(iceUfragLength, iceRunes)
}

func generateIcePwd() (string, error) {
	return randutil.GenerateCryptoRandomString(icePwdLength, iceRunes)
}

// generateSessionID возвращает id для o= строки; старший бит сброшен, чтобы значение
// помещалось в знаковое 64-битное число
func generateSessionID() (uint64, error) {
	value, err := randutil.CryptoUint64()
	if err != nil {
		return 0, err
	}
	return value &^ (1 << 63), nil
}

func generateSsrc() (uint32, error) {
	value, err := randutil.CryptoUint64()
	if err != nil {
		return 0, err
	}
	return uint32(value), nil
}
