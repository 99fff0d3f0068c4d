package jsep

import (
	"crypto/x509"
	"encoding/hex"
	"strings"

	"github.com/pion/dtls/v2/pkg/crypto/fingerprint"

	"github.com/arzzra/jsep_engine/pkg/jsep_sdp"
)

// validateFingerprintAlgorithm проверяет алгоритм удаленного отпечатка по реестру pion/dtls
func validateFingerprintAlgorithm(algorithm string) error {
	if _, err := fingerprint.HashFromString(algorithm); err != nil {
		return WrapJsepError(ErrorCodeNegotiation, err,
			"неизвестный алгоритм DTLS отпечатка %q", algorithm)
	}
	return nil
}

// AddDtlsFingerprint добавляет отпечаток локального сертификата
func (s *Session) AddDtlsFingerprint(algorithm string, digest []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(digest) == 0 {
		return s.fail(NewJsepError(ErrorCodeInvalidArgument, "пустой DTLS отпечаток"))
	}
	if _, err := fingerprint.HashFromString(algorithm); err != nil {
		return s.fail(WrapJsepError(ErrorCodeInvalidArgument, err,
			"неизвестный алгоритм DTLS отпечатка %q", algorithm))
	}

	s.fingerprints = append(s.fingerprints, jsep_sdp.Fingerprint{
		Algorithm: strings.ToLower(algorithm),
		Digest:    append([]byte(nil), digest...),
	})
	return nil
}

// AddDtlsFingerprintsFromCertificate вычисляет отпечатки сертификата указанными
// алгоритмами; без алгоритмов используется sha-256
func (s *Session) AddDtlsFingerprintsFromCertificate(cert *x509.Certificate, algorithms ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cert == nil {
		return s.fail(NewJsepError(ErrorCodeInvalidArgument, "сертификат не может быть nil"))
	}
	if len(algorithms) == 0 {
		algorithms = []string{"sha-256"}
	}

	computed := make([]jsep_sdp.Fingerprint, 0, len(algorithms))
	for _, algorithm := range algorithms {
		hash, err := fingerprint.HashFromString(algorithm)
		if err != nil {
			return s.fail(WrapJsepError(ErrorCodeInvalidArgument, err,
				"неизвестный алгоритм DTLS отпечатка %q", algorithm))
		}

		value, err := fingerprint.Fingerprint(cert, hash)
		if err != nil {
			return s.fail(WrapJsepError(ErrorCodeInvalidArgument, err,
				"не удалось вычислить отпечаток %s", algorithm))
		}

		digest, err := hex.DecodeString(strings.ReplaceAll(value, ":", ""))
		if err != nil {
			return s.fail(WrapJsepError(ErrorCodeInvalidArgument, err,
				"неверный отпечаток %s", algorithm))
		}

		computed = append(computed, jsep_sdp.Fingerprint{
			Algorithm: strings.ToLower(algorithm),
			Digest:    digest,
		})
	}

	s.fingerprints = append(s.fingerprints, computed...)
	return nil
}

// DtlsFingerprints возвращает локальные отпечатки
func (s *Session) DtlsFingerprints() []jsep_sdp.Fingerprint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]jsep_sdp.Fingerprint(nil), s.fingerprints...)
}
