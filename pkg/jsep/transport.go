package jsep

import (
	"github.com/arzzra/jsep_engine/pkg/jsep_sdp"
)

// DtlsRole роль DTLS рукопожатия
type DtlsRole int

const (
	DtlsRoleClient DtlsRole = iota
	DtlsRoleServer
)

func (r DtlsRole) String() string {
	if r == DtlsRoleServer {
		return "server"
	}
	return "client"
}

// IceTransport удаленные ICE параметры транспорта
type IceTransport struct {
	Ufrag      string
	Pwd        string
	Candidates []string
}

// DtlsTransport параметры DTLS транспорта
type DtlsTransport struct {
	Role         DtlsRole
	Fingerprints []jsep_sdp.Fingerprint
}

// Transport ICE/DTLS транспорт уровня медиа секции.
//
// Components равен 1 для RTP с rtcp-mux, 2 для RTP и RTCP, 0 для закрытого
// транспорта (отклоненная секция или секция, объединенная в чужой BUNDLE).
// Все секции одной группы BUNDLE ссылаются на один и тот же *Transport.
type Transport struct {
	ID         string
	Level      int
	Components int
	Ice        IceTransport
	Dtls       DtlsTransport
}

// Closed сообщает, что транспорт не используется
func (t *Transport) Closed() bool {
	return t.Components == 0
}

func (t *Transport) addRemoteCandidate(candidate string) bool {
	for _, existing := range t.Ice.Candidates {
		if existing == candidate {
			return false
		}
	}
	t.Ice.Candidates = append(t.Ice.Candidates, candidate)
	return true
}
