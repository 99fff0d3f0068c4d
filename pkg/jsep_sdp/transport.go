package jsep_sdp

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"
)

// ParseConnectionRole разбирает значение a=setup
func ParseConnectionRole(value string) (sdp.ConnectionRole, error) {
	switch strings.TrimSpace(value) {
	case sdp.ConnectionRoleActive.String():
		return sdp.ConnectionRoleActive, nil
	case sdp.ConnectionRolePassive.String():
		return sdp.ConnectionRolePassive, nil
	case sdp.ConnectionRoleActpass.String():
		return sdp.ConnectionRoleActpass, nil
	case sdp.ConnectionRoleHoldconn.String():
		return sdp.ConnectionRoleHoldconn, nil
	default:
		return 0, fmt.Errorf("%w: setup %q", ErrMalformedAttribute, value)
	}
}

// GetSetup читает a=setup секции (или сессии). ok=false если атрибута нет.
func GetSetup(doc *sdp.SessionDescription, md *sdp.MediaDescription) (role sdp.ConnectionRole, ok bool, err error) {
	value, found := SessionAttribute(doc, md, sdp.AttrKeyConnectionSetup)
	if !found {
		return 0, false, nil
	}
	role, err = ParseConnectionRole(value)
	if err != nil {
		return 0, true, err
	}
	return role, true, nil
}

// SetSetup записывает a=setup
func SetSetup(md *sdp.MediaDescription, role sdp.ConnectionRole) {
	SetMediaAttribute(md, sdp.AttrKeyConnectionSetup, role.String())
}

// Fingerprint DTLS отпечаток сертификата
type Fingerprint struct {
	Algorithm string
	Digest    []byte
}

// String формирует значение атрибута "<alg> AB:CD:..."
func (f Fingerprint) String() string {
	return f.Algorithm + " " + FormatDigest(f.Digest)
}

// FormatDigest форматирует байты как шестнадцатеричные пары через двоеточие
func FormatDigest(digest []byte) string {
	parts := make([]string, len(digest))
	for i, b := range digest {
		parts[i] = strings.ToUpper(hex.EncodeToString([]byte{b}))
	}
	return strings.Join(parts, ":")
}

// ParseFingerprint разбирает значение a=fingerprint
func ParseFingerprint(value string) (Fingerprint, error) {
	fields := strings.Fields(value)
	if len(fields) != 2 {
		return Fingerprint{}, fmt.Errorf("%w: fingerprint %q", ErrMalformedAttribute, value)
	}

	digest, err := hex.DecodeString(strings.ReplaceAll(fields[1], ":", ""))
	if err != nil || len(digest) == 0 {
		return Fingerprint{}, fmt.Errorf("%w: fingerprint digest %q", ErrMalformedAttribute, fields[1])
	}

	return Fingerprint{
		Algorithm: strings.ToLower(fields[0]),
		Digest:    digest,
	}, nil
}

// GetFingerprints возвращает отпечатки секции, либо уровня сессии если в секции их нет
func GetFingerprints(doc *sdp.SessionDescription, md *sdp.MediaDescription) ([]Fingerprint, error) {
	values := AttributeValues(md.Attributes, AttrKeyFingerprint)
	if len(values) == 0 && doc != nil {
		values = AttributeValues(doc.Attributes, AttrKeyFingerprint)
	}

	fingerprints := make([]Fingerprint, 0, len(values))
	for _, value := range values {
		fp, err := ParseFingerprint(value)
		if err != nil {
			return nil, err
		}
		fingerprints = append(fingerprints, fp)
	}
	return fingerprints, nil
}

// GetIceCredentials возвращает ufrag и pwd секции с откатом на уровень сессии
func GetIceCredentials(doc *sdp.SessionDescription, md *sdp.MediaDescription) (ufrag, pwd string) {
	ufrag, _ = SessionAttribute(doc, md, AttrKeyIceUfrag)
	pwd, _ = SessionAttribute(doc, md, AttrKeyIcePwd)
	return ufrag, pwd
}

// SetIceCredentials записывает a=ice-ufrag и a=ice-pwd в секцию
func SetIceCredentials(md *sdp.MediaDescription, ufrag, pwd string) {
	SetMediaAttribute(md, AttrKeyIceUfrag, ufrag)
	SetMediaAttribute(md, AttrKeyIcePwd, pwd)
}

// TrimCandidatePrefix убирает необязательный префикс "candidate:" или "a=candidate:"
func TrimCandidatePrefix(candidate string) string {
	candidate = strings.TrimSpace(candidate)
	candidate = strings.TrimPrefix(candidate, "a=")
	return strings.TrimPrefix(candidate, sdp.AttrKeyCandidate+":")
}

// Candidates возвращает значения a=candidate секции
func Candidates(md *sdp.MediaDescription) []string {
	return AttributeValues(md.Attributes, sdp.AttrKeyCandidate)
}

// AddCandidate добавляет a=candidate; повторное добавление того же кандидата игнорируется
func AddCandidate(md *sdp.MediaDescription, candidate string) bool {
	candidate = TrimCandidatePrefix(candidate)
	for _, existing := range Candidates(md) {
		if existing == candidate {
			return false
		}
	}
	md.Attributes = append(md.Attributes, sdp.NewAttribute(sdp.AttrKeyCandidate, candidate))
	return true
}

// HasEndOfCandidates проверяет наличие a=end-of-candidates
func HasEndOfCandidates(md *sdp.MediaDescription) bool {
	return HasAttribute(md.Attributes, sdp.AttrKeyEndOfCandidates)
}

// SetEndOfCandidates добавляет a=end-of-candidates
func SetEndOfCandidates(md *sdp.MediaDescription) {
	SetMediaFlag(md, sdp.AttrKeyEndOfCandidates)
}

// SetDefaultCandidate записывает порт m= строки и адрес c= строки
func SetDefaultCandidate(md *sdp.MediaDescription, addr string, port int) {
	SetPort(md, port)
	md.ConnectionInformation = &sdp.ConnectionInformation{
		NetworkType: "IN",
		AddressType: addressType(addr),
		Address:     &sdp.Address{Address: addr},
	}
}

// SetRtcpAddress записывает a=rtcp:<port> IN <IP4|IP6> <addr>
func SetRtcpAddress(md *sdp.MediaDescription, addr string, port int) {
	SetMediaAttribute(md, AttrKeyRtcp,
		fmt.Sprintf("%d IN %s %s", port, addressType(addr), addr))
}

// RtcpAddress возвращает порт и адрес из a=rtcp
func RtcpAddress(md *sdp.MediaDescription) (addr string, port int, ok bool) {
	value, found := md.Attribute(AttrKeyRtcp)
	if !found {
		return "", 0, false
	}
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return "", 0, false
	}
	port, err := strconv.Atoi(fields[0])
	if err != nil {
		return "", 0, false
	}
	if len(fields) >= 4 {
		addr = fields[3]
	}
	return addr, port, true
}

// DefaultAddress возвращает адрес из c= строки секции
func DefaultAddress(md *sdp.MediaDescription) string {
	if md.ConnectionInformation == nil || md.ConnectionInformation.Address == nil {
		return ""
	}
	return md.ConnectionInformation.Address.Address
}

func addressType(addr string) string {
	if strings.Contains(addr, ":") {
		return "IP6"
	}
	return "IP4"
}
