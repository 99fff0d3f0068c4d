// Package jsep_signaling передает описания и кандидаты между двумя сессиями
// jsep по WebSocket. Движок не выполняет сетевых операций; обмен описаниями
// полностью на стороне вызывающего кода, и этот пакет один из вариантов такого обмена.
package jsep_signaling

// MessageType вид сообщения сигнализации
type MessageType string

const (
	MsgTypeOffer           MessageType = "offer"
	MsgTypeAnswer          MessageType = "answer"
	MsgTypeCandidate       MessageType = "candidate"
	MsgTypeEndOfCandidates MessageType = "end-of-candidates"
	MsgTypeRollback        MessageType = "rollback"
)

// Message JSON структура, передаваемая по WebSocket
type Message struct {
	Type      MessageType `json:"type"`
	SDP       string      `json:"sdp,omitempty"`
	Candidate string      `json:"candidate,omitempty"`
	Mid       string      `json:"mid,omitempty"`
	Level     int         `json:"level"`
}
