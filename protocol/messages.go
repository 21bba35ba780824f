package protocol

import (
	"encoding/json"
	"io"
)

// MessageKind tells receivers how to interpret an Envelope payload.
type MessageKind string

const (
	// KindMaskExchange carries an Aggregator's mask half to its peer.
	KindMaskExchange MessageKind = "mask-exchange"
	// KindOffset carries one combined-mask entry to a Member.
	KindOffset MessageKind = "offset"
	// KindReport carries a Member's blinded value to its Aggregator.
	KindReport MessageKind = "report"
)

// Envelope is the message exchanged between nodes.
// Payload is wire-codec text (see EncodeVector).
type Envelope struct {
	Kind    MessageKind `json:"kind"`
	Round   int         `json:"round"`
	Channel string      `json:"channel"`
	From    NodeID      `json:"from"`
	Member  MemberID    `json:"member,omitempty"`

	// MaskRound is the round whose offset a report was blinded with.
	// It differs from Round only in collect-only rounds.
	MaskRound int `json:"mask_round,omitempty"`

	Payload string `json:"payload"`
}

// MarshalEnvelope serializes an envelope for the transport.
func MarshalEnvelope(e *Envelope) ([]byte, error) {
	return SerializeMessage(e)
}

// UnmarshalEnvelope parses a payload received from the transport.
// Malformed JSON and unknown kinds are reported as *FormatError.
func UnmarshalEnvelope(data []byte) (*Envelope, error) {
	e, err := UnmarshalMessage[Envelope](data)
	if err != nil {
		return nil, &FormatError{Payload: string(data), Reason: "malformed envelope: " + err.Error()}
	}
	switch e.Kind {
	case KindMaskExchange, KindOffset, KindReport:
	default:
		return nil, &FormatError{Payload: string(data), Reason: "unknown message kind " + string(e.Kind)}
	}
	return e, nil
}

// UnmarshalMessage deserializes a message from JSON.
func UnmarshalMessage[T any](data []byte) (*T, error) {
	var msg T
	err := json.Unmarshal(data, &msg)
	return &msg, err
}

// DecodeMessage deserializes a message from a JSON reader.
func DecodeMessage[T any](reader io.Reader) (*T, error) {
	var msg T
	err := json.NewDecoder(reader).Decode(&msg)
	return &msg, err
}

// SerializeMessage serializes a message to JSON.
func SerializeMessage[T any](msg *T) ([]byte, error) {
	return json.Marshal(msg)
}
