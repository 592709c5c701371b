// Package codec implements the envelope/payload wire format: canonical
// serialization, signing-input construction, and decode validation
// (§4.2). Decoding never mutates a received frame's "data" bytes —
// callers that forward an envelope re-emit the exact bytes they received.
package codec

import (
	"encoding/json"
	"fmt"

	"olafchat/internal/protoerr"
)

// Top-level frame types.
const (
	TypeSignedData         = "signed_data"
	TypeClientListRequest  = "client_list_request"
	TypeClientList         = "client_list"
)

// Payload ("data") types.
const (
	PayloadHello       = "hello"
	PayloadServerHello = "server_hello"
	PayloadPublicChat  = "public_chat"
	PayloadChat        = "chat"
)

// Envelope is the signed_data wrapper. Data retains the exact bytes
// received on the wire so a forwarder can re-emit them byte-for-byte.
type Envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Counter   uint64          `json:"counter"`
	Signature string          `json:"signature"`
}

// frameHeader is used only to read the discriminating "type" field before
// deciding how to decode the rest of the frame.
type frameHeader struct {
	Type string `json:"type"`
}

// PeekType reads a frame's top-level "type" field without validating the
// rest of the structure.
func PeekType(raw []byte) (string, error) {
	var h frameHeader
	if err := json.Unmarshal(raw, &h); err != nil {
		return "", fmt.Errorf("%w: %v", protoerr.ErrParse, err)
	}
	if h.Type == "" {
		return "", fmt.Errorf("%w: missing type", protoerr.ErrParse)
	}
	return h.Type, nil
}

// DecodeEnvelope parses a signed_data frame, rejecting malformed base64,
// missing fields, and counters out of range (uint64 parse failure is
// rejected by json.Unmarshal itself).
func DecodeEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", protoerr.ErrParse, err)
	}
	if env.Type != TypeSignedData {
		return nil, fmt.Errorf("%w: expected signed_data, got %q", protoerr.ErrUnknownType, env.Type)
	}
	if len(env.Data) == 0 {
		return nil, fmt.Errorf("%w: missing data", protoerr.ErrParse)
	}
	if env.Signature == "" {
		return nil, fmt.Errorf("%w: missing signature", protoerr.ErrParse)
	}
	if _, err := b64Decode(env.Signature); err != nil {
		return nil, err
	}
	return &env, nil
}

// EncodeEnvelope builds the wire bytes for a signed_data frame. canonData
// is the already-canonicalized payload bytes (the same bytes that were
// signed over).
func EncodeEnvelope(canonData []byte, counter uint64, signature []byte) ([]byte, error) {
	env := struct {
		Type      string          `json:"type"`
		Data      json.RawMessage `json:"data"`
		Counter   uint64          `json:"counter"`
		Signature string          `json:"signature"`
	}{
		Type:      TypeSignedData,
		Data:      json.RawMessage(canonData),
		Counter:   counter,
		Signature: b64Encode(signature),
	}
	out, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return out, nil
}
