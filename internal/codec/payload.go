package codec

import (
	"encoding/json"
	"fmt"

	"olafchat/internal/protoerr"
)

// Hello is a client's first message to its home server.
type Hello struct {
	Type      string `json:"type"`
	PublicKey string `json:"public_key"`
}

// ServerHello is a server's first message to a peer server.
type ServerHello struct {
	Type   string `json:"type"`
	Sender string `json:"sender"`
}

// PublicChat is a broadcast text message.
type PublicChat struct {
	Type    string `json:"type"`
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

// Chat is a private message to N recipients across possibly multiple
// home servers. IV, SymmKeys and Chat (the ciphertext) are base64.
type Chat struct {
	Type               string   `json:"type"`
	DestinationServers []string `json:"destination_servers"`
	IV                 string   `json:"iv"`
	SymmKeys           []string `json:"symm_keys"`
	CipherChat         string   `json:"chat"`
}

// ChatPlaintext is the decrypted inner object carried by a Chat payload.
// Participants[0] is the sender's fingerprint.
type ChatPlaintext struct {
	Participants []string `json:"participants"`
	Message      string   `json:"message"`
}

// ClientListRequest carries no payload; unsigned.
type ClientListRequest struct {
	Type string `json:"type"`
}

// ClientListServer is one server's advertised client set: base64 DER
// SubjectPublicKeyInfo entries.
type ClientListServer struct {
	Address string   `json:"address"`
	Clients []string `json:"clients"`
}

// ClientList is the server's directory response; unsigned.
type ClientList struct {
	Type    string             `json:"type"`
	Servers []ClientListServer `json:"servers"`
}

func marshalPayload(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	canon, err := Canonicalize(b)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(canon), nil
}

// EncodeHello canonicalizes a hello payload.
func EncodeHello(publicKeyB64 string) (json.RawMessage, error) {
	return marshalPayload(Hello{Type: PayloadHello, PublicKey: publicKeyB64})
}

// EncodeServerHello canonicalizes a server_hello payload.
func EncodeServerHello(sender string) (json.RawMessage, error) {
	return marshalPayload(ServerHello{Type: PayloadServerHello, Sender: sender})
}

// EncodePublicChat canonicalizes a public_chat payload.
func EncodePublicChat(sender, message string) (json.RawMessage, error) {
	return marshalPayload(PublicChat{Type: PayloadPublicChat, Sender: sender, Message: message})
}

// EncodeChat canonicalizes a chat payload.
func EncodeChat(destServers []string, ivB64 string, symmKeysB64 []string, chatB64 string) (json.RawMessage, error) {
	return marshalPayload(Chat{
		Type:               PayloadChat,
		DestinationServers: destServers,
		IV:                 ivB64,
		SymmKeys:           symmKeysB64,
		CipherChat:         chatB64,
	})
}

// EncodeClientListRequest marshals the unsigned client_list_request frame.
func EncodeClientListRequest() ([]byte, error) {
	b, err := json.Marshal(ClientListRequest{Type: TypeClientListRequest})
	if err != nil {
		return nil, fmt.Errorf("encode client_list_request: %w", err)
	}
	return b, nil
}

// EncodeClientList marshals the unsigned client_list frame.
func EncodeClientList(servers []ClientListServer) ([]byte, error) {
	b, err := json.Marshal(ClientList{Type: TypeClientList, Servers: servers})
	if err != nil {
		return nil, fmt.Errorf("encode client_list: %w", err)
	}
	return b, nil
}

// DecodePayloadType reads a payload's "type" discriminator out of an
// envelope's raw data bytes.
func DecodePayloadType(data json.RawMessage) (string, error) {
	var h frameHeader
	if err := json.Unmarshal(data, &h); err != nil {
		return "", fmt.Errorf("%w: %v", protoerr.ErrParse, err)
	}
	if h.Type == "" {
		return "", fmt.Errorf("%w: missing payload type", protoerr.ErrParse)
	}
	return h.Type, nil
}

// DecodeHello parses a hello payload, rejecting missing required fields.
func DecodeHello(data json.RawMessage) (*Hello, error) {
	var h Hello
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("%w: %v", protoerr.ErrParse, err)
	}
	if h.PublicKey == "" {
		return nil, fmt.Errorf("%w: missing public_key", protoerr.ErrParse)
	}
	return &h, nil
}

// DecodeServerHello parses a server_hello payload.
func DecodeServerHello(data json.RawMessage) (*ServerHello, error) {
	var h ServerHello
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("%w: %v", protoerr.ErrParse, err)
	}
	if h.Sender == "" {
		return nil, fmt.Errorf("%w: missing sender", protoerr.ErrParse)
	}
	return &h, nil
}

// DecodePublicChat parses a public_chat payload.
func DecodePublicChat(data json.RawMessage) (*PublicChat, error) {
	var p PublicChat
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", protoerr.ErrParse, err)
	}
	if p.Sender == "" {
		return nil, fmt.Errorf("%w: missing sender", protoerr.ErrParse)
	}
	return &p, nil
}

// DecodeChat parses a chat payload, requiring all fields present.
func DecodeChat(data json.RawMessage) (*Chat, error) {
	var c Chat
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", protoerr.ErrParse, err)
	}
	if len(c.DestinationServers) == 0 || c.IV == "" || len(c.SymmKeys) == 0 || c.CipherChat == "" {
		return nil, fmt.Errorf("%w: missing chat field", protoerr.ErrParse)
	}
	return &c, nil
}

// DecodeChatPlaintext parses the decrypted inner chat object.
func DecodeChatPlaintext(plain []byte) (*ChatPlaintext, error) {
	var cp ChatPlaintext
	if err := json.Unmarshal(plain, &cp); err != nil {
		return nil, fmt.Errorf("%w: %v", protoerr.ErrParse, err)
	}
	if len(cp.Participants) == 0 {
		return nil, fmt.Errorf("%w: missing participants", protoerr.ErrParse)
	}
	return &cp, nil
}

// DecodeClientListRequest parses an (unsigned) client_list_request frame.
func DecodeClientListRequest(raw []byte) (*ClientListRequest, error) {
	var r ClientListRequest
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", protoerr.ErrParse, err)
	}
	return &r, nil
}

// DecodeClientList parses an (unsigned) client_list frame.
func DecodeClientList(raw []byte) (*ClientList, error) {
	var l ClientList
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, fmt.Errorf("%w: %v", protoerr.ErrParse, err)
	}
	return &l, nil
}
