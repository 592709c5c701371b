package client

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"olafchat/internal/codec"
)

// marshalChatPlaintext builds the inner object a chat's ciphertext
// wraps: participants (sender first) and the plaintext message.
func marshalChatPlaintext(participants []string, message string) ([]byte, error) {
	b, err := json.Marshal(codec.ChatPlaintext{Participants: participants, Message: message})
	if err != nil {
		return nil, fmt.Errorf("marshal chat plaintext: %w", err)
	}
	return b, nil
}

func b64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func b64Decode(s string) ([]byte, error) { return base64.StdEncoding.DecodeString(s) }
