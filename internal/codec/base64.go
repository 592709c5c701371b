package codec

import (
	"encoding/base64"
	"fmt"

	"olafchat/internal/protoerr"
)

func b64Encode(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func b64Decode(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: bad base64: %v", protoerr.ErrParse, err)
	}
	return b, nil
}

// DecodeSignature base64-decodes an envelope's signature field.
func DecodeSignature(env *Envelope) ([]byte, error) { return b64Decode(env.Signature) }
