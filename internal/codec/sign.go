package codec

import (
	"crypto/rsa"
	"encoding/json"

	"olafchat/internal/crypto"
)

// SignPayload canonicalizes data, signs it with priv under counter, and
// returns a ready-to-send envelope frame.
func SignPayload(priv *rsa.PrivateKey, data json.RawMessage, counter uint64) ([]byte, error) {
	canon, err := Canonicalize(data)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(priv, canon, counter)
	if err != nil {
		return nil, err
	}
	return EncodeEnvelope(canon, counter, sig)
}

// VerifyEnvelope recomputes the canonical form of env.Data and checks its
// signature under pub and counter. Returns protoerr.ErrBadSignature on
// mismatch, protoerr.ErrParse on malformed base64.
func VerifyEnvelope(pub *rsa.PublicKey, env *Envelope) error {
	canon, err := Canonicalize(env.Data)
	if err != nil {
		return err
	}
	sig, err := DecodeSignature(env)
	if err != nil {
		return err
	}
	return crypto.Verify(pub, canon, env.Counter, sig)
}
