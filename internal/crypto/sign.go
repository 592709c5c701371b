package crypto

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"strconv"

	"fmt"

	"olafchat/internal/protoerr"
)

// signingInput builds canonicalData ∥ ascii_decimal(counter), the exact
// quantity hashed and signed per spec.
func signingInput(canonicalData []byte, counter uint64) []byte {
	suffix := strconv.FormatUint(counter, 10)
	buf := make([]byte, 0, len(canonicalData)+len(suffix))
	buf = append(buf, canonicalData...)
	buf = append(buf, suffix...)
	return buf
}

// Sign computes the RSA-PSS-SHA256 signature over SHA-256(canonicalData ∥
// ascii_decimal(counter)).
func Sign(priv *rsa.PrivateKey, canonicalData []byte, counter uint64) ([]byte, error) {
	digest := sha256.Sum256(signingInput(canonicalData, counter))
	sig, err := rsa.SignPSS(rand.Reader, priv, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
		Hash:       crypto.SHA256,
	})
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	return sig, nil
}

// Verify checks an RSA-PSS-SHA256 signature over SHA-256(canonicalData ∥
// ascii_decimal(counter)) under pub. Returns protoerr.ErrBadSignature on
// mismatch.
func Verify(pub *rsa.PublicKey, canonicalData []byte, counter uint64, sig []byte) error {
	digest := sha256.Sum256(signingInput(canonicalData, counter))
	err := rsa.VerifyPSS(pub, crypto.SHA256, digest[:], sig, &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
		Hash:       crypto.SHA256,
	})
	if err != nil {
		return protoerr.ErrBadSignature
	}
	return nil
}
