// Package crypto implements the protocol's cryptographic primitives
// layer: client key generation, fingerprinting, signing, and multi
// -recipient hybrid encryption. RSA-2048 keys, RSA-PSS-SHA256 signatures,
// RSA-OAEP-SHA256 key wrap, AES-256-GCM payload encryption.
package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"fmt"

	"olafchat/internal/protoerr"
)

const rsaKeyBits = 2048

// GenerateClientKey produces a fresh RSA-2048 key pair, public exponent
// 65537, for use as a client's long-term identity.
func GenerateClientKey() (*rsa.PrivateKey, error) {
	priv, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", protoerr.ErrBadKey, err)
	}
	return priv, nil
}

// Fingerprint returns the client's stable identifier: base64(SHA-256(DER
// SubjectPublicKeyInfo)).
func Fingerprint(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("%w: marshal SPKI: %v", protoerr.ErrBadKey, err)
	}
	sum := sha256.Sum256(der)
	return base64.StdEncoding.EncodeToString(sum[:]), nil
}

// EncodePublicKey returns the base64 DER SubjectPublicKeyInfo encoding
// used on the wire for a hello's public_key field and client_list entries.
func EncodePublicKey(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("%w: marshal SPKI: %v", protoerr.ErrBadKey, err)
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

// DecodePublicKey parses the base64 DER SubjectPublicKeyInfo form back
// into an RSA public key.
func DecodePublicKey(b64 string) (*rsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad base64: %v", protoerr.ErrBadKey, err)
	}
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: parse SPKI: %v", protoerr.ErrBadKey, err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an RSA key", protoerr.ErrBadKey)
	}
	return rsaPub, nil
}

// EncodePrivateKey/DecodePrivateKey round-trip a private key through PKCS8
// DER for storage in an identity store.
func EncodePrivateKey(priv *rsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal PKCS8: %v", protoerr.ErrBadKey, err)
	}
	return der, nil
}

func DecodePrivateKey(der []byte) (*rsa.PrivateKey, error) {
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: parse PKCS8: %v", protoerr.ErrBadKey, err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an RSA key", protoerr.ErrBadKey)
	}
	return rsaKey, nil
}
