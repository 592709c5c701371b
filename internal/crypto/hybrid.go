package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
	"io"

	"olafchat/internal/protoerr"
)

const (
	aesKeySize = 32 // AES-256
	ivSize     = 12 // 96-bit GCM nonce
)

// HybridCiphertext is the result of hybrid-encrypting a plaintext for N
// recipients: one shared IV and AEAD ciphertext, plus one OAEP-wrapped AES
// key per recipient, in the same order the recipient public keys were
// passed in.
type HybridCiphertext struct {
	IV          []byte
	Ciphertext  []byte
	WrappedKeys [][]byte
}

// HybridEncrypt generates a fresh AES-256 key and 96-bit IV, encrypts
// plaintext once under AES-256-GCM, and wraps the AES key independently
// under each recipient's RSA public key with OAEP-SHA256.
func HybridEncrypt(recipients []*rsa.PublicKey, plaintext []byte) (*HybridCiphertext, error) {
	if len(recipients) == 0 {
		return nil, fmt.Errorf("hybrid encrypt: no recipients")
	}

	key := make([]byte, aesKeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("hybrid encrypt: %w", err)
	}
	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("hybrid encrypt: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("hybrid encrypt: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, fmt.Errorf("hybrid encrypt: %w", err)
	}
	ciphertext := aead.Seal(nil, iv, plaintext, nil)

	wrapped := make([][]byte, len(recipients))
	for i, pub := range recipients {
		w, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, key, nil)
		if err != nil {
			return nil, fmt.Errorf("hybrid encrypt: wrap key for recipient %d: %w", i, err)
		}
		wrapped[i] = w
	}

	return &HybridCiphertext{IV: iv, Ciphertext: ciphertext, WrappedKeys: wrapped}, nil
}

// HybridDecrypt tries each wrapped key under priv and returns the
// plaintext from the first one that both unwraps and authenticates under
// AES-256-GCM. Returns protoerr.ErrCryptoFailure if none succeed.
func HybridDecrypt(priv *rsa.PrivateKey, iv, ciphertext []byte, wrappedKeys [][]byte) ([]byte, error) {
	if len(iv) != ivSize {
		return nil, protoerr.ErrCryptoFailure
	}

	for _, wrapped := range wrappedKeys {
		key, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, wrapped, nil)
		if err != nil {
			continue
		}
		if len(key) != aesKeySize {
			continue
		}
		block, err := aes.NewCipher(key)
		if err != nil {
			continue
		}
		aead, err := cipher.NewGCMWithNonceSize(block, ivSize)
		if err != nil {
			continue
		}
		plain, err := aead.Open(nil, iv, ciphertext, nil)
		if err != nil {
			continue
		}
		return plain, nil
	}
	return nil, protoerr.ErrCryptoFailure
}
