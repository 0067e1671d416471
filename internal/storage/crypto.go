package storage

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Argon2id parameters for deriving the sealing key from the configured
// secret. A fresh salt per seal keeps identical payloads distinguishable.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	saltSize     = 16
)

// secretBox seals small payloads with XChaCha20-Poly1305 under a key derived
// from the configured secret.
type secretBox struct {
	secret []byte
}

func newSecretBox(secret string) *secretBox {
	return &secretBox{secret: []byte(secret)}
}

func (b *secretBox) key(salt []byte) []byte {
	return argon2.IDKey(b.secret, salt, argonTime, argonMemory, argonThreads, chacha20poly1305.KeySize)
}

// seal returns base64(salt || nonce || ciphertext).
func (b *secretBox) seal(plain []byte) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	aead, err := chacha20poly1305.NewX(b.key(salt))
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	out := append(salt, nonce...)
	out = aead.Seal(out, nonce, plain, nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

func (b *secretBox) open(sealed string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("decoding sealed payload: %w", err)
	}
	if len(raw) < saltSize+chacha20poly1305.NonceSizeX {
		return nil, errors.New("sealed payload too short")
	}

	salt := raw[:saltSize]
	nonce := raw[saltSize : saltSize+chacha20poly1305.NonceSizeX]
	ciphertext := raw[saltSize+chacha20poly1305.NonceSizeX:]

	aead, err := chacha20poly1305.NewX(b.key(salt))
	if err != nil {
		return nil, err
	}
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.New("sealed payload authentication failed")
	}
	return plain, nil
}
