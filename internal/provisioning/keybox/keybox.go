// Package keybox encrypts API key plaintext while it waits on a provisioning
// job for delivery. Sealed values are base64url strings safe for a text column.
package keybox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keyInfo   = "mijn-api/api-key-seal/v1"
	nonceSize = 24
)

var (
	ErrMissingSecret = errors.New("key_seal_secret_missing")
	ErrCorrupt       = errors.New("sealed_key_corrupt")
)

type Box struct {
	key [32]byte
}

func New(secret []byte) (*Box, error) {
	if len(secret) == 0 {
		return nil, ErrMissingSecret
	}
	b := &Box{}
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(keyInfo)), b.key[:]); err != nil {
		return nil, err
	}
	return b, nil
}

// Seal returns nonce||ciphertext, base64url encoded.
func (b *Box) Seal(plain string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", err
	}
	sealed := secretbox.Seal(nonce[:], []byte(plain), &nonce, &b.key)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (b *Box) Open(sealed string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil || len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrCorrupt
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &b.key)
	if !ok {
		return "", ErrCorrupt
	}
	return string(plain), nil
}
