// Package crypto seals OAuth credentials at rest with XChaCha20-Poly1305 under
// per-authorization keys derived from a master key via HKDF-SHA256.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// KeyLen is the master key length in bytes.
const KeyLen = chacha20poly1305.KeySize

// sealedPrefix marks column values written by Seal; other values are legacy plaintext.
const sealedPrefix = "sk1:"

var (
	ErrKeyLength = errors.New("credential key must be 32 bytes")
	ErrMalformed = errors.New("malformed sealed value")
)

// Sealer encrypts credential columns bound to an authorization UUID and column name.
type Sealer struct {
	master []byte
}

// NewSealer returns a Sealer for a 32-byte master key.
func NewSealer(master []byte) (*Sealer, error) {
	if len(master) != KeyLen {
		return nil, ErrKeyLength
	}
	return &Sealer{master: append([]byte(nil), master...)}, nil
}

// ParseKey decodes a base64 (standard or URL alphabet) master key.
func ParseKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(s); err == nil {
			if len(b) != KeyLen {
				return nil, ErrKeyLength
			}
			return b, nil
		}
	}
	return nil, fmt.Errorf("credential key is not base64")
}

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// deriveKey derives the key of one authorization via HKDF-SHA256 using uuid as info.
func (s *Sealer) deriveKey(uuid string) ([]byte, error) {
	r := hkdf.New(sha256.New, s.master, nil, []byte(uuid))
	key := make([]byte, KeyLen)
	_, err := r.Read(key)
	return key, err
}

func aad(uuid, column string) []byte {
	out := make([]byte, 0, len(uuid)+1+len(column))
	out = append(out, uuid...)
	out = append(out, 0)
	return append(out, column...)
}

// Seal encrypts plaintext for (uuid, column). Empty values stay empty.
func (s *Sealer) Seal(uuid, column, plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	key, err := s.deriveKey(uuid)
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", err
	}
	nonce, err := RandBytes(chacha20poly1305.NonceSizeX)
	if err != nil {
		return "", err
	}
	out := make([]byte, 0, len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, []byte(plaintext), aad(uuid, column))
	return sealedPrefix + base64.RawURLEncoding.EncodeToString(out), nil
}

// Open reverses Seal. Values without the sealed prefix are returned unchanged so
// rows written before sealing was enabled stay readable.
func (s *Sealer) Open(uuid, column, value string) (string, error) {
	if !strings.HasPrefix(value, sealedPrefix) {
		return value, nil
	}
	blob, err := base64.RawURLEncoding.DecodeString(value[len(sealedPrefix):])
	if err != nil || len(blob) < chacha20poly1305.NonceSizeX {
		return "", ErrMalformed
	}
	key, err := s.deriveKey(uuid)
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", err
	}
	nonce, ct := blob[:chacha20poly1305.NonceSizeX], blob[chacha20poly1305.NonceSizeX:]
	pt, err := aead.Open(nil, nonce, ct, aad(uuid, column))
	if err != nil {
		return "", fmt.Errorf("open %s: %w", column, err)
	}
	return string(pt), nil
}
