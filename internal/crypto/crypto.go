// Package crypto provides the authenticated encryption used to protect secret
// payloads at rest. A Service holds one symmetric key generated at startup and
// never written anywhere; secrets stored by a previous process cannot be
// decrypted after a restart.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/haukened/vanish/internal/domain"
)

// Algorithm names a supported AEAD construction.
type Algorithm string

const (
	AES256GCM         Algorithm = "aes-256-gcm"
	XChaCha20Poly1305 Algorithm = "xchacha20-poly1305"
)

// KeySize is the key length for every supported algorithm.
const KeySize = 32

var errUnknownAlgorithm = errors.New("unknown cipher algorithm")

// ParseAlgorithm resolves a case-insensitive algorithm name.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch a := Algorithm(strings.ToLower(strings.TrimSpace(s))); a {
	case AES256GCM, XChaCha20Poly1305:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", errUnknownAlgorithm, s)
}

// UnmarshalText lets config decoders populate an Algorithm directly.
func (a *Algorithm) UnmarshalText(b []byte) error {
	v, err := ParseAlgorithm(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Service seals and opens secret payloads. It is immutable after
// construction and safe for concurrent use.
type Service struct {
	alg   Algorithm
	aead  cipher.AEAD
	nonce io.Reader
}

// New generates a fresh random key and returns a Service for alg.
func New(alg Algorithm) (*Service, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return NewWithKey(alg, key)
}

// NewWithKey builds a Service around a caller-provided key.
func NewWithKey(alg Algorithm, key []byte) (*Service, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	var (
		aead cipher.AEAD
		err  error
	)
	switch alg {
	case AES256GCM:
		var block cipher.Block
		block, err = aes.NewCipher(key)
		if err == nil {
			aead, err = cipher.NewGCM(block)
		}
	case XChaCha20Poly1305:
		aead, err = chacha20poly1305.NewX(key)
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownAlgorithm, alg)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s: %w", alg, err)
	}
	return &Service{alg: alg, aead: aead, nonce: rand.Reader}, nil
}

// Algorithm reports the AEAD in use.
func (s *Service) Algorithm() Algorithm { return s.alg }

// NonceSize reports the nonce length produced by Encrypt.
func (s *Service) NonceSize() int { return s.aead.NonceSize() }

// Encrypt seals plaintext under a fresh random nonce with no associated data
// and returns the ciphertext and the nonce for storage. Plaintext that is not
// valid UTF-8 is refused with domain.ErrValidation, mirroring Decrypt.
func (s *Service) Encrypt(plaintext string) (ciphertext, nonce []byte, err error) {
	if !utf8.ValidString(plaintext) {
		return nil, nil, domain.Validation("encrypt", domain.ErrNotText)
	}
	nonce = make([]byte, s.aead.NonceSize())
	if _, err = io.ReadFull(s.nonce, nonce); err != nil {
		return nil, nil, fmt.Errorf("nonce: %w", err)
	}
	ciphertext = s.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return ciphertext, nonce, nil
}

// Decrypt opens a sealed payload. Structural problems (nonce length, short
// ciphertext) are reported as domain.ErrValidation, authentication failures
// and non-UTF-8 output as domain.ErrCrypto. Messages never identify which
// input was at fault.
func (s *Service) Decrypt(ciphertext, nonce []byte) (string, error) {
	if len(nonce) != s.aead.NonceSize() || len(ciphertext) < s.aead.Overhead() {
		return "", domain.Validation("decrypt", errMalformed)
	}
	pt, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", domain.Crypto("decrypt", nil)
	}
	if !utf8.Valid(pt) {
		return "", domain.Crypto("decrypt", errNotText)
	}
	return string(pt), nil
}

var (
	errMalformed = errors.New("malformed sealed payload")
	errNotText   = errors.New("payload is not text")
)
