package adaptive

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// CipherType names an AEAD algorithm.
type CipherType string

const (
	CipherAESGCM   CipherType = "aes-gcm"
	CipherChaCha20 CipherType = "chacha20-poly1305"
)

var (
	ErrUnknownCipher      = errors.New("adaptive: unknown cipher")
	ErrInvalidKey         = errors.New("adaptive: invalid key size")
	ErrCiphertextTooShort = errors.New("adaptive: ciphertext too short")
	// ErrCipherMismatch means the data was sealed with another algorithm.
	ErrCipherMismatch = errors.New("adaptive: sealed with a different cipher")
	// ErrDecrypt hides the reason authentication failed.
	ErrDecrypt = errors.New("adaptive: message authentication failed")
)

// ParseCipherType accepts the configuration spellings of an algorithm.
// The empty string selects Preferred.
func ParseCipherType(s string) (CipherType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return Preferred(), nil
	case "aes-gcm", "aes256-gcm", "aes":
		return CipherAESGCM, nil
	case "chacha20-poly1305", "chacha20", "chacha":
		return CipherChaCha20, nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnknownCipher, s)
	}
}

// Preferred returns AES-GCM where Go's AES uses hardware instructions and
// ChaCha20-Poly1305 elsewhere.
func Preferred() CipherType {
	switch runtime.GOARCH {
	case "amd64", "arm64", "s390x", "ppc64le":
		return CipherAESGCM
	default:
		return CipherChaCha20
	}
}

// Cipher seals and opens byte slices. Sealed output is
// [tag:1][nonce][ciphertext+tag] and carries everything Decrypt needs
// besides the key and the additional data.
type Cipher interface {
	Type() CipherType
	Encrypt(plaintext, additionalData []byte) ([]byte, error)
	Decrypt(sealed, additionalData []byte) ([]byte, error)
	NonceSize() int
	// Overhead is the number of bytes Encrypt adds to a plaintext.
	Overhead() int
}

// New creates a cipher of the Preferred type.
func New(key []byte) (Cipher, error) {
	return NewWithType(key, Preferred())
}

// NewWithType creates a cipher of the given type. On-disk data must use
// an explicit type so that another host can open it.
func NewWithType(key []byte, t CipherType) (Cipher, error) {
	switch t {
	case CipherAESGCM:
		return NewAESGCM(key)
	case CipherChaCha20:
		return NewChaCha20(key)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownCipher, t)
	}
}
