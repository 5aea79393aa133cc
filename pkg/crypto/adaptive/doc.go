// Package adaptive provides the AEAD ciphers that seal SightingDB's WAL
// payloads and snapshot bodies.
//
// Two algorithms are supported: AES-GCM, preferred where the CPU has AES
// instructions, and ChaCha20-Poly1305 otherwise. Sealed data starts with
// a one-byte algorithm tag, so opening data with the wrong algorithm fails
// with ErrCipherMismatch rather than a bare authentication error.
//
//	c, err := adaptive.NewWithType(key, adaptive.CipherAESGCM)
//	sealed, err := c.Encrypt(plaintext, aad)
//	plain, err := c.Decrypt(sealed, aad)
package adaptive
