// Package adaptive provides authenticated encryption with automatic
// algorithm selection.
//
// New picks AES-256-GCM on architectures with hardware AES support and
// falls back to ChaCha20-Poly1305 elsewhere. Both run through the same
// AEAD shape: the nonce is generated per call and prepended to the
// ciphertext, and callers may bind additional data that must match on
// decryption.
//
// Usage:
//
//	cipher, err := adaptive.New(key)
//	sealed, err := cipher.Encrypt(plaintext, aad)
//	opened, err := cipher.Decrypt(sealed, aad)
package adaptive
