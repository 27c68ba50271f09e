package archive

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

// Key derivation parameters. Changing any of these breaks decryption of
// existing archives; the format version must move with them.
const (
	// MinPassphraseLength is the shortest accepted passphrase.
	MinPassphraseLength = 8

	saltLength = 16
	keyLength  = 32

	argon2Time    = 3
	argon2Memory  = 64 * 1024
	argon2Threads = 4

	// bodyKeyInfo labels the HKDF expansion of the body cipher key.
	bodyKeyInfo = "tabvault/archive/body/v1"
)

// newSalt returns a fresh random KDF salt.
func newSalt() ([]byte, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("archive: generate salt: %w", err)
	}
	return salt, nil
}

// deriveBodyKey derives the body cipher key from a passphrase and salt:
// argon2id stretches the passphrase into a master key, HKDF expands the
// master into the purpose-labeled body key.
func deriveBodyKey(passphrase, salt []byte) ([]byte, error) {
	master := argon2.IDKey(passphrase, salt, argon2Time, argon2Memory, argon2Threads, keyLength)
	defer zero(master)

	reader := hkdf.New(sha256.New, master, nil, []byte(bodyKeyInfo))
	key := make([]byte, keyLength)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("archive: derive body key: %w", err)
	}
	return key, nil
}

// zero wipes key material.
func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
