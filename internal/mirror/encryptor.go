package mirror

import (
	"errors"
	"io"
)

// ErrKeysExist is returned by Setup when a key pair is already configured.
var ErrKeysExist = errors.New("encryption keys already exist")

// Encryptor protects archives pushed to a vault.
// Encryption needs only the public key; decryption needs the passphrase that
// unlocks the private key.
type Encryptor interface {
	// Setup generates a key pair, writes the public key in plaintext and the
	// private key encrypted with passphrase. It never replaces existing keys.
	Setup(passphrase string) error

	// Encrypt returns a writer that encrypts everything written to it into w.
	// The ciphertext is only complete once the writer is closed.
	Encrypt(w io.Writer) (io.WriteCloser, error)

	// Unlock decrypts the private key and returns a DecryptionContext.
	// Returns an error if the passphrase is incorrect.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured returns true if both key files exist.
	IsConfigured() bool
}

// DecryptionContext holds an unlocked private key in memory for one session.
type DecryptionContext interface {
	// Decrypt returns a reader of the plaintext of the ciphertext in r.
	Decrypt(r io.Reader) (io.Reader, error)
}
