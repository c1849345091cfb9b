package drive

import "io"

// Encryptor handles client-side encryption of uploads.
//
// Encryption uses the public key only. Decryption requires a passphrase to
// unlock the private key, producing a DecryptionContext for the session.
type Encryptor interface {
	// Setup generates a key pair, stores the public key in plaintext and the
	// private key encrypted with passphrase. Called by `drive keys init`.
	Setup(passphrase string) error

	// Encrypt encrypts data read from r and writes ciphertext to w.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock decrypts the private key using the passphrase.
	// Returns an error if the passphrase is incorrect.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured reports whether both key files exist.
	IsConfigured() bool

	// IsEncrypted reports whether content starting with prefix was produced
	// by Encrypt.
	IsEncrypted(prefix []byte) bool

	// Suffix is appended to the names of encrypted uploads.
	Suffix() string
}

// DecryptionContext holds an unlocked private key in memory. The key is
// never written to disk.
type DecryptionContext interface {
	// Decrypt decrypts data read from r and writes plaintext to w.
	Decrypt(r io.Reader, w io.Writer) error
}
