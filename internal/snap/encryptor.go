package snap

import "io"

// Encryptor protects archive payload entries (tree document, diff, detailed diff).
// Encrypting only needs the public key, so scans can run unattended; a locked
// scan diffs against the previous archive's plaintext file index and records no
// line diffs. Reading an encrypted archive back needs the passphrase-protected
// private key.
type Encryptor interface {
	// Setup generates a key pair, writes the public key in plaintext and the
	// private key encrypted with passphrase. Called by `snapkeep keys init`.
	Setup(passphrase string) error

	// Encrypt reads plaintext from r and writes ciphertext to w.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock decrypts the private key and returns a DecryptionContext for the
	// rest of the session. A wrong passphrase is an error.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured returns true if both key files exist.
	IsConfigured() bool
}

// DecryptionContext holds an unlocked private key in memory only.
type DecryptionContext interface {
	// Decrypt reads ciphertext from r and writes plaintext to w.
	Decrypt(r io.Reader, w io.Writer) error
}
