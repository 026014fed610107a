package encryption

import (
	"bytes"
	"fmt"
	"io"

	"snapkeep/internal/snap"
)

// testHeader marks payloads "encrypted" by TestEncryptor.
var testHeader = []byte("SNAPENC\x00")

// TestEncryptor is a deterministic stand-in for AgeEncryptor in tests.
// It prepends a fixed 8-byte header on Encrypt and strips it on Decrypt,
// so archives written with it differ from plaintext archives without any
// key material. Unlock fails for any passphrase other than the one given
// to Setup, which lets tests exercise the wrong-passphrase path.
type TestEncryptor struct {
	passphrase  string
	setupCalled bool
	encrypted   int
}

var _ snap.Encryptor = (*TestEncryptor)(nil)

// NewTestEncryptor creates a new TestEncryptor.
func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{}
}

func (e *TestEncryptor) Setup(passphrase string) error {
	e.setupCalled = true
	e.passphrase = passphrase
	return nil
}

func (e *TestEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write(testHeader); err != nil {
		return fmt.Errorf("writing test header: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	e.encrypted++
	return nil
}

// Encrypted returns how many payloads Encrypt has processed.
func (e *TestEncryptor) Encrypted() int {
	return e.encrypted
}

func (e *TestEncryptor) Unlock(passphrase string) (snap.DecryptionContext, error) {
	if e.setupCalled && passphrase != e.passphrase {
		return nil, fmt.Errorf("decrypting private key: incorrect passphrase")
	}
	return &TestDecryptionContext{}, nil
}

func (e *TestEncryptor) IsConfigured() bool {
	return true
}

// TestDecryptionContext strips the test header added by TestEncryptor.
type TestDecryptionContext struct{}

var _ snap.DecryptionContext = (*TestDecryptionContext)(nil)

func (c *TestDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	header := make([]byte, len(testHeader))
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("reading test header: %w", err)
	}
	if !bytes.Equal(header, testHeader) {
		return fmt.Errorf("invalid test encryption header")
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}
