package testutil

import (
	"drive-go/internal/drive"
	"drive-go/internal/encryption"
)

// NewTestEncryptor creates a new test encryptor for testing.
func NewTestEncryptor() drive.Encryptor {
	return encryption.NewTestEncryptor()
}
