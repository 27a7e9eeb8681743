package keyring

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"github.com/guided-traffic/envelope-keyring/pkg/materials"
	"github.com/guided-traffic/envelope-keyring/pkg/suite"
)

// RawAESKeyring wraps data keys under a pre-shared 256-bit key with AES-GCM.
// The wrapping nonce is prepended to the ciphertext, so every wrap of the
// same data key produces a different EncryptedDataKey.
type RawAESKeyring struct {
	providerID string
	keyName    string
	aead       cipher.AEAD
}

// NewRawAESKeyring builds a raw AES keyring from a 32-byte key-encryption
// key.
func NewRawAESKeyring(providerID, keyName string, kek []byte) (*RawAESKeyring, error) {
	if providerID == "" {
		return nil, fmt.Errorf("%w: provider id must not be empty", ErrConfiguration)
	}
	if len(kek) != 32 {
		return nil, fmt.Errorf("%w: AES-256 key-encryption key must be exactly 32 bytes, got %d", ErrConfiguration, len(kek))
	}

	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	return &RawAESKeyring{providerID: providerID, keyName: keyName, aead: aead}, nil
}

// ProviderID returns the provider namespace this keyring tags its wrapped
// keys with.
func (k *RawAESKeyring) ProviderID() string {
	return k.providerID
}

// OnEncrypt generates the data key if absent and appends one AES-GCM wrapped
// copy.
func (k *RawAESKeyring) OnEncrypt(_ context.Context, mat *materials.EncryptionMaterials) error {
	props, err := suite.ForID(mat.Algorithm())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	if !mat.HasDataKey() {
		key := make([]byte, props.DataKeyLen)
		if _, err := rand.Read(key); err != nil {
			return fmt.Errorf("%w: %v", ErrRandomSource, err)
		}
		if err := mat.SetDataKey(key); err != nil {
			return fmt.Errorf("%w: %v", ErrInvariantViolation, err)
		}
	}

	nonce := make([]byte, k.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("%w: %v", ErrRandomSource, err)
	}

	ciphertext := k.aead.Seal(nonce, nonce, mat.DataKey(), []byte(k.keyName))
	mat.AddEncryptedDataKey(materials.EncryptedDataKey{
		ProviderID:   k.providerID,
		ProviderInfo: []byte(k.keyName),
		Ciphertext:   ciphertext,
	})
	return nil
}

// OnDecrypt fills the materials from the first matching candidate that opens
// under the key-encryption key.
func (k *RawAESKeyring) OnDecrypt(_ context.Context, req *materials.DecryptionRequest, mat *materials.DecryptionMaterials) error {
	props, err := suite.ForID(req.Algorithm)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	if mat.HasDataKey() {
		return nil
	}

	nonceSize := k.aead.NonceSize()
	for _, edk := range req.EncryptedDataKeys {
		if edk.ProviderID != k.providerID {
			continue
		}
		if k.keyName != "" && !bytes.Equal(edk.ProviderInfo, []byte(k.keyName)) {
			continue
		}
		if len(edk.Ciphertext) < nonceSize {
			continue
		}

		nonce, sealed := edk.Ciphertext[:nonceSize], edk.Ciphertext[nonceSize:]
		plaintext, err := k.aead.Open(nil, nonce, sealed, []byte(k.keyName))
		if err != nil {
			continue
		}
		if len(plaintext) != props.DataKeyLen {
			continue
		}

		if err := mat.SetDataKey(plaintext); err != nil {
			return fmt.Errorf("%w: %v", ErrInvariantViolation, err)
		}
		return nil
	}

	return ErrNoMatchingCandidate
}
