package keyring

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"

	"github.com/google/tink/go/aead"
	"github.com/google/tink/go/keyset"
	"github.com/google/tink/go/tink"

	"github.com/guided-traffic/envelope-keyring/pkg/materials"
	"github.com/guided-traffic/envelope-keyring/pkg/suite"
)

// TinkKeyring wraps data keys with an AEAD primitive obtained from a Tink
// keyset handle. The keyset URI is carried as provider info so decryption can
// route candidates to the right keyset.
type TinkKeyring struct {
	providerID string
	keysetURI  string
	aead       tink.AEAD
}

// NewTinkKeyring builds a keyring around an existing keyset handle.
func NewTinkKeyring(providerID, keysetURI string, handle *keyset.Handle) (*TinkKeyring, error) {
	if providerID == "" {
		return nil, fmt.Errorf("%w: provider id must not be empty", ErrConfiguration)
	}
	if handle == nil {
		return nil, fmt.Errorf("%w: keyset handle cannot be nil", ErrConfiguration)
	}

	primitive, err := aead.New(handle)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	return &TinkKeyring{providerID: providerID, keysetURI: keysetURI, aead: primitive}, nil
}

// NewLocalTinkKeyring builds a keyring around a freshly generated local
// AES-256-GCM keyset. Intended for tests and development setups that have no
// externally managed keyset.
func NewLocalTinkKeyring(providerID, keysetURI string) (*TinkKeyring, error) {
	handle, err := keyset.NewHandle(aead.AES256GCMKeyTemplate())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return NewTinkKeyring(providerID, keysetURI, handle)
}

// ProviderID returns the provider namespace this keyring tags its wrapped
// keys with.
func (k *TinkKeyring) ProviderID() string {
	return k.providerID
}

// OnEncrypt generates the data key if absent and appends one Tink-wrapped
// copy.
func (k *TinkKeyring) OnEncrypt(_ context.Context, mat *materials.EncryptionMaterials) error {
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

	ciphertext, err := k.aead.Encrypt(mat.DataKey(), []byte(k.keysetURI))
	if err != nil {
		return ErrCipherOperation
	}

	mat.AddEncryptedDataKey(materials.EncryptedDataKey{
		ProviderID:   k.providerID,
		ProviderInfo: []byte(k.keysetURI),
		Ciphertext:   ciphertext,
	})
	return nil
}

// OnDecrypt fills the materials from the first matching candidate the AEAD
// primitive accepts.
func (k *TinkKeyring) OnDecrypt(_ context.Context, req *materials.DecryptionRequest, mat *materials.DecryptionMaterials) error {
	props, err := suite.ForID(req.Algorithm)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	if mat.HasDataKey() {
		return nil
	}

	for _, edk := range req.EncryptedDataKeys {
		if edk.ProviderID != k.providerID {
			continue
		}
		if k.keysetURI != "" && !bytes.Equal(edk.ProviderInfo, []byte(k.keysetURI)) {
			continue
		}

		plaintext, err := k.aead.Decrypt(edk.Ciphertext, []byte(k.keysetURI))
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
