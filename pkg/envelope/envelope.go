// Package envelope seals and opens application payloads with a managed data
// key. Each message gets a random ID; the content-encryption key is derived
// from the data key and the message ID, so materials reused by a caching
// manager never encrypt two messages under the same key.
package envelope

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"github.com/google/uuid"

	internalcrypto "github.com/guided-traffic/envelope-keyring/internal/crypto"
	"github.com/guided-traffic/envelope-keyring/pkg/manager"
	"github.com/guided-traffic/envelope-keyring/pkg/materials"
	"github.com/guided-traffic/envelope-keyring/pkg/suite"
)

// Message is one sealed payload together with everything needed to open it:
// the suite, the message ID the content key was derived with, and the wrapped
// copies of the data key. In-memory value; callers choose their own framing.
type Message struct {
	Algorithm         suite.AlgorithmID            `json:"algorithm"`
	MessageID         uuid.UUID                    `json:"message_id"`
	EncryptedDataKeys []materials.EncryptedDataKey `json:"encrypted_data_keys"`
	IV                []byte                       `json:"iv"`
	Ciphertext        []byte                       `json:"ciphertext"`
}

// Seal encrypts plaintext under a fresh or cached data key obtained from the
// materials manager. aad is bound to the ciphertext but not stored.
func Seal(ctx context.Context, mgr manager.MaterialsManager, alg suite.AlgorithmID, plaintext, aad []byte) (*Message, error) {
	props, err := suite.ForID(alg)
	if err != nil {
		return nil, err
	}

	mat, err := mgr.GetEncryptionMaterials(ctx, alg)
	if err != nil {
		return nil, fmt.Errorf("failed to get encryption materials: %w", err)
	}

	messageID := uuid.New()
	aead, err := contentAEAD(mat.DataKey(), props, messageID)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, props.IVLen)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("failed to generate IV: %w", err)
	}

	// Copy the wrapped keys: a caching manager hands the same materials to
	// every message it serves, and the message must stay independent of them.
	edks := append([]materials.EncryptedDataKey(nil), mat.EncryptedDataKeys()...)

	return &Message{
		Algorithm:         alg,
		MessageID:         messageID,
		EncryptedDataKeys: edks,
		IV:                iv,
		Ciphertext:        aead.Seal(nil, iv, plaintext, aad),
	}, nil
}

// Open recovers the data key from the message's wrapped copies and decrypts
// the payload. aad must match the value given to Seal.
func Open(ctx context.Context, mgr manager.MaterialsManager, msg *Message, aad []byte) ([]byte, error) {
	props, err := suite.ForID(msg.Algorithm)
	if err != nil {
		return nil, err
	}

	req := materials.NewDecryptionRequest(msg.Algorithm, msg.EncryptedDataKeys)
	mat, err := mgr.DecryptMaterials(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to recover data key: %w", err)
	}

	aead, err := contentAEAD(mat.DataKey(), props, msg.MessageID)
	if err != nil {
		return nil, err
	}

	if len(msg.IV) != props.IVLen {
		return nil, fmt.Errorf("message IV length %d does not match suite IV length %d", len(msg.IV), props.IVLen)
	}

	plaintext, err := aead.Open(nil, msg.IV, msg.Ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt payload: %w", err)
	}
	return plaintext, nil
}

func contentAEAD(dataKey []byte, props *suite.Properties, messageID uuid.UUID) (cipher.AEAD, error) {
	contentKey, err := internalcrypto.DeriveContentKey(dataKey, props.KDFHash, messageID[:], props.DataKeyLen)
	if err != nil {
		return nil, fmt.Errorf("failed to derive content key: %w", err)
	}

	block, err := aes.NewCipher(contentKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create content cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aead, nil
}
