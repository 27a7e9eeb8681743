// Package crypto holds key-derivation helpers shared by the envelope layer.
package crypto

import (
	"fmt"
	"hash"

	"golang.org/x/crypto/hkdf"
)

// contentKeyInfo is the HKDF context string for deriving per-message content
// keys from a data key.
const contentKeyInfo = "envelope-keyring content key"

// DeriveContentKey derives a content-encryption key from the data key using
// HKDF, salted with the message ID so two messages sharing a cached data key
// still encrypt under distinct keys.
func DeriveContentKey(dataKey []byte, kdfHash func() hash.Hash, messageID []byte, keyLen int) ([]byte, error) {
	if len(dataKey) == 0 {
		return nil, fmt.Errorf("data key cannot be empty")
	}
	if len(messageID) == 0 {
		return nil, fmt.Errorf("message ID cannot be empty")
	}
	if keyLen <= 0 {
		return nil, fmt.Errorf("derived key length must be positive, got %d", keyLen)
	}

	reader := hkdf.New(kdfHash, dataKey, messageID, []byte(contentKeyInfo))
	key := make([]byte, keyLen)
	if _, err := reader.Read(key); err != nil {
		return nil, fmt.Errorf("HKDF key derivation failed: %w", err)
	}
	return key, nil
}
