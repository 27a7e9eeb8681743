// Package suite defines the closed set of supported algorithm suites and
// their cryptographic parameters. The registry is a read-only table built at
// init time; lookups never allocate and are safe for concurrent use.
package suite

import (
	"crypto/sha256"
	"fmt"
	"hash"
)

// AlgorithmID identifies one algorithm suite. The numeric values match the
// AWS Encryption SDK message format so wrapped keys stay interoperable.
type AlgorithmID uint16

const (
	// AES128GCMHKDFSHA256 is AES-128-GCM with a 12-byte IV, 16-byte tag and
	// HKDF-SHA256 content-key derivation, no signing.
	AES128GCMHKDFSHA256 AlgorithmID = 0x0114

	// AES192GCMHKDFSHA256 is AES-192-GCM with a 12-byte IV, 16-byte tag and
	// HKDF-SHA256 content-key derivation, no signing.
	AES192GCMHKDFSHA256 AlgorithmID = 0x0146

	// AES256GCMHKDFSHA256 is AES-256-GCM with a 12-byte IV, 16-byte tag and
	// HKDF-SHA256 content-key derivation, no signing.
	AES256GCMHKDFSHA256 AlgorithmID = 0x0178
)

// Properties holds the fixed parameters of one algorithm suite. Instances are
// shared and must be treated as read-only.
type Properties struct {
	ID         AlgorithmID
	Name       string
	DataKeyLen int // bytes of symmetric data key
	IVLen      int // bytes of AEAD nonce
	TagLen     int // bytes of AEAD authentication tag
	KDFHash    func() hash.Hash
}

var registry = map[AlgorithmID]*Properties{
	AES128GCMHKDFSHA256: {
		ID:         AES128GCMHKDFSHA256,
		Name:       "AES_128_GCM_IV12_TAG16_HKDF_SHA256",
		DataKeyLen: 16,
		IVLen:      12,
		TagLen:     16,
		KDFHash:    sha256.New,
	},
	AES192GCMHKDFSHA256: {
		ID:         AES192GCMHKDFSHA256,
		Name:       "AES_192_GCM_IV12_TAG16_HKDF_SHA256",
		DataKeyLen: 24,
		IVLen:      12,
		TagLen:     16,
		KDFHash:    sha256.New,
	},
	AES256GCMHKDFSHA256: {
		ID:         AES256GCMHKDFSHA256,
		Name:       "AES_256_GCM_IV12_TAG16_HKDF_SHA256",
		DataKeyLen: 32,
		IVLen:      12,
		TagLen:     16,
		KDFHash:    sha256.New,
	},
}

// ForID returns the properties of the given algorithm suite. It fails only
// when the identifier is outside the supported enumeration, which indicates a
// caller bug rather than a runtime condition.
func ForID(id AlgorithmID) (*Properties, error) {
	props, ok := registry[id]
	if !ok {
		return nil, fmt.Errorf("unknown algorithm suite 0x%04x", uint16(id))
	}
	return props, nil
}

// ForName resolves a suite by its canonical name. Used by configuration
// loading where suites are referenced as strings.
func ForName(name string) (*Properties, error) {
	for _, props := range registry {
		if props.Name == name {
			return props, nil
		}
	}
	return nil, fmt.Errorf("unknown algorithm suite %q", name)
}

// All returns the supported algorithm identifiers in ascending order.
func All() []AlgorithmID {
	return []AlgorithmID{AES128GCMHKDFSHA256, AES192GCMHKDFSHA256, AES256GCMHKDFSHA256}
}

func (id AlgorithmID) String() string {
	if props, ok := registry[id]; ok {
		return props.Name
	}
	return fmt.Sprintf("AlgorithmID(0x%04x)", uint16(id))
}
