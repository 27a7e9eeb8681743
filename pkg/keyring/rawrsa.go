package keyring

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"fmt"
	"hash"

	"github.com/guided-traffic/envelope-keyring/pkg/materials"
	"github.com/guided-traffic/envelope-keyring/pkg/suite"
)

// RSAPaddingMode selects how the data key is formatted before RSA wrapping.
type RSAPaddingMode int

const (
	// RSAPKCS1v15 is deterministic PKCS#1 v1.5 block padding, 11 bytes of
	// overhead.
	RSAPKCS1v15 RSAPaddingMode = iota

	// RSAOAEPSHA1 is OAEP with SHA-1 for both the mask generation function
	// and the seed.
	RSAOAEPSHA1

	// RSAOAEPSHA256 is OAEP with SHA-256 for both the mask generation
	// function and the seed.
	RSAOAEPSHA256
)

func (m RSAPaddingMode) String() string {
	switch m {
	case RSAPKCS1v15:
		return "pkcs1"
	case RSAOAEPSHA1:
		return "oaep-sha1"
	case RSAOAEPSHA256:
		return "oaep-sha256"
	default:
		return fmt.Sprintf("RSAPaddingMode(%d)", int(m))
	}
}

// RawRSAKeyring wraps data keys under a locally held RSA key pair. A keyring
// built with only the public key can wrap, one with only the private key can
// unwrap; supplying both enables round trips.
type RawRSAKeyring struct {
	providerID string
	keyName    string
	publicKey  *rsa.PublicKey
	privateKey *rsa.PrivateKey
	padding    RSAPaddingMode
}

// NewRawRSAKeyring builds a raw RSA keyring. providerID tags the wrapped keys
// this keyring produces and keyName distinguishes key pairs within one
// provider namespace. At least one key half must be supplied; when both are
// present they must belong to the same pair.
func NewRawRSAKeyring(providerID, keyName string, publicKey *rsa.PublicKey, privateKey *rsa.PrivateKey, padding RSAPaddingMode) (*RawRSAKeyring, error) {
	if providerID == "" {
		return nil, fmt.Errorf("%w: provider id must not be empty", ErrConfiguration)
	}
	if publicKey == nil && privateKey == nil {
		return nil, fmt.Errorf("%w: at least one RSA key half is required", ErrConfiguration)
	}
	switch padding {
	case RSAPKCS1v15, RSAOAEPSHA1, RSAOAEPSHA256:
	default:
		return nil, fmt.Errorf("%w: unknown RSA padding mode %d", ErrConfiguration, int(padding))
	}
	if publicKey != nil && privateKey != nil {
		if privateKey.PublicKey.N.Cmp(publicKey.N) != 0 || privateKey.PublicKey.E != publicKey.E {
			return nil, fmt.Errorf("%w: public key does not match private key", ErrConfiguration)
		}
	}

	return &RawRSAKeyring{
		providerID: providerID,
		keyName:    keyName,
		publicKey:  publicKey,
		privateKey: privateKey,
		padding:    padding,
	}, nil
}

// ProviderID returns the provider namespace this keyring tags its wrapped
// keys with.
func (k *RawRSAKeyring) ProviderID() string {
	return k.providerID
}

// OnEncrypt generates the data key if absent, wraps it under the public key
// and appends one EncryptedDataKey. The materials are left untouched when the
// wrap fails.
func (k *RawRSAKeyring) OnEncrypt(_ context.Context, mat *materials.EncryptionMaterials) error {
	if k.publicKey == nil {
		return fmt.Errorf("%w: raw RSA keyring has no public key, cannot wrap", ErrConfiguration)
	}

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

	dataKey := mat.DataKey()
	if max := k.maxPlaintextLen(); len(dataKey) > max {
		return fmt.Errorf("%w: %d-byte data key exceeds %d-byte limit of %d-bit key with %s padding",
			ErrUnsupportedPaddingOrKeySize, len(dataKey), max, k.publicKey.N.BitLen(), k.padding)
	}

	ciphertext, err := k.wrap(dataKey)
	if err != nil {
		return ErrCipherOperation
	}

	mat.AddEncryptedDataKey(materials.EncryptedDataKey{
		ProviderID:   k.providerID,
		ProviderInfo: []byte(k.keyName),
		Ciphertext:   ciphertext,
	})
	return nil
}

// OnDecrypt scans the candidates for ones carrying this keyring's provider id
// and key name, and fills the materials from the first that unwraps to a key
// of the suite's length. Per-candidate failures are absorbed.
func (k *RawRSAKeyring) OnDecrypt(_ context.Context, req *materials.DecryptionRequest, mat *materials.DecryptionMaterials) error {
	if k.privateKey == nil {
		return fmt.Errorf("%w: raw RSA keyring has no private key, cannot unwrap", ErrConfiguration)
	}

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
		if k.keyName != "" && !bytes.Equal(edk.ProviderInfo, []byte(k.keyName)) {
			continue
		}

		plaintext, err := k.unwrap(edk.Ciphertext)
		if err != nil {
			// Opaque candidate failure: wrong key, wrong padding or
			// corrupted ciphertext all look the same. Try the next one.
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

// maxPlaintextLen is the largest wrappable payload for the configured key
// size and padding scheme.
func (k *RawRSAKeyring) maxPlaintextLen() int {
	modulus := k.publicKey.Size()
	switch k.padding {
	case RSAPKCS1v15:
		return modulus - 11
	case RSAOAEPSHA1:
		return modulus - 2*sha1.Size - 2
	default:
		return modulus - 2*sha256.Size - 2
	}
}

func (k *RawRSAKeyring) wrap(plaintext []byte) ([]byte, error) {
	switch k.padding {
	case RSAPKCS1v15:
		return rsa.EncryptPKCS1v15(rand.Reader, k.publicKey, plaintext)
	default:
		return rsa.EncryptOAEP(k.oaepHash(), rand.Reader, k.publicKey, plaintext, nil)
	}
}

func (k *RawRSAKeyring) unwrap(ciphertext []byte) ([]byte, error) {
	switch k.padding {
	case RSAPKCS1v15:
		return rsa.DecryptPKCS1v15(nil, k.privateKey, ciphertext)
	default:
		return rsa.DecryptOAEP(k.oaepHash(), nil, k.privateKey, ciphertext, nil)
	}
}

func (k *RawRSAKeyring) oaepHash() hash.Hash {
	if k.padding == RSAOAEPSHA1 {
		return sha1.New()
	}
	return sha256.New()
}
