// Package materials holds the data model shared between keyrings and the
// materials manager: the plaintext data key for one encryption or decryption
// pass together with its wrapped copies.
//
// Each materials object is owned by exactly one pass and is not safe for
// concurrent mutation. The plaintext data key slot is single-assignment;
// SetDataKey enforces both the write-once rule and the suite's key length at
// write time.
package materials

import (
	"errors"
	"fmt"

	"github.com/guided-traffic/envelope-keyring/pkg/suite"
)

var (
	// ErrDataKeyAlreadySet is returned when a second plaintext data key is
	// written into a materials object.
	ErrDataKeyAlreadySet = errors.New("plaintext data key is already set")

	// ErrDataKeyLength is returned when a data key does not match the length
	// required by the algorithm suite.
	ErrDataKeyLength = errors.New("data key length does not match algorithm suite")
)

// EncryptedDataKey is one wrapped copy of the data key, tagged with the
// identity of the keyring that produced it. Immutable once created.
type EncryptedDataKey struct {
	// ProviderID names the keyring family that wrapped the key.
	ProviderID string `json:"provider_id"`

	// ProviderInfo is opaque keyring-specific metadata, e.g. the key name or
	// the wrapping nonce. May be empty.
	ProviderInfo []byte `json:"provider_info,omitempty"`

	// Ciphertext is the wrapped data key.
	Ciphertext []byte `json:"ciphertext"`
}

// EncryptionMaterials accumulates the output of one encryption pass: the
// plaintext data key (generated by the first keyring that runs) and one
// EncryptedDataKey per keyring that wrapped it.
type EncryptionMaterials struct {
	algorithm         suite.AlgorithmID
	props             *suite.Properties
	dataKey           []byte
	encryptedDataKeys []EncryptedDataKey
}

// NewEncryptionMaterials creates empty materials for the given suite.
func NewEncryptionMaterials(alg suite.AlgorithmID) (*EncryptionMaterials, error) {
	props, err := suite.ForID(alg)
	if err != nil {
		return nil, err
	}
	return &EncryptionMaterials{algorithm: alg, props: props}, nil
}

// Algorithm returns the suite these materials were created for.
func (m *EncryptionMaterials) Algorithm() suite.AlgorithmID {
	return m.algorithm
}

// HasDataKey reports whether a plaintext data key has been set.
func (m *EncryptionMaterials) HasDataKey() bool {
	return m.dataKey != nil
}

// DataKey returns the plaintext data key, or nil when none has been
// generated yet. Callers must not modify the returned slice.
func (m *EncryptionMaterials) DataKey() []byte {
	return m.dataKey
}

// SetDataKey stores the plaintext data key. It fails if a key is already
// present or if the length does not match the suite.
func (m *EncryptionMaterials) SetDataKey(key []byte) error {
	if m.dataKey != nil {
		return ErrDataKeyAlreadySet
	}
	if len(key) != m.props.DataKeyLen {
		return fmt.Errorf("%w: want %d bytes, got %d", ErrDataKeyLength, m.props.DataKeyLen, len(key))
	}
	m.dataKey = append([]byte(nil), key...)
	return nil
}

// AddEncryptedDataKey appends one wrapped copy of the data key.
func (m *EncryptionMaterials) AddEncryptedDataKey(edk EncryptedDataKey) {
	m.encryptedDataKeys = append(m.encryptedDataKeys, edk)
}

// EncryptedDataKeys returns the wrapped copies in append order. Callers must
// not modify the returned slice.
func (m *EncryptionMaterials) EncryptedDataKeys() []EncryptedDataKey {
	return m.encryptedDataKeys
}

// DecryptionRequest is the read-only input to one decryption pass: the suite
// the message was encrypted under and the candidate wrapped keys to try, in
// wire order.
type DecryptionRequest struct {
	Algorithm         suite.AlgorithmID
	EncryptedDataKeys []EncryptedDataKey
}

// NewDecryptionRequest bundles the candidates for one decryption pass.
func NewDecryptionRequest(alg suite.AlgorithmID, edks []EncryptedDataKey) *DecryptionRequest {
	return &DecryptionRequest{
		Algorithm:         alg,
		EncryptedDataKeys: append([]EncryptedDataKey(nil), edks...),
	}
}

// DecryptionMaterials receives at most one recovered plaintext data key.
type DecryptionMaterials struct {
	algorithm suite.AlgorithmID
	props     *suite.Properties
	dataKey   []byte
}

// NewDecryptionMaterials creates empty decryption materials for the given
// suite.
func NewDecryptionMaterials(alg suite.AlgorithmID) (*DecryptionMaterials, error) {
	props, err := suite.ForID(alg)
	if err != nil {
		return nil, err
	}
	return &DecryptionMaterials{algorithm: alg, props: props}, nil
}

// Algorithm returns the suite these materials were created for.
func (m *DecryptionMaterials) Algorithm() suite.AlgorithmID {
	return m.algorithm
}

// HasDataKey reports whether a data key has been recovered.
func (m *DecryptionMaterials) HasDataKey() bool {
	return m.dataKey != nil
}

// DataKey returns the recovered plaintext data key, or nil when no candidate
// has succeeded. Callers must not modify the returned slice.
func (m *DecryptionMaterials) DataKey() []byte {
	return m.dataKey
}

// SetDataKey stores the recovered data key, enforcing the write-once rule and
// the suite key length.
func (m *DecryptionMaterials) SetDataKey(key []byte) error {
	if m.dataKey != nil {
		return ErrDataKeyAlreadySet
	}
	if len(key) != m.props.DataKeyLen {
		return fmt.Errorf("%w: want %d bytes, got %d", ErrDataKeyLength, m.props.DataKeyLen, len(key))
	}
	m.dataKey = append([]byte(nil), key...)
	return nil
}
