package materials

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guided-traffic/envelope-keyring/pkg/suite"
)

func TestEncryptionMaterials_SetDataKey(t *testing.T) {
	mat, err := NewEncryptionMaterials(suite.AES256GCMHKDFSHA256)
	require.NoError(t, err)
	assert.False(t, mat.HasDataKey())
	assert.Nil(t, mat.DataKey())

	key := bytes.Repeat([]byte{0xab}, 32)
	require.NoError(t, mat.SetDataKey(key))
	assert.True(t, mat.HasDataKey())
	assert.Equal(t, key, mat.DataKey())

	// Write-once: a second assignment must fail and leave the key unchanged.
	err = mat.SetDataKey(bytes.Repeat([]byte{0xcd}, 32))
	assert.ErrorIs(t, err, ErrDataKeyAlreadySet)
	assert.Equal(t, key, mat.DataKey())
}

func TestEncryptionMaterials_SetDataKey_WrongLength(t *testing.T) {
	tests := []struct {
		alg    suite.AlgorithmID
		keyLen int
	}{
		{suite.AES128GCMHKDFSHA256, 32},
		{suite.AES192GCMHKDFSHA256, 16},
		{suite.AES256GCMHKDFSHA256, 24},
	}

	for _, tt := range tests {
		mat, err := NewEncryptionMaterials(tt.alg)
		require.NoError(t, err)

		err = mat.SetDataKey(make([]byte, tt.keyLen))
		assert.ErrorIs(t, err, ErrDataKeyLength)
		assert.False(t, mat.HasDataKey())
	}
}

func TestEncryptionMaterials_SetDataKey_Copies(t *testing.T) {
	mat, err := NewEncryptionMaterials(suite.AES128GCMHKDFSHA256)
	require.NoError(t, err)

	key := bytes.Repeat([]byte{0x01}, 16)
	require.NoError(t, mat.SetDataKey(key))

	// Mutating the caller's slice must not reach the stored key.
	key[0] = 0xff
	assert.Equal(t, byte(0x01), mat.DataKey()[0])
}

func TestEncryptionMaterials_AddEncryptedDataKey(t *testing.T) {
	mat, err := NewEncryptionMaterials(suite.AES256GCMHKDFSHA256)
	require.NoError(t, err)
	assert.Empty(t, mat.EncryptedDataKeys())

	mat.AddEncryptedDataKey(EncryptedDataKey{ProviderID: "a", Ciphertext: []byte{1}})
	mat.AddEncryptedDataKey(EncryptedDataKey{ProviderID: "b", Ciphertext: []byte{2}})

	edks := mat.EncryptedDataKeys()
	require.Len(t, edks, 2)
	assert.Equal(t, "a", edks[0].ProviderID)
	assert.Equal(t, "b", edks[1].ProviderID)
}

func TestNewEncryptionMaterials_UnknownSuite(t *testing.T) {
	_, err := NewEncryptionMaterials(suite.AlgorithmID(0x9999))
	assert.Error(t, err)
}

func TestDecryptionMaterials(t *testing.T) {
	mat, err := NewDecryptionMaterials(suite.AES128GCMHKDFSHA256)
	require.NoError(t, err)
	assert.False(t, mat.HasDataKey())

	err = mat.SetDataKey(make([]byte, 17))
	assert.ErrorIs(t, err, ErrDataKeyLength)

	key := bytes.Repeat([]byte{0x42}, 16)
	require.NoError(t, mat.SetDataKey(key))
	assert.Equal(t, key, mat.DataKey())

	err = mat.SetDataKey(key)
	assert.ErrorIs(t, err, ErrDataKeyAlreadySet)
}

func TestNewDecryptionRequest_CopiesCandidates(t *testing.T) {
	edks := []EncryptedDataKey{{ProviderID: "raw-rsa", Ciphertext: []byte{1, 2, 3}}}
	req := NewDecryptionRequest(suite.AES256GCMHKDFSHA256, edks)

	edks[0].ProviderID = "other"
	assert.Equal(t, "raw-rsa", req.EncryptedDataKeys[0].ProviderID)
}
