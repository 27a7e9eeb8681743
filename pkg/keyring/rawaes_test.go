package keyring

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guided-traffic/envelope-keyring/pkg/materials"
	"github.com/guided-traffic/envelope-keyring/pkg/suite"
)

func testKEK() []byte {
	return bytes.Repeat([]byte{0x5a}, 32)
}

func TestRawAESKeyring_RoundTrip(t *testing.T) {
	ctx := context.Background()

	for _, alg := range suite.All() {
		t.Run(alg.String(), func(t *testing.T) {
			kr, err := NewRawAESKeyring("raw-aes", "shared-kek", testKEK())
			require.NoError(t, err)

			mat := newTestMaterials(t, alg)
			require.NoError(t, kr.OnEncrypt(ctx, mat))

			props, err := suite.ForID(alg)
			require.NoError(t, err)
			assert.Len(t, mat.DataKey(), props.DataKeyLen)
			require.Len(t, mat.EncryptedDataKeys(), 1)

			req := materials.NewDecryptionRequest(alg, mat.EncryptedDataKeys())
			decMat, err := materials.NewDecryptionMaterials(alg)
			require.NoError(t, err)

			require.NoError(t, kr.OnDecrypt(ctx, req, decMat))
			assert.Equal(t, mat.DataKey(), decMat.DataKey())
		})
	}
}

func TestRawAESKeyring_WrapIsRandomized(t *testing.T) {
	ctx := context.Background()
	kr, err := NewRawAESKeyring("raw-aes", "shared-kek", testKEK())
	require.NoError(t, err)

	mat := newTestMaterials(t, suite.AES256GCMHKDFSHA256)
	require.NoError(t, kr.OnEncrypt(ctx, mat))
	require.NoError(t, kr.OnEncrypt(ctx, mat))

	edks := mat.EncryptedDataKeys()
	require.Len(t, edks, 2)
	assert.NotEqual(t, edks[0].Ciphertext, edks[1].Ciphertext)
}

func TestRawAESKeyring_WrongKEKIsFailedCandidate(t *testing.T) {
	ctx := context.Background()

	wrapper, err := NewRawAESKeyring("raw-aes", "kek-1", testKEK())
	require.NoError(t, err)

	mat := newTestMaterials(t, suite.AES256GCMHKDFSHA256)
	require.NoError(t, wrapper.OnEncrypt(ctx, mat))

	other, err := NewRawAESKeyring("raw-aes", "kek-1", bytes.Repeat([]byte{0xa5}, 32))
	require.NoError(t, err)

	req := materials.NewDecryptionRequest(suite.AES256GCMHKDFSHA256, mat.EncryptedDataKeys())
	decMat, err := materials.NewDecryptionMaterials(suite.AES256GCMHKDFSHA256)
	require.NoError(t, err)

	err = other.OnDecrypt(ctx, req, decMat)
	assert.ErrorIs(t, err, ErrNoMatchingCandidate)
	assert.False(t, decMat.HasDataKey())
}

func TestNewRawAESKeyring_Validation(t *testing.T) {
	_, err := NewRawAESKeyring("", "kek", testKEK())
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = NewRawAESKeyring("raw-aes", "kek", make([]byte, 16))
	assert.ErrorIs(t, err, ErrConfiguration)
}
