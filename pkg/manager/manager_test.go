package manager

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guided-traffic/envelope-keyring/pkg/keyring"
	"github.com/guided-traffic/envelope-keyring/pkg/materials"
	"github.com/guided-traffic/envelope-keyring/pkg/suite"
)

func testAESKeyring(t *testing.T) *keyring.RawAESKeyring {
	t.Helper()
	kr, err := keyring.NewRawAESKeyring("raw-aes", "test-kek", bytes.Repeat([]byte{0x11}, 32))
	require.NoError(t, err)
	return kr
}

func TestDefault_RoundTrip(t *testing.T) {
	ctx := context.Background()
	mgr, err := NewDefault(testAESKeyring(t))
	require.NoError(t, err)

	encMat, err := mgr.GetEncryptionMaterials(ctx, suite.AES256GCMHKDFSHA256)
	require.NoError(t, err)
	assert.Len(t, encMat.DataKey(), 32)
	require.NotEmpty(t, encMat.EncryptedDataKeys())

	req := materials.NewDecryptionRequest(suite.AES256GCMHKDFSHA256, encMat.EncryptedDataKeys())
	decMat, err := mgr.DecryptMaterials(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, encMat.DataKey(), decMat.DataKey())
}

func TestDefault_UnknownSuite(t *testing.T) {
	mgr, err := NewDefault(testAESKeyring(t))
	require.NoError(t, err)

	_, err = mgr.GetEncryptionMaterials(context.Background(), suite.AlgorithmID(0xbeef))
	assert.ErrorIs(t, err, keyring.ErrConfiguration)
}

func TestDefault_DecryptNoCandidates(t *testing.T) {
	mgr, err := NewDefault(testAESKeyring(t))
	require.NoError(t, err)

	req := materials.NewDecryptionRequest(suite.AES256GCMHKDFSHA256, nil)
	_, err = mgr.DecryptMaterials(context.Background(), req)
	assert.ErrorIs(t, err, keyring.ErrNoMatchingCandidate)
}

func TestNewDefault_NilKeyring(t *testing.T) {
	_, err := NewDefault(nil)
	assert.ErrorIs(t, err, keyring.ErrConfiguration)
}
