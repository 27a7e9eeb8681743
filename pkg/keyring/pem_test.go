package keyring

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guided-traffic/envelope-keyring/pkg/materials"
	"github.com/guided-traffic/envelope-keyring/pkg/suite"
)

func TestNewRawRSAKeyringFromPEM(t *testing.T) {
	key := testRSAKey(t)

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pubPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))
	privPEM := string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}))

	ctx := context.Background()

	wrapper, err := NewRawRSAKeyringFromPEM("raw-rsa", "pem-key", pubPEM, "", RSAOAEPSHA256)
	require.NoError(t, err)

	mat := newTestMaterials(t, suite.AES256GCMHKDFSHA256)
	require.NoError(t, wrapper.OnEncrypt(ctx, mat))

	unwrapper, err := NewRawRSAKeyringFromPEM("raw-rsa", "pem-key", "", privPEM, RSAOAEPSHA256)
	require.NoError(t, err)

	req := materials.NewDecryptionRequest(suite.AES256GCMHKDFSHA256, mat.EncryptedDataKeys())
	decMat, err := materials.NewDecryptionMaterials(suite.AES256GCMHKDFSHA256)
	require.NoError(t, err)

	require.NoError(t, unwrapper.OnDecrypt(ctx, req, decMat))
	assert.Equal(t, mat.DataKey(), decMat.DataKey())
}

func TestNewRawRSAKeyringFromPEM_PKCS8(t *testing.T) {
	key := testRSAKey(t)

	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	privPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER}))

	// Private-key-only construction derives the public half, so the keyring
	// can wrap as well.
	kr, err := NewRawRSAKeyringFromPEM("raw-rsa", "pem-key", "", privPEM, RSAPKCS1v15)
	require.NoError(t, err)

	mat := newTestMaterials(t, suite.AES128GCMHKDFSHA256)
	require.NoError(t, kr.OnEncrypt(context.Background(), mat))
	assert.Len(t, mat.EncryptedDataKeys(), 1)
}

func TestNewRawRSAKeyringFromPEM_Invalid(t *testing.T) {
	_, err := NewRawRSAKeyringFromPEM("raw-rsa", "k", "not a pem block", "", RSAOAEPSHA256)
	assert.Error(t, err)

	_, err = NewRawRSAKeyringFromPEM("raw-rsa", "k", "", "also not pem", RSAOAEPSHA256)
	assert.Error(t, err)

	_, err = NewRawRSAKeyringFromPEM("raw-rsa", "k", "", "", RSAOAEPSHA256)
	assert.ErrorIs(t, err, ErrConfiguration)
}
