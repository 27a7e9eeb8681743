package envelope

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guided-traffic/envelope-keyring/pkg/keyring"
	"github.com/guided-traffic/envelope-keyring/pkg/manager"
	"github.com/guided-traffic/envelope-keyring/pkg/materials"
	"github.com/guided-traffic/envelope-keyring/pkg/suite"
)

func testManager(t *testing.T) manager.MaterialsManager {
	t.Helper()
	kr, err := keyring.NewRawAESKeyring("raw-aes", "test-kek", bytes.Repeat([]byte{0x77}, 32))
	require.NoError(t, err)
	mgr, err := manager.NewDefault(kr)
	require.NoError(t, err)
	return mgr
}

func TestSealOpen_RoundTrip(t *testing.T) {
	ctx := context.Background()
	mgr := testManager(t)
	plaintext := []byte("the payload under protection")

	for _, alg := range suite.All() {
		t.Run(alg.String(), func(t *testing.T) {
			msg, err := Seal(ctx, mgr, alg, plaintext, nil)
			require.NoError(t, err)
			assert.NotEmpty(t, msg.EncryptedDataKeys)
			assert.NotEqual(t, plaintext, msg.Ciphertext)

			recovered, err := Open(ctx, mgr, msg, nil)
			require.NoError(t, err)
			assert.Equal(t, plaintext, recovered)
		})
	}
}

func TestSealOpen_AssociatedData(t *testing.T) {
	ctx := context.Background()
	mgr := testManager(t)

	msg, err := Seal(ctx, mgr, suite.AES256GCMHKDFSHA256, []byte("payload"), []byte("tenant-42"))
	require.NoError(t, err)

	_, err = Open(ctx, mgr, msg, []byte("tenant-43"))
	assert.Error(t, err)

	recovered, err := Open(ctx, mgr, msg, []byte("tenant-42"))
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), recovered)
}

func TestOpen_TamperedCiphertext(t *testing.T) {
	ctx := context.Background()
	mgr := testManager(t)

	msg, err := Seal(ctx, mgr, suite.AES256GCMHKDFSHA256, []byte("payload"), nil)
	require.NoError(t, err)

	msg.Ciphertext[0] ^= 0xff
	_, err = Open(ctx, mgr, msg, nil)
	assert.Error(t, err)
}

func TestOpen_ForeignKeyring(t *testing.T) {
	ctx := context.Background()
	mgr := testManager(t)

	msg, err := Seal(ctx, mgr, suite.AES256GCMHKDFSHA256, []byte("payload"), nil)
	require.NoError(t, err)

	otherKr, err := keyring.NewRawAESKeyring("raw-aes", "test-kek", bytes.Repeat([]byte{0x01}, 32))
	require.NoError(t, err)
	otherMgr, err := manager.NewDefault(otherKr)
	require.NoError(t, err)

	_, err = Open(ctx, otherMgr, msg, nil)
	assert.ErrorIs(t, err, keyring.ErrNoMatchingCandidate)
}

func TestSeal_CachedDataKeyDistinctContentKeys(t *testing.T) {
	ctx := context.Background()

	caching, err := manager.NewCaching(testManager(t), manager.CachingConfig{
		MaxEntries: 4,
		MaxAge:     time.Minute,
		MaxUses:    100,
	})
	require.NoError(t, err)

	first, err := Seal(ctx, caching, suite.AES256GCMHKDFSHA256, []byte("payload"), nil)
	require.NoError(t, err)
	second, err := Seal(ctx, caching, suite.AES256GCMHKDFSHA256, []byte("payload"), nil)
	require.NoError(t, err)

	// Same cached data key, but per-message IDs keep the ciphertexts apart.
	assert.NotEqual(t, first.MessageID, second.MessageID)
	assert.NotEqual(t, first.Ciphertext, second.Ciphertext)

	for _, msg := range []*Message{first, second} {
		recovered, err := Open(ctx, caching, msg, nil)
		require.NoError(t, err)
		assert.Equal(t, []byte("payload"), recovered)
	}
}

func TestSeal_MessageOwnsItsEncryptedDataKeys(t *testing.T) {
	ctx := context.Background()

	caching, err := manager.NewCaching(testManager(t), manager.CachingConfig{
		MaxEntries: 4,
		MaxAge:     time.Minute,
		MaxUses:    100,
	})
	require.NoError(t, err)

	first, err := Seal(ctx, caching, suite.AES256GCMHKDFSHA256, []byte("payload"), nil)
	require.NoError(t, err)

	// Clobbering one message's wrapped keys must not leak into messages
	// sealed later from the same cached materials.
	require.NotEmpty(t, first.EncryptedDataKeys)
	first.EncryptedDataKeys[0] = materials.EncryptedDataKey{
		ProviderID: "clobbered",
		Ciphertext: []byte("clobbered"),
	}

	second, err := Seal(ctx, caching, suite.AES256GCMHKDFSHA256, []byte("payload"), nil)
	require.NoError(t, err)
	require.NotEmpty(t, second.EncryptedDataKeys)
	assert.NotEqual(t, "clobbered", second.EncryptedDataKeys[0].ProviderID)

	recovered, err := Open(ctx, caching, second, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), recovered)
}

func TestMessage_JSONRoundTrip(t *testing.T) {
	ctx := context.Background()
	mgr := testManager(t)

	msg, err := Seal(ctx, mgr, suite.AES256GCMHKDFSHA256, []byte("payload"), nil)
	require.NoError(t, err)

	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded Message
	require.NoError(t, json.Unmarshal(raw, &decoded))

	recovered, err := Open(ctx, mgr, &decoded, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), recovered)
}
