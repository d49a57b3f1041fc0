package ratchet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sharedSecretForTest() []byte {
	return []byte("a shared secret established out of band")
}

func TestEncryptDecryptRoundTripSameSecret(t *testing.T) {
	alice, err := NewState(sharedSecretForTest())
	require.NoError(t, err)
	bob, err := NewState(sharedSecretForTest())
	require.NoError(t, err)

	env, err := alice.Encrypt([]byte("e2e4"))
	require.NoError(t, err)

	plaintext, err := bob.Decrypt(env)
	require.NoError(t, err)
	assert.Equal(t, "e2e4", string(plaintext))
}

func TestEncryptProducesDistinctCiphertextsPerMessage(t *testing.T) {
	alice, err := NewState(sharedSecretForTest())
	require.NoError(t, err)

	env1, err := alice.Encrypt([]byte("e2e4"))
	require.NoError(t, err)
	env2, err := alice.Encrypt([]byte("e2e4"))
	require.NoError(t, err)

	assert.NotEqual(t, env1.Ciphertext, env2.Ciphertext)
	assert.Equal(t, 0, env1.RatchetHeader.MessageCounter)
	assert.Equal(t, 1, env2.RatchetHeader.MessageCounter)
}

func TestDecryptOutOfOrderUsesSkippedKeyCache(t *testing.T) {
	alice, err := NewState(sharedSecretForTest())
	require.NoError(t, err)
	bob, err := NewState(sharedSecretForTest())
	require.NoError(t, err)

	env1, err := alice.Encrypt([]byte("e2e4"))
	require.NoError(t, err)
	env2, err := alice.Encrypt([]byte("e7e5"))
	require.NoError(t, err)
	env3, err := alice.Encrypt([]byte("g1f3"))
	require.NoError(t, err)

	// Bob sees message 3 first, caching the skipped keys for 1 and 2.
	pt3, err := bob.Decrypt(env3)
	require.NoError(t, err)
	assert.Equal(t, "g1f3", string(pt3))

	pt1, err := bob.Decrypt(env1)
	require.NoError(t, err)
	assert.Equal(t, "e2e4", string(pt1))

	pt2, err := bob.Decrypt(env2)
	require.NoError(t, err)
	assert.Equal(t, "e7e5", string(pt2))
}

func TestDecryptFailsOnTamperedCiphertext(t *testing.T) {
	alice, err := NewState(sharedSecretForTest())
	require.NoError(t, err)
	bob, err := NewState(sharedSecretForTest())
	require.NoError(t, err)

	env, err := alice.Encrypt([]byte("e2e4"))
	require.NoError(t, err)
	env.Ciphertext[0] ^= 0xFF

	_, err = bob.Decrypt(env)
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestDecryptFailsOnWrongSharedSecret(t *testing.T) {
	alice, err := NewState(sharedSecretForTest())
	require.NoError(t, err)
	eve, err := NewState([]byte("a completely different secret"))
	require.NoError(t, err)

	env, err := alice.Encrypt([]byte("e2e4"))
	require.NoError(t, err)

	_, err = eve.Decrypt(env)
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestIsEncryptedDetectsEnvelope(t *testing.T) {
	assert.True(t, IsEncrypted([]byte(`{"jsonrpc":"2.0","encrypted":true,"ciphertext":"AA=="}`)))
	assert.False(t, IsEncrypted([]byte(`{"jsonrpc":"2.0","method":"tools/list"}`)))
	assert.False(t, IsEncrypted([]byte(`not json`)))
}

func TestServiceOpenGetRemove(t *testing.T) {
	svc := NewService()

	st, err := svc.Open("agent-1", sharedSecretForTest())
	require.NoError(t, err)
	assert.NotNil(t, st)

	got, ok := svc.Get("agent-1")
	require.True(t, ok)
	assert.Same(t, st, got)

	_, ok = svc.Get("agent-2")
	assert.False(t, ok)

	svc.Remove("agent-1")
	_, ok = svc.Get("agent-1")
	assert.False(t, ok)
}
