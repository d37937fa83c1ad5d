package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveKeyDeterministic(t *testing.T) {
	params := DefaultArgon2Params()
	secret := []byte("state-secret")
	salt := bytes.Repeat([]byte{0xA5}, 16)

	key1, err := DeriveKey(secret, salt, params)
	require.NoError(t, err)
	key2, err := DeriveKey(secret, salt, params)
	require.NoError(t, err)

	require.Equal(t, key1, key2)
	require.Len(t, key1, int(params.KeyLength))
}

func TestDeriveKeyDifferentSalts(t *testing.T) {
	params := DefaultArgon2Params()
	secret := []byte("state-secret")

	keyA, err := DeriveKey(secret, bytes.Repeat([]byte{0x01}, 16), params)
	require.NoError(t, err)
	keyB, err := DeriveKey(secret, bytes.Repeat([]byte{0x02}, 16), params)
	require.NoError(t, err)

	require.NotEqual(t, keyA, keyB)
}

func TestDeriveKeyValidatesInput(t *testing.T) {
	params := DefaultArgon2Params()
	salt := bytes.Repeat([]byte{0x01}, 16)

	_, err := DeriveKey(nil, salt, params)
	require.Error(t, err)

	_, err = DeriveKey([]byte("secret"), []byte("short"), params)
	require.Error(t, err)

	bad := params
	bad.KeyLength = 20
	_, err = DeriveKey([]byte("secret"), salt, bad)
	require.Error(t, err)
}
