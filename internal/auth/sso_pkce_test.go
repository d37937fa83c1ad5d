package auth

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGeneratePKCE(t *testing.T) {
	pair, err := GeneratePKCE()
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(pair.Verifier), 43)
	require.Equal(t, pkceChallenge(pair.Verifier), pair.Challenge)

	other, err := GeneratePKCE()
	require.NoError(t, err)
	require.NotEqual(t, pair.Verifier, other.Verifier)
}
