package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/verifolio/internal/cache"
)

var testStateKey = []byte("0123456789abcdef0123456789abcdef")

func TestStateCodecRoundTrip(t *testing.T) {
	codec, err := NewStateCodec(testStateKey, time.Minute, nil)
	require.NoError(t, err)

	token, err := codec.Encode(StatePayload{Provider: "Google", Mode: ModePopup, Nonce: "nonce", PKCE: "verifier"})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	payload, err := codec.Decode(token)
	require.NoError(t, err)
	require.Equal(t, "google", payload.Provider)
	require.Equal(t, ModePopup, payload.Mode)
	require.Equal(t, "nonce", payload.Nonce)
	require.Equal(t, "verifier", payload.PKCE)
}

func TestStateCodecDefaultsToRedirectMode(t *testing.T) {
	codec, err := NewStateCodec(testStateKey, time.Minute, nil)
	require.NoError(t, err)

	token, err := codec.Encode(StatePayload{Provider: "google", Mode: "bogus", Nonce: "n", PKCE: "p"})
	require.NoError(t, err)

	payload, err := codec.Decode(token)
	require.NoError(t, err)
	require.Equal(t, ModeRedirect, payload.Mode)
}

func TestStateCodecExpiredAndTampered(t *testing.T) {
	current := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	codec, err := NewStateCodec(testStateKey, time.Minute, func() time.Time { return current })
	require.NoError(t, err)

	token, err := codec.Encode(StatePayload{Provider: "google", Nonce: "n", PKCE: "p"})
	require.NoError(t, err)

	tampered := []byte(token)
	if tampered[20] == 'A' {
		tampered[20] = 'B'
	} else {
		tampered[20] = 'A'
	}
	_, err = codec.Decode(string(tampered))
	require.ErrorIs(t, err, ErrStateInvalid)

	other, err := NewStateCodec([]byte("fedcba9876543210fedcba9876543210"), time.Minute, nil)
	require.NoError(t, err)
	_, err = other.Decode(token)
	require.ErrorIs(t, err, ErrStateInvalid)

	current = current.Add(2 * time.Minute)
	_, err = codec.Decode(token)
	require.ErrorIs(t, err, ErrStateExpired)
}

func TestNewStateCodecRejectsBadKey(t *testing.T) {
	_, err := NewStateCodec([]byte("short"), time.Minute, nil)
	require.Error(t, err)
}

func TestStateGuardRejectsReplay(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := cache.NewRedisStore(context.Background(), cache.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	guard := NewStateGuard(store, time.Minute)
	payload := StatePayload{Provider: "google", Nonce: "once"}

	require.NoError(t, guard.Consume(context.Background(), payload))
	require.ErrorIs(t, guard.Consume(context.Background(), payload), ErrStateReplayed)
	require.NoError(t, guard.Consume(context.Background(), StatePayload{Provider: "google", Nonce: "other"}))

	mr.FastForward(2 * time.Minute)
	require.NoError(t, guard.Consume(context.Background(), payload))
}
