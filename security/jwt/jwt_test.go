package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("s3cret")

	token, err := tm.GenerateAccessToken("jti-1", "user-1")
	require.NoError(t, err)

	userID, err := tm.UserIDFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestExpiredToken(t *testing.T) {
	tm := NewTokenManager("s3cret")

	token, err := tm.GenerateAccessToken("jti-1", "user-1", -time.Minute)
	require.NoError(t, err)

	_, err = tm.UserIDFromToken(token)
	assert.Error(t, err)
}

func TestWrongKey(t *testing.T) {
	token, err := NewTokenManager("a").GenerateAccessToken("jti-1", "user-1")
	require.NoError(t, err)

	_, err = NewTokenManager("b").UserIDFromToken(token)
	assert.Error(t, err)
}

func TestMissingKey(t *testing.T) {
	_, err := NewTokenManager("").GenerateAccessToken("jti", "u")
	assert.ErrorIs(t, err, ErrNeedTokenProvider)
}
