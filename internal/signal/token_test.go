package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triwhist/internal/engine"
)

func TestSessionTokenRoundTrip(t *testing.T) {
	secret := []byte("table-secret")
	raw, err := NewSessionToken(secret, engine.SeatTwo, "friday-game", time.Hour)
	require.NoError(t, err)

	claims, err := ParseSessionToken(secret, raw)
	require.NoError(t, err)
	assert.Equal(t, engine.SeatTwo, claims.Seat)
	assert.Equal(t, "friday-game", claims.Table)
	assert.NotEmpty(t, claims.ID)
}

func TestSessionTokenRejectsWrongSecret(t *testing.T) {
	raw, err := NewSessionToken([]byte("right"), engine.SeatOne, "t", time.Hour)
	require.NoError(t, err)
	_, err = ParseSessionToken([]byte("wrong"), raw)
	assert.Error(t, err)
}

func TestSessionTokenRejectsExpired(t *testing.T) {
	secret := []byte("s")
	raw, err := NewSessionToken(secret, engine.SeatOne, "t", -time.Minute)
	require.NoError(t, err)
	_, err = ParseSessionToken(secret, raw)
	assert.Error(t, err)
}

func TestSessionTokenRejectsGarbage(t *testing.T) {
	_, err := ParseSessionToken([]byte("s"), "not-a-token")
	assert.Error(t, err)
}

func TestPairKeyFormat(t *testing.T) {
	r := NewRelay(nil, engine.SeatOne, "sig", quietTestLogger())
	assert.Equal(t, "sig:0_to_1", r.pairKey(engine.SeatOne, engine.SeatTwo))
	assert.Equal(t, "sig:1_to_0:candidates", r.candidatesKey(engine.SeatTwo, engine.SeatOne))
	assert.Equal(t, "sig:events:2", r.channel(engine.SeatThree))
}
