package utils

import (
	"testing"

	"go-qtbridge/pkg/config"

	"github.com/stretchr/testify/assert"
)

func TestPairTokenRoundTrip(t *testing.T) {
	assert.NoError(t, config.InitTest())

	token, err := GeneratePairToken(7, "10086")
	assert.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := ParsePairToken(token)
	assert.NoError(t, err)
	assert.Equal(t, uint(7), claims.PairID)
	assert.Equal(t, "10086", claims.SenderID)
}

func TestParsePairToken_Tampered(t *testing.T) {
	assert.NoError(t, config.InitTest())

	token, err := GeneratePairToken(7, "10086")
	assert.NoError(t, err)

	_, err = ParsePairToken(token + "x")
	assert.Error(t, err)

	_, err = ParsePairToken("not-a-token")
	assert.Error(t, err)
}

func TestCacheKeyStable(t *testing.T) {
	a := CacheKey([]byte("sticker bytes"))
	b := CacheKey([]byte("sticker bytes"))
	c := CacheKey([]byte("other bytes"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 24)
}
