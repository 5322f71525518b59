package redis

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chartsayer/positionbot/internal/domain"
)

func TestKeyLayout(t *testing.T) {
	assert.Equal(t, "position:abc-123", positionKey("abc-123"))
	assert.Equal(t, "position:user:discord:42", userIndexKey(domain.PlatformDiscord, "42"))
	assert.Equal(t, "position:symbol:telegram:42:BTCUSDT",
		symbolIndexKey(domain.PlatformTelegram, "42", "BTCUSDT"))
}

func TestIndexKeysCoverRecordAndBothIndexes(t *testing.T) {
	s := &PositionStore{}
	pos := domain.Position{
		ID:       "abc-123",
		Platform: domain.PlatformDiscord,
		UserID:   "42",
		Symbol:   "ETHUSDT",
	}

	keys := s.indexKeys(pos)
	assert.Equal(t, []string{
		"position:abc-123",
		"position:user:discord:42",
		"position:symbol:discord:42:ETHUSDT",
	}, keys)
}

func TestStoreErrMatchesBothSentinelAndCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := storeErr("get position:abc", cause)

	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "get position:abc")
}
