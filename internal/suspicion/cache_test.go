package suspicion

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/quantpit/trading-arena/pkg/redis"
)

func TestGetScore_ServedFromCache(t *testing.T) {
	db, redisMock := redismock.NewClientMock()
	cache := &redis.Client{Client: db}

	repo := new(mockRepository)
	svc := NewService(repo, cache, time.Minute)

	userID := uuid.New()
	cached := &SuspicionScore{
		UserID:         userID,
		TotalScore:     55,
		RiskLevel:      RiskHigh,
		ScoreBreakdown: map[ScoreMethod]float64{MethodDeviceMatch: 40, MethodSameCity: 15},
	}
	raw, err := json.Marshal(cached)
	require.NoError(t, err)

	redisMock.ExpectGet(scoreCacheKey(userID)).SetVal(string(raw))

	score, err := svc.GetScore(context.Background(), userID)

	require.NoError(t, err)
	assert.Equal(t, 55.0, score.TotalScore)
	assert.Equal(t, RiskHigh, score.RiskLevel)
	repo.AssertNotCalled(t, "GetScore")
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestUpdateScore_InvalidatesCache(t *testing.T) {
	db, redisMock := redismock.NewClientMock()
	cache := &redis.Client{Client: db}

	repo := new(mockRepository)
	svc := NewService(repo, cache, time.Minute)
	svc.retryCfg.InitialBackoff = time.Millisecond

	userID := uuid.New()
	update := ScoreUpdate{Method: MethodSameCity, Percentage: 15, Evidence: "same city"}

	repo.On("ApplyContribution", mock.Anything, userID, update).
		Return(&ContributionResult{RawBefore: 0, RawAfter: 15, TotalScore: 15}, nil).Once()
	redisMock.ExpectDel(scoreCacheKey(userID)).SetVal(1)

	_, err := svc.UpdateScore(context.Background(), userID, update)

	require.NoError(t, err)
	assert.NoError(t, redisMock.ExpectationsWereMet())
	repo.AssertExpectations(t)
}
