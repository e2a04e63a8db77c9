package suspicion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) ApplyContribution(ctx context.Context, userID uuid.UUID, update ScoreUpdate) (*ContributionResult, error) {
	args := m.Called(ctx, userID, update)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ContributionResult), args.Error(1)
}

func (m *mockRepository) LinkAccounts(ctx context.Context, userID, linkedUserID uuid.UUID, method ScoreMethod, confidence float64) error {
	args := m.Called(ctx, userID, linkedUserID, method, confidence)
	return args.Error(0)
}

func (m *mockRepository) GetScore(ctx context.Context, userID uuid.UUID) (*SuspicionScore, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*SuspicionScore), args.Error(1)
}

func (m *mockRepository) GetScoreEvents(ctx context.Context, userID uuid.UUID, limit, offset int) ([]ScoreEvent, int64, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]ScoreEvent), args.Get(1).(int64), args.Error(2)
}

func (m *mockRepository) GetHighRiskUsers(ctx context.Context) ([]SuspicionScore, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]SuspicionScore), args.Error(1)
}

func (m *mockRepository) GetUsersByRiskLevel(ctx context.Context, level RiskLevel) ([]SuspicionScore, error) {
	args := m.Called(ctx, level)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]SuspicionScore), args.Error(1)
}

func (m *mockRepository) MarkAutoRestricted(ctx context.Context, userID uuid.UUID, reason string) error {
	args := m.Called(ctx, userID, reason)
	return args.Error(0)
}

func (m *mockRepository) ResetScore(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

type mockEnforcer struct {
	mock.Mock
}

func (m *mockEnforcer) EvaluateAutoRestrict(ctx context.Context, userID uuid.UUID, totalScore float64, breakdown map[string]float64) error {
	args := m.Called(ctx, userID, totalScore, breakdown)
	return args.Error(0)
}

func newTestService(repo RepositoryInterface) *Service {
	svc := NewService(repo, nil, time.Minute)
	// Short backoffs keep the retry tests fast.
	svc.retryCfg.InitialBackoff = time.Millisecond
	svc.retryCfg.MaxBackoff = 5 * time.Millisecond
	return svc
}

func TestUpdateScore_AppliesContributionAndLinks(t *testing.T) {
	repo := new(mockRepository)
	svc := newTestService(repo)

	userID := uuid.New()
	linkedID := uuid.New()
	update := ScoreUpdate{
		Method:        MethodIPMatch,
		Percentage:    30,
		Evidence:      "IP 203.0.113.7 shared by 2 accounts",
		LinkedUserIDs: []uuid.UUID{linkedID},
	}

	repo.On("ApplyContribution", mock.Anything, userID, update).
		Return(&ContributionResult{RawBefore: 0, RawAfter: 30, TotalScore: 30}, nil).Once()
	repo.On("LinkAccounts", mock.Anything, userID, linkedID, MethodIPMatch, defaultLinkConfidence).
		Return(nil).Once()

	result, err := svc.UpdateScore(context.Background(), userID, update)

	require.NoError(t, err)
	assert.Equal(t, 30.0, result.TotalScore)
	assert.Equal(t, RiskMedium, result.NewLevel())
	repo.AssertExpectations(t)
}

func TestUpdateScore_RejectsInvalidPercentage(t *testing.T) {
	repo := new(mockRepository)
	svc := newTestService(repo)

	_, err := svc.UpdateScore(context.Background(), uuid.New(), ScoreUpdate{
		Method:     MethodIPMatch,
		Percentage: 0,
	})
	assert.Error(t, err)

	_, err = svc.UpdateScore(context.Background(), uuid.New(), ScoreUpdate{
		Method:     MethodIPMatch,
		Percentage: 150,
	})
	assert.Error(t, err)

	repo.AssertNotCalled(t, "ApplyContribution")
}

func TestUpdateScore_RetriesTransientFailure(t *testing.T) {
	repo := new(mockRepository)
	svc := newTestService(repo)

	userID := uuid.New()
	update := ScoreUpdate{Method: MethodDeviceMatch, Percentage: 40, Evidence: "shared device"}

	repo.On("ApplyContribution", mock.Anything, userID, update).
		Return(nil, errors.New("connection reset")).Once()
	repo.On("ApplyContribution", mock.Anything, userID, update).
		Return(&ContributionResult{RawBefore: 0, RawAfter: 40, TotalScore: 40}, nil).Once()

	result, err := svc.UpdateScore(context.Background(), userID, update)

	require.NoError(t, err)
	assert.Equal(t, 40.0, result.TotalScore)
	repo.AssertExpectations(t)
}

func TestUpdateScore_FailsAfterRetriesExhausted(t *testing.T) {
	repo := new(mockRepository)
	svc := newTestService(repo)
	svc.retryCfg.MaxAttempts = 2

	userID := uuid.New()
	update := ScoreUpdate{Method: MethodDeviceMatch, Percentage: 40, Evidence: "shared device"}

	repo.On("ApplyContribution", mock.Anything, userID, update).
		Return(nil, errors.New("connection reset")).Twice()

	_, err := svc.UpdateScore(context.Background(), userID, update)

	assert.Error(t, err)
	repo.AssertExpectations(t)
}

func TestUpdateScore_TriggersEnforcementOnUpwardCrossing(t *testing.T) {
	repo := new(mockRepository)
	enforcer := new(mockEnforcer)
	svc := newTestService(repo)
	svc.SetEnforcer(enforcer)

	userID := uuid.New()
	update := ScoreUpdate{Method: MethodSamePayment, Percentage: 30, Evidence: "shared card"}

	// 30 -> 60 crosses medium -> high.
	repo.On("ApplyContribution", mock.Anything, userID, update).
		Return(&ContributionResult{RawBefore: 30, RawAfter: 60, TotalScore: 60}, nil).Once()
	repo.On("GetScore", mock.Anything, userID).
		Return(&SuspicionScore{
			UserID:         userID,
			TotalScore:     60,
			RiskLevel:      RiskHigh,
			ScoreBreakdown: map[ScoreMethod]float64{MethodIPMatch: 30, MethodSamePayment: 30},
		}, nil).Once()
	enforcer.On("EvaluateAutoRestrict", mock.Anything, userID, 60.0,
		map[string]float64{"ipMatch": 30, "samePayment": 30}).Return(nil).Once()

	_, err := svc.UpdateScore(context.Background(), userID, update)

	require.NoError(t, err)
	repo.AssertExpectations(t)
	enforcer.AssertExpectations(t)
}

func TestUpdateScore_NoEnforcementWithinSameTier(t *testing.T) {
	repo := new(mockRepository)
	enforcer := new(mockEnforcer)
	svc := newTestService(repo)
	svc.SetEnforcer(enforcer)

	userID := uuid.New()
	update := ScoreUpdate{Method: MethodSameCity, Percentage: 15, Evidence: "same city"}

	// 50 -> 65 stays within high; no re-trigger on later additions.
	repo.On("ApplyContribution", mock.Anything, userID, update).
		Return(&ContributionResult{RawBefore: 50, RawAfter: 65, TotalScore: 65}, nil).Once()

	_, err := svc.UpdateScore(context.Background(), userID, update)

	require.NoError(t, err)
	enforcer.AssertNotCalled(t, "EvaluateAutoRestrict")
}

func TestUpdateScore_NoEnforcementWhenAlreadyRestricted(t *testing.T) {
	repo := new(mockRepository)
	enforcer := new(mockEnforcer)
	svc := newTestService(repo)
	svc.SetEnforcer(enforcer)

	userID := uuid.New()
	update := ScoreUpdate{Method: MethodMirrorTrading, Percentage: 35, Evidence: "mirrored trades"}

	repo.On("ApplyContribution", mock.Anything, userID, update).
		Return(&ContributionResult{RawBefore: 60, RawAfter: 95, TotalScore: 95, AutoRestricted: true}, nil).Once()

	_, err := svc.UpdateScore(context.Background(), userID, update)

	require.NoError(t, err)
	enforcer.AssertNotCalled(t, "EvaluateAutoRestrict")
}

func TestUpdateScore_EnforcementFailureDoesNotSurface(t *testing.T) {
	repo := new(mockRepository)
	enforcer := new(mockEnforcer)
	svc := newTestService(repo)
	svc.SetEnforcer(enforcer)

	userID := uuid.New()
	update := ScoreUpdate{Method: MethodDeviceMatch, Percentage: 40, Evidence: "shared device"}

	repo.On("ApplyContribution", mock.Anything, userID, update).
		Return(&ContributionResult{RawBefore: 20, RawAfter: 60, TotalScore: 60}, nil).Once()
	repo.On("GetScore", mock.Anything, userID).
		Return(&SuspicionScore{UserID: userID, ScoreBreakdown: map[ScoreMethod]float64{}}, nil).Once()
	enforcer.On("EvaluateAutoRestrict", mock.Anything, userID, 60.0, mock.Anything).
		Return(errors.New("policy store down")).Once()

	result, err := svc.UpdateScore(context.Background(), userID, update)

	require.NoError(t, err, "enforcement is advisory to the scoring caller")
	assert.Equal(t, 60.0, result.TotalScore)
	enforcer.AssertExpectations(t)
}

func TestUpdateScoresForMultipleUsers_LinksEachToOthers(t *testing.T) {
	repo := new(mockRepository)
	svc := newTestService(repo)

	userA, userB, userC := uuid.New(), uuid.New(), uuid.New()
	users := []uuid.UUID{userA, userB, userC}
	update := ScoreUpdate{Method: MethodRapidCreation, Percentage: 20, Evidence: "3 accounts in 5m", Confidence: 0.6}

	for _, id := range users {
		id := id
		repo.On("ApplyContribution", mock.Anything, id, mock.MatchedBy(func(u ScoreUpdate) bool {
			return u.Method == MethodRapidCreation && len(u.LinkedUserIDs) == 2
		})).Return(&ContributionResult{RawBefore: 0, RawAfter: 20, TotalScore: 20}, nil).Once()
	}
	repo.On("LinkAccounts", mock.Anything, mock.Anything, mock.Anything, MethodRapidCreation, 0.6).
		Return(nil).Times(6)

	err := svc.UpdateScoresForMultipleUsers(context.Background(), users, update)

	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestUpdateScoresForMultipleUsers_ContinuesPastFailures(t *testing.T) {
	repo := new(mockRepository)
	svc := newTestService(repo)
	svc.retryCfg.MaxAttempts = 1

	userA, userB := uuid.New(), uuid.New()
	update := ScoreUpdate{Method: MethodCoordinatedEntry, Percentage: 25, Evidence: "lockstep entry"}

	repo.On("ApplyContribution", mock.Anything, userA, mock.Anything).
		Return(nil, errors.New("write failed")).Once()
	repo.On("ApplyContribution", mock.Anything, userB, mock.Anything).
		Return(&ContributionResult{RawBefore: 0, RawAfter: 25, TotalScore: 25}, nil).Once()
	repo.On("LinkAccounts", mock.Anything, userB, userA, MethodCoordinatedEntry, defaultLinkConfidence).
		Return(nil).Once()

	err := svc.UpdateScoresForMultipleUsers(context.Background(), []uuid.UUID{userA, userB}, update)

	assert.Error(t, err, "failed user surfaces in the joined error")
	repo.AssertExpectations(t)
}

func TestGetScore_UnknownUserGetsZeroRecord(t *testing.T) {
	repo := new(mockRepository)
	svc := newTestService(repo)

	userID := uuid.New()
	repo.On("GetScore", mock.Anything, userID).Return(nil, pgx.ErrNoRows).Once()

	score, err := svc.GetScore(context.Background(), userID)

	require.NoError(t, err)
	assert.Equal(t, userID, score.UserID)
	assert.Equal(t, 0.0, score.TotalScore)
	assert.Equal(t, RiskLow, score.RiskLevel)
	assert.Empty(t, score.LinkedAccounts)
}

func TestGetUsersByRiskLevel_RejectsUnknownLevel(t *testing.T) {
	repo := new(mockRepository)
	svc := newTestService(repo)

	_, err := svc.GetUsersByRiskLevel(context.Background(), RiskLevel("extreme"))

	assert.Error(t, err)
	repo.AssertNotCalled(t, "GetUsersByRiskLevel")
}
