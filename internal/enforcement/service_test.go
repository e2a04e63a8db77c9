package enforcement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/quantpit/trading-arena/internal/alerts"
	"github.com/quantpit/trading-arena/internal/history"
)

type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) GetPolicySettings(ctx context.Context) (*PolicySettings, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*PolicySettings), args.Error(1)
}

func (m *mockRepository) UpsertPolicySettings(ctx context.Context, settings *PolicySettings) (*PolicySettings, error) {
	args := m.Called(ctx, settings)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*PolicySettings), args.Error(1)
}

func (m *mockRepository) ClaimRestriction(ctx context.Context, restriction *UserRestriction) (bool, error) {
	args := m.Called(ctx, restriction)
	if args.Bool(0) && restriction.ID == uuid.Nil {
		restriction.ID = uuid.New()
	}
	return args.Bool(0), args.Error(1)
}

func (m *mockRepository) GetActiveRestriction(ctx context.Context, userID uuid.UUID) (*UserRestriction, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*UserRestriction), args.Error(1)
}

func (m *mockRepository) ListActiveRestrictions(ctx context.Context, limit, offset int) ([]UserRestriction, int64, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]UserRestriction), args.Get(1).(int64), args.Error(2)
}

func (m *mockRepository) LiftRestriction(ctx context.Context, restrictionID, adminID uuid.UUID) (*UserRestriction, error) {
	args := m.Called(ctx, restrictionID, adminID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*UserRestriction), args.Error(1)
}

type mockAlertRaiser struct {
	mock.Mock
}

func (m *mockAlertRaiser) CreateOrUpdateAlert(ctx context.Context, input alerts.CreateAlertInput) (*alerts.FraudAlert, bool, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, false, args.Error(2)
	}
	return args.Get(0).(*alerts.FraudAlert), args.Bool(1), args.Error(2)
}

type mockHistoryRecorder struct {
	mock.Mock
}

func (m *mockHistoryRecorder) Record(ctx context.Context, entry *history.Entry) (*history.Entry, error) {
	args := m.Called(ctx, entry)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*history.Entry), args.Error(1)
}

type mockScoreMarker struct {
	mock.Mock
}

func (m *mockScoreMarker) MarkAutoRestricted(ctx context.Context, userID uuid.UUID, reason string) error {
	args := m.Called(ctx, userID, reason)
	return args.Error(0)
}

func newTestService() (*Service, *mockRepository, *mockAlertRaiser, *mockHistoryRecorder, *mockScoreMarker) {
	repo := new(mockRepository)
	alertSvc := new(mockAlertRaiser)
	historySvc := new(mockHistoryRecorder)
	marker := new(mockScoreMarker)
	svc := NewService(repo, alertSvc, historySvc, marker, 7)
	return svc, repo, alertSvc, historySvc, marker
}

func TestEvaluateAutoRestrict_NoSettingsMeansNoAction(t *testing.T) {
	svc, repo, alertSvc, historySvc, marker := newTestService()

	// No policy was ever configured; even a maximal score is a no-op.
	repo.On("GetPolicySettings", mock.Anything).Return(nil, nil).Once()

	err := svc.EvaluateAutoRestrict(context.Background(), uuid.New(), 95, nil)

	require.NoError(t, err)
	repo.AssertNotCalled(t, "ClaimRestriction")
	alertSvc.AssertNotCalled(t, "CreateOrUpdateAlert")
	historySvc.AssertNotCalled(t, "Record")
	marker.AssertNotCalled(t, "MarkAutoRestricted")
}

func TestEvaluateAutoRestrict_DisabledPolicyMeansNoAction(t *testing.T) {
	svc, repo, _, _, _ := newTestService()

	repo.On("GetPolicySettings", mock.Anything).
		Return(&PolicySettings{AutoSuspendEnabled: false, AutoSuspendThreshold: 50}, nil).Once()

	err := svc.EvaluateAutoRestrict(context.Background(), uuid.New(), 95, nil)

	require.NoError(t, err)
	repo.AssertNotCalled(t, "ClaimRestriction")
}

func TestEvaluateAutoRestrict_BelowThresholdMeansNoAction(t *testing.T) {
	svc, repo, _, _, _ := newTestService()

	repo.On("GetPolicySettings", mock.Anything).
		Return(&PolicySettings{AutoSuspendEnabled: true, AutoSuspendThreshold: 70}, nil).Once()

	err := svc.EvaluateAutoRestrict(context.Background(), uuid.New(), 55, nil)

	require.NoError(t, err)
	repo.AssertNotCalled(t, "ClaimRestriction")
}

func TestEvaluateAutoRestrict_RestrictsAboveThreshold(t *testing.T) {
	svc, repo, alertSvc, historySvc, marker := newTestService()

	userID := uuid.New()
	breakdown := map[string]float64{"deviceMatch": 40, "samePayment": 30}

	repo.On("GetPolicySettings", mock.Anything).
		Return(&PolicySettings{AutoSuspendEnabled: true, AutoSuspendThreshold: 50}, nil).Once()
	repo.On("ClaimRestriction", mock.Anything, mock.MatchedBy(func(r *UserRestriction) bool {
		return r.UserID == userID &&
			r.Type == RestrictionSuspended &&
			r.Reason == ReasonAutomated &&
			!r.CanTrade && !r.CanDeposit && !r.CanWithdraw && !r.CanJoinCompetitions &&
			r.ExpiresAt != nil && time.Until(*r.ExpiresAt) > 6*24*time.Hour
	})).Return(true, nil).Once()
	marker.On("MarkAutoRestricted", mock.Anything, userID, ReasonAutomated).Return(nil).Once()
	alertSvc.On("CreateOrUpdateAlert", mock.Anything, mock.MatchedBy(func(input alerts.CreateAlertInput) bool {
		return input.AlertType == alerts.AlertTypeAutoRestriction &&
			input.Severity == alerts.SeverityCritical &&
			input.Confidence == 0.95 &&
			input.InitialStatus == alerts.StatusInvestigating &&
			len(input.Evidence) == 1 &&
			input.Evidence[0].Type == alerts.EvidenceScoreBreakdown
	})).Return(&alerts.FraudAlert{ID: uuid.New()}, false, nil).Once()
	historySvc.On("Record", mock.Anything, mock.MatchedBy(func(e *history.Entry) bool {
		return e.UserID == userID &&
			e.ActionType == history.ActionSuspension &&
			e.PerformedBy == history.ActorAutomated &&
			e.ScoreAtAction == 70.0 &&
			e.RestrictionID != nil && e.AlertID != nil
	})).Return(&history.Entry{ID: 1}, nil).Once()

	err := svc.EvaluateAutoRestrict(context.Background(), userID, 70, breakdown)

	require.NoError(t, err)
	repo.AssertExpectations(t)
	alertSvc.AssertExpectations(t)
	historySvc.AssertExpectations(t)
	marker.AssertExpectations(t)
}

func TestEvaluateAutoRestrict_LostRaceSkipsFollowUps(t *testing.T) {
	svc, repo, alertSvc, historySvc, marker := newTestService()

	repo.On("GetPolicySettings", mock.Anything).
		Return(&PolicySettings{AutoSuspendEnabled: true, AutoSuspendThreshold: 50}, nil).Once()
	repo.On("ClaimRestriction", mock.Anything, mock.Anything).Return(false, nil).Once()

	err := svc.EvaluateAutoRestrict(context.Background(), uuid.New(), 80, nil)

	require.NoError(t, err)
	alertSvc.AssertNotCalled(t, "CreateOrUpdateAlert")
	historySvc.AssertNotCalled(t, "Record")
	marker.AssertNotCalled(t, "MarkAutoRestricted")
}

func TestEvaluateAutoRestrict_FollowUpFailuresDoNotUndoRestriction(t *testing.T) {
	svc, repo, alertSvc, historySvc, marker := newTestService()

	userID := uuid.New()
	repo.On("GetPolicySettings", mock.Anything).
		Return(&PolicySettings{AutoSuspendEnabled: true, AutoSuspendThreshold: 50}, nil).Once()
	repo.On("ClaimRestriction", mock.Anything, mock.Anything).Return(true, nil).Once()
	marker.On("MarkAutoRestricted", mock.Anything, userID, ReasonAutomated).
		Return(errors.New("score store down")).Once()
	alertSvc.On("CreateOrUpdateAlert", mock.Anything, mock.Anything).
		Return(nil, false, errors.New("alert store down")).Once()
	historySvc.On("Record", mock.Anything, mock.MatchedBy(func(e *history.Entry) bool {
		// No alert ID when the alert write failed.
		return e.AlertID == nil
	})).Return(nil, errors.New("history store down")).Once()

	err := svc.EvaluateAutoRestrict(context.Background(), userID, 90, nil)

	require.NoError(t, err, "the restriction stands regardless of follow-up failures")
	repo.AssertExpectations(t)
}

func TestApplyManualRestriction_ConflictWhenAlreadyRestricted(t *testing.T) {
	svc, repo, _, historySvc, _ := newTestService()

	repo.On("ClaimRestriction", mock.Anything, mock.Anything).Return(false, nil).Once()

	_, err := svc.ApplyManualRestriction(context.Background(), uuid.New(), RestrictionBanned, "chargeback fraud", uuid.New(), 0)

	assert.Error(t, err)
	historySvc.AssertNotCalled(t, "Record")
}

func TestApplyManualRestriction_RecordsBanInHistory(t *testing.T) {
	svc, repo, _, historySvc, _ := newTestService()

	userID, adminID := uuid.New(), uuid.New()
	repo.On("ClaimRestriction", mock.Anything, mock.MatchedBy(func(r *UserRestriction) bool {
		return r.UserID == userID && r.Type == RestrictionBanned && r.CreatedBy == history.ActorAdmin
	})).Return(true, nil).Once()
	historySvc.On("Record", mock.Anything, mock.MatchedBy(func(e *history.Entry) bool {
		return e.ActionType == history.ActionBan && e.PerformedByID != nil && *e.PerformedByID == adminID
	})).Return(&history.Entry{ID: 1}, nil).Once()

	restriction, err := svc.ApplyManualRestriction(context.Background(), userID, RestrictionBanned, "chargeback fraud", adminID, 0)

	require.NoError(t, err)
	assert.Nil(t, restriction.ExpiresAt, "bans without days never expire")
	historySvc.AssertExpectations(t)
}

func TestLiftRestriction_RecordsLift(t *testing.T) {
	svc, repo, _, historySvc, _ := newTestService()

	restrictionID, adminID, userID := uuid.New(), uuid.New(), uuid.New()
	repo.On("LiftRestriction", mock.Anything, restrictionID, adminID).
		Return(&UserRestriction{ID: restrictionID, UserID: userID, Type: RestrictionSuspended, IsActive: false}, nil).Once()
	historySvc.On("Record", mock.Anything, mock.MatchedBy(func(e *history.Entry) bool {
		return e.UserID == userID && e.ActionType == history.ActionLift
	})).Return(&history.Entry{ID: 2}, nil).Once()

	_, err := svc.LiftRestriction(context.Background(), restrictionID, adminID, "cleared after review")

	require.NoError(t, err)
	historySvc.AssertExpectations(t)
}

func TestGetRestrictionStatus_ExpiredReportsUnrestricted(t *testing.T) {
	svc, repo, _, _, _ := newTestService()

	userID := uuid.New()
	expired := time.Now().Add(-time.Hour)
	repo.On("GetActiveRestriction", mock.Anything, userID).
		Return(&UserRestriction{UserID: userID, IsActive: true, ExpiresAt: &expired}, nil).Once()

	restricted, _, err := svc.GetRestrictionStatus(context.Background(), userID)

	require.NoError(t, err)
	assert.False(t, restricted)
}

func TestGetPolicySettings_DefaultsWhenUnset(t *testing.T) {
	svc, repo, _, _, _ := newTestService()

	repo.On("GetPolicySettings", mock.Anything).Return(nil, nil).Once()

	settings, err := svc.GetPolicySettings(context.Background())

	require.NoError(t, err)
	assert.False(t, settings.AutoSuspendEnabled)
	assert.Equal(t, float64(DefaultAutoSuspendThreshold), settings.AutoSuspendThreshold)
}

func TestUpdatePolicySettings_RejectsBadThreshold(t *testing.T) {
	svc, repo, _, _, _ := newTestService()

	_, err := svc.UpdatePolicySettings(context.Background(), &PolicySettings{
		AutoSuspendEnabled:   true,
		AutoSuspendThreshold: 150,
	})

	assert.Error(t, err)
	repo.AssertNotCalled(t, "UpsertPolicySettings")
}
