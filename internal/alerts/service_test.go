package alerts

import (
	"context"
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

func (m *mockRepository) CreateOrMerge(ctx context.Context, input CreateAlertInput) (*FraudAlert, bool, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, false, args.Error(2)
	}
	return args.Get(0).(*FraudAlert), args.Bool(1), args.Error(2)
}

func (m *mockRepository) GetByID(ctx context.Context, id uuid.UUID) (*FraudAlert, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*FraudAlert), args.Error(1)
}

func (m *mockRepository) List(ctx context.Context, status AlertStatus, limit, offset int) ([]FraudAlert, int64, error) {
	args := m.Called(ctx, status, limit, offset)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]FraudAlert), args.Get(1).(int64), args.Error(2)
}

func (m *mockRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]FraudAlert, int64, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]FraudAlert), args.Get(1).(int64), args.Error(2)
}

func (m *mockRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status AlertStatus, adminID *uuid.UUID, notes string) (*FraudAlert, error) {
	args := m.Called(ctx, id, status, adminID, notes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*FraudAlert), args.Error(1)
}

func TestCanonicalUserSetKey_OrderIndependent(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	key1 := CanonicalUserSetKey([]uuid.UUID{a, b, c})
	key2 := CanonicalUserSetKey([]uuid.UUID{c, a, b})

	assert.Equal(t, key1, key2)
}

func TestUnionUsers_DeduplicatesAndSorts(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	merged := UnionUsers([]uuid.UUID{a, b}, []uuid.UUID{b, c})

	assert.Len(t, merged, 3)
	assert.Equal(t, CanonicalUserSetKey([]uuid.UUID{a, b, c}), CanonicalUserSetKey(merged))
}

func TestMaxSeverity(t *testing.T) {
	assert.Equal(t, SeverityCritical, MaxSeverity(SeverityHigh, SeverityCritical))
	assert.Equal(t, SeverityHigh, MaxSeverity(SeverityHigh, SeverityLow))
	assert.Equal(t, SeverityMedium, MaxSeverity(SeverityLow, SeverityMedium))
}

func TestCreateOrUpdateAlert_NewAlert(t *testing.T) {
	repo := new(mockRepository)
	svc := NewService(repo)

	users := []uuid.UUID{uuid.New(), uuid.New()}
	input := CreateAlertInput{
		AlertType:  AlertTypeSharedPayment,
		UserIDs:    users,
		Title:      "Shared payment instrument",
		Severity:   SeverityHigh,
		Confidence: 0.9,
	}

	repo.On("CreateOrMerge", mock.Anything, input).
		Return(&FraudAlert{
			ID:        uuid.New(),
			AlertType: AlertTypeSharedPayment,
			UserIDs:   users,
			Severity:  SeverityHigh,
			Status:    StatusOpen,
		}, false, nil).Once()

	alert, merged, err := svc.CreateOrUpdateAlert(context.Background(), input)

	require.NoError(t, err)
	assert.False(t, merged)
	assert.Equal(t, StatusOpen, alert.Status)
	repo.AssertExpectations(t)
}

func TestCreateOrUpdateAlert_MergedDetection(t *testing.T) {
	repo := new(mockRepository)
	svc := NewService(repo)

	users := []uuid.UUID{uuid.New(), uuid.New()}
	input := CreateAlertInput{
		AlertType: AlertTypeMultiAccount,
		UserIDs:   users,
		Severity:  SeverityMedium,
	}

	repo.On("CreateOrMerge", mock.Anything, input).
		Return(&FraudAlert{
			ID:        uuid.New(),
			AlertType: AlertTypeMultiAccount,
			UserIDs:   users,
			Severity:  SeverityHigh, // kept from the existing alert
			Status:    StatusInvestigating,
		}, true, nil).Once()

	alert, merged, err := svc.CreateOrUpdateAlert(context.Background(), input)

	require.NoError(t, err)
	assert.True(t, merged)
	assert.Equal(t, SeverityHigh, alert.Severity)
}

func TestCreateOrUpdateAlert_RequiresUsers(t *testing.T) {
	repo := new(mockRepository)
	svc := NewService(repo)

	_, _, err := svc.CreateOrUpdateAlert(context.Background(), CreateAlertInput{
		AlertType: AlertTypeMultiAccount,
	})

	assert.Error(t, err)
	repo.AssertNotCalled(t, "CreateOrMerge")
}

func TestTransitionStatus_OpenToInvestigating(t *testing.T) {
	repo := new(mockRepository)
	svc := NewService(repo)

	id := uuid.New()
	repo.On("GetByID", mock.Anything, id).
		Return(&FraudAlert{ID: id, Status: StatusOpen}, nil).Once()
	repo.On("UpdateStatus", mock.Anything, id, StatusInvestigating, (*uuid.UUID)(nil), "").
		Return(&FraudAlert{ID: id, Status: StatusInvestigating}, nil).Once()

	alert, err := svc.TransitionStatus(context.Background(), id, StatusInvestigating, nil, "")

	require.NoError(t, err)
	assert.Equal(t, StatusInvestigating, alert.Status)
	repo.AssertExpectations(t)
}

func TestTransitionStatus_ResolveRequiresAdmin(t *testing.T) {
	repo := new(mockRepository)
	svc := NewService(repo)

	id := uuid.New()
	repo.On("GetByID", mock.Anything, id).
		Return(&FraudAlert{ID: id, Status: StatusInvestigating}, nil).Once()

	_, err := svc.TransitionStatus(context.Background(), id, StatusResolved, nil, "looks fine")

	assert.Error(t, err)
	repo.AssertNotCalled(t, "UpdateStatus")
}

func TestTransitionStatus_TerminalAlertRejected(t *testing.T) {
	repo := new(mockRepository)
	svc := NewService(repo)

	id := uuid.New()
	admin := uuid.New()
	resolvedAt := time.Now()
	repo.On("GetByID", mock.Anything, id).
		Return(&FraudAlert{ID: id, Status: StatusResolved, ResolvedAt: &resolvedAt}, nil).Once()

	_, err := svc.TransitionStatus(context.Background(), id, StatusDismissed, &admin, "")

	assert.Error(t, err)
	repo.AssertNotCalled(t, "UpdateStatus")
}

func TestTransitionStatus_ReopenRejected(t *testing.T) {
	repo := new(mockRepository)
	svc := NewService(repo)

	_, err := svc.TransitionStatus(context.Background(), uuid.New(), StatusOpen, nil, "")

	assert.Error(t, err)
	repo.AssertNotCalled(t, "GetByID")
}

func TestGetAlert_NotFound(t *testing.T) {
	repo := new(mockRepository)
	svc := NewService(repo)

	id := uuid.New()
	repo.On("GetByID", mock.Anything, id).Return(nil, pgx.ErrNoRows).Once()

	_, err := svc.GetAlert(context.Background(), id)

	assert.Error(t, err)
}
