package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ratewatch/ratewatch/internal/cache"
	"github.com/ratewatch/ratewatch/internal/domain"
	apperrors "github.com/ratewatch/ratewatch/pkg/errors"
)

type mockCurrencyRepo struct {
	mock.Mock
}

func (m *mockCurrencyRepo) Upsert(ctx context.Context, c *domain.Currency) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *mockCurrencyRepo) GetByID(ctx context.Context, id string) (*domain.Currency, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Currency), args.Error(1)
}

func (m *mockCurrencyRepo) List(ctx context.Context) ([]domain.Currency, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Currency), args.Error(1)
}

func (m *mockCurrencyRepo) Update(ctx context.Context, c *domain.Currency) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *mockCurrencyRepo) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type mockCache struct {
	mock.Mock
}

func (m *mockCache) Get(ctx context.Context) ([]domain.Currency, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Currency), args.Error(1)
}

func (m *mockCache) Set(ctx context.Context, currencies []domain.Currency) error {
	args := m.Called(ctx, currencies)
	return args.Error(0)
}

func (m *mockCache) Invalidate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type mockEnqueuer struct {
	mock.Mock
}

func (m *mockEnqueuer) EnqueueCurrencyCreate(ctx context.Context, c *domain.Currency) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

type mockServiceNotifier struct {
	mock.Mock
}

func (m *mockServiceNotifier) PublishNotification(ctx context.Context, eventName string, payload any) error {
	args := m.Called(ctx, eventName, payload)
	return args.Error(0)
}

func newCurrencyFixture(t *testing.T) (*CurrencyService, *mockCurrencyRepo, *mockCache, *mockEnqueuer, *mockServiceNotifier) {
	t.Helper()
	repo := new(mockCurrencyRepo)
	c := new(mockCache)
	enq := new(mockEnqueuer)
	notifier := new(mockServiceNotifier)
	svc := NewCurrencyService(repo, c, enq, notifier, 5*time.Second, testAuthLogger())
	return svc, repo, c, enq, notifier
}

func TestList_CacheHit_NoStoreAccess(t *testing.T) {
	svc, repo, c, _, _ := newCurrencyFixture(t)
	cached := []domain.Currency{*domain.NewCurrency("Bitcoin", 70000, 60000)}
	c.On("Get", mock.Anything).Return(cached, nil)

	got, err := svc.List(context.Background())

	require.NoError(t, err)
	assert.Equal(t, cached, got)
	repo.AssertNotCalled(t, "List", mock.Anything)
}

func TestList_CacheMiss_ReadsStoreAndRepopulates(t *testing.T) {
	svc, repo, c, _, _ := newCurrencyFixture(t)
	stored := []domain.Currency{*domain.NewCurrency("Ethereum", 2500, 2400)}

	c.On("Get", mock.Anything).Return(nil, cache.ErrMiss)
	repo.On("List", mock.Anything).Return(stored, nil)
	c.On("Set", mock.Anything, stored).Return(nil)

	got, err := svc.List(context.Background())

	require.NoError(t, err)
	assert.Equal(t, stored, got)
	c.AssertExpectations(t)
}

func TestList_CacheUnavailable_FallsBackWithoutRepopulating(t *testing.T) {
	svc, repo, c, _, _ := newCurrencyFixture(t)
	stored := []domain.Currency{*domain.NewCurrency("Ethereum", 2500, 2400)}

	c.On("Get", mock.Anything).Return(nil, apperrors.ErrCacheUnavailable)
	repo.On("List", mock.Anything).Return(stored, nil)

	got, err := svc.List(context.Background())

	require.NoError(t, err)
	assert.Equal(t, stored, got)
	c.AssertNotCalled(t, "Set", mock.Anything, mock.Anything)
}

func TestCreate_EnqueuesAndInvalidates(t *testing.T) {
	svc, repo, c, enq, _ := newCurrencyFixture(t)

	enq.On("EnqueueCurrencyCreate", mock.Anything, mock.MatchedBy(func(cur *domain.Currency) bool {
		return cur.Name == "Bitcoin" && cur.ID != ""
	})).Return(nil)
	c.On("Invalidate", mock.Anything).Return(nil)

	got, err := svc.Create(context.Background(), CurrencyInput{Name: "Bitcoin", High: 70000, Low: 60000})

	require.NoError(t, err)
	assert.NotEmpty(t, got.ID)
	repo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
	enq.AssertExpectations(t)
	c.AssertExpectations(t)
}

func TestCreate_EnqueueFailure_NoInvalidation(t *testing.T) {
	svc, _, c, enq, _ := newCurrencyFixture(t)

	enq.On("EnqueueCurrencyCreate", mock.Anything, mock.Anything).Return(errors.New("broker unreachable"))

	got, err := svc.Create(context.Background(), CurrencyInput{Name: "Bitcoin", High: 70000, Low: 60000})

	assert.Nil(t, got)
	assert.True(t, errors.Is(err, apperrors.ErrEnqueueFailed), "expected EnqueueFailed, got: %v", err)
	c.AssertNotCalled(t, "Invalidate", mock.Anything)
}

func TestUpdate_InvalidatesAndBroadcasts(t *testing.T) {
	svc, repo, c, _, notifier := newCurrencyFixture(t)
	existing := domain.NewCurrency("Bitcon", 1, 1)

	repo.On("GetByID", mock.Anything, existing.ID).Return(existing, nil)
	repo.On("Update", mock.Anything, mock.MatchedBy(func(cur *domain.Currency) bool {
		return cur.Name == "Bitcoin" && cur.High == 70000
	})).Return(nil)
	c.On("Invalidate", mock.Anything).Return(nil)
	notifier.On("PublishNotification", mock.Anything, domain.EventCurrencyChanged, mock.Anything).Return(nil)

	got, err := svc.Update(context.Background(), existing.ID, CurrencyInput{Name: "Bitcoin", High: 70000, Low: 60000})

	require.NoError(t, err)
	assert.Equal(t, "Bitcoin", got.Name)
	notifier.AssertExpectations(t)
	c.AssertExpectations(t)
}

func TestUpdate_NotFound(t *testing.T) {
	svc, repo, c, _, notifier := newCurrencyFixture(t)

	repo.On("GetByID", mock.Anything, "missing").Return(nil, apperrors.NotFound("currency", "missing"))

	_, err := svc.Update(context.Background(), "missing", CurrencyInput{Name: "X"})

	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	c.AssertNotCalled(t, "Invalidate", mock.Anything)
	notifier.AssertNotCalled(t, "PublishNotification", mock.Anything, mock.Anything, mock.Anything)
}

func TestDelete_InvalidatesAndBroadcasts(t *testing.T) {
	svc, repo, c, _, notifier := newCurrencyFixture(t)

	repo.On("Delete", mock.Anything, "cur-1").Return(nil)
	c.On("Invalidate", mock.Anything).Return(nil)
	notifier.On("PublishNotification", mock.Anything, domain.EventCurrencyChanged, mock.Anything).Return(nil)

	require.NoError(t, svc.Delete(context.Background(), "cur-1"))
	notifier.AssertExpectations(t)
}

func TestDelete_NotFound(t *testing.T) {
	svc, repo, c, _, _ := newCurrencyFixture(t)

	repo.On("Delete", mock.Anything, "missing").Return(apperrors.NotFound("currency", "missing"))

	err := svc.Delete(context.Background(), "missing")

	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	c.AssertNotCalled(t, "Invalidate", mock.Anything)
}

func TestDelete_BroadcastFailureAbsorbed(t *testing.T) {
	svc, repo, c, _, notifier := newCurrencyFixture(t)

	repo.On("Delete", mock.Anything, "cur-1").Return(nil)
	c.On("Invalidate", mock.Anything).Return(nil)
	notifier.On("PublishNotification", mock.Anything, domain.EventCurrencyChanged, mock.Anything).Return(errors.New("broker down"))

	// The store delete already happened; a failed broadcast never fails the
	// request.
	assert.NoError(t, svc.Delete(context.Background(), "cur-1"))
}
