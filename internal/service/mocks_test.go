package service

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/feedbackhub/review-attribution-service/internal/dispatch"
	"github.com/feedbackhub/review-attribution-service/internal/domain"
	"github.com/feedbackhub/review-attribution-service/internal/repository"
	"github.com/feedbackhub/review-attribution-service/internal/scraper"
	"github.com/stretchr/testify/mock"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type RequestRepositoryMock struct {
	mock.Mock
}

var _ repository.RequestRepository = (*RequestRepositoryMock)(nil)

func (m *RequestRepositoryMock) Create(ctx context.Context, req *domain.ReviewRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *RequestRepositoryMock) GetByID(ctx context.Context, requestID string) (*domain.ReviewRequest, error) {
	args := m.Called(ctx, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*domain.ReviewRequest), args.Error(1)
}

func (m *RequestRepositoryMock) MarkOpened(ctx context.Context, requestID string, openedAt time.Time) (bool, error) {
	args := m.Called(ctx, requestID, openedAt)
	return args.Bool(0), args.Error(1)
}

func (m *RequestRepositoryMock) SetClicked(ctx context.Context, requestID string, platform domain.Platform, clickedAt time.Time) (bool, error) {
	args := m.Called(ctx, requestID, platform, clickedAt)
	return args.Bool(0), args.Error(1)
}

func (m *RequestRepositoryMock) SetRating(ctx context.Context, requestID string, rating int, status domain.Status, reviewedAt time.Time) error {
	args := m.Called(ctx, requestID, rating, status, reviewedAt)
	return args.Error(0)
}

func (m *RequestRepositoryMock) SetFeedback(ctx context.Context, requestID string, feedback string) error {
	args := m.Called(ctx, requestID, feedback)
	return args.Error(0)
}

func (m *RequestRepositoryMock) LinkExternalReview(ctx context.Context, requestID string, externalReviewID int64) (bool, error) {
	args := m.Called(ctx, requestID, externalReviewID)
	return args.Bool(0), args.Error(1)
}

func (m *RequestRepositoryMock) FindLatestUnrated(ctx context.Context, businessID string, sentAfter time.Time) (*domain.ReviewRequest, error) {
	args := m.Called(ctx, businessID, sentAfter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*domain.ReviewRequest), args.Error(1)
}

func (m *RequestRepositoryMock) FindStuckClicks(ctx context.Context, platform domain.Platform, olderThan time.Time, limit int) ([]domain.ReviewRequest, error) {
	args := m.Called(ctx, platform, olderThan, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]domain.ReviewRequest), args.Error(1)
}

func (m *RequestRepositoryMock) MarkSwept(ctx context.Context, requestID string, platform domain.Platform, sweptAt time.Time) (bool, error) {
	args := m.Called(ctx, requestID, platform, sweptAt)
	return args.Bool(0), args.Error(1)
}

type ExternalReviewRepositoryMock struct {
	mock.Mock
}

var _ repository.ExternalReviewRepository = (*ExternalReviewRepositoryMock)(nil)

func (m *ExternalReviewRepositoryMock) Upsert(ctx context.Context, review *domain.ExternalReview) (int64, error) {
	args := m.Called(ctx, review)
	return args.Get(0).(int64), args.Error(1)
}

type BusinessRepositoryMock struct {
	mock.Mock
}

var _ repository.BusinessRepository = (*BusinessRepositoryMock)(nil)

func (m *BusinessRepositoryMock) GetByID(ctx context.Context, businessID string) (*domain.Business, error) {
	args := m.Called(ctx, businessID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*domain.Business), args.Error(1)
}

type DispatcherMock struct {
	mock.Mock
}

var _ dispatch.Dispatcher = (*DispatcherMock)(nil)

func (m *DispatcherMock) Schedule(ctx context.Context, job dispatch.Job, delay time.Duration) error {
	args := m.Called(ctx, job, delay)
	return args.Error(0)
}

type SourceMock struct {
	mock.Mock
}

var _ scraper.Source = (*SourceMock)(nil)

func (m *SourceMock) FetchReviews(ctx context.Context, listingURL string) ([]domain.ScrapedReview, error) {
	args := m.Called(ctx, listingURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]domain.ScrapedReview), args.Error(1)
}

type MessengerMock struct {
	mock.Mock
}

func (m *MessengerMock) Send(ctx context.Context, phone, text string) error {
	args := m.Called(ctx, phone, text)
	return args.Error(0)
}
