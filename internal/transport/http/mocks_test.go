package http

import (
	"context"
	"io"
	"log/slog"

	"github.com/feedbackhub/review-attribution-service/internal/dispatch"
	"github.com/feedbackhub/review-attribution-service/internal/domain"
	"github.com/feedbackhub/review-attribution-service/internal/service"
	"github.com/stretchr/testify/mock"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type RequestServiceMock struct {
	mock.Mock
}

var _ service.RequestService = (*RequestServiceMock)(nil)

func (m *RequestServiceMock) CreateRequest(ctx context.Context, businessID, phone, source string) (*domain.ReviewRequest, error) {
	args := m.Called(ctx, businessID, phone, source)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*domain.ReviewRequest), args.Error(1)
}

type TrackerServiceMock struct {
	mock.Mock
}

var _ service.TrackerService = (*TrackerServiceMock)(nil)

func (m *TrackerServiceMock) MarkOpened(ctx context.Context, requestID string) error {
	args := m.Called(ctx, requestID)
	return args.Error(0)
}

func (m *TrackerServiceMock) MarkClicked(ctx context.Context, requestID string, platform domain.Platform) error {
	args := m.Called(ctx, requestID, platform)
	return args.Error(0)
}

type IntakeServiceMock struct {
	mock.Mock
}

var _ service.IntakeService = (*IntakeServiceMock)(nil)

func (m *IntakeServiceMock) SubmitRating(ctx context.Context, businessID, requestID string, rating int) (*domain.RatingOutcome, error) {
	args := m.Called(ctx, businessID, requestID, rating)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*domain.RatingOutcome), args.Error(1)
}

func (m *IntakeServiceMock) SubmitFeedback(ctx context.Context, businessID, requestID, feedback string) error {
	args := m.Called(ctx, businessID, requestID, feedback)
	return args.Error(0)
}

type AttributionServiceMock struct {
	mock.Mock
}

var _ service.AttributionService = (*AttributionServiceMock)(nil)

func (m *AttributionServiceMock) Attribute(ctx context.Context, job dispatch.Job) (service.Outcome, error) {
	args := m.Called(ctx, job)
	return args.Get(0).(service.Outcome), args.Error(1)
}
