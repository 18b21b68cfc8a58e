package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/feedbackhub/review-attribution-service/internal/apperrors"
	"github.com/feedbackhub/review-attribution-service/internal/domain"
	"github.com/feedbackhub/review-attribution-service/internal/repository"
)

// feedbackFallbackWindow bounds the best-effort "attach feedback to the most
// recent unrated request" lookup used when the client sends no request id.
const feedbackFallbackWindow = 24 * time.Hour

// IntakeService records the customer's in-app rating and free-text feedback
// and decides the funnel branch: public review platform or private feedback.
type IntakeService interface {
	SubmitRating(ctx context.Context, businessID, requestID string, rating int) (*domain.RatingOutcome, error)
	SubmitFeedback(ctx context.Context, businessID, requestID, feedback string) error
}

type IntakeServiceImpl struct {
	log               *slog.Logger
	requests          repository.RequestRepository
	businesses        repository.BusinessRepository
	positiveThreshold int
	now               func() time.Time
}

func NewIntakeService(
	log *slog.Logger,
	requests repository.RequestRepository,
	businesses repository.BusinessRepository,
	positiveThreshold int,
) *IntakeServiceImpl {
	if positiveThreshold <= 0 {
		positiveThreshold = 4
	}

	return &IntakeServiceImpl{
		log:               log,
		requests:          requests,
		businesses:        businesses,
		positiveThreshold: positiveThreshold,
		now:               time.Now,
	}
}

// SubmitRating persists the rating and routes the customer: ratings at or
// above the threshold get the business's external platform URLs to redirect
// to, lower ratings get an instruction to collect private feedback.
func (s *IntakeServiceImpl) SubmitRating(ctx context.Context, businessID, requestID string, rating int) (*domain.RatingOutcome, error) {
	const op = "internal.service.intake.SubmitRating"
	log := s.log.With(
		slog.String("op", op),
		slog.String("request_id", requestID),
		slog.Int("rating", rating),
	)

	if rating < 1 || rating > 5 {
		return nil, fmt.Errorf("%s: %w: got %d", op, apperrors.ErrInvalidRating, rating)
	}

	positive := rating >= s.positiveThreshold

	status := domain.StatusFeedback
	if positive {
		status = domain.StatusReviewed
	}

	if err := s.requests.SetRating(ctx, requestID, rating, status, s.now().UTC()); err != nil {
		return nil, fmt.Errorf("%s: failed to persist rating: %w", op, err)
	}

	if !positive {
		log.Info("negative rating recorded, routing to private feedback")

		return &domain.RatingOutcome{CollectFeedback: true}, nil
	}

	business, err := s.businesses.GetByID(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to load business: %w", op, err)
	}

	log.Info("positive rating recorded, routing to external platforms")

	return &domain.RatingOutcome{
		Positive:  true,
		YandexURL: business.ListingURL(domain.PlatformYandex),
		GisURL:    business.ListingURL(domain.PlatformGis),
	}, nil
}

// SubmitFeedback persists free-text feedback and forces the request into the
// "feedback" state: a customer who elaborates privately chose not to post
// publicly, even if an earlier rating had marked the request "reviewed".
//
// When no request id is supplied, the most recent unrated request for the
// business within the last 24 hours is used. This lookup is best effort and
// may pick the wrong request when several are in flight.
func (s *IntakeServiceImpl) SubmitFeedback(ctx context.Context, businessID, requestID, feedback string) error {
	const op = "internal.service.intake.SubmitFeedback"
	log := s.log.With(slog.String("op", op), slog.String("business_id", businessID))

	if feedback == "" {
		return fmt.Errorf("%s: %w", op, apperrors.ErrEmptyFeedback)
	}

	if requestID == "" {
		req, err := s.requests.FindLatestUnrated(ctx, businessID, s.now().UTC().Add(-feedbackFallbackWindow))
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return fmt.Errorf("%s: %w", op, err)
			}

			return fmt.Errorf("%s: fallback request lookup failed: %w", op, err)
		}

		requestID = req.ID

		log.Info("feedback without request id, using fallback", slog.String("request_id", requestID))
	}

	if err := s.requests.SetFeedback(ctx, requestID, feedback); err != nil {
		return fmt.Errorf("%s: failed to persist feedback: %w", op, err)
	}

	log.Info("feedback recorded", slog.String("request_id", requestID))

	return nil
}
