package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/feedbackhub/review-attribution-service/internal/apperrors"
	"github.com/feedbackhub/review-attribution-service/internal/dispatch"
	"github.com/feedbackhub/review-attribution-service/internal/domain"
	"github.com/feedbackhub/review-attribution-service/internal/repository"
	"github.com/feedbackhub/review-attribution-service/internal/scraper"
	"github.com/feedbackhub/review-attribution-service/pkg/logger/sl"
)

// Outcome reports how one attribution invocation ended. "no match" and
// "already linked" are successes, not failures: duplicate deliveries and
// customers who never post are the common case.
type Outcome string

const (
	OutcomeLinked        Outcome = "linked"
	OutcomeNoMatch       Outcome = "no_match"
	OutcomeAlreadyLinked Outcome = "already_linked"
)

// AttributionService is the body of the authenticated scheduler callback:
// fetch the platform's current reviews, match one against the click window,
// and link it to the request at most once.
type AttributionService interface {
	Attribute(ctx context.Context, job dispatch.Job) (Outcome, error)
}

type AttributionServiceImpl struct {
	log         *slog.Logger
	requests    repository.RequestRepository
	reviews     repository.ExternalReviewRepository
	businesses  repository.BusinessRepository
	sources     scraper.Sources
	matchWindow time.Duration
}

func NewAttributionService(
	log *slog.Logger,
	requests repository.RequestRepository,
	reviews repository.ExternalReviewRepository,
	businesses repository.BusinessRepository,
	sources scraper.Sources,
	matchWindow time.Duration,
) *AttributionServiceImpl {
	return &AttributionServiceImpl{
		log:         log,
		requests:    requests,
		reviews:     reviews,
		businesses:  businesses,
		sources:     sources,
		matchWindow: matchWindow,
	}
}

func (s *AttributionServiceImpl) Attribute(ctx context.Context, job dispatch.Job) (Outcome, error) {
	const op = "internal.service.attribution.Attribute"
	log := s.log.With(
		slog.String("op", op),
		slog.String("request_id", job.RequestID),
		slog.String("platform", string(job.Platform)),
	)

	source, err := s.sources.For(job.Platform)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	req, err := s.requests.GetByID(ctx, job.RequestID)
	if err != nil {
		return "", fmt.Errorf("%s: failed to load request: %w", op, err)
	}

	// Idempotency short-circuit: the scheduler delivers at-least-once, so a
	// request that is already linked ends the invocation before any fetch.
	if req.ExternalReviewID != nil {
		log.Info("request already linked, skipping", slog.Int64("external_review_id", *req.ExternalReviewID))
		attributionOutcomes.WithLabelValues(string(job.Platform), string(OutcomeAlreadyLinked)).Inc()

		return OutcomeAlreadyLinked, nil
	}

	clickedAt := req.ClickedAt(job.Platform)
	if clickedAt == nil {
		return "", fmt.Errorf("%s: %w", op, apperrors.ErrNoClickAnchor)
	}

	business, err := s.businesses.GetByID(ctx, job.BusinessID)
	if err != nil {
		return "", fmt.Errorf("%s: failed to load business: %w", op, err)
	}

	listingURL := business.ListingURL(job.Platform)
	if listingURL == "" {
		return "", fmt.Errorf("%s: %w", op, apperrors.ErrNoListingURL)
	}

	scraped, err := source.FetchReviews(ctx, listingURL)
	if err != nil {
		// An unparseable listing URL means "no reviews available", not a
		// worker failure.
		log.Warn("fetch yielded no usable reviews", sl.Err(err))
		attributionOutcomes.WithLabelValues(string(job.Platform), string(OutcomeNoMatch)).Inc()

		return OutcomeNoMatch, nil
	}

	match, ok := matchReview(scraped, *clickedAt, s.matchWindow)
	if !ok {
		log.Info("no review matched click window", slog.Int("fetched", len(scraped)))
		attributionOutcomes.WithLabelValues(string(job.Platform), string(OutcomeNoMatch)).Inc()

		return OutcomeNoMatch, nil
	}

	review := &domain.ExternalReview{
		BusinessID:       job.BusinessID,
		Platform:         job.Platform,
		PlatformReviewID: match.PlatformReviewID,
		Rating:           match.Rating,
		Text:             match.Text,
		Author:           match.Author,
		PublishedAt:      match.PublishedAt,
	}

	reviewID, err := s.reviews.Upsert(ctx, review)
	if err != nil {
		return "", fmt.Errorf("%s: failed to upsert external review: %w", op, err)
	}

	linked, err := s.requests.LinkExternalReview(ctx, job.RequestID, reviewID)
	if err != nil {
		return "", fmt.Errorf("%s: failed to link external review: %w", op, err)
	}

	if !linked {
		// A concurrent duplicate delivery won the race; its link stands.
		log.Info("request linked concurrently, keeping existing linkage")
		attributionOutcomes.WithLabelValues(string(job.Platform), string(OutcomeAlreadyLinked)).Inc()

		return OutcomeAlreadyLinked, nil
	}

	log.Info("review attributed",
		slog.Int64("external_review_id", reviewID),
		slog.String("platform_review_id", match.PlatformReviewID),
	)
	attributionOutcomes.WithLabelValues(string(job.Platform), string(OutcomeLinked)).Inc()

	return OutcomeLinked, nil
}

// matchReview selects the first review, in adapter-returned order, published
// inside the inclusive window [clickedAt, clickedAt+window]. Order wins over
// timestamp proximity: with no identity linkage between the anonymous click
// and a review author, any scoring beyond the window boolean would be fake
// precision.
func matchReview(reviews []domain.ScrapedReview, clickedAt time.Time, window time.Duration) (domain.ScrapedReview, bool) {
	windowEnd := clickedAt.Add(window)

	for _, r := range reviews {
		if r.PublishedAt.Before(clickedAt) || r.PublishedAt.After(windowEnd) {
			continue
		}

		return r, true
	}

	return domain.ScrapedReview{}, false
}
