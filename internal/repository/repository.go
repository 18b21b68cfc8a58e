// package repository defines the interfaces for the data persistence layer.
// These interfaces abstract the underlying database implementation from the service layer.
package repository

import (
	"context"
	"time"

	"github.com/feedbackhub/review-attribution-service/internal/domain"
)

// RequestRepository is the contract for review-request rows.
//
// The Mark*/Set*/Link* methods are conditional updates: they only write when
// the guarded column is still NULL and report whether the write happened.
// That compare-and-set shape is what makes open/click/link idempotent under
// concurrent duplicate invocations; callers must treat "false, nil" as an
// already-done no-op, not a failure.
type RequestRepository interface {
	// Create inserts a new review request with status "sent".
	Create(ctx context.Context, req *domain.ReviewRequest) error

	// GetByID returns a request or apperrors.ErrNotFound.
	GetByID(ctx context.Context, requestID string) (*domain.ReviewRequest, error)

	// MarkOpened sets status to "opened" and opened_at to openedAt, only if
	// opened_at is currently NULL. Returns false when the request was already
	// opened. Returns apperrors.ErrNotFound for an unknown request.
	MarkOpened(ctx context.Context, requestID string, openedAt time.Time) (bool, error)

	// SetClicked sets the platform click timestamp, only if it is currently
	// NULL. Returns false when the click was already recorded.
	SetClicked(ctx context.Context, requestID string, platform domain.Platform, clickedAt time.Time) (bool, error)

	// SetRating persists the customer's rating, the derived status and reviewed_at.
	SetRating(ctx context.Context, requestID string, rating int, status domain.Status, reviewedAt time.Time) error

	// SetFeedback persists free-text feedback and forces status to "feedback".
	SetFeedback(ctx context.Context, requestID string, feedback string) error

	// LinkExternalReview sets external_review_id, only if it is currently NULL.
	// Returns false when the request is already linked to a review.
	LinkExternalReview(ctx context.Context, requestID string, externalReviewID int64) (bool, error)

	// FindLatestUnrated returns the most recent request for the business with
	// no rating, sent after the given instant, or apperrors.ErrNotFound.
	FindLatestUnrated(ctx context.Context, businessID string, sentAfter time.Time) (*domain.ReviewRequest, error)

	// FindStuckClicks returns requests that have a platform click older than
	// olderThan, no linked review, and no reconciliation attempt yet.
	FindStuckClicks(ctx context.Context, platform domain.Platform, olderThan time.Time, limit int) ([]domain.ReviewRequest, error)

	// MarkSwept records that the reconciler re-enqueued an attribution job for
	// the request+platform, so the sweep never re-enqueues twice.
	MarkSwept(ctx context.Context, requestID string, platform domain.Platform, sweptAt time.Time) (bool, error)
}

// ExternalReviewRepository is the contract for scraped reviews promoted to
// persistent rows.
type ExternalReviewRepository interface {
	// Upsert inserts the review keyed by (platform, platform_review_id) and
	// returns the surviving row's id. On conflict the existing row wins: its
	// fields are left untouched and its id is returned.
	Upsert(ctx context.Context, review *domain.ExternalReview) (int64, error)
}

// BusinessRepository reads the business listing configuration this subsystem
// needs; businesses themselves are owned by the CRUD side of the product.
type BusinessRepository interface {
	// GetByID returns a business or apperrors.ErrNotFound.
	GetByID(ctx context.Context, businessID string) (*domain.Business, error)
}
