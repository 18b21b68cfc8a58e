package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/feedbackhub/review-attribution-service/internal/apperrors"
	"github.com/feedbackhub/review-attribution-service/internal/domain"
	"github.com/jmoiron/sqlx"
)

const requestColumns = `id, business_id, customer_phone, status, rating, feedback, source,
	external_review_id, sent_at, opened_at, reviewed_at, clicked_yandex_at, clicked_gis_at`

type RequestRepository struct {
	db  *sqlx.DB
	log *slog.Logger
	sq  sq.StatementBuilderType
}

func NewRequestRepository(db *sqlx.DB, log *slog.Logger) *RequestRepository {
	return &RequestRepository{
		db:  db,
		log: log,
		sq:  sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func clickColumn(platform domain.Platform) string {
	if platform == domain.PlatformGis {
		return "clicked_gis_at"
	}

	return "clicked_yandex_at"
}

func sweepColumn(platform domain.Platform) string {
	if platform == domain.PlatformGis {
		return "swept_gis_at"
	}

	return "swept_yandex_at"
}

func (r *RequestRepository) Create(ctx context.Context, req *domain.ReviewRequest) error {
	const op = "internal.repository.postgres.Create"

	query, args, err := r.sq.Insert("review_requests").
		Columns("id", "business_id", "customer_phone", "status", "source", "sent_at").
		Values(req.ID, req.BusinessID, req.CustomerPhone, req.Status, req.Source, req.SentAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: failed to build insert query: %w", op, err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: failed to execute insert: %w", op, err)
	}

	return nil
}

func (r *RequestRepository) GetByID(ctx context.Context, requestID string) (*domain.ReviewRequest, error) {
	const op = "internal.repository.postgres.GetByID"

	query, args, err := r.sq.Select(requestColumns).
		From("review_requests").
		Where(sq.Eq{"id": requestID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build query: %w", op, err)
	}

	var req domain.ReviewRequest
	if err := r.db.GetContext(ctx, &req, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, &apperrors.RequestNotFoundError{RequestID: requestID})
		}

		return nil, fmt.Errorf("%s: failed to get request: %w", op, err)
	}

	return &req, nil
}

// MarkOpened is a compare-and-set: the guard `opened_at IS NULL` makes two
// near-simultaneous opens race harmlessly, the loser updates zero rows.
func (r *RequestRepository) MarkOpened(ctx context.Context, requestID string, openedAt time.Time) (bool, error) {
	const op = "internal.repository.postgres.MarkOpened"

	query, args, err := r.sq.Update("review_requests").
		Set("status", domain.StatusOpened).
		Set("opened_at", openedAt).
		Where(sq.Eq{"id": requestID}).
		Where("opened_at IS NULL").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("%s: failed to build update query: %w", op, err)
	}

	return r.conditionalUpdate(ctx, op, requestID, query, args)
}

func (r *RequestRepository) SetClicked(ctx context.Context, requestID string, platform domain.Platform, clickedAt time.Time) (bool, error) {
	const op = "internal.repository.postgres.SetClicked"

	col := clickColumn(platform)

	query, args, err := r.sq.Update("review_requests").
		Set(col, clickedAt).
		Where(sq.Eq{"id": requestID}).
		Where(col + " IS NULL").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("%s: failed to build update query: %w", op, err)
	}

	return r.conditionalUpdate(ctx, op, requestID, query, args)
}

func (r *RequestRepository) SetRating(ctx context.Context, requestID string, rating int, status domain.Status, reviewedAt time.Time) error {
	const op = "internal.repository.postgres.SetRating"

	query, args, err := r.sq.Update("review_requests").
		Set("rating", rating).
		Set("status", status).
		Set("reviewed_at", reviewedAt).
		Where(sq.Eq{"id": requestID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: failed to build update query: %w", op, err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: failed to execute update: %w", op, err)
	}

	if rowsAffected, err := res.RowsAffected(); err == nil && rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, &apperrors.RequestNotFoundError{RequestID: requestID})
	}

	return nil
}

func (r *RequestRepository) SetFeedback(ctx context.Context, requestID string, feedback string) error {
	const op = "internal.repository.postgres.SetFeedback"

	query, args, err := r.sq.Update("review_requests").
		Set("feedback", feedback).
		Set("status", domain.StatusFeedback).
		Where(sq.Eq{"id": requestID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: failed to build update query: %w", op, err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: failed to execute update: %w", op, err)
	}

	if rowsAffected, err := res.RowsAffected(); err == nil && rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, &apperrors.RequestNotFoundError{RequestID: requestID})
	}

	return nil
}

// LinkExternalReview enforces at-most-once attribution: once
// external_review_id is set it is never overwritten.
func (r *RequestRepository) LinkExternalReview(ctx context.Context, requestID string, externalReviewID int64) (bool, error) {
	const op = "internal.repository.postgres.LinkExternalReview"

	query, args, err := r.sq.Update("review_requests").
		Set("external_review_id", externalReviewID).
		Where(sq.Eq{"id": requestID}).
		Where("external_review_id IS NULL").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("%s: failed to build update query: %w", op, err)
	}

	return r.conditionalUpdate(ctx, op, requestID, query, args)
}

func (r *RequestRepository) FindLatestUnrated(ctx context.Context, businessID string, sentAfter time.Time) (*domain.ReviewRequest, error) {
	const op = "internal.repository.postgres.FindLatestUnrated"

	query, args, err := r.sq.Select(requestColumns).
		From("review_requests").
		Where(sq.Eq{"business_id": businessID}).
		Where("rating IS NULL").
		Where(sq.GtOrEq{"sent_at": sentAfter}).
		OrderBy("sent_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build query: %w", op, err)
	}

	var req domain.ReviewRequest
	if err := r.db.GetContext(ctx, &req, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w: no unrated request for business '%s'", op, apperrors.ErrNotFound, businessID)
		}

		return nil, fmt.Errorf("%s: failed to get request: %w", op, err)
	}

	return &req, nil
}

func (r *RequestRepository) FindStuckClicks(ctx context.Context, platform domain.Platform, olderThan time.Time, limit int) ([]domain.ReviewRequest, error) {
	const op = "internal.repository.postgres.FindStuckClicks"

	query, args, err := r.sq.Select(requestColumns).
		From("review_requests").
		Where(sq.LtOrEq{clickColumn(platform): olderThan}).
		Where("external_review_id IS NULL").
		Where(sweepColumn(platform) + " IS NULL").
		OrderBy(clickColumn(platform) + " ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build query: %w", op, err)
	}

	var reqs []domain.ReviewRequest
	if err := r.db.SelectContext(ctx, &reqs, query, args...); err != nil {
		return nil, fmt.Errorf("%s: failed to execute query: %w", op, err)
	}

	return reqs, nil
}

func (r *RequestRepository) MarkSwept(ctx context.Context, requestID string, platform domain.Platform, sweptAt time.Time) (bool, error) {
	const op = "internal.repository.postgres.MarkSwept"

	col := sweepColumn(platform)

	query, args, err := r.sq.Update("review_requests").
		Set(col, sweptAt).
		Where(sq.Eq{"id": requestID}).
		Where(col + " IS NULL").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("%s: failed to build update query: %w", op, err)
	}

	return r.conditionalUpdate(ctx, op, requestID, query, args)
}

// conditionalUpdate runs a guarded update and distinguishes "guard already
// consumed" from "row does not exist": zero rows affected triggers one
// existence probe before reporting a no-op.
func (r *RequestRepository) conditionalUpdate(ctx context.Context, op, requestID, query string, args []interface{}) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s: failed to execute update: %w", op, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: failed to read rows affected: %w", op, err)
	}

	if rowsAffected > 0 {
		return true, nil
	}

	existsQuery, existsArgs, err := r.sq.Select("1").
		From("review_requests").
		Where(sq.Eq{"id": requestID}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("%s: failed to build exists query: %w", op, err)
	}

	var one int
	if err := r.db.GetContext(ctx, &one, existsQuery, existsArgs...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, fmt.Errorf("%s: %w", op, &apperrors.RequestNotFoundError{RequestID: requestID})
		}

		return false, fmt.Errorf("%s: failed to check existence: %w", op, err)
	}

	return false, nil
}
