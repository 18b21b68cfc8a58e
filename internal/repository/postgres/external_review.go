package postgres

import (
	"context"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	"github.com/feedbackhub/review-attribution-service/internal/domain"
	"github.com/jmoiron/sqlx"
)

type ExternalReviewRepository struct {
	db  *sqlx.DB
	log *slog.Logger
	sq  sq.StatementBuilderType
}

func NewExternalReviewRepository(db *sqlx.DB, log *slog.Logger) *ExternalReviewRepository {
	return &ExternalReviewRepository{
		db:  db,
		log: log,
		sq:  sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Upsert inserts the review or, on (platform, platform_review_id) conflict,
// leaves the existing row untouched. The conflict clause updates a key column
// to its own value only so RETURNING yields the surviving row's id either way;
// DO NOTHING would return no row at all.
func (r *ExternalReviewRepository) Upsert(ctx context.Context, review *domain.ExternalReview) (int64, error) {
	const op = "internal.repository.postgres.Upsert"

	query, args, err := r.sq.Insert("external_reviews").
		Columns("business_id", "platform", "platform_review_id", "rating", "text", "author", "published_at").
		Values(review.BusinessID, review.Platform, review.PlatformReviewID,
			review.Rating, review.Text, review.Author, review.PublishedAt).
		Suffix(`ON CONFLICT (platform, platform_review_id)
			DO UPDATE SET platform = external_reviews.platform
			RETURNING id`).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("%s: failed to build upsert query: %w", op, err)
	}

	var id int64
	if err := r.db.QueryRowxContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("%s: failed to execute upsert: %w", op, err)
	}

	return id, nil
}
