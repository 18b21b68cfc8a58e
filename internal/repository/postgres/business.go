package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	"github.com/feedbackhub/review-attribution-service/internal/apperrors"
	"github.com/feedbackhub/review-attribution-service/internal/domain"
	"github.com/jmoiron/sqlx"
)

type BusinessRepository struct {
	db  *sqlx.DB
	log *slog.Logger
	sq  sq.StatementBuilderType
}

func NewBusinessRepository(db *sqlx.DB, log *slog.Logger) *BusinessRepository {
	return &BusinessRepository{
		db:  db,
		log: log,
		sq:  sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *BusinessRepository) GetByID(ctx context.Context, businessID string) (*domain.Business, error) {
	const op = "internal.repository.postgres.GetByID"

	query, args, err := r.sq.Select("id", "name", "yandex_url", "gis_url").
		From("businesses").
		Where(sq.Eq{"id": businessID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build query: %w", op, err)
	}

	var b domain.Business
	if err := r.db.GetContext(ctx, &b, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, &apperrors.BusinessNotFoundError{BusinessID: businessID})
		}

		return nil, fmt.Errorf("%s: failed to get business: %w", op, err)
	}

	return &b, nil
}
