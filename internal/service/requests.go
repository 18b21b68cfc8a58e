package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/feedbackhub/review-attribution-service/internal/apperrors"
	"github.com/feedbackhub/review-attribution-service/internal/domain"
	"github.com/feedbackhub/review-attribution-service/internal/gateway"
	"github.com/feedbackhub/review-attribution-service/internal/repository"
	"github.com/google/uuid"
)

// RequestService creates review requests: persist the record and deliver the
// review link to the customer over the outbound message channel.
type RequestService interface {
	CreateRequest(ctx context.Context, businessID, phone, source string) (*domain.ReviewRequest, error)
}

type RequestServiceImpl struct {
	log        *slog.Logger
	requests   repository.RequestRepository
	businesses repository.BusinessRepository
	messenger  gateway.Messenger
	linkBase   string
	now        func() time.Time
}

func NewRequestService(
	log *slog.Logger,
	requests repository.RequestRepository,
	businesses repository.BusinessRepository,
	messenger gateway.Messenger,
	linkBase string,
) *RequestServiceImpl {
	return &RequestServiceImpl{
		log:        log,
		requests:   requests,
		businesses: businesses,
		messenger:  messenger,
		linkBase:   strings.TrimRight(linkBase, "/"),
		now:        time.Now,
	}
}

var nonDigitRe = regexp.MustCompile(`\D`)

// NormalizePhone reduces a phone number to canonical digits, folding the
// leading 8 of Russian-format numbers into the country code.
func NormalizePhone(phone string) string {
	digits := nonDigitRe.ReplaceAllString(phone, "")

	if len(digits) == 11 && strings.HasPrefix(digits, "8") {
		digits = "7" + digits[1:]
	}

	return digits
}

func (s *RequestServiceImpl) CreateRequest(ctx context.Context, businessID, phone, source string) (*domain.ReviewRequest, error) {
	const op = "internal.service.requests.CreateRequest"
	log := s.log.With(slog.String("op", op), slog.String("business_id", businessID))

	normalized := NormalizePhone(phone)
	if len(normalized) < 10 {
		return nil, fmt.Errorf("%s: %w: phone '%s'", op, apperrors.ErrInvalidRequest, phone)
	}

	business, err := s.businesses.GetByID(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to load business: %w", op, err)
	}

	if source == "" {
		source = domain.SourceManual
	}

	req := &domain.ReviewRequest{
		ID:            uuid.NewString(),
		BusinessID:    businessID,
		CustomerPhone: normalized,
		Status:        domain.StatusSent,
		Source:        source,
		SentAt:        s.now().UTC(),
	}

	text := fmt.Sprintf("%s: please rate your visit: %s/r/%s", business.Name, s.linkBase, req.ID)

	if err := s.messenger.Send(ctx, normalized, text); err != nil {
		return nil, fmt.Errorf("%s: failed to send message: %w", op, err)
	}

	if err := s.requests.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("%s: failed to persist request: %w", op, err)
	}

	log.Info("review request sent", slog.String("request_id", req.ID))

	return req, nil
}
