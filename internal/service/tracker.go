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
)

// TrackerService converts customer-facing funnel events into request state
// transitions and, for external-platform clicks, arms the delayed attribution
// job.
type TrackerService interface {
	MarkOpened(ctx context.Context, requestID string) error
	MarkClicked(ctx context.Context, requestID string, platform domain.Platform) error
}

type TrackerServiceImpl struct {
	log        *slog.Logger
	requests   repository.RequestRepository
	dispatcher dispatch.Dispatcher
	delay      time.Duration
	now        func() time.Time
}

func NewTrackerService(
	log *slog.Logger,
	requests repository.RequestRepository,
	dispatcher dispatch.Dispatcher,
	delay time.Duration,
) *TrackerServiceImpl {
	return &TrackerServiceImpl{
		log:        log,
		requests:   requests,
		dispatcher: dispatcher,
		delay:      delay,
		now:        time.Now,
	}
}

// MarkOpened records that the customer opened the review page. Re-opens are a
// success no-op: the conditional write leaves the original opened_at in place.
func (s *TrackerServiceImpl) MarkOpened(ctx context.Context, requestID string) error {
	const op = "internal.service.tracker.MarkOpened"
	log := s.log.With(slog.String("op", op), slog.String("request_id", requestID))

	updated, err := s.requests.MarkOpened(ctx, requestID, s.now().UTC())
	if err != nil {
		return fmt.Errorf("%s: failed to mark opened: %w", op, err)
	}

	if !updated {
		log.Debug("request already opened, no-op")
		return nil
	}

	log.Info("request opened")

	return nil
}

// MarkClicked records the customer's click-through to an external platform and
// schedules that platform's attribution job.
//
// The click write and the schedule call are deliberately ordered
// write-then-schedule: a repeated click is a success no-op that never
// re-schedules, and a failed enqueue leaves the click timestamp in place so
// the reconciler can pick the request up later.
func (s *TrackerServiceImpl) MarkClicked(ctx context.Context, requestID string, platform domain.Platform) error {
	const op = "internal.service.tracker.MarkClicked"
	log := s.log.With(
		slog.String("op", op),
		slog.String("request_id", requestID),
		slog.String("platform", string(platform)),
	)

	if !platform.Valid() {
		return fmt.Errorf("%s: %w: '%s'", op, apperrors.ErrInvalidPlatform, platform)
	}

	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return fmt.Errorf("%s: failed to load request: %w", op, err)
	}

	clicked, err := s.requests.SetClicked(ctx, requestID, platform, s.now().UTC())
	if err != nil {
		return fmt.Errorf("%s: failed to set click timestamp: %w", op, err)
	}

	if !clicked {
		log.Debug("click already recorded, not re-scheduling")
		return nil
	}

	job := dispatch.Job{
		RequestID:  requestID,
		BusinessID: req.BusinessID,
		Platform:   platform,
	}

	if err := s.dispatcher.Schedule(ctx, job, s.delay); err != nil {
		// The click stays written; a later sweep re-enqueues this request.
		return fmt.Errorf("%s: click recorded but scheduling failed: %w", op, err)
	}

	log.Info("click recorded, attribution job scheduled", slog.String("delay", s.delay.String()))

	return nil
}
