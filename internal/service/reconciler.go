package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/feedbackhub/review-attribution-service/internal/dispatch"
	"github.com/feedbackhub/review-attribution-service/internal/domain"
	"github.com/feedbackhub/review-attribution-service/internal/repository"
	"github.com/feedbackhub/review-attribution-service/pkg/logger/sl"
	"github.com/robfig/cron/v3"
)

const sweepBatchSize = 100

// Reconciler closes the one real gap in click scheduling: the click timestamp
// is written before the enqueue call, so a failed enqueue leaves a request
// armed against re-scheduling but with no job in flight. The sweep finds
// requests whose click is older than the expected callback time, still
// unlinked and never swept, and re-enqueues each exactly once.
type Reconciler struct {
	log        *slog.Logger
	requests   repository.RequestRepository
	dispatcher dispatch.Dispatcher
	delay      time.Duration
	grace      time.Duration
	cronEngine *cron.Cron
	now        func() time.Time
}

func NewReconciler(
	log *slog.Logger,
	requests repository.RequestRepository,
	dispatcher dispatch.Dispatcher,
	delay time.Duration,
	grace time.Duration,
) *Reconciler {
	return &Reconciler{
		log:        log,
		requests:   requests,
		dispatcher: dispatcher,
		delay:      delay,
		grace:      grace,
		cronEngine: cron.New(),
		now:        time.Now,
	}
}

// Start registers the sweep on the given cron spec and starts the engine.
func (r *Reconciler) Start(cronSpec string) error {
	_, err := r.cronEngine.AddFunc(cronSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		r.Sweep(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to register reconciliation sweep: %w", err)
	}

	r.cronEngine.Start()
	r.log.Info("reconciliation sweep started", slog.String("cron_spec", cronSpec))

	return nil
}

// Stop halts the cron engine and waits for a running sweep to finish.
func (r *Reconciler) Stop() {
	<-r.cronEngine.Stop().Done()
}

// Sweep runs one reconciliation pass over both platforms.
func (r *Reconciler) Sweep(ctx context.Context) {
	const op = "internal.service.reconciler.Sweep"
	log := r.log.With(slog.String("op", op))

	// A click older than delay+grace should have produced a callback by now.
	cutoff := r.now().UTC().Add(-(r.delay + r.grace))

	for _, platform := range []domain.Platform{domain.PlatformYandex, domain.PlatformGis} {
		stuck, err := r.requests.FindStuckClicks(ctx, platform, cutoff, sweepBatchSize)
		if err != nil {
			log.Error("failed to find stuck clicks", slog.String("platform", string(platform)), sl.Err(err))
			continue
		}

		for _, req := range stuck {
			// Claim the request before enqueueing so two overlapping sweeps
			// cannot both re-enqueue it.
			claimed, err := r.requests.MarkSwept(ctx, req.ID, platform, r.now().UTC())
			if err != nil {
				log.Error("failed to mark request swept", slog.String("request_id", req.ID), sl.Err(err))
				continue
			}

			if !claimed {
				continue
			}

			job := dispatch.Job{
				RequestID:  req.ID,
				BusinessID: req.BusinessID,
				Platform:   platform,
			}

			if err := r.dispatcher.Schedule(ctx, job, 0); err != nil {
				log.Error("failed to re-enqueue attribution job", slog.String("request_id", req.ID), sl.Err(err))
				continue
			}

			reconcilerRequeues.Inc()
			log.Info("re-enqueued stuck attribution job",
				slog.String("request_id", req.ID),
				slog.String("platform", string(platform)),
			)
		}
	}
}
