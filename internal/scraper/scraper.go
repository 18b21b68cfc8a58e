// package scraper fetches a business's currently visible reviews from its
// public listing on an external platform. Platforms change their markup and
// APIs without notice, so every platform client tries a prioritized list of
// extraction strategies and degrades to an empty result instead of failing:
// the attribution worker treats "no reviews" as a normal no-match outcome.
package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/feedbackhub/review-attribution-service/internal/apperrors"
	"github.com/feedbackhub/review-attribution-service/internal/config"
	"github.com/feedbackhub/review-attribution-service/internal/domain"
	"github.com/feedbackhub/review-attribution-service/pkg/logger/sl"
	"golang.org/x/time/rate"
)

// Source fetches the best-effort list of reviews visible on a listing page.
// It returns apperrors.ErrUnrecognizedURL only when no organization id can be
// parsed out of the URL; transient network or parse failures yield an empty
// slice and a nil error.
type Source interface {
	FetchReviews(ctx context.Context, listingURL string) ([]domain.ScrapedReview, error)
}

// Sources is the per-platform registry handed to the attribution worker.
type Sources map[domain.Platform]Source

// New builds the registry with one client per supported platform.
func New(cfg config.Scraper, log *slog.Logger) Sources {
	return Sources{
		domain.PlatformYandex: NewYandex(cfg, log),
		domain.PlatformGis:    NewGis(cfg, log),
	}
}

// For returns the source for a platform or an InvalidPlatform error.
func (s Sources) For(platform domain.Platform) (Source, error) {
	src, ok := s[platform]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", apperrors.ErrInvalidPlatform, platform)
	}

	return src, nil
}

// fetcher is the shared outbound HTTP plumbing: one bounded-timeout attempt
// per call, client-side rate limiting per platform so a burst of attribution
// callbacks cannot trip the platform's anti-bot defenses.
type fetcher struct {
	hc      *http.Client
	rl      *rate.Limiter
	timeout time.Duration
	log     *slog.Logger
}

func newFetcher(cfg config.Scraper, log *slog.Logger) *fetcher {
	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = 2
	}

	return &fetcher{
		hc:      &http.Client{Timeout: cfg.Timeout},
		rl:      rate.NewLimiter(rate.Limit(rps), rps),
		timeout: cfg.Timeout,
		log:     log,
	}
}

const maxBodyBytes = 4 << 20

// get performs one rate-limited GET with a per-attempt deadline and returns
// the body. Any failure is returned to the caller, which falls through to the
// next strategy.
func (f *fetcher) get(ctx context.Context, url string) ([]byte, error) {
	if err := f.rl.Wait(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json, text/html")
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; feedbackhub/1.0)")

	resp, err := f.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("remote %d", resp.StatusCode)
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
}

// strategy is one extraction attempt; strategies run in strict priority order
// and the first non-empty parse wins.
type strategy func(ctx context.Context, orgID, listingURL string) ([]domain.ScrapedReview, error)

// runStrategies executes strategies in order, absorbing failures into the
// fall-through. An all-strategies-failed run is a normal empty result.
func runStrategies(ctx context.Context, log *slog.Logger, platform domain.Platform, orgID, listingURL string, strategies []strategy) []domain.ScrapedReview {
	for i, strat := range strategies {
		reviews, err := strat(ctx, orgID, listingURL)
		if err != nil {
			log.Warn("scrape strategy failed",
				slog.Int("strategy", i),
				slog.String("org_id", orgID),
				sl.Err(err),
			)

			continue
		}

		if len(reviews) > 0 {
			scrapeStrategyHits.WithLabelValues(string(platform), strconv.Itoa(i)).Inc()
			return reviews
		}
	}

	return nil
}
