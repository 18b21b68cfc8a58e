package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"time"

	"github.com/feedbackhub/review-attribution-service/internal/apperrors"
	"github.com/feedbackhub/review-attribution-service/internal/config"
	"github.com/feedbackhub/review-attribution-service/internal/domain"
)

// Yandex scrapes reviews from a Yandex Maps organization listing.
//
// Strategies, in priority order:
//  1. the maps reviews API, using a session token lifted from the listing page;
//  2. the state blob embedded in the listing page's HTML.
type Yandex struct {
	f       *fetcher
	apiBase string
	log     *slog.Logger
	now     func() time.Time
}

func NewYandex(cfg config.Scraper, log *slog.Logger) *Yandex {
	return &Yandex{
		f:       newFetcher(cfg, log),
		apiBase: cfg.YandexAPIBase,
		log:     log.With(slog.String("platform", string(domain.PlatformYandex))),
		now:     time.Now,
	}
}

var (
	yandexOrgRe   = regexp.MustCompile(`/(?:maps/)?org/(?:[^/]+/)?(\d+)`)
	yandexTokenRe = regexp.MustCompile(`"csrfToken"\s*:\s*"([^"]+)"`)
)

func (y *Yandex) FetchReviews(ctx context.Context, listingURL string) ([]domain.ScrapedReview, error) {
	const op = "internal.scraper.yandex.FetchReviews"

	m := yandexOrgRe.FindStringSubmatch(listingURL)
	if m == nil {
		return nil, fmt.Errorf("%s: %w: '%s'", op, apperrors.ErrUnrecognizedURL, listingURL)
	}
	orgID := m[1]

	// Both strategies read the listing page: the API needs its session token,
	// the fallback needs its embedded state. Fetch it once up front; a failed
	// page load still lets the API strategy try without a token.
	page, pageErr := y.f.get(ctx, listingURL)
	if pageErr != nil {
		y.log.Warn("listing page fetch failed", slog.String("org_id", orgID))
	}

	strategies := []strategy{
		func(ctx context.Context, orgID, _ string) ([]domain.ScrapedReview, error) {
			return y.fromAPI(ctx, orgID, page)
		},
		func(_ context.Context, _, _ string) ([]domain.ScrapedReview, error) {
			if pageErr != nil {
				return nil, pageErr
			}
			return extractStateReviews(page, y.now()), nil
		},
	}

	return runStrategies(ctx, y.log, domain.PlatformYandex, orgID, listingURL, strategies), nil
}

func (y *Yandex) fromAPI(ctx context.Context, orgID string, page []byte) ([]domain.ScrapedReview, error) {
	q := url.Values{}
	q.Set("businessId", orgID)
	q.Set("ranking", "by_time")
	q.Set("limit", "50")

	if tok := yandexTokenRe.FindSubmatch(page); tok != nil {
		q.Set("csrfToken", string(tok[1]))
	}

	body, err := y.f.get(ctx, y.apiBase+"/business/fetchReviews?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("unexpected reviews API payload: %w", err)
	}

	var reviews []domain.ScrapedReview
	collectReviews(decoded, y.now(), &reviews)

	return reviews, nil
}
