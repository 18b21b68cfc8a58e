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

// Gis scrapes reviews from a 2GIS firm listing.
//
// Strategies, in priority order:
//  1. the public reviews API, keyed by an API key lifted from the listing page;
//  2. the initial-state blob embedded in the listing page's HTML.
type Gis struct {
	f           *fetcher
	reviewsBase string
	log         *slog.Logger
	now         func() time.Time
}

func NewGis(cfg config.Scraper, log *slog.Logger) *Gis {
	return &Gis{
		f:           newFetcher(cfg, log),
		reviewsBase: cfg.GisReviewsBase,
		log:         log.With(slog.String("platform", string(domain.PlatformGis))),
		now:         time.Now,
	}
}

var (
	gisFirmRe = regexp.MustCompile(`/firm/(\d+)`)
	gisKeyRe  = regexp.MustCompile(`"(?:reviewApiKey|apiKey)"\s*:\s*"([^"]+)"`)
)

func (g *Gis) FetchReviews(ctx context.Context, listingURL string) ([]domain.ScrapedReview, error) {
	const op = "internal.scraper.gis.FetchReviews"

	m := gisFirmRe.FindStringSubmatch(listingURL)
	if m == nil {
		return nil, fmt.Errorf("%s: %w: '%s'", op, apperrors.ErrUnrecognizedURL, listingURL)
	}
	firmID := m[1]

	page, pageErr := g.f.get(ctx, listingURL)
	if pageErr != nil {
		g.log.Warn("listing page fetch failed", slog.String("org_id", firmID))
	}

	strategies := []strategy{
		func(ctx context.Context, firmID, _ string) ([]domain.ScrapedReview, error) {
			return g.fromAPI(ctx, firmID, page)
		},
		func(_ context.Context, _, _ string) ([]domain.ScrapedReview, error) {
			if pageErr != nil {
				return nil, pageErr
			}
			return extractStateReviews(page, g.now()), nil
		},
	}

	return runStrategies(ctx, g.log, domain.PlatformGis, firmID, listingURL, strategies), nil
}

func (g *Gis) fromAPI(ctx context.Context, firmID string, page []byte) ([]domain.ScrapedReview, error) {
	key := gisKeyRe.FindSubmatch(page)
	if key == nil {
		// The reviews API rejects keyless calls, skip straight to the fallback.
		return nil, fmt.Errorf("no reviews API key on listing page")
	}

	q := url.Values{}
	q.Set("limit", "50")
	q.Set("sort_by", "date_created")
	q.Set("key", string(key[1]))

	body, err := g.f.get(ctx, fmt.Sprintf("%s/2.0/branches/%s/reviews?%s", g.reviewsBase, firmID, q.Encode()))
	if err != nil {
		return nil, err
	}

	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("unexpected reviews API payload: %w", err)
	}

	var reviews []domain.ScrapedReview
	collectReviews(decoded, g.now(), &reviews)

	return reviews, nil
}
