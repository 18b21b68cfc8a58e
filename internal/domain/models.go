package domain

import (
	"time"
)

// Platform identifies an external review platform a business is listed on.
type Platform string

const (
	PlatformYandex Platform = "yandex"
	PlatformGis    Platform = "gis"
)

// Valid reports whether p is one of the supported platform tags.
func (p Platform) Valid() bool {
	return p == PlatformYandex || p == PlatformGis
}

// Status is the lifecycle state of a review request.
type Status string

const (
	StatusSent     Status = "sent"
	StatusOpened   Status = "opened"
	StatusReviewed Status = "reviewed"
	StatusFeedback Status = "feedback"
)

// Provenance values for ReviewRequest.Source.
const (
	SourceManual = "manual"
	SourceAPI    = "api"
)

// ReviewRequest is a single SMS review-request dispatch to a customer.
// Click timestamps and the external review link are each written at most once;
// the conditional updates that enforce this live in the repository layer.
type ReviewRequest struct {
	ID               string     `db:"id"`
	BusinessID       string     `db:"business_id"`
	CustomerPhone    string     `db:"customer_phone"`
	Status           Status     `db:"status"`
	Rating           *int       `db:"rating"`
	Feedback         *string    `db:"feedback"`
	Source           string     `db:"source"`
	ExternalReviewID *int64     `db:"external_review_id"`
	SentAt           time.Time  `db:"sent_at"`
	OpenedAt         *time.Time `db:"opened_at"`
	ReviewedAt       *time.Time `db:"reviewed_at"`
	ClickedYandexAt  *time.Time `db:"clicked_yandex_at"`
	ClickedGisAt     *time.Time `db:"clicked_gis_at"`
}

// ClickedAt returns the click timestamp recorded for the given platform.
func (r *ReviewRequest) ClickedAt(p Platform) *time.Time {
	switch p {
	case PlatformYandex:
		return r.ClickedYandexAt
	case PlatformGis:
		return r.ClickedGisAt
	}

	return nil
}

// Business is the read model this subsystem needs: where the business is
// listed publicly. Everything else about a business is owned elsewhere.
type Business struct {
	ID        string  `db:"id"`
	Name      string  `db:"name"`
	YandexURL *string `db:"yandex_url"`
	GisURL    *string `db:"gis_url"`
}

// ListingURL returns the business's public listing URL for the platform,
// or "" when none is configured.
func (b *Business) ListingURL(p Platform) string {
	var u *string

	switch p {
	case PlatformYandex:
		u = b.YandexURL
	case PlatformGis:
		u = b.GisURL
	}

	if u == nil {
		return ""
	}

	return *u
}

// ExternalReview is a review observed on a public platform, deduplicated
// across scrape runs by (platform, platform_review_id).
type ExternalReview struct {
	ID               int64     `db:"id"`
	BusinessID       string    `db:"business_id"`
	Platform         Platform  `db:"platform"`
	PlatformReviewID string    `db:"platform_review_id"`
	Rating           int       `db:"rating"`
	Text             *string   `db:"text"`
	Author           *string   `db:"author"`
	PublishedAt      time.Time `db:"published_at"`
}

// ScrapedReview is the normalized transient shape a scraper returns for one
// fetched review. It is only promoted to ExternalReview when it matches a
// request's click window.
type ScrapedReview struct {
	PlatformReviewID string
	Rating           int
	Text             *string
	Author           *string
	PublishedAt      time.Time
}

// RatingOutcome is what the intake returns to the customer-facing page after a
// rating submission: either the external platform URLs to redirect to, or an
// instruction to collect private feedback.
type RatingOutcome struct {
	Positive        bool
	YandexURL       string
	GisURL          string
	CollectFeedback bool
}
