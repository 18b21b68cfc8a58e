package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/feedbackhub/review-attribution-service/internal/apperrors"
	"github.com/feedbackhub/review-attribution-service/internal/dispatch"
	"github.com/feedbackhub/review-attribution-service/internal/domain"
	"github.com/feedbackhub/review-attribution-service/internal/scraper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const matchWindow = 4 * time.Hour

func timePtr(t time.Time) *time.Time { return &t }

func int64Ptr(v int64) *int64 { return &v }

func newAttributionFixture() (*RequestRepositoryMock, *ExternalReviewRepositoryMock, *BusinessRepositoryMock, *SourceMock, *AttributionServiceImpl) {
	repoMock := new(RequestRepositoryMock)
	reviewsMock := new(ExternalReviewRepositoryMock)
	bizMock := new(BusinessRepositoryMock)
	sourceMock := new(SourceMock)

	sources := scraper.Sources{
		domain.PlatformYandex: sourceMock,
		domain.PlatformGis:    sourceMock,
	}

	service := NewAttributionService(newTestLogger(), repoMock, reviewsMock, bizMock, sources, matchWindow)

	return repoMock, reviewsMock, bizMock, sourceMock, service
}

func TestAttributionServiceImpl_Attribute(t *testing.T) {
	ctx := context.Background()
	clickedAt := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	job := dispatch.Job{
		RequestID:  "req-1",
		BusinessID: "biz-1",
		Platform:   domain.PlatformYandex,
	}

	clickedRequest := &domain.ReviewRequest{
		ID:              "req-1",
		BusinessID:      "biz-1",
		Status:          domain.StatusReviewed,
		ClickedYandexAt: timePtr(clickedAt),
	}

	business := &domain.Business{
		ID:        "biz-1",
		Name:      "Coffee Point",
		YandexURL: strPtr("https://yandex.ru/maps/org/coffee-point/123456789/"),
	}

	inWindow := domain.ScrapedReview{
		PlatformReviewID: "y-100",
		Rating:           5,
		Text:             strPtr("Great place"),
		PublishedAt:      clickedAt.Add(30 * time.Minute),
	}

	testCases := []struct {
		name            string
		job             dispatch.Job
		setupMock       func(repoMock *RequestRepositoryMock, reviewsMock *ExternalReviewRepositoryMock, bizMock *BusinessRepositoryMock, sourceMock *SourceMock)
		expectedOutcome Outcome
		expectedError   error
	}{
		{
			name: "Success: review inside the window gets linked",
			job:  job,
			setupMock: func(repoMock *RequestRepositoryMock, reviewsMock *ExternalReviewRepositoryMock, bizMock *BusinessRepositoryMock, sourceMock *SourceMock) {
				repoMock.On("GetByID", mock.Anything, "req-1").Return(clickedRequest, nil).Once()
				bizMock.On("GetByID", mock.Anything, "biz-1").Return(business, nil).Once()
				sourceMock.On("FetchReviews", mock.Anything, *business.YandexURL).
					Return([]domain.ScrapedReview{inWindow}, nil).Once()
				reviewsMock.On("Upsert", mock.Anything, mock.Anything).Return(int64(42), nil).Once()
				repoMock.On("LinkExternalReview", mock.Anything, "req-1", int64(42)).Return(true, nil).Once()
			},
			expectedOutcome: OutcomeLinked,
			expectedError:   nil,
		},
		{
			name: "Success: already linked request skips the fetch entirely",
			job:  job,
			setupMock: func(repoMock *RequestRepositoryMock, reviewsMock *ExternalReviewRepositoryMock, bizMock *BusinessRepositoryMock, sourceMock *SourceMock) {
				linked := *clickedRequest
				linked.ExternalReviewID = int64Ptr(7)
				repoMock.On("GetByID", mock.Anything, "req-1").Return(&linked, nil).Once()
			},
			expectedOutcome: OutcomeAlreadyLinked,
			expectedError:   nil,
		},
		{
			name: "Success: empty fetch is a no-match, not a failure",
			job:  job,
			setupMock: func(repoMock *RequestRepositoryMock, reviewsMock *ExternalReviewRepositoryMock, bizMock *BusinessRepositoryMock, sourceMock *SourceMock) {
				repoMock.On("GetByID", mock.Anything, "req-1").Return(clickedRequest, nil).Once()
				bizMock.On("GetByID", mock.Anything, "biz-1").Return(business, nil).Once()
				sourceMock.On("FetchReviews", mock.Anything, *business.YandexURL).
					Return([]domain.ScrapedReview{}, nil).Once()
			},
			expectedOutcome: OutcomeNoMatch,
			expectedError:   nil,
		},
		{
			name: "Success: unrecognized listing URL degrades to no-match",
			job:  job,
			setupMock: func(repoMock *RequestRepositoryMock, reviewsMock *ExternalReviewRepositoryMock, bizMock *BusinessRepositoryMock, sourceMock *SourceMock) {
				repoMock.On("GetByID", mock.Anything, "req-1").Return(clickedRequest, nil).Once()
				bizMock.On("GetByID", mock.Anything, "biz-1").Return(business, nil).Once()
				sourceMock.On("FetchReviews", mock.Anything, *business.YandexURL).
					Return(nil, apperrors.ErrUnrecognizedURL).Once()
			},
			expectedOutcome: OutcomeNoMatch,
			expectedError:   nil,
		},
		{
			name: "Success: concurrent duplicate loses the link race",
			job:  job,
			setupMock: func(repoMock *RequestRepositoryMock, reviewsMock *ExternalReviewRepositoryMock, bizMock *BusinessRepositoryMock, sourceMock *SourceMock) {
				repoMock.On("GetByID", mock.Anything, "req-1").Return(clickedRequest, nil).Once()
				bizMock.On("GetByID", mock.Anything, "biz-1").Return(business, nil).Once()
				sourceMock.On("FetchReviews", mock.Anything, *business.YandexURL).
					Return([]domain.ScrapedReview{inWindow}, nil).Once()
				reviewsMock.On("Upsert", mock.Anything, mock.Anything).Return(int64(42), nil).Once()
				repoMock.On("LinkExternalReview", mock.Anything, "req-1", int64(42)).Return(false, nil).Once()
			},
			expectedOutcome: OutcomeAlreadyLinked,
			expectedError:   nil,
		},
		{
			name: "Failure: no click recorded for the platform",
			job:  dispatch.Job{RequestID: "req-1", BusinessID: "biz-1", Platform: domain.PlatformGis},
			setupMock: func(repoMock *RequestRepositoryMock, reviewsMock *ExternalReviewRepositoryMock, bizMock *BusinessRepositoryMock, sourceMock *SourceMock) {
				repoMock.On("GetByID", mock.Anything, "req-1").Return(clickedRequest, nil).Once()
			},
			expectedOutcome: "",
			expectedError:   apperrors.ErrNoClickAnchor,
		},
		{
			name: "Failure: business has no listing for the platform",
			job:  job,
			setupMock: func(repoMock *RequestRepositoryMock, reviewsMock *ExternalReviewRepositoryMock, bizMock *BusinessRepositoryMock, sourceMock *SourceMock) {
				repoMock.On("GetByID", mock.Anything, "req-1").Return(clickedRequest, nil).Once()
				bizMock.On("GetByID", mock.Anything, "biz-1").
					Return(&domain.Business{ID: "biz-1", Name: "Coffee Point"}, nil).Once()
			},
			expectedOutcome: "",
			expectedError:   apperrors.ErrNoListingURL,
		},
		{
			name: "Failure: unknown request",
			job:  job,
			setupMock: func(repoMock *RequestRepositoryMock, reviewsMock *ExternalReviewRepositoryMock, bizMock *BusinessRepositoryMock, sourceMock *SourceMock) {
				repoMock.On("GetByID", mock.Anything, "req-1").Return(nil, apperrors.ErrNotFound).Once()
			},
			expectedOutcome: "",
			expectedError:   apperrors.ErrNotFound,
		},
		{
			name:            "Failure: unsupported platform in the job",
			job:             dispatch.Job{RequestID: "req-1", BusinessID: "biz-1", Platform: domain.Platform("tripadvisor")},
			setupMock:       func(repoMock *RequestRepositoryMock, reviewsMock *ExternalReviewRepositoryMock, bizMock *BusinessRepositoryMock, sourceMock *SourceMock) {},
			expectedOutcome: "",
			expectedError:   apperrors.ErrInvalidPlatform,
		},
		{
			name: "Failure: upsert fails",
			job:  job,
			setupMock: func(repoMock *RequestRepositoryMock, reviewsMock *ExternalReviewRepositoryMock, bizMock *BusinessRepositoryMock, sourceMock *SourceMock) {
				repoMock.On("GetByID", mock.Anything, "req-1").Return(clickedRequest, nil).Once()
				bizMock.On("GetByID", mock.Anything, "biz-1").Return(business, nil).Once()
				sourceMock.On("FetchReviews", mock.Anything, *business.YandexURL).
					Return([]domain.ScrapedReview{inWindow}, nil).Once()
				reviewsMock.On("Upsert", mock.Anything, mock.Anything).
					Return(int64(0), errors.New("database connection lost")).Once()
			},
			expectedOutcome: "",
			expectedError:   errors.New("database connection lost"),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			repoMock, reviewsMock, bizMock, sourceMock, service := newAttributionFixture()
			tc.setupMock(repoMock, reviewsMock, bizMock, sourceMock)

			outcome, err := service.Attribute(ctx, tc.job)

			assert.Equal(t, tc.expectedOutcome, outcome)

			if tc.expectedError != nil {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tc.expectedError.Error())
			} else {
				assert.NoError(t, err)
			}

			repoMock.AssertExpectations(t)
			reviewsMock.AssertExpectations(t)
			bizMock.AssertExpectations(t)
			sourceMock.AssertExpectations(t)
		})
	}
}

// The upserted review must carry the matched review's identity and the job's
// business and platform, so dedup across requests lands on the same row.
func TestAttributionServiceImpl_Attribute_UpsertPayload(t *testing.T) {
	ctx := context.Background()
	clickedAt := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	repoMock, reviewsMock, bizMock, sourceMock, service := newAttributionFixture()

	req := &domain.ReviewRequest{ID: "req-1", BusinessID: "biz-1", ClickedGisAt: timePtr(clickedAt)}
	business := &domain.Business{ID: "biz-1", GisURL: strPtr("https://2gis.ru/spb/firm/987654321")}

	scrapedAuthor := strPtr("Anna")
	scraped := domain.ScrapedReview{
		PlatformReviewID: "g-555",
		Rating:           4,
		Author:           scrapedAuthor,
		PublishedAt:      clickedAt.Add(time.Hour),
	}

	repoMock.On("GetByID", mock.Anything, "req-1").Return(req, nil).Once()
	bizMock.On("GetByID", mock.Anything, "biz-1").Return(business, nil).Once()
	sourceMock.On("FetchReviews", mock.Anything, *business.GisURL).
		Return([]domain.ScrapedReview{scraped}, nil).Once()
	reviewsMock.On("Upsert", mock.Anything, mock.MatchedBy(func(r *domain.ExternalReview) bool {
		return r.BusinessID == "biz-1" &&
			r.Platform == domain.PlatformGis &&
			r.PlatformReviewID == "g-555" &&
			r.Rating == 4 &&
			r.Author == scrapedAuthor &&
			r.PublishedAt.Equal(scraped.PublishedAt)
	})).Return(int64(9), nil).Once()
	repoMock.On("LinkExternalReview", mock.Anything, "req-1", int64(9)).Return(true, nil).Once()

	outcome, err := service.Attribute(ctx, dispatch.Job{
		RequestID:  "req-1",
		BusinessID: "biz-1",
		Platform:   domain.PlatformGis,
	})

	require.NoError(t, err)
	assert.Equal(t, OutcomeLinked, outcome)
	reviewsMock.AssertExpectations(t)
}

func TestMatchReview(t *testing.T) {
	clickedAt := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	review := func(id string, published time.Time) domain.ScrapedReview {
		return domain.ScrapedReview{PlatformReviewID: id, Rating: 5, PublishedAt: published}
	}

	testCases := []struct {
		name          string
		reviews       []domain.ScrapedReview
		expectedID    string
		expectedFound bool
	}{
		{
			name:          "review exactly at the click instant matches",
			reviews:       []domain.ScrapedReview{review("r1", clickedAt)},
			expectedID:    "r1",
			expectedFound: true,
		},
		{
			name:          "review exactly at the window end matches",
			reviews:       []domain.ScrapedReview{review("r1", clickedAt.Add(matchWindow))},
			expectedID:    "r1",
			expectedFound: true,
		},
		{
			name:          "review just before the click does not match",
			reviews:       []domain.ScrapedReview{review("r1", clickedAt.Add(-time.Microsecond))},
			expectedFound: false,
		},
		{
			name:          "review just past the window end does not match",
			reviews:       []domain.ScrapedReview{review("r1", clickedAt.Add(matchWindow + time.Microsecond))},
			expectedFound: false,
		},
		{
			name: "first candidate in adapter order wins over a closer one",
			reviews: []domain.ScrapedReview{
				review("far", clickedAt.Add(3*time.Hour)),
				review("near", clickedAt.Add(time.Minute)),
			},
			expectedID:    "far",
			expectedFound: true,
		},
		{
			name: "out-of-window entries are skipped until a candidate appears",
			reviews: []domain.ScrapedReview{
				review("old", clickedAt.Add(-48*time.Hour)),
				review("late", clickedAt.Add(5*time.Hour)),
				review("ok", clickedAt.Add(2*time.Hour)),
			},
			expectedID:    "ok",
			expectedFound: true,
		},
		{
			name:          "empty fetch never matches",
			reviews:       nil,
			expectedFound: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			match, ok := matchReview(tc.reviews, clickedAt, matchWindow)

			assert.Equal(t, tc.expectedFound, ok)

			if tc.expectedFound {
				assert.Equal(t, tc.expectedID, match.PlatformReviewID)
			}
		})
	}
}
