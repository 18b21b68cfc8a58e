// package http implements the HTTP transport layer for the service.
// It handles incoming requests, decodes them, calls the appropriate service methods,
// and encodes the responses.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/feedbackhub/review-attribution-service/internal/apperrors"
	"github.com/feedbackhub/review-attribution-service/internal/dispatch"
	"github.com/feedbackhub/review-attribution-service/internal/domain"
	"github.com/feedbackhub/review-attribution-service/internal/service"
	"github.com/feedbackhub/review-attribution-service/internal/validation"
	"github.com/feedbackhub/review-attribution-service/pkg/logger/sl"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SignatureVerifier authenticates scheduler callbacks before any business
// logic runs.
type SignatureVerifier interface {
	Verify(body []byte, signature string) error
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	log         *slog.Logger
	requests    service.RequestService
	tracker     service.TrackerService
	intake      service.IntakeService
	attribution service.AttributionService
	verifier    SignatureVerifier
}

// NewServer creates a new instance of the HTTP server.
func NewServer(
	log *slog.Logger,
	rs service.RequestService,
	ts service.TrackerService,
	is service.IntakeService,
	as service.AttributionService,
	verifier SignatureVerifier,
) *Server {
	return &Server{
		log:         log,
		requests:    rs,
		tracker:     ts,
		intake:      is,
		attribution: as,
		verifier:    verifier,
	}
}

// Routes sets up the router with all middleware and endpoints. Every
// customer-facing endpoint is idempotent; the attribution callback is
// signature-authenticated.
func (s *Server) Routes() http.Handler {
	mux := chi.NewRouter()

	mux.Use(s.requestID)
	mux.Use(s.logRequest)
	mux.Use(s.metricsMiddleware)

	mux.Handle("/metrics", promhttp.Handler())

	mux.Post("/requests", s.postCreateRequest)
	mux.Post("/review/{requestID}/opened", s.postMarkOpened)
	mux.Post("/review/{requestID}/rating", s.postSubmitRating)
	mux.Post("/review/{requestID}/click/{platform}", s.postMarkClicked)
	mux.Post("/review/feedback", s.postSubmitFeedback)

	mux.Post("/internal/attribution/callback", s.postAttributionCallback)

	return mux
}

func (s *Server) postCreateRequest(w http.ResponseWriter, r *http.Request) {
	const op = "internal.transport.http.postCreateRequest"

	var req createRequestRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.handleServiceError(w, op, err)
		return
	}

	created, err := s.requests.CreateRequest(r.Context(), req.BusinessID, req.Phone, req.Source)
	if err != nil {
		s.handleServiceError(w, op, err)
		return
	}

	s.respond(w, http.StatusCreated, map[string]string{
		"request_id": created.ID,
		"status":     string(created.Status),
	})
}

func (s *Server) postMarkOpened(w http.ResponseWriter, r *http.Request) {
	const op = "internal.transport.http.postMarkOpened"

	requestID := chi.URLParam(r, "requestID")

	if err := s.tracker.MarkOpened(r.Context(), requestID); err != nil {
		s.handleServiceError(w, op, err)
		return
	}

	s.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) postSubmitRating(w http.ResponseWriter, r *http.Request) {
	const op = "internal.transport.http.postSubmitRating"

	requestID := chi.URLParam(r, "requestID")

	var req submitRatingRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.handleServiceError(w, op, err)
		return
	}

	outcome, err := s.intake.SubmitRating(r.Context(), req.BusinessID, requestID, req.Rating)
	if err != nil {
		s.handleServiceError(w, op, err)
		return
	}

	if !outcome.Positive {
		s.respond(w, http.StatusOK, map[string]any{"collect_feedback": true})
		return
	}

	s.respond(w, http.StatusOK, map[string]any{
		"collect_feedback": false,
		"platform_urls": map[string]string{
			string(domain.PlatformYandex): outcome.YandexURL,
			string(domain.PlatformGis):    outcome.GisURL,
		},
	})
}

func (s *Server) postSubmitFeedback(w http.ResponseWriter, r *http.Request) {
	const op = "internal.transport.http.postSubmitFeedback"

	var req submitFeedbackRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.handleServiceError(w, op, err)
		return
	}

	if err := s.intake.SubmitFeedback(r.Context(), req.BusinessID, req.RequestID, req.Feedback); err != nil {
		s.handleServiceError(w, op, err)
		return
	}

	s.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) postMarkClicked(w http.ResponseWriter, r *http.Request) {
	const op = "internal.transport.http.postMarkClicked"

	requestID := chi.URLParam(r, "requestID")
	platform := domain.Platform(chi.URLParam(r, "platform"))

	if err := s.tracker.MarkClicked(r.Context(), requestID, platform); err != nil {
		s.handleServiceError(w, op, err)
		return
	}

	s.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

// postAttributionCallback is the scheduler's delayed delivery. The signature
// over the raw body is verified before anything else touches state; "no
// match" and "already linked" are 200s because they are expected outcomes,
// not failures.
func (s *Server) postAttributionCallback(w http.ResponseWriter, r *http.Request) {
	const op = "internal.transport.http.postAttributionCallback"

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	defer r.Body.Close()

	if err := s.verifier.Verify(body, r.Header.Get(dispatch.SignatureHeader)); err != nil {
		s.log.Warn("rejected attribution callback", slog.String("op", op), sl.Err(err))
		s.respondError(w, http.StatusUnauthorized, "invalid signature")

		return
	}

	var job dispatch.Job
	if err := json.Unmarshal(body, &job); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if job.RequestID == "" || job.BusinessID == "" || !job.Platform.Valid() {
		s.respondError(w, http.StatusBadRequest, "incomplete attribution payload")
		return
	}

	outcome, err := s.attribution.Attribute(r.Context(), job)
	if err != nil {
		s.handleServiceError(w, op, err)
		return
	}

	s.respond(w, http.StatusOK, map[string]string{"outcome": string(outcome)})
}

// respond is a helper function to encode data to JSON and write it to the response.
func (s *Server) respond(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			s.log.Error("failed to encode response", sl.Err(err))
		}
	}
}

// respondError is a convenience wrapper around respond for sending simple error messages.
func (s *Server) respondError(w http.ResponseWriter, code int, message string) {
	s.respond(w, code, map[string]string{"error": message})
}

// decodeAndValidate is a helper that deserializes a JSON request body into a struct
// and then runs validation checks on it.
func (s *Server) decodeAndValidate(r *http.Request, v interface{}) error {
	if err := s.decode(r.Body, v); err != nil {
		return err
	}

	if err := validation.ValidateStruct(v); err != nil {
		return err
	}

	return nil
}

func (s *Server) decode(body io.ReadCloser, v interface{}) error {
	defer body.Close()

	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrInvalidRequest, err)
	}

	return nil
}

// handleServiceError provides centralized error handling for all HTTP handlers.
// It logs the internal error and maps it to a user-friendly HTTP response.
func (s *Server) handleServiceError(w http.ResponseWriter, op string, err error) {
	log := s.log.With(slog.String("op", op))
	log.Error("service error occurred", sl.Err(err))

	var validationErr *validation.ValidationError

	switch {
	case errors.As(err, &validationErr):
		wrappedErr := fmt.Errorf("%w: %s", apperrors.ErrValidation, validationErr.Error())
		s.respondError(w, http.StatusBadRequest, wrappedErr.Error())
	case errors.Is(err, apperrors.ErrInvalidRequest):
		s.respondError(w, http.StatusBadRequest, "invalid request body")
	case errors.Is(err, apperrors.ErrInvalidPlatform):
		s.respondError(w, http.StatusBadRequest, apperrors.ErrInvalidPlatform.Error())
	case errors.Is(err, apperrors.ErrInvalidRating):
		s.respondError(w, http.StatusBadRequest, apperrors.ErrInvalidRating.Error())
	case errors.Is(err, apperrors.ErrEmptyFeedback):
		s.respondError(w, http.StatusBadRequest, apperrors.ErrEmptyFeedback.Error())
	case errors.Is(err, apperrors.ErrNoClickAnchor):
		s.respondError(w, http.StatusBadRequest, apperrors.ErrNoClickAnchor.Error())
	case errors.Is(err, apperrors.ErrNoListingURL):
		s.respondError(w, http.StatusBadRequest, apperrors.ErrNoListingURL.Error())
	case errors.Is(err, apperrors.ErrNotFound):
		s.respondError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, apperrors.ErrUnauthorized):
		s.respondError(w, http.StatusUnauthorized, "invalid signature")
	case errors.Is(err, apperrors.ErrScheduleFailed):
		// The click was recorded; the client may retry, the reconciler will
		// otherwise pick the request up.
		s.respondError(w, http.StatusBadGateway, "failed to schedule attribution, try again later")
	default:
		s.respondError(w, http.StatusInternalServerError, "internal server error")
	}
}
