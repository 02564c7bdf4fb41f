package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Clark-Hu/movie-ratings/internal/content"
	"github.com/Clark-Hu/movie-ratings/internal/domain"
	"github.com/Clark-Hu/movie-ratings/internal/ratings"
	"github.com/Clark-Hu/movie-ratings/internal/repository"
)

const maxRequestBody = 1 << 20 // 1 MiB

type errorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type ratingRequest struct {
	Rating json.RawMessage `json:"rating"`
	// Website is a honeypot; humans never see the field.
	Website string `json:"website"`
}

type aggregateResponse struct {
	MovieID int64   `json:"movieId"`
	Count   int64   `json:"count"`
	Average float64 `json:"average"`
}

type submitResponse struct {
	Success   bool               `json:"success"`
	Message   string             `json:"message"`
	Aggregate *aggregateResponse `json:"aggregate,omitempty"`
}

type statusResponse struct {
	AlreadyRated bool   `json:"alreadyRated"`
	Message      string `json:"message,omitempty"`
}

type ratedListResponse struct {
	Items      []aggregateResponse `json:"items"`
	NextCursor *string             `json:"nextCursor,omitempty"`
}

func (s *Server) handleGetRating(w http.ResponseWriter, r *http.Request) {
	movieID, ok := s.movieIDParam(w, r)
	if !ok {
		return
	}
	if !s.ensureMovie(r.Context(), w, movieID) {
		return
	}

	agg, err := s.ratings.GetAverageRating(r.Context(), movieID)
	if err != nil {
		s.respondServiceError(w, err, "Failed to fetch rating")
		return
	}
	s.respondJSON(w, http.StatusOK, toAggregateResponse(agg))
}

func (s *Server) handleRatingStatus(w http.ResponseWriter, r *http.Request) {
	movieID, ok := s.movieIDParam(w, r)
	if !ok {
		return
	}
	if !s.ensureMovie(r.Context(), w, movieID) {
		return
	}

	already, err := s.ratings.HasUserAlreadyRated(r.Context(), movieID, s.identity(r))
	if err != nil {
		s.respondServiceError(w, err, "Failed to fetch rating status")
		return
	}

	resp := statusResponse{AlreadyRated: already}
	if already {
		resp.Message = ratings.MsgAlreadyRated
		if agg, err := s.ratings.GetAverageRating(r.Context(), movieID); err == nil {
			resp.Message = alreadyRatedMessage(agg)
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// handleSubmitRating validates the rating before the movie id, matching
// Service.SubmitRating.
func (s *Server) handleSubmitRating(w http.ResponseWriter, r *http.Request) {
	var req ratingRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}
	if strings.TrimSpace(req.Website) != "" {
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", ratings.MsgInvalidRating)
		return
	}
	value, err := parseRatingValue(req.Rating)
	if err != nil {
		s.respondServiceError(w, err, "Failed to submit rating")
		return
	}
	movieID, ok := s.movieIDParam(w, r)
	if !ok {
		return
	}
	if !s.ensureMovie(r.Context(), w, movieID) {
		return
	}

	result, err := s.ratings.SubmitRating(r.Context(), movieID, value, s.identity(r))
	if err != nil {
		s.respondServiceError(w, err, "Failed to submit rating")
		return
	}

	resp := submitResponse{Success: result.Success, Message: result.Message}
	if result.NewAggregate != nil {
		agg := toAggregateResponse(*result.NewAggregate)
		resp.Aggregate = &agg
	}
	if !result.Success {
		if result.Message == ratings.MsgAlreadyRated {
			if agg, err := s.ratings.GetAverageRating(r.Context(), movieID); err == nil {
				resp.Message = alreadyRatedMessage(agg)
				current := toAggregateResponse(agg)
				resp.Aggregate = &current
			}
		}
		s.respondJSON(w, http.StatusOK, resp)
		return
	}
	s.respondJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleListRated(w http.ResponseWriter, r *http.Request) {
	if s.lister == nil {
		s.respondError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
		return
	}
	filters, err := buildRatingFilters(r.URL.Query())
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	result, err := s.lister.ListByAverage(r.Context(), filters)
	if err != nil {
		s.logger.Error("list rated movies failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list rated movies")
		return
	}

	items := make([]aggregateResponse, 0, len(result.Items))
	for _, agg := range result.Items {
		items = append(items, toAggregateResponse(agg))
	}
	s.respondJSON(w, http.StatusOK, ratedListResponse{Items: items, NextCursor: result.NextCursor})
}

func buildRatingFilters(query url.Values) (repository.RatingListFilters, error) {
	var filters repository.RatingListFilters

	if val := strings.TrimSpace(query.Get("stars")); val != "" {
		stars, err := strconv.Atoi(val)
		if err != nil || stars < domain.MinRating || stars > domain.MaxRating {
			return filters, fmt.Errorf("invalid stars value")
		}
		filters.Stars = &stars
	}
	if val := strings.TrimSpace(query.Get("limit")); val != "" {
		limit, err := strconv.Atoi(val)
		if err != nil {
			return filters, fmt.Errorf("invalid limit value")
		}
		filters.Limit = limit
	}
	if val := strings.TrimSpace(query.Get("cursor")); val != "" {
		cursor, err := repository.DecodeCursor(val)
		if err != nil {
			return filters, fmt.Errorf("invalid cursor")
		}
		filters.Cursor = cursor
	}
	return filters, nil
}

// parseRatingValue accepts the rating as a JSON number or a numeric string.
func parseRatingValue(raw json.RawMessage) (int, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return 0, domain.NewValidationError(ratings.MsgInvalidRating)
	}
	text := string(trimmed)
	if trimmed[0] == '"' {
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return 0, domain.NewValidationError(ratings.MsgInvalidRating)
		}
	}
	return ratings.ParseRating(text)
}

func (s *Server) movieIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	movieID, err := ratings.ParseMovieID(chi.URLParam(r, "movieId"))
	if err != nil {
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", ratings.MsgInvalidMovieID)
		return 0, false
	}
	return movieID, true
}

// ensureMovie writes a 404 and returns false when the content service says
// the id is not a rateable movie. Lookup failures other than not-found are
// logged and let the request through.
func (s *Server) ensureMovie(ctx context.Context, w http.ResponseWriter, movieID int64) bool {
	if s.content == nil {
		return true
	}
	timeout := time.Duration(s.cfg.ContentTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	movie, err := s.content.Lookup(ctx, movieID)
	switch {
	case errors.Is(err, content.ErrNotFound):
		s.respondError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
		return false
	case err != nil:
		s.logger.Warn("content lookup failed", zap.Int64("movie_id", movieID), zap.Error(err))
		return true
	case !movie.Rateable():
		s.respondError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
		return false
	}
	return true
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return nil
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			s.logger.Warn("failed to encode response", zap.Error(err))
		}
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, code, message string) {
	s.respondJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// respondServiceError maps service errors to responses without leaking causes.
func (s *Server) respondServiceError(w http.ResponseWriter, err error, fallback string) {
	var vErr *domain.ValidationError
	if errors.As(err, &vErr) {
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", vErr.Message)
		return
	}
	s.logger.Error("rating request failed", zap.Error(err))
	s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", fallback)
}

func (s *Server) respondDecodeError(w http.ResponseWriter, err error) {
	var syntaxError *json.SyntaxError
	var typeError *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxError), errors.Is(err, io.ErrUnexpectedEOF):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Malformed JSON payload")
	case errors.As(err, &typeError):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", fmt.Sprintf("Invalid value for field %s", typeError.Field))
	case errors.Is(err, io.EOF):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Request body cannot be empty")
	default:
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Unable to parse request body")
	}
}

func toAggregateResponse(agg domain.RatingAggregate) aggregateResponse {
	return aggregateResponse{
		MovieID: agg.MovieID,
		Count:   agg.Count,
		Average: roundToOneDecimal(agg.Average),
	}
}

func alreadyRatedMessage(agg domain.RatingAggregate) string {
	return fmt.Sprintf("%s Current average: %.1f/5 (%d votes)", ratings.MsgAlreadyRated, roundToOneDecimal(agg.Average), agg.Count)
}

func roundToOneDecimal(value float64) float64 {
	return math.Round(value*10) / 10.0
}
