// Package ratings accepts 1-5 star votes, suppresses repeat votes per client
// and serves cached per-movie averages.
package ratings

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Clark-Hu/movie-ratings/internal/cache"
	"github.com/Clark-Hu/movie-ratings/internal/domain"
	"github.com/Clark-Hu/movie-ratings/internal/logging"
	"github.com/Clark-Hu/movie-ratings/internal/repository"
)

// User-facing messages.
const (
	MsgInvalidRating   = "invalid rating"
	MsgInvalidMovieID  = "invalid movie id"
	MsgInvalidIdentity = "invalid client identity"
	MsgAlreadyRated    = "You have already rated this movie."
	MsgSubmitted       = "Thank you for sharing your rating."
	MsgSubmitFailed    = "Failed to submit rating."
)

// Store is the persistence contract of the service.
type Store interface {
	IdentityCounter
	Insert(ctx context.Context, params repository.RatingInsertParams) (int64, error)
	RatingsForMovie(ctx context.Context, movieID int64) ([]int, error)
}

// Cache memoizes aggregates per movie.
type Cache interface {
	Get(ctx context.Context, movieID int64) (domain.RatingAggregate, bool, error)
	Stamp(ctx context.Context, movieID int64) (cache.Stamp, error)
	Put(ctx context.Context, movieID int64, result domain.RatingAggregate, ttl time.Duration, stamp cache.Stamp) error
	Invalidate(ctx context.Context, movieID int64) error
}

// Options tunes a Service.
type Options struct {
	CacheTTL time.Duration
	Logger   *zap.Logger
	Now      func() time.Time
}

// Service is the single entry point for submitting and reading ratings.
type Service struct {
	store  Store
	guard  *DuplicateGuard
	cache  Cache
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
	tracer trace.Tracer
}

// NewService wires the service from its collaborators.
func NewService(store Store, aggregates Cache, opts Options) *Service {
	if aggregates == nil {
		aggregates = cache.NewAggregateCache(nil, opts.CacheTTL)
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = cache.DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:  store,
		guard:  NewDuplicateGuard(store),
		cache:  aggregates,
		ttl:    opts.CacheTTL,
		logger: logging.OrNop(opts.Logger).Named("ratings"),
		now:    opts.Now,
		tracer: otel.Tracer("github.com/Clark-Hu/movie-ratings/internal/ratings"),
	}
}

// ParseRating converts a transport value into a star rating.
func ParseRating(raw string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || !validRating(value) {
		return 0, domain.NewValidationError(MsgInvalidRating)
	}
	return value, nil
}

// ParseMovieID converts a transport value into a movie id.
func ParseMovieID(raw string) (int64, error) {
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || value <= 0 {
		return 0, domain.NewValidationError(MsgInvalidMovieID)
	}
	return value, nil
}

// SubmitRating records one vote. Validation failures return a
// *domain.ValidationError; duplicates and storage failures are reported
// through an unsuccessful result with a nil error.
func (s *Service) SubmitRating(ctx context.Context, movieID int64, rating int, clientIdentity string) (domain.SubmitResult, error) {
	ctx, span := s.tracer.Start(ctx, "ratings.SubmitRating", trace.WithAttributes(
		attribute.Int64("movie.id", movieID),
		attribute.Int("rating.value", rating),
	))
	defer span.End()

	if !validRating(rating) {
		return rejected(span, MsgInvalidRating)
	}
	if movieID <= 0 {
		return rejected(span, MsgInvalidMovieID)
	}
	if strings.TrimSpace(clientIdentity) == "" {
		return rejected(span, MsgInvalidIdentity)
	}

	already, err := s.guard.HasAlreadyRated(ctx, movieID, clientIdentity)
	if err != nil {
		s.logFailure(span, "duplicate check", movieID, err)
		return domain.SubmitResult{Success: false, Message: MsgSubmitFailed}, nil
	}
	if already {
		span.SetAttributes(attribute.Bool("rating.duplicate", true))
		return domain.SubmitResult{Success: false, Message: MsgAlreadyRated}, nil
	}

	_, err = s.store.Insert(ctx, repository.RatingInsertParams{
		MovieID:        movieID,
		Rating:         rating,
		ClientIdentity: clientIdentity,
		CreatedAt:      s.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateRating) {
			span.SetAttributes(attribute.Bool("rating.duplicate", true))
			return domain.SubmitResult{Success: false, Message: MsgAlreadyRated}, nil
		}
		s.logFailure(span, "insert rating", movieID, err)
		return domain.SubmitResult{Success: false, Message: MsgSubmitFailed}, nil
	}

	if err := s.cache.Invalidate(ctx, movieID); err != nil {
		s.logger.Warn("invalidate aggregate cache failed", zap.Int64("movie_id", movieID), zap.Error(err))
	}

	result := domain.SubmitResult{Success: true, Message: MsgSubmitted}
	if agg, err := s.GetAverageRating(ctx, movieID); err == nil {
		result.NewAggregate = &agg
	}
	return result, nil
}

// GetAverageRating returns the vote count and average for a movie, serving
// from the cache when possible.
func (s *Service) GetAverageRating(ctx context.Context, movieID int64) (domain.RatingAggregate, error) {
	ctx, span := s.tracer.Start(ctx, "ratings.GetAverageRating", trace.WithAttributes(attribute.Int64("movie.id", movieID)))
	defer span.End()

	if movieID <= 0 {
		span.SetStatus(codes.Error, MsgInvalidMovieID)
		return domain.RatingAggregate{}, domain.NewValidationError(MsgInvalidMovieID)
	}

	useCache := true
	agg, hit, err := s.cache.Get(ctx, movieID)
	switch {
	case err != nil:
		useCache = false
		s.logger.Warn("aggregate cache read failed, computing directly", zap.Int64("movie_id", movieID), zap.Error(err))
	case hit:
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return agg, nil
	}

	var stamp cache.Stamp
	if useCache {
		stamp, err = s.cache.Stamp(ctx, movieID)
		if err != nil {
			useCache = false
			s.logger.Warn("aggregate cache stamp failed", zap.Int64("movie_id", movieID), zap.Error(err))
		}
	}

	values, err := s.store.RatingsForMovie(ctx, movieID)
	if err != nil {
		s.logFailure(span, "list ratings", movieID, err)
		return domain.RatingAggregate{}, err
	}
	agg = domain.NewRatingAggregate(movieID, values)

	if useCache {
		if err := s.cache.Put(ctx, movieID, agg, s.ttl, stamp); err != nil {
			s.logger.Warn("aggregate cache write failed", zap.Int64("movie_id", movieID), zap.Error(err))
		}
	}
	return agg, nil
}

// HasUserAlreadyRated reports whether clientIdentity already voted for movieID.
func (s *Service) HasUserAlreadyRated(ctx context.Context, movieID int64, clientIdentity string) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "ratings.HasUserAlreadyRated", trace.WithAttributes(attribute.Int64("movie.id", movieID)))
	defer span.End()

	already, err := s.guard.HasAlreadyRated(ctx, movieID, clientIdentity)
	if err != nil {
		s.logFailure(span, "duplicate check", movieID, err)
		return false, err
	}
	return already, nil
}

func (s *Service) logFailure(span trace.Span, op string, movieID int64, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, op)
	s.logger.Error("rating operation failed",
		zap.String("op", op),
		zap.Int64("movie_id", movieID),
		zap.Error(err),
	)
}

func rejected(span trace.Span, message string) (domain.SubmitResult, error) {
	span.SetStatus(codes.Error, message)
	return domain.SubmitResult{Success: false, Message: message}, domain.NewValidationError(message)
}

func validRating(v int) bool {
	return v >= domain.MinRating && v <= domain.MaxRating
}
