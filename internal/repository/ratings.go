package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/movie-ratings/internal/domain"
)

const uniqueViolation = "23505"

// RatingsRepository is the append-only store of rating events.
type RatingsRepository struct {
	pool *pgxpool.Pool
}

// RatingInsertParams captures the payload required to append a rating.
type RatingInsertParams struct {
	MovieID        int64
	Rating         int
	ClientIdentity string
	CreatedAt      time.Time
}

// Insert appends one rating event and returns its id.
// A second vote from the same client for the same movie yields ErrDuplicateRating.
func (r *RatingsRepository) Insert(ctx context.Context, params RatingInsertParams) (int64, error) {
	const query = `
        INSERT INTO movie_ratings (movie_id, rating, client_identity, created_at)
        VALUES ($1,$2,$3,$4)
        RETURNING id
    `

	createdAt := params.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var id int64
	err := r.pool.QueryRow(ctx, query, params.MovieID, params.Rating, params.ClientIdentity, createdAt).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return 0, ErrDuplicateRating
		}
		return 0, &domain.PersistenceError{Op: "insert rating", MovieID: params.MovieID, Err: err}
	}
	return id, nil
}

// CountByMovieAndIdentity returns how many votes the client has stored for the movie.
func (r *RatingsRepository) CountByMovieAndIdentity(ctx context.Context, movieID int64, clientIdentity string) (int64, error) {
	const query = `
        SELECT COUNT(*)::int8
        FROM movie_ratings
        WHERE movie_id = $1 AND client_identity = $2
    `

	var count int64
	if err := r.pool.QueryRow(ctx, query, movieID, clientIdentity).Scan(&count); err != nil {
		return 0, &domain.PersistenceError{Op: "count ratings by identity", MovieID: movieID, Err: err}
	}
	return count, nil
}

// RatingsForMovie returns every rating value stored for the movie.
func (r *RatingsRepository) RatingsForMovie(ctx context.Context, movieID int64) ([]int, error) {
	const query = `SELECT rating FROM movie_ratings WHERE movie_id = $1`

	rows, err := r.pool.Query(ctx, query, movieID)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "list ratings", MovieID: movieID, Err: err}
	}
	values, err := pgx.CollectRows(rows, pgx.RowTo[int])
	if err != nil {
		return nil, &domain.PersistenceError{Op: "list ratings", MovieID: movieID, Err: err}
	}
	return values, nil
}
