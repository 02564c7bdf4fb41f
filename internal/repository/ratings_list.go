package repository

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/Clark-Hu/movie-ratings/internal/domain"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// RatingListFilters selects rated movies by their rounded average.
type RatingListFilters struct {
	Stars  *int
	Limit  int
	Cursor *RatingCursor
}

// RatingCursor allows stable pagination by movie id.
type RatingCursor struct {
	MovieID int64 `json:"movieId"`
}

// RatingListResult returns the paginated payload.
type RatingListResult struct {
	Items      []domain.RatingAggregate
	NextCursor *string
}

// ListByAverage returns per-movie aggregates, optionally restricted to movies whose
// average rounds to the requested star value.
func (r *RatingsRepository) ListByAverage(ctx context.Context, filters RatingListFilters) (RatingListResult, error) {
	if filters.Limit <= 0 {
		filters.Limit = defaultListLimit
	} else if filters.Limit > maxListLimit {
		filters.Limit = maxListLimit
	}

	args := make([]interface{}, 0, 2)
	arg := func(value interface{}) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	queryBuilder := strings.Builder{}
	queryBuilder.WriteString(`SELECT movie_id, COUNT(*)::int8, AVG(rating)::float8 FROM movie_ratings`)
	if filters.Cursor != nil {
		queryBuilder.WriteString(" WHERE movie_id > ")
		queryBuilder.WriteString(arg(filters.Cursor.MovieID))
	}
	queryBuilder.WriteString(" GROUP BY movie_id")
	if filters.Stars != nil {
		queryBuilder.WriteString(" HAVING ROUND(AVG(rating)) = ")
		queryBuilder.WriteString(arg(*filters.Stars))
	}
	queryBuilder.WriteString(" ORDER BY movie_id")
	queryBuilder.WriteString(fmt.Sprintf(" LIMIT %d", filters.Limit))

	rows, err := r.pool.Query(ctx, queryBuilder.String(), args...)
	if err != nil {
		return RatingListResult{}, &domain.PersistenceError{Op: "list by average", Err: err}
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.RatingAggregate, error) {
		var agg domain.RatingAggregate
		err := row.Scan(&agg.MovieID, &agg.Count, &agg.Average)
		return agg, err
	})
	if err != nil {
		return RatingListResult{}, &domain.PersistenceError{Op: "list by average", Err: err}
	}

	var nextCursor *string
	if len(items) == filters.Limit {
		token, err := encodeCursor(RatingCursor{MovieID: items[len(items)-1].MovieID})
		if err != nil {
			return RatingListResult{}, err
		}
		nextCursor = &token
	}

	return RatingListResult{Items: items, NextCursor: nextCursor}, nil
}

func encodeCursor(c RatingCursor) (string, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(payload), nil
}

// DecodeCursor parses a cursor token into a RatingCursor.
func DecodeCursor(token string) (*RatingCursor, error) {
	if token == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor: %w", err)
	}
	var cursor RatingCursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return nil, fmt.Errorf("invalid cursor payload: %w", err)
	}
	if cursor.MovieID <= 0 {
		return nil, fmt.Errorf("invalid cursor position")
	}
	return &cursor, nil
}
