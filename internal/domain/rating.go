package domain

import "time"

// Rating bounds accepted for a single vote.
const (
	MinRating = 1
	MaxRating = 5
)

// RatingEvent is one immutable vote for a movie.
type RatingEvent struct {
	ID             int64
	MovieID        int64
	Rating         int
	ClientIdentity string
	CreatedAt      time.Time
}

// RatingAggregate provides average and count for a movie's ratings.
type RatingAggregate struct {
	MovieID int64   `json:"movieId"`
	Count   int64   `json:"count"`
	Average float64 `json:"average"`
}

// NewRatingAggregate computes the aggregate for the given rating values.
// An empty slice yields a zero average.
func NewRatingAggregate(movieID int64, values []int) RatingAggregate {
	agg := RatingAggregate{MovieID: movieID, Count: int64(len(values))}
	if agg.Count == 0 {
		return agg
	}
	var sum int64
	for _, v := range values {
		sum += int64(v)
	}
	agg.Average = float64(sum) / float64(agg.Count)
	return agg
}

// SubmitResult is the user-facing outcome of a rating submission.
type SubmitResult struct {
	Success      bool
	Message      string
	NewAggregate *RatingAggregate
}
