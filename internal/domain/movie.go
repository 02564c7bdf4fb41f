package domain

// MovieBundle is the content type that accepts ratings.
const MovieBundle = "movies"

// Movie is the slice of an externally owned content item this service needs.
type Movie struct {
	ID     int64
	Title  string
	Bundle string
}

// Rateable reports whether the content item accepts ratings.
func (m Movie) Rateable() bool {
	return m.Bundle == MovieBundle
}
