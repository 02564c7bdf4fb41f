package ratings

import "context"

// IdentityCounter counts stored votes for a (movie, client identity) pair.
type IdentityCounter interface {
	CountByMovieAndIdentity(ctx context.Context, movieID int64, clientIdentity string) (int64, error)
}

// DuplicateGuard decides whether a client already voted for a movie.
//
// The client identity is a network address, so clients behind a shared proxy
// or NAT collide. The store's unique constraint stays the authoritative check;
// the guard is the fast path in front of it.
type DuplicateGuard struct {
	store IdentityCounter
}

// NewDuplicateGuard builds a guard over store.
func NewDuplicateGuard(store IdentityCounter) *DuplicateGuard {
	return &DuplicateGuard{store: store}
}

// HasAlreadyRated reports whether at least one vote exists for the pair.
func (g *DuplicateGuard) HasAlreadyRated(ctx context.Context, movieID int64, clientIdentity string) (bool, error) {
	count, err := g.store.CountByMovieAndIdentity(ctx, movieID, clientIdentity)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
