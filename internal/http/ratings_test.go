package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/Clark-Hu/movie-ratings/internal/config"
	"github.com/Clark-Hu/movie-ratings/internal/domain"
	"github.com/Clark-Hu/movie-ratings/internal/ratings"
)

func TestRoundToOneDecimal(t *testing.T) {
	tests := []struct {
		name  string
		value float64
		want  float64
	}{
		{"zero", 0, 0},
		{"round-up", 3.75, 3.8},
		{"round-down", 2.74, 2.7},
		{"exact", 4.5, 4.5},
		{"thirds", 11.0 / 3.0, 3.7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := roundToOneDecimal(tt.value)
			if math.Abs(got-tt.want) > 0.0001 {
				t.Fatalf("roundToOneDecimal(%v) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestParseRatingValue(t *testing.T) {
	valid := map[string]int{`1`: 1, `5`: 5, `"3"`: 3, ` 4 `: 4}
	for raw, want := range valid {
		got, err := parseRatingValue(json.RawMessage(raw))
		if err != nil || got != want {
			t.Fatalf("parseRatingValue(%s) = %d, %v; want %d", raw, got, err, want)
		}
	}

	invalid := []string{``, `null`, `0`, `6`, `4.5`, `"not a number"`, `true`, `"`}
	for _, raw := range invalid {
		_, err := parseRatingValue(json.RawMessage(raw))
		var vErr *domain.ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("parseRatingValue(%s) error = %v, want ValidationError", raw, err)
		}
	}
}

func TestRemoteAddrIdentity(t *testing.T) {
	cases := map[string]string{
		"203.0.113.5:51234": "203.0.113.5",
		"[2001:db8::1]:443": "2001:db8::1",
		"203.0.113.5":       "203.0.113.5",
	}
	for addr, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		if got := RemoteAddrIdentity(req); got != want {
			t.Fatalf("RemoteAddrIdentity(%q) = %q, want %q", addr, got, want)
		}
	}
}

func TestBuildRatingFilters(t *testing.T) {
	values, _ := url.ParseQuery("stars= 4 &limit=150")

	filters, err := buildRatingFilters(values)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filters.Stars == nil || *filters.Stars != 4 {
		t.Fatalf("stars parse failed: %+v", filters.Stars)
	}
	if filters.Limit != 150 {
		t.Fatalf("limit not parsed: %d", filters.Limit)
	}

	for _, raw := range []string{"stars=0", "stars=6", "stars=x", "limit=abc", "cursor=not-a-cursor!"} {
		values, _ := url.ParseQuery(raw)
		if _, err := buildRatingFilters(values); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

// stubService returns canned results so error mapping can be tested without a database.
type stubService struct {
	submit    domain.SubmitResult
	submitErr error
	agg       domain.RatingAggregate
	aggErr    error
	rated     bool
	ratedErr  error
	identity  string
}

func (s *stubService) SubmitRating(_ context.Context, _ int64, _ int, identity string) (domain.SubmitResult, error) {
	s.identity = identity
	return s.submit, s.submitErr
}

func (s *stubService) GetAverageRating(context.Context, int64) (domain.RatingAggregate, error) {
	return s.agg, s.aggErr
}

func (s *stubService) HasUserAlreadyRated(context.Context, int64, string) (bool, error) {
	return s.rated, s.ratedErr
}

func newStubServer(svc *stubService, identity IdentityFunc) *Server {
	return New(config.Config{}, Dependencies{Ratings: svc, Identity: identity})
}

func TestSubmitRating_PersistenceFailureIsNotLeaked(t *testing.T) {
	svc := &stubService{submit: domain.SubmitResult{Success: false, Message: ratings.MsgSubmitFailed}}
	srv := newStubServer(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/movies/4/ratings", strings.NewReader(`{"rating":3}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp submitResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Success || resp.Message != ratings.MsgSubmitFailed {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestGetRating_InternalErrorIsGeneric(t *testing.T) {
	svc := &stubService{aggErr: &domain.PersistenceError{Op: "list ratings", MovieID: 4, Err: errors.New("pq: secret detail")}}
	srv := newStubServer(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/movies/4/rating", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "secret detail") {
		t.Fatalf("internal error leaked: %s", rec.Body.String())
	}
}

func TestCustomIdentityFunc(t *testing.T) {
	svc := &stubService{submit: domain.SubmitResult{Success: true, Message: ratings.MsgSubmitted}}
	srv := newStubServer(svc, func(r *http.Request) string { return "session:" + r.Header.Get("X-Session") })

	req := httptest.NewRequest(http.MethodPost, "/movies/4/ratings", strings.NewReader(`{"rating":3}`))
	req.Header.Set("X-Session", "abc")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	if svc.identity != "session:abc" {
		t.Fatalf("identity = %q, want session:abc", svc.identity)
	}
}

func TestListRatedWithoutLister(t *testing.T) {
	srv := newStubServer(&stubService{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/ratings/movies", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
