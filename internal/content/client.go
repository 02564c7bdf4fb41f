package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Clark-Hu/movie-ratings/internal/domain"
	"github.com/Clark-Hu/movie-ratings/internal/logging"
)

// ErrNotFound is returned when upstream has no content item with the requested id.
var ErrNotFound = errors.New("content: not found")

// Client resolves content ids to movies.
type Client interface {
	Lookup(ctx context.Context, movieID int64) (*domain.Movie, error)
}

// HTTPClient implements Client over HTTP.
type HTTPClient struct {
	baseURL *url.URL
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPClient constructs a new HTTP-backed content client.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) (*HTTPClient, error) {
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse content url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("parse content url: %q is not absolute", baseURL)
	}
	return &HTTPClient{
		baseURL: parsed,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   timeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   timeout,
				ResponseHeaderTimeout: timeout,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		logger: logging.OrNop(logger).Named("content"),
	}, nil
}

// Lookup fetches the content item with the given id.
func (c *HTTPClient) Lookup(ctx context.Context, movieID int64) (*domain.Movie, error) {
	endpoint := c.baseURL.JoinPath("nodes", strconv.FormatInt(movieID, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var payload nodePayload
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return nil, fmt.Errorf("decode content response: %w", err)
		}
		return convertToMovie(movieID, payload), nil
	case http.StatusNotFound:
		return nil, ErrNotFound
	default:
		c.logger.Warn("unexpected upstream status", zap.Int("status", resp.StatusCode), zap.Int64("movie_id", movieID))
		return nil, fmt.Errorf("content: upstream returned %d", resp.StatusCode)
	}
}

type nodePayload struct {
	ID    *int64  `json:"id"`
	Title *string `json:"title"`
	Type  string  `json:"type"`
}

func convertToMovie(requested int64, payload nodePayload) *domain.Movie {
	id := requested
	if payload.ID != nil && *payload.ID > 0 {
		id = *payload.ID
	}
	title := ""
	if payload.Title != nil {
		title = strings.TrimSpace(*payload.Title)
	}
	return &domain.Movie{
		ID:     id,
		Title:  title,
		Bundle: strings.ToLower(strings.TrimSpace(payload.Type)),
	}
}
