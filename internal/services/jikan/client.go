// Package jikan is a rate-limited client for the Jikan REST API, the
// unofficial MyAnimeList catalog.
//
// Jikan enforces both a per-second and a per-minute request budget, so the
// client holds two token buckets and waits on both before every request.
// Rate-limit and server errors are retried with a fixed delay.
package jikan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"kotoba/internal/services"
)

// DefaultBaseURL is the public Jikan v4 endpoint.
const DefaultBaseURL = "https://api.jikan.moe/v4"

// Options configures a client.
type Options struct {
	BaseURL           string
	RequestsPerSecond float64
	RequestsPerMinute int
	MaxRetries        int
	RetryDelay        time.Duration
	HTTPClient        *http.Client
}

// Client talks to the Jikan API.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	secondLimiter *rate.Limiter
	minuteLimiter *rate.Limiter
	maxRetries    int
	retryDelay    time.Duration
}

// NewClient builds a client, filling unset options with usable defaults.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 2
	}
	if opts.RequestsPerMinute <= 0 {
		opts.RequestsPerMinute = 50
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:       opts.BaseURL,
		httpClient:    opts.HTTPClient,
		secondLimiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		minuteLimiter: rate.NewLimiter(rate.Limit(float64(opts.RequestsPerMinute)/60), opts.RequestsPerMinute),
		maxRetries:    opts.MaxRetries,
		retryDelay:    opts.RetryDelay,
	}
}

// CategoryFilter selects one slice of the /genres/anime taxonomy.
type CategoryFilter string

const (
	FilterGenres         CategoryFilter = "genres"
	FilterExplicitGenres CategoryFilter = "explicit_genres"
	FilterThemes         CategoryFilter = "themes"
	FilterDemographics   CategoryFilter = "demographics"
)

// CategoryFilters lists every taxonomy a catalog scrape walks.
func CategoryFilters() []CategoryFilter {
	return []CategoryFilter{FilterGenres, FilterExplicitGenres, FilterThemes, FilterDemographics}
}

// Genres lists one taxonomy's categories with their catalog entry counts.
// MAL ids are shared across taxonomies, so every entry works as a genres
// parameter to AnimeByGenre.
func (c *Client) Genres(ctx context.Context, filter CategoryFilter) ([]Genre, error) {
	var query url.Values
	if filter != "" {
		query = url.Values{"filter": {string(filter)}}
	}
	var resp genresResponse
	if err := c.get(ctx, "/genres/anime", query, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// AnimeByGenre returns one page of a genre's anime ordered by member count.
func (c *Client) AnimeByGenre(ctx context.Context, genreID int64, page int) (AnimePage, error) {
	query := url.Values{
		"genres":   {strconv.FormatInt(genreID, 10)},
		"order_by": {"members"},
		"sort":     {"desc"},
		"page":     {strconv.Itoa(page)},
	}
	var resp animeListResponse
	if err := c.get(ctx, "/anime", query, &resp); err != nil {
		return AnimePage{}, err
	}
	return AnimePage{Anime: resp.Data, Pagination: resp.Pagination}, nil
}

// TopAnime returns one page of the overall top anime listing.
func (c *Client) TopAnime(ctx context.Context, page int) (AnimePage, error) {
	query := url.Values{"page": {strconv.Itoa(page)}}
	var resp animeListResponse
	if err := c.get(ctx, "/top/anime", query, &resp); err != nil {
		return AnimePage{}, err
	}
	return AnimePage{Anime: resp.Data, Pagination: resp.Pagination}, nil
}

// AnimeByID fetches a single series.
func (c *Client) AnimeByID(ctx context.Context, malID int64) (*Anime, error) {
	var resp animeResponse
	if err := c.get(ctx, fmt.Sprintf("/anime/%d", malID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}

		if err := c.secondLimiter.Wait(ctx); err != nil {
			return err
		}
		if err := c.minuteLimiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			if err != nil {
				return fmt.Errorf("decode %s: %w", path, err)
			}
			return nil
		case resp.StatusCode == http.StatusNotFound:
			resp.Body.Close()
			return services.Wrap(services.ErrNotFound, "scraping", "jikan", path, nil)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("jikan %s: status %d", path, resp.StatusCode)
			continue
		default:
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return services.Wrap(services.ErrTransient, "scraping", "jikan",
				fmt.Sprintf("%s: status %d", path, resp.StatusCode), nil)
		}
	}
	return services.Wrap(services.ErrTransient, "scraping", "jikan", "retries exhausted", lastErr)
}
