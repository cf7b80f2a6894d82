// Package allanime queries the AllAnime GraphQL search endpoint, the same
// catalog ani-cli resolves titles against. The selector uses it to learn
// which source titles a download could match.
package allanime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"kotoba/internal/services"
)

const (
	// DefaultBaseURL is the public AllAnime API endpoint.
	DefaultBaseURL = "https://api.allanime.day/api"
	// referer is required or the API returns an empty result set.
	referer = "https://allmanga.to"

	searchQuery = `query($search: SearchInput, $limit: Int, $page: Int, $translationType: VaildTranslationTypeEnumType, $countryOrigin: VaildCountryOriginEnumType) {
    shows(search: $search, limit: $limit, page: $page, translationType: $translationType, countryOrigin: $countryOrigin) {
        edges { _id name availableEpisodes __typename }
    }
}`
)

// Candidate is one search result a download could target.
type Candidate struct {
	ID       string
	Name     string
	Episodes int
}

// Display renders the candidate the way the selector presents it, with the
// episode count the downloader later strips back off.
func (c Candidate) Display() string {
	return fmt.Sprintf("%s (%d eps)", c.Name, c.Episodes)
}

// Client searches the AllAnime catalog.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a client. An empty baseURL selects the public endpoint.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type searchVariables struct {
	Search struct {
		AllowAdult   bool   `json:"allowAdult"`
		AllowUnknown bool   `json:"allowUnknown"`
		Query        string `json:"query"`
	} `json:"search"`
	Limit           int    `json:"limit"`
	Page            int    `json:"page"`
	TranslationType string `json:"translationType"`
	CountryOrigin   string `json:"countryOrigin"`
}

type searchResponse struct {
	Data struct {
		Shows struct {
			Edges []struct {
				ID                string `json:"_id"`
				Name              string `json:"name"`
				AvailableEpisodes struct {
					Sub int `json:"sub"`
					Dub int `json:"dub"`
				} `json:"availableEpisodes"`
			} `json:"edges"`
		} `json:"shows"`
	} `json:"data"`
}

// Search returns subbed candidates matching the query, most relevant first.
func (c *Client) Search(ctx context.Context, query string) ([]Candidate, error) {
	variables := searchVariables{
		Limit:           40,
		Page:            1,
		TranslationType: "sub",
		CountryOrigin:   "ALL",
	}
	variables.Search.Query = query

	variablesJSON, err := json.Marshal(variables)
	if err != nil {
		return nil, fmt.Errorf("marshal search variables: %w", err)
	}

	params := url.Values{
		"variables": {string(variablesJSON)},
		"query":     {searchQuery},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Referer", referer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "selecting", "allanime", "search request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, services.Wrap(services.ErrTransient, "selecting", "allanime",
			fmt.Sprintf("search: status %d", resp.StatusCode), nil)
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	candidates := make([]Candidate, 0, len(payload.Data.Shows.Edges))
	for _, edge := range payload.Data.Shows.Edges {
		candidates = append(candidates, Candidate{
			ID:       edge.ID,
			Name:     edge.Name,
			Episodes: edge.AvailableEpisodes.Sub,
		})
	}
	return candidates, nil
}
