// Package flickr talks to a Flickr-shaped photo search service: a
// paginated geo search returning photo references and a plain download
// of the referenced image bytes.
package flickr

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"time"

	"bitbucket.org/kleinnic74/tourist/domain"
	"bitbucket.org/kleinnic74/tourist/logging"

	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://www.flickr.com/services/rest/"

	// DefaultPerPage matches the page size the original client asked for
	DefaultPerPage = 11

	userAgent = "tourist/0.1"
)

// SearchPage is one bounded batch of search results. TotalPages is the
// authoritative pagination bound for subsequent requests against the
// same location.
type SearchPage struct {
	Refs       []domain.PhotoRef
	Page       int
	TotalPages int
}

// RemoteError is returned on transport failures and on failures reported
// by the service itself through its error envelope
type RemoteError struct {
	Message string
	cause   error
}

func (err *RemoteError) Error() string {
	if err.cause != nil {
		return fmt.Sprintf("remote search failed: %s: %s", err.Message, err.cause)
	}
	return fmt.Sprintf("remote search failed: %s", err.Message)
}

func (err *RemoteError) Unwrap() error {
	return err.cause
}

type Client struct {
	baseURL string
	apiKey  string
	perPage int
	client  http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		perPage: DefaultPerPage,
		client: http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type searchResponse struct {
	Stat    string `json:"stat"`
	Message string `json:"message"`
	Photos  struct {
		Page  int `json:"page"`
		Pages int `json:"pages"`
		Photo []struct {
			ID  string `json:"id"`
			URL string `json:"url_m"`
		} `json:"photo"`
	} `json:"photos"`
}

// Search returns one page of photo references near the given coordinate
func (c *Client) Search(ctx context.Context, lat, lon, radiusKm float64, page int) (*SearchPage, error) {
	if radiusKm <= 0 {
		return nil, fmt.Errorf("radius must be positive, got %f", radiusKm)
	}
	if page < 1 {
		return nil, fmt.Errorf("page must be >= 1, got %d", page)
	}
	logger, ctx := logging.SubFrom(ctx, "flickr")

	params := url.Values{}
	params.Set("method", "flickr.photos.search")
	params.Set("api_key", c.apiKey)
	params.Set("format", "json")
	params.Set("nojsoncallback", "1")
	params.Set("lat", fmt.Sprintf("%f", lat))
	params.Set("lon", fmt.Sprintf("%f", lon))
	params.Set("radius", fmt.Sprintf("%f", radiusKm))
	params.Set("page", fmt.Sprintf("%d", page))
	params.Set("per_page", fmt.Sprintf("%d", c.perPage))
	params.Set("extras", "url_m")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, &RemoteError{Message: "invalid search request", cause: err}
	}
	req.Header.Set("User-Agent", userAgent)
	res, err := c.client.Do(req)
	if err != nil {
		return nil, &RemoteError{Message: "search request failed", cause: err}
	}
	defer res.Body.Close()
	data, err := ioutil.ReadAll(res.Body)
	if err != nil {
		return nil, &RemoteError{Message: "could not read search response", cause: err}
	}
	logger.Debug("search response", zap.Int("status", res.StatusCode), zap.Int("bytes", len(data)))

	var response searchResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return nil, &RemoteError{Message: "unparseable search response", cause: err}
	}
	if response.Stat == "fail" {
		return nil, &RemoteError{Message: response.Message}
	}
	if res.StatusCode != http.StatusOK {
		return nil, &RemoteError{Message: fmt.Sprintf("search returned status %d", res.StatusCode)}
	}

	result := &SearchPage{
		Page:       response.Photos.Page,
		TotalPages: response.Photos.Pages,
	}
	for _, p := range response.Photos.Photo {
		if p.URL == "" {
			// Not every photo carries a medium-size URL
			continue
		}
		result.Refs = append(result.Refs, domain.PhotoRef{RemoteID: p.ID, URL: p.URL})
	}
	return result, nil
}
