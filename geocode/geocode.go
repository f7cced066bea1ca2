// Package geocode resolves free-text addresses through Nominatim, with a
// 24h TTL cache and bounded retry so the same address never hammers the
// upstream service.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/thisispsg/community-bot/cache"
	"github.com/thisispsg/community-bot/retry"
)

// CacheTTL is how long a lookup (positive or negative) stays cached.
// Addresses do not move often.
const CacheTTL = 24 * time.Hour

const cacheMaxSize = 1000

// ErrNotFound means the service answered but knows no such address.
var ErrNotFound = errors.New("address not found")

// Result is one resolved address.
type Result struct {
	Address   string
	Latitude  float64
	Longitude float64
	// Display is the coarse, privacy-preserving form ("Île-de-France, France")
	// used on any member-facing surface.
	Display string
}

// Client is a caching Nominatim client.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	cache      *cache.TTL[*Result]
	retryCfg   retry.Config
	logger     *slog.Logger
}

// New creates a client against baseURL. userAgent is mandatory for Nominatim.
func New(baseURL, userAgent string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: timeout},
		cache:      cache.New[*Result](CacheTTL, cacheMaxSize),
		retryCfg:   retry.Default,
		logger:     logger,
	}
}

type nominatimPlace struct {
	DisplayName string            `json:"display_name"`
	Lat         string            `json:"lat"`
	Lon         string            `json:"lon"`
	Address     map[string]string `json:"address"`
}

// Lookup geocodes query. Results are cached by normalized query; a second
// call for the same address within CacheTTL issues no HTTP request.
// Returns ErrNotFound when the address is unknown.
func (c *Client) Lookup(ctx context.Context, query string) (*Result, error) {
	key := normalize(query)
	if key == "" {
		return nil, ErrNotFound
	}

	if res, ok := c.cache.Get(key); ok {
		if res == nil {
			return nil, ErrNotFound
		}
		return res, nil
	}

	var place *nominatimPlace
	err := retry.Do(ctx, c.retryCfg, func(ctx context.Context) error {
		var callErr error
		place, callErr = c.search(ctx, query)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("geocoding %q failed: %w", query, err)
	}

	if place == nil {
		// Negative results are cached too: the address will not appear
		// within the TTL either.
		c.cache.Set(key, nil)
		return nil, ErrNotFound
	}

	lat, latErr := strconv.ParseFloat(place.Lat, 64)
	lon, lonErr := strconv.ParseFloat(place.Lon, 64)
	if latErr != nil || lonErr != nil {
		return nil, fmt.Errorf("geocoding %q returned unparsable coordinates", query)
	}

	res := &Result{
		Address:   place.DisplayName,
		Latitude:  lat,
		Longitude: lon,
		Display:   coarseDisplay(place.Address),
	}
	c.cache.Set(key, res)
	return res, nil
}

// Invalidate drops the cached entry for query, if any.
func (c *Client) Invalidate(query string) bool {
	return c.cache.Delete(normalize(query))
}

func (c *Client) search(ctx context.Context, query string) (*nominatimPlace, error) {
	u := c.baseURL + "/search?" + url.Values{
		"q":              {query},
		"format":         {"jsonv2"},
		"addressdetails": {"1"},
		"limit":          {"1"},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("nominatim returned status %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			// Client errors will not heal on retry.
			return nil, retry.Permanent(err)
		}
		return nil, err
	}

	var places []nominatimPlace
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return nil, fmt.Errorf("failed to decode nominatim response: %w", err)
	}
	if len(places) == 0 {
		return nil, nil
	}
	return &places[0], nil
}

func normalize(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

// coarseDisplay reduces full address details to "region, country", the only
// form ever shown to other members.
func coarseDisplay(address map[string]string) string {
	country := address["country"]
	region := firstNonEmpty(
		address["state"],
		address["region"],
		address["county"],
		address["province"],
	)

	switch {
	case region != "" && country != "":
		return region + ", " + country
	case country != "":
		return country
	case region != "":
		return region
	default:
		return "Localisation définie"
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
