// Package lei looks up legal entities in the GLEIF Legal Entity Identifier
// registry.
package lei

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/coolbeans/contracta/pkg/document"
	"github.com/coolbeans/contracta/pkg/transport"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL   = "https://api.gleif.org/api/v1"
	DefaultTimeout   = 10 * time.Second
	DefaultPageSize  = 10
	DefaultRateLimit = 500 * time.Millisecond
)

// ErrNotFound is returned when no registry record matches the name exactly.
var ErrNotFound = errors.New("lei: no exact legal name match")

// Config holds configuration for a Client.
type Config struct {
	// BaseURL is the GLEIF API root. Default: DefaultBaseURL.
	BaseURL string

	// Timeout bounds each request. Default: 10 seconds.
	Timeout time.Duration

	// RateLimit is the minimum interval between requests.
	RateLimit time.Duration

	// CacheTTL is the lifetime of cached lookups, misses included.
	CacheTTL time.Duration

	UserAgent string

	HTTPClient transport.HTTPClient
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		Timeout:   DefaultTimeout,
		RateLimit: DefaultRateLimit,
		CacheTTL:  DefaultCacheTTL,
		UserAgent: transport.DefaultUserAgent,
	}
}

// Record is one registry entry.
type Record = document.LEIRecord

// Client queries the registry with rate limiting and caching.
type Client struct {
	config     Config
	httpClient transport.HTTPClient
	cache      *Cache
	logger     *zap.Logger
}

// NewClient creates a client. Zero config fields take their defaults.
func NewClient(config Config, logger *zap.Logger) *Client {
	defaults := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.UserAgent == "" {
		config.UserAgent = defaults.UserAgent
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		config:     config,
		httpClient: transport.NewRateLimitedHTTPClient(config.HTTPClient, config.RateLimit),
		cache:      NewCache(config.CacheTTL),
		logger:     logger,
	}
}

type recordsResponse struct {
	Data []struct {
		Attributes struct {
			LEI    string `json:"lei"`
			Entity struct {
				LegalName struct {
					Name string `json:"name"`
				} `json:"legalName"`
				Status              string  `json:"status"`
				HeadquartersAddress address `json:"headquartersAddress"`
			} `json:"entity"`
		} `json:"attributes"`
	} `json:"data"`
}

type address struct {
	AddressLines []string `json:"addressLines"`
	City         string   `json:"city"`
	Region       string   `json:"region"`
	Country      string   `json:"country"`
	PostalCode   string   `json:"postalCode"`
}

// Search returns the registry records whose legal name matches name.
func (client *Client) Search(ctx context.Context, name string) ([]Record, error) {
	key := NormalizeName(name)
	if cached, found := client.cache.Get(key); found {
		return cached, nil
	}

	query := url.Values{}
	query.Set("filter[entity.legalName]", name)
	query.Set("page[size]", fmt.Sprint(DefaultPageSize))
	requestURL := strings.TrimRight(client.config.BaseURL, "/") + "/lei-records?" + query.Encode()

	ctx, cancel := context.WithTimeout(ctx, client.config.Timeout)
	defer cancel()

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", requestURL, err)
	}
	request.Header.Set("User-Agent", client.config.UserAgent)
	request.Header.Set("Accept", "application/vnd.api+json")

	response, err := client.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("failed to query LEI registry for %q: %w", name, err)
	}
	defer response.Body.Close()

	if response.StatusCode >= 400 {
		return nil, fmt.Errorf("LEI registry returned HTTP %d for %q", response.StatusCode, name)
	}

	var payload recordsResponse
	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode LEI response for %q: %w", name, err)
	}

	records := make([]Record, 0, len(payload.Data))
	for _, item := range payload.Data {
		attributes := item.Attributes
		records = append(records, Record{
			LEI:       attributes.LEI,
			LegalName: attributes.Entity.LegalName.Name,
			Status:    attributes.Entity.Status,
			Headquarters: document.Address{
				Lines:      attributes.Entity.HeadquartersAddress.AddressLines,
				City:       attributes.Entity.HeadquartersAddress.City,
				Region:     attributes.Entity.HeadquartersAddress.Region,
				Country:    attributes.Entity.HeadquartersAddress.Country,
				PostalCode: attributes.Entity.HeadquartersAddress.PostalCode,
			},
		})
	}

	client.cache.Set(key, records)
	client.logger.Debug("LEI lookup", zap.String("name", name), zap.Int("records", len(records)))
	return records, nil
}

// Lookup returns the record whose legal name equals name after
// normalization. Partial matches are ErrNotFound.
func (client *Client) Lookup(ctx context.Context, name string) (*Record, error) {
	records, err := client.Search(ctx, name)
	if err != nil {
		return nil, err
	}

	key := NormalizeName(name)
	for i := range records {
		if NormalizeName(records[i].LegalName) == key {
			record := records[i]
			return &record, nil
		}
	}
	return nil, ErrNotFound
}

// NormalizeName lowercases name and drops every character that is not a
// letter or digit.
func NormalizeName(name string) string {
	var builder strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			builder.WriteRune(r)
		}
	}
	return builder.String()
}
