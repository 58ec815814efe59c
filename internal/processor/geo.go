package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cuongbtq/helpdesk-be/internal/worker/domain"
)

// DefaultGeoTimeout bounds one geolocation lookup
const DefaultGeoTimeout = 2 * time.Second

// UserLocationStore persists the country of a user
type UserLocationStore interface {
	SetUserCountry(ctx context.Context, userID, country string) error
}

// geoResponse is the subset of the ip-api.com response the processor reads
type geoResponse struct {
	Status  string `json:"status"`
	Country string `json:"country"`
	Message string `json:"message"`
}

// GeoProcessor resolves the country of a user's IP address
type GeoProcessor struct {
	client  *http.Client
	baseURL string
	timeout time.Duration
	store   UserLocationStore
	logger  *slog.Logger
}

// NewGeoProcessor creates the processor. baseURL is the lookup service
// root, e.g. http://ip-api.com.
func NewGeoProcessor(baseURL string, timeout time.Duration, store UserLocationStore, logger *slog.Logger) *GeoProcessor {
	if timeout <= 0 {
		timeout = DefaultGeoTimeout
	}
	return &GeoProcessor{
		client:  &http.Client{},
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		store:   store,
		logger:  logger,
	}
}

// IsPrivateAddress reports whether an address is skipped without a lookup.
// The match is textual: 172.17.0.0 to 172.31.255.255 and IPv6 unique-local
// or link-local addresses are not covered.
func IsPrivateAddress(ip string) bool {
	return ip == "" ||
		ip == "127.0.0.1" ||
		ip == "::1" ||
		strings.HasPrefix(ip, "192.168.") ||
		strings.HasPrefix(ip, "10.") ||
		strings.HasPrefix(ip, "172.16.") ||
		strings.Contains(ip, "localhost")
}

func (p *GeoProcessor) Process(ctx context.Context, job *domain.Job, payload domain.Payload) domain.Outcome {
	g, ok := payload.(domain.GeoJob)
	if !ok {
		return domain.Discard(fmt.Errorf("%w: expected geo payload, got %T", domain.ErrInvalidPayload, payload))
	}

	logger := p.logger.With(
		slog.String("job_id", job.ID),
		slog.String("user_id", g.UserID),
		slog.String("ip_address", g.IPAddress),
	)

	if IsPrivateAddress(g.IPAddress) {
		logger.Info("Skipping local/private IP")
		return domain.Skipped("private or loopback address")
	}

	country, err := p.Lookup(ctx, g.IPAddress)
	if err != nil {
		return domain.Retry(err)
	}

	if country == "" {
		logger.Info("Geo lookup unsuccessful or no country found")
		return domain.Skipped("no country resolved")
	}

	// A missing user is retried like any other write failure
	if err := p.store.SetUserCountry(ctx, g.UserID, country); err != nil {
		return domain.Retry(err)
	}

	logger.Info("Enriched user location", slog.String("country", country))
	return domain.Completed()
}

// Lookup returns the country of ip, or an empty string when the service
// could not resolve one. The call is abandoned after the processor timeout.
func (p *GeoProcessor) Lookup(ctx context.Context, ip string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/json/%s", p.baseURL, url.PathEscape(ip))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create geo request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", domain.NewTransportError("geo lookup", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", domain.NewStatusError("geo lookup", resp.StatusCode, string(text))
	}

	var data geoResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", domain.NewTransportError("geo lookup", fmt.Errorf("failed to decode response: %w", err))
	}

	if data.Status != "success" {
		return "", nil
	}

	return data.Country, nil
}
