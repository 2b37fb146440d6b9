package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Provider is one link of the geolocation chain.
type Provider interface {
	Name() string
	// Attempt fetches the raw payload within the provider's own timeout.
	Attempt(ctx context.Context) (map[string]any, error)
	// Valid rejects payloads with error or bogon markers or no usable place.
	Valid(payload map[string]any) bool
	Extract(payload map[string]any) Result
}

// Candidate field names per logical attribute, in lookup order.
var (
	cityFields    = []string{"city"}
	regionFields  = []string{"regionName", "region", "region_name"}
	countryFields = []string{"country_name", "country", "countryName"}
	latFields     = []string{"lat", "latitude"}
	lonFields     = []string{"lon", "lng", "longitude"}
)

const maxPayloadBytes = 64 << 10

// HTTPProvider queries a JSON geolocation endpoint that reports the caller's
// public address, such as ipinfo.io, ip-api.com or ipapi.co.
type HTTPProvider struct {
	name    string
	url     string
	timeout time.Duration
	client  *http.Client
}

func NewHTTPProvider(name, url string, timeout time.Duration, client *http.Client) *HTTPProvider {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProvider{name: name, url: url, timeout: timeout, client: client}
}

func (p *HTTPProvider) Name() string { return p.name }

func (p *HTTPProvider) Attempt(ctx context.Context) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "shravan-server")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d", p.name, resp.StatusCode)
	}

	var payload map[string]any
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxPayloadBytes)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", p.name, err)
	}
	return payload, nil
}

func (p *HTTPProvider) Valid(payload map[string]any) bool {
	return ValidPayload(payload)
}

func (p *HTTPProvider) Extract(payload map[string]any) Result {
	return ExtractPayload(payload)
}

// ValidPayload applies the shared validity check.
func ValidPayload(payload map[string]any) bool {
	if payload == nil {
		return false
	}
	if truthy(payload["bogon"]) || truthy(payload["error"]) {
		return false
	}
	if status, ok := payload["status"].(string); ok && !strings.EqualFold(status, "success") {
		return false
	}
	return firstString(payload, cityFields) != "" || firstString(payload, regionFields) != ""
}

// ExtractPayload maps provider-specific field names onto a Result.
func ExtractPayload(payload map[string]any) Result {
	res := Result{
		City:    firstString(payload, cityFields),
		Region:  firstString(payload, regionFields),
		Country: firstString(payload, countryFields),
	}

	lat, latOK := firstNumber(payload, latFields)
	lon, lonOK := firstNumber(payload, lonFields)
	if !latOK || !lonOK {
		// ipinfo reports "loc": "lat,lon"
		if loc, ok := payload["loc"].(string); ok {
			if parts := strings.SplitN(loc, ",", 2); len(parts) == 2 {
				lat, latOK = parseNumber(parts[0])
				lon, lonOK = parseNumber(parts[1])
			}
		}
	}
	if latOK && lonOK {
		res.Latitude, res.Longitude, res.HasCoordinates = lat, lon, true
	}
	return res
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != "" && !strings.EqualFold(t, "false")
	case map[string]any:
		return true
	case nil:
		return false
	default:
		return true
	}
}

func firstString(payload map[string]any, keys []string) string {
	for _, k := range keys {
		if s, ok := payload[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func firstNumber(payload map[string]any, keys []string) (float64, bool) {
	for _, k := range keys {
		switch v := payload[k].(type) {
		case float64:
			return v, true
		case string:
			if f, ok := parseNumber(v); ok {
				return f, true
			}
		}
	}
	return 0, false
}

func parseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

var errInvalidPayload = errors.New("payload failed validity check")
