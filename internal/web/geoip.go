package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
)

var (
	// ErrInvalidIP is returned for lookups of strings that are not IP addresses.
	ErrInvalidIP = errors.New("invalid IP address")
	// ErrGeoIPDisabled is returned when no lookup service is configured.
	ErrGeoIPDisabled = errors.New("geoip lookups are disabled")
)

// GeoIP represents geographical IP information.
type GeoIP struct {
	IP      string  `json:"ip"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	City    string  `json:"city"`
	Country string  `json:"country"`
	ISP     string  `json:"isp"`
	Private bool    `json:"private,omitempty"`
}

// GeoLocator resolves attacker addresses through an ip-api.com compatible
// service and caches the answers for the life of the process.
type GeoLocator struct {
	baseURL string
	client  *http.Client
	cache   cmap.ConcurrentMap[string, *GeoIP]
}

// NewGeoLocator creates a locator querying baseURL + ip. An empty baseURL
// disables remote lookups.
func NewGeoLocator(baseURL string) *GeoLocator {
	if baseURL != "" && !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &GeoLocator{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
		cache:   cmap.New[*GeoIP](),
	}
}

// Enabled reports whether remote lookups are configured.
func (g *GeoLocator) Enabled() bool {
	return g.baseURL != ""
}

// Lookup returns geographical information for ip. Private and loopback
// addresses are answered locally.
func (g *GeoLocator) Lookup(ctx context.Context, ip string) (*GeoIP, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidIP, ip)
	}
	if parsed.IsPrivate() || parsed.IsLoopback() || parsed.IsUnspecified() || parsed.IsLinkLocalUnicast() {
		return &GeoIP{IP: ip, Private: true}, nil
	}

	if cached, ok := g.cache.Get(ip); ok {
		return cached, nil
	}
	if !g.Enabled() {
		return nil, ErrGeoIPDisabled
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		g.baseURL+ip+"?fields=status,message,country,city,lat,lon,isp,query", nil)
	if err != nil {
		return nil, err
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geoip lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geoip lookup failed: %s", resp.Status)
	}

	var result struct {
		Status  string  `json:"status"`
		Message string  `json:"message"`
		Country string  `json:"country"`
		City    string  `json:"city"`
		Lat     float64 `json:"lat"`
		Lon     float64 `json:"lon"`
		ISP     string  `json:"isp"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode geoip response: %w", err)
	}
	if result.Status != "" && result.Status != "success" {
		return nil, fmt.Errorf("geoip lookup for %s failed: %s", ip, result.Message)
	}

	geo := &GeoIP{
		IP:      ip,
		Lat:     result.Lat,
		Lon:     result.Lon,
		City:    result.City,
		Country: result.Country,
		ISP:     result.ISP,
	}
	g.cache.Set(ip, geo)

	return geo, nil
}
