package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Place is a reverse-geocoded position.
type Place struct {
	// LocationAddress is "district, city, CC".
	LocationAddress string
	// WeatherAddress is "city, CC".
	WeatherAddress string
}

// Weather is the current conditions at a position.
type Weather struct {
	Temperature *float64
	Code        *float64
}

type PlaceLookup interface {
	LookupPlace(ctx context.Context, lat, lon float64) (Place, error)
}

type WeatherLookup interface {
	LookupWeather(ctx context.Context, lat, lon float64) (Weather, error)
}

// HTTPDoer is the subset of *http.Client the lookups need.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// NewDefaultHTTPClient returns an *http.Client with the given timeout.
func NewDefaultHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

const userAgent = "VFDashboard/2.0"

func getJSON(ctx context.Context, client HTTPDoer, endpoint string, query url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("GET %s: status %d", endpoint, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", endpoint, err)
	}
	return nil
}

func formatCoord(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// NominatimClient reverse-geocodes against a Nominatim endpoint.
type NominatimClient struct {
	endpoint string
	client   HTTPDoer
}

func NewNominatimClient(endpoint string, client HTTPDoer) *NominatimClient {
	return &NominatimClient{endpoint: strings.TrimRight(endpoint, "/"), client: client}
}

type nominatimResponse struct {
	Address struct {
		CityDistrict string `json:"city_district"`
		District     string `json:"district"`
		County       string `json:"county"`
		City         string `json:"city"`
		Town         string `json:"town"`
		Village      string `json:"village"`
		State        string `json:"state"`
		Province     string `json:"province"`
		CountryCode  string `json:"country_code"`
	} `json:"address"`
}

var adminPrefix = regexp.MustCompile(`(?i)^(Thành phố|Tỉnh|Quận|Huyện|Xã|Phường)\s+`)

func stripAdminPrefix(s string) string {
	return strings.TrimSpace(adminPrefix.ReplaceAllString(s, ""))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func joinNonEmpty(parts ...string) string {
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ", ")
}

func (c *NominatimClient) LookupPlace(ctx context.Context, lat, lon float64) (Place, error) {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("lat", formatCoord(lat))
	q.Set("lon", formatCoord(lon))

	var resp nominatimResponse
	if err := getJSON(ctx, c.client, c.endpoint, q, &resp); err != nil {
		return Place{}, err
	}
	a := resp.Address
	district := stripAdminPrefix(firstNonEmpty(a.CityDistrict, a.District, a.County))
	city := stripAdminPrefix(firstNonEmpty(a.City, a.Town, a.Village, a.State, a.Province))
	country := strings.ToUpper(firstNonEmpty(a.CountryCode, "vn"))

	return Place{
		LocationAddress: joinNonEmpty(district, city, country),
		WeatherAddress:  joinNonEmpty(city, country),
	}, nil
}

// OpenMeteoClient reads current conditions from an Open-Meteo forecast
// endpoint.
type OpenMeteoClient struct {
	endpoint string
	client   HTTPDoer
}

func NewOpenMeteoClient(endpoint string, client HTTPDoer) *OpenMeteoClient {
	return &OpenMeteoClient{endpoint: strings.TrimRight(endpoint, "/"), client: client}
}

type openMeteoResponse struct {
	CurrentWeather *struct {
		Temperature *float64 `json:"temperature"`
		WeatherCode *float64 `json:"weathercode"`
	} `json:"current_weather"`
}

func (c *OpenMeteoClient) LookupWeather(ctx context.Context, lat, lon float64) (Weather, error) {
	q := url.Values{}
	q.Set("latitude", formatCoord(lat))
	q.Set("longitude", formatCoord(lon))
	q.Set("current_weather", "true")

	var resp openMeteoResponse
	if err := getJSON(ctx, c.client, c.endpoint, q, &resp); err != nil {
		return Weather{}, err
	}
	if resp.CurrentWeather == nil {
		return Weather{}, fmt.Errorf("open-meteo response has no current_weather")
	}
	return Weather{Temperature: resp.CurrentWeather.Temperature, Code: resp.CurrentWeather.WeatherCode}, nil
}
