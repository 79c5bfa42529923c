package enrich

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNominatimClient_LookupPlace(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != userAgent {
			t.Errorf("User-Agent: want %q, got %q", userAgent, got)
		}
		q := r.URL.Query()
		if q.Get("format") != "json" || q.Get("lat") != "21.0285" || q.Get("lon") != "105.8542" {
			t.Errorf("query: got %v", q)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"address":{"city_district":"Quận Ba Đình","city":"Thành phố Hà Nội","country_code":"vn"}}`))
	}))
	defer srv.Close()

	c := NewNominatimClient(srv.URL+"/reverse/", NewDefaultHTTPClient(time.Second))
	place, err := c.LookupPlace(context.Background(), 21.0285, 105.8542)
	if err != nil {
		t.Fatalf("LookupPlace: %v", err)
	}
	if place.LocationAddress != "Ba Đình, Hà Nội, VN" {
		t.Errorf("location_address: got %q", place.LocationAddress)
	}
	if place.WeatherAddress != "Hà Nội, VN" {
		t.Errorf("weather_address: got %q", place.WeatherAddress)
	}
}

func TestNominatimClient_Fallbacks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"address":{"county":"Huyện Sóc Sơn","state":"Tỉnh Lào Cai"}}`))
	}))
	defer srv.Close()

	place, err := NewNominatimClient(srv.URL, http.DefaultClient).LookupPlace(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("LookupPlace: %v", err)
	}
	if place.LocationAddress != "Sóc Sơn, Lào Cai, VN" {
		t.Errorf("location_address: got %q", place.LocationAddress)
	}
}

func TestOpenMeteoClient_LookupWeather(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("current_weather") != "true" {
			t.Errorf("current_weather flag missing: %v", r.URL.Query())
		}
		w.Write([]byte(`{"current_weather":{"temperature":29.4,"weathercode":61}}`))
	}))
	defer srv.Close()

	w, err := NewOpenMeteoClient(srv.URL, http.DefaultClient).LookupWeather(context.Background(), 10.77, 106.7)
	if err != nil {
		t.Fatalf("LookupWeather: %v", err)
	}
	if w.Temperature == nil || *w.Temperature != 29.4 || w.Code == nil || *w.Code != 61 {
		t.Errorf("weather: got %+v", w)
	}
}

func TestLookup_HTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	if _, err := NewOpenMeteoClient(srv.URL, http.DefaultClient).LookupWeather(context.Background(), 1, 1); err == nil {
		t.Error("429 from weather endpoint: want error")
	}
	if _, err := NewNominatimClient(srv.URL, http.DefaultClient).LookupPlace(context.Background(), 1, 1); err == nil {
		t.Error("429 from place endpoint: want error")
	}
}
