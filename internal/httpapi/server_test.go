package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/kulmetehan/turkish-diaspora-app-sub002/internal/globaltime"
)

func TestHandleHealth(t *testing.T) {
	fixed := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	globaltime.SetMockTime(fixed)
	defer globaltime.ResetTime()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	s := &Server{logger: zerolog.Nop()}
	if err := s.handleHealth(c); err != nil {
		t.Fatalf("handleHealth returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Status string         `json:"status"`
		Data   map[string]any `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "success" {
		t.Fatalf("expected jsend success, got %q", resp.Status)
	}
	if resp.Data["service"] != "events-pipeline" {
		t.Fatalf("unexpected service name %v", resp.Data["service"])
	}
	if resp.Data["time"] != fixed.Format(time.RFC3339) {
		t.Fatalf("expected pinned clock %s, got %v", fixed.Format(time.RFC3339), resp.Data["time"])
	}
}

func TestParsePositiveInt(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in       string
		fallback int
		want     int
	}{
		{"", 25, 25},
		{"abc", 25, 25},
		{"0", 25, 25},
		{"-3", 25, 25},
		{"7", 25, 7},
		{" 12 ", 25, 12},
	}
	for _, tc := range cases {
		if got := parsePositiveInt(tc.in, tc.fallback); got != tc.want {
			t.Fatalf("parsePositiveInt(%q, %d) = %d, want %d", tc.in, tc.fallback, got, tc.want)
		}
	}
}

func TestNewServerDefaults(t *testing.T) {
	t.Parallel()

	s := NewServer(nil, zerolog.Nop(), Options{})
	if s.opts.Host != "0.0.0.0" || s.opts.Port != 8090 {
		t.Fatalf("unexpected defaults: host=%q port=%d", s.opts.Host, s.opts.Port)
	}
	if s.opts.ReadTimeout != 10*time.Second || s.opts.WriteTimeout != 30*time.Second {
		t.Fatalf("unexpected timeout defaults: read=%v write=%v", s.opts.ReadTimeout, s.opts.WriteTimeout)
	}
}
