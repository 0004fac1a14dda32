package artifact

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/toolroute/internal/observe"
)

type captured struct {
	mu      sync.Mutex
	path    string
	headers http.Header
	body    []byte
}

func newStore(t *testing.T, status int, reply string) (*Supabase, *captured) {
	t.Helper()
	c := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.path = r.URL.Path
		c.headers = r.Header.Clone()
		c.body = body
		c.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)

	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	clock := func() time.Time { return time.Date(2025, 3, 1, 9, 30, 5, 0, time.UTC) }
	s, err := NewSupabase(srv.URL+"/", "service-key", "", WithMetrics(m), WithClock(clock))
	if err != nil {
		t.Fatalf("NewSupabase: %v", err)
	}
	return s, c
}

func TestSupabase_Upload(t *testing.T) {
	t.Parallel()

	s, c := newStore(t, http.StatusOK, `{"Key":"damage-images/camera_uploads/x.jpg"}`)
	ref, err := s.Upload(context.Background(), []byte("\xff\xd8jpeg"), "image/jpeg")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	pathRE := regexp.MustCompile(`^/storage/v1/object/damage-images/camera_uploads/20250301_093005_[0-9a-f]{32}\.jpg$`)
	if !pathRE.MatchString(c.path) {
		t.Errorf("upload path = %q", c.path)
	}
	if got := c.headers.Get("Authorization"); got != "Bearer service-key" {
		t.Errorf("Authorization = %q", got)
	}
	if got := c.headers.Get("apikey"); got != "service-key" {
		t.Errorf("apikey = %q", got)
	}
	if got := c.headers.Get("Content-Type"); got != "image/jpeg" {
		t.Errorf("Content-Type = %q", got)
	}
	if string(c.body) != "\xff\xd8jpeg" {
		t.Errorf("body = %q", c.body)
	}

	object := strings.TrimPrefix(c.path, "/storage/v1/object/damage-images/")
	if want := s.PublicURL(object); ref != want {
		t.Errorf("ref = %q, want %q", ref, want)
	}
	if !strings.Contains(ref, "/storage/v1/object/public/damage-images/camera_uploads/") {
		t.Errorf("ref = %q is not a public object URL", ref)
	}
}

func TestSupabase_UploadError(t *testing.T) {
	t.Parallel()

	s, _ := newStore(t, http.StatusBadRequest, `{"statusCode":"403","error":"Unauthorized","message":"new row violates row-level security policy"}`)
	_, err := s.Upload(context.Background(), []byte("x"), "image/png")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "row-level security") {
		t.Errorf("error = %v, want storage message", err)
	}
}

func TestSupabase_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewSupabase("", "k", ""); err == nil {
		t.Error("expected error for empty url")
	}
	if _, err := NewSupabase("https://x.supabase.co", "", ""); err == nil {
		t.Error("expected error for empty key")
	}
	s, _ := newStore(t, http.StatusOK, `{}`)
	if _, err := s.Upload(context.Background(), nil, "image/jpeg"); err == nil {
		t.Error("expected error for empty data")
	}
}

func TestObjectName(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 12, 31, 23, 59, 58, 0, time.UTC)
	tests := []struct {
		contentType, ext string
	}{
		{"image/jpeg", "jpg"},
		{"image/png", "png"},
		{"IMAGE/WEBP; q=1", "webp"},
		{"", "jpg"},
	}
	for _, tc := range tests {
		name := ObjectName(now, tc.contentType)
		if !strings.HasPrefix(name, "camera_uploads/20241231_235958_") || !strings.HasSuffix(name, "."+tc.ext) {
			t.Errorf("ObjectName(%q) = %q", tc.contentType, name)
		}
	}
	if ObjectName(now, "") == ObjectName(now, "") {
		t.Error("object names are not unique")
	}
}

func TestDisabled(t *testing.T) {
	t.Parallel()
	ref, err := Disabled{}.Upload(context.Background(), []byte("x"), "image/jpeg")
	if ref != "" || err != ErrNotConfigured {
		t.Errorf("Upload = %q, %v; want ErrNotConfigured", ref, err)
	}
}
