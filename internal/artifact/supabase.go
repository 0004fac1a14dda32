package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/toolroute/internal/observe"
)

// DefaultBucket is the storage bucket used when none is configured.
const DefaultBucket = "damage-images"

var _ Store = (*Supabase)(nil)

// Supabase uploads artifacts to a Supabase Storage bucket through its REST API
// and returns the bucket's public URL for the object. The bucket must be
// public for the returned URL to be fetchable by tools.
type Supabase struct {
	baseURL    string
	key        string
	bucket     string
	httpClient *http.Client
	metrics    *observe.Metrics
	now        func() time.Time
}

// SupabaseOption is a functional option for [Supabase].
type SupabaseOption func(*Supabase)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) SupabaseOption {
	return func(s *Supabase) { s.httpClient = c }
}

// WithMetrics overrides the default metrics sink.
func WithMetrics(m *observe.Metrics) SupabaseOption {
	return func(s *Supabase) { s.metrics = m }
}

// WithClock overrides the time source used for object names.
func WithClock(now func() time.Time) SupabaseOption {
	return func(s *Supabase) { s.now = now }
}

// NewSupabase creates a Supabase store. projectURL is the project root such
// as "https://abc.supabase.co"; key is the service or anon key. An empty
// bucket selects [DefaultBucket].
func NewSupabase(projectURL, key, bucket string, opts ...SupabaseOption) (*Supabase, error) {
	if projectURL == "" {
		return nil, errors.New("artifact: supabase url must not be empty")
	}
	if _, err := url.Parse(projectURL); err != nil {
		return nil, fmt.Errorf("artifact: supabase url: %w", err)
	}
	if key == "" {
		return nil, errors.New("artifact: supabase key must not be empty")
	}
	if bucket == "" {
		bucket = DefaultBucket
	}
	s := &Supabase{
		baseURL:    strings.TrimRight(projectURL, "/"),
		key:        key,
		bucket:     bucket,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		metrics:    observe.DefaultMetrics(),
		now:        time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// storageError is the error body returned by the storage API.
type storageError struct {
	StatusCode string `json:"statusCode"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

// Upload implements [Store].
func (s *Supabase) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", errors.New("artifact: empty upload")
	}
	if contentType == "" {
		contentType = "image/jpeg"
	}

	ctx, span := observe.StartSpan(ctx, "artifact.upload")
	defer span.End()

	name := ObjectName(s.now(), contentType)
	if err := s.put(ctx, name, data, contentType); err != nil {
		s.metrics.RecordUpload(ctx, "error")
		span.RecordError(err)
		return "", fmt.Errorf("artifact: upload %s: %w", name, err)
	}
	s.metrics.RecordUpload(ctx, "ok")

	ref := s.PublicURL(name)
	observe.Logger(ctx).Info("artifact uploaded", "bucket", s.bucket, "object", name, "bytes", len(data))
	return ref, nil
}

// PublicURL returns the public URL of object in the configured bucket.
func (s *Supabase) PublicURL(object string) string {
	return s.baseURL + "/storage/v1/object/public/" + s.bucket + "/" + object
}

func (s *Supabase) put(ctx context.Context, object string, data []byte, contentType string) error {
	endpoint := s.baseURL + "/storage/v1/object/" + s.bucket + "/" + object
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.key)
	req.Header.Set("apikey", s.key)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "false")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 == 2 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var se storageError
	if json.Unmarshal(body, &se) == nil && se.Message != "" {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, se.Message)
	}
	return fmt.Errorf("unexpected status %d", resp.StatusCode)
}
