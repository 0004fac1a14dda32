// Package mock provides a test double for the artifact.Store interface.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrWong99/toolroute/internal/artifact"
)

// Upload records one Upload call.
type Upload struct {
	Data        []byte
	ContentType string
}

// Store is a mock implementation of artifact.Store. Without URL set it returns
// "https://artifacts.test/<n>" for the n-th upload.
type Store struct {
	mu sync.Mutex

	URL string
	Err error

	Uploads []Upload
}

var _ artifact.Store = (*Store)(nil)

// Upload records the call and returns the configured reference.
func (s *Store) Upload(_ context.Context, data []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Uploads = append(s.Uploads, Upload{Data: append([]byte(nil), data...), ContentType: contentType})
	if s.Err != nil {
		return "", s.Err
	}
	if s.URL != "" {
		return s.URL, nil
	}
	return fmt.Sprintf("https://artifacts.test/%d", len(s.Uploads)), nil
}

// Count returns the number of uploads recorded.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Uploads)
}
