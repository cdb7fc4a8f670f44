package edge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"consult-edge/entities"
	"consult-edge/repository"
)

// CachedResponse is the stored form of one HTTP response.
type CachedResponse struct {
	Status int
	Header http.Header
	Body   []byte
}

// Cache is what the strategies need: match and store by (method, url).
// A broken cache degrades to network-only behavior via the miss path.
type Cache interface {
	Match(ctx context.Context, method, url string) (*CachedResponse, bool)
	Put(ctx context.Context, method, url string, resp *CachedResponse) error
}

// Store keeps cached responses in the local database, partitioned by
// generation. Exactly one generation is live; activating a new one
// deletes every other generation's entries.
type Store struct {
	repo repository.Repository

	mu   sync.RWMutex
	live string
}

func (s *Store) Generation() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live
}

func (s *Store) Match(ctx context.Context, method, url string) (*CachedResponse, bool) {
	if method != http.MethodGet {
		return nil, false
	}

	entry, err := s.repo.GetCacheEntry(ctx, s.Generation(), method, url)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			zerolog.Ctx(ctx).Warn().Err(err).Str("url", url).Msg("cache read failed")
		}
		return nil, false
	}

	header := http.Header{}
	if len(entry.Header) > 0 {
		if err := json.Unmarshal(entry.Header, &header); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("url", url).Msg("cached header unreadable")
			header = http.Header{}
		}
	}

	return &CachedResponse{
		Status: entry.Status,
		Header: header,
		Body:   entry.Body,
	}, true
}

func (s *Store) Put(ctx context.Context, method, url string, resp *CachedResponse) error {
	return s.PutInto(ctx, s.Generation(), method, url, resp)
}

func (s *Store) PutInto(ctx context.Context, generation, method, url string, resp *CachedResponse) error {
	if method != http.MethodGet {
		return nil
	}

	header, err := json.Marshal(resp.Header)
	if err != nil {
		return err
	}

	return s.repo.UpsertCacheEntry(ctx, &entities.CacheEntry{
		ID:         uuid.New(),
		Generation: generation,
		Method:     method,
		URL:        url,
		Status:     resp.Status,
		Header:     header,
		Body:       resp.Body,
		CreatedAt:  time.Now().UTC(),
	})
}

// Activate flips the live generation and destroys all others.
func (s *Store) Activate(ctx context.Context, generation string) error {
	s.mu.Lock()
	s.live = generation
	s.mu.Unlock()

	if err := s.repo.DeleteCacheGenerationsExcept(ctx, generation); err != nil {
		return err
	}

	zerolog.Ctx(ctx).Info().Str("generation", generation).Msg("cache generation activated")
	return nil
}

func NewStore(repo repository.Repository, generation string) *Store {
	return &Store{
		repo: repo,
		live: generation,
	}
}
