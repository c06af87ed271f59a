package ebay

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const DefaultCategoryTTL = 5 * time.Minute

type categoryCacheEntry struct {
	category *Category
	storedAt time.Time
}

// CategorySuggester caches taxonomy suggestions per query and tree.
// Empty results are cached; failures are not.
type CategorySuggester struct {
	api    CategoryAPI
	treeID string
	ttl    time.Duration
	now    func() time.Time

	mu    sync.Mutex
	cache map[string]categoryCacheEntry
	group singleflight.Group
}

func NewCategorySuggester(api CategoryAPI, treeID string, ttl time.Duration) *CategorySuggester {
	if ttl <= 0 {
		ttl = DefaultCategoryTTL
	}
	return &CategorySuggester{
		api:    api,
		treeID: treeID,
		ttl:    ttl,
		now:    time.Now,
		cache:  make(map[string]categoryCacheEntry),
	}
}

// Suggest returns the suggested category for query, or nil when there is
// none.
func (s *CategorySuggester) Suggest(ctx context.Context, query string) (*Category, error) {
	normalized := strings.ToLower(strings.TrimSpace(query))
	if normalized == "" {
		return nil, nil
	}
	key := s.treeID + "|" + normalized

	if cat, ok := s.lookup(key); ok {
		return cat, nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		cat, err := s.api.SuggestCategory(ctx, s.treeID, strings.TrimSpace(query))
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.cache[key] = categoryCacheEntry{category: cat, storedAt: s.now()}
		s.mu.Unlock()
		return cat, nil
	})
	if err != nil {
		log.Warn().Err(err).Str("query", query).Msg("category suggestion failed")
		return nil, err
	}
	return v.(*Category), nil
}

func (s *CategorySuggester) lookup(key string) (*Category, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.cache[key]
	if !ok {
		return nil, false
	}
	if s.now().Sub(entry.storedAt) > s.ttl {
		delete(s.cache, key)
		return nil, false
	}
	return entry.category, true
}
