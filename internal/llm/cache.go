package llm

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"

	"github.com/raine/telegram-ebay-bot/internal/storage"
	"github.com/rs/zerolog/log"
)

// VisionCache persists raw analysis responses.
type VisionCache interface {
	GetVisionCache(key string) (*storage.VisionCacheEntry, error)
	SetVisionCache(key string, entry *storage.VisionCacheEntry) error
}

// CachedAnalyzer wraps an Analyzer with SQLite caching.
type CachedAnalyzer struct {
	inner Analyzer
	store VisionCache
}

// NewCachedAnalyzer creates a cached analyzer.
func NewCachedAnalyzer(inner Analyzer, store VisionCache) *CachedAnalyzer {
	return &CachedAnalyzer{inner: inner, store: store}
}

// cacheKey hashes the image and every hint that shapes the prompt.
// Each chunk is length-prefixed to prevent boundary collisions.
func cacheKey(req Request) string {
	h := sha256.New()
	write := func(b []byte) {
		binary.Write(h, binary.LittleEndian, int64(len(b)))
		h.Write(b)
	}
	if len(req.ImageData) > 0 {
		write(req.ImageData)
	} else {
		write([]byte(req.ImageURL))
	}
	write([]byte(req.Hints.Brand))
	write([]byte(req.Hints.Model))
	write([]byte(req.Hints.Year))
	keys := make([]string, 0, len(req.Hints.Extra))
	for k := range req.Hints.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		write([]byte(k))
		write([]byte(req.Hints.Extra[k]))
	}
	write([]byte(req.ProfileHint))
	write([]byte(req.Thresholds))
	return hex.EncodeToString(h.Sum(nil))
}

// Analyze implements the Analyzer interface with caching.
func (c *CachedAnalyzer) Analyze(ctx context.Context, req Request) (*Response, error) {
	key := cacheKey(req)

	if c.store != nil {
		cached, err := c.store.GetVisionCache(key)
		if err != nil {
			log.Warn().Err(err).Msg("failed to check vision cache")
		} else if cached != nil {
			log.Debug().Str("hash", key[:16]).Msg("vision cache hit")
			return &Response{Raw: cached.Raw}, nil
		}
	}

	result, err := c.inner.Analyze(ctx, req)
	if err != nil {
		return nil, err
	}

	// Only cache responses that contain a usable object
	if c.store != nil && len(parseDocument(result.Raw)) > 0 {
		if err := c.store.SetVisionCache(key, &storage.VisionCacheEntry{Raw: result.Raw}); err != nil {
			log.Warn().Err(err).Msg("failed to cache vision result")
		} else {
			log.Debug().Str("hash", key[:16]).Msg("cached vision result")
		}
	}

	return result, nil
}
