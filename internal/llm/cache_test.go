package llm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/raine/telegram-ebay-bot/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryVisionCache struct {
	mu      sync.Mutex
	entries map[string]*storage.VisionCacheEntry
}

func newMemoryVisionCache() *memoryVisionCache {
	return &memoryVisionCache{entries: make(map[string]*storage.VisionCacheEntry)}
}

func (m *memoryVisionCache) GetVisionCache(key string) (*storage.VisionCacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[key], nil
}

func (m *memoryVisionCache) SetVisionCache(key string, entry *storage.VisionCacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry
	return nil
}

type countingAnalyzer struct {
	calls int
	raw   string
	err   error
}

func (a *countingAnalyzer) Analyze(ctx context.Context, req Request) (*Response, error) {
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	return &Response{Raw: a.raw, Usage: Usage{TotalTokens: 100}}, nil
}

func TestCachedAnalyzer_HitsCacheForSameImageAndHints(t *testing.T) {
	inner := &countingAnalyzer{raw: `{"part_type": "Leva"}`}
	cached := NewCachedAnalyzer(inner, newMemoryVisionCache())
	req := Request{ImageData: []byte{1, 2, 3}, Hints: Hints{Brand: "Honda"}}

	first, err := cached.Analyze(context.Background(), req)
	require.NoError(t, err)
	second, err := cached.Analyze(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, first.Raw, second.Raw)
	assert.Zero(t, second.Usage.TotalTokens)
}

func TestCachedAnalyzer_DifferentHintsMiss(t *testing.T) {
	inner := &countingAnalyzer{raw: `{"part_type": "Leva"}`}
	cached := NewCachedAnalyzer(inner, newMemoryVisionCache())

	_, err := cached.Analyze(context.Background(), Request{ImageData: []byte{1}, Hints: Hints{Brand: "Honda"}})
	require.NoError(t, err)
	_, err = cached.Analyze(context.Background(), Request{ImageData: []byte{1}, Hints: Hints{Brand: "Yamaha"}})
	require.NoError(t, err)

	assert.Equal(t, 2, inner.calls)
}

func TestCachedAnalyzer_DoesNotCacheGarbageOrErrors(t *testing.T) {
	store := newMemoryVisionCache()
	inner := &countingAnalyzer{raw: "no json here"}
	cached := NewCachedAnalyzer(inner, store)
	req := Request{ImageData: []byte{9}}

	_, err := cached.Analyze(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, store.entries)

	inner.err = errors.New("quota exceeded")
	_, err = cached.Analyze(context.Background(), req)
	assert.Error(t, err)
	assert.Empty(t, store.entries)
}

func TestCacheKey_BoundaryCollision(t *testing.T) {
	a := cacheKey(Request{ImageData: []byte("ab"), Hints: Hints{Brand: "c"}})
	b := cacheKey(Request{ImageData: []byte("a"), Hints: Hints{Brand: "bc"}})
	assert.NotEqual(t, a, b)
}

func TestBuildPrompt(t *testing.T) {
	prompt := buildPrompt(Request{
		Hints:       Hints{Brand: "Honda", Model: "Transalp 650", Extra: map[string]string{"mpn": "12345", "blank": " "}},
		ProfileHint: "You help sell motorcycle parts.",
		Thresholds:  "XS: <= 0.25 kg | FREIGHT: > 0.25 kg",
	}, []string{"XS", "FREIGHT"})

	assert.True(t, strings.HasPrefix(prompt, "You help sell motorcycle parts."))
	assert.Contains(t, prompt, "- Brand: Honda")
	assert.Contains(t, prompt, "- Year: unknown")
	assert.Contains(t, prompt, "- mpn: 12345")
	assert.NotContains(t, prompt, "- blank:")
	assert.Contains(t, prompt, "one of: XS, FREIGHT")
	assert.Contains(t, prompt, "XS: <= 0.25 kg | FREIGHT: > 0.25 kg")
}

func TestCalculateGeminiCost(t *testing.T) {
	assert.InDelta(t, 0.8, calculateGeminiCost(1_000_000, 100_000, 0.5, 3.0), 1e-9)
}
