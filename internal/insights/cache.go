package insights

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"fintrack/internal/cache"
	"fintrack/internal/metrics"
	"fintrack/internal/textgen"
)

// CachingTextGenerator memoises successful generations per request, so an
// unchanged ledger does not hit the model again until the entry expires.
type CachingTextGenerator struct {
	next    TextGenerator
	cache   cache.Cache[string]
	metrics *metrics.Metrics
}

var _ TextGenerator = (*CachingTextGenerator)(nil)

func NewCachingTextGenerator(next TextGenerator, c cache.Cache[string], m *metrics.Metrics) *CachingTextGenerator {
	return &CachingTextGenerator{next: next, cache: c, metrics: m}
}

func (c *CachingTextGenerator) Generate(ctx context.Context, req textgen.Request) (string, error) {
	key := requestKey(req)
	if text, ok := c.cache.Get(key); ok {
		if c.metrics != nil {
			c.metrics.Insights.WithLabelValues(metrics.SourceCache).Inc()
		}
		return text, nil
	}

	text, err := c.next.Generate(ctx, req)
	if err != nil {
		return "", err
	}
	c.cache.Set(key, text)
	return text, nil
}

func requestKey(req textgen.Request) string {
	h := sha256.New()
	h.Write([]byte(req.Prompt))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(req.MaxTokens)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatFloat(req.Temperature, 'g', -1, 64)))
	return hex.EncodeToString(h.Sum(nil))
}
