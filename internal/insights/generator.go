// Package insights produces short observations about spending behaviour,
// either from local heuristics or from an external text-generation model.
// External failures never reach the caller: they degrade to local insights.
package insights

import (
	"context"
	"strings"
	"time"

	"fintrack/internal/analytics"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/metrics"
	"fintrack/internal/textgen"
)

// DefaultTimeout bounds a single external generation call.
const DefaultTimeout = 15 * time.Second

// TextGenerator produces free text for a prompt.
type TextGenerator interface {
	Generate(ctx context.Context, req textgen.Request) (string, error)
}

// Generator builds insights for a transaction snapshot.
type Generator struct {
	engine      *analytics.Engine
	text        TextGenerator
	timeout     time.Duration
	maxTokens   int
	temperature float64
	metrics     *metrics.Metrics
	logger      *log.Logger
}

type Option func(*Generator)

// WithTextGenerator enables external generation. Passing nil keeps the
// generator local-only.
func WithTextGenerator(tg TextGenerator) Option {
	return func(g *Generator) { g.text = tg }
}

func WithTimeout(d time.Duration) Option {
	return func(g *Generator) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithSampling sets the token budget and temperature sent with each request.
func WithSampling(maxTokens int, temperature float64) Option {
	return func(g *Generator) {
		if maxTokens > 0 {
			g.maxTokens = maxTokens
		}
		if temperature >= 0 {
			g.temperature = temperature
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Generator) { g.metrics = m }
}

func WithLogger(l *log.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

func NewGenerator(engine *analytics.Engine, opts ...Option) *Generator {
	g := &Generator{
		engine:      engine,
		timeout:     DefaultTimeout,
		maxTokens:   textgen.DefaultMaxTokens,
		temperature: textgen.DefaultTemperature,
		logger:      log.Default().WithComponent(log.ComponentInsights),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// External reports whether an external text generator is configured.
func (g *Generator) External() bool {
	return g.text != nil
}

// Generate returns insights for txs. Without a text generator it returns
// Local. With one, any error, timeout or blank answer falls back to Local.
func (g *Generator) Generate(ctx context.Context, txs []core.Transaction) []core.Insight {
	if g.text == nil {
		g.record(metrics.SourceLocal)
		return g.Local(txs)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	prompt := g.BuildAnalysisPrompt(txs)
	text, err := g.text.Generate(ctx, textgen.Request{
		Prompt:      prompt,
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	})
	if err == nil && strings.TrimSpace(text) == "" {
		err = textgen.ErrEmptyResponse
	}
	if err != nil {
		g.logger.WarnContext(ctx, "External insight generation failed, using local insights",
			log.FieldError, err,
			log.FieldOperation, log.OpGenerate)
		g.record(metrics.SourceFallback)
		return g.Local(txs)
	}

	g.record(metrics.SourceExternal)
	return g.ParseExternalResponse(text, txs)
}

func (g *Generator) record(source string) {
	if g.metrics != nil {
		g.metrics.Insights.WithLabelValues(source).Inc()
	}
}
