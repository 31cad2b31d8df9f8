package http

import (
	"net/http"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/core"
)

const (
	defaultTrendMonths = 6
	maxTrendMonths     = 24
)

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	month, err := ParseMonthParam(r.URL.Query(), s.engine.CurrentMonth())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	txs, ok := s.transactions(w, r)
	if !ok {
		return
	}
	NewResponse().JSON(s.engine.MonthlySummary(txs, month)).Write(w)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	txs, ok := s.transactions(w, r)
	if !ok {
		return
	}
	NewResponse().JSON(s.engine.CategoryTotals(txs)).Write(w)
}

func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	n, err := ParseIntParam(r.URL.Query(), "months", defaultTrendMonths, 1, maxTrendMonths)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	txs, ok := s.transactions(w, r)
	if !ok {
		return
	}
	NewResponse().JSON(s.engine.SavingsTrend(txs, n)).Write(w)
}

type patternsResponse struct {
	Warnings []string `json:"warnings"`
}

func (s *Server) handlePatterns(w http.ResponseWriter, r *http.Request) {
	txs, ok := s.transactions(w, r)
	if !ok {
		return
	}
	warnings := s.engine.DetectPatterns(txs)
	if warnings == nil {
		warnings = []string{}
	}
	NewResponse().JSON(patternsResponse{Warnings: warnings}).Write(w)
}

type insightsResponse struct {
	Insights        []core.Insight      `json:"insights"`
	Summary         core.MonthlySummary `json:"summary"`
	ExternalEnabled bool                `json:"externalEnabled"`
}

// handleInsights generates insights next to the current month's summary.
// Generation never fails: external errors fall back to local heuristics.
func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	txs, ok := s.transactions(w, r)
	if !ok {
		return
	}

	var resp insightsResponse
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		resp.Insights = s.deps.Insights.Generate(ctx, txs)
		return nil
	})
	g.Go(func() error {
		resp.Summary = s.engine.MonthlySummary(txs, s.engine.CurrentMonth())
		return nil
	})
	_ = g.Wait()

	resp.ExternalEnabled = s.deps.Insights.External()
	NewResponse().JSON(resp).Write(w)
}

type promptResponse struct {
	Prompt string `json:"prompt"`
}

func (s *Server) handleInsightPrompt(w http.ResponseWriter, r *http.Request) {
	txs, ok := s.transactions(w, r)
	if !ok {
		return
	}
	NewResponse().JSON(promptResponse{Prompt: s.deps.Insights.BuildAnalysisPrompt(txs)}).Write(w)
}

type queryRequest struct {
	Question string `json:"question"`
}

type queryResponse struct {
	Intent core.QueryIntent `json:"intent"`
	Answer string           `json:"answer"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	txs, ok := s.transactions(w, r)
	if !ok {
		return
	}
	intent, answer := s.deps.Query.Ask(sanitizeInput(req.Question), txs)
	NewResponse().JSON(queryResponse{Intent: intent, Answer: answer}).Write(w)
}
