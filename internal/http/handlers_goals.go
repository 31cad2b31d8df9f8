package http

import (
	"net/http"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/goals"
	"fintrack/internal/log"
)

var hundred = decimal.NewFromInt(100)

// goalView is a goal together with its progress as of the request.
type goalView struct {
	core.Goal
	Progress goals.Progress `json:"progress"`
}

func (s *Server) view(g core.Goal) goalView {
	return goalView{Goal: g, Progress: goals.ProgressOf(g, s.engine.Now())}
}

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Goals.List(r.Context())
	if err != nil {
		s.writeError(w, r, log.OpList, err)
		return
	}
	views := make([]goalView, 0, len(list))
	for _, g := range list {
		views = append(views, s.view(g))
	}
	NewResponse().JSON(views).Write(w)
}

func (s *Server) decodeGoal(w http.ResponseWriter, r *http.Request) (goals.NewGoal, bool) {
	var in goals.NewGoal
	if err := decodeJSON(w, r, &in); err != nil {
		BadRequestError(err.Error()).Write(w)
		return in, false
	}
	in.Title = sanitizeInput(in.Title)
	return in, true
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	in, ok := s.decodeGoal(w, r)
	if !ok {
		return
	}
	g, err := s.deps.Goals.Create(r.Context(), in)
	if err != nil {
		s.writeError(w, r, log.OpCreate, err)
		return
	}
	NewResponse().Status(http.StatusCreated).Header("Location", "/api/goals/"+g.ID).JSON(s.view(g)).Write(w)
}

func (s *Server) handleUpdateGoal(w http.ResponseWriter, r *http.Request) {
	in, ok := s.decodeGoal(w, r)
	if !ok {
		return
	}
	g, err := s.deps.Goals.Update(r.Context(), r.PathValue("id"), in)
	if err != nil {
		s.writeError(w, r, log.OpUpdate, err)
		return
	}
	NewResponse().JSON(s.view(g)).Write(w)
}

func (s *Server) handleDeleteGoal(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Goals.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, log.OpDelete, err)
		return
	}
	NoContent().Write(w)
}

// contributionRequest moves money into (positive) or out of (negative) a
// goal's saved amount.
type contributionRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (s *Server) handleContribute(w http.ResponseWriter, r *http.Request) {
	var req contributionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	if req.Amount.IsZero() {
		UnprocessableEntityError("amount must not be zero").Write(w)
		return
	}
	delta := req.Amount.Mul(hundred).Round(0).IntPart()
	g, err := s.deps.Goals.Contribute(r.Context(), r.PathValue("id"), delta)
	if err != nil {
		s.writeError(w, r, log.OpUpdate, err)
		return
	}
	NewResponse().JSON(s.view(g)).Write(w)
}

type suggestionResponse struct {
	GoalID     string  `json:"goalId"`
	Suggestion string  `json:"suggestion"`
	Percent    float64 `json:"percent"`
	Overdue    bool    `json:"overdue"`
}

func (s *Server) handleSuggestion(w http.ResponseWriter, r *http.Request) {
	g, p, err := s.deps.Goals.Progress(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, log.OpRead, err)
		return
	}
	NewResponse().JSON(suggestionResponse{
		GoalID:     g.ID,
		Suggestion: p.Suggestion,
		Percent:    p.Percent,
		Overdue:    p.Overdue,
	}).Write(w)
}
