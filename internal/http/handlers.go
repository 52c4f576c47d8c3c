package http

import (
	"context"
	"net/http"
	"time"

	"centsible/internal/core"
	applog "centsible/internal/log"
	"centsible/internal/services"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]any{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady reports 503 until the store answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status, code := "ready", http.StatusOK
	store := "ok"
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.logger.WarnContext(ctx, "Readiness check failed", applog.FieldError, err)
			status, code, store = "not_ready", http.StatusServiceUnavailable, "unavailable"
		}
	}

	st := s.summaries.Stats()
	limits := s.rateLimiter.GetMetrics()
	NewJSONResponse().Status(code).Body(map[string]any{
		"status": status,
		"checks": map[string]any{
			"store":         store,
			"summary_cache": map[string]any{"entries": st.Size, "hits": st.Hits, "misses": st.Misses},
			"rate_limiter":  map[string]any{"active_clients": limits.ClientCount, "rejected": limits.Rejected},
		},
	}).Write(w)
}

func (s *Server) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	var req registerUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, applog.OpCreate, err)
		return
	}
	user, err := s.ledger.RegisterUser(r.Context(), sanitizeInput(req.Username))
	if err != nil {
		s.fail(w, r, applog.OpCreate, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(user).Write(w)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.ledger.User(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		s.fail(w, r, "get_user", err)
		return
	}
	NewJSONResponse().Body(user).Write(w)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := s.ledger.ListTransactions(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		s.fail(w, r, applog.OpList, err)
		return
	}
	if txs == nil {
		txs = []core.Transaction{}
	}
	NewJSONResponse().Body(txs).Write(w)
}

type recordTransactionResponse struct {
	Transaction core.Transaction `json:"transaction"`
	User        core.User        `json:"user"`
}

func (s *Server) handleRecordTransaction(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())

	var req recordTransactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, applog.OpRecord, err)
		return
	}
	txType, err := core.ParseTransactionType(req.Type)
	if err != nil {
		s.fail(w, r, applog.OpRecord, err)
		return
	}

	tx, user, err := s.ledger.RecordTransaction(r.Context(), services.RecordRequest{
		UserID:      userID,
		Type:        txType,
		Amount:      req.Amount,
		Category:    sanitizeInput(req.Category),
		Date:        req.Date,
		Description: sanitizeInput(req.Description),
	})
	if tx.ID != 0 {
		s.summaries.Invalidate(userID)
	}
	if err != nil {
		s.fail(w, r, applog.OpRecord, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Body(recordTransactionResponse{Transaction: tx, User: user}).
		Write(w)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	if summary, ok := s.summaries.Get(userID); ok {
		NewJSONResponse().Header("X-Cache", "HIT").Body(summary).Write(w)
		return
	}

	generation := s.summaries.Generation(userID)
	summary, err := s.ledger.Summary(r.Context(), userID)
	if err != nil {
		s.fail(w, r, "summary", err)
		return
	}
	s.summaries.Set(summary, generation)
	NewJSONResponse().Header("X-Cache", "MISS").Body(summary).Write(w)
}

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	goals, err := s.goals.ListGoals(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		s.fail(w, r, applog.OpList, err)
		return
	}
	if goals == nil {
		goals = []core.SavingsGoal{}
	}
	NewJSONResponse().Body(goals).Write(w)
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	var req createGoalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, applog.OpCreate, err)
		return
	}
	goal, err := s.goals.CreateGoal(r.Context(), userIDFrom(r.Context()), sanitizeInput(req.Name), req.TargetAmount)
	if err != nil {
		s.fail(w, r, applog.OpCreate, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(goal).Write(w)
}

func (s *Server) handleContribute(w http.ResponseWriter, r *http.Request) {
	goalID, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, applog.OpContribute, err)
		return
	}
	var req contributeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, applog.OpContribute, err)
		return
	}
	goal, err := s.goals.ContributeForUser(r.Context(), userIDFrom(r.Context()), goalID, req.Amount)
	if err != nil {
		s.fail(w, r, applog.OpContribute, err)
		return
	}
	NewJSONResponse().Body(goal).Write(w)
}
