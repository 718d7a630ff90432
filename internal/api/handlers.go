// Package api serves the latest portfolio snapshot over HTTP and scores
// ad-hoc batches on request.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/refset/account-health/internal/account"
	"github.com/refset/account-health/internal/config"
	"github.com/refset/account-health/internal/pipeline"
	"github.com/refset/account-health/internal/scoring"
	"github.com/refset/account-health/internal/snapshot"
)

// ErrNoSnapshot is returned by a SnapshotSource that has nothing to serve.
var ErrNoSnapshot = errors.New("no snapshot available")

// SnapshotSource returns the most recent snapshot.
type SnapshotSource interface {
	Latest(ctx context.Context) (snapshot.Snapshot, error)
}

// Handlers contains the HTTP handlers
type Handlers struct {
	cfg       *config.Config
	snapshots SnapshotSource
	logger    *zap.Logger
	now       func() time.Time
}

// NewHandlers creates handlers that read snapshots from src. Ad-hoc scoring
// starts from cfg.
func NewHandlers(cfg *config.Config, src SnapshotSource, logger *zap.Logger) *Handlers {
	return &Handlers{cfg: cfg, snapshots: src, logger: logger, now: time.Now}
}

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetPortfolio returns the full report of the latest snapshot.
func (h *Handlers) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.latest(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"run_id":       snap.RunID,
		"generated_at": snap.GeneratedAt,
		"report":       snap.Report,
	})
}

// GetRiskComposition returns the band mix per industry.
func (h *Handlers) GetRiskComposition(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.latest(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, snap.Report.RiskByIndustry)
}

// ListAccounts returns per-account results, optionally filtered by the band,
// playbook and tier query parameters. q matches a case-insensitive substring
// of the account name or ID.
func (h *Handlers) ListAccounts(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.latest(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	band := query.Get("band")
	playbook := query.Get("playbook")
	tier := strings.TrimSpace(query.Get("tier"))
	q := strings.ToLower(strings.TrimSpace(query.Get("q")))

	results := make([]scoring.Result, 0, len(snap.Results))
	for _, res := range snap.Results {
		if band != "" && string(res.Band) != band {
			continue
		}
		if playbook != "" && string(res.Playbook) != playbook {
			continue
		}
		if tier != "" && !strings.EqualFold(res.Tier, tier) {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(res.Name), q) && !strings.Contains(strings.ToLower(res.AccountID), q) {
			continue
		}
		results = append(results, res)
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"run_id":   snap.RunID,
		"count":    len(results),
		"accounts": results,
	})
}

// GetAccount returns one account's result from the latest snapshot.
func (h *Handlers) GetAccount(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.latest(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	res, found := snap.Result(id)
	if !found {
		respondError(w, http.StatusNotFound, "account not found: "+id)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// ScoreRequest is the body of POST /api/score. AsOf is YYYY-MM-DD and
// defaults to today; renewal dates are RFC 3339 timestamps. Scoring, when
// present, is applied over the server's scoring configuration field by field.
type ScoreRequest struct {
	Accounts []account.Record `json:"accounts"`
	AsOf     string           `json:"as_of"`
	Scoring  json.RawMessage  `json:"scoring,omitempty"`
}

// Score scores the posted accounts without persisting anything.
func (h *Handlers) Score(w http.ResponseWriter, r *http.Request) {
	var req ScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	cfg := *h.cfg
	cfg.Pipeline.AsOf = req.AsOf
	if len(req.Scoring) > 0 {
		if err := json.Unmarshal(req.Scoring, &cfg.Scoring); err != nil {
			respondError(w, http.StatusBadRequest, "invalid scoring override: "+err.Error())
			return
		}
	}
	if err := cfg.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	asOf, err := cfg.EvaluationDate(h.now())
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := pipeline.Compute(r.Context(), &cfg, req.Accounts, nil, asOf, "", h.now().UTC())
	if err != nil {
		if scoring.ErrorKind(err) == scoring.KindConfiguration {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("ad-hoc scoring failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "scoring failed")
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (h *Handlers) latest(w http.ResponseWriter, r *http.Request) (snapshot.Snapshot, bool) {
	snap, err := h.snapshots.Latest(r.Context())
	if errors.Is(err, ErrNoSnapshot) {
		respondError(w, http.StatusNotFound, "no scoring run has completed yet")
		return snapshot.Snapshot{}, false
	}
	if err != nil {
		h.logger.Error("load snapshot failed", zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "snapshot unavailable")
		return snapshot.Snapshot{}, false
	}
	return snap, true
}

// Response helpers

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
