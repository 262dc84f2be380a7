package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/panopticon/internal/lead"
)

// loginRequest is the POST /auth/token body.
type loginRequest struct {
	Password string `json:"password"`
}

// handleLogin exchanges the dashboard password for a session token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Password == "" {
		s.errorResponse(w, http.StatusBadRequest, "password is required")
		return
	}
	if !s.passwords.Verify(req.Password) {
		// Same response shape regardless of why, no detail for guessers.
		s.errorResponse(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, expiresAt, err := s.jwtService.GenerateToken(uuid.New())
	if err != nil {
		log.Printf("[server] token generation failed: %v", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	})
}

// handleHealth reports liveness plus the age of the leads snapshot so
// monitoring can tell a running server from a working one.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if age, err := s.store.LeadsSnapshotAge(r.Context()); err == nil && age != nil {
		resp["leads_cached_at"] = age.UTC().Format(time.RFC3339)
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// handleLeads runs a refresh cycle (cache-served when fresh) and returns the
// classified lead list, worst first.
func (s *Server) handleLeads(w http.ResponseWriter, r *http.Request) {
	result, err := s.refresher.Cycle(r.Context())
	if err != nil {
		log.Printf("[server] refresh cycle failed: %v", err)
		s.errorResponse(w, http.StatusBadGateway, "failed to load leads")
		return
	}
	s.jsonResponse(w, http.StatusOK, cycleResponse(result.RunID, result.Leads, result.LastUpdated, result.Partial))
}

// handleRefresh drops the cached lead and delivery lists and reruns the cycle.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	result, err := s.refresher.ForceRefresh(r.Context())
	if err != nil {
		log.Printf("[server] forced refresh failed: %v", err)
		s.errorResponse(w, http.StatusBadGateway, "refresh failed")
		return
	}
	s.jsonResponse(w, http.StatusOK, cycleResponse(result.RunID, result.Leads, result.LastUpdated, result.Partial))
}

// transitionView is one stage-history entry as served by the API.
type transitionView struct {
	FromStage *string `json:"from_stage"`
	ToStage   string  `json:"to_stage"`
	ChangedAt string  `json:"changed_at"`
	Synthetic bool    `json:"synthetic,omitempty"`
	Terminal  bool    `json:"terminal"`
}

// handleLeadHistory returns the cached stage history for one lead,
// chronological, with terminal stages flagged.
func (s *Server) handleLeadHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		s.errorResponse(w, http.StatusBadRequest, "lead id is required")
		return
	}

	transitions, err := s.store.StageHistory(r.Context(), id)
	if err != nil {
		log.Printf("[server] history read failed for lead %s: %v", id, err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to read stage history")
		return
	}

	views := make([]transitionView, 0, len(transitions))
	for _, t := range transitions {
		views = append(views, transitionView{
			FromStage: t.FromStage,
			ToStage:   t.ToStage,
			ChangedAt: t.ChangedAt.UTC().Format(time.RFC3339),
			Synthetic: t.Synthetic,
			Terminal:  lead.IsTerminalStage(t.ToStage),
		})
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"lead_id":     id,
		"transitions": views,
	})
}

// handleTransitions returns every cached stage transition with both endpoints
// set, aggregated by edge, for the pipeline flow chart.
func (s *Server) handleTransitions(w http.ResponseWriter, r *http.Request) {
	transitions, err := s.store.AllTransitions(r.Context())
	if err != nil {
		log.Printf("[server] transitions read failed: %v", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to read transitions")
		return
	}

	type edge struct {
		FromStage string `json:"from_stage"`
		ToStage   string `json:"to_stage"`
		Count     int    `json:"count"`
	}
	counts := make(map[[2]string]int)
	for _, t := range transitions {
		if t.FromStage == nil {
			continue
		}
		counts[[2]string{*t.FromStage, t.ToStage}]++
	}
	edges := make([]edge, 0, len(counts))
	for key, n := range counts {
		edges = append(edges, edge{FromStage: key[0], ToStage: key[1], Count: n})
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Count != edges[j].Count {
			return edges[i].Count > edges[j].Count
		}
		if edges[i].FromStage != edges[j].FromStage {
			return edges[i].FromStage < edges[j].FromStage
		}
		return edges[i].ToStage < edges[j].ToStage
	})

	s.jsonResponse(w, http.StatusOK, map[string]any{"edges": edges})
}

// handleSnapshots returns daily status counts for trend charts. Defaults to
// the last 30 days; ?days=N overrides, capped at one year.
func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 365 {
			s.errorResponse(w, http.StatusBadRequest, "days must be between 1 and 365")
			return
		}
		days = n
	}

	snapshots, err := s.store.StatusSnapshots(r.Context(), days)
	if err != nil {
		log.Printf("[server] snapshot read failed: %v", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to read snapshots")
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"days":      days,
		"snapshots": snapshots,
	})
}

func cycleResponse(runID uuid.UUID, leads []lead.Classified, lastUpdated *time.Time, partial string) map[string]any {
	resp := map[string]any{
		"run_id": runID.String(),
		"count":  len(leads),
		"leads":  leads,
	}
	if lastUpdated != nil {
		resp["last_updated"] = lastUpdated.UTC().Format(time.RFC3339)
	}
	if partial != "" {
		resp["partial"] = partial
	}
	return resp
}
